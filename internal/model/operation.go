// Package model defines data structures for the SDR platform reliability core.
package model

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrStoreUnavailable is returned when the backing persistence is unreachable.
// Only Create surfaces it to callers; they need a hard signal that the write
// was not durably queued.
var ErrStoreUnavailable = errors.New("operation store unavailable")

// OperationType identifies the CRM write an operation carries.
type OperationType string

const (
	OpCreateDeal    OperationType = "create_deal"
	OpCreatePerson  OperationType = "create_person"
	OpCreateCompany OperationType = "create_company"
	OpCreateNote    OperationType = "create_note"
	OpUpdateDeal    OperationType = "update_deal"
)

// Valid reports whether t is a known operation type. Unknown types are
// rejected at creation; known types without an executor are accepted and fail
// during processing instead.
func (t OperationType) Valid() bool {
	switch t {
	case OpCreateDeal, OpCreatePerson, OpCreateCompany, OpCreateNote, OpUpdateDeal:
		return true
	}
	return false
}

// EntityType is a descriptive label for the domain entity an operation
// touches. It is not enforced against the operation type.
type EntityType string

const (
	EntityDeal    EntityType = "deal"
	EntityPerson  EntityType = "person"
	EntityCompany EntityType = "company"
	EntityNote    EntityType = "note"
)

// OperationStatus is the lifecycle status of a pending operation.
type OperationStatus string

const (
	StatusPending    OperationStatus = "pending"
	StatusProcessing OperationStatus = "processing"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
)

// Valid reports whether s is one of the four lifecycle statuses.
func (s OperationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// DefaultMaxRetries is the retry budget applied when a caller does not
// specify one.
const DefaultMaxRetries = 10

// PendingOperation is a durably queued CRM write awaiting retry.
type PendingOperation struct {
	ID            string          `json:"id"`
	OperationType OperationType   `json:"operation_type"`
	EntityType    EntityType      `json:"entity_type"`
	EntityID      string          `json:"entity_id,omitempty"`
	Payload       map[string]any  `json:"payload"`
	Status        OperationStatus `json:"status"`
	RetryCount    int             `json:"retry_count"`
	MaxRetries    int             `json:"max_retries"`
	LastError     string          `json:"last_error,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// OperationCounts holds per-status operation counts. Total is always the sum
// of the four named counts measured in the same call.
type OperationCounts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// BatchResult is the outcome of one retry batch run. Error carries any
// failure that escaped the batch; the job itself never raises.
type BatchResult struct {
	Processed        int       `json:"processed"`
	Succeeded        int       `json:"succeeded"`
	Failed           int       `json:"failed"`
	PendingRemaining int       `json:"pending_remaining"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
	Error            string    `json:"error,omitempty"`
}

// RetryAllResult is the outcome of a bulk reset-and-process run over failed
// operations.
type RetryAllResult struct {
	Total     int    `json:"total"`
	Reset     int    `json:"reset"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// CreateOperationRequest is the request to queue a new pending operation.
type CreateOperationRequest struct {
	OperationType OperationType  `json:"operation_type"`
	EntityType    EntityType     `json:"entity_type"`
	EntityID      string         `json:"entity_id,omitempty"`
	Payload       map[string]any `json:"payload"`
	MaxRetries    int            `json:"max_retries,omitempty"`
}

// ListOperationsResponse is the response for listing operations.
type ListOperationsResponse struct {
	Operations []PendingOperation `json:"operations"`
	Count      int                `json:"count"`
	Status     OperationStatus    `json:"status"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
}
