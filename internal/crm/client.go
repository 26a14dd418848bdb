// Package crm provides the CRM collaborator interfaces consumed by the retry
// subsystem and a Piperun HTTP implementation.
package crm

import (
	"context"
	"fmt"
)

// StatusError is a non-2xx CRM response. It keeps the HTTP status available
// to callers that classify failures (auth alerts) without string matching.
type StatusError struct {
	Integration string
	Endpoint    string
	Code        int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Integration, e.Code)
}

// DealSyncer pushes a deal for a conversation into the CRM. Implementations
// perform their own inline retries; a returned error means the write should
// go through the pending-operations pipeline.
type DealSyncer interface {
	// SyncDeal creates or updates the CRM deal for phone and returns its
	// identifier.
	SyncDeal(ctx context.Context, req *DealSyncRequest) (int64, error)
}

// DealSyncRequest carries everything needed to sync one deal.
type DealSyncRequest struct {
	Phone               string
	LeadData            map[string]any
	OrcamentoID         string
	ConversationSummary string
	ForceCreate         bool
}

// SyncFlagUpdater records the CRM sync outcome on a conversation. Best-effort
// from the orchestrator's perspective; a failed flag update never rolls back
// a completed operation.
type SyncFlagUpdater interface {
	SetSyncStatus(ctx context.Context, phone string, synced bool, dealID int64) error
}
