// Package outbox implements the pending-operations retry subsystem: the
// durable store of queued CRM writes, the batch orchestrator that drains it,
// and the scheduler that drives both.
package outbox

import (
	"context"

	"github.com/vendaflow/sdr-platform/internal/model"
)

// Store is the persistence abstraction over the pending-operations table. It
// owns the status state machine and retry bookkeeping; no component above it
// mutates operation records directly.
//
// All methods may fail with infrastructure errors. Callers above the store
// boundary log those and degrade to soft failures, except for Create, whose
// callers need a hard signal that the write was not durably queued.
type Store interface {
	// Create inserts a new operation with status pending and retry_count 0.
	// Unreachable persistence surfaces model.ErrStoreUnavailable.
	Create(ctx context.Context, req model.CreateOperationRequest) (*model.PendingOperation, error)

	// List returns operations with the given status ordered by creation time
	// ascending, oldest first, so retry processing stays FIFO-fair.
	List(ctx context.Context, status model.OperationStatus, limit, offset int) ([]model.PendingOperation, error)

	// Counts returns per-status counts. Total equals the sum of the four
	// named counts measured in the same call.
	Counts(ctx context.Context) (*model.OperationCounts, error)

	// Get returns one operation or model.ErrNotFound.
	Get(ctx context.Context, id string) (*model.PendingOperation, error)

	// SetStatus writes a status transition. Transitioning to completed sets
	// completed_at; transitioning to processing sets last_attempt_at. A
	// non-empty errMsg is recorded as last_error. Returns false with a nil
	// error when no record matches; callers treat that as a soft failure.
	SetStatus(ctx context.Context, id string, status model.OperationStatus, errMsg string) (bool, error)

	// AcquireForProcessing transitions pending -> processing only when the
	// record is currently pending, so two overlapping batches cannot both
	// pick up the same operation. Returns false when the record is missing
	// or not pending.
	AcquireForProcessing(ctx context.Context, id string) (bool, error)

	// IncrementRetry adds one failed attempt. When the new count reaches
	// max_retries the status becomes failed atomically with the increment;
	// otherwise the status is left unchanged. Returns the updated record or
	// model.ErrNotFound.
	IncrementRetry(ctx context.Context, id, errMsg string) (*model.PendingOperation, error)

	// Reset transitions failed -> pending, zeroing retry_count and clearing
	// last_error. Returns false when the record is missing or not failed.
	Reset(ctx context.Context, id string) (bool, error)

	// MarkCompleted transitions to completed, optionally merging result into
	// payload._crm_result. Returns false when no record matches.
	MarkCompleted(ctx context.Context, id string, result map[string]any) (bool, error)

	// DeleteCompletedOlderThan removes completed operations older than the
	// given number of days and returns how many were removed. Retention
	// sweep only; never part of the retry hot path.
	DeleteCompletedOlderThan(ctx context.Context, days int) (int, error)
}
