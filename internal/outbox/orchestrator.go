package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vendaflow/sdr-platform/internal/alerting"
	"github.com/vendaflow/sdr-platform/internal/crm"
	"github.com/vendaflow/sdr-platform/internal/events"
	"github.com/vendaflow/sdr-platform/internal/model"
	"github.com/vendaflow/sdr-platform/pkg/logger"
	"github.com/vendaflow/sdr-platform/pkg/metrics"
)

// DefaultBatchSize is the number of pending operations one batch pulls.
const DefaultBatchSize = 50

const syncFlagTimeout = 10 * time.Second

// Orchestrator drives retry batches over the operation store: it acquires
// pending operations, dispatches them to type-specific executors, applies the
// resulting status transitions and feeds queue-depth thresholds to the alert
// engine. It is the outermost failure boundary of the retry subsystem and
// never lets an error or panic escape a batch run.
type Orchestrator struct {
	store     Store
	executors map[model.OperationType]Executor
	alerts    *alerting.Engine
	syncFlags crm.SyncFlagUpdater
	events    *events.Publisher
	logger    *logger.Logger
}

// NewOrchestrator creates a batch orchestrator. alerts, syncFlags and evts
// may be nil; the corresponding side effects are skipped.
func NewOrchestrator(store Store, alerts *alerting.Engine, syncFlags crm.SyncFlagUpdater, evts *events.Publisher, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		executors: make(map[model.OperationType]Executor),
		alerts:    alerts,
		syncFlags: syncFlags,
		events:    evts,
		logger:    log,
	}
}

// RegisterExecutor installs the executor for one operation type. Types
// without a registered executor are accepted at creation but fail processing
// with an unknown-type error, consumed like any other retryable failure.
func (o *Orchestrator) RegisterExecutor(t model.OperationType, ex Executor) {
	o.executors[t] = ex
}

// ProcessBatch pulls up to batchSize pending operations, oldest first, and
// processes them strictly sequentially. It always returns a result; total
// failure is reported through the Error field rather than an error return so
// the job stays observable.
func (o *Orchestrator) ProcessBatch(ctx context.Context, batchSize int, checkAlerts bool) (result *model.BatchResult) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	result = &model.BatchResult{StartedAt: time.Now()}
	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Sprintf("batch panicked: %v", r)
			o.logger.Error("retry batch panicked", zap.Any("panic", r))
		}
		result.CompletedAt = time.Now()
		metrics.BatchDuration.Observe(result.CompletedAt.Sub(result.StartedAt).Seconds())
	}()

	ops, err := o.store.List(ctx, model.StatusPending, batchSize, 0)
	if err != nil {
		result.Error = fmt.Sprintf("failed to list pending operations: %v", err)
		o.logger.Error("failed to list pending operations", zap.Error(err))
		return result
	}
	if len(ops) == 0 {
		return result
	}

	o.logger.Info("processing retry batch", zap.Int("operations", len(ops)))

	for i := range ops {
		op := &ops[i]

		acquired, err := o.store.AcquireForProcessing(ctx, op.ID)
		if err != nil {
			o.logger.Error("failed to acquire operation",
				zap.String("operation_id", op.ID), zap.Error(err))
			result.Processed++
			result.Failed++
			continue
		}
		if !acquired {
			// Another batch picked this record up between our fetch and the
			// conditional update. Not counted as processed.
			continue
		}
		op.Status = model.StatusProcessing
		o.events.Publish(ctx, op, events.EventPickedUp, "")

		result.Processed++
		if o.processOne(ctx, op) {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	counts, err := o.store.Counts(ctx)
	if err != nil {
		o.logger.Warn("failed to read operation counts after batch", zap.Error(err))
	} else {
		result.PendingRemaining = counts.Pending
		metrics.RecordCounts(counts.Pending, counts.Processing, counts.Completed, counts.Failed)

		if checkAlerts && o.alerts != nil {
			for _, alert := range o.alerts.CheckBatchThresholds(counts) {
				o.alerts.Send(ctx, alert)
			}
		}
	}

	o.logger.Info("retry batch finished",
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("pending_remaining", result.PendingRemaining),
	)
	return result
}

// processOne runs one acquired operation through its executor and applies
// the resulting transition. It reports success and never panics or returns
// an error; one bad record must not abort the batch.
func (o *Orchestrator) processOne(ctx context.Context, op *model.PendingOperation) (succeeded bool) {
	log := o.logger.WithOperation(op.ID, string(op.OperationType))

	defer func() {
		if r := recover(); r != nil {
			log.Error("operation processing panicked", zap.Any("panic", r))
			o.recordFailure(ctx, op, fmt.Sprintf("panic: %v", r))
			succeeded = false
		}
	}()

	executor, ok := o.executors[op.OperationType]
	if !ok {
		o.recordFailure(ctx, op, fmt.Sprintf("no executor implemented for operation type %q", op.OperationType))
		return false
	}

	res, err := executor.Execute(ctx, op)
	if err != nil {
		o.recordFailure(ctx, op, err.Error())
		return false
	}
	if res == nil || res.DealID == 0 {
		o.recordFailure(ctx, op, "executor returned an unsuccessful result")
		return false
	}

	completed, err := o.store.MarkCompleted(ctx, op.ID, map[string]any{
		"deal_id":   res.DealID,
		"synced_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil || !completed {
		log.Error("failed to mark operation completed", zap.Error(err))
		o.recordFailure(ctx, op, "failed to persist completion")
		return false
	}

	metrics.RecordOperation(string(op.OperationType), "succeeded")
	o.events.Publish(ctx, op, events.EventCompleted, "")
	log.Info("operation completed", zap.Int64("deal_id", res.DealID))

	// Best-effort: a failed flag update never rolls back completion.
	if o.syncFlags != nil && res.Phone != "" {
		flagCtx, cancel := context.WithTimeout(ctx, syncFlagTimeout)
		defer cancel()
		if err := o.syncFlags.SetSyncStatus(flagCtx, res.Phone, true, res.DealID); err != nil {
			log.Warn("failed to update conversation sync flag", zap.Error(err))
		}
	}

	return true
}

// recordFailure consumes one retry attempt. When the budget is exhausted the
// store forces the failed status atomically with the increment; otherwise the
// record keeps its current status (processing) until the next reset.
func (o *Orchestrator) recordFailure(ctx context.Context, op *model.PendingOperation, errMsg string) {
	log := o.logger.WithOperation(op.ID, string(op.OperationType))

	updated, err := o.store.IncrementRetry(ctx, op.ID, errMsg)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			log.Warn("operation disappeared before retry increment")
		} else {
			log.Error("failed to increment retry count", zap.Error(err))
		}
		metrics.RecordOperation(string(op.OperationType), "failed")
		return
	}

	metrics.RecordOperation(string(op.OperationType), "failed")
	if updated.Status == model.StatusFailed {
		o.events.Publish(ctx, updated, events.EventExhausted, errMsg)
		log.Error("operation exhausted its retries",
			zap.Int("retry_count", updated.RetryCount),
			zap.String("last_error", errMsg),
		)
		return
	}

	o.events.Publish(ctx, updated, events.EventAttemptFailed, errMsg)
	log.Warn("operation attempt failed",
		zap.Int("retry_count", updated.RetryCount),
		zap.String("error", errMsg),
	)
}

// RetryOne resets a failed operation and immediately processes it. It
// returns false when the operation does not exist, is not currently failed,
// or the re-attempt did not succeed.
func (o *Orchestrator) RetryOne(ctx context.Context, id string) bool {
	ok, err := o.store.Reset(ctx, id)
	if err != nil {
		o.logger.Error("failed to reset operation", zap.String("operation_id", id), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}

	op, err := o.store.Get(ctx, id)
	if err != nil {
		o.logger.Error("failed to load reset operation", zap.String("operation_id", id), zap.Error(err))
		return false
	}

	acquired, err := o.store.AcquireForProcessing(ctx, op.ID)
	if err != nil || !acquired {
		o.logger.Warn("failed to acquire reset operation", zap.String("operation_id", id), zap.Error(err))
		return false
	}
	op.Status = model.StatusProcessing
	o.events.Publish(ctx, op, events.EventPickedUp, "")

	return o.processOne(ctx, op)
}

// RetryAllFailed resets up to batchSize failed operations and processes each
// immediately: a synchronous retry-now, not a re-queue for the next
// scheduled batch.
func (o *Orchestrator) RetryAllFailed(ctx context.Context, batchSize int) (result *model.RetryAllResult) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	result = &model.RetryAllResult{}
	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Sprintf("retry-all panicked: %v", r)
			o.logger.Error("retry-all panicked", zap.Any("panic", r))
		}
	}()

	ops, err := o.store.List(ctx, model.StatusFailed, batchSize, 0)
	if err != nil {
		result.Error = fmt.Sprintf("failed to list failed operations: %v", err)
		o.logger.Error("failed to list failed operations", zap.Error(err))
		return result
	}
	result.Total = len(ops)

	for i := range ops {
		op := &ops[i]

		ok, err := o.store.Reset(ctx, op.ID)
		if err != nil || !ok {
			o.logger.Warn("failed to reset operation for bulk retry",
				zap.String("operation_id", op.ID), zap.Error(err))
			continue
		}
		result.Reset++

		acquired, err := o.store.AcquireForProcessing(ctx, op.ID)
		if err != nil || !acquired {
			result.Failed++
			continue
		}
		op.Status = model.StatusProcessing
		op.RetryCount = 0
		op.LastError = ""
		o.events.Publish(ctx, op, events.EventPickedUp, "")

		if o.processOne(ctx, op) {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	o.logger.Info("bulk retry finished",
		zap.Int("total", result.Total),
		zap.Int("reset", result.Reset),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)
	return result
}
