package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendaflow/sdr-platform/internal/model"
)

func newTestOperation(t *testing.T, store *MemoryStore, payload map[string]any) *model.PendingOperation {
	t.Helper()
	op, err := store.Create(context.Background(), model.CreateOperationRequest{
		OperationType: model.OpCreateDeal,
		EntityType:    model.EntityDeal,
		Payload:       payload,
	})
	require.NoError(t, err)
	return op
}

func TestCreateDefaults(t *testing.T) {
	store := NewMemoryStore()

	op := newTestOperation(t, store, map[string]any{"phone": "5511999887766"})

	assert.NotEmpty(t, op.ID)
	assert.Equal(t, model.StatusPending, op.Status)
	assert.Equal(t, 0, op.RetryCount)
	assert.Equal(t, model.DefaultMaxRetries, op.MaxRetries)
	assert.False(t, op.CreatedAt.IsZero())
}

func TestCreateHonorsMaxRetries(t *testing.T) {
	store := NewMemoryStore()

	op, err := store.Create(context.Background(), model.CreateOperationRequest{
		OperationType: model.OpCreateDeal,
		MaxRetries:    3,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, op.MaxRetries)
}

func TestIncrementRetryIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	op := newTestOperation(t, store, nil)

	for i := 1; i <= 5; i++ {
		updated, err := store.IncrementRetry(ctx, op.ID, "timeout")
		require.NoError(t, err)
		assert.Equal(t, i, updated.RetryCount)
		assert.Equal(t, "timeout", updated.LastError)
	}
}

func TestIncrementRetryForcesFailedAtBudget(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	op, err := store.Create(ctx, model.CreateOperationRequest{
		OperationType: model.OpCreateDeal,
		MaxRetries:    2,
	})
	require.NoError(t, err)

	updated, err := store.IncrementRetry(ctx, op.ID, "first failure")
	require.NoError(t, err)
	assert.Equal(t, 1, updated.RetryCount)
	assert.NotEqual(t, model.StatusFailed, updated.Status)

	// The attempt that reaches max_retries flips to failed atomically with
	// the increment.
	updated, err = store.IncrementRetry(ctx, op.ID, "second failure")
	require.NoError(t, err)
	assert.Equal(t, 2, updated.RetryCount)
	assert.Equal(t, model.StatusFailed, updated.Status)
	assert.Equal(t, "second failure", updated.LastError)
}

func TestIncrementRetryUnknownID(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.IncrementRetry(context.Background(), "nope", "err")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestResetOnlyFromFailed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	op := newTestOperation(t, store, nil)

	// Pending records cannot be reset.
	ok, err := store.Reset(ctx, op.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.SetStatus(ctx, op.ID, model.StatusFailed, "gave up")
	require.NoError(t, err)

	ok, err = store.Reset(ctx, op.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Empty(t, got.LastError)

	// A second reset is a no-op because the record is pending again.
	ok, err = store.Reset(ctx, op.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAcquireForProcessing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	op := newTestOperation(t, store, nil)

	acquired, err := store.AcquireForProcessing(ctx, op.ID)
	require.NoError(t, err)
	assert.True(t, acquired)

	got, err := store.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, got.Status)
	require.NotNil(t, got.LastAttemptAt)

	// Already processing: the conditional update refuses.
	acquired, err = store.AcquireForProcessing(ctx, op.ID)
	require.NoError(t, err)
	assert.False(t, acquired)

	acquired, err = store.AcquireForProcessing(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestCountsMatchTotal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a := newTestOperation(t, store, nil)
	b := newTestOperation(t, store, nil)
	newTestOperation(t, store, nil)

	_, err := store.SetStatus(ctx, a.ID, model.StatusFailed, "boom")
	require.NoError(t, err)
	_, err = store.MarkCompleted(ctx, b.ID, nil)
	require.NoError(t, err)

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Pending)
	assert.Equal(t, 1, counts.Completed)
	assert.Equal(t, 1, counts.Failed)
	assert.Equal(t, counts.Pending+counts.Processing+counts.Completed+counts.Failed, counts.Total)
}

func TestListOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := newTestOperation(t, store, nil)
	second := newTestOperation(t, store, nil)
	third := newTestOperation(t, store, nil)

	ops, err := store.List(ctx, model.StatusPending, 10, 0)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, first.ID, ops[0].ID)
	assert.Equal(t, second.ID, ops[1].ID)
	assert.Equal(t, third.ID, ops[2].ID)

	ops, err = store.List(ctx, model.StatusPending, 2, 1)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, second.ID, ops[0].ID)

	ops, err = store.List(ctx, model.StatusFailed, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestMarkCompletedMergesResult(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	op := newTestOperation(t, store, map[string]any{"phone": "5511999887766"})

	ok, err := store.MarkCompleted(ctx, op.ID, map[string]any{"deal_id": int64(42)})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	result, ok := got.Payload["_crm_result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(42), result["deal_id"])
	assert.Equal(t, "5511999887766", got.Payload["phone"])
}

func TestDeleteCompletedOlderThan(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	old := newTestOperation(t, store, nil)
	fresh := newTestOperation(t, store, nil)

	_, err := store.MarkCompleted(ctx, old.ID, nil)
	require.NoError(t, err)
	_, err = store.MarkCompleted(ctx, fresh.ID, nil)
	require.NoError(t, err)

	// Backdate one completion past the retention cutoff.
	store.mu.Lock()
	past := time.Now().AddDate(0, 0, -40)
	store.ops[old.ID].CompletedAt = &past
	store.mu.Unlock()

	removed, err := store.DeleteCompletedOlderThan(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Get(ctx, old.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = store.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestStoreCopiesPayloads(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	payload := map[string]any{"phone": "5511999887766"}
	op := newTestOperation(t, store, payload)

	// Mutating the caller's map must not leak into the store.
	payload["phone"] = "mutated"

	got, err := store.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, "5511999887766", got.Payload["phone"])
}
