package outbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vendaflow/sdr-platform/internal/model"
)

// MemoryStore is an in-process Store used in dev mode and tests. Records are
// deep-copied on the way in and out so callers never share mutable state with
// the store.
type MemoryStore struct {
	mu   sync.RWMutex
	ops  map[string]*model.PendingOperation
	seq  map[string]int
	next int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ops: make(map[string]*model.PendingOperation),
		seq: make(map[string]int),
	}
}

// Create inserts a new operation with status pending and retry_count 0.
func (s *MemoryStore) Create(ctx context.Context, req model.CreateOperationRequest) (*model.PendingOperation, error) {
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = model.DefaultMaxRetries
	}

	now := time.Now()
	op := &model.PendingOperation{
		ID:            uuid.Must(uuid.NewV7()).String(),
		OperationType: req.OperationType,
		EntityType:    req.EntityType,
		EntityID:      req.EntityID,
		Payload:       copyPayload(req.Payload),
		Status:        model.StatusPending,
		RetryCount:    0,
		MaxRetries:    maxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.mu.Lock()
	s.ops[op.ID] = op
	s.seq[op.ID] = s.next
	s.next++
	s.mu.Unlock()

	return copyOperation(op), nil
}

// List returns operations with the given status, oldest first.
func (s *MemoryStore) List(ctx context.Context, status model.OperationStatus, limit, offset int) ([]model.PendingOperation, error) {
	s.mu.RLock()
	matched := make([]*model.PendingOperation, 0)
	for _, op := range s.ops {
		if op.Status == status {
			matched = append(matched, op)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return s.seq[matched[i].ID] < s.seq[matched[j].ID]
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	s.mu.RUnlock()

	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}

	out := make([]model.PendingOperation, 0, end-offset)
	for _, op := range matched[offset:end] {
		out = append(out, *copyOperation(op))
	}
	return out, nil
}

// Counts returns per-status counts measured under one lock acquisition.
func (s *MemoryStore) Counts(ctx context.Context) (*model.OperationCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := &model.OperationCounts{}
	for _, op := range s.ops {
		switch op.Status {
		case model.StatusPending:
			counts.Pending++
		case model.StatusProcessing:
			counts.Processing++
		case model.StatusCompleted:
			counts.Completed++
		case model.StatusFailed:
			counts.Failed++
		}
	}
	counts.Total = counts.Pending + counts.Processing + counts.Completed + counts.Failed
	return counts, nil
}

// Get returns one operation or model.ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, id string) (*model.PendingOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.ops[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return copyOperation(op), nil
}

// SetStatus writes a status transition.
func (s *MemoryStore) SetStatus(ctx context.Context, id string, status model.OperationStatus, errMsg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok {
		return false, nil
	}

	now := time.Now()
	op.Status = status
	op.UpdatedAt = now
	if errMsg != "" {
		op.LastError = errMsg
	}
	switch status {
	case model.StatusProcessing:
		op.LastAttemptAt = &now
	case model.StatusCompleted:
		op.CompletedAt = &now
	}
	return true, nil
}

// AcquireForProcessing transitions pending -> processing conditionally.
func (s *MemoryStore) AcquireForProcessing(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok || op.Status != model.StatusPending {
		return false, nil
	}

	now := time.Now()
	op.Status = model.StatusProcessing
	op.LastAttemptAt = &now
	op.UpdatedAt = now
	return true, nil
}

// IncrementRetry adds one failed attempt, forcing failed at max_retries.
func (s *MemoryStore) IncrementRetry(ctx context.Context, id, errMsg string) (*model.PendingOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok {
		return nil, model.ErrNotFound
	}

	op.RetryCount++
	op.LastError = errMsg
	op.UpdatedAt = time.Now()
	if op.RetryCount >= op.MaxRetries {
		op.Status = model.StatusFailed
	}
	return copyOperation(op), nil
}

// Reset transitions failed -> pending, zeroing the retry budget.
func (s *MemoryStore) Reset(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok || op.Status != model.StatusFailed {
		return false, nil
	}

	op.Status = model.StatusPending
	op.RetryCount = 0
	op.LastError = ""
	op.UpdatedAt = time.Now()
	return true, nil
}

// MarkCompleted transitions to completed and merges the CRM result.
func (s *MemoryStore) MarkCompleted(ctx context.Context, id string, result map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok {
		return false, nil
	}

	now := time.Now()
	op.Status = model.StatusCompleted
	op.CompletedAt = &now
	op.UpdatedAt = now
	if result != nil {
		if op.Payload == nil {
			op.Payload = make(map[string]any)
		}
		op.Payload["_crm_result"] = copyPayload(result)
	}
	return true, nil
}

// DeleteCompletedOlderThan removes old completed operations.
func (s *MemoryStore) DeleteCompletedOlderThan(ctx context.Context, days int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -days)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, op := range s.ops {
		if op.Status == model.StatusCompleted && op.CompletedAt != nil && op.CompletedAt.Before(cutoff) {
			delete(s.ops, id)
			delete(s.seq, id)
			removed++
		}
	}
	return removed, nil
}

func copyPayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if nested, ok := v.(map[string]any); ok {
			out[k] = copyPayload(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func copyOperation(op *model.PendingOperation) *model.PendingOperation {
	dup := *op
	dup.Payload = copyPayload(op.Payload)
	if op.LastAttemptAt != nil {
		t := *op.LastAttemptAt
		dup.LastAttemptAt = &t
	}
	if op.CompletedAt != nil {
		t := *op.CompletedAt
		dup.CompletedAt = &t
	}
	return &dup
}
