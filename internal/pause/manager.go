package pause

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vendaflow/sdr-platform/internal/contextstore"
	"github.com/vendaflow/sdr-platform/internal/model"
	"github.com/vendaflow/sdr-platform/internal/schedule"
	"github.com/vendaflow/sdr-platform/pkg/logger"
	"github.com/vendaflow/sdr-platform/pkg/metrics"
)

// pauseStateKey is the field holding pause state inside a conversation's
// context document.
const pauseStateKey = "agent_paused"

// SDR reply messages for command processing.
const (
	msgResumed       = "Atendimento automático retomado com sucesso."
	msgAlreadyActive = "O atendimento automático já está ativo."
	msgResumeFailed  = "Não foi possível retomar o atendimento automático. Tente novamente."
)

// Manager holds per-conversation pause state behind a write-through cache.
// Every mutation updates the in-process cache and the durable store in the
// same call; the store write's outcome decides the call's outcome, but the
// cache is updated optimistically either way.
type Manager struct {
	contexts contextstore.Store
	hours    *schedule.Evaluator
	logger   *logger.Logger

	mu    sync.RWMutex
	cache map[string]*model.PauseState
}

// NewManager creates a pause manager over the given context store and
// business-hours evaluator.
func NewManager(contexts contextstore.Store, hours *schedule.Evaluator, log *logger.Logger) *Manager {
	return &Manager{
		contexts: contexts,
		hours:    hours,
		logger:   log,
		cache:    make(map[string]*model.PauseState),
	}
}

// IsPaused reports whether the agent is paused for the conversation. An
// unnormalizable phone is a soft failure and reports false.
func (m *Manager) IsPaused(ctx context.Context, phone string) bool {
	state := m.PauseInfo(ctx, phone)
	return state != nil && state.Paused
}

// PauseInfo returns the current pause state, or nil when none is recorded.
// Cache misses fall through to the durable store and populate the cache.
func (m *Manager) PauseInfo(ctx context.Context, phone string) *model.PauseState {
	key, err := NormalizePhone(phone)
	if err != nil {
		m.logger.Warn("cannot normalize phone", zap.String("phone", phone), zap.Error(err))
		return nil
	}

	m.mu.RLock()
	cached, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		dup := *cached
		return &dup
	}

	state := m.readStateFromStore(ctx, key)
	if state != nil {
		m.mu.Lock()
		m.cache[key] = state
		m.mu.Unlock()
		dup := *state
		return &dup
	}
	return nil
}

// Pause pauses the agent for the conversation. Returns false when the phone
// cannot be normalized or the durable write fails.
func (m *Manager) Pause(ctx context.Context, phone, reason, senderName, senderID string) bool {
	key, err := NormalizePhone(phone)
	if err != nil {
		m.logger.Warn("cannot normalize phone for pause", zap.String("phone", phone), zap.Error(err))
		return false
	}

	now := time.Now()
	withinHours := m.hours.IsBusinessHoursNow()
	state := &model.PauseState{
		Paused:               true,
		Reason:               reason,
		SenderName:           senderName,
		SenderID:             senderID,
		PausedAt:             &now,
		BusinessHoursAtPause: &withinHours,
	}

	ok := m.writeThrough(ctx, key, state)
	if ok {
		metrics.RecordPauseTransition("pause", reason)
		m.logger.WithConversation(key).Info("agent paused",
			zap.String("reason", reason),
			zap.String("sender", senderName),
		)
	}
	return ok
}

// Resume resumes the agent for the conversation, preserving the previous
// pause attribution for audit. Returns false when the phone cannot be
// normalized or the durable write fails.
func (m *Manager) Resume(ctx context.Context, phone, reason, resumedBy string) bool {
	key, err := NormalizePhone(phone)
	if err != nil {
		m.logger.Warn("cannot normalize phone for resume", zap.String("phone", phone), zap.Error(err))
		return false
	}

	state := m.PauseInfo(ctx, key)
	if state == nil {
		state = &model.PauseState{}
	}

	now := time.Now()
	withinHours := m.hours.IsBusinessHoursNow()
	state.Paused = false
	state.ResumeReason = reason
	state.ResumedBy = resumedBy
	state.ResumedAt = &now
	state.BusinessHoursAtResume = &withinHours

	ok := m.writeThrough(ctx, key, state)
	if ok {
		metrics.RecordPauseTransition("resume", reason)
		m.logger.WithConversation(key).Info("agent resumed",
			zap.String("reason", reason),
			zap.String("resumed_by", resumedBy),
		)
	}
	return ok
}

// CheckAutoResume reports whether a paused conversation is eligible for
// automatic resumption. A conversation that is not paused yields an empty
// reason, distinct from a paused one blocked by business hours.
func (m *Manager) CheckAutoResume(ctx context.Context, phone string) (bool, string) {
	if !m.IsPaused(ctx, phone) {
		return false, ""
	}
	if m.hours.IsBusinessHoursNow() {
		return false, model.AutoResumeBlockedWithinHours
	}
	return true, model.AutoResumeEligibleOutsideHours
}

// TryAutoResume resumes the conversation when it is eligible and reports
// whether a resume happened.
func (m *Manager) TryAutoResume(ctx context.Context, phone string) bool {
	should, _ := m.CheckAutoResume(ctx, phone)
	if !should {
		return false
	}
	return m.Resume(ctx, phone, model.ResumeReasonOutsideHours, "system")
}

// ProcessCommand handles an SDR message. The first return value reports
// whether the message was a resume command at all; the second carries the
// reply to show the SDR.
func (m *Manager) ProcessCommand(ctx context.Context, phone, message, senderName string) (bool, string) {
	if !IsResumeCommand(message) {
		return false, ""
	}

	if !m.IsPaused(ctx, phone) {
		return true, msgAlreadyActive
	}

	if m.Resume(ctx, phone, model.ResumeReasonSDRCommand, senderName) {
		return true, msgResumed
	}
	return true, msgResumeFailed
}

// LoadAllFromStore repopulates the cache from every persisted conversation
// that is currently paused. Non-paused or malformed records are skipped.
// Returns the number of entries loaded; used for startup logging.
func (m *Manager) LoadAllFromStore(ctx context.Context) int {
	keys, err := m.contexts.Keys(ctx)
	if err != nil {
		m.logger.Warn("failed to list conversation contexts", zap.Error(err))
		return 0
	}

	loaded := 0
	for _, key := range keys {
		state := m.readStateFromStore(ctx, key)
		if state == nil || !state.Paused {
			continue
		}
		m.mu.Lock()
		m.cache[key] = state
		m.mu.Unlock()
		loaded++
	}

	m.logger.Info("pause cache loaded from store", zap.Int("paused_conversations", loaded))
	return loaded
}

// writeThrough updates the cache and the durable store in one call. The
// cache is updated first and kept even when the store write fails; a failed
// durable write therefore leaves the cache ahead of storage until the next
// transition for that phone.
func (m *Manager) writeThrough(ctx context.Context, key string, state *model.PauseState) bool {
	m.mu.Lock()
	m.cache[key] = state
	m.mu.Unlock()

	doc, err := m.contexts.Get(ctx, key)
	if err != nil {
		m.logger.Warn("failed to read conversation context", zap.String("phone", key), zap.Error(err))
		doc = nil
	}
	if doc == nil {
		doc = make(map[string]any)
	}

	stateDoc, err := stateToDocument(state)
	if err != nil {
		m.logger.Error("failed to encode pause state", zap.String("phone", key), zap.Error(err))
		return false
	}
	doc[pauseStateKey] = stateDoc

	if err := m.contexts.Set(ctx, key, doc); err != nil {
		m.logger.Error("failed to persist pause state", zap.String("phone", key), zap.Error(err))
		return false
	}
	return true
}

func (m *Manager) readStateFromStore(ctx context.Context, key string) *model.PauseState {
	doc, err := m.contexts.Get(ctx, key)
	if err != nil {
		m.logger.Warn("failed to read conversation context", zap.String("phone", key), zap.Error(err))
		return nil
	}
	if doc == nil {
		return nil
	}

	raw, ok := doc[pauseStateKey]
	if !ok {
		return nil
	}

	state, err := documentToState(raw)
	if err != nil {
		m.logger.Warn("malformed pause state in context document",
			zap.String("phone", key), zap.Error(err))
		return nil
	}
	return state
}

func stateToDocument(state *model.PauseState) (map[string]any, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func documentToState(raw any) (*model.PauseState, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var state model.PauseState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}
