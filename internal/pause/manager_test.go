package pause

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendaflow/sdr-platform/internal/contextstore"
	"github.com/vendaflow/sdr-platform/internal/model"
	"github.com/vendaflow/sdr-platform/internal/schedule"
	"github.com/vendaflow/sdr-platform/pkg/logger"
)

const testPhone = "5511999887766"

// evaluatorFor builds an evaluator pinned open or closed via a schedule file,
// so pause tests do not depend on when they run.
func evaluatorFor(t *testing.T, withinHours bool) *schedule.Evaluator {
	t.Helper()

	content := `{}`
	if withinHours {
		content = `{
			"sunday":    {"start": "00:00", "end": "23:59"},
			"monday":    {"start": "00:00", "end": "23:59"},
			"tuesday":   {"start": "00:00", "end": "23:59"},
			"wednesday": {"start": "00:00", "end": "23:59"},
			"thursday":  {"start": "00:00", "end": "23:59"},
			"friday":    {"start": "00:00", "end": "23:59"},
			"saturday":  {"start": "00:00", "end": "23:59"}
		}`
	}

	path := filepath.Join(t.TempDir(), "hours.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return schedule.NewEvaluator(schedule.Config{FilePath: path}, logger.NewNop())
}

func newTestManager(t *testing.T, withinHours bool) (*Manager, *contextstore.MemoryStore) {
	t.Helper()
	contexts := contextstore.NewMemoryStore()
	return NewManager(contexts, evaluatorFor(t, withinHours), logger.NewNop()), contexts
}

func TestPauseAndResume(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, true)

	assert.False(t, m.IsPaused(ctx, testPhone))

	require.True(t, m.Pause(ctx, testPhone, model.PauseReasonSDRIntervention, "Maria", "sdr-42"))
	assert.True(t, m.IsPaused(ctx, testPhone))

	state := m.PauseInfo(ctx, testPhone)
	require.NotNil(t, state)
	assert.True(t, state.Paused)
	assert.Equal(t, model.PauseReasonSDRIntervention, state.Reason)
	assert.Equal(t, "Maria", state.SenderName)
	require.NotNil(t, state.PausedAt)
	require.NotNil(t, state.BusinessHoursAtPause)
	assert.True(t, *state.BusinessHoursAtPause)

	require.True(t, m.Resume(ctx, testPhone, model.ResumeReasonSDRCommand, "Maria"))
	assert.False(t, m.IsPaused(ctx, testPhone))

	// The resume keeps the pause attribution for audit.
	state = m.PauseInfo(ctx, testPhone)
	require.NotNil(t, state)
	assert.False(t, state.Paused)
	assert.Equal(t, "Maria", state.SenderName)
	assert.Equal(t, model.ResumeReasonSDRCommand, state.ResumeReason)
	require.NotNil(t, state.ResumedAt)
}

func TestPauseStateSurvivesCacheLoss(t *testing.T) {
	ctx := context.Background()
	contexts := contextstore.NewMemoryStore()
	hours := evaluatorFor(t, true)

	m := NewManager(contexts, hours, logger.NewNop())
	require.True(t, m.Pause(ctx, testPhone, model.PauseReasonSDRIntervention, "Maria", ""))

	// A fresh manager over the same store simulates a process restart.
	restarted := NewManager(contexts, hours, logger.NewNop())
	assert.True(t, restarted.IsPaused(ctx, testPhone))
}

func TestPauseNormalizesPhoneKeys(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, true)

	require.True(t, m.Pause(ctx, "+55 (11) 99988-7766", model.PauseReasonSDRIntervention, "Maria", ""))
	assert.True(t, m.IsPaused(ctx, testPhone), "formatted and bare numbers are the same conversation")
}

func TestPauseRejectsBadPhone(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, true)

	assert.False(t, m.Pause(ctx, "123", model.PauseReasonSDRIntervention, "Maria", ""))
	assert.False(t, m.Resume(ctx, "123", model.ResumeReasonSDRCommand, "Maria"))
	assert.False(t, m.IsPaused(ctx, "123"))
	assert.Nil(t, m.PauseInfo(ctx, "123"))
}

type failingWriteStore struct {
	*contextstore.MemoryStore
}

func (f *failingWriteStore) Set(ctx context.Context, key string, doc map[string]any) error {
	return errors.New("store down")
}

func TestPauseOptimisticCacheOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	contexts := &failingWriteStore{MemoryStore: contextstore.NewMemoryStore()}
	m := NewManager(contexts, evaluatorFor(t, true), logger.NewNop())

	// The durable write failing fails the call, but the in-process cache is
	// already ahead: the agent behaves as paused until storage recovers.
	assert.False(t, m.Pause(ctx, testPhone, model.PauseReasonSDRIntervention, "Maria", ""))
	assert.True(t, m.IsPaused(ctx, testPhone))
}

func TestCheckAutoResume(t *testing.T) {
	ctx := context.Background()

	t.Run("not paused", func(t *testing.T) {
		m, _ := newTestManager(t, false)
		should, reason := m.CheckAutoResume(ctx, testPhone)
		assert.False(t, should)
		assert.Empty(t, reason)
	})

	t.Run("paused within business hours", func(t *testing.T) {
		m, _ := newTestManager(t, true)
		require.True(t, m.Pause(ctx, testPhone, model.PauseReasonSDRIntervention, "Maria", ""))

		should, reason := m.CheckAutoResume(ctx, testPhone)
		assert.False(t, should)
		assert.Equal(t, model.AutoResumeBlockedWithinHours, reason)
	})

	t.Run("paused outside business hours", func(t *testing.T) {
		m, _ := newTestManager(t, false)
		require.True(t, m.Pause(ctx, testPhone, model.PauseReasonSDRIntervention, "Maria", ""))

		should, reason := m.CheckAutoResume(ctx, testPhone)
		assert.True(t, should)
		assert.Equal(t, model.AutoResumeEligibleOutsideHours, reason)
	})
}

func TestTryAutoResume(t *testing.T) {
	ctx := context.Background()

	m, _ := newTestManager(t, false)
	require.True(t, m.Pause(ctx, testPhone, model.PauseReasonSDRIntervention, "Maria", ""))

	assert.True(t, m.TryAutoResume(ctx, testPhone))
	assert.False(t, m.IsPaused(ctx, testPhone))

	state := m.PauseInfo(ctx, testPhone)
	require.NotNil(t, state)
	assert.Equal(t, model.ResumeReasonOutsideHours, state.ResumeReason)
	assert.Equal(t, "system", state.ResumedBy)

	// Already resumed: nothing to do.
	assert.False(t, m.TryAutoResume(ctx, testPhone))
}

func TestTryAutoResumeBlockedWithinHours(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, true)
	require.True(t, m.Pause(ctx, testPhone, model.PauseReasonSDRIntervention, "Maria", ""))

	assert.False(t, m.TryAutoResume(ctx, testPhone))
	assert.True(t, m.IsPaused(ctx, testPhone))
}

func TestProcessCommand(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, true)

	// Non-command messages are not consumed.
	handled, reply := m.ProcessCommand(ctx, testPhone, "ola, tudo bem?", "Maria")
	assert.False(t, handled)
	assert.Empty(t, reply)

	// Resume command while the agent is already active.
	handled, reply = m.ProcessCommand(ctx, testPhone, "/retomar", "Maria")
	assert.True(t, handled)
	assert.Equal(t, msgAlreadyActive, reply)

	require.True(t, m.Pause(ctx, testPhone, model.PauseReasonSDRIntervention, "Maria", ""))

	handled, reply = m.ProcessCommand(ctx, testPhone, "/retomar", "Maria")
	assert.True(t, handled)
	assert.Equal(t, msgResumed, reply)
	assert.False(t, m.IsPaused(ctx, testPhone))
}

func TestProcessCommandResumeFailure(t *testing.T) {
	ctx := context.Background()
	contexts := &failingWriteStore{MemoryStore: contextstore.NewMemoryStore()}
	m := NewManager(contexts, evaluatorFor(t, true), logger.NewNop())

	m.Pause(ctx, testPhone, model.PauseReasonSDRIntervention, "Maria", "")
	require.True(t, m.IsPaused(ctx, testPhone))

	handled, reply := m.ProcessCommand(ctx, testPhone, "retomar", "Maria")
	assert.True(t, handled)
	assert.Equal(t, msgResumeFailed, reply)
}

func TestLoadAllFromStore(t *testing.T) {
	ctx := context.Background()
	contexts := contextstore.NewMemoryStore()
	hours := evaluatorFor(t, true)

	seed := NewManager(contexts, hours, logger.NewNop())
	require.True(t, seed.Pause(ctx, "5511999887766", model.PauseReasonSDRIntervention, "Maria", ""))
	require.True(t, seed.Pause(ctx, "5511988776655", model.PauseReasonSDRIntervention, "Joao", ""))
	require.True(t, seed.Pause(ctx, "5511977665544", model.PauseReasonSDRIntervention, "Ana", ""))
	require.True(t, seed.Resume(ctx, "5511977665544", model.ResumeReasonSDRCommand, "Ana"))

	// Unrelated documents and garbage must be skipped, not crash the load.
	require.NoError(t, contexts.Set(ctx, "5511966554433", map[string]any{"lead_data": map[string]any{"name": "x"}}))
	require.NoError(t, contexts.Set(ctx, "5511955443322", map[string]any{"agent_paused": "not-a-document"}))

	m := NewManager(contexts, hours, logger.NewNop())
	assert.Equal(t, 2, m.LoadAllFromStore(ctx))
	assert.True(t, m.IsPaused(ctx, "5511999887766"))
	assert.True(t, m.IsPaused(ctx, "5511988776655"))
	assert.False(t, m.IsPaused(ctx, "5511977665544"))
}
