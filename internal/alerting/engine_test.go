package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendaflow/sdr-platform/internal/model"
	"github.com/vendaflow/sdr-platform/pkg/logger"
)

type fakeSender struct {
	mu     sync.Mutex
	fail   bool
	alerts []model.Alert
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) Send(ctx context.Context, alert *model.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("channel down")
	}
	f.alerts = append(f.alerts, *alert)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

func newTestEngine(senders ...Sender) *Engine {
	return NewEngine(NewTracker(0), senders, EngineConfig{}, logger.NewNop())
}

func TestCheckErrorRateThresholds(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		total    int
		severity model.Severity
		want     bool
	}{
		{"no traffic", 0, 0, "", false},
		{"all success", 0, 20, "", false},
		{"just under warning", 1, 20, "", false}, // 5%
		{"at warning", 2, 20, model.SeverityWarning, true},
		{"between thresholds", 4, 20, model.SeverityWarning, true},
		{"at critical", 5, 20, model.SeverityCritical, true},
		{"total failure", 20, 20, model.SeverityCritical, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine()
			for i := 0; i < tt.total; i++ {
				engine.Tracker().RecordRequest("piperun", i >= tt.failures)
			}

			alert := engine.CheckErrorRate("piperun")
			if !tt.want {
				assert.Nil(t, alert)
				return
			}
			require.NotNil(t, alert)
			assert.Equal(t, model.AlertErrorRateHigh, alert.Type)
			assert.Equal(t, tt.severity, alert.Severity)
			assert.Equal(t, "piperun", alert.Integration)
		})
	}
}

func TestCheckLatencyBoundaryIsExclusive(t *testing.T) {
	engine := newTestEngine()

	// Exactly at the threshold must not trigger.
	assert.Nil(t, engine.CheckLatency("piperun", "/deals/sync", 10.0))

	alert := engine.CheckLatency("piperun", "/deals/sync", 10.1)
	require.NotNil(t, alert)
	assert.Equal(t, model.SeverityWarning, alert.Severity)

	// Twice the threshold escalates to critical.
	alert = engine.CheckLatency("piperun", "/deals/sync", 20.0)
	require.NotNil(t, alert)
	assert.Equal(t, model.SeverityCritical, alert.Severity)
}

func TestCheckAuthFailure(t *testing.T) {
	engine := newTestEngine()

	for _, code := range []int{401, 403} {
		alert := engine.CheckAuthFailure("piperun", "/deals/sync", code)
		require.NotNil(t, alert, "status %d", code)
		assert.Equal(t, model.AlertAuthFailure, alert.Type)
		assert.Equal(t, model.SeverityCritical, alert.Severity)
	}

	for _, code := range []int{200, 400, 404, 500} {
		assert.Nil(t, engine.CheckAuthFailure("piperun", "/deals/sync", code), "status %d", code)
	}
}

func TestCheckBatchThresholds(t *testing.T) {
	engine := newTestEngine()

	alerts := engine.CheckBatchThresholds(&model.OperationCounts{Pending: 10, Failed: 2})
	assert.Empty(t, alerts)

	alerts = engine.CheckBatchThresholds(&model.OperationCounts{Pending: PendingBacklogThreshold})
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertPendingBacklog, alerts[0].Type)
	assert.Equal(t, model.SeverityWarning, alerts[0].Severity)

	alerts = engine.CheckBatchThresholds(&model.OperationCounts{Failed: PermanentFailuresThreshold})
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertPermanentFails, alerts[0].Type)
	assert.Equal(t, model.SeverityError, alerts[0].Severity)

	alerts = engine.CheckBatchThresholds(&model.OperationCounts{
		Pending: PendingBacklogThreshold,
		Failed:  PermanentFailuresThreshold,
	})
	assert.Len(t, alerts, 2)
}

func TestSendDebouncesRepeats(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	engine := newTestEngine(sender)

	alert := &model.Alert{
		Type:        model.AlertErrorRateHigh,
		Severity:    model.SeverityWarning,
		Integration: "piperun",
		Timestamp:   time.Now(),
	}

	assert.True(t, engine.Send(ctx, alert))
	assert.False(t, engine.Send(ctx, alert), "repeat within the debounce window")
	assert.Equal(t, 1, sender.count())
}

func TestSendEscalationBypassesDebounce(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	engine := newTestEngine(sender)

	warning := &model.Alert{
		Type:        model.AlertErrorRateHigh,
		Severity:    model.SeverityWarning,
		Integration: "piperun",
		Timestamp:   time.Now(),
	}
	critical := &model.Alert{
		Type:        model.AlertErrorRateHigh,
		Severity:    model.SeverityCritical,
		Integration: "piperun",
		Timestamp:   time.Now(),
	}

	assert.True(t, engine.Send(ctx, warning))
	assert.True(t, engine.Send(ctx, critical), "critical after warning goes through")
	// Critical after critical is an ordinary repeat again.
	assert.False(t, engine.Send(ctx, critical))
	assert.Equal(t, 2, sender.count())
}

func TestSendDifferentKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	engine := newTestEngine(sender)

	a := &model.Alert{Type: model.AlertErrorRateHigh, Severity: model.SeverityWarning, Integration: "piperun"}
	b := &model.Alert{Type: model.AlertErrorRateHigh, Severity: model.SeverityWarning, Integration: "whatsapp"}

	assert.True(t, engine.Send(ctx, a))
	assert.True(t, engine.Send(ctx, b))
	assert.Equal(t, 2, sender.count())
}

func TestSendFailedDeliveryLeavesDebounceOpen(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{fail: true}
	engine := newTestEngine(sender)

	alert := &model.Alert{
		Type:        model.AlertErrorRateHigh,
		Severity:    model.SeverityWarning,
		Integration: "piperun",
	}

	assert.False(t, engine.Send(ctx, alert))
	assert.Equal(t, 0, engine.HistorySize())

	// Channel recovers: the same alert goes straight through because the
	// failed delivery never recorded debounce state.
	sender.mu.Lock()
	sender.fail = false
	sender.mu.Unlock()
	assert.True(t, engine.Send(ctx, alert))
}

func TestSendPartialDeliveryCounts(t *testing.T) {
	ctx := context.Background()
	broken := &fakeSender{fail: true}
	working := &fakeSender{}
	engine := newTestEngine(broken, working)

	alert := &model.Alert{
		Type:        model.AlertAuthFailure,
		Severity:    model.SeverityCritical,
		Integration: "piperun",
	}

	assert.True(t, engine.Send(ctx, alert), "one channel accepting is enough")
	assert.Equal(t, 1, working.count())
}

func TestSendNilAlert(t *testing.T) {
	engine := newTestEngine(&fakeSender{})
	assert.False(t, engine.Send(context.Background(), nil))
}

func TestHistoryIsBounded(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(&fakeSender{})

	for i := 0; i < maxHistoryEntries+50; i++ {
		engine.Send(ctx, &model.Alert{
			Type:        model.AlertErrorRateHigh,
			Severity:    model.SeverityWarning,
			Integration: fmt.Sprintf("integration-%d", i),
		})
	}

	assert.Equal(t, maxHistoryEntries, engine.HistorySize())
}

func TestActiveAlertLifecycle(t *testing.T) {
	engine := newTestEngine()

	assert.False(t, engine.Resolve("piperun"), "nothing active yet")

	engine.SetActive("piperun", &model.Alert{
		Type:        model.AlertErrorRateHigh,
		Integration: "piperun",
	})
	assert.Len(t, engine.ActiveAlerts(), 1)

	assert.True(t, engine.Resolve("piperun"))
	assert.Empty(t, engine.ActiveAlerts())
	assert.False(t, engine.Resolve("piperun"))
}

func TestTrackerLatencyP95(t *testing.T) {
	tracker := NewTracker(0)

	for i := 1; i <= 100; i++ {
		tracker.RecordLatency("piperun", "/deals/sync", float64(i)/10)
	}

	p95, n := tracker.LatencyP95("piperun", "/deals/sync")
	assert.Equal(t, 100, n)
	assert.InDelta(t, 9.6, p95, 0.11)

	p95, n = tracker.LatencyP95("piperun", "/unknown")
	assert.Zero(t, p95)
	assert.Zero(t, n)
}

func TestTrackerIntegrations(t *testing.T) {
	tracker := NewTracker(0)
	tracker.RecordRequest("whatsapp", true)
	tracker.RecordRequest("piperun", false)

	assert.Equal(t, []string{"piperun", "whatsapp"}, tracker.Integrations())
}
