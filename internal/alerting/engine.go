package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vendaflow/sdr-platform/internal/model"
	"github.com/vendaflow/sdr-platform/pkg/logger"
	"github.com/vendaflow/sdr-platform/pkg/metrics"
)

// Threshold defaults for the engine's checks.
const (
	ErrorRateWarningThreshold  = 0.10
	ErrorRateCriticalThreshold = 0.25
	DefaultLatencyThreshold    = 10.0
	PendingBacklogThreshold    = 50
	PermanentFailuresThreshold = 10
	DefaultDebounceWindow      = 15 * time.Minute

	maxHistoryEntries = 100
)

type sentAlert struct {
	alert  model.Alert
	sentAt time.Time
}

// Engine evaluates alert thresholds and delivers alerts through the
// configured senders with debounce and escalation semantics.
//
// The mutex guards the debounce check, delivery and bookkeeping as one
// critical section so two concurrent alerts for the same key cannot both
// pass the debounce window.
type Engine struct {
	tracker          *Tracker
	senders          []Sender
	debounce         time.Duration
	latencyThreshold float64
	logger           *logger.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
	history  []sentAlert
	active   map[string]*model.Alert
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	DebounceWindow   time.Duration
	LatencyThreshold float64
}

// NewEngine creates an alert engine over the given tracker and senders.
func NewEngine(tracker *Tracker, senders []Sender, cfg EngineConfig, log *logger.Logger) *Engine {
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	if cfg.LatencyThreshold <= 0 {
		cfg.LatencyThreshold = DefaultLatencyThreshold
	}
	return &Engine{
		tracker:          tracker,
		senders:          senders,
		debounce:         cfg.DebounceWindow,
		latencyThreshold: cfg.LatencyThreshold,
		logger:           log,
		lastSent:         make(map[string]time.Time),
		active:           make(map[string]*model.Alert),
	}
}

// Tracker returns the engine's request tracker.
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// CheckErrorRate evaluates the windowed error rate for an integration and
// returns an alert value, or nil when the rate is under threshold or no
// requests were recorded.
func (e *Engine) CheckErrorRate(integration string) *model.Alert {
	rate, total := e.tracker.ErrorRate(integration)
	if total == 0 || rate < ErrorRateWarningThreshold {
		return nil
	}

	severity := model.SeverityWarning
	if rate >= ErrorRateCriticalThreshold {
		severity = model.SeverityCritical
	}

	return &model.Alert{
		Type:        model.AlertErrorRateHigh,
		Severity:    severity,
		Title:       fmt.Sprintf("High error rate on %s", integration),
		Message:     fmt.Sprintf("%.0f%% of the last %d requests failed", rate*100, total),
		Integration: integration,
		Value:       rate,
		Threshold:   ErrorRateWarningThreshold,
		Timestamp:   time.Now(),
	}
}

// CheckLatency evaluates a P95 latency value against the configured
// threshold. The boundary is exclusive: a value exactly at the threshold
// does not trigger. Twice the threshold escalates to critical.
func (e *Engine) CheckLatency(integration, endpoint string, p95 float64) *model.Alert {
	if p95 <= e.latencyThreshold {
		return nil
	}

	severity := model.SeverityWarning
	if p95 >= 2*e.latencyThreshold {
		severity = model.SeverityCritical
	}

	return &model.Alert{
		Type:        model.AlertLatencyHigh,
		Severity:    severity,
		Title:       fmt.Sprintf("High latency on %s", integration),
		Message:     fmt.Sprintf("P95 latency %.1fs exceeds %.1fs on %s", p95, e.latencyThreshold, endpoint),
		Integration: integration,
		Endpoint:    endpoint,
		Value:       p95,
		Threshold:   e.latencyThreshold,
		Timestamp:   time.Now(),
	}
}

// CheckAuthFailure returns an immediate critical alert for 401/403 responses,
// bypassing the windowed calculation. Any other status yields nil.
func (e *Engine) CheckAuthFailure(integration, endpoint string, statusCode int) *model.Alert {
	if statusCode != 401 && statusCode != 403 {
		return nil
	}

	return &model.Alert{
		Type:        model.AlertAuthFailure,
		Severity:    model.SeverityCritical,
		Title:       fmt.Sprintf("Authentication failure on %s", integration),
		Message:     fmt.Sprintf("%s returned HTTP %d; credentials may be expired", endpoint, statusCode),
		Integration: integration,
		Endpoint:    endpoint,
		Value:       float64(statusCode),
		Timestamp:   time.Now(),
	}
}

// CheckBatchThresholds evaluates the post-batch queue-depth thresholds:
// pending backlog and accumulated permanent failures.
func (e *Engine) CheckBatchThresholds(counts *model.OperationCounts) []*model.Alert {
	var alerts []*model.Alert

	if counts.Pending >= PendingBacklogThreshold {
		alerts = append(alerts, &model.Alert{
			Type:        model.AlertPendingBacklog,
			Severity:    model.SeverityWarning,
			Title:       "High pending operation volume",
			Message:     fmt.Sprintf("%d operations are waiting for CRM sync", counts.Pending),
			Integration: "outbox",
			Value:       float64(counts.Pending),
			Threshold:   PendingBacklogThreshold,
			Timestamp:   time.Now(),
		})
	}

	if counts.Failed >= PermanentFailuresThreshold {
		alerts = append(alerts, &model.Alert{
			Type:        model.AlertPermanentFails,
			Severity:    model.SeverityError,
			Title:       "Permanently failed operations accumulating",
			Message:     fmt.Sprintf("%d operations exhausted their retries and need manual review", counts.Failed),
			Integration: "outbox",
			Value:       float64(counts.Failed),
			Threshold:   PermanentFailuresThreshold,
			Timestamp:   time.Now(),
		})
	}

	return alerts
}

// Send delivers an alert through every configured channel, honoring the
// debounce window and the critical-after-non-critical escalation bypass.
// It returns true when at least one channel accepted the alert. Debounce
// state is only recorded on successful delivery, so a fully failed delivery
// is retried on the next check cycle.
func (e *Engine) Send(ctx context.Context, alert *model.Alert) bool {
	if alert == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	key := alert.DedupKey()
	if last, ok := e.lastSent[key]; ok && time.Since(last) < e.debounce {
		if !e.isEscalation(key, alert) {
			metrics.RecordAlertSuppressed(string(alert.Type))
			e.logger.Debug("alert suppressed by debounce",
				zap.String("dedup_key", key),
				zap.String("severity", string(alert.Severity)),
			)
			return false
		}
		e.logger.Info("escalation bypassing debounce", zap.String("dedup_key", key))
	}

	delivered := false
	for _, sender := range e.senders {
		if err := sender.Send(ctx, alert); err != nil {
			e.logger.Warn("alert delivery failed",
				zap.String("channel", sender.Name()),
				zap.String("dedup_key", key),
				zap.Error(err),
			)
			continue
		}
		delivered = true
	}

	if !delivered {
		return false
	}

	e.lastSent[key] = time.Now()
	e.history = append(e.history, sentAlert{alert: *alert, sentAt: time.Now()})
	if len(e.history) > maxHistoryEntries {
		e.history = e.history[len(e.history)-maxHistoryEntries:]
	}
	metrics.RecordAlertSent(string(alert.Type), string(alert.Severity))
	e.logger.Info("alert sent",
		zap.String("dedup_key", key),
		zap.String("severity", string(alert.Severity)),
		zap.String("title", alert.Title),
	)
	return true
}

// isEscalation reports whether alert is a critical recurrence of a key whose
// most recent sent alert was not critical. Caller holds e.mu.
func (e *Engine) isEscalation(key string, alert *model.Alert) bool {
	if alert.Severity != model.SeverityCritical {
		return false
	}
	for i := len(e.history) - 1; i >= 0; i-- {
		if e.history[i].alert.DedupKey() != key {
			continue
		}
		return e.history[i].alert.Severity != model.SeverityCritical
	}
	return false
}

// NotifyAuthFailure is the synchronous call-site hook for auth failures:
// evaluate and deliver in one step.
func (e *Engine) NotifyAuthFailure(ctx context.Context, integration, endpoint string, statusCode int) bool {
	return e.Send(ctx, e.CheckAuthFailure(integration, endpoint, statusCode))
}

// SetActive records an alert as active for an integration.
func (e *Engine) SetActive(integration string, alert *model.Alert) {
	e.mu.Lock()
	e.active[integration] = alert
	e.mu.Unlock()
}

// Resolve removes the active alert for an integration and reports whether
// one was present.
func (e *Engine) Resolve(integration string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.active[integration]; !ok {
		return false
	}
	delete(e.active, integration)
	return true
}

// ActiveAlerts returns a snapshot of currently active alerts.
func (e *Engine) ActiveAlerts() []model.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.Alert, 0, len(e.active))
	for _, a := range e.active {
		out = append(out, *a)
	}
	return out
}

// HistorySize returns how many sent alerts are retained for escalation
// lookups.
func (e *Engine) HistorySize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.history)
}
