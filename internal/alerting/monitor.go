package alerting

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vendaflow/sdr-platform/pkg/logger"
)

// DefaultMonitorInterval is how often the monitor re-evaluates tracked
// integrations.
const DefaultMonitorInterval = 60 * time.Second

// Monitor periodically recomputes the windowed error rate for every tracked
// integration, raising alerts over threshold and resolving active alerts for
// recovered integrations on every cycle.
type Monitor struct {
	engine   *Engine
	interval time.Duration
	logger   *logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewMonitor creates a monitor over the given engine.
func NewMonitor(engine *Engine, interval time.Duration, log *logger.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &Monitor{
		engine:   engine,
		interval: interval,
		logger:   log,
	}
}

// Start launches the monitor loop in a background goroutine.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.logger.Info("alert monitor started", zap.Duration("interval", m.interval))
		for {
			select {
			case <-ctx.Done():
				m.logger.Info("alert monitor stopped")
				return
			case <-ticker.C:
				m.runCycle(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the in-flight cycle to finish. An
// in-flight check is not interrupted; the loop simply does not reschedule.
func (m *Monitor) Stop() {
	m.once.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		if m.done != nil {
			<-m.done
		}
	})
}

func (m *Monitor) runCycle(ctx context.Context) {
	for _, integration := range m.engine.Tracker().Integrations() {
		alert := m.engine.CheckErrorRate(integration)
		if alert == nil {
			if m.engine.Resolve(integration) {
				m.logger.Info("error-rate alert resolved",
					zap.String("integration", integration),
				)
			}
			continue
		}

		m.engine.SetActive(integration, alert)
		m.engine.Send(ctx, alert)
	}
}
