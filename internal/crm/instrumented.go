package crm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vendaflow/sdr-platform/internal/alerting"
	"github.com/vendaflow/sdr-platform/pkg/metrics"
)

// InstrumentedSyncer decorates a DealSyncer with integration-health
// instrumentation: sync duration metrics, request and latency samples for
// the alert tracker, immediate auth-failure alerts and a latency check after
// every call. The alert engine may be nil, in which case only the Prometheus
// metric is recorded.
type InstrumentedSyncer struct {
	inner       DealSyncer
	alerts      *alerting.Engine
	integration string
	endpoint    string
}

// NewInstrumentedSyncer wraps a deal syncer.
func NewInstrumentedSyncer(inner DealSyncer, alerts *alerting.Engine) *InstrumentedSyncer {
	return &InstrumentedSyncer{
		inner:       inner,
		alerts:      alerts,
		integration: "piperun",
		endpoint:    "/deals/sync",
	}
}

// SyncDeal delegates to the wrapped syncer and records the outcome.
func (s *InstrumentedSyncer) SyncDeal(ctx context.Context, req *DealSyncRequest) (int64, error) {
	start := time.Now()
	dealID, err := s.inner.SyncDeal(ctx, req)
	elapsed := time.Since(start).Seconds()

	status := "ok"
	if err != nil {
		status = "error"
		var se *StatusError
		if errors.As(err, &se) {
			status = fmt.Sprintf("%d", se.Code)
		}
	}
	metrics.CRMSyncDuration.WithLabelValues(status).Observe(elapsed)

	if s.alerts == nil {
		return dealID, err
	}

	tracker := s.alerts.Tracker()
	tracker.RecordRequest(s.integration, err == nil)
	tracker.RecordLatency(s.integration, s.endpoint, elapsed)

	var se *StatusError
	if errors.As(err, &se) {
		s.alerts.NotifyAuthFailure(ctx, s.integration, s.endpoint, se.Code)
	}

	if p95, n := tracker.LatencyP95(s.integration, s.endpoint); n > 0 {
		if alert := s.alerts.CheckLatency(s.integration, s.endpoint, p95); alert != nil {
			s.alerts.Send(ctx, alert)
		}
	}

	return dealID, err
}
