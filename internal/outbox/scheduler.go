package outbox

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vendaflow/sdr-platform/pkg/logger"
)

// Scheduler drives the retry job on a fixed interval and runs the daily
// retention sweep over completed operations.
type Scheduler struct {
	orchestrator  *Orchestrator
	store         Store
	batchSize     int
	interval      time.Duration
	retentionDays int
	logger        *logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewScheduler creates a scheduler over the given orchestrator.
func NewScheduler(orch *Orchestrator, store Store, batchSize int, interval time.Duration, retentionDays int, log *logger.Logger) *Scheduler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		orchestrator:  orch,
		store:         store,
		batchSize:     batchSize,
		interval:      interval,
		retentionDays: retentionDays,
		logger:        log,
	}
}

// Start launches the scheduling loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		batchTicker := time.NewTicker(s.interval)
		defer batchTicker.Stop()
		sweepTicker := time.NewTicker(24 * time.Hour)
		defer sweepTicker.Stop()

		s.logger.Info("outbox scheduler started",
			zap.Duration("interval", s.interval),
			zap.Int("batch_size", s.batchSize),
		)

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("outbox scheduler stopped")
				return
			case <-batchTicker.C:
				s.orchestrator.ProcessBatch(ctx, s.batchSize, true)
			case <-sweepTicker.C:
				s.runRetentionSweep(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight batch to finish. A
// running batch is not interrupted mid-operation; the loop just does not
// reschedule.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.done != nil {
			<-s.done
		}
	})
}

func (s *Scheduler) runRetentionSweep(ctx context.Context) {
	if s.retentionDays <= 0 {
		return
	}

	removed, err := s.store.DeleteCompletedOlderThan(ctx, s.retentionDays)
	if err != nil {
		s.logger.Warn("retention sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("retention sweep removed completed operations",
			zap.Int("removed", removed),
			zap.Int("retention_days", s.retentionDays),
		)
	}
}
