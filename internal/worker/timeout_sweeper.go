package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper expires overdue help requests.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// TimeoutSweeper runs Sweep on a fixed interval so deadlines pass even when
// nobody reads the ledger.
type TimeoutSweeper struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger
}

// NewTimeoutSweeper creates the background sweeper. A non-positive
// interval disables it.
func NewTimeoutSweeper(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *TimeoutSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimeoutSweeper{sweeper: sweeper, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled.
func (w *TimeoutSweeper) Run(ctx context.Context) error {
	if w.sweeper == nil || w.interval <= 0 {
		w.logger.Info("timeout sweeper disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("timeout sweeper started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("timeout sweeper stopped")
			return nil
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *TimeoutSweeper) tick(ctx context.Context) {
	n, err := w.sweeper.Sweep(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Warn("timeout sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		w.logger.Debug("timeout sweep", zap.Int("expired", n))
	}
}
