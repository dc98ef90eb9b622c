package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kwamina/walletbridge/internal/observability"
	"github.com/kwamina/walletbridge/internal/service"
)

// StateSweeper removes expired OAuth link states. Expiry is already enforced
// at consume time; the sweeper only keeps the table from growing without
// bound.
type StateSweeper struct {
	states   *service.OAuthStateService
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewStateSweeper constructs a sweeper with a default hourly interval.
func NewStateSweeper(states *service.OAuthStateService) *StateSweeper {
	return &StateSweeper{
		states:   states,
		interval: time.Hour,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the sweep interval.
func (w *StateSweeper) WithInterval(interval time.Duration) *StateSweeper {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and sweeps at the configured interval.
func (w *StateSweeper) Start(ctx context.Context) {
	zap.L().Info("oauth state sweeper starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("oauth state sweeper context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("oauth state sweeper stop signal received")
			return
		case <-ticker.C:
			w.sweepOnce(ctx)
		}
	}
}

// Stop stops the running sweeper loop.
func (w *StateSweeper) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the sweeper in a goroutine and returns a stop function.
func (w *StateSweeper) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// SweepOnce runs a single sweep immediately. Useful for tests and manual
// triggering.
func (w *StateSweeper) SweepOnce(ctx context.Context) error {
	swept, err := w.states.SweepExpired(ctx)
	if err != nil {
		return err
	}
	observability.AddSweptStates(swept)
	if swept > 0 {
		zap.L().Info("swept expired oauth states", zap.Int64("count", swept))
	}
	return nil
}

func (w *StateSweeper) sweepOnce(ctx context.Context) {
	if err := w.SweepOnce(ctx); err != nil {
		observability.IncrementWorkerRun("state_sweeper", "failed")
		zap.L().Error("oauth state sweep failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("state_sweeper", "success")
}
