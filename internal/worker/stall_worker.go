package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayo6706/stablesend/internal/observability"
	"github.com/ayo6706/stablesend/internal/service"
)

// StallWorker periodically sweeps for transfer records stuck between stages.
type StallWorker struct {
	monitor  *service.StallMonitor
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewStallWorker constructs a worker with a default hourly interval.
func NewStallWorker(monitor *service.StallMonitor) *StallWorker {
	return &StallWorker{
		monitor:  monitor,
		interval: time.Hour,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the sweep interval.
func (w *StallWorker) WithInterval(interval time.Duration) *StallWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and sweeps at the configured interval.
func (w *StallWorker) Start(ctx context.Context) {
	zap.L().Info("stall worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately at startup.
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("stall worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("stall worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *StallWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *StallWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *StallWorker) runOnce(ctx context.Context) {
	count, err := w.monitor.Sweep(ctx)
	if err != nil {
		observability.IncrementWorkerRun("stall", "failed")
		zap.L().Error("stall sweep failed", zap.Error(err))
		return
	}
	if count > 0 {
		zap.L().Warn("stalled transfers found", zap.Int("count", count))
	}
	observability.IncrementWorkerRun("stall", "success")
}
