package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reconciler rolls partial conversions forward and reports how many it finished.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// ReconciliationWorker runs a Reconciler on a fixed interval.
type ReconciliationWorker struct {
	reconciler Reconciler
	interval   time.Duration
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReconciliationWorker creates the worker.
func NewReconciliationWorker(reconciler Reconciler, interval time.Duration, logger *zap.Logger) *ReconciliationWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationWorker{reconciler: reconciler, interval: interval, logger: logger}
}

// Start runs one pass immediately and then one per interval until Stop or ctx is done.
func (w *ReconciliationWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		w.runOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.runOnce(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the current pass.
func (w *ReconciliationWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *ReconciliationWorker) runOnce(ctx context.Context) {
	done, err := w.reconciler.Reconcile(ctx)
	if err != nil {
		w.logger.Error("conversion reconciliation failed", zap.Error(err))
		return
	}
	if done > 0 {
		w.logger.Info("conversions reconciled", zap.Int("count", done))
	}
}
