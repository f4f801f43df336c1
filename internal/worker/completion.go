// Package worker runs the background sweep that completes experiments whose
// scheduled end date has passed or whose sample size target has been met.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/experiment-engine/internal/domain"
	"github.com/ignite/experiment-engine/internal/pkg/logger"
	"github.com/ignite/experiment-engine/internal/service/experiment"
)

// DefaultInterval is how often the sweep runs.
const DefaultInterval = time.Minute

// ExperimentService is the slice of the experiment engine the worker needs.
type ExperimentService interface {
	List(ctx context.Context, f experiment.ListFilter) ([]domain.Experiment, int, error)
	VariantSummaries(ctx context.Context, experimentID string) ([]experiment.VariantSummary, error)
	Complete(ctx context.Context, id string) (*domain.Experiment, error)
}

// Locker guards the sweep so only one instance runs it at a time. A nil
// Locker means single-instance deployment; the sweep runs unguarded.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// CompletionWorker periodically scans active experiments and completes the
// ones that have run their course.
type CompletionWorker struct {
	svc      ExperimentService
	lock     Locker
	interval time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	active bool
}

// New creates a completion worker. interval <= 0 defaults to DefaultInterval.
func New(svc ExperimentService, lock Locker, interval time.Duration) *CompletionWorker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &CompletionWorker{
		svc:      svc,
		lock:     lock,
		interval: interval,
		now:      time.Now,
	}
}

// Start launches the sweep loop. Calling Start on a running worker is a
// no-op.
func (w *CompletionWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active {
		return
	}
	w.active = true

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)
	go w.runLoop(ctx)
	logger.Info("completion worker started", "interval", w.interval.String())
}

// Stop signals the loop to exit and waits for the in-flight sweep to finish.
func (w *CompletionWorker) Stop() {
	w.mu.Lock()
	if !w.active {
		w.mu.Unlock()
		return
	}
	w.active = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	logger.Info("completion worker stopped")
}

func (w *CompletionWorker) runLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				logger.Error("completion sweep failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single sweep. Exported so operators and tests can
// trigger it directly.
func (w *CompletionWorker) RunOnce(ctx context.Context) error {
	if w.lock != nil {
		ok, err := w.lock.Acquire(ctx)
		if err != nil {
			return err
		}
		if !ok {
			logger.Debug("completion sweep skipped, lock held elsewhere")
			return nil
		}
		defer func() {
			if err := w.lock.Release(ctx); err != nil {
				logger.Warn("completion lock release failed", "error", err)
			}
		}()
	}

	active, _, err := w.svc.List(ctx, experiment.ListFilter{Status: string(domain.ExperimentActive)})
	if err != nil {
		return err
	}

	for _, e := range active {
		reason, done := w.shouldComplete(ctx, &e)
		if !done {
			continue
		}
		if _, err := w.svc.Complete(ctx, e.ID); err != nil {
			logger.Error("auto-complete failed", "experiment_id", e.ID, "error", err)
			continue
		}
		logger.Info("experiment auto-completed", "experiment_id", e.ID, "reason", reason)
	}
	return nil
}

// shouldComplete reports whether an active experiment is past its scheduled
// end date, or has every variant at or above the sample size target.
func (w *CompletionWorker) shouldComplete(ctx context.Context, e *domain.Experiment) (string, bool) {
	if e.EndDate != nil && w.now().After(*e.EndDate) {
		return "end date reached", true
	}
	if e.SampleSizeTarget <= 0 {
		return "", false
	}

	summaries, err := w.svc.VariantSummaries(ctx, e.ID)
	if err != nil {
		logger.Warn("sample size check failed", "experiment_id", e.ID, "error", err)
		return "", false
	}
	if len(summaries) == 0 {
		return "", false
	}
	for _, s := range summaries {
		if s.SampleSize < e.SampleSizeTarget {
			return "", false
		}
	}
	return "sample size target met", true
}
