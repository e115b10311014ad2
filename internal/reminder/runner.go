package reminder

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Pruner removes reminders sent before a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// RetentionMonths is how long a sent reminder is kept.
const RetentionMonths = 3

// Prune deletes reminders sent more than RetentionMonths before now.
func Prune(ctx context.Context, p Pruner, now time.Time, logger *slog.Logger, metrics *Metrics) (int64, error) {
	cutoff := now.AddDate(0, -RetentionMonths, 0)
	n, err := p.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.addPruned(n)
	logger.Info("reminders pruned", "count", n, "before", cutoff)
	return n, nil
}

// Runner drives the sweeper once a minute and retention once a day from a
// single goroutine, so sweeps never overlap.
type Runner struct {
	mu            sync.RWMutex
	sweeper       *Sweeper
	pruner        Pruner
	logger        *slog.Logger
	metrics       *Metrics
	sweepInterval time.Duration
	pruneInterval time.Duration
	now           func() time.Time
	cancel        context.CancelFunc
	done          chan struct{}
}

func NewRunner(sweeper *Sweeper, pruner Pruner, logger *slog.Logger, metrics *Metrics, sweepInterval, pruneInterval time.Duration) *Runner {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	if pruneInterval <= 0 {
		pruneInterval = 24 * time.Hour
	}
	return &Runner{
		sweeper:       sweeper,
		pruner:        pruner,
		logger:        logger.With("component", "reminder_runner"),
		metrics:       metrics,
		sweepInterval: sweepInterval,
		pruneInterval: pruneInterval,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the runner loop.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		sweep := time.NewTicker(r.sweepInterval)
		defer sweep.Stop()
		prune := time.NewTicker(r.pruneInterval)
		defer prune.Stop()

		r.logger.Info("reminder runner started", "sweep_interval", r.sweepInterval, "prune_interval", r.pruneInterval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sweep.C:
				r.sweep(ctx)
			case <-prune.C:
				r.prune(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (r *Runner) Stop() {
	r.mu.RLock()
	cancel := r.cancel
	done := r.done
	r.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (r *Runner) sweep(ctx context.Context) {
	if _, err := r.sweeper.Sweep(ctx, r.now()); err != nil {
		r.logger.Error("sweep failed", "error", err)
	}
}

func (r *Runner) prune(ctx context.Context) {
	if _, err := Prune(ctx, r.pruner, r.now(), r.logger, r.metrics); err != nil {
		r.logger.Error("prune failed", "error", err)
	}
}
