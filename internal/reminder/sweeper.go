package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/homestead/internal/model"
	"github.com/dukerupert/homestead/internal/notify"
)

// DueStore reads due reminders and stamps them sent.
type DueStore interface {
	ListDue(ctx context.Context, until time.Time) ([]model.DueReminder, error)
	MarkSent(ctx context.Context, ids []int64, at time.Time) (int64, error)
}

// Sweeper delivers due reminders. Callers must not run two sweeps at once.
type Sweeper struct {
	store    DueStore
	notifier notify.Notifier
	logger   *slog.Logger
	metrics  *Metrics
}

func NewSweeper(store DueStore, notifier notify.Notifier, logger *slog.Logger, metrics *Metrics) *Sweeper {
	return &Sweeper{
		store:    store,
		notifier: notifier,
		logger:   logger.With("component", "reminder_sweeper"),
		metrics:  metrics,
	}
}

// Sweep notifies every unsent reminder due by the end of now's minute,
// including ones missed by earlier sweeps, then marks all of them sent in one
// update. A failed delivery is logged and still marked sent. It returns the
// number of reminders processed.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()
	windowEnd := now.Truncate(time.Minute).Add(59 * time.Second)

	due, err := s.store.ListDue(ctx, windowEnd)
	if err != nil {
		return 0, fmt.Errorf("sweep reminders: %w", err)
	}
	if len(due) == 0 {
		s.metrics.observeSweep(0, 0, time.Since(start).Seconds())
		return 0, nil
	}

	ids := make([]int64, 0, len(due))
	failed := 0
	for i := range due {
		d := &due[i]
		ids = append(ids, d.Reminder.ID)
		if err := s.notifier.Notify(ctx, &d.Recipient, &d.Task); err != nil {
			failed++
			s.logger.Warn("reminder delivery failed",
				"reminder_id", d.Reminder.ID,
				"task_id", d.Task.ID,
				"recipient_id", d.Recipient.ID,
				"error", err,
			)
		}
	}

	if _, err := s.store.MarkSent(ctx, ids, now); err != nil {
		return 0, fmt.Errorf("sweep reminders: %w", err)
	}

	elapsed := time.Since(start)
	s.metrics.observeSweep(len(due)-failed, failed, elapsed.Seconds())
	s.logger.Info("reminders sent", "count", len(due), "failed", failed, "duration", elapsed)
	return len(due), nil
}
