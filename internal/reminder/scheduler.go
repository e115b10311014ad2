package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/homestead/internal/model"
)

// Task is the input to scheduling: a deadline and who should be reminded.
type Task struct {
	ID        int64
	Deadline  *time.Time
	Assignees []Assignee
}

type Assignee struct {
	UserID      int64
	Preferences []model.ReminderPreference
}

// Replacer atomically swaps a task's reminder set.
type Replacer interface {
	ReplaceForTask(ctx context.Context, taskID int64, reminders []model.ScheduledReminder) error
}

// Plan derives one reminder per enabled preference per assignee. It returns
// nil for a task without a deadline.
func Plan(task Task) []model.ScheduledReminder {
	if task.Deadline == nil {
		return nil
	}
	deadline := task.Deadline.Unix()

	var out []model.ScheduledReminder
	for _, a := range task.Assignees {
		for _, p := range a.Preferences {
			if !p.Enabled {
				continue
			}
			prefID := p.ID
			out = append(out, model.ScheduledReminder{
				TaskID:       task.ID,
				PreferenceID: &prefID,
				RecipientID:  a.UserID,
				FireAt:       time.Unix(deadline-p.LeadTime, 0).UTC(),
			})
		}
	}
	return out
}

// Scheduler persists the planned reminders for a task.
type Scheduler struct {
	logger  *slog.Logger
	metrics *Metrics
}

func NewScheduler(logger *slog.Logger, metrics *Metrics) *Scheduler {
	return &Scheduler{
		logger:  logger.With("component", "reminder_scheduler"),
		metrics: metrics,
	}
}

// Schedule replaces the task's reminders with a fresh plan through w and
// returns how many were written. Reminders whose fire time has already
// passed are kept; the next sweep delivers them. A task without a deadline
// is left untouched.
func (s *Scheduler) Schedule(ctx context.Context, w Replacer, task Task) (int, error) {
	if task.Deadline == nil {
		return 0, nil
	}

	planned := Plan(task)
	if err := w.ReplaceForTask(ctx, task.ID, planned); err != nil {
		return 0, fmt.Errorf("schedule task %d: %w", task.ID, err)
	}

	s.metrics.addScheduled(len(planned))
	s.logger.Debug("reminders scheduled", "task_id", task.ID, "count", len(planned))
	return len(planned), nil
}
