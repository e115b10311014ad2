// Package task implements task writes and keeps each task's scheduled
// reminders in step with its deadline and assignees.
package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/dukerupert/homestead/internal/database"
	"github.com/dukerupert/homestead/internal/model"
	"github.com/dukerupert/homestead/internal/reminder"
	"github.com/dukerupert/homestead/internal/store"
)

var (
	ErrNotFound        = errors.New("task not found")
	ErrForbidden       = errors.New("only the task owner or a household admin may change this task")
	ErrTitleRequired   = errors.New("title is required")
	ErrTitleTooLong    = errors.New("title must be at most 255 characters")
	ErrInvalidStatus   = errors.New("status must be one of todo, in_progress, completed")
	ErrInvalidAssignee = errors.New("assigned users must be members of the household")
	ErrInvalidGroup    = errors.New("group not found")
	ErrMemberNotFound  = errors.New("member not found")
)

// IsValidation reports whether err is caused by bad input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrTitleRequired) || errors.Is(err, ErrTitleTooLong) ||
		errors.Is(err, ErrInvalidStatus) || errors.Is(err, ErrInvalidAssignee) ||
		errors.Is(err, ErrInvalidGroup)
}

// Params are the writable task fields. On update a nil Assigned leaves the
// assignees unchanged; an empty slice clears them.
type Params struct {
	Title       string
	Description string
	Status      string
	Deadline    *time.Time
	GroupID     *int64
	Assigned    []int64
}

// Actor is the user performing a task write.
type Actor struct {
	UserID      int64
	HouseholdID int64
	Role        string
}

func (a Actor) canModify(t *model.Task) bool {
	return a.Role == model.RoleAdmin || t.OwnerID == a.UserID
}

type Service struct {
	db        *sql.DB
	tasks     *store.TaskStore
	reminders *store.ScheduledReminderStore
	scheduler *reminder.Scheduler
	logger    *slog.Logger
}

func NewService(db *sql.DB, scheduler *reminder.Scheduler, logger *slog.Logger) *Service {
	return &Service{
		db:        db,
		tasks:     store.NewTaskStore(db),
		reminders: store.NewScheduledReminderStore(db),
		scheduler: scheduler,
		logger:    logger.With("component", "task_service"),
	}
}

func (s *Service) Get(ctx context.Context, householdID, id int64) (*model.Task, error) {
	t, err := s.tasks.GetByID(ctx, id, householdID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, householdID int64, f model.TaskFilter) ([]model.Task, error) {
	return s.tasks.List(ctx, householdID, f)
}

// ListForUser lists the household's tasks assigned to userID, narrowed by f.
func (s *Service) ListForUser(ctx context.Context, householdID, userID int64, f model.TaskFilter) ([]model.Task, error) {
	m, err := store.NewHouseholdStore(s.db).GetMember(ctx, householdID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMemberNotFound
	}
	f.Assigned = []int64{userID}
	return s.tasks.List(ctx, householdID, f)
}

// Reminders lists the scheduled reminders of a task.
func (s *Service) Reminders(ctx context.Context, householdID, id int64) ([]model.ScheduledReminder, error) {
	if _, err := s.Get(ctx, householdID, id); err != nil {
		return nil, err
	}
	return s.reminders.ListByTask(ctx, id)
}

// Create inserts a task owned by the actor and schedules its reminders in the
// same transaction.
func (s *Service) Create(ctx context.Context, actor Actor, p Params) (*model.Task, error) {
	assigned := dedupe(p.Assigned)
	if err := validate(p); err != nil {
		return nil, err
	}

	var created *model.Task
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := checkRefs(ctx, tx, actor.HouseholdID, p.GroupID, assigned); err != nil {
			return err
		}
		tasks := s.tasks.WithTx(tx)
		t, err := tasks.Create(ctx, actor.HouseholdID, actor.UserID, storeParams(p))
		if err != nil {
			return err
		}
		if err := tasks.SetAssignees(ctx, t.ID, assigned); err != nil {
			return err
		}
		t.Assigned = assigned
		if t.Deadline != nil {
			if err := s.schedule(ctx, tx, t); err != nil {
				return err
			}
		}
		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("task created", "task_id", created.ID, "household_id", actor.HouseholdID, "assigned", len(created.Assigned))
	return created, nil
}

// Update replaces the task's fields. Reminders are rebuilt only when the
// deadline or the assignee set changes, and dropped when the deadline is
// cleared.
func (s *Service) Update(ctx context.Context, actor Actor, id int64, p Params) (*model.Task, error) {
	if err := validate(p); err != nil {
		return nil, err
	}

	var updated *model.Task
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		tasks := s.tasks.WithTx(tx)
		existing, err := tasks.GetByID(ctx, id, actor.HouseholdID)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrNotFound
		}
		if !actor.canModify(existing) {
			return ErrForbidden
		}

		assigned := existing.Assigned
		assigneesChanged := false
		if p.Assigned != nil {
			assigned = dedupe(p.Assigned)
			assigneesChanged = !slices.Equal(assigned, existing.Assigned)
		}
		if err := checkRefs(ctx, tx, actor.HouseholdID, p.GroupID, assigned); err != nil {
			return err
		}

		t, err := tasks.Update(ctx, id, actor.HouseholdID, storeParams(p))
		if err != nil {
			return err
		}
		if assigneesChanged {
			if err := tasks.SetAssignees(ctx, id, assigned); err != nil {
				return err
			}
		}
		t.Assigned = assigned

		switch {
		case t.Deadline == nil && existing.Deadline != nil:
			if err := s.reminders.WithTx(tx).DeleteForTask(ctx, id); err != nil {
				return err
			}
		case t.Deadline != nil && (assigneesChanged || !sameInstant(t.Deadline, existing.Deadline)):
			if err := s.schedule(ctx, tx, t); err != nil {
				return err
			}
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("task updated", "task_id", id, "household_id", actor.HouseholdID)
	return updated, nil
}

// Delete removes the task; its assignees and reminders go with it.
func (s *Service) Delete(ctx context.Context, actor Actor, id int64) error {
	existing, err := s.tasks.GetByID(ctx, id, actor.HouseholdID)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrNotFound
	}
	if !actor.canModify(existing) {
		return ErrForbidden
	}
	if err := s.tasks.Delete(ctx, id, actor.HouseholdID); err != nil {
		return err
	}
	s.logger.Info("task deleted", "task_id", id, "household_id", actor.HouseholdID)
	return nil
}

// RemoveMember takes the user out of the household. Their assignments on the
// household's tasks are dropped and each affected task is rescheduled for the
// assignees that remain, all in one transaction.
func (s *Service) RemoveMember(ctx context.Context, householdID, userID int64) error {
	var affected []int64
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		households := store.NewHouseholdStore(tx)
		m, err := households.GetMember(ctx, householdID, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrMemberNotFound
		}
		if err := households.RemoveMember(ctx, householdID, userID); err != nil {
			return err
		}

		tasks := s.tasks.WithTx(tx)
		affected, err = tasks.RemoveAssignee(ctx, householdID, userID)
		if err != nil {
			return err
		}
		for _, id := range affected {
			t, err := tasks.GetByID(ctx, id, householdID)
			if err != nil {
				return err
			}
			if t == nil || t.Deadline == nil {
				continue
			}
			if err := s.schedule(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("member removed", "household_id", householdID, "user_id", userID, "tasks_rescheduled", len(affected))
	return nil
}

func (s *Service) schedule(ctx context.Context, tx *sql.Tx, t *model.Task) error {
	prefs, err := store.NewReminderPreferenceStore(tx).ListByUsers(ctx, t.Assigned)
	if err != nil {
		return err
	}
	in := reminder.Task{ID: t.ID, Deadline: t.Deadline}
	for _, uid := range t.Assigned {
		in.Assignees = append(in.Assignees, reminder.Assignee{UserID: uid, Preferences: prefs[uid]})
	}
	_, err = s.scheduler.Schedule(ctx, s.reminders.WithTx(tx), in)
	return err
}

func validate(p Params) error {
	if p.Title == "" {
		return ErrTitleRequired
	}
	if utf8.RuneCountInString(p.Title) > 255 {
		return ErrTitleTooLong
	}
	if p.Status != "" && !model.ValidTaskStatus(p.Status) {
		return ErrInvalidStatus
	}
	return nil
}

func checkRefs(ctx context.Context, tx *sql.Tx, householdID int64, groupID *int64, assigned []int64) error {
	if groupID != nil {
		g, err := store.NewGroupStore(tx).GetByID(ctx, *groupID, householdID)
		if err != nil {
			return err
		}
		if g == nil {
			return ErrInvalidGroup
		}
	}
	if len(assigned) > 0 {
		n, err := store.NewHouseholdStore(tx).CountMembers(ctx, householdID, assigned)
		if err != nil {
			return fmt.Errorf("check assignees: %w", err)
		}
		if n != len(assigned) {
			return ErrInvalidAssignee
		}
	}
	return nil
}

func storeParams(p Params) store.TaskParams {
	return store.TaskParams{
		Title:       p.Title,
		Description: p.Description,
		Status:      p.Status,
		Deadline:    p.Deadline,
		GroupID:     p.GroupID,
	}
}

// dedupe returns the sorted distinct ids, never nil.
func dedupe(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []int64{}
	}
	return out
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Unix() == b.Unix()
}
