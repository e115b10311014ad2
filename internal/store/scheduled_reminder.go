package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/homestead/internal/database"
	"github.com/dukerupert/homestead/internal/model"
)

type ScheduledReminderStore struct {
	db database.DBTX
}

func NewScheduledReminderStore(db database.DBTX) *ScheduledReminderStore {
	return &ScheduledReminderStore{db: db}
}

// WithTx returns a ScheduledReminderStore bound to tx.
func (s *ScheduledReminderStore) WithTx(tx *sql.Tx) *ScheduledReminderStore {
	return &ScheduledReminderStore{db: tx}
}

func scanScheduledReminder(scanner interface{ Scan(...any) error }) (*model.ScheduledReminder, error) {
	var r model.ScheduledReminder
	var prefID, sentAt sql.NullInt64
	var fireAt int64
	err := scanner.Scan(&r.ID, &r.TaskID, &prefID, &r.RecipientID, &fireAt, &sentAt)
	if err != nil {
		return nil, err
	}
	r.PreferenceID = fromNullInt64(prefID)
	r.FireAt = time.Unix(fireAt, 0).UTC()
	r.SentAt = fromNullUnix(sentAt)
	return &r, nil
}

const scheduledReminderCols = `id, task_id, preference_id, recipient_id, fire_at, sent_at`

// ReplaceForTask deletes every reminder of the task and inserts reminders in
// one atomic write. Readers never observe a half-replaced set.
func (s *ScheduledReminderStore) ReplaceForTask(ctx context.Context, taskID int64, reminders []model.ScheduledReminder) error {
	return database.InTx(ctx, s.db, func(q database.DBTX) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM scheduled_reminders WHERE task_id = ?`, taskID); err != nil {
			return fmt.Errorf("delete task reminders: %w", err)
		}
		for _, r := range reminders {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO scheduled_reminders (task_id, preference_id, recipient_id, fire_at) VALUES (?, ?, ?, ?)`,
				taskID, nullInt64(r.PreferenceID), r.RecipientID, r.FireAt.Unix(),
			); err != nil {
				return fmt.Errorf("insert scheduled reminder: %w", err)
			}
		}
		return nil
	})
}

// DeleteForTask removes every reminder of the task.
func (s *ScheduledReminderStore) DeleteForTask(ctx context.Context, taskID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_reminders WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("delete task reminders: %w", err)
	}
	return nil
}

func (s *ScheduledReminderStore) ListByTask(ctx context.Context, taskID int64) ([]model.ScheduledReminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduledReminderCols+` FROM scheduled_reminders WHERE task_id = ? ORDER BY fire_at ASC, id ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list task reminders: %w", err)
	}
	defer rows.Close()

	var reminders []model.ScheduledReminder
	for rows.Next() {
		r, err := scanScheduledReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scheduled reminder: %w", err)
		}
		reminders = append(reminders, *r)
	}
	return reminders, rows.Err()
}

// ListDue returns unsent reminders with fire_at at or before until, each
// loaded with its task and recipient.
func (s *ScheduledReminderStore) ListDue(ctx context.Context, until time.Time) ([]model.DueReminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.task_id, r.preference_id, r.recipient_id, r.fire_at, r.sent_at,
		        t.id, t.household_id, t.owner_id, t.group_id, t.title, t.description, t.status, t.deadline, t.created_at, t.updated_at,
		        u.id, u.email, u.name, u.password_hash, u.created_at, u.updated_at
		 FROM scheduled_reminders r
		 JOIN tasks t ON t.id = r.task_id
		 JOIN users u ON u.id = r.recipient_id
		 WHERE r.sent_at IS NULL AND r.fire_at <= ?
		 ORDER BY r.fire_at ASC, r.id ASC`,
		until.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	defer rows.Close()

	var due []model.DueReminder
	for rows.Next() {
		var d model.DueReminder
		var prefID, sentAt, groupID, deadline sql.NullInt64
		var fireAt int64
		if err := rows.Scan(
			&d.Reminder.ID, &d.Reminder.TaskID, &prefID, &d.Reminder.RecipientID, &fireAt, &sentAt,
			&d.Task.ID, &d.Task.HouseholdID, &d.Task.OwnerID, &groupID, &d.Task.Title, &d.Task.Description,
			&d.Task.Status, &deadline, &d.Task.CreatedAt, &d.Task.UpdatedAt,
			&d.Recipient.ID, &d.Recipient.Email, &d.Recipient.Name, &d.Recipient.PasswordHash,
			&d.Recipient.CreatedAt, &d.Recipient.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan due reminder: %w", err)
		}
		d.Reminder.PreferenceID = fromNullInt64(prefID)
		d.Reminder.FireAt = time.Unix(fireAt, 0).UTC()
		d.Reminder.SentAt = fromNullUnix(sentAt)
		d.Task.GroupID = fromNullInt64(groupID)
		d.Task.Deadline = fromNullUnix(deadline)
		due = append(due, d)
	}
	return due, rows.Err()
}

// MarkSent stamps sent_at on the given reminders in a single update.
// Reminders that are already sent keep their original timestamp.
func (s *ScheduledReminderStore) MarkSent(ctx context.Context, ids []int64, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := append([]any{at.Unix()}, int64Args(ids)...)
	result, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_reminders SET sent_at = ?
		 WHERE sent_at IS NULL AND id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("mark reminders sent: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Prune hard-deletes reminders sent before the cutoff.
func (s *ScheduledReminderStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduled_reminders WHERE sent_at IS NOT NULL AND sent_at < ?`,
		before.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune scheduled reminders: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
