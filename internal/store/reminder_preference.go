package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/homestead/internal/database"
	"github.com/dukerupert/homestead/internal/model"
)

type ReminderPreferenceStore struct {
	db database.DBTX
}

func NewReminderPreferenceStore(db database.DBTX) *ReminderPreferenceStore {
	return &ReminderPreferenceStore{db: db}
}

// WithTx returns a ReminderPreferenceStore bound to tx.
func (s *ReminderPreferenceStore) WithTx(tx *sql.Tx) *ReminderPreferenceStore {
	return &ReminderPreferenceStore{db: tx}
}

func scanPreference(scanner interface{ Scan(...any) error }) (*model.ReminderPreference, error) {
	var p model.ReminderPreference
	var enabledInt int
	err := scanner.Scan(&p.ID, &p.UserID, &p.Name, &p.LeadTime, &enabledInt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Enabled = enabledInt != 0
	return &p, nil
}

const preferenceCols = `id, user_id, name, lead_time, enabled, created_at, updated_at`

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *ReminderPreferenceStore) Create(ctx context.Context, userID int64, name string, leadTime int64, enabled bool) (*model.ReminderPreference, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO reminder_preferences (user_id, name, lead_time, enabled) VALUES (?, ?, ?, ?)`,
		userID, name, leadTime, boolInt(enabled),
	)
	if err != nil {
		return nil, fmt.Errorf("insert reminder preference: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id, userID)
}

// CreateDefaults seeds the default preferences for a user that has none.
// It returns nil without writing when the user already has preferences.
func (s *ReminderPreferenceStore) CreateDefaults(ctx context.Context, userID int64) ([]model.ReminderPreference, error) {
	var created []model.ReminderPreference
	err := database.InTx(ctx, s.db, func(q database.DBTX) error {
		var count int
		if err := q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM reminder_preferences WHERE user_id = ?`, userID,
		).Scan(&count); err != nil {
			return fmt.Errorf("count reminder preferences: %w", err)
		}
		if count > 0 {
			return nil
		}

		tx := NewReminderPreferenceStore(q)
		for _, d := range model.DefaultReminderPreferences() {
			p, err := tx.Create(ctx, userID, d.Name, d.LeadTime, d.Enabled)
			if err != nil {
				return fmt.Errorf("seed reminder preference %q: %w", d.Name, err)
			}
			created = append(created, *p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *ReminderPreferenceStore) GetByID(ctx context.Context, id, userID int64) (*model.ReminderPreference, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+preferenceCols+` FROM reminder_preferences WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	p, err := scanPreference(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder preference: %w", err)
	}
	return p, nil
}

func (s *ReminderPreferenceStore) ListByUser(ctx context.Context, userID int64) ([]model.ReminderPreference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+preferenceCols+` FROM reminder_preferences WHERE user_id = ? ORDER BY lead_time ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reminder preferences: %w", err)
	}
	defer rows.Close()

	var prefs []model.ReminderPreference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder preference: %w", err)
		}
		prefs = append(prefs, *p)
	}
	return prefs, rows.Err()
}

// ListByUsers returns every preference of the given users, keyed by user id.
// Disabled preferences are included; callers decide what to do with them.
func (s *ReminderPreferenceStore) ListByUsers(ctx context.Context, userIDs []int64) (map[int64][]model.ReminderPreference, error) {
	out := make(map[int64][]model.ReminderPreference, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+preferenceCols+` FROM reminder_preferences
		 WHERE user_id IN (`+placeholders(len(userIDs))+`)
		 ORDER BY user_id ASC, lead_time ASC, id ASC`,
		int64Args(userIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("list reminder preferences by users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder preference: %w", err)
		}
		out[p.UserID] = append(out[p.UserID], *p)
	}
	return out, rows.Err()
}

func (s *ReminderPreferenceStore) Update(ctx context.Context, id, userID int64, name string, leadTime int64, enabled bool) (*model.ReminderPreference, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminder_preferences SET name = ?, lead_time = ?, enabled = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND user_id = ?`,
		name, leadTime, boolInt(enabled), id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update reminder preference: %w", err)
	}
	return s.GetByID(ctx, id, userID)
}

// Toggle flips the enabled flag and returns the updated preference.
func (s *ReminderPreferenceStore) Toggle(ctx context.Context, id, userID int64) (*model.ReminderPreference, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminder_preferences SET enabled = 1 - enabled, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("toggle reminder preference: %w", err)
	}
	return s.GetByID(ctx, id, userID)
}

func (s *ReminderPreferenceStore) Delete(ctx context.Context, id, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM reminder_preferences WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete reminder preference: %w", err)
	}
	return nil
}
