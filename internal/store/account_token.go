package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dukerupert/homestead/internal/database"
	"github.com/dukerupert/homestead/internal/model"
)

type AccountTokenStore struct {
	db database.DBTX
}

func NewAccountTokenStore(db database.DBTX) *AccountTokenStore {
	return &AccountTokenStore{db: db}
}

// WithTx returns an AccountTokenStore bound to tx.
func (s *AccountTokenStore) WithTx(tx *sql.Tx) *AccountTokenStore {
	return &AccountTokenStore{db: tx}
}

func scanAccountToken(scanner interface{ Scan(...any) error }) (*model.AccountToken, error) {
	var t model.AccountToken
	var householdID, invitedBy, usedAt sql.NullInt64
	var expiresAt int64

	err := scanner.Scan(
		&t.ID, &t.Token, &t.Email, &t.Purpose, &householdID, &invitedBy,
		&expiresAt, &usedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.HouseholdID = fromNullInt64(householdID)
	t.InvitedBy = fromNullInt64(invitedBy)
	t.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	t.UsedAt = fromNullUnix(usedAt)
	return &t, nil
}

const accountTokenCols = `id, token, email, purpose, household_id, invited_by, expires_at, used_at, created_at`

func generateAccountToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Create issues a token for email valid for ttl. Pending tokens for the same
// email and purpose are invalidated first, so only the latest one works.
func (s *AccountTokenStore) Create(ctx context.Context, email, purpose string, householdID, invitedBy *int64, ttl time.Duration) (*model.AccountToken, error) {
	var created *model.AccountToken
	err := database.InTx(ctx, s.db, func(q database.DBTX) error {
		now := time.Now().UTC()
		_, err := q.ExecContext(ctx,
			`UPDATE account_tokens SET used_at = ?
			 WHERE email = ? AND purpose = ? AND used_at IS NULL AND expires_at > ?`,
			now.Unix(), email, purpose, now.Unix(),
		)
		if err != nil {
			return fmt.Errorf("invalidate previous tokens: %w", err)
		}

		token, err := generateAccountToken()
		if err != nil {
			return err
		}
		result, err := q.ExecContext(ctx,
			`INSERT INTO account_tokens (token, email, purpose, household_id, invited_by, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			token, email, purpose, nullInt64(householdID), nullInt64(invitedBy), now.Add(ttl).Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert account token: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		row := q.QueryRowContext(ctx, `SELECT `+accountTokenCols+` FROM account_tokens WHERE id = ?`, id)
		created, err = scanAccountToken(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetPending returns the unused, unexpired token with the given purpose, or nil.
func (s *AccountTokenStore) GetPending(ctx context.Context, token, purpose string) (*model.AccountToken, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountTokenCols+` FROM account_tokens
		 WHERE token = ? AND purpose = ? AND used_at IS NULL AND expires_at > ?`,
		token, purpose, time.Now().Unix(),
	)
	t, err := scanAccountToken(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account token: %w", err)
	}
	return t, nil
}

// ListPendingInvites returns the household's open invitations, newest first.
func (s *AccountTokenStore) ListPendingInvites(ctx context.Context, householdID int64) ([]model.AccountToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountTokenCols+` FROM account_tokens
		 WHERE household_id = ? AND purpose = ? AND used_at IS NULL AND expires_at > ?
		 ORDER BY id DESC`,
		householdID, model.TokenPurposeInvite, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()

	var tokens []model.AccountToken
	for rows.Next() {
		t, err := scanAccountToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		tokens = append(tokens, *t)
	}
	return tokens, rows.Err()
}

func (s *AccountTokenStore) MarkUsed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE account_tokens SET used_at = ? WHERE id = ?`,
		time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("mark token used: %w", err)
	}
	return nil
}

// DeleteExpired removes tokens that are used or past their expiry.
func (s *AccountTokenStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM account_tokens WHERE expires_at <= ? OR used_at IS NOT NULL`,
		time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
