package database

import (
	"context"
	"database/sql"
	"strings"

	"cryptotrack-alerts/internal/types"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ResolveNotificationAddress returns the user's email, or "" when none is on file.
func (s *SQLiteStore) ResolveNotificationAddress(ctx context.Context, userID string) (string, error) {
	var email sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT email FROM users WHERE id = ?;`, userID).Scan(&email)
	if err == sql.ErrNoRows {
		return "", nil
	} else if err != nil {
		return "", errors.Wrapf(types.ErrStoreUnavailable, "failed to look up user %s: %v", userID, err)
	}
	return strings.TrimSpace(email.String), nil
}

// UpsertUser saves a user's contact address. An empty ID is replaced with a fresh UUID.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u *types.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	query := `INSERT INTO users (id, email) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET email = excluded.email;`
	if _, err := s.db.ExecContext(ctx, query, u.ID, u.Email); err != nil {
		return errors.Wrap(err, "failed to save user")
	}
	return nil
}
