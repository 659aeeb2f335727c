package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SessionStore persists Metabase session tokens per instance and user. It
// satisfies metabase.TokenStore.
type SessionStore struct {
	store *Store
}

// LoadToken returns the stored token, or "" when there is none.
func (ss *SessionStore) LoadToken(ctx context.Context, instance, username string) (string, error) {
	var token string
	err := ss.store.db.QueryRowContext(ctx,
		`SELECT token FROM sessions WHERE instance = ? AND username = ?`,
		instance, username,
	).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load session token: %w", err)
	}
	return token, nil
}

// SaveToken stores token, replacing any previous one.
func (ss *SessionStore) SaveToken(ctx context.Context, instance, username, token string) error {
	_, err := ss.store.db.ExecContext(ctx, `
		INSERT INTO sessions (instance, username, token, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (instance, username) DO UPDATE SET
			token = excluded.token,
			updated_at = excluded.updated_at
	`, instance, username, token, now())
	if err != nil {
		return fmt.Errorf("failed to save session token: %w", err)
	}
	return nil
}
