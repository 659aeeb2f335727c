// Package store provides the persistence layer over mbsnap's local state
// database: cached session tokens and the journal of import runs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/elevate/elevate.metabase.tools/internal/db"
)

// timeLayout matches the strftime format used by the schema defaults.
const timeLayout = "2006-01-02T15:04:05Z"

// Store is the root store that provides access to domain-specific stores.
type Store struct {
	db *db.DB

	// Domain-specific stores
	Sessions *SessionStore
	Runs     *RunStore
}

// New creates a new Store wrapping the given database connection.
func New(database *db.DB) *Store {
	s := &Store{db: database}
	s.Sessions = &SessionStore{store: s}
	s.Runs = &RunStore{store: s}
	return s
}

// DB returns the underlying database connection (for read-only queries).
func (s *Store) DB() *db.DB {
	return s.db
}

// withTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func now() string {
	return time.Now().UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
