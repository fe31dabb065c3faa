package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// dbtx is the subset of *sql.DB and *sql.Tx used by the repositories, so
// the same code runs inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements Store on top of a MySQL connection pool.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore returns a store bound to db.
func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

// DB exposes the underlying pool.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Repositories returns repositories bound to the pool.
func (s *SQLStore) Repositories() Repositories {
	return Repositories{
		Tables:       NewTableRepo(s.db),
		Reservations: NewReservationRepo(s.db),
	}
}

// InTx runs fn in a READ COMMITTED transaction. Exclusivity between
// concurrent allocations comes from the row locks taken by
// TableRepository.LockByIDs, so every read made after the lock sees the
// latest committed reservations.
func (s *SQLStore) InTx(ctx context.Context, fn func(Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(Repositories{Tables: NewTableRepo(tx), Reservations: NewReservationRepo(tx)}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", translate(err))
	}
	committed = true
	return nil
}
