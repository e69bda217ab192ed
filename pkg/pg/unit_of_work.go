package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrCompleted is returned when Save or Undo is called on a unit of work
	// that has already been committed or rolled back.
	ErrCompleted = errors.New("pg: unit of work already completed")

	// ErrStorage wraps every storage-access failure crossing the mapper
	// boundary. Callers test with errors.Is.
	ErrStorage = errors.New("pg: storage failure")
)

// WrapStorage folds a driver/statement error into the single storage failure
// kind. Both ErrStorage and the original error stay in the chain, so callers
// can still test for driver sentinels like sql.ErrNoRows.
func WrapStorage(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, msg, err)
}

// UnitOfWork owns one transaction for the duration of one business operation.
// It is never shared across operations or goroutines. Exactly one of Save or
// Undo may be called; Release is defer-safe and rolls back anything left open.
type UnitOfWork struct {
	tx   *sql.Tx
	done bool
}

// UnitOfWorkFactory hands out units of work backed by the shared pool.
type UnitOfWorkFactory struct {
	db *sql.DB
}

func NewUnitOfWorkFactory(db *sql.DB) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{db: db}
}

func (f *UnitOfWorkFactory) Create(ctx context.Context) (*UnitOfWork, error) {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, WrapStorage(err, "begin transaction")
	}
	return &UnitOfWork{tx: tx}, nil
}

// Prepare creates a parameterized statement bound to this unit of work. The
// statement is closed automatically when the transaction ends.
func (u *UnitOfWork) Prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	if u.done {
		return nil, ErrCompleted
	}
	stmt, err := u.tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, WrapStorage(err, "prepare statement")
	}
	return stmt, nil
}

// Save commits and seals the unit of work. A second terminal call fails with
// ErrCompleted without touching the transaction again.
func (u *UnitOfWork) Save() error {
	if u.done {
		return ErrCompleted
	}
	u.done = true
	if err := u.tx.Commit(); err != nil {
		return WrapStorage(err, "commit")
	}
	return nil
}

// Undo rolls back and seals the unit of work.
func (u *UnitOfWork) Undo() error {
	if u.done {
		return ErrCompleted
	}
	u.done = true
	if err := u.tx.Rollback(); err != nil {
		return WrapStorage(err, "rollback")
	}
	return nil
}

// Release rolls back if no terminal call happened. Safe to defer next to
// explicit Save/Undo calls; it never leaks the underlying connection.
func (u *UnitOfWork) Release() {
	if u.done {
		return
	}
	u.done = true
	_ = u.tx.Rollback()
}
