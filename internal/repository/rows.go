package repository

import (
	"context"
	"database/sql"

	"github.com/mkamali/notification-dispatch/pkg/pg"
)

// lazyRows defers opening its query until the first Next call. The unit of
// work owns a single connection, so the correlated queries behind one
// aggregate must run strictly one after another: a stage opens only once the
// previous stage has been drained (draining auto-closes the previous rows).
type lazyRows struct {
	ctx   context.Context
	uow   *pg.UnitOfWork
	query string
	args  []interface{}
	rows  *sql.Rows
	err   error
}

func newLazyRows(ctx context.Context, uow *pg.UnitOfWork, query string, args ...interface{}) *lazyRows {
	return &lazyRows{ctx: ctx, uow: uow, query: query, args: args}
}

func (l *lazyRows) Next() bool {
	if l.err != nil {
		return false
	}
	if l.rows == nil {
		stmt, err := l.uow.Prepare(l.ctx, l.query)
		if err != nil {
			l.err = err
			return false
		}
		defer stmt.Close()
		l.rows, l.err = stmt.QueryContext(l.ctx, l.args...)
		if l.err != nil {
			l.err = pg.WrapStorage(l.err, "execute query")
			return false
		}
	}
	return l.rows.Next()
}

func (l *lazyRows) Scan(dest ...interface{}) error {
	if l.err != nil {
		return l.err
	}
	if l.rows == nil {
		return pg.WrapStorage(sql.ErrNoRows, "scan before next")
	}
	return l.rows.Scan(dest...)
}

func (l *lazyRows) Err() error {
	if l.err != nil {
		return l.err
	}
	if l.rows != nil {
		return l.rows.Err()
	}
	return nil
}

func (l *lazyRows) close() {
	if l.rows != nil {
		_ = l.rows.Close()
	}
}

func closeAll(sources ...*lazyRows) {
	for _, s := range sources {
		if s != nil {
			s.close()
		}
	}
}

// exec prepares and runs one write statement on the unit of work.
func exec(ctx context.Context, uow *pg.UnitOfWork, query string, args ...interface{}) error {
	stmt, err := uow.Prepare(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	if _, err := stmt.ExecContext(ctx, args...); err != nil {
		return pg.WrapStorage(err, "execute statement")
	}
	return nil
}

// queryCount prepares and runs one COUNT(*) statement.
func queryCount(ctx context.Context, uow *pg.UnitOfWork, query string) (int64, error) {
	stmt, err := uow.Prepare(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	var n int64
	if err := stmt.QueryRowContext(ctx).Scan(&n); err != nil {
		return 0, pg.WrapStorage(err, "count rows")
	}
	return n, nil
}
