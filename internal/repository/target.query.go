package repository

import (
	"context"

	"github.com/mkamali/notification-dispatch/internal/model"
	"github.com/mkamali/notification-dispatch/pkg/pg"
	"github.com/mkamali/notification-dispatch/pkg/sqlexpr"
)

// TargetQuery is the expression query over the target table.
type TargetQuery struct {
	*sqlexpr.Query
	uow *pg.UnitOfWork
}

func NewTargetQuery(uow *pg.UnitOfWork) *TargetQuery {
	return &TargetQuery{Query: sqlexpr.NewQuery(targetMap), uow: uow}
}

func (q *TargetQuery) Execute(ctx context.Context) ([]*model.Target, error) {
	if err := q.Err(); err != nil {
		return nil, err
	}

	m := targetMap
	sqlText := "SELECT " + m.AliasedColumnString() + " FROM " + m.AliasedTable() +
		q.WhereClause() + q.OrderClause() + q.LimitClause() + q.SkipClause()

	stmt, err := q.uow.Prepare(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, q.Args()...)
	if err != nil {
		return nil, pg.WrapStorage(err, "execute query")
	}
	defer rows.Close()

	var out []*model.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, pg.WrapStorage(err, "drain target rows")
	}
	return out, nil
}
