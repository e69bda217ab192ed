package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/mkamali/notification-dispatch/internal/model"
	"github.com/mkamali/notification-dispatch/pkg/pg"
	"github.com/mkamali/notification-dispatch/pkg/sqlexpr"
)

// AudienceQuery is the expression query over the audience table. Matches are
// loaded as full aggregates, members included.
type AudienceQuery struct {
	*sqlexpr.Query
	uow *pg.UnitOfWork
}

func NewAudienceQuery(uow *pg.UnitOfWork) *AudienceQuery {
	return &AudienceQuery{Query: sqlexpr.NewQuery(audienceMap), uow: uow}
}

func (q *AudienceQuery) Execute(ctx context.Context) ([]*model.Audience, error) {
	if err := q.Err(); err != nil {
		return nil, err
	}

	m := audienceMap
	sqlText := "SELECT " + m.Alias() + ".uuid FROM " + m.AliasedTable() +
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

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, pg.WrapStorage(err, "scan matched id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, pg.WrapStorage(err, "drain matched ids")
	}

	out := make([]*model.Audience, 0, len(ids))
	for _, id := range ids {
		a, err := fetchAudience(ctx, q.uow, id)
		if err != nil {
			return nil, err
		}
		if a != nil {
			out = append(out, a)
		}
	}
	return out, nil
}
