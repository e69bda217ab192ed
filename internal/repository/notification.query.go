package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/mkamali/notification-dispatch/internal/model"
	"github.com/mkamali/notification-dispatch/pkg/pg"
	"github.com/mkamali/notification-dispatch/pkg/sqlexpr"
)

// NotificationQuery is the expression query over the notification table.
// Execute matches notification rows first, then loads each match as a full
// aggregate through the same correlated queries Get uses, all on the one
// unit of work.
type NotificationQuery struct {
	*sqlexpr.Query
	uow *pg.UnitOfWork
}

func NewNotificationQuery(uow *pg.UnitOfWork) *NotificationQuery {
	return &NotificationQuery{Query: sqlexpr.NewQuery(notificationMap), uow: uow}
}

func (q *NotificationQuery) Execute(ctx context.Context) ([]*model.Notification, error) {
	if err := q.Err(); err != nil {
		return nil, err
	}

	m := notificationMap
	sqlText := "SELECT " + m.Alias() + ".uuid FROM " + m.AliasedTable() +
		q.WhereClause() + q.OrderClause() + q.LimitClause() + q.SkipClause()

	ids, err := q.matchIDs(ctx, sqlText)
	if err != nil {
		return nil, err
	}

	out := make([]*model.Notification, 0, len(ids))
	for _, id := range ids {
		n, err := fetchNotification(ctx, q.uow, id)
		if err != nil {
			return nil, err
		}
		if n != nil {
			out = append(out, n)
		}
	}
	return out, nil
}

func (q *NotificationQuery) matchIDs(ctx context.Context, sqlText string) ([]uuid.UUID, error) {
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
	return ids, nil
}
