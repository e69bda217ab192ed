package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/mkamali/notification-dispatch/internal/model"
	"github.com/mkamali/notification-dispatch/pkg/pg"
)

// TargetFactory reconstitutes target rows.
type TargetFactory struct{}

// Reconstitute rebuilds one target from a single-row source, nil when absent.
func (TargetFactory) Reconstitute(rows RowSource) (*model.Target, error) {
	if rows == nil || !rows.Next() {
		if rows != nil {
			if err := rows.Err(); err != nil {
				return nil, pg.WrapStorage(err, "read target row")
			}
		}
		return nil, nil
	}
	t, err := scanTarget(rows)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return nil, pg.WrapStorage(err, "drain target rows")
	}
	return t, nil
}

type TargetRepository struct {
	uow     *pg.UnitOfWork
	mapper  targetMapper
	factory TargetFactory
}

func NewTargetRepository(uow *pg.UnitOfWork) *TargetRepository {
	return &TargetRepository{uow: uow}
}

func (r *TargetRepository) Get(ctx context.Context, id uuid.UUID) (*model.Target, error) {
	rows := newLazyRows(ctx, r.uow, r.mapper.selectByID(), id)
	defer rows.close()
	return r.factory.Reconstitute(rows)
}

func (r *TargetRepository) Find(ctx context.Context, q *TargetQuery) ([]*model.Target, error) {
	return q.Execute(ctx)
}

func (r *TargetRepository) CreateQuery() *TargetQuery {
	return NewTargetQuery(r.uow)
}

func (r *TargetRepository) Add(ctx context.Context, t *model.Target) error {
	return exec(ctx, r.uow, r.mapper.insert(), t.UUID, t.Name, t.Phone.String())
}

// Put upserts by existence check; scalar fields only.
func (r *TargetRepository) Put(ctx context.Context, t *model.Target) error {
	exists, err := rowExists(ctx, r.uow, r.mapper.exists(), t.UUID)
	if err != nil {
		return err
	}
	if !exists {
		return r.Add(ctx, t)
	}
	return exec(ctx, r.uow, r.mapper.update(), t.Name, t.Phone.String(), t.UUID)
}

func (r *TargetRepository) Remove(ctx context.Context, id uuid.UUID) error {
	if err := exec(ctx, r.uow, r.mapper.disassociateNotifications(), id); err != nil {
		return err
	}
	if err := exec(ctx, r.uow, r.mapper.disassociateAudiences(), id); err != nil {
		return err
	}
	return exec(ctx, r.uow, r.mapper.delete(), id)
}

func (r *TargetRepository) Size(ctx context.Context) (int64, error) {
	return queryCount(ctx, r.uow, r.mapper.count())
}

// rowExists is the shared existence probe behind every Put.
func rowExists(ctx context.Context, uow *pg.UnitOfWork, query string, id uuid.UUID) (bool, error) {
	stmt, err := uow.Prepare(ctx, query)
	if err != nil {
		return false, err
	}
	defer stmt.Close()

	var found uuid.UUID
	err = stmt.QueryRowContext(ctx, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, pg.WrapStorage(err, "existence check")
	}
	return true, nil
}
