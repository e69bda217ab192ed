package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/mkamali/notification-dispatch/internal/model"
	"github.com/mkamali/notification-dispatch/pkg/pg"
	"github.com/mkamali/notification-dispatch/pkg/sqlexpr"
)

type templateMapper struct{}

func (templateMapper) selectByID() string {
	m := templateMap
	return "SELECT " + m.AliasedColumnString() +
		" FROM " + m.AliasedTable() +
		" WHERE " + m.Alias() + ".uuid = $1"
}

func (templateMapper) exists() string {
	m := templateMap
	return "SELECT " + m.Alias() + ".uuid FROM " + m.AliasedTable() +
		" WHERE " + m.Alias() + ".uuid = $1"
}

func (templateMapper) insert() string {
	return insertInto(templateMap)
}

func (templateMapper) update() string {
	return "UPDATE " + templateMap.Table() + " SET content = $1 WHERE uuid = $2"
}

func (templateMapper) delete() string {
	return "DELETE FROM " + templateMap.Table() + " WHERE uuid = $1"
}

func (templateMapper) count() string {
	return "SELECT COUNT(*) FROM " + templateMap.Table()
}

// TemplateFactory reconstitutes template rows.
type TemplateFactory struct{}

func (TemplateFactory) Reconstitute(rows RowSource) (*model.Template, error) {
	if rows == nil || !rows.Next() {
		if rows != nil {
			if err := rows.Err(); err != nil {
				return nil, pg.WrapStorage(err, "read template row")
			}
		}
		return nil, nil
	}
	var (
		id      uuid.UUID
		content string
	)
	if err := rows.Scan(&id, &content); err != nil {
		return nil, pg.WrapStorage(err, "scan template row")
	}
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return nil, pg.WrapStorage(err, "drain template rows")
	}
	return &model.Template{UUID: id, Content: content}, nil
}

type TemplateRepository struct {
	uow     *pg.UnitOfWork
	mapper  templateMapper
	factory TemplateFactory
}

func NewTemplateRepository(uow *pg.UnitOfWork) *TemplateRepository {
	return &TemplateRepository{uow: uow}
}

func (r *TemplateRepository) Get(ctx context.Context, id uuid.UUID) (*model.Template, error) {
	rows := newLazyRows(ctx, r.uow, r.mapper.selectByID(), id)
	defer rows.close()
	return r.factory.Reconstitute(rows)
}

func (r *TemplateRepository) Find(ctx context.Context, q *TemplateQuery) ([]*model.Template, error) {
	return q.Execute(ctx)
}

func (r *TemplateRepository) CreateQuery() *TemplateQuery {
	return NewTemplateQuery(r.uow)
}

func (r *TemplateRepository) Add(ctx context.Context, t *model.Template) error {
	return exec(ctx, r.uow, r.mapper.insert(), t.UUID, t.Content)
}

func (r *TemplateRepository) Put(ctx context.Context, t *model.Template) error {
	exists, err := rowExists(ctx, r.uow, r.mapper.exists(), t.UUID)
	if err != nil {
		return err
	}
	if !exists {
		return r.Add(ctx, t)
	}
	return exec(ctx, r.uow, r.mapper.update(), t.Content, t.UUID)
}

func (r *TemplateRepository) Remove(ctx context.Context, id uuid.UUID) error {
	return exec(ctx, r.uow, r.mapper.delete(), id)
}

func (r *TemplateRepository) Size(ctx context.Context) (int64, error) {
	return queryCount(ctx, r.uow, r.mapper.count())
}

// TemplateQuery is the expression query over the template table.
type TemplateQuery struct {
	*sqlexpr.Query
	uow *pg.UnitOfWork
}

func NewTemplateQuery(uow *pg.UnitOfWork) *TemplateQuery {
	return &TemplateQuery{Query: sqlexpr.NewQuery(templateMap), uow: uow}
}

func (q *TemplateQuery) Execute(ctx context.Context) ([]*model.Template, error) {
	if err := q.Err(); err != nil {
		return nil, err
	}

	m := templateMap
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

	var out []*model.Template
	for rows.Next() {
		var (
			id      uuid.UUID
			content string
		)
		if err := rows.Scan(&id, &content); err != nil {
			return nil, pg.WrapStorage(err, "scan template row")
		}
		out = append(out, &model.Template{UUID: id, Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, pg.WrapStorage(err, "drain template rows")
	}
	return out, nil
}
