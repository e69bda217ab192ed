package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/mkamali/notification-dispatch/internal/model"
	"github.com/mkamali/notification-dispatch/pkg/pg"
)

// AudienceRowSet names the two correlated result sets an audience is rebuilt
// from. A nil Members stage skips member loading.
type AudienceRowSet struct {
	Audience RowSource
	Members  RowSource
}

// AudienceFactory reconstitutes audience aggregates with their members.
type AudienceFactory struct{}

func (f AudienceFactory) Reconstitute(rows AudienceRowSet) (*model.Audience, error) {
	if rows.Audience == nil || !rows.Audience.Next() {
		if rows.Audience != nil {
			if err := rows.Audience.Err(); err != nil {
				return nil, pg.WrapStorage(err, "read audience row")
			}
		}
		return nil, nil
	}

	var (
		id   uuid.UUID
		name string
	)
	if err := rows.Audience.Scan(&id, &name); err != nil {
		return nil, pg.WrapStorage(err, "scan audience row")
	}
	for rows.Audience.Next() {
	}
	if err := rows.Audience.Err(); err != nil {
		return nil, pg.WrapStorage(err, "drain audience rows")
	}

	a := model.ReconstituteAudience(id, name)
	if rows.Members != nil {
		for rows.Members.Next() {
			t, err := scanTarget(rows.Members)
			if err != nil {
				return nil, err
			}
			a.AddMember(t)
		}
		if err := rows.Members.Err(); err != nil {
			return nil, pg.WrapStorage(err, "drain member rows")
		}
	}
	return a, nil
}

type AudienceRepository struct {
	uow     *pg.UnitOfWork
	mapper  audienceMapper
	factory AudienceFactory
}

func NewAudienceRepository(uow *pg.UnitOfWork) *AudienceRepository {
	return &AudienceRepository{uow: uow}
}

// Get reconstitutes the audience with its member set via two correlated
// queries on the same unit of work. Absence returns nil, nil.
func (r *AudienceRepository) Get(ctx context.Context, id uuid.UUID) (*model.Audience, error) {
	return fetchAudience(ctx, r.uow, id)
}

func fetchAudience(ctx context.Context, uow *pg.UnitOfWork, id uuid.UUID) (*model.Audience, error) {
	var (
		m audienceMapper
		f AudienceFactory
	)

	audience := newLazyRows(ctx, uow, m.selectByID(), id)
	members := newLazyRows(ctx, uow, m.selectMembersFor(), id)
	defer closeAll(audience, members)

	return f.Reconstitute(AudienceRowSet{Audience: audience, Members: members})
}

func (r *AudienceRepository) Find(ctx context.Context, q *AudienceQuery) ([]*model.Audience, error) {
	return q.Execute(ctx)
}

func (r *AudienceRepository) CreateQuery() *AudienceQuery {
	return NewAudienceQuery(r.uow)
}

// Add inserts the audience row and the join rows linking its pre-persisted
// member targets.
func (r *AudienceRepository) Add(ctx context.Context, a *model.Audience) error {
	if err := exec(ctx, r.uow, r.mapper.insert(), a.UUID, a.Name); err != nil {
		return err
	}
	for _, id := range a.MemberIDs() {
		if err := exec(ctx, r.uow, r.mapper.associateMember(), a.UUID, id); err != nil {
			return err
		}
	}
	return nil
}

// Put upserts by existence check; only the name is updated in place, the
// member association rows are not re-synchronized.
func (r *AudienceRepository) Put(ctx context.Context, a *model.Audience) error {
	exists, err := rowExists(ctx, r.uow, r.mapper.exists(), a.UUID)
	if err != nil {
		return err
	}
	if !exists {
		return r.Add(ctx, a)
	}
	return exec(ctx, r.uow, r.mapper.update(), a.Name, a.UUID)
}

// AssociateMember links one pre-persisted target into the audience.
func (r *AudienceRepository) AssociateMember(ctx context.Context, audienceID, targetID uuid.UUID) error {
	return exec(ctx, r.uow, r.mapper.associateMember(), audienceID, targetID)
}

// DisassociateMember cuts one membership link without touching the target row.
func (r *AudienceRepository) DisassociateMember(ctx context.Context, audienceID, targetID uuid.UUID) error {
	return exec(ctx, r.uow, r.mapper.disassociateMember(), audienceID, targetID)
}

// Remove deletes membership and notification links first, then the audience
// row. Member targets survive.
func (r *AudienceRepository) Remove(ctx context.Context, id uuid.UUID) error {
	if err := exec(ctx, r.uow, r.mapper.disassociateMembers(), id); err != nil {
		return err
	}
	if err := exec(ctx, r.uow, r.mapper.disassociateNotifications(), id); err != nil {
		return err
	}
	return exec(ctx, r.uow, r.mapper.delete(), id)
}

func (r *AudienceRepository) Size(ctx context.Context) (int64, error) {
	return queryCount(ctx, r.uow, r.mapper.count())
}
