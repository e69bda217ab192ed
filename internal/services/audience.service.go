package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/mkamali/notification-dispatch/internal/model"
	"github.com/mkamali/notification-dispatch/pkg/pg"
)

// AudienceService manages named recipient groups. Members are shared target
// references; adding or removing a member only touches association rows.
type AudienceService struct {
	uowFactory *pg.UnitOfWorkFactory
	repos      RepositoryFactory
}

func NewAudienceService(uowFactory *pg.UnitOfWorkFactory, repos RepositoryFactory) *AudienceService {
	if repos == nil {
		repos = DefaultRepositories
	}
	return &AudienceService{uowFactory: uowFactory, repos: repos}
}

type AudienceCreateRequest struct {
	Name      string
	MemberIDs []uuid.UUID
}

func (s *AudienceService) Create(ctx context.Context, req AudienceCreateRequest) (*model.Audience, error) {
	a, err := model.NewAudience(req.Name)
	if err != nil {
		return nil, err
	}

	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Release()

	repos := s.repos(uow)
	for _, id := range req.MemberIDs {
		t, err := repos.Targets.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, ErrNotFound
		}
		a.AddMember(t)
	}

	if err := repos.Audiences.Add(ctx, a); err != nil {
		return nil, err
	}
	if err := uow.Save(); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AudienceService) Get(ctx context.Context, id uuid.UUID) (*model.Audience, error) {
	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Release()

	return s.repos(uow).Audiences.Get(ctx, id)
}

// Rename upserts the audience's scalar fields; membership is untouched.
func (s *AudienceService) Rename(ctx context.Context, id uuid.UUID, name string) (*model.Audience, error) {
	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Release()

	repos := s.repos(uow)
	a, err := repos.Audiences.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	a.Name = name

	if err := repos.Audiences.Put(ctx, a); err != nil {
		return nil, err
	}
	if err := uow.Save(); err != nil {
		return nil, err
	}
	return a, nil
}

// AddMember links an existing target into the audience.
func (s *AudienceService) AddMember(ctx context.Context, audienceID, targetID uuid.UUID) error {
	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return err
	}
	defer uow.Release()

	repos := s.repos(uow)
	a, err := repos.Audiences.Get(ctx, audienceID)
	if err != nil {
		return err
	}
	if a == nil {
		return ErrNotFound
	}
	if a.HasMember(targetID) {
		return uow.Save()
	}

	t, err := repos.Targets.Get(ctx, targetID)
	if err != nil {
		return err
	}
	if t == nil {
		return ErrNotFound
	}

	if err := repos.Audiences.AssociateMember(ctx, audienceID, targetID); err != nil {
		return err
	}
	return uow.Save()
}

// RemoveMember cuts the membership link; the target itself survives.
func (s *AudienceService) RemoveMember(ctx context.Context, audienceID, targetID uuid.UUID) error {
	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return err
	}
	defer uow.Release()

	if err := s.repos(uow).Audiences.DisassociateMember(ctx, audienceID, targetID); err != nil {
		return err
	}
	return uow.Save()
}

func (s *AudienceService) Remove(ctx context.Context, id uuid.UUID) error {
	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return err
	}
	defer uow.Release()

	if err := s.repos(uow).Audiences.Remove(ctx, id); err != nil {
		return err
	}
	return uow.Save()
}

func (s *AudienceService) Size(ctx context.Context) (int64, error) {
	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return 0, err
	}
	defer uow.Release()

	return s.repos(uow).Audiences.Size(ctx)
}
