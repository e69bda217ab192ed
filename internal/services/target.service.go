package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/mkamali/notification-dispatch/internal/model"
	"github.com/mkamali/notification-dispatch/pkg/pg"
)

// TargetService is the application facade for managing recipients.
type TargetService struct {
	uowFactory *pg.UnitOfWorkFactory
	repos      RepositoryFactory
}

func NewTargetService(uowFactory *pg.UnitOfWorkFactory, repos RepositoryFactory) *TargetService {
	if repos == nil {
		repos = DefaultRepositories
	}
	return &TargetService{uowFactory: uowFactory, repos: repos}
}

type TargetCreateRequest struct {
	Name        string
	PhoneNumber string
}

func (s *TargetService) Create(ctx context.Context, req TargetCreateRequest) (*model.Target, error) {
	phone, err := model.ParsePhoneNumber(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	t, err := model.NewTarget(req.Name, phone)
	if err != nil {
		return nil, err
	}

	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Release()

	if err := s.repos(uow).Targets.Add(ctx, t); err != nil {
		return nil, err
	}
	if err := uow.Save(); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TargetService) Get(ctx context.Context, id uuid.UUID) (*model.Target, error) {
	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Release()

	return s.repos(uow).Targets.Get(ctx, id)
}

type TargetUpdateRequest struct {
	UUID        uuid.UUID
	Name        string
	PhoneNumber string
}

// Update upserts the target's scalar fields.
func (s *TargetService) Update(ctx context.Context, req TargetUpdateRequest) (*model.Target, error) {
	phone, err := model.ParsePhoneNumber(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	t := &model.Target{UUID: req.UUID, Name: req.Name, Phone: phone}

	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Release()

	if err := s.repos(uow).Targets.Put(ctx, t); err != nil {
		return nil, err
	}
	if err := uow.Save(); err != nil {
		return nil, err
	}
	return t, nil
}

// FindByName matches targets whose name contains the given fragment.
func (s *TargetService) FindByName(ctx context.Context, fragment string, limit int) ([]*model.Target, error) {
	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Release()

	repos := s.repos(uow)
	q := repos.Targets.CreateQuery()
	q.Like(q.Field("name"), q.String("%"+fragment+"%"))
	q.Ascending("name")
	if limit > 0 {
		q.Limit(limit)
	}
	return repos.Targets.Find(ctx, q)
}

func (s *TargetService) Remove(ctx context.Context, id uuid.UUID) error {
	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return err
	}
	defer uow.Release()

	if err := s.repos(uow).Targets.Remove(ctx, id); err != nil {
		return err
	}
	return uow.Save()
}

func (s *TargetService) Size(ctx context.Context) (int64, error) {
	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return 0, err
	}
	defer uow.Release()

	return s.repos(uow).Targets.Size(ctx)
}
