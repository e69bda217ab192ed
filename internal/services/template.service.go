package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/mkamali/notification-dispatch/internal/model"
	"github.com/mkamali/notification-dispatch/pkg/pg"
)

// TemplateService manages reusable notification content.
type TemplateService struct {
	uowFactory *pg.UnitOfWorkFactory
	repos      RepositoryFactory
}

func NewTemplateService(uowFactory *pg.UnitOfWorkFactory, repos RepositoryFactory) *TemplateService {
	if repos == nil {
		repos = DefaultRepositories
	}
	return &TemplateService{uowFactory: uowFactory, repos: repos}
}

func (s *TemplateService) Create(ctx context.Context, content string) (*model.Template, error) {
	tpl, err := model.NewTemplate(content)
	if err != nil {
		return nil, err
	}

	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Release()

	if err := s.repos(uow).Templates.Add(ctx, tpl); err != nil {
		return nil, err
	}
	if err := uow.Save(); err != nil {
		return nil, err
	}
	return tpl, nil
}

func (s *TemplateService) Get(ctx context.Context, id uuid.UUID) (*model.Template, error) {
	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Release()

	return s.repos(uow).Templates.Get(ctx, id)
}

// Update upserts the template content.
func (s *TemplateService) Update(ctx context.Context, id uuid.UUID, content string) (*model.Template, error) {
	tpl := &model.Template{UUID: id, Content: content}

	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Release()

	if err := s.repos(uow).Templates.Put(ctx, tpl); err != nil {
		return nil, err
	}
	if err := uow.Save(); err != nil {
		return nil, err
	}
	return tpl, nil
}

func (s *TemplateService) Remove(ctx context.Context, id uuid.UUID) error {
	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return err
	}
	defer uow.Release()

	if err := s.repos(uow).Templates.Remove(ctx, id); err != nil {
		return err
	}
	return uow.Save()
}

func (s *TemplateService) Size(ctx context.Context) (int64, error) {
	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return 0, err
	}
	defer uow.Release()

	return s.repos(uow).Templates.Size(ctx)
}
