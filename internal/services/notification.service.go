package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mkamali/notification-dispatch/internal/model"
	"github.com/mkamali/notification-dispatch/internal/queue"
	"github.com/mkamali/notification-dispatch/internal/repository"
	"github.com/mkamali/notification-dispatch/pkg/logger"
	"github.com/mkamali/notification-dispatch/pkg/pg"
	"github.com/mkamali/notification-dispatch/pkg/prom"
)

var (
	ErrEmptyContent   = errors.New("notification content cannot be empty")
	ErrContentTooLong = errors.New("notification content exceeds maximum length")
	ErrNoRecipients   = errors.New("notification resolves to no recipients")
	ErrNotFound       = errors.New("not found")
)

// NotificationRepository is the slice of the repository facade this service
// drives. One instance is bound to one unit of work.
type NotificationRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	Find(ctx context.Context, q *repository.NotificationQuery) ([]*model.Notification, error)
	CreateQuery() *repository.NotificationQuery
	Add(ctx context.Context, n *model.Notification) error
	Put(ctx context.Context, n *model.Notification) error
	UpdateMessage(ctx context.Context, notificationID uuid.UUID, msg *model.Message) error
	Remove(ctx context.Context, id uuid.UUID) error
	Size(ctx context.Context) (int64, error)
}

// Repositories bundles the per-aggregate facades for one unit of work.
type Repositories struct {
	Notifications NotificationRepository
	Targets       *repository.TargetRepository
	Audiences     *repository.AudienceRepository
	Templates     *repository.TemplateRepository
}

// RepositoryFactory binds a fresh set of repositories to a unit of work.
// Each business operation acquires its own unit of work; repositories are
// never shared across operations.
type RepositoryFactory func(uow *pg.UnitOfWork) Repositories

func DefaultRepositories(uow *pg.UnitOfWork) Repositories {
	return Repositories{
		Notifications: repository.NewNotificationRepository(uow),
		Targets:       repository.NewTargetRepository(uow),
		Audiences:     repository.NewAudienceRepository(uow),
		Templates:     repository.NewTemplateRepository(uow),
	}
}

// Publisher hands pending messages to the dispatcher.
type Publisher interface {
	Publish(ctx context.Context, job queue.DispatchJob) (string, error)
}

type NotificationService struct {
	uowFactory    *pg.UnitOfWorkFactory
	repos         RepositoryFactory
	publisher     Publisher
	sender        model.PhoneNumber
	maxContentLen int
}

func NewNotificationService(uowFactory *pg.UnitOfWorkFactory, repos RepositoryFactory, publisher Publisher, sender model.PhoneNumber) *NotificationService {
	if repos == nil {
		repos = DefaultRepositories
	}
	return &NotificationService{
		uowFactory:    uowFactory,
		repos:         repos,
		publisher:     publisher,
		sender:        sender,
		maxContentLen: 160,
	}
}

// NotificationCreateRequest is the input for creating a notification. Either
// Content or TemplateID must be set; template args are substituted at create
// time.
type NotificationCreateRequest struct {
	Content      string
	TemplateID   *uuid.UUID
	TemplateArgs map[string]string
	SendAt       *time.Time
	TargetIDs    []uuid.UUID
	AudienceIDs  []uuid.UUID
}

// Create builds the aggregate, resolves its recipient set into one pending
// message per unique phone number, and persists everything in a single unit
// of work. A nil SendAt means the messages are handed to the dispatcher as
// soon as the transaction commits.
func (s *NotificationService) Create(ctx context.Context, req NotificationCreateRequest) (*model.Notification, error) {
	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Release()

	repos := s.repos(uow)

	content := strings.TrimSpace(req.Content)
	if req.TemplateID != nil {
		tpl, err := repos.Templates.Get(ctx, *req.TemplateID)
		if err != nil {
			return nil, err
		}
		if tpl == nil {
			return nil, ErrNotFound
		}
		content = tpl.Render(req.TemplateArgs)
	}
	if content == "" {
		return nil, ErrEmptyContent
	}
	if s.maxContentLen > 0 && utf8.RuneCountInString(content) > s.maxContentLen {
		return nil, ErrContentTooLong
	}

	n, err := model.NewNotification(content, req.SendAt)
	if err != nil {
		return nil, err
	}

	for _, id := range req.TargetIDs {
		t, err := repos.Targets.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, ErrNotFound
		}
		n.AddTarget(t)
	}
	for _, id := range req.AudienceIDs {
		a, err := repos.Audiences.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if a == nil {
			return nil, ErrNotFound
		}
		n.AddAudience(a)
	}

	n.PrepareMessages(s.sender)
	if len(n.Messages()) == 0 {
		return nil, ErrNoRecipients
	}

	if err := repos.Notifications.Add(ctx, n); err != nil {
		return nil, err
	}
	if err := uow.Save(); err != nil {
		return nil, err
	}

	if req.SendAt == nil {
		prom.IncNotificationCreated("immediate")
		s.publishPending(ctx, n)
	} else {
		prom.IncNotificationCreated("scheduled")
	}
	return n, nil
}

// publishPending enqueues every still-pending message. Publish failures are
// logged, not returned: the aggregate is already durable and the scheduler
// sweep re-enqueues anything left behind.
func (s *NotificationService) publishPending(ctx context.Context, n *model.Notification) {
	if s.publisher == nil {
		return
	}
	for _, msg := range n.Messages() {
		if msg.Status != model.MessageStatusPending {
			continue
		}
		job := queue.DispatchJob{
			NotificationUUID: n.UUID,
			MessageID:        msg.ID,
			To:               msg.To.String(),
			Content:          msg.Content,
		}
		if _, err := s.publisher.Publish(ctx, job); err != nil {
			logger.Error("failed to enqueue message", "notification", n.UUID, "message", msg.ID, "error", err)
		}
	}
}

// Get returns the full aggregate, or nil when absent.
func (s *NotificationService) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Release()

	return s.repos(uow).Notifications.Get(ctx, id)
}

// ListByStatus pages notifications in a given status, newest schedule first.
func (s *NotificationService) ListByStatus(ctx context.Context, status model.NotificationStatus, limit, skip int) ([]*model.Notification, error) {
	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Release()

	repos := s.repos(uow)
	q := repos.Notifications.CreateQuery()
	q.Equals(q.Field("status"), q.String(string(status)))
	q.Descending("sendAt")
	if limit > 0 {
		q.Limit(limit)
	}
	if skip > 0 {
		q.Skip(skip)
	}
	return repos.Notifications.Find(ctx, q)
}

// DuePending re-enqueues pending notifications whose send time has passed.
// A NULL send time means an immediate send whose post-commit enqueue was
// lost; the sweep is the recovery path for those, so it matches them too.
// Called periodically by the dispatcher's scheduler loop.
func (s *NotificationService) DuePending(ctx context.Context, now time.Time) (int, error) {
	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return 0, err
	}
	defer uow.Release()

	repos := s.repos(uow)
	q := repos.Notifications.CreateQuery()
	q.Equals(q.Field("status"), q.String(string(model.NotificationStatusPending)))
	q.LessThanOrEqualTo(q.Field("sendAt"), q.String(now.UTC().Format(time.RFC3339)))
	q.IsNull(q.Field("sendAt"))
	q.Or()
	q.And()

	due, err := repos.Notifications.Find(ctx, q)
	if err != nil {
		return 0, err
	}

	for _, n := range due {
		s.publishPending(ctx, n)
	}
	return len(due), nil
}

// Cancel is the explicit external action that parks a notification in the
// cancelled status. Finished notifications are rejected.
func (s *NotificationService) Cancel(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Release()

	repos := s.repos(uow)
	n, err := repos.Notifications.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, ErrNotFound
	}
	if err := n.Cancel(); err != nil {
		return nil, err
	}
	if err := repos.Notifications.Put(ctx, n); err != nil {
		return nil, err
	}
	if err := uow.Save(); err != nil {
		return nil, err
	}
	return n, nil
}

// MarkSent records provider acceptance of one message: the message row gets
// its new status and external id, and the recomputed aggregate status is
// persisted alongside, all within one unit of work.
func (s *NotificationService) MarkSent(ctx context.Context, notificationID uuid.UUID, messageID int, externalID string) error {
	return s.updateMessage(ctx, notificationID, messageID, func(n *model.Notification) error {
		return n.MarkMessageSent(messageID, externalID)
	})
}

// MarkDelivered records a delivery report for one message.
func (s *NotificationService) MarkDelivered(ctx context.Context, notificationID uuid.UUID, messageID int) error {
	return s.updateMessage(ctx, notificationID, messageID, func(n *model.Notification) error {
		return n.MarkMessageDelivered(messageID)
	})
}

// MarkFailed records a terminal provider failure for one message.
func (s *NotificationService) MarkFailed(ctx context.Context, notificationID uuid.UUID, messageID int) error {
	return s.updateMessage(ctx, notificationID, messageID, func(n *model.Notification) error {
		return n.MarkMessageFailed(messageID)
	})
}

func (s *NotificationService) updateMessage(ctx context.Context, notificationID uuid.UUID, messageID int, mutate func(*model.Notification) error) error {
	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return err
	}
	defer uow.Release()

	repos := s.repos(uow)
	n, err := repos.Notifications.Get(ctx, notificationID)
	if err != nil {
		return err
	}
	if n == nil {
		return ErrNotFound
	}
	if err := mutate(n); err != nil {
		return err
	}

	msg := n.Message(messageID)
	if msg == nil {
		return ErrNotFound
	}
	if err := repos.Notifications.UpdateMessage(ctx, notificationID, msg); err != nil {
		return err
	}
	if err := repos.Notifications.Put(ctx, n); err != nil {
		return err
	}
	return uow.Save()
}

// Remove deletes the aggregate with its messages and associations.
func (s *NotificationService) Remove(ctx context.Context, id uuid.UUID) error {
	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return err
	}
	defer uow.Release()

	if err := s.repos(uow).Notifications.Remove(ctx, id); err != nil {
		return err
	}
	return uow.Save()
}

// Size reports the stored notification count.
func (s *NotificationService) Size(ctx context.Context) (int64, error) {
	uow, err := s.uowFactory.Create(ctx)
	if err != nil {
		return 0, err
	}
	defer uow.Release()

	return s.repos(uow).Notifications.Size(ctx)
}
