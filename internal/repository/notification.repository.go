package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/mkamali/notification-dispatch/internal/model"
	"github.com/mkamali/notification-dispatch/pkg/pg"
)

// NotificationRepository is the collection-like facade over the notification
// aggregate. Every method runs on the single unit of work the repository was
// constructed with; none opens its own connection.
type NotificationRepository struct {
	uow     *pg.UnitOfWork
	mapper  notificationMapper
	factory NotificationFactory
}

func NewNotificationRepository(uow *pg.UnitOfWork) *NotificationRepository {
	return &NotificationRepository{uow: uow}
}

// Get reconstitutes the full aggregate: the notification row plus its direct
// targets, messages, audiences and audience members, read through five
// correlated queries on the same unit of work. Absence returns nil, nil.
func (r *NotificationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	return fetchNotification(ctx, r.uow, id)
}

func fetchNotification(ctx context.Context, uow *pg.UnitOfWork, id uuid.UUID) (*model.Notification, error) {
	var (
		m notificationMapper
		f NotificationFactory
	)

	notification := newLazyRows(ctx, uow, m.selectByID(), id)
	targets := newLazyRows(ctx, uow, m.selectTargetsFor(), id)
	messages := newLazyRows(ctx, uow, m.selectMessagesFor(), id)
	audiences := newLazyRows(ctx, uow, m.selectAudiencesFor(), id)
	members := newLazyRows(ctx, uow, m.selectMembersFor(), id)
	defer closeAll(notification, targets, messages, audiences, members)

	return f.Reconstitute(NotificationRowSet{
		Notification: notification,
		Targets:      targets,
		Messages:     messages,
		Audiences:    audiences,
		Members:      members,
	})
}

// Find executes an expression query and returns every matching aggregate.
func (r *NotificationRepository) Find(ctx context.Context, q *NotificationQuery) ([]*model.Notification, error) {
	return q.Execute(ctx)
}

// CreateQuery builds an expression query bound to this repository's unit of work.
func (r *NotificationRepository) CreateQuery() *NotificationQuery {
	return NewNotificationQuery(r.uow)
}

// Add unconditionally inserts the aggregate: the notification row, its
// messages and the join rows linking pre-persisted targets and audiences.
func (r *NotificationRepository) Add(ctx context.Context, n *model.Notification) error {
	if err := exec(ctx, r.uow, r.mapper.insert(), n.UUID, n.Content, string(n.Status), n.SendAt, n.SentAt); err != nil {
		return err
	}
	for _, msg := range n.Messages() {
		if err := exec(ctx, r.uow, r.mapper.insertMessage(),
			msg.ID, msg.From.String(), msg.To.String(), msg.Content, string(msg.Status), n.UUID, msg.ExternalID); err != nil {
			return err
		}
	}
	for _, id := range n.TargetIDs() {
		if err := exec(ctx, r.uow, r.mapper.associateTarget(), n.UUID, id); err != nil {
			return err
		}
	}
	for _, id := range n.AudienceIDs() {
		if err := exec(ctx, r.uow, r.mapper.associateAudience(), n.UUID, id); err != nil {
			return err
		}
	}
	return nil
}

// Put upserts by existence check: absent ids delegate to Add, present ids get
// an in-place update of scalar fields only. Child and association rows are
// not re-synchronized; the check-then-write is not atomic across concurrent
// operations.
func (r *NotificationRepository) Put(ctx context.Context, n *model.Notification) error {
	exists, err := rowExists(ctx, r.uow, r.mapper.exists(), n.UUID)
	if err != nil {
		return err
	}
	if !exists {
		return r.Add(ctx, n)
	}
	return exec(ctx, r.uow, r.mapper.update(), n.Content, string(n.Status), n.SendAt, n.SentAt, n.UUID)
}

// UpdateMessage persists the status and external id of one owned message row.
func (r *NotificationRepository) UpdateMessage(ctx context.Context, notificationID uuid.UUID, msg *model.Message) error {
	return exec(ctx, r.uow, r.mapper.updateMessage(), string(msg.Status), msg.ExternalID, notificationID, msg.ID)
}

// Remove deletes join-table associations and owned message rows first, then
// the notification row itself. Referenced targets and audiences survive.
func (r *NotificationRepository) Remove(ctx context.Context, id uuid.UUID) error {
	if err := exec(ctx, r.uow, r.mapper.disassociateTargets(), id); err != nil {
		return err
	}
	if err := exec(ctx, r.uow, r.mapper.disassociateAudiences(), id); err != nil {
		return err
	}
	if err := exec(ctx, r.uow, r.mapper.deleteMessagesFor(), id); err != nil {
		return err
	}
	return exec(ctx, r.uow, r.mapper.delete(), id)
}

// Size reports the number of stored notifications.
func (r *NotificationRepository) Size(ctx context.Context) (int64, error) {
	return queryCount(ctx, r.uow, r.mapper.count())
}
