package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/mkamali/notification-dispatch/internal/model"
	"github.com/mkamali/notification-dispatch/internal/queue"
	"github.com/mkamali/notification-dispatch/internal/repository"
	"github.com/mkamali/notification-dispatch/pkg/pg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockNotificationRepo struct {
	mock.Mock
	uow *pg.UnitOfWork
}

func (m *MockNotificationRepo) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Notification), args.Error(1)
}

func (m *MockNotificationRepo) Find(ctx context.Context, q *repository.NotificationQuery) ([]*model.Notification, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Notification), args.Error(1)
}

func (m *MockNotificationRepo) CreateQuery() *repository.NotificationQuery {
	return repository.NewNotificationQuery(m.uow)
}

func (m *MockNotificationRepo) Add(ctx context.Context, n *model.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockNotificationRepo) Put(ctx context.Context, n *model.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockNotificationRepo) UpdateMessage(ctx context.Context, notificationID uuid.UUID, msg *model.Message) error {
	return m.Called(ctx, notificationID, msg).Error(0)
}

func (m *MockNotificationRepo) Remove(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockNotificationRepo) Size(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type recordingPublisher struct {
	jobs []queue.DispatchJob
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, job queue.DispatchJob) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.jobs = append(p.jobs, job)
	return "1-0", nil
}

type serviceFixture struct {
	svc       *NotificationService
	repo      *MockNotificationRepo
	publisher *recordingPublisher
	mock      sqlmock.Sqlmock
}

// newFixture wires the service to a mocked pool. Statement text is not
// asserted here; the repository tests pin the SQL.
func newFixture(t *testing.T) *serviceFixture {
	t.Helper()
	matchAny := sqlmock.QueryMatcherFunc(func(expected, actual string) error { return nil })
	db, dbmock, err := sqlmock.New(sqlmock.QueryMatcherOption(matchAny))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := &MockNotificationRepo{}
	publisher := &recordingPublisher{}
	factory := func(uow *pg.UnitOfWork) Repositories {
		repo.uow = uow
		return Repositories{
			Notifications: repo,
			Targets:       repository.NewTargetRepository(uow),
			Audiences:     repository.NewAudienceRepository(uow),
			Templates:     repository.NewTemplateRepository(uow),
		}
	}

	sender, err := model.ParsePhoneNumber("+12125550100")
	require.NoError(t, err)

	svc := NewNotificationService(pg.NewUnitOfWorkFactory(db), factory, publisher, sender)
	return &serviceFixture{svc: svc, repo: repo, publisher: publisher, mock: dbmock}
}

func targetRows(id uuid.UUID, name, phone string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"uuid", "name", "phone_number"}).AddRow(id.String(), name, phone)
}

func TestNotificationService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("immediate notification publishes its messages", func(t *testing.T) {
		f := newFixture(t)
		targetID := uuid.New()

		f.mock.ExpectBegin()
		f.mock.ExpectPrepare("").
			ExpectQuery().WithArgs(targetID).
			WillReturnRows(targetRows(targetID, "ada", "+12125550123"))
		f.repo.On("Add", mock.Anything, mock.Anything).Return(nil)
		f.mock.ExpectCommit()

		n, err := f.svc.Create(ctx, NotificationCreateRequest{
			Content:   "hello",
			TargetIDs: []uuid.UUID{targetID},
		})
		require.NoError(t, err)
		require.NotNil(t, n)

		assert.Equal(t, model.NotificationStatusPending, n.Status)
		require.Len(t, n.Messages(), 1)

		require.Len(t, f.publisher.jobs, 1)
		job := f.publisher.jobs[0]
		assert.Equal(t, n.UUID, job.NotificationUUID)
		assert.Equal(t, 1, job.MessageID)
		assert.Equal(t, "+12125550123", job.To)
		assert.Equal(t, "hello", job.Content)

		f.repo.AssertExpectations(t)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("scheduled notification is not published at create time", func(t *testing.T) {
		f := newFixture(t)
		targetID := uuid.New()
		sendAt := time.Now().Add(time.Hour)

		f.mock.ExpectBegin()
		f.mock.ExpectPrepare("").
			ExpectQuery().WithArgs(targetID).
			WillReturnRows(targetRows(targetID, "ada", "+12125550123"))
		f.repo.On("Add", mock.Anything, mock.Anything).Return(nil)
		f.mock.ExpectCommit()

		n, err := f.svc.Create(ctx, NotificationCreateRequest{
			Content:   "hello",
			SendAt:    &sendAt,
			TargetIDs: []uuid.UUID{targetID},
		})
		require.NoError(t, err)
		require.NotNil(t, n.SendAt)
		assert.Empty(t, f.publisher.jobs)
	})

	t.Run("template content is rendered", func(t *testing.T) {
		f := newFixture(t)
		templateID := uuid.New()
		targetID := uuid.New()

		f.mock.ExpectBegin()
		f.mock.ExpectPrepare("").
			ExpectQuery().WithArgs(templateID).
			WillReturnRows(sqlmock.NewRows([]string{"uuid", "content"}).
				AddRow(templateID.String(), "Hi {name}"))
		f.mock.ExpectPrepare("").
			ExpectQuery().WithArgs(targetID).
			WillReturnRows(targetRows(targetID, "ada", "+12125550123"))
		f.repo.On("Add", mock.Anything, mock.Anything).Return(nil)
		f.mock.ExpectCommit()

		n, err := f.svc.Create(ctx, NotificationCreateRequest{
			TemplateID:   &templateID,
			TemplateArgs: map[string]string{"name": "Ada"},
			TargetIDs:    []uuid.UUID{targetID},
		})
		require.NoError(t, err)
		assert.Equal(t, "Hi Ada", n.Content)
	})

	t.Run("unknown template", func(t *testing.T) {
		f := newFixture(t)
		templateID := uuid.New()

		f.mock.ExpectBegin()
		f.mock.ExpectPrepare("").
			ExpectQuery().WithArgs(templateID).
			WillReturnRows(sqlmock.NewRows([]string{"uuid", "content"}))
		f.mock.ExpectRollback()

		_, err := f.svc.Create(ctx, NotificationCreateRequest{TemplateID: &templateID})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty content", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ExpectBegin()
		f.mock.ExpectRollback()

		_, err := f.svc.Create(ctx, NotificationCreateRequest{Content: "   "})
		assert.ErrorIs(t, err, ErrEmptyContent)
	})

	t.Run("content too long", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ExpectBegin()
		f.mock.ExpectRollback()

		_, err := f.svc.Create(ctx, NotificationCreateRequest{Content: strings.Repeat("x", 161)})
		assert.ErrorIs(t, err, ErrContentTooLong)
	})

	t.Run("unknown target", func(t *testing.T) {
		f := newFixture(t)
		targetID := uuid.New()

		f.mock.ExpectBegin()
		f.mock.ExpectPrepare("").
			ExpectQuery().WithArgs(targetID).
			WillReturnRows(sqlmock.NewRows([]string{"uuid", "name", "phone_number"}))
		f.mock.ExpectRollback()

		_, err := f.svc.Create(ctx, NotificationCreateRequest{
			Content:   "hello",
			TargetIDs: []uuid.UUID{targetID},
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("no recipients", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ExpectBegin()
		f.mock.ExpectRollback()

		_, err := f.svc.Create(ctx, NotificationCreateRequest{Content: "hello"})
		assert.ErrorIs(t, err, ErrNoRecipients)
	})
}

func TestNotificationService_Get(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	want := model.ReconstituteNotification(id, "hello", model.NotificationStatusPending, nil, nil)

	f.mock.ExpectBegin()
	f.repo.On("Get", mock.Anything, id).Return(want, nil)
	f.mock.ExpectRollback()

	got, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestNotificationService_ListByStatus(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectBegin()
	f.repo.On("Find", mock.Anything, mock.MatchedBy(func(q *repository.NotificationQuery) bool {
		return q.Condition() == "N.status = $1" &&
			q.OrderClause() == " ORDER BY N.send_at DESC" &&
			q.LimitClause() == " LIMIT 20" &&
			q.SkipClause() == " OFFSET 40"
	})).Return([]*model.Notification{}, nil)
	f.mock.ExpectRollback()

	_, err := f.svc.ListByStatus(context.Background(), model.NotificationStatusPending, 20, 40)
	require.NoError(t, err)
	f.repo.AssertExpectations(t)
}

func TestNotificationService_DuePending(t *testing.T) {
	f := newFixture(t)

	due := model.ReconstituteNotification(uuid.New(), "hello", model.NotificationStatusPending, nil, nil)
	to, err := model.ParsePhoneNumber("+12125550123")
	require.NoError(t, err)
	from, err := model.ParsePhoneNumber("+12125550100")
	require.NoError(t, err)
	due.SetMessages([]*model.Message{model.NewMessage(1, from, to, "hello")})

	f.mock.ExpectBegin()
	// The sweep must also match NULL send times: an immediate notification
	// whose post-commit enqueue failed has send_at NULL and no other
	// recovery path.
	f.repo.On("Find", mock.Anything, mock.MatchedBy(func(q *repository.NotificationQuery) bool {
		return q.Condition() == "N.status = $1 AND (N.send_at <= $2 OR N.send_at IS NULL)"
	})).Return([]*model.Notification{due}, nil)
	f.mock.ExpectRollback()

	n, err := f.svc.DuePending(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, f.publisher.jobs, 1)
	assert.Equal(t, due.UUID, f.publisher.jobs[0].NotificationUUID)
}

func TestNotificationService_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("pending cancels and persists", func(t *testing.T) {
		f := newFixture(t)
		id := uuid.New()
		n := model.ReconstituteNotification(id, "hello", model.NotificationStatusPending, nil, nil)

		f.mock.ExpectBegin()
		f.repo.On("Get", mock.Anything, id).Return(n, nil)
		f.repo.On("Put", mock.Anything, mock.MatchedBy(func(got *model.Notification) bool {
			return got.Status == model.NotificationStatusCancelled
		})).Return(nil)
		f.mock.ExpectCommit()

		got, err := f.svc.Cancel(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.NotificationStatusCancelled, got.Status)
		f.repo.AssertExpectations(t)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("absent notification", func(t *testing.T) {
		f := newFixture(t)
		id := uuid.New()

		f.mock.ExpectBegin()
		f.repo.On("Get", mock.Anything, id).Return(nil, nil)
		f.mock.ExpectRollback()

		_, err := f.svc.Cancel(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("finished notification is rejected", func(t *testing.T) {
		f := newFixture(t)
		id := uuid.New()
		n := model.ReconstituteNotification(id, "hello", model.NotificationStatusSent, nil, nil)

		f.mock.ExpectBegin()
		f.repo.On("Get", mock.Anything, id).Return(n, nil)
		f.mock.ExpectRollback()

		_, err := f.svc.Cancel(ctx, id)
		assert.ErrorIs(t, err, model.ErrNotificationTerminal)
		f.repo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	})
}

func markFixtureNotification(t *testing.T, id uuid.UUID) *model.Notification {
	t.Helper()
	n := model.ReconstituteNotification(id, "hello", model.NotificationStatusPending, nil, nil)
	from, err := model.ParsePhoneNumber("+12125550100")
	require.NoError(t, err)
	to, err := model.ParsePhoneNumber("+12125550123")
	require.NoError(t, err)
	n.SetMessages([]*model.Message{model.NewMessage(1, from, to, "hello")})
	return n
}

func TestNotificationService_MarkSent(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	n := markFixtureNotification(t, id)

	f.mock.ExpectBegin()
	f.repo.On("Get", mock.Anything, id).Return(n, nil)
	f.repo.On("UpdateMessage", mock.Anything, id, mock.MatchedBy(func(msg *model.Message) bool {
		return msg.ID == 1 && msg.Status == model.MessageStatusSent && msg.ExternalID == "EXT-1"
	})).Return(nil)
	f.repo.On("Put", mock.Anything, mock.MatchedBy(func(got *model.Notification) bool {
		return got.Status == model.NotificationStatusSent
	})).Return(nil)
	f.mock.ExpectCommit()

	require.NoError(t, f.svc.MarkSent(context.Background(), id, 1, "EXT-1"))
	f.repo.AssertExpectations(t)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestNotificationService_MarkDelivered(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	n := markFixtureNotification(t, id)

	f.mock.ExpectBegin()
	f.repo.On("Get", mock.Anything, id).Return(n, nil)
	f.repo.On("UpdateMessage", mock.Anything, id, mock.MatchedBy(func(msg *model.Message) bool {
		return msg.Status == model.MessageStatusDelivered
	})).Return(nil)
	f.repo.On("Put", mock.Anything, mock.Anything).Return(nil)
	f.mock.ExpectCommit()

	require.NoError(t, f.svc.MarkDelivered(context.Background(), id, 1))
	f.repo.AssertExpectations(t)
}

func TestNotificationService_MarkFailed(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	n := markFixtureNotification(t, id)

	f.mock.ExpectBegin()
	f.repo.On("Get", mock.Anything, id).Return(n, nil)
	f.repo.On("UpdateMessage", mock.Anything, id, mock.MatchedBy(func(msg *model.Message) bool {
		return msg.Status == model.MessageStatusFailed
	})).Return(nil)
	f.repo.On("Put", mock.Anything, mock.MatchedBy(func(got *model.Notification) bool {
		return got.Status == model.NotificationStatusFailed
	})).Return(nil)
	f.mock.ExpectCommit()

	require.NoError(t, f.svc.MarkFailed(context.Background(), id, 1))
	f.repo.AssertExpectations(t)
}

func TestNotificationService_MarkSent_UnknownMessage(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	n := markFixtureNotification(t, id)

	f.mock.ExpectBegin()
	f.repo.On("Get", mock.Anything, id).Return(n, nil)
	f.mock.ExpectRollback()

	err := f.svc.MarkSent(context.Background(), id, 42, "EXT-42")
	assert.ErrorIs(t, err, model.ErrUnknownMessage)
	f.repo.AssertNotCalled(t, "UpdateMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestNotificationService_Remove(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()

	f.mock.ExpectBegin()
	f.repo.On("Remove", mock.Anything, id).Return(nil)
	f.mock.ExpectCommit()

	require.NoError(t, f.svc.Remove(context.Background(), id))
	f.repo.AssertExpectations(t)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestNotificationService_Size(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectBegin()
	f.repo.On("Size", mock.Anything).Return(int64(12), nil)
	f.mock.ExpectRollback()

	n, err := f.svc.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}

func TestNotificationService_PublishFailureDoesNotFailCreate(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = assert.AnError
	targetID := uuid.New()

	f.mock.ExpectBegin()
	f.mock.ExpectPrepare("").
		ExpectQuery().WithArgs(targetID).
		WillReturnRows(targetRows(targetID, "ada", "+12125550123"))
	f.repo.On("Add", mock.Anything, mock.Anything).Return(nil)
	f.mock.ExpectCommit()

	// The aggregate is durable; enqueue failures are left to the scheduler sweep.
	n, err := f.svc.Create(context.Background(), NotificationCreateRequest{
		Content:   "hello",
		TargetIDs: []uuid.UUID{targetID},
	})
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Empty(t, f.publisher.jobs)
}
