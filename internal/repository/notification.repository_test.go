package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/mkamali/notification-dispatch/internal/model"
	"github.com/mkamali/notification-dispatch/pkg/pg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupUow hands out a unit of work over a mocked connection. Statement text
// is matched exactly against what the mappers render.
func setupUow(t *testing.T) (*pg.UnitOfWork, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectBegin()
	uow, err := pg.NewUnitOfWorkFactory(db).Create(context.Background())
	require.NoError(t, err)
	t.Cleanup(uow.Release)
	return uow, mock
}

func notificationColumns() []string {
	return []string{"uuid", "content", "status", "send_at", "sent_at"}
}

func targetColumns() []string {
	return []string{"uuid", "name", "phone_number"}
}

func messageColumns() []string {
	return []string{"id", "from_phone", "to_phone", "content", "status", "notification_uuid", "external_id"}
}

func TestNotificationRepository_Get(t *testing.T) {
	var m notificationMapper

	t.Run("absent row returns nil", func(t *testing.T) {
		uow, mock := setupUow(t)
		repo := NewNotificationRepository(uow)

		id := uuid.New()
		mock.ExpectPrepare(m.selectByID()).
			ExpectQuery().WithArgs(id).
			WillReturnRows(sqlmock.NewRows(notificationColumns()))

		n, err := repo.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Nil(t, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("full aggregate", func(t *testing.T) {
		uow, mock := setupUow(t)
		repo := NewNotificationRepository(uow)

		id := uuid.New()
		targetID := uuid.New()
		audienceID := uuid.New()
		memberID := uuid.New()
		sendAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

		mock.ExpectPrepare(m.selectByID()).
			ExpectQuery().WithArgs(id).
			WillReturnRows(sqlmock.NewRows(notificationColumns()).
				AddRow(id.String(), "hello", "sending", sendAt, nil))

		mock.ExpectPrepare(m.selectTargetsFor()).
			ExpectQuery().WithArgs(id).
			WillReturnRows(sqlmock.NewRows(targetColumns()).
				AddRow(targetID.String(), "ada", "+12125550123"))

		mock.ExpectPrepare(m.selectMessagesFor()).
			ExpectQuery().WithArgs(id).
			WillReturnRows(sqlmock.NewRows(messageColumns()).
				AddRow(1, "+12125550100", "+12125550123", "hello", "sent", id.String(), "EXT-1").
				AddRow(2, "+12125550100", "+12125550124", "hello", "pending", id.String(), ""))

		mock.ExpectPrepare(m.selectAudiencesFor()).
			ExpectQuery().WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"uuid", "name"}).
				AddRow(audienceID.String(), "ops"))

		mock.ExpectPrepare(m.selectMembersFor()).
			ExpectQuery().WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"audience_uuid", "uuid", "name", "phone_number"}).
				AddRow(audienceID.String(), memberID.String(), "grace", "+12125550124"))

		n, err := repo.Get(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, n)

		assert.Equal(t, id, n.UUID)
		assert.Equal(t, "hello", n.Content)
		assert.Equal(t, model.NotificationStatusSending, n.Status)
		require.NotNil(t, n.SendAt)
		assert.True(t, n.SendAt.Equal(sendAt))
		assert.Nil(t, n.SentAt)

		targets := n.Targets()
		require.Len(t, targets, 1)
		assert.Equal(t, "ada", targets[0].Name)
		assert.Equal(t, "+12125550123", targets[0].Phone.String())

		msgs := n.Messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, model.MessageStatusSent, n.Message(1).Status)
		assert.Equal(t, "EXT-1", n.Message(1).ExternalID)
		assert.Equal(t, model.MessageStatusPending, n.Message(2).Status)

		audiences := n.Audiences()
		require.Len(t, audiences, 1)
		assert.Equal(t, "ops", audiences[0].Name)
		require.Len(t, audiences[0].Members(), 1)
		assert.Equal(t, "grace", audiences[0].Members()[0].Name)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("member rows for unknown audiences are skipped", func(t *testing.T) {
		uow, mock := setupUow(t)
		repo := NewNotificationRepository(uow)

		id := uuid.New()
		mock.ExpectPrepare(m.selectByID()).
			ExpectQuery().WithArgs(id).
			WillReturnRows(sqlmock.NewRows(notificationColumns()).
				AddRow(id.String(), "hello", "pending", nil, nil))
		mock.ExpectPrepare(m.selectTargetsFor()).
			ExpectQuery().WithArgs(id).
			WillReturnRows(sqlmock.NewRows(targetColumns()))
		mock.ExpectPrepare(m.selectMessagesFor()).
			ExpectQuery().WithArgs(id).
			WillReturnRows(sqlmock.NewRows(messageColumns()))
		mock.ExpectPrepare(m.selectAudiencesFor()).
			ExpectQuery().WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"uuid", "name"}))
		mock.ExpectPrepare(m.selectMembersFor()).
			ExpectQuery().WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"audience_uuid", "uuid", "name", "phone_number"}).
				AddRow(uuid.New().String(), uuid.New().String(), "orphan", "+12125550125"))

		n, err := repo.Get(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, n)
		assert.Empty(t, n.Audiences())
	})
}

func TestNotificationRepository_Add(t *testing.T) {
	var m notificationMapper
	uow, mock := setupUow(t)
	repo := NewNotificationRepository(uow)

	n, err := model.NewNotification("hello", nil)
	require.NoError(t, err)

	target := &model.Target{UUID: uuid.New(), Name: "ada"}
	target.Phone, err = model.ParsePhoneNumber("+12125550123")
	require.NoError(t, err)
	n.AddTarget(target)

	audience := model.ReconstituteAudience(uuid.New(), "ops")
	n.AddAudience(audience)

	from, err := model.ParsePhoneNumber("+12125550100")
	require.NoError(t, err)
	n.PrepareMessages(from)
	require.Len(t, n.Messages(), 1)

	mock.ExpectPrepare(m.insert()).
		ExpectExec().WithArgs(n.UUID, "hello", "pending", nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectPrepare(m.insertMessage()).
		ExpectExec().WithArgs(1, "+12125550100", "+12125550123", "hello", "pending", n.UUID, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectPrepare(m.associateTarget()).
		ExpectExec().WithArgs(n.UUID, target.UUID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectPrepare(m.associateAudience()).
		ExpectExec().WithArgs(n.UUID, audience.UUID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Add(context.Background(), n))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_Put(t *testing.T) {
	var m notificationMapper

	t.Run("present row updates scalars in place", func(t *testing.T) {
		uow, mock := setupUow(t)
		repo := NewNotificationRepository(uow)

		n, err := model.NewNotification("hello", nil)
		require.NoError(t, err)

		mock.ExpectPrepare(m.exists()).
			ExpectQuery().WithArgs(n.UUID).
			WillReturnRows(sqlmock.NewRows([]string{"uuid"}).AddRow(n.UUID.String()))
		mock.ExpectPrepare(m.update()).
			ExpectExec().WithArgs("hello", "pending", nil, nil, n.UUID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Put(context.Background(), n))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("absent row falls back to insert", func(t *testing.T) {
		uow, mock := setupUow(t)
		repo := NewNotificationRepository(uow)

		n, err := model.NewNotification("hello", nil)
		require.NoError(t, err)

		mock.ExpectPrepare(m.exists()).
			ExpectQuery().WithArgs(n.UUID).
			WillReturnRows(sqlmock.NewRows([]string{"uuid"}))
		mock.ExpectPrepare(m.insert()).
			ExpectExec().WithArgs(n.UUID, "hello", "pending", nil, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Put(context.Background(), n))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNotificationRepository_UpdateMessage(t *testing.T) {
	var m notificationMapper
	uow, mock := setupUow(t)
	repo := NewNotificationRepository(uow)

	id := uuid.New()
	msg := &model.Message{ID: 3, Status: model.MessageStatusSent, ExternalID: "EXT-3"}

	mock.ExpectPrepare(m.updateMessage()).
		ExpectExec().WithArgs("sent", "EXT-3", id, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateMessage(context.Background(), id, msg))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_Remove(t *testing.T) {
	var m notificationMapper
	uow, mock := setupUow(t)
	repo := NewNotificationRepository(uow)

	id := uuid.New()

	// Associations and owned messages go before the aggregate row.
	mock.ExpectPrepare(m.disassociateTargets()).
		ExpectExec().WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectPrepare(m.disassociateAudiences()).
		ExpectExec().WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectPrepare(m.deleteMessagesFor()).
		ExpectExec().WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectPrepare(m.delete()).
		ExpectExec().WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Remove(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_Size(t *testing.T) {
	var m notificationMapper
	uow, mock := setupUow(t)
	repo := NewNotificationRepository(uow)

	mock.ExpectPrepare(m.count()).
		ExpectQuery().
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := repo.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestNotificationRepository_StorageErrors(t *testing.T) {
	var m notificationMapper

	t.Run("query failure surfaces as storage error", func(t *testing.T) {
		uow, mock := setupUow(t)
		repo := NewNotificationRepository(uow)

		id := uuid.New()
		mock.ExpectPrepare(m.selectByID()).
			ExpectQuery().WithArgs(id).
			WillReturnError(assert.AnError)

		_, err := repo.Get(context.Background(), id)
		require.Error(t, err)
		assert.ErrorIs(t, err, pg.ErrStorage)
	})

	t.Run("exec failure surfaces as storage error", func(t *testing.T) {
		uow, mock := setupUow(t)
		repo := NewNotificationRepository(uow)

		id := uuid.New()
		mock.ExpectPrepare(m.disassociateTargets()).
			ExpectExec().WithArgs(id).
			WillReturnError(assert.AnError)

		err := repo.Remove(context.Background(), id)
		require.Error(t, err)
		assert.ErrorIs(t, err, pg.ErrStorage)
	})
}
