package dispatcher

import (
	"context"
	"testing"

	"github.com/google/uuid"
	gateway "github.com/mkamali/notification-dispatch/internal/gateways"
	"github.com/mkamali/notification-dispatch/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, req *gateway.SendRequest) (*gateway.SendResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.SendResponse), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) MarkSent(ctx context.Context, notificationID uuid.UUID, messageID int, externalID string) error {
	args := m.Called(ctx, notificationID, messageID, externalID)
	return args.Error(0)
}

func (m *MockNotifier) MarkFailed(ctx context.Context, notificationID uuid.UUID, messageID int) error {
	args := m.Called(ctx, notificationID, messageID)
	return args.Error(0)
}

func testDelivery() *queue.Delivery {
	return &queue.Delivery{
		ID: "1-0",
		Job: queue.DispatchJob{
			NotificationUUID: uuid.New(),
			MessageID:        1,
			To:               "+12125550123",
			Content:          "hello",
		},
		Attempts: 1,
	}
}

func TestJobDispatcher_GetType(t *testing.T) {
	d := NewJobDispatcher(new(MockSender), new(MockNotifier), nil)
	assert.Equal(t, "dispatch", d.GetType())
}

func TestJobDispatcher_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("accepted message is marked sent and done", func(t *testing.T) {
		mr, guard := setupGuard(t)
		sender := new(MockSender)
		notifier := new(MockNotifier)
		d := NewJobDispatcher(sender, notifier, guard)

		delivery := testDelivery()
		key := delivery.Job.Key()

		sender.On("Send", mock.Anything, mock.MatchedBy(func(req *gateway.SendRequest) bool {
			return req.MessageKey == key && req.PhoneNumber == "+12125550123" && req.Content == "hello"
		})).Return(&gateway.SendResponse{
			MessageKey: key,
			Status:     gateway.StatusAccepted,
			ExternalID: "EXT-1",
		}, nil)
		notifier.On("MarkSent", mock.Anything, delivery.Job.NotificationUUID, 1, "EXT-1").Return(nil)

		require.NoError(t, d.Process(ctx, delivery))

		assert.True(t, mr.Exists("dispatch:done:"+key))
		assert.False(t, mr.Exists("dispatch:lock:"+key))
		sender.AssertExpectations(t)
		notifier.AssertExpectations(t)
	})

	t.Run("done marker absorbs redelivery", func(t *testing.T) {
		mr, guard := setupGuard(t)
		sender := new(MockSender)
		notifier := new(MockNotifier)
		d := NewJobDispatcher(sender, notifier, guard)

		delivery := testDelivery()
		mr.Set("dispatch:done:"+delivery.Job.Key(), "1")

		require.NoError(t, d.Process(ctx, delivery))
		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("send error bumps retries and propagates", func(t *testing.T) {
		mr, guard := setupGuard(t)
		sender := new(MockSender)
		notifier := new(MockNotifier)
		d := NewJobDispatcher(sender, notifier, guard)

		delivery := testDelivery()
		key := delivery.Job.Key()
		sender.On("Send", mock.Anything, mock.Anything).Return(nil, assert.AnError)

		err := d.Process(ctx, delivery)
		assert.ErrorIs(t, err, assert.AnError)

		retries, rerr := mr.Get("dispatch:retry:" + key)
		require.NoError(t, rerr)
		assert.Equal(t, "1", retries)
		assert.False(t, mr.Exists("dispatch:done:"+key))
		notifier.AssertNotCalled(t, "MarkSent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("exhausted retries fail the message terminally", func(t *testing.T) {
		mr, guard := setupGuard(t)
		sender := new(MockSender)
		notifier := new(MockNotifier)
		d := NewJobDispatcher(sender, notifier, guard)

		delivery := testDelivery()
		mr.Set("dispatch:retry:"+delivery.Job.Key(), "3")
		notifier.On("MarkFailed", mock.Anything, delivery.Job.NotificationUUID, 1).Return(nil)

		require.NoError(t, d.Process(ctx, delivery))

		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
		notifier.AssertExpectations(t)
	})

	t.Run("exhausted retries with failing store keeps entry pending", func(t *testing.T) {
		mr, guard := setupGuard(t)
		sender := new(MockSender)
		notifier := new(MockNotifier)
		d := NewJobDispatcher(sender, notifier, guard)

		delivery := testDelivery()
		mr.Set("dispatch:retry:"+delivery.Job.Key(), "3")
		notifier.On("MarkFailed", mock.Anything, delivery.Job.NotificationUUID, 1).Return(assert.AnError)

		assert.ErrorIs(t, d.Process(ctx, delivery), assert.AnError)
	})

	t.Run("held lock propagates for redelivery", func(t *testing.T) {
		_, guard := setupGuard(t)
		sender := new(MockSender)
		notifier := new(MockNotifier)
		d := NewJobDispatcher(sender, notifier, guard)

		delivery := testDelivery()
		_, err := guard.Acquire(ctx, delivery.Job.Key())
		require.NoError(t, err)

		assert.ErrorIs(t, d.Process(ctx, delivery), ErrLockHeld)
	})

	t.Run("provider rejection is terminal", func(t *testing.T) {
		mr, guard := setupGuard(t)
		sender := new(MockSender)
		notifier := new(MockNotifier)
		d := NewJobDispatcher(sender, notifier, guard)

		delivery := testDelivery()
		key := delivery.Job.Key()
		sender.On("Send", mock.Anything, mock.Anything).Return(&gateway.SendResponse{
			MessageKey: key,
			Status:     gateway.StatusRejected,
			ErrorCode:  "INVALID_NUMBER",
		}, nil)
		notifier.On("MarkFailed", mock.Anything, delivery.Job.NotificationUUID, 1).Return(nil)

		require.NoError(t, d.Process(ctx, delivery))

		assert.True(t, mr.Exists("dispatch:done:"+key))
		notifier.AssertExpectations(t)
		notifier.AssertNotCalled(t, "MarkSent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("store failure after acceptance retries without done marker", func(t *testing.T) {
		mr, guard := setupGuard(t)
		sender := new(MockSender)
		notifier := new(MockNotifier)
		d := NewJobDispatcher(sender, notifier, guard)

		delivery := testDelivery()
		key := delivery.Job.Key()
		sender.On("Send", mock.Anything, mock.Anything).Return(&gateway.SendResponse{
			MessageKey: key,
			Status:     gateway.StatusAccepted,
			ExternalID: "EXT-1",
		}, nil)
		notifier.On("MarkSent", mock.Anything, delivery.Job.NotificationUUID, 1, "EXT-1").Return(assert.AnError)

		assert.ErrorIs(t, d.Process(ctx, delivery), assert.AnError)

		assert.False(t, mr.Exists("dispatch:done:"+key))
		retries, rerr := mr.Get("dispatch:retry:" + key)
		require.NoError(t, rerr)
		assert.Equal(t, "1", retries)
	})
}
