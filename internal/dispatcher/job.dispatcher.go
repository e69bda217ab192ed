package dispatcher

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	gateway "github.com/mkamali/notification-dispatch/internal/gateways"
	"github.com/mkamali/notification-dispatch/internal/queue"
	"github.com/mkamali/notification-dispatch/pkg/logger"
	"github.com/mkamali/notification-dispatch/pkg/prom"
)

// Notifier records dispatch outcomes on the owning notification. Both calls
// persist the message row and the recomputed aggregate status together.
type Notifier interface {
	MarkSent(ctx context.Context, notificationID uuid.UUID, messageID int, externalID string) error
	MarkFailed(ctx context.Context, notificationID uuid.UUID, messageID int) error
}

// Sender hands one message to an SMS provider.
type Sender interface {
	Send(ctx context.Context, req *gateway.SendRequest) (*gateway.SendResponse, error)
}

// JobDispatcher processes one dispatch job: lock it, push it to a provider,
// record the outcome. A nil return acknowledges the queue entry.
type JobDispatcher struct {
	sender   Sender
	notifier Notifier
	guard    *IdempotencyGuard
}

func NewJobDispatcher(sender Sender, notifier Notifier, guard *IdempotencyGuard) *JobDispatcher {
	return &JobDispatcher{
		sender:   sender,
		notifier: notifier,
		guard:    guard,
	}
}

func (d *JobDispatcher) GetType() string {
	return "dispatch"
}

func (d *JobDispatcher) Process(ctx context.Context, delivery *queue.Delivery) error {
	job := delivery.Job
	key := job.Key()

	attempt, err := d.guard.Acquire(ctx, key)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyDispatched):
			logger.Info("message already dispatched, skipping", "key", key)
			return nil
		case errors.Is(err, ErrRetriesExhausted):
			// Give up on this message; the failure flows into the aggregate
			// status and the entry is acknowledged.
			logger.Error("dispatch retries exhausted", "key", key)
			if markErr := d.notifier.MarkFailed(ctx, job.NotificationUUID, job.MessageID); markErr != nil {
				logger.Error("failed to record terminal failure", "key", key, "error", markErr)
				return markErr
			}
			prom.IncMessageDispatched("exhausted")
			return nil
		case errors.Is(err, ErrLockHeld):
			return err
		default:
			logger.Error("failed to acquire dispatch lock", "key", key, "error", err)
			return err
		}
	}
	defer d.guard.Release(ctx, attempt)

	logger.Info("dispatching message", "key", key, "to", job.To, "retry_count", attempt.RetryCount)

	start := time.Now()
	res, err := d.sender.Send(ctx, &gateway.SendRequest{
		MessageKey:  key,
		PhoneNumber: job.To,
		Content:     job.Content,
	})
	if err != nil {
		d.guard.MarkFailure(ctx, attempt, err)
		prom.IncMessageDispatched("error")
		return err
	}

	if res.Status != gateway.StatusAccepted {
		// The provider saw the message and refused it; retrying the same
		// payload will not change its mind.
		logger.Warn("provider rejected message", "key", key, "error_code", res.ErrorCode)
		if markErr := d.notifier.MarkFailed(ctx, job.NotificationUUID, job.MessageID); markErr != nil {
			d.guard.MarkFailure(ctx, attempt, markErr)
			return markErr
		}
		if markErr := d.guard.MarkDispatched(ctx, attempt); markErr != nil {
			logger.Error("failed to mark dispatch done", "key", key, "error", markErr)
		}
		prom.IncMessageDispatched("rejected")
		return nil
	}

	if markErr := d.notifier.MarkSent(ctx, job.NotificationUUID, job.MessageID, res.ExternalID); markErr != nil {
		// The provider accepted but the database update failed. Retry the
		// whole job; the done marker is not set yet so the redelivery is
		// not absorbed.
		d.guard.MarkFailure(ctx, attempt, markErr)
		return markErr
	}

	if markErr := d.guard.MarkDispatched(ctx, attempt); markErr != nil {
		logger.Error("failed to mark dispatch done", "key", key, "error", markErr)
	}

	prom.IncMessageDispatched("sent")
	prom.AddDispatchDuration(time.Since(start).Seconds(), "sent")
	logger.Info("message dispatched", "key", key, "external_id", res.ExternalID, "retry_count", attempt.RetryCount)
	return nil
}
