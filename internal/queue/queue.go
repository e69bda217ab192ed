package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mkamali/notification-dispatch/pkg/logger"
	"github.com/mkamali/notification-dispatch/pkg/redis"
)

// DispatchJob is the unit of work handed from the API to the dispatcher: one
// pending message of one notification, addressed by composite key.
type DispatchJob struct {
	NotificationUUID uuid.UUID `json:"notification_uuid"`
	MessageID        int       `json:"message_id"`
	To               string    `json:"to"`
	Content          string    `json:"content"`
}

// Key is the stable identity of the job, used for idempotent processing.
func (j DispatchJob) Key() string {
	return j.NotificationUUID.String() + ":" + strconv.Itoa(j.MessageID)
}

// Delivery is one job read from the stream, together with its redelivery
// count and the stream entry id needed to acknowledge it.
type Delivery struct {
	ID       string
	Job      DispatchJob
	Attempts int
}

// Handler processes one delivery. A nil return acknowledges the entry;
// an error leaves it pending for redelivery.
type Handler func(ctx context.Context, d *Delivery) error

type Config struct {
	Name              string
	ConsumerGroup     string
	ConsumerName      string
	MaxRetries        int
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	BatchSize         int64
	MaxLen            int64
	EnableDLQ         bool
}

// Queue is a redis-streams work queue for dispatch jobs: consumer groups for
// sharding, pending-entry claims for crash recovery, and an optional dead
// letter stream for jobs that exhaust their retries.
type Queue struct {
	adapter redis.Adapter
	config  Config
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(adapter redis.Adapter, config Config) (*Queue, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = "dispatchers"
	}
	if config.ConsumerName == "" {
		config.ConsumerName = fmt.Sprintf("dispatcher-%d", time.Now().UnixNano())
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.VisibilityTimeout == 0 {
		config.VisibilityTimeout = 30 * time.Second
	}
	if config.PollInterval == 0 {
		config.PollInterval = time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		adapter: adapter,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
	}

	// Group may already exist; that is fine.
	_ = q.adapter.XGroupCreateMkStream(q.config.Name, q.config.ConsumerGroup, "0")

	return q, nil
}

// Publish appends one job to the stream.
func (q *Queue) Publish(ctx context.Context, job DispatchJob) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	id, err := q.adapter.XAdd(q.config.Name, map[string]interface{}{
		"job":       string(data),
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish job: %w", err)
	}

	if q.config.MaxLen > 0 {
		_ = q.adapter.XTrimApprox(q.config.Name, q.config.MaxLen)
	}
	return id, nil
}

// Consume starts the poll loop. Jobs are acknowledged when the handler
// returns nil and left pending otherwise.
func (q *Queue) Consume(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler is required")
	}
	q.handler = handler
	q.wg.Add(1)
	go q.consumeLoop()
	return nil
}

func (q *Queue) consumeLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.readNew()
			q.claimStuck()
		}
	}
}

func (q *Queue) readNew() {
	entries, err := q.adapter.XReadGroup(
		q.config.ConsumerGroup,
		q.config.ConsumerName,
		q.config.Name,
		">",
		q.config.BatchSize,
	)
	if err != nil {
		if err != redis.NilError {
			logger.Error("queue read failed", "queue", q.config.Name, "error", err)
		}
		return
	}

	for _, entry := range entries {
		q.handle(q.toDelivery(entry))
	}
}

// claimStuck takes over entries another consumer read but never acknowledged
// within the visibility timeout.
func (q *Queue) claimStuck() {
	pending, err := q.adapter.XPending(q.config.Name, q.config.ConsumerGroup)
	if err != nil || pending == nil || pending.Count == 0 {
		return
	}

	pendingExt, err := q.adapter.XPendingExt(q.config.Name, q.config.ConsumerGroup, "-", "+", 100)
	if err != nil || len(pendingExt) == 0 {
		return
	}

	var stale []string
	attempts := make(map[string]int, len(pendingExt))
	for _, p := range pendingExt {
		if p.Idle >= q.config.VisibilityTimeout {
			stale = append(stale, p.ID)
			attempts[p.ID] = int(p.RetryCount)
		}
	}
	if len(stale) == 0 {
		return
	}

	claimed, err := q.adapter.XClaim(q.config.Name, q.config.ConsumerGroup, q.config.ConsumerName, q.config.VisibilityTimeout, stale...)
	if err != nil {
		return
	}

	for _, entry := range claimed {
		d := q.toDelivery(entry)
		d.Attempts = attempts[entry.ID]
		q.handle(d)
	}
}

func (q *Queue) handle(d *Delivery) {
	if d == nil {
		return
	}

	if d.Attempts >= q.config.MaxRetries {
		q.moveToDeadLetter(d)
		_ = q.ack(d.ID)
		return
	}

	ctx, cancel := context.WithTimeout(q.ctx, q.config.VisibilityTimeout)
	defer cancel()

	if err := q.handler(ctx, d); err != nil {
		// Not acked; the entry stays pending and is reclaimed later.
		return
	}
	_ = q.ack(d.ID)
}

func (q *Queue) ack(entryID string) error {
	return q.adapter.XAck(q.config.Name, q.config.ConsumerGroup, entryID)
}

func (q *Queue) moveToDeadLetter(d *Delivery) {
	if !q.config.EnableDLQ {
		return
	}

	data, err := json.Marshal(d.Job)
	if err != nil {
		return
	}
	_, _ = q.adapter.XAdd(q.config.Name+":dlq", map[string]interface{}{
		"job":            string(data),
		"original_id":    d.ID,
		"attempts":       d.Attempts,
		"failed_at":      time.Now().Unix(),
		"original_queue": q.config.Name,
	})
	logger.Warn("job moved to dead letter queue", "queue", q.config.Name, "job", d.Job.Key(), "attempts", d.Attempts)
}

func (q *Queue) toDelivery(entry redis.StreamMessage) *Delivery {
	raw, ok := entry.Values["job"].(string)
	if !ok {
		// Malformed entry; acknowledge so it does not loop forever.
		_ = q.ack(entry.ID)
		return nil
	}

	var job DispatchJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		logger.Error("dropping undecodable job", "queue", q.config.Name, "entry", entry.ID, "error", err)
		_ = q.ack(entry.ID)
		return nil
	}
	return &Delivery{ID: entry.ID, Job: job}
}

type Stats struct {
	TotalEntries   int64
	PendingEntries int64
	ConsumerCount  int64
}

func (q *Queue) GetStats() (*Stats, error) {
	total, err := q.adapter.XLen(q.config.Name)
	if err != nil {
		return nil, err
	}

	stats := &Stats{TotalEntries: total}
	if pending, err := q.adapter.XPending(q.config.Name, q.config.ConsumerGroup); err == nil && pending != nil {
		stats.PendingEntries = pending.Count
		stats.ConsumerCount = int64(len(pending.Consumers))
	}
	return stats, nil
}

// Stop cancels the poll loop and waits up to timeout for it to drain.
func (q *Queue) Stop(timeout time.Duration) error {
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for queue to stop")
	}
}
