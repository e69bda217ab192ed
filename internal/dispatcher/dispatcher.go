package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mkamali/notification-dispatch/internal/queue"
	"github.com/mkamali/notification-dispatch/pkg/logger"
	"github.com/mkamali/notification-dispatch/pkg/redis"
	"github.com/mkamali/notification-dispatch/pkg/worker"
)

const ProcessingTimeout = time.Second * 5
const HealthInterval = time.Second * 30
const ShutdownTimeout = time.Minute

// Processor handles one queue delivery.
type Processor interface {
	Process(ctx context.Context, delivery *queue.Delivery) error
	GetType() string
}

// PendingSweeper re-enqueues scheduled notifications that have come due.
type PendingSweeper interface {
	DuePending(ctx context.Context, now time.Time) (int, error)
}

type Config struct {
	Queue             queue.Config
	Consumers         int
	Workers           int
	WorkerBuffer      int
	SchedulerInterval time.Duration
}

// Service is the dispatch daemon: queue consumers feed a worker pool that
// runs the processor, and a scheduler loop sweeps due notifications back
// onto the queue.
type Service struct {
	adapter   redis.Adapter
	config    Config
	queues    []*queue.Queue
	processor Processor
	sweeper   PendingSweeper
	metrics   *ServiceMetrics
	worker    *worker.Manager
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewService(adapter redis.Adapter, config Config) (*Service, error) {
	if config.Consumers == 0 {
		config.Consumers = 10
	}
	if config.Workers == 0 {
		config.Workers = 100
	}
	if config.WorkerBuffer == 0 {
		config.WorkerBuffer = 10_000
	}
	if config.SchedulerInterval == 0 {
		config.SchedulerInterval = 15 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		adapter: adapter,
		config:  config,
		queues:  make([]*queue.Queue, 0, config.Consumers),
		metrics: NewServiceMetrics(),
		worker:  worker.NewManager(config.WorkerBuffer, config.Workers, nil),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// RegisterProcessor sets the handler that dispatches each delivery.
func (s *Service) RegisterProcessor(processor Processor) {
	s.processor = processor
	logger.Info("registered processor", "type", processor.GetType())
}

// RegisterSweeper enables the scheduler loop.
func (s *Service) RegisterSweeper(sweeper PendingSweeper) {
	s.sweeper = sweeper
}

func (s *Service) Start() error {
	logger.Info("starting dispatch service...")

	s.worker.SetWorker(s.workerHandler)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.worker.Start(); err != nil {
			logger.Error("worker manager stopped", "error", err)
		}
	}()

	for i := 0; i < s.config.Consumers; i++ {
		queueConfig := s.config.Queue
		queueConfig.ConsumerName = fmt.Sprintf("%s-instance-%d", queueConfig.ConsumerName, i)

		q, err := queue.New(s.adapter, queueConfig)
		if err != nil {
			return fmt.Errorf("failed to create queue %d: %w", i, err)
		}

		if err := q.Consume(s.deliveryHandler); err != nil {
			return fmt.Errorf("failed to start consumer %d: %w", i, err)
		}

		s.queues = append(s.queues, q)
	}

	s.wg.Add(2)
	go s.metricsReporter()
	go s.healthChecker()

	if s.sweeper != nil {
		s.wg.Add(1)
		go s.schedulerLoop()
	}

	logger.Info("dispatch service started", "consumers", len(s.queues), "workers", s.config.Workers)
	return nil
}

// schedulerLoop periodically re-enqueues scheduled notifications whose send
// time has passed.
func (s *Service) schedulerLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SchedulerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := s.sweeper.DuePending(s.ctx, time.Now())
			if err != nil {
				logger.Error("scheduler sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("scheduler sweep enqueued due notifications", "count", n)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Service) metricsReporter() {
	defer s.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reportMetrics()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Service) reportMetrics() {
	stats := s.metrics.GetStats()
	logger.Info("dispatch metrics",
		"total_dispatched", stats["total_dispatched"],
		"total_failed", stats["total_failed"],
		"rate_per_second", stats["rate_per_second"],
		"avg_duration_ms", stats["avg_duration_ms"],
		"uptime_seconds", stats["uptime_seconds"])

	for i, q := range s.queues {
		if qStats, err := q.GetStats(); err == nil {
			logger.Info("queue stats", "queue", i, "total", qStats.TotalEntries, "pending", qStats.PendingEntries)
		}
	}
}

func (s *Service) healthChecker() {
	defer s.wg.Done()

	ticker := time.NewTicker(HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.performHealthCheck()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Service) performHealthCheck() {
	if err := s.adapter.Client().Ping(context.Background()).Err(); err != nil {
		logger.Error("health check failed: redis connection error", "error", err)
		return
	}

	for i, q := range s.queues {
		stats, err := q.GetStats()
		if err != nil {
			logger.Warn("health check: queue stats unavailable", "queue", i, "error", err)
			continue
		}
		if stats.PendingEntries > 10000 {
			logger.Warn("health check: queue has high lag", "queue", i, "pending_entries", stats.PendingEntries)
		}
	}
}

// Stop gracefully stops the consumers, worker pool, and background loops.
func (s *Service) Stop() {
	logger.Info("shutting down dispatch service...")

	s.cancel()

	timeout := ShutdownTimeout
	stopChan := make(chan bool, len(s.queues))

	for i, q := range s.queues {
		go func(index int, q *queue.Queue) {
			if err := q.Stop(timeout); err != nil {
				logger.Error("error stopping queue", "queue", index, "error", err)
			}
			stopChan <- true
		}(i, q)
	}

	for range s.queues {
		select {
		case <-stopChan:
		case <-time.After(timeout + 5*time.Second):
			logger.Warn("timeout waiting for queues to stop")
		}
	}

	s.worker.Exit()
	s.wg.Wait()
	s.reportMetrics()

	logger.Info("dispatch service stopped")
}

type jobResult struct {
	delivery   *queue.Delivery
	resultChan chan error
	ctx        context.Context
}

// deliveryHandler blocks the queue consumer until the worker pool finishes
// the delivery, so acks reflect the real outcome.
func (s *Service) deliveryHandler(ctx context.Context, delivery *queue.Delivery) error {
	resultChan := make(chan error, 1)

	msgCtx, cancel := context.WithTimeout(ctx, ProcessingTimeout+time.Second)
	defer cancel()

	s.worker.Enqueue(&jobResult{
		delivery:   delivery,
		resultChan: resultChan,
		ctx:        msgCtx,
	})

	select {
	case err := <-resultChan:
		return err
	case <-msgCtx.Done():
		return fmt.Errorf("timeout waiting for worker: %w", msgCtx.Err())
	}
}

func (s *Service) workerHandler(workerIndex int, job interface{}) {
	jobRes, ok := job.(*jobResult)
	if !ok {
		logger.Error("invalid job type in worker", "worker", workerIndex)
		return
	}

	select {
	case <-jobRes.ctx.Done():
		logger.Warn("job context cancelled before processing started", "worker", workerIndex)
		return
	default:
	}

	start := time.Now()
	var resultErr error

	if s.processor == nil {
		logger.Error("no processor registered", "worker", workerIndex)
		s.metrics.RecordFailure()
	} else if err := s.processor.Process(jobRes.ctx, jobRes.delivery); err != nil {
		s.metrics.RecordFailure()
		logger.Error("failed to process delivery", "worker", workerIndex, "error", err)
		resultErr = err
	} else {
		s.metrics.RecordSuccess(time.Since(start))
	}

	// The consumer may have timed out and stopped listening.
	select {
	case jobRes.resultChan <- resultErr:
	case <-jobRes.ctx.Done():
		logger.Warn("context cancelled while sending result", "worker", workerIndex)
	}
}
