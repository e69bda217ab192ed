package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mkamali/notification-dispatch/internal/config"
	"github.com/mkamali/notification-dispatch/internal/dispatcher"
	gateway "github.com/mkamali/notification-dispatch/internal/gateways"
	"github.com/mkamali/notification-dispatch/internal/model"
	"github.com/mkamali/notification-dispatch/internal/queue"
	"github.com/mkamali/notification-dispatch/internal/services"
	"github.com/mkamali/notification-dispatch/pkg/logger"
	"github.com/mkamali/notification-dispatch/pkg/pg"
	"github.com/mkamali/notification-dispatch/pkg/prom"
	"github.com/mkamali/notification-dispatch/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	db, err := pg.Open(pg.Config{
		User:     config.Get().PostgresUser,
		Host:     config.Get().PostgresHost,
		Port:     config.Get().PostgresPort,
		Password: config.Get().PostgresPassword,
		Database: config.Get().PostgresDatabase,
	})
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewAdapter(config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	client, err := gateway.NewClient(&gateway.Config{
		Providers: []gateway.ProviderConfig{
			{Name: "primary", URL: config.Get().ProviderPrimaryUrl},
			{Name: "backup", URL: config.Get().ProviderBackupUrl},
		},
		Timeout:                 time.Second * 5,
		MaxRetries:              3,
		RetryDelay:              time.Millisecond * 100,
		MaxConns:                1000,
		ReadBufferSize:          1024 * 4,
		WriteBufferSize:         1024 * 4,
		HealthCheckInterval:     30 * time.Second,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   60 * time.Second,
	})
	if err != nil {
		logger.Error("failed to create gateway client", "error", err)
		return
	}

	sender, err := model.ParsePhoneNumber(config.Get().SenderPhoneNumber)
	if err != nil {
		logger.Error("invalid sender phone number", "error", err)
		return
	}

	queueConfig := queue.Config{
		Name:              config.Get().QueueName,
		ConsumerGroup:     config.Get().QueueConsumerGroup,
		ConsumerName:      config.Get().QueueConsumerName,
		MaxRetries:        config.Get().QueueMaxRetries,
		VisibilityTimeout: config.Get().QueueVisibilityTimeout,
		PollInterval:      config.Get().QueuePollInterval,
		BatchSize:         config.Get().QueueBatchSize,
		MaxLen:            config.Get().QueueMaxLen,
		EnableDLQ:         config.Get().QueueEnableDLQ,
	}

	// The scheduler sweep publishes through the same queue the consumers
	// read from.
	publishQueue, err := queue.New(redisAdap, queueConfig)
	if err != nil {
		logger.Error("failed creating queue", "error", err)
		return
	}

	uowFactory := pg.NewUnitOfWorkFactory(db)
	notificationService := services.NewNotificationService(uowFactory, nil, publishQueue, sender)

	guard := dispatcher.NewIdempotencyGuard(redisAdap, dispatcher.DefaultIdempotencyConfig())

	service, err := dispatcher.NewService(redisAdap, dispatcher.Config{
		Queue:             queueConfig,
		Consumers:         config.Get().DispatchConsumers,
		Workers:           config.Get().DispatchWorkers,
		SchedulerInterval: config.Get().DispatchSchedulerInterval,
	})
	if err != nil {
		logger.Error("failed to create dispatch service", "error", err)
		return
	}
	service.RegisterProcessor(dispatcher.NewJobDispatcher(client, notificationService, guard))
	service.RegisterSweeper(notificationService)

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	go func() {
		prom.ListenAndServer(":9100", "/metrics")
	}()

	go func() {
		if err := service.Start(); err != nil {
			logger.Error("failed to start dispatch service", "error", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	select {
	case <-c:
		service.Stop()
		_ = client.Close()
	}
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
