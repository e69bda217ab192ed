package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mkamali/notification-dispatch/internal/config"
	"github.com/mkamali/notification-dispatch/internal/handlers"
	"github.com/mkamali/notification-dispatch/internal/model"
	"github.com/mkamali/notification-dispatch/internal/queue"
	"github.com/mkamali/notification-dispatch/internal/services"
	xhttp "github.com/mkamali/notification-dispatch/pkg/http"
	"github.com/mkamali/notification-dispatch/pkg/logger"
	"github.com/mkamali/notification-dispatch/pkg/pg"
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

	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(time.Second * 5))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

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

	q, err := queue.New(redisAdap, queue.Config{
		Name:              config.Get().QueueName,
		ConsumerGroup:     config.Get().QueueConsumerGroup,
		ConsumerName:      config.Get().QueueConsumerName,
		MaxRetries:        config.Get().QueueMaxRetries,
		VisibilityTimeout: config.Get().QueueVisibilityTimeout,
		PollInterval:      config.Get().QueuePollInterval,
		BatchSize:         config.Get().QueueBatchSize,
		MaxLen:            config.Get().QueueMaxLen,
		EnableDLQ:         config.Get().QueueEnableDLQ,
	})
	if err != nil {
		logger.Error("failed creating queue", "error", err)
		return
	}

	sender, err := model.ParsePhoneNumber(config.Get().SenderPhoneNumber)
	if err != nil {
		logger.Error("invalid sender phone number", "error", err)
		return
	}

	uowFactory := pg.NewUnitOfWorkFactory(db)

	notificationService := services.NewNotificationService(uowFactory, nil, q, sender)
	targetService := services.NewTargetService(uowFactory, nil)
	audienceService := services.NewAudienceService(uowFactory, nil)
	templateService := services.NewTemplateService(uowFactory, nil)

	g := s.Router.Group("/api/v1")
	handlers.RegisterNotificationRoutes(g, handlers.NewNotificationHandler(notificationService))
	handlers.RegisterTargetRoutes(g, handlers.NewTargetHandler(targetService))
	handlers.RegisterAudienceRoutes(g, handlers.NewAudienceHandler(audienceService))
	handlers.RegisterTemplateRoutes(g, handlers.NewTemplateHandler(templateService))
	handlers.RegisterCallbackRoutes(g, handlers.NewCallbackHandler(notificationService))
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	select {
	case <-c:
		s.Shutdown()
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
