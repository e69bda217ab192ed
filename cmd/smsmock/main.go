package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type AcceptanceStatus string

const (
	StatusAccepted AcceptanceStatus = "ACCEPTED"
	StatusRejected AcceptanceStatus = "REJECTED"
)

type DeliveryStatus string

const (
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusFailed    DeliveryStatus = "FAILED"
)

// SendSMSRequest is what the dispatcher posts to us.
type SendSMSRequest struct {
	MessageKey  string `json:"message_key" binding:"required"`
	PhoneNumber string `json:"phone_number" binding:"required"`
	Content     string `json:"content" binding:"required"`
}

// SendSMSResponse is the synchronous acceptance answer. Actual delivery is
// reported later through the callback URL.
type SendSMSResponse struct {
	MessageKey string           `json:"message_key"`
	Status     AcceptanceStatus `json:"status"`
	ExternalID string           `json:"external_id"`
	ErrorCode  string           `json:"error_code,omitempty"`
	AcceptedAt time.Time        `json:"accepted_at"`
}

// DeliveryCallback is the asynchronous delivery report we post back.
type DeliveryCallback struct {
	MessageKey string `json:"message_key"`
	Status     string `json:"status"`
	ExternalID string `json:"external_id"`
}

type HealthResponse struct {
	Status       string    `json:"status"`
	ProviderID   string    `json:"provider_id"`
	Timestamp    time.Time `json:"timestamp"`
	DeliveryRate float64   `json:"delivery_rate"`
}

// MockProvider simulates an SMS provider: it accepts messages, waits a
// random delay, then posts a delivery report to the configured callback URL.
type MockProvider struct {
	acceptRate   float64
	deliveryRate float64
	minDelay     time.Duration
	maxDelay     time.Duration
	callbackURL  string
	providerID   string
	rng          *rand.Rand
}

func NewMockProvider(acceptRate, deliveryRate float64, minDelay, maxDelay time.Duration, callbackURL string) *MockProvider {
	return &MockProvider{
		acceptRate:   acceptRate,
		deliveryRate: deliveryRate,
		minDelay:     minDelay,
		maxDelay:     maxDelay,
		callbackURL:  callbackURL,
		providerID:   "MOCK_PROVIDER_" + uuid.New().String()[:8],
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// accept decides synchronously whether the message enters the provider.
func (m *MockProvider) accept(req *SendSMSRequest) *SendSMSResponse {
	resp := &SendSMSResponse{
		MessageKey: req.MessageKey,
		AcceptedAt: time.Now(),
	}

	if m.rng.Float64() >= m.acceptRate {
		resp.Status = StatusRejected
		resp.ErrorCode = m.randomErrorCode()
		log.Warn().
			Str("message_key", req.MessageKey).
			Str("phone", req.PhoneNumber).
			Str("error_code", resp.ErrorCode).
			Msg("SMS rejected")
		return resp
	}

	resp.Status = StatusAccepted
	resp.ExternalID = m.providerID + "-" + uuid.New().String()[:13]

	log.Info().
		Str("message_key", req.MessageKey).
		Str("phone", req.PhoneNumber).
		Str("external_id", resp.ExternalID).
		Msg("SMS accepted")

	go m.deliverLater(req.MessageKey, resp.ExternalID)
	return resp
}

// deliverLater simulates the network leg and reports the outcome.
func (m *MockProvider) deliverLater(messageKey, externalID string) {
	time.Sleep(m.randomDelay())

	status := StatusDelivered
	if m.rng.Float64() >= m.deliveryRate {
		status = StatusFailed
	}

	if m.callbackURL == "" {
		log.Info().Str("message_key", messageKey).Str("status", string(status)).Msg("no callback URL, delivery report dropped")
		return
	}

	cb := DeliveryCallback{
		MessageKey: messageKey,
		Status:     string(status),
		ExternalID: externalID,
	}
	body, _ := json.Marshal(cb)

	resp, err := http.Post(m.callbackURL, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Str("message_key", messageKey).Msg("failed to post delivery callback")
		return
	}
	defer resp.Body.Close()

	log.Info().
		Str("message_key", messageKey).
		Str("status", string(status)).
		Int("callback_status", resp.StatusCode).
		Msg("delivery report posted")
}

func (m *MockProvider) randomDelay() time.Duration {
	delta := m.maxDelay - m.minDelay
	if delta <= 0 {
		return m.minDelay
	}
	return m.minDelay + time.Duration(m.rng.Int63n(int64(delta)))
}

func (m *MockProvider) randomErrorCode() string {
	errorCodes := []string{
		"INVALID_NUMBER",
		"BLOCKED",
		"INVALID_CONTENT",
		"PROVIDER_REJECTED",
	}
	return errorCodes[m.rng.Intn(len(errorCodes))]
}

type Handler struct {
	provider *MockProvider
}

func NewHandler(provider *MockProvider) *Handler {
	return &Handler{provider: provider}
}

func (h *Handler) SendSMS(c *gin.Context) {
	var req SendSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	resp := h.provider.accept(&req)

	statusCode := http.StatusOK
	if resp.Status == StatusRejected {
		statusCode = http.StatusAccepted // 202: request taken, message refused
	}
	c.JSON(statusCode, resp)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	// Simulate 5% downtime
	if h.provider.rng.Float64() < 0.05 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  "Provider temporarily unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:       "healthy",
		ProviderID:   h.provider.providerID,
		Timestamp:    time.Now(),
		DeliveryRate: h.provider.deliveryRate,
	})
}

// UpdateConfig allows changing provider behavior at runtime.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		AcceptRate   *float64 `json:"accept_rate"`
		DeliveryRate *float64 `json:"delivery_rate"`
	}

	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if config.AcceptRate != nil && *config.AcceptRate >= 0 && *config.AcceptRate <= 1.0 {
		h.provider.acceptRate = *config.AcceptRate
		log.Info().Float64("rate", *config.AcceptRate).Msg("Updated accept rate")
	}
	if config.DeliveryRate != nil && *config.DeliveryRate >= 0 && *config.DeliveryRate <= 1.0 {
		h.provider.deliveryRate = *config.DeliveryRate
		log.Info().Float64("rate", *config.DeliveryRate).Msg("Updated delivery rate")
	}

	c.JSON(http.StatusOK, gin.H{
		"accept_rate":   h.provider.acceptRate,
		"delivery_rate": h.provider.deliveryRate,
	})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request processed")
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/sms/send", handler.SendSMS)
		v1.GET("/health", handler.HealthCheck)
		v1.PUT("/config", handler.UpdateConfig)
	}

	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8081")
	acceptRate := getEnvFloat("ACCEPT_RATE", 1)
	deliveryRate := getEnvFloat("DELIVERY_RATE", 1)
	minDelay := getEnvDuration("MIN_DELAY", 1*time.Second)
	maxDelay := getEnvDuration("MAX_DELAY", 5*time.Second)
	callbackURL := getEnv("CALLBACK_URL", "")

	log.Info().
		Str("port", port).
		Float64("accept_rate", acceptRate).
		Float64("delivery_rate", deliveryRate).
		Dur("min_delay", minDelay).
		Dur("max_delay", maxDelay).
		Str("callback_url", callbackURL).
		Msg("Starting Mock SMS Provider")

	provider := NewMockProvider(acceptRate, deliveryRate, minDelay, maxDelay, callbackURL)
	handler := NewHandler(provider)
	router := SetupRouter(handler)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
