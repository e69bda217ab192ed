package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mkamali/notification-dispatch/pkg/logger"
	"github.com/valyala/fasthttp"
)

var ErrNoAvailableProviders = errors.New("no available providers")

type AcceptanceStatus string

const (
	StatusAccepted AcceptanceStatus = "ACCEPTED"
	StatusRejected AcceptanceStatus = "REJECTED"
)

// SendRequest is what we hand a provider: the composite message key lets the
// provider echo it back in delivery callbacks.
type SendRequest struct {
	MessageKey  string `json:"message_key"`
	PhoneNumber string `json:"phone_number"`
	Content     string `json:"content"`
}

type SendResponse struct {
	MessageKey string           `json:"message_key"`
	Status     AcceptanceStatus `json:"status"`
	ExternalID string           `json:"external_id"`
	ErrorCode  string           `json:"error_code,omitempty"`
	AcceptedAt time.Time        `json:"accepted_at"`
}

type ProviderConfig struct {
	Name string
	URL  string
}

type Config struct {
	Providers               []ProviderConfig
	Timeout                 time.Duration
	MaxRetries              int
	RetryDelay              time.Duration
	MaxConns                int
	ReadBufferSize          int
	WriteBufferSize         int
	HealthCheckInterval     time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
}

// Provider is one upstream SMS endpoint with its own connection pool and
// circuit state.
type Provider struct {
	name             string
	url              string
	client           *fasthttp.Client
	healthy          atomic.Bool
	consecutiveFails atomic.Int32
	circuitOpenUntil atomic.Int64
}

func newProvider(name, url string, client *fasthttp.Client) *Provider {
	p := &Provider{name: name, url: url, client: client}
	p.healthy.Store(true)
	return p
}

// Available reports whether the provider may receive traffic. An open circuit
// closes itself once its timeout elapses.
func (p *Provider) Available() bool {
	if openUntil := p.circuitOpenUntil.Load(); openUntil > 0 {
		if time.Now().Unix() <= openUntil {
			return false
		}
		p.circuitOpenUntil.Store(0)
		p.consecutiveFails.Store(0)
	}
	return p.healthy.Load()
}

// Client sends messages through an ordered list of providers: the first
// configured provider is primary, the rest are backups tried in order when
// the ones before them are unavailable or failing.
type Client struct {
	config    *Config
	providers []*Provider
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if len(config.Providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 2
	}
	if config.HealthCheckInterval == 0 {
		config.HealthCheckInterval = 30 * time.Second
	}
	if config.CircuitBreakerThreshold == 0 {
		config.CircuitBreakerThreshold = 5
	}
	if config.CircuitBreakerTimeout == 0 {
		config.CircuitBreakerTimeout = time.Minute
	}

	c := &Client{
		config:    config,
		providers: make([]*Provider, 0, len(config.Providers)),
		stopCh:    make(chan struct{}),
	}

	for _, pc := range config.Providers {
		httpClient := &fasthttp.Client{
			MaxConnsPerHost:     config.MaxConns,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
			ReadBufferSize:      config.ReadBufferSize,
			WriteBufferSize:     config.WriteBufferSize,
		}
		c.providers = append(c.providers, newProvider(pc.Name, pc.URL, httpClient))
		logger.Info("provider registered", "name", pc.Name, "url", pc.URL)
	}

	c.wg.Add(1)
	go c.healthChecker()

	return c, nil
}

// pick returns the first available provider in configured order.
func (c *Client) pick() (*Provider, error) {
	for _, p := range c.providers {
		if p.Available() {
			return p, nil
		}
	}
	return nil, ErrNoAvailableProviders
}

// Send pushes one message to the first provider that takes it. A provider
// failure counts against its circuit and the next attempt falls through to
// the next available provider.
func (c *Client) Send(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		provider, err := c.pick()
		if err != nil {
			lastErr = err
			continue
		}

		start := time.Now()
		raw, err := c.doRequest(ctx, provider, fasthttp.MethodPost, "/api/v1/sms/send", body)
		latency := time.Since(start).Milliseconds()

		if err != nil {
			c.recordFailure(provider)
			logger.Warn("provider request failed", "provider", provider.name, "attempt", attempt+1, "error", err)
			lastErr = err
			continue
		}
		provider.consecutiveFails.Store(0)

		var resp SendResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}

		logger.Info("message handed to provider", "message_key", req.MessageKey, "status", string(resp.Status), "provider", provider.name, "latency_ms", latency)
		return &resp, nil
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *Client) doRequest(ctx context.Context, provider *Provider, method, path string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(provider.url + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}

	if err := provider.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	statusCode := resp.StatusCode()
	if statusCode != fasthttp.StatusOK && statusCode != fasthttp.StatusAccepted {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", statusCode, resp.Body())
	}

	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return out, nil
}

func (c *Client) recordFailure(provider *Provider) {
	fails := provider.consecutiveFails.Add(1)
	if fails >= int32(c.config.CircuitBreakerThreshold) {
		provider.circuitOpenUntil.Store(time.Now().Add(c.config.CircuitBreakerTimeout).Unix())
		logger.Warn("circuit breaker opened", "provider", provider.name, "consecutive_fails", fails, "timeout", c.config.CircuitBreakerTimeout)
	}
}

func (c *Client) healthChecker() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.checkProviders()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Client) checkProviders() {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	for _, provider := range c.providers {
		healthy := c.probe(ctx, provider)
		if healthy != provider.healthy.Load() {
			provider.healthy.Store(healthy)
			logger.Info("provider health changed", "provider", provider.name, "healthy", healthy)
		}
	}
}

func (c *Client) probe(ctx context.Context, provider *Provider) bool {
	raw, err := c.doRequest(ctx, provider, fasthttp.MethodGet, "/health", nil)
	if err != nil {
		return false
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &health); err != nil {
		return false
	}
	return health.Status == "healthy"
}

type ProviderStats struct {
	Name             string
	URL              string
	Healthy          bool
	Available        bool
	ConsecutiveFails int32
}

func (c *Client) GetProviderStats() []ProviderStats {
	stats := make([]ProviderStats, 0, len(c.providers))
	for _, p := range c.providers {
		stats = append(stats, ProviderStats{
			Name:             p.name,
			URL:              p.url,
			Healthy:          p.healthy.Load(),
			Available:        p.Available(),
			ConsecutiveFails: p.consecutiveFails.Load(),
		})
	}
	return stats
}

func (c *Client) Close() error {
	close(c.stopCh)
	c.wg.Wait()
	return nil
}
