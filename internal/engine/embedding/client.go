package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/anatolykoptev/go_match/internal/engine"
)

// Config controls the shared client.
type Config struct {
	Dimensions      int
	MaxInFlight     int
	RPS             float64
	Timeout         time.Duration
	Retry           engine.RetryConfig
	MinTextChars    int
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// ConfigFrom extracts the client settings from the engine config.
func ConfigFrom(c engine.Config) Config {
	return Config{
		Dimensions:      c.EmbeddingDimensions,
		MaxInFlight:     c.EmbeddingMaxInFlight,
		RPS:             c.EmbeddingRPS,
		Timeout:         c.EmbeddingTimeout,
		Retry:           c.EmbeddingRetry,
		MinTextChars:    c.MinTextChars,
		BreakerFailures: c.BreakerFailures,
		BreakerCooldown: c.BreakerCooldown,
	}
}

// Client is the process-wide gate to the embedding provider. Build one and
// share it between every call site so MaxInFlight holds for the whole process.
type Client struct {
	provider Provider
	cfg      Config
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	cache    *engine.Cache
	metrics  *engine.Metrics
	logger   *slog.Logger
}

// NewClient wraps provider. cache, metrics and logger may be nil.
func NewClient(provider Provider, cfg Config, cache *engine.Cache, metrics *engine.Metrics, logger *slog.Logger) *Client {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}

	c := &Client{
		provider: provider,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		limiter:  rate.NewLimiter(limit, max(1, cfg.MaxInFlight)),
		cache:    cache,
		metrics:  metrics,
		logger:   logger.With(slog.String("model", provider.Model())),
	}

	if cfg.BreakerFailures > 0 {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "embedding:" + provider.Model(),
			MaxRequests: 1,
			Timeout:     cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailures
			},
			// Permanent errors say nothing about provider health.
			IsSuccessful: func(err error) bool {
				return err == nil || !isRetryable(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				if to == gobreaker.StateOpen {
					c.metrics.Incr(engine.MetricBreakerOpen)
				}
				c.logger.Warn("embedding: breaker state changed",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			},
		})
	}
	return c
}

// Model returns the provider model identifier.
func (c *Client) Model() string { return c.provider.Model() }

// Dimensions returns the expected vector length.
func (c *Client) Dimensions() int { return c.cfg.Dimensions }

// Embed returns a validated vector for text. Transient provider failures are
// retried with capped exponential backoff; validation failures are not.
func (c *Client) Embed(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if n := engine.RuneLen(text); n < c.cfg.MinTextChars {
		return Result{}, fmt.Errorf("%w: %d chars, need %d", ErrTextTooShort, n, c.cfg.MinTextChars)
	}

	key := engine.CacheKey("emb", c.provider.Model(), strconv.Itoa(c.cfg.Dimensions), text)
	if vec, ok := engine.LoadJSON[[]float32](ctx, c.cache, key); ok && ValidateVector(vec, c.cfg.Dimensions) == nil {
		c.metrics.Incr(engine.MetricEmbedCacheHits)
		return Result{Vector: vec, Model: c.provider.Model()}, nil
	}

	rc := c.cfg.Retry
	rc.Retryable = isRetryable
	rc.OnRetry = func(attempt int, wait time.Duration, err error) {
		c.metrics.Incr(engine.MetricEmbedRetries)
		c.logger.Warn("embedding: retrying provider call",
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", engine.SanitizeError(err)))
	}

	res, err := engine.RetryDo(ctx, rc, func() (Result, error) {
		return c.call(ctx, text)
	})
	if err != nil {
		c.metrics.Incr(engine.MetricEmbedErrors)
		return Result{}, fmt.Errorf("embed: %w", err)
	}
	if err := ValidateVector(res.Vector, c.cfg.Dimensions); err != nil {
		c.metrics.Incr(engine.MetricEmbedErrors)
		return Result{}, fmt.Errorf("embed: %w", err)
	}
	if res.Model == "" {
		res.Model = c.provider.Model()
	}

	engine.StoreJSON(ctx, c.cache, key, res.Vector)
	return res, nil
}

// call performs one provider request under the concurrency gate, the rate
// limiter, the circuit breaker and the per-call timeout.
func (c *Client) call(ctx context.Context, text string) (Result, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	defer c.sem.Release(1)

	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	c.metrics.Incr(engine.MetricEmbedCalls)
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if c.breaker == nil {
		return c.provider.Embed(callCtx, text)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.provider.Embed(callCtx, text)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{}, fmt.Errorf("embedding provider unavailable: %w", err)
		}
		return Result{}, err
	}
	return out.(Result), nil
}

// isRetryable extends engine.IsRetryable with Gemini API errors.
// An open breaker is not retried here: the queue item fails and is re-enqueued later.
func isRetryable(err error) bool {
	if errors.Is(err, ErrInvalidVector) || errors.Is(err, ErrTextTooShort) ||
		errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return engine.IsRetryableStatus(apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return engine.IsRetryableStatus(apiErrPtr.Code)
	}
	return engine.IsRetryable(err)
}
