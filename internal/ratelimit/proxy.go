package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/feral-file/crm-reports/internal/config"
	"github.com/feral-file/crm-reports/internal/logger"
)

// RequestFunc is a function that performs the actual API request
// It receives a context and returns the result and any error
type RequestFunc func(ctx context.Context) (interface{}, error)

// Proxy defines the interface for rate-limiting proxy
//
//go:generate mockgen -source=proxy.go -destination=../mocks/ratelimit_proxy.go -package=mocks -mock_names=Proxy=MockRateLimitProxy
type Proxy interface {
	// Request waits for a token of the named provider and then runs fn
	Request(ctx context.Context, providerName string, fn RequestFunc) (interface{}, error)

	// Close rejects further requests
	Close() error
}

// proxy throttles requests per provider with an in-process token bucket
type proxy struct {
	limiters map[string]*rate.Limiter
	closed   atomic.Bool
}

// NewProxy creates a proxy with one limiter per provider.
// Providers with a zero rate are not throttled.
func NewProxy(providers map[string]config.RateLimitConfig) (Proxy, error) {
	limiters := make(map[string]*rate.Limiter, len(providers))
	for name, cfg := range providers {
		if cfg.RequestsPerSecond < 0 {
			return nil, fmt.Errorf("provider %s: requests_per_second must not be negative", name)
		}
		if cfg.RequestsPerSecond == 0 {
			limiters[name] = rate.NewLimiter(rate.Inf, 0)
			continue
		}

		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiters[name] = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)

		logger.Debug("Rate limiter configured",
			zap.String("provider", name),
			zap.Float64("requests_per_second", cfg.RequestsPerSecond),
			zap.Int("burst", burst),
		)
	}

	return &proxy{limiters: limiters}, nil
}

// Request submits a rate-limited request for execution and returns the result with type safety
func Request[T any](ctx context.Context, p Proxy, providerName string, fn func(ctx context.Context) (T, error)) (T, error) {
	// If proxy is nil, execute the function directly
	if p == nil {
		return fn(ctx)
	}

	var zero T
	result, err := p.Request(ctx, providerName, func(ctx context.Context) (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	return result.(T), nil
}

// Request blocks until a token is available or ctx is done, then runs fn
func (p *proxy) Request(ctx context.Context, providerName string, fn RequestFunc) (interface{}, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("proxy is closed")
	}

	limiter, ok := p.limiters[providerName]
	if !ok {
		return nil, fmt.Errorf("provider '%s' not configured", providerName)
	}

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to acquire rate limit token: %w", err)
	}

	// No timeout wrapper here, the HTTP adapter handles it
	return fn(ctx)
}

// Close rejects further requests
func (p *proxy) Close() error {
	p.closed.Store(true)
	return nil
}
