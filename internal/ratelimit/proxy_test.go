package ratelimit_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/crm-reports/internal/config"
	"github.com/feral-file/crm-reports/internal/logger"
	"github.com/feral-file/crm-reports/internal/ratelimit"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

func TestNewProxy_InvalidRate(t *testing.T) {
	p, err := ratelimit.NewProxy(map[string]config.RateLimitConfig{
		"salesforce": {RequestsPerSecond: -1},
	})
	assert.Error(t, err)
	assert.Nil(t, p)
}

func TestRequest_NilProxyRunsDirectly(t *testing.T) {
	got, err := ratelimit.Request(context.Background(), nil, "salesforce", func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestRequest_UnlimitedProvider(t *testing.T) {
	p, err := ratelimit.NewProxy(map[string]config.RateLimitConfig{
		"salesforce": {},
	})
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		got, err := ratelimit.Request(context.Background(), p, "salesforce", func(ctx context.Context) (int, error) {
			return i, nil
		})
		require.NoError(t, err)
		assert.Equal(t, i, got)
	}
}

func TestRequest_PropagatesError(t *testing.T) {
	p, err := ratelimit.NewProxy(map[string]config.RateLimitConfig{
		"salesforce": {RequestsPerSecond: 100, Burst: 10},
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = ratelimit.Request(context.Background(), p, "salesforce", func(ctx context.Context) ([]byte, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestRequest_UnknownProvider(t *testing.T) {
	p, err := ratelimit.NewProxy(map[string]config.RateLimitConfig{})
	require.NoError(t, err)

	_, err = p.Request(context.Background(), "salesforce", func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	assert.ErrorContains(t, err, "not configured")
}

func TestRequest_WaitsForToken(t *testing.T) {
	p, err := ratelimit.NewProxy(map[string]config.RateLimitConfig{
		"salesforce": {RequestsPerSecond: 1, Burst: 1},
	})
	require.NoError(t, err)

	call := func(ctx context.Context) (interface{}, error) { return nil, nil }

	// The first request drains the burst
	_, err = p.Request(context.Background(), "salesforce", call)
	require.NoError(t, err)

	// The next token is a second away, longer than the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Request(ctx, "salesforce", call)
	assert.Error(t, err)
}

func TestClose_RejectsRequests(t *testing.T) {
	p, err := ratelimit.NewProxy(map[string]config.RateLimitConfig{
		"salesforce": {},
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = p.Request(context.Background(), "salesforce", func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	assert.ErrorContains(t, err, "closed")
}
