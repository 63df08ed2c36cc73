package main

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/feral-file/crm-reports/internal/adapter"
	"github.com/feral-file/crm-reports/internal/config"
	"github.com/feral-file/crm-reports/internal/logger"
	"github.com/feral-file/crm-reports/internal/providers/salesforce"
	"github.com/feral-file/crm-reports/internal/ratelimit"
	"github.com/feral-file/crm-reports/internal/report"
)

// application holds the adapters and clients shared by the report commands
type application struct {
	cfg    *config.ReportsConfig
	fs     adapter.FileSystem
	clock  adapter.Clock
	json   adapter.JSON
	proxy  ratelimit.Proxy
	client salesforce.QueryClient
	writer report.Writer
}

// loadConfig reads and validates the configuration, applying the --debug flag
func loadConfig(cmd *cobra.Command) (*config.ReportsConfig, error) {
	cfg, err := config.LoadReportsConfig(configFile, envPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("debug") {
		cfg.Debug = debug
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApplication wires the adapters, the rate limiter and the query client
func newApplication(cfg *config.ReportsConfig) (*application, error) {
	fs := adapter.NewFileSystem()
	clock := adapter.NewClock()
	jsonAdapter := adapter.NewJSON()

	retry := adapter.DefaultRetryPolicy()
	retry.MaxElapsedTime = cfg.Salesforce.RetryMaxElapsed
	httpClient := adapter.NewHTTPClient(cfg.Salesforce.Timeout, retry)

	proxy, err := ratelimit.NewProxy(map[string]config.RateLimitConfig{
		salesforce.PROVIDER_NAME: cfg.Salesforce.RateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	tokens := salesforce.NewTokenProvider(cfg.Salesforce, httpClient, fs, clock, jsonAdapter)
	client := salesforce.NewQueryClient(cfg.Salesforce, httpClient, tokens, proxy, jsonAdapter)

	return &application{
		cfg:    cfg,
		fs:     fs,
		clock:  clock,
		json:   jsonAdapter,
		proxy:  proxy,
		client: client,
		writer: report.NewWriter(fs),
	}, nil
}

// close releases the rate limiter
func (a *application) close() {
	if err := a.proxy.Close(); err != nil {
		logger.Warn("failed to close rate limiter", zap.Error(err))
	}
}

// run loads the configuration, starts the logger and runs fn as one tagged run
func run(cmd *cobra.Command, name string, fn func(ctx context.Context, a *application) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "crm-reports",
			"report":  name,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Flush(2 * time.Second)

	a, err := newApplication(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	runID := ulid.MustNewDefault(a.clock.Now()).String()
	ctx := logger.WithRun(cmd.Context(), logger.RunInfo{RunID: runID, Report: name})

	start := a.clock.Now()
	logger.InfoCtx(ctx, "Starting run", zap.String("api_version", cfg.Salesforce.APIVersion))

	if err := fn(ctx, a); err != nil {
		logger.ErrorCtx(ctx, err, zap.Duration("elapsed", a.clock.Since(start)))
		return err
	}

	logger.InfoCtx(ctx, "Run completed", zap.Duration("elapsed", a.clock.Since(start)))
	return nil
}
