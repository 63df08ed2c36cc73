package logger

import (
	"context"

	"github.com/getsentry/sentry-go"
)

type runInfoKey struct{}

// RunInfo identifies one report run in log lines and sentry events
type RunInfo struct {
	RunID  string
	Report string
}

// WithRun returns a context tagged with the run, including a cloned sentry hub
// so events captured during the run carry the same tags
func WithRun(ctx context.Context, info RunInfo) context.Context {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub = hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("run_id", info.RunID)
		scope.SetTag("report", info.Report)
	})

	ctx = sentry.SetHubOnContext(ctx, hub)
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunFromContext returns the run attached by WithRun
func RunFromContext(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return info, ok
}
