package common

import "context"

type contextKey string

const runIDKey contextKey = "run_id"

// WithRunID attaches the analysis run ID to ctx so lower layers can correlate
// their records (inference audit entries, log lines) with the run.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext returns the run ID attached by WithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(runIDKey).(string); ok {
		return v
	}
	return ""
}
