package types

import "context"

// Context keys
type contextKey string

const runIDKey contextKey = "run_id"

// WithRunID stores the batch run ID in the context. The run ID is minted once
// per invocation and threads through every provider call for correlation.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// GetRunID retrieves the batch run ID from the context, or "" when absent.
func GetRunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}
