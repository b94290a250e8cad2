package services

import "context"

// Job-scoped values carried on the context. Loggers read them through
// logging.ContextFields so every line names its job and stage.
type contextKey int

const (
	jobIDKey contextKey = iota
	stageKey
	attemptKey
	requestIDKey
)

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	value, _ := ctx.Value(key).(string)
	return value, value != ""
}

func WithJobID(ctx context.Context, id string) context.Context { return withString(ctx, jobIDKey, id) }

func JobIDFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, jobIDKey) }

func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, stageKey) }

// WithRequestID records the API request that caused the work.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, requestIDKey) }

// WithAttempt records the zero-based handler attempt, including zero.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey, attempt)
}

func AttemptFromContext(ctx context.Context) (int, bool) {
	attempt, ok := ctx.Value(attemptKey).(int)
	return attempt, ok
}
