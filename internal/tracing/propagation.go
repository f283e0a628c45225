package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToTask derives the context a worker runs a task in. The trace and
// conversation are kept; the task and capability are replaced.
func PropagateToTask(ctx context.Context, taskID, capability string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	ctx = WithTaskID(ctx, taskID)
	return WithCapability(ctx, capability)
}

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)
	lc := logger.With()

	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.RunID != "" {
		lc = lc.Str("run_id", tc.RunID)
	}
	if tc.ConversationID != "" {
		lc = lc.Str("conversation_id", tc.ConversationID)
	}
	if tc.TaskID != "" {
		lc = lc.Str("task_id", tc.TaskID)
	}
	if tc.Capability != "" {
		lc = lc.Str("capability", tc.Capability)
	}

	return lc.Logger()
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// CloneContext copies tracing values onto a fresh background context, for
// work that must outlive the caller's cancellation.
func CloneContext(ctx context.Context) context.Context {
	return NewContext(context.Background(), FromContext(ctx))
}
