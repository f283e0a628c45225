package toolexecutor

import "context"

type execContextKey struct{}

// ContextWithExecContext makes the execution context visible to tool handlers.
func ContextWithExecContext(ctx context.Context, execCtx *ExecutionContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if execCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, execContextKey{}, execCtx)
}

// ExecContextFromContext returns the execution context a handler runs under,
// or nil outside Execute.
func ExecContextFromContext(ctx context.Context) *ExecutionContext {
	if ctx == nil {
		return nil
	}
	execCtx, _ := ctx.Value(execContextKey{}).(*ExecutionContext)
	return execCtx
}
