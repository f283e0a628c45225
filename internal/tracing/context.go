package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RunIDKey identifies one router step
	RunIDKey ContextKey = "run_id"
	// ConversationIDKey is the context key for the conversation id
	ConversationIDKey ContextKey = "conversation_id"
	// TaskIDKey is the context key for the task being worked on
	TaskIDKey ContextKey = "task_id"
	// CapabilityKey is the context key for the worker capability
	CapabilityKey ContextKey = "capability"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID        string
	RunID          string
	ConversationID string
	TaskID         string
	Capability     string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewRunID generates a new run ID
func NewRunID() string {
	return uuid.New().String()
}

func withValue(ctx context.Context, key ContextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

func getValue(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return withValue(ctx, TraceIDKey, traceID)
}

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return withValue(ctx, RunIDKey, runID)
}

// WithConversationID adds a conversation ID to the context
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return withValue(ctx, ConversationIDKey, conversationID)
}

// WithTaskID adds a task ID to the context
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return withValue(ctx, TaskIDKey, taskID)
}

// WithCapability adds a capability name to the context
func WithCapability(ctx context.Context, capability string) context.Context {
	return withValue(ctx, CapabilityKey, capability)
}

func GetTraceID(ctx context.Context) string        { return getValue(ctx, TraceIDKey) }
func GetRunID(ctx context.Context) string          { return getValue(ctx, RunIDKey) }
func GetConversationID(ctx context.Context) string { return getValue(ctx, ConversationIDKey) }
func GetTaskID(ctx context.Context) string         { return getValue(ctx, TaskIDKey) }
func GetCapability(ctx context.Context) string     { return getValue(ctx, CapabilityKey) }

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:        GetTraceID(ctx),
		RunID:          GetRunID(ctx),
		ConversationID: GetConversationID(ctx),
		TaskID:         GetTaskID(ctx),
		Capability:     GetCapability(ctx),
	}
}

// NewContext creates a new context with tracing information
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.RunID != "" {
		ctx = WithRunID(ctx, tc.RunID)
	}
	if tc.ConversationID != "" {
		ctx = WithConversationID(ctx, tc.ConversationID)
	}
	if tc.TaskID != "" {
		ctx = WithTaskID(ctx, tc.TaskID)
	}
	if tc.Capability != "" {
		ctx = WithCapability(ctx, tc.Capability)
	}
	return ctx
}

// NewStepContext starts a router step: a trace id if missing, a fresh run id
// and the conversation id.
func NewStepContext(ctx context.Context, conversationID string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	ctx = WithRunID(ctx, NewRunID())
	return WithConversationID(ctx, conversationID)
}
