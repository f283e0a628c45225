package tracing

import (
	"context"
	"testing"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}
	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace")
	ctx = WithRunID(ctx, "run")
	ctx = WithConversationID(ctx, "conv")
	ctx = WithTaskID(ctx, "task-1")
	ctx = WithCapability(ctx, "billing")

	tc := FromContext(ctx)
	if tc.TraceID != "trace" || tc.RunID != "run" || tc.ConversationID != "conv" {
		t.Errorf("unexpected trace context: %+v", tc)
	}
	if tc.TaskID != "task-1" || tc.Capability != "billing" {
		t.Errorf("unexpected task fields: %+v", tc)
	}
}

func TestGettersOnEmptyContext(t *testing.T) {
	ctx := context.Background()
	if GetTraceID(ctx) != "" || GetConversationID(ctx) != "" || GetTaskID(ctx) != "" {
		t.Error("expected empty values")
	}
}

func TestNewContextPartial(t *testing.T) {
	ctx := NewContext(context.Background(), &TraceContext{TraceID: "trace"})

	if GetTraceID(ctx) != "trace" {
		t.Error("trace id not set")
	}
	if GetRunID(ctx) != "" {
		t.Error("run id should be empty")
	}
}

func TestNewStepContext(t *testing.T) {
	ctx := NewStepContext(context.Background(), "conv")
	first := GetRunID(ctx)

	if GetTraceID(ctx) == "" || first == "" {
		t.Fatal("step context should carry trace and run ids")
	}
	if GetConversationID(ctx) != "conv" {
		t.Errorf("expected conversation id conv, got %s", GetConversationID(ctx))
	}

	next := NewStepContext(ctx, "conv")
	if GetTraceID(next) != GetTraceID(ctx) {
		t.Error("trace id should be kept")
	}
	if GetRunID(next) == first {
		t.Error("each step needs a fresh run id")
	}
}
