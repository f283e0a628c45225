package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestPropagateToTask(t *testing.T) {
	parent := NewStepContext(context.Background(), "conv")
	child := PropagateToTask(parent, "task-2", "warranty")

	if GetTraceID(child) != GetTraceID(parent) {
		t.Error("trace id should be propagated")
	}
	if GetConversationID(child) != "conv" {
		t.Error("conversation id should be propagated")
	}
	if GetTaskID(child) != "task-2" || GetCapability(child) != "warranty" {
		t.Errorf("unexpected task fields: %+v", FromContext(child))
	}
}

func TestPropagateToTaskNoTraceID(t *testing.T) {
	child := PropagateToTask(context.Background(), "task-1", "billing")
	if GetTraceID(child) == "" {
		t.Error("a trace id should be generated")
	}
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithConversationID(WithTraceID(context.Background(), "trace-1"), "conv-1")
	ctx = WithTaskID(ctx, "task-1")

	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	out := buf.String()
	for _, want := range []string{`"trace_id":"trace-1"`, `"conversation_id":"conv-1"`, `"task_id":"task-1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %s missing %s", out, want)
		}
	}
	if strings.Contains(out, "capability") {
		t.Error("empty fields should not be logged")
	}
}

func TestCloneContext(t *testing.T) {
	ctx, cancel := context.WithCancel(WithTraceID(context.Background(), "trace"))
	cancel()

	clone := CloneContext(ctx)
	if clone.Err() != nil {
		t.Error("clone must not inherit cancellation")
	}
	if GetTraceID(clone) != "trace" {
		t.Error("clone should keep the trace id")
	}
}
