package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/supportdesk/internal/observability"
	"github.com/harun/supportdesk/internal/tracing"
	"github.com/harun/supportdesk/pkg/conversation"
	"github.com/harun/supportdesk/pkg/llm"
	"github.com/harun/supportdesk/pkg/supporttools"
	"github.com/harun/supportdesk/pkg/taskgraph"
	"github.com/harun/supportdesk/pkg/toolexecutor"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultMaxTurns bounds the model calls made for one task run.
const DefaultMaxTurns = 6

var (
	// ErrToolLoopExceeded is returned when the model keeps asking for tools
	// past MaxTurns.
	ErrToolLoopExceeded = errors.New("worker: tool loop exceeded")

	// ErrNoProvider is returned when no language model is configured.
	ErrNoProvider = errors.New("worker: no language model configured")
)

// Config holds worker settings.
type Config struct {
	Provider    llm.Provider
	Executor    *toolexecutor.ToolExecutor
	Model       string
	Temperature float64
	MaxTokens   int
	MaxTurns    int
	ToolTimeout time.Duration
	Logger      zerolog.Logger
}

// Input is everything one run needs.
type Input struct {
	ConversationID string
	Task           taskgraph.Task
	Capability     supporttools.Capability
	History        []llm.Message
	Scope          *conversation.Scope
	Grounding      string
}

// Result is the outcome of a run. Status is Completed, Blocked or Failed.
// Message is the task result, or the prompt for the customer when Blocked.
type Result struct {
	Status         taskgraph.Status
	Message        string
	RequiredFields []string
	Turns          int
	ToolCalls      []llm.ToolCall
}

// Worker executes tasks.
type Worker struct {
	cfg Config
}

// New creates a Worker.
func New(cfg Config) *Worker {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Executor == nil {
		cfg.Executor = toolexecutor.New()
	}
	return &Worker{cfg: cfg}
}

// FailureMessage is the customer-facing text for a failed run.
func FailureMessage(capability string) string {
	return fmt.Sprintf("I encountered an error while processing your request in %s. Please try again.", capability)
}

// Run drives the task until the model settles on a terminal action. A
// non-nil error always comes with a Failed result.
func (w *Worker) Run(ctx context.Context, in Input) (result Result, err error) {
	capName := in.Capability.Name
	ctx = tracing.PropagateToTask(ctx, in.Task.ID, capName)
	ctx, span := tracing.StartSpan(ctx, "supportdesk.worker", "worker.run",
		attribute.String("task_id", in.Task.ID),
		attribute.String("capability", capName),
	)
	defer func() {
		tracing.EndSpan(span, err)
		observability.RecordWorkerTurns(capName, result.Turns)
	}()
	logger := tracing.LoggerFromContext(ctx, w.cfg.Logger)

	if w.cfg.Provider == nil {
		return Result{Status: taskgraph.StatusFailed, Message: FailureMessage(capName)}, ErrNoProvider
	}
	if in.Scope == nil {
		in.Scope = conversation.NewSharedContext().Scope(capName)
	}

	policy := in.Capability.Policy()
	req := llm.Request{
		Model:        w.cfg.Model,
		Messages:     transcript(in.History),
		Tools:        toolSpecs(w.cfg.Executor.ToolsFor(policy)),
		SystemPrompt: systemPrompt(in.Capability.Prompt, in.Task, in.Scope, in.Grounding),
		Temperature:  w.cfg.Temperature,
		MaxTokens:    w.cfg.MaxTokens,
	}

	for turn := 1; turn <= w.cfg.MaxTurns; turn++ {
		result.Turns = turn

		resp, callErr := w.cfg.Provider.Call(ctx, req)
		if callErr != nil {
			logger.Error().Err(callErr).Int("turn", turn).Msg("Worker model call failed")
			result.Status = taskgraph.StatusFailed
			result.Message = FailureMessage(capName)
			return result, fmt.Errorf("worker %s: model call: %w", capName, callErr)
		}

		calls := resp.ToolCalls
		if len(calls) == 0 {
			switch action := ParseAction(resp.Content).(type) {
			case Clarify:
				logger.Debug().Strs("required", action.RequiredFields).Msg("Worker needs input")
				result.Status = taskgraph.StatusBlocked
				result.Message = action.Message
				result.RequiredFields = action.RequiredFields
				return result, nil

			case Complete:
				for key, value := range action.Context {
					in.Scope.Set(key, value)
				}
				result.Status = taskgraph.StatusCompleted
				result.Message = action.Message
				if result.Message == "" {
					result.Message = "Done."
				}
				logger.Debug().Int("turns", turn).Msg("Worker completed task")
				return result, nil

			case UseTools:
				calls = action.Calls
			}
		}

		for i := range calls {
			if calls[i].ID == "" {
				calls[i].ID = "call_" + gonanoid.Must()
			}
		}
		req.Messages = append(req.Messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: calls,
		})

		for _, call := range calls {
			toolResult := w.cfg.Executor.Execute(ctx, call.Name, call.Parameters, &toolexecutor.ExecutionContext{
				ConversationID: in.ConversationID,
				TaskID:         in.Task.ID,
				Capability:     capName,
				Timeout:        w.cfg.ToolTimeout,
				ToolPolicy:     policy,
			})
			text := toolResult.Text()
			in.Scope.Set("tool."+call.Name, text)

			req.Messages = append(req.Messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    text,
				ToolCallID: call.ID,
			})
			result.ToolCalls = append(result.ToolCalls, call)

			logger.Debug().
				Str("tool", call.Name).
				Bool("success", toolResult.Success).
				Msg("Tool executed")
		}
	}

	logger.Warn().Int("max_turns", w.cfg.MaxTurns).Msg("Worker exceeded tool loop cap")
	result.Status = taskgraph.StatusFailed
	result.Message = FailureMessage(capName)
	return result, ErrToolLoopExceeded
}

// transcript keeps plain conversation turns and makes sure the model is
// answering a user turn.
func transcript(history []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history)+1)
	for _, msg := range history {
		if msg.Role == llm.RoleTool || len(msg.ToolCalls) > 0 || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		out = append(out, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	if len(out) == 0 || out[len(out)-1].Role != llm.RoleUser {
		out = append(out, llm.Message{Role: llm.RoleUser, Content: "Please continue with the current task."})
	}
	return out
}

func toolSpecs(defs []toolexecutor.ToolDefinition) []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(defs))
	for _, def := range defs {
		specs = append(specs, llm.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Schema(),
		})
	}
	return specs
}
