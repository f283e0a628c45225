package router

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/harun/supportdesk/internal/observability"
	"github.com/harun/supportdesk/pkg/conversation"
	"github.com/harun/supportdesk/pkg/decomposer"
	"github.com/harun/supportdesk/pkg/llm"
	"github.com/harun/supportdesk/pkg/supporttools"
	"github.com/harun/supportdesk/pkg/taskgraph"
	"github.com/harun/supportdesk/pkg/toolexecutor"
	"github.com/harun/supportdesk/pkg/worker"
)

const (
	announcePrompt = `Rephrase the following support step as one short, friendly sentence telling the customer what you will do next. Reply with the sentence only.`

	finalPrompt = `You are a customer support assistant. The customer's requests have been handled.
Write a brief, friendly closing message that summarises the outcome of each task below in plain language and asks whether there is anything else you can help with. Do not invent results.`
)

func newGraph(out decomposer.Outcome) (*taskgraph.Graph, error) {
	g := taskgraph.New()
	if err := g.AddTasks(out.Tasks); err != nil {
		return nil, err
	}
	return g, nil
}

// dispatch runs ready tasks until one blocks or none is left.
func (r *Router) dispatch(ctx context.Context, t *turn) error {
	state := t.state
	graph := state.Graph

	for {
		if cur, ok := graph.Current(); ok && cur.Status == taskgraph.StatusInProgress {
			if blocked := r.runTask(ctx, t, cur); blocked {
				return nil
			}
			continue
		}

		next, ok := graph.NextReady()
		if !ok {
			break
		}
		if err := graph.MarkInProgress(next.ID); err != nil {
			return fmt.Errorf("start task %s: %w", next.ID, err)
		}
		observability.RecordTaskTransition(next.Capability, string(taskgraph.StatusInProgress))
		r.say(ctx, t, r.announce(ctx, next))

		if blocked := r.runTask(ctx, t, next); blocked {
			return nil
		}
	}

	if graph.AllTerminal() {
		final := r.finalResponse(ctx, graph.Tasks())
		r.say(ctx, t, final)
		state.Complete(final)
		return nil
	}

	t.logger.Error().Int("tasks", graph.Len()).Msg("Task graph stalled")
	r.say(ctx, t, StalledMessage)
	state.Complete(StalledMessage)
	return fmt.Errorf("conversation %s: %w", state.ConversationID, taskgraph.ErrStalled)
}

// runTask executes one InProgress task and applies its outcome. It reports
// whether the task is now waiting for the customer.
func (r *Router) runTask(ctx context.Context, t *turn, task taskgraph.Task) bool {
	state := t.state
	graph := state.Graph
	state.Phase = conversation.PhaseDispatching
	state.CurrentTask = task.ID
	logger := t.logger.With().Str("task_id", task.ID).Str("capability", task.Capability).Logger()

	capability, ok := supporttools.Lookup(task.Capability)
	if !ok {
		logger.Warn().Msg("Unknown capability")
		r.fail(ctx, t, task, fmt.Sprintf("unknown capability %q", task.Capability))
		return false
	}
	if policy, ok := r.cfg.ToolPolicies[capability.Name]; ok {
		capability = restrict(capability, policy)
	}

	res, err := r.worker.Run(ctx, worker.Input{
		ConversationID: state.ConversationID,
		Task:           task,
		Capability:     capability,
		History:        state.Messages,
		Scope:          state.Shared.Scope(capability.Name),
		Grounding:      state.Grounding,
	})

	switch res.Status {
	case taskgraph.StatusBlocked:
		if err := graph.MarkBlocked(task.ID); err != nil {
			logger.Error().Err(err).Msg("Blocking task failed")
			r.fail(ctx, t, task, err.Error())
			return false
		}
		r.record(ctx, state.ConversationID, task, taskgraph.StatusBlocked, res.Message)
		r.say(ctx, t, res.Message)
		state.Suspend(res.Message)
		return true

	case taskgraph.StatusCompleted:
		if err := graph.MarkCompleted(task.ID, res.Message); err != nil {
			logger.Error().Err(err).Msg("Completing task failed")
			return false
		}
		r.record(ctx, state.ConversationID, task, taskgraph.StatusCompleted, res.Message)
		r.say(ctx, t, res.Message)
		state.CurrentTask = ""
		return false
	}

	reason := "task failed"
	if err != nil {
		reason = err.Error()
	}
	logger.Warn().Str("reason", reason).Msg("Task failed")
	r.fail(ctx, t, task, reason)
	return false
}

// restrict keeps only the capability tools that policy allows.
func restrict(c supporttools.Capability, policy *toolexecutor.ToolPolicy) supporttools.Capability {
	tools := make([]string, 0, len(c.Tools))
	for _, name := range c.Tools {
		if policy.IsToolAllowed(name) {
			tools = append(tools, name)
		}
	}
	c.Tools = tools
	return c
}

func (r *Router) fail(ctx context.Context, t *turn, task taskgraph.Task, reason string) {
	if err := t.state.Graph.MarkFailed(task.ID, reason); err != nil {
		t.logger.Error().Err(err).Str("task_id", task.ID).Msg("Failing task failed")
	}
	r.record(ctx, t.state.ConversationID, task, taskgraph.StatusFailed, reason)
	r.say(ctx, t, worker.FailureMessage(task.Capability))
	t.state.CurrentTask = ""
}

func (r *Router) record(ctx context.Context, conversationID string, task taskgraph.Task, status taskgraph.Status, detail string) {
	observability.RecordTaskTransition(task.Capability, string(status))
	observability.RecordTaskAudit(ctx, conversationID, task.ID, string(status), map[string]interface{}{
		"capability": task.Capability,
		"detail":     detail,
	})
}

// announce tells the customer which task starts next.
func (r *Router) announce(ctx context.Context, task taskgraph.Task) string {
	fallback := fmt.Sprintf("Let me %s.", strings.TrimRight(lowerFirst(task.Description), "."))
	if !r.cfg.LLMAnnouncements || r.cfg.Provider == nil {
		return fallback
	}
	resp, err := r.cfg.Provider.Call(ctx, llm.Request{
		Model:        r.cfg.Model,
		SystemPrompt: announcePrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: task.Description}},
		Temperature:  r.cfg.Temperature,
		MaxTokens:    64,
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		return fallback
	}
	return strings.TrimSpace(resp.Content)
}

// finalResponse summarises a terminal graph, falling back to a fixed layout.
func (r *Router) finalResponse(ctx context.Context, tasks []taskgraph.Task) string {
	var summary strings.Builder
	for _, task := range tasks {
		fmt.Fprintf(&summary, "- %s: %s\n", task.Description, taskOutcome(task))
	}
	fallback := "Here's a summary of what we've addressed:\n" + summary.String() + "Is there anything else I can help you with?"

	if r.cfg.Provider == nil {
		return fallback
	}
	resp, err := r.cfg.Provider.Call(ctx, llm.Request{
		Model:        r.cfg.Model,
		SystemPrompt: finalPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "Completed tasks:\n" + summary.String()}},
		Temperature:  r.cfg.Temperature,
		MaxTokens:    r.cfg.MaxTokens,
	})
	if err != nil {
		r.cfg.Logger.Debug().Err(err).Msg("Final response fell back to static summary")
		return fallback
	}
	if text := strings.TrimSpace(resp.Content); text != "" {
		return text
	}
	return fallback
}

func taskOutcome(task taskgraph.Task) string {
	if task.Status == taskgraph.StatusFailed {
		return "could not be completed (" + task.Result + ")"
	}
	return task.Result
}

// lowerFirst lowercases a leading capital unless the word is an acronym.
func lowerFirst(s string) string {
	first, size := utf8.DecodeRuneInString(s)
	if size == 0 || !unicode.IsUpper(first) {
		return s
	}
	if second, _ := utf8.DecodeRuneInString(s[size:]); unicode.IsUpper(second) {
		return s
	}
	return string(unicode.ToLower(first)) + s[size:]
}
