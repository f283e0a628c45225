package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/supportdesk/internal/observability"
	"github.com/harun/supportdesk/internal/tracing"
	"github.com/harun/supportdesk/pkg/commandqueue"
	"github.com/harun/supportdesk/pkg/compaction"
	"github.com/harun/supportdesk/pkg/conversation"
	"github.com/harun/supportdesk/pkg/decomposer"
	"github.com/harun/supportdesk/pkg/llm"
	"github.com/harun/supportdesk/pkg/supporttools"
	"github.com/harun/supportdesk/pkg/toolexecutor"
	"github.com/harun/supportdesk/pkg/worker"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// ConfigErrorMessage is shown when no language model is configured.
	ConfigErrorMessage = "Error: System not properly configured."

	// ApologyMessage is shown when a request could not be understood.
	ApologyMessage = "I'm sorry, I had trouble understanding that request. Could you rephrase it?"

	// StalledMessage is shown when remaining tasks can never become ready.
	StalledMessage = "I'm unable to proceed with the remaining parts of your request because an earlier step could not be completed. Please contact us again if you need further help."
)

var (
	// ErrNotConfigured is returned when the router has no language model.
	ErrNotConfigured = errors.New("router: no language model configured")

	// ErrNoStore is returned by New without a Store.
	ErrNoStore = errors.New("router: store is required")
)

// Config wires the router's collaborators.
type Config struct {
	Provider    llm.Provider
	Model       string
	Temperature float64
	MaxTokens   int

	MaxWorkerTurns   int
	ToolTimeout      time.Duration
	LLMAnnouncements bool

	Store     Store
	Retriever Retriever
	Executor  *toolexecutor.ToolExecutor
	Compactor *compaction.Compactor
	Queue     *commandqueue.CommandQueue

	// ToolPolicies narrows a capability's tools. Keys are capability names.
	ToolPolicies map[string]*toolexecutor.ToolPolicy

	Logger zerolog.Logger
}

// Reply is what one Step produced for the customer.
type Reply struct {
	ConversationID string
	Messages       []string
	Phase          conversation.Phase
	AwaitingInput  bool
}

// Text joins the visible messages.
func (r Reply) Text() string {
	return strings.Join(r.Messages, "\n\n")
}

// Router is the conversation state machine.
type Router struct {
	cfg        Config
	decomposer *decomposer.Decomposer
	worker     *worker.Worker
	ownsQueue  bool
}

// New creates a Router. Missing executor, compactor and queue are built with
// defaults.
func New(cfg Config) (*Router, error) {
	if cfg.Store == nil {
		return nil, ErrNoStore
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Executor == nil {
		cfg.Executor = toolexecutor.New()
		if err := supporttools.Register(cfg.Executor); err != nil {
			return nil, fmt.Errorf("register support tools: %w", err)
		}
	}
	if cfg.Compactor == nil {
		var summarizer compaction.Summarizer
		if cfg.Provider != nil {
			summarizer = compaction.NewLLMSummarizer(cfg.Provider, cfg.Model)
		}
		c, err := compaction.New(compaction.Config{Logger: cfg.Logger}, summarizer)
		if err != nil {
			return nil, err
		}
		cfg.Compactor = c
	}

	r := &Router{cfg: cfg}
	if cfg.Queue == nil {
		r.cfg.Queue = commandqueue.New()
		r.ownsQueue = true
	}

	r.decomposer = decomposer.New(decomposer.Config{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Logger:      cfg.Logger,
	})
	r.worker = worker.New(worker.Config{
		Provider:    cfg.Provider,
		Executor:    cfg.Executor,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		MaxTurns:    cfg.MaxWorkerTurns,
		ToolTimeout: cfg.ToolTimeout,
		Logger:      cfg.Logger,
	})
	return r, nil
}

// Close stops the queue when the router created it.
func (r *Router) Close() error {
	if r.ownsQueue {
		return r.cfg.Queue.Close()
	}
	return nil
}

// Step handles one inbound customer message. The returned Reply is always
// usable; err reports configuration, scheduling or storage failures that the
// reply already explains to the customer.
func (r *Router) Step(ctx context.Context, conversationID, text string) (Reply, error) {
	if strings.TrimSpace(conversationID) == "" {
		return Reply{}, fmt.Errorf("router: conversation id is required")
	}
	ctx = tracing.NewStepContext(ctx, conversationID)

	v, err := r.cfg.Queue.EnqueueWithContext(ctx, commandqueue.ConversationLane(conversationID),
		func(ctx context.Context) (interface{}, error) {
			return r.step(ctx, conversationID, text)
		}, nil)
	reply, _ := v.(Reply)
	reply.ConversationID = conversationID
	return reply, err
}

// turn carries one step's state and the messages it emits.
type turn struct {
	state  *conversation.State
	reply  Reply
	logger zerolog.Logger
}

func (r *Router) step(ctx context.Context, conversationID, text string) (reply Reply, err error) {
	ctx, span := tracing.StartSpan(ctx, "supportdesk.router", "router.step",
		attribute.String("conversation_id", conversationID))
	defer func() { tracing.EndSpan(span, err) }()

	logger := tracing.LoggerFromContext(ctx, r.cfg.Logger)

	state, err := r.load(ctx, conversationID)
	if err != nil {
		return Reply{}, err
	}
	t := &turn{state: state, logger: logger}

	user := llm.Message{Role: llm.RoleUser, Content: text}
	state.Append(user)
	if err := r.cfg.Store.AppendMessage(ctx, conversationID, user); err != nil {
		return Reply{}, fmt.Errorf("append user message: %w", err)
	}
	r.compact(ctx, t)

	logger.Info().Str("phase", string(state.Phase)).Int("episode", state.Episode).Msg("Router step")

	stepErr := r.advance(ctx, t)

	state.UpdatedAt = time.Now()
	if err := r.cfg.Store.SaveState(ctx, conversationID, state); err != nil {
		return t.finish(), errors.Join(stepErr, fmt.Errorf("save state: %w", err))
	}
	observability.RecordRouterStep(string(state.Phase))
	return t.finish(), stepErr
}

func (r *Router) advance(ctx context.Context, t *turn) error {
	state := t.state

	switch {
	case state.Phase == conversation.PhaseAwaitingHumanInput && state.CurrentTask != "" && state.Graph != nil:
		if err := state.Graph.Resume(state.CurrentTask); err != nil {
			t.logger.Warn().Err(err).Str("task_id", state.CurrentTask).Msg("Blocked task could not be resumed; starting a new episode")
			break
		}
		state.Resume()
		state.Phase = conversation.PhaseDispatching
		return r.dispatch(ctx, t)

	case state.EpisodeLevelWait():
		state.Resume()
		return r.decompose(ctx, t)
	}

	state.BeginEpisode()
	r.ground(ctx, t)
	return r.decompose(ctx, t)
}

func (r *Router) load(ctx context.Context, conversationID string) (*conversation.State, error) {
	state := conversation.New(conversationID)
	if _, err := r.cfg.Store.LoadState(ctx, conversationID, state); err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if state.Shared == nil {
		state.Shared = conversation.NewSharedContext()
	}
	state.ConversationID = conversationID

	history, err := r.cfg.Store.Get(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	state.Messages = history
	return state, nil
}

// compact folds old history. A failed summary leaves history untouched.
func (r *Router) compact(ctx context.Context, t *turn) {
	compacted, changed, err := r.cfg.Compactor.Compact(ctx, t.state.Messages)
	if err != nil {
		t.logger.Warn().Err(err).Msg("History compaction failed")
		return
	}
	if !changed {
		return
	}
	if err := r.cfg.Store.ReplaceHistory(ctx, t.state.ConversationID, compacted); err != nil {
		t.logger.Warn().Err(err).Msg("Persisting compacted history failed")
		return
	}
	t.state.Messages = compacted
}

// ground retrieves playbook context once per episode.
func (r *Router) ground(ctx context.Context, t *turn) {
	if r.cfg.Retriever == nil {
		return
	}
	text := lastUserText(t.state.Messages)
	grounding, err := r.cfg.Retriever.Extract(ctx, text)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Playbook retrieval failed")
		return
	}
	t.state.Grounding = grounding
}

func (r *Router) decompose(ctx context.Context, t *turn) error {
	state := t.state
	state.Phase = conversation.PhaseDecomposing

	if r.cfg.Provider == nil {
		r.say(ctx, t, ConfigErrorMessage)
		state.Complete(ConfigErrorMessage)
		return ErrNotConfigured
	}

	out, err := r.decomposer.Decompose(ctx, state.Messages, state.Grounding)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Decomposition failed")
		r.say(ctx, t, ApologyMessage)
		state.Complete(ApologyMessage)
		return nil
	}

	switch out.Kind {
	case decomposer.Empty:
		state.CasualTurns++
		msg := r.decomposer.CasualReply(ctx, state.Messages, state.CasualTurns)
		r.say(ctx, t, msg)
		state.Suspend(msg)
		return nil

	case decomposer.Clarify:
		r.say(ctx, t, out.Message)
		state.Suspend(out.Message)
		return nil
	}

	graph, err := newGraph(out)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Decomposed tasks rejected")
		r.say(ctx, t, ApologyMessage)
		state.Complete(ApologyMessage)
		return nil
	}
	state.Graph = graph
	state.CasualTurns = 0
	state.Phase = conversation.PhaseDispatching
	return r.dispatch(ctx, t)
}

// say records an assistant message in history, the store and the reply.
func (r *Router) say(ctx context.Context, t *turn, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	msg := llm.Message{Role: llm.RoleAssistant, Content: text}
	t.state.Append(msg)
	t.reply.Messages = append(t.reply.Messages, text)
	if err := r.cfg.Store.AppendMessage(ctx, t.state.ConversationID, msg); err != nil {
		t.logger.Warn().Err(err).Msg("Persisting assistant message failed")
	}
}

func (t *turn) finish() Reply {
	t.reply.ConversationID = t.state.ConversationID
	t.reply.Phase = t.state.Phase
	t.reply.AwaitingInput = t.state.AwaitingInput
	return t.reply
}

func lastUserText(msgs []llm.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
