package decomposer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/harun/supportdesk/internal/observability"
	"github.com/harun/supportdesk/internal/tracing"
	"github.com/harun/supportdesk/pkg/llm"
	"github.com/harun/supportdesk/pkg/taskgraph"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrParse is returned when the reply cannot be read even after repair.
	ErrParse = errors.New("decomposer: unparseable model output")

	// ErrNoProvider is returned when no language model is configured.
	ErrNoProvider = errors.New("decomposer: no language model configured")
)

// Kind classifies a decomposition.
type Kind int

const (
	Empty Kind = iota
	Clarify
	Tasks
)

func (k Kind) String() string {
	switch k {
	case Empty:
		return "empty"
	case Clarify:
		return "clarify"
	case Tasks:
		return "tasks"
	default:
		return "unknown"
	}
}

// Outcome is the result of one decomposition.
type Outcome struct {
	Kind    Kind
	Message string
	Tasks   []taskgraph.Task
}

// Config holds decomposer settings.
type Config struct {
	Provider    llm.Provider
	Model       string
	Temperature float64
	MaxTokens   int
	Logger      zerolog.Logger
}

// Decomposer asks the model to split a request into tasks.
type Decomposer struct {
	cfg Config
}

// New creates a Decomposer.
func New(cfg Config) *Decomposer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Decomposer{cfg: cfg}
}

// Decompose makes exactly one model call over the history.
func (d *Decomposer) Decompose(ctx context.Context, history []llm.Message, grounding string) (out Outcome, err error) {
	if d.cfg.Provider == nil {
		return Outcome{}, ErrNoProvider
	}

	ctx, span := tracing.StartSpan(ctx, "supportdesk.decomposer", "decomposer.decompose",
		attribute.Int("history", len(history)),
	)
	defer func() { tracing.EndSpan(span, err) }()
	logger := tracing.LoggerFromContext(ctx, d.cfg.Logger)

	resp, err := d.cfg.Provider.Call(ctx, llm.Request{
		Model:        d.cfg.Model,
		Messages:     transcript(history),
		SystemPrompt: systemPrompt(grounding),
		Temperature:  d.cfg.Temperature,
		MaxTokens:    d.cfg.MaxTokens,
	})
	if err != nil {
		observability.RecordDecomposition("error")
		return Outcome{}, fmt.Errorf("decomposer: model call: %w", err)
	}

	out, err = Parse(resp.Content)
	if err != nil {
		observability.RecordDecomposition("parse_error")
		logger.Warn().Err(err).Str("reply", truncate(resp.Content, 200)).Msg("Decomposition reply unreadable")
		return Outcome{}, err
	}

	observability.RecordDecomposition(out.Kind.String())
	logger.Debug().
		Str("kind", out.Kind.String()).
		Int("tasks", len(out.Tasks)).
		Msg("Request decomposed")

	return out, nil
}

// CasualReply phrases the answer to the n-th consecutive casual turn. It
// never fails; a fixed message is used when the model is unavailable.
func (d *Decomposer) CasualReply(ctx context.Context, history []llm.Message, turn int) string {
	instruction, fallback := casualPrompt(turn)
	if d.cfg.Provider == nil {
		return fallback
	}

	msgs := transcript(history)
	if len(msgs) > 4 {
		msgs = msgs[len(msgs)-4:]
	}
	if len(msgs) == 0 || msgs[0].Role != llm.RoleUser {
		msgs = append([]llm.Message{{Role: llm.RoleUser, Content: "Hello"}}, msgs...)
	}

	resp, err := d.cfg.Provider.Call(ctx, llm.Request{
		Model:        d.cfg.Model,
		Messages:     msgs,
		SystemPrompt: instruction,
		Temperature:  d.cfg.Temperature,
		MaxTokens:    256,
	})
	if err != nil {
		logger := tracing.LoggerFromContext(ctx, d.cfg.Logger)
		logger.Debug().Err(err).Msg("Casual reply fell back")
		return fallback
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return fallback
	}
	return reply
}

// transcript keeps the plain user/assistant/system turns.
func transcript(history []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, msg := range history {
		if msg.Role == llm.RoleTool || len(msg.ToolCalls) > 0 || msg.Content == "" {
			continue
		}
		out = append(out, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
