// Package compaction bounds conversation history by folding older messages
// into a single summary message.
package compaction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harun/supportdesk/internal/observability"
	"github.com/harun/supportdesk/pkg/llm"
	"github.com/rs/zerolog"
)

const (
	DefaultThreshold  = 10
	DefaultKeepRecent = 4

	// MinKeepRecent holds one clarification prompt and its answer.
	MinKeepRecent = 2

	// SummaryPrefix starts every synthetic summary message.
	SummaryPrefix = "Summary of earlier conversation: "
)

// ErrInvalidConfig is returned for a keep count outside [MinKeepRecent, threshold).
var ErrInvalidConfig = errors.New("compaction: keep_recent must be at least 2 and below threshold")

// Config controls compaction.
//
// KeepRecent must cover the in-flight clarification exchange (the prompt
// and the customer's answer) so a blocked task can always be resumed.
type Config struct {
	Threshold  int
	KeepRecent int
	Logger     zerolog.Logger
}

// Summarizer condenses messages into prose.
type Summarizer interface {
	Summarize(ctx context.Context, messages []llm.Message) (string, error)
}

// Compactor applies the threshold/keep policy.
type Compactor struct {
	cfg        Config
	summarizer Summarizer
}

// New creates a Compactor. A nil summarizer falls back to SimpleSummarizer.
func New(cfg Config, summarizer Summarizer) (*Compactor, error) {
	if cfg.Threshold == 0 && cfg.KeepRecent == 0 {
		cfg.Threshold = DefaultThreshold
		cfg.KeepRecent = DefaultKeepRecent
	}
	if cfg.KeepRecent < MinKeepRecent || cfg.KeepRecent >= cfg.Threshold {
		return nil, fmt.Errorf("%w (threshold=%d, keep_recent=%d)", ErrInvalidConfig, cfg.Threshold, cfg.KeepRecent)
	}
	if summarizer == nil {
		summarizer = SimpleSummarizer{}
	}
	return &Compactor{cfg: cfg, summarizer: summarizer}, nil
}

// NeedsCompaction reports whether messages exceed the threshold.
func (c *Compactor) NeedsCompaction(messages []llm.Message) bool {
	return len(messages) > c.cfg.Threshold
}

// Compact returns messages unchanged when at or below the threshold.
// Otherwise it returns one summary message followed by the last KeepRecent
// messages, untouched. The bool reports whether anything was folded.
func (c *Compactor) Compact(ctx context.Context, messages []llm.Message) ([]llm.Message, bool, error) {
	if !c.NeedsCompaction(messages) {
		return messages, false, nil
	}

	split := len(messages) - c.cfg.KeepRecent
	older, recent := messages[:split], messages[split:]

	summary, err := c.summarizer.Summarize(ctx, older)
	if err != nil {
		return messages, false, fmt.Errorf("summarize: %w", err)
	}

	out := make([]llm.Message, 0, c.cfg.KeepRecent+1)
	out = append(out, llm.Message{
		Role:    llm.RoleSystem,
		Content: SummaryPrefix + strings.TrimSpace(summary),
	})
	out = append(out, recent...)

	observability.RecordCompaction(len(older))
	c.cfg.Logger.Debug().
		Int("folded", len(older)).
		Int("kept", len(recent)).
		Msg("History compacted")

	return out, true, nil
}

// IsSummary reports whether msg was produced by Compact.
func IsSummary(msg llm.Message) bool {
	return msg.Role == llm.RoleSystem && strings.HasPrefix(msg.Content, SummaryPrefix)
}
