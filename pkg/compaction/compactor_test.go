package compaction

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/harun/supportdesk/pkg/llm"
	"github.com/harun/supportdesk/pkg/llm/llmtest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func history(n int) []llm.Message {
	msgs := make([]llm.Message, n)
	for i := range msgs {
		role := llm.RoleUser
		if i%2 == 1 {
			role = llm.RoleAssistant
		}
		msgs[i] = llm.Message{Role: role, Content: fmt.Sprintf("message %d", i)}
	}
	return msgs
}

func newCompactor(t *testing.T, s Summarizer) *Compactor {
	t.Helper()
	c, err := New(Config{Threshold: 10, KeepRecent: 4, Logger: zerolog.Nop()}, s)
	require.NoError(t, err)
	return c
}

func TestCompact_TwelveMessages(t *testing.T) {
	p := llmtest.New(llmtest.Text("- customer reported a stuck vacuum"))
	c := newCompactor(t, NewLLMSummarizer(p, "m"))
	in := history(12)

	out, compacted, err := c.Compact(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, compacted)
	require.Len(t, out, 5)

	assert.True(t, IsSummary(out[0]))
	assert.Equal(t, SummaryPrefix+"- customer reported a stuck vacuum", out[0].Content)
	assert.Equal(t, in[8:], out[1:])

	reqs := p.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Messages[0].Content, "message 7")
	assert.NotContains(t, reqs[0].Messages[0].Content, "message 8")
}

func TestCompact_BelowThresholdIsNoop(t *testing.T) {
	p := llmtest.New()
	c := newCompactor(t, NewLLMSummarizer(p, "m"))

	for _, n := range []int{0, 3, 10} {
		in := history(n)
		out, compacted, err := c.Compact(context.Background(), in)
		require.NoError(t, err)
		assert.False(t, compacted)
		assert.Equal(t, in, out)
	}
	assert.Empty(t, p.Requests())
}

func TestCompact_Idempotent(t *testing.T) {
	p := llmtest.New(llmtest.Text("summary"))
	c := newCompactor(t, NewLLMSummarizer(p, "m"))

	once, _, err := c.Compact(context.Background(), history(15))
	require.NoError(t, err)

	twice, compacted, err := c.Compact(context.Background(), once)
	require.NoError(t, err)
	assert.False(t, compacted)
	assert.Equal(t, once, twice)
	assert.Len(t, p.Requests(), 1)
}

func TestCompact_SummarizerError(t *testing.T) {
	c := newCompactor(t, NewLLMSummarizer(llmtest.New(llmtest.Fail(errors.New("timeout"))), "m"))
	in := history(11)

	out, compacted, err := c.Compact(context.Background(), in)
	assert.Error(t, err)
	assert.False(t, compacted)
	assert.Equal(t, in, out)
}

func TestNew_Validation(t *testing.T) {
	for _, cfg := range []Config{
		{Threshold: 10, KeepRecent: 10},
		{Threshold: 10, KeepRecent: 0},
		{Threshold: 10, KeepRecent: 1},
		{Threshold: 4, KeepRecent: 6},
		{Threshold: 10, KeepRecent: -1},
	} {
		_, err := New(cfg, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	}

	c, err := New(Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultThreshold, c.cfg.Threshold)
	assert.Equal(t, DefaultKeepRecent, c.cfg.KeepRecent)
}

func TestSimpleSummarizer(t *testing.T) {
	c := newCompactor(t, nil)
	out, compacted, err := c.Compact(context.Background(), history(12))
	require.NoError(t, err)
	assert.True(t, compacted)
	assert.Contains(t, out[0].Content, "message 0")
	assert.NotContains(t, out[0].Content, "message 1\n")
}
