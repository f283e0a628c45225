package decomposer

import (
	"context"
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/harun/supportdesk/pkg/llm"
	"github.com/harun/supportdesk/pkg/llm/llmtest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDecomposer(p llm.Provider) *Decomposer {
	return New(Config{Provider: p, Model: "test-model", Logger: zerolog.Nop()})
}

func user(text string) llm.Message {
	return llm.Message{Role: llm.RoleUser, Content: text}
}

func TestDecompose_Greeting(t *testing.T) {
	for _, greeting := range []string{"hi", "thanks"} {
		t.Run(greeting, func(t *testing.T) {
			p := llmtest.New(llmtest.Text("[]"))
			d := newTestDecomposer(p)

			out, err := d.Decompose(context.Background(), []llm.Message{user(greeting)}, "")
			require.NoError(t, err)
			assert.Contains(t, []Kind{Empty, Clarify}, out.Kind)
			assert.Empty(t, out.Tasks)
		})
	}
}

func TestDecompose_BillingRequest(t *testing.T) {
	p := llmtest.New(llmtest.Text("```json\n" + `[{"id": "task_1", "description": "Investigate duplicate charge on bill B001 for phone 1234567890", "capability": "billing", "dependencies": [], "priority": 1}]` + "\n```"))
	d := newTestDecomposer(p)

	out, err := d.Decompose(context.Background(),
		[]llm.Message{user("I was charged twice on bill B001, phone 1234567890")}, "")
	require.NoError(t, err)
	require.Equal(t, Tasks, out.Kind)
	require.Len(t, out.Tasks, 1)
	assert.Equal(t, "billing", out.Tasks[0].Capability)
}

func TestDecompose_SingleCallWithGrounding(t *testing.T) {
	p := llmtest.New(llmtest.Text("[]"))
	d := newTestDecomposer(p)

	history := []llm.Message{
		user("my robot is stuck"),
		{Role: llm.RoleAssistant, Content: "Which model?"},
		{Role: llm.RoleTool, Content: "ignored", ToolCallID: "x"},
		user("the X200"),
	}
	_, err := d.Decompose(context.Background(), history, "## Stuck robot\nCheck the wheels.")
	require.NoError(t, err)

	reqs := p.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].SystemPrompt, "Check the wheels.")
	assert.Len(t, reqs[0].Messages, 3)
	assert.Equal(t, "test-model", reqs[0].Model)
}

func TestDecompose_Errors(t *testing.T) {
	t.Run("no provider", func(t *testing.T) {
		d := newTestDecomposer(nil)
		_, err := d.Decompose(context.Background(), []llm.Message{user("hi")}, "")
		assert.ErrorIs(t, err, ErrNoProvider)
	})

	t.Run("model failure", func(t *testing.T) {
		boom := errors.New("503 unavailable")
		d := newTestDecomposer(llmtest.New(llmtest.Fail(boom)))
		_, err := d.Decompose(context.Background(), []llm.Message{user("hi")}, "")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("garbage reply", func(t *testing.T) {
		d := newTestDecomposer(llmtest.New(llmtest.Text("I think you need billing help")))
		_, err := d.Decompose(context.Background(), []llm.Message{user("hi")}, "")
		assert.ErrorIs(t, err, ErrParse)
	})
}

func TestCasualReply(t *testing.T) {
	t.Run("model reply", func(t *testing.T) {
		p := llmtest.New(llmtest.Text("  Hi! How can I help?  "))
		d := newTestDecomposer(p)
		assert.Equal(t, "Hi! How can I help?", d.CasualReply(context.Background(), []llm.Message{user("hi")}, 1))
	})

	t.Run("fallbacks by turn", func(t *testing.T) {
		d := newTestDecomposer(llmtest.New())
		ctx := context.Background()
		history := []llm.Message{user("hey")}

		assert.Equal(t, FallbackWelcome, d.CasualReply(ctx, history, 1))
		assert.Equal(t, FallbackHelpful, d.CasualReply(ctx, history, 2))
		assert.Equal(t, FallbackDirect, d.CasualReply(ctx, history, 3))
		assert.Equal(t, FallbackClosing, d.CasualReply(ctx, history, 4))
		assert.Equal(t, FallbackClosing, d.CasualReply(ctx, history, 9))
	})

	t.Run("nil provider", func(t *testing.T) {
		d := newTestDecomposer(nil)
		assert.Equal(t, FallbackWelcome, d.CasualReply(context.Background(), nil, 0))
	})
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "hello", 10, "hello"},
		{"ascii", "hello world", 5, "hello..."},
		{"inside two-byte rune", "héllo", 2, "h..."},
		{"after two-byte rune", "héllo", 3, "hé..."},
		{"inside emoji", "ok 🤖 robot", 5, "ok ..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
