package llm

import (
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one entry of a model transcript.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// ToolSpec describes a tool offered to the model.
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Request contains the request parameters for an LLM call
type Request struct {
	Model        string
	Messages     []Message
	Tools        []ToolSpec
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// Response contains the response from the LLM
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// HasToolCalls reports whether the model asked for tools.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// Profile holds credentials for one provider account.
type Profile struct {
	ID            string `json:"id"`
	Provider      string `json:"provider"` // "anthropic", "openai"
	APIKey        string `json:"api_key"`
	CooldownUntil *int64 `json:"cooldown_until,omitempty"`
	FailureCount  int    `json:"failure_count"`
	Priority      int    `json:"priority"`
}

// IsRetryableError checks if an error is transient (network, rate limit, 5xx).
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"econnreset", "etimedout", "timeout", "429", "rate limit", "500", "502", "503", "504"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// splitSystem separates system-role messages from the rest of the transcript
// and merges them into the base system prompt.
func splitSystem(base string, messages []Message) (string, []Message) {
	parts := []string{}
	if base != "" {
		parts = append(parts, base)
	}
	rest := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if msg.Content != "" {
				parts = append(parts, msg.Content)
			}
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(parts, "\n\n"), rest
}
