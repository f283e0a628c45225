package compaction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harun/supportdesk/pkg/llm"
)

const summaryPrompt = `Summarize this customer support conversation concisely. Focus on:
1. What the customer asked for
2. Identifiers they gave (serial numbers, bill ids, phone numbers, order references)
3. What was already checked or done
4. Anything still open

Keep the summary under 200 words. Use bullet points.`

// LLMSummarizer summarises with one model call.
type LLMSummarizer struct {
	Provider  llm.Provider
	Model     string
	MaxTokens int
}

// NewLLMSummarizer creates a model-backed summarizer.
func NewLLMSummarizer(provider llm.Provider, model string) *LLMSummarizer {
	return &LLMSummarizer{Provider: provider, Model: model, MaxTokens: 512}
}

// Summarize implements Summarizer.
func (s *LLMSummarizer) Summarize(ctx context.Context, messages []llm.Message) (string, error) {
	if s.Provider == nil {
		return "", errors.New("no language model configured")
	}

	resp, err := s.Provider.Call(ctx, llm.Request{
		Model:        s.Model,
		SystemPrompt: summaryPrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: "Conversation:\n" + formatTranscript(messages),
		}},
		MaxTokens: s.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", errors.New("empty summary")
	}
	return summary, nil
}

// SimpleSummarizer builds an extractive summary without a model.
type SimpleSummarizer struct{}

// Summarize implements Summarizer.
func (SimpleSummarizer) Summarize(_ context.Context, messages []llm.Message) (string, error) {
	var topics []string
	for _, m := range messages {
		if m.Role == llm.RoleUser && len(m.Content) < 200 {
			topics = append(topics, "- "+m.Content)
		}
	}
	if len(topics) > 5 {
		topics = topics[len(topics)-5:]
	}
	if len(topics) == 0 {
		return fmt.Sprintf("%d earlier messages of general conversation.", len(messages)), nil
	}
	return "Customer said:\n" + strings.Join(topics, "\n"), nil
}

func formatTranscript(messages []llm.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		role := string(m.Role)
		if len(role) > 0 {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n\n", role, m.Content))
	}
	return sb.String()
}
