// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/harun/supportdesk/pkg/llm"
)

// ErrScriptExhausted is returned once every scripted step has been used.
var ErrScriptExhausted = errors.New("llmtest: script exhausted")

// Step is one scripted completion.
type Step struct {
	Content   string
	ToolCalls []llm.ToolCall
	Err       error
}

// Text scripts a plain text completion.
func Text(content string) Step {
	return Step{Content: content}
}

// Tools scripts a completion that requests tool calls.
func Tools(calls ...llm.ToolCall) Step {
	return Step{ToolCalls: calls}
}

// Fail scripts a transport error.
func Fail(err error) Step {
	return Step{Err: err}
}

// Provider replays steps in order and records every request.
type Provider struct {
	mu       sync.Mutex
	steps    []Step
	requests []llm.Request
}

// New creates a scripted provider.
func New(steps ...Step) *Provider {
	return &Provider{steps: steps}
}

// Push appends more steps.
func (p *Provider) Push(steps ...Step) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, steps...)
}

func (p *Provider) Provider() string {
	return "scripted"
}

func (p *Provider) Call(ctx context.Context, request llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msgs := make([]llm.Message, len(request.Messages))
	copy(msgs, request.Messages)
	request.Messages = msgs
	p.requests = append(p.requests, request)

	if len(p.steps) == 0 {
		return nil, ErrScriptExhausted
	}
	step := p.steps[0]
	p.steps = p.steps[1:]

	if step.Err != nil {
		return nil, step.Err
	}
	return &llm.Response{Content: step.Content, ToolCalls: step.ToolCalls}, nil
}

// Requests returns the recorded requests.
func (p *Provider) Requests() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]llm.Request, len(p.requests))
	copy(out, p.requests)
	return out
}

// Remaining returns how many steps have not been consumed.
func (p *Provider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.steps)
}
