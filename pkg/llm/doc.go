// Package llm is the language-model collaborator used by the decomposer,
// workers, compactor and router.
//
// Invariants:
// - A completion carries text, tool calls, or both; callers handle both shapes.
// - System-role messages found in history are folded into the system prompt.
// - Failover tries each configured profile at most once per call.
//
// Usage:
//
//	provider, err := llm.NewFailover(profiles, llm.FailoverConfig{Logger: logger})
//	resp, err := provider.Call(ctx, llm.Request{Model: "gpt-4o-mini", Messages: msgs})
package llm
