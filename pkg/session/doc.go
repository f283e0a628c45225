// Package session persists conversations: an append-only JSONL history per
// conversation plus a JSON snapshot of the router state.
//
// Invariants:
// - Conversation ids are validated and path-safe.
// - Writes for the same conversation are serialized.
// - History replacement and state snapshots are written to a temp file and
//   renamed into place.
//
// Usage:
//
//	mgr, _ := session.New("/tmp/supportdesk/sessions")
//	_ = mgr.AppendMessage(ctx, "c1", session.Message{Role: "user", Content: "hello"})
//	msgs, _ := mgr.Get(ctx, "c1")
package session
