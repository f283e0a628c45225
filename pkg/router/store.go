package router

import (
	"context"
	"time"

	"github.com/harun/supportdesk/pkg/llm"
	"github.com/harun/supportdesk/pkg/session"
)

// Store persists conversation history and the state snapshot.
type Store interface {
	Get(ctx context.Context, conversationID string) ([]llm.Message, error)
	AppendMessage(ctx context.Context, conversationID string, msg llm.Message) error
	ReplaceHistory(ctx context.Context, conversationID string, msgs []llm.Message) error
	SaveState(ctx context.Context, conversationID string, v interface{}) error
	LoadState(ctx context.Context, conversationID string, v interface{}) (bool, error)
}

// Retriever supplies playbook grounding for a request.
type Retriever interface {
	Extract(ctx context.Context, text string) (string, error)
}

// SessionStore adapts a session.SessionManager to Store.
type SessionStore struct {
	manager *session.SessionManager
}

// NewSessionStore wraps manager.
func NewSessionStore(manager *session.SessionManager) *SessionStore {
	return &SessionStore{manager: manager}
}

func (s *SessionStore) Get(ctx context.Context, conversationID string) ([]llm.Message, error) {
	stored, err := s.manager.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	msgs := make([]llm.Message, 0, len(stored))
	for _, m := range stored {
		msgs = append(msgs, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}
	return msgs, nil
}

func (s *SessionStore) AppendMessage(ctx context.Context, conversationID string, msg llm.Message) error {
	return s.manager.AppendMessage(ctx, conversationID, toSession(msg))
}

func (s *SessionStore) ReplaceHistory(ctx context.Context, conversationID string, msgs []llm.Message) error {
	stored := make([]session.Message, 0, len(msgs))
	for _, m := range msgs {
		stored = append(stored, toSession(m))
	}
	return s.manager.ReplaceHistory(ctx, conversationID, stored)
}

func (s *SessionStore) SaveState(ctx context.Context, conversationID string, v interface{}) error {
	return s.manager.SaveState(ctx, conversationID, v)
}

func (s *SessionStore) LoadState(ctx context.Context, conversationID string, v interface{}) (bool, error) {
	return s.manager.LoadState(ctx, conversationID, v)
}

func toSession(msg llm.Message) session.Message {
	return session.Message{
		Role:      string(msg.Role),
		Content:   msg.Content,
		Timestamp: time.Now(),
	}
}
