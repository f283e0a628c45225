package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harun/supportdesk/internal/observability"
	"github.com/harun/supportdesk/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const (
	historySuffix = ".jsonl"
	stateSuffix   = ".state.json"
)

// Message represents a single conversation turn
type Message struct {
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Entry is one JSONL line.
type Entry struct {
	ConversationID string  `json:"conversationId"`
	Message        Message `json:"message"`
}

// Info describes a stored conversation.
type Info struct {
	ID           string    `json:"id"`
	Messages     int       `json:"messages"`
	Size         int64     `json:"size"`
	HasState     bool      `json:"has_state"`
	LastModified time.Time `json:"last_modified"`
}

// SessionManager stores conversations under one directory.
type SessionManager struct {
	dir        string
	writeLocks map[string]*sync.Mutex
	locksMu    sync.Mutex
}

// New creates a SessionManager rooted at dir (default ~/.supportdesk/sessions).
func New(dir string) (*SessionManager, error) {
	observability.EnsureRegistered()

	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".supportdesk", "sessions")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	sm := &SessionManager{
		dir:        dir,
		writeLocks: make(map[string]*sync.Mutex),
	}

	log.Info().Str("dir", dir).Msg("Session manager initialized")
	sm.updateActiveMetric()

	return sm, nil
}

// Dir returns the storage directory.
func (sm *SessionManager) Dir() string {
	return sm.dir
}

func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("conversation id cannot be empty")
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("conversation id cannot contain '..'")
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("conversation id cannot contain path separators")
	}
	if strings.Contains(id, "\x00") {
		return fmt.Errorf("conversation id cannot contain null bytes")
	}
	return nil
}

func (sm *SessionManager) historyPath(id string) string {
	return filepath.Join(sm.dir, id+historySuffix)
}

func (sm *SessionManager) statePath(id string) string {
	return filepath.Join(sm.dir, id+stateSuffix)
}

func (sm *SessionManager) updateActiveMetric() {
	ids, err := sm.ListIDs()
	if err != nil {
		return
	}
	observability.SetActiveConversations(len(ids))
}

func (sm *SessionManager) lock(id string) *sync.Mutex {
	sm.locksMu.Lock()
	defer sm.locksMu.Unlock()

	if l, ok := sm.writeLocks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	sm.writeLocks[id] = l
	return l
}

// Get loads the full history of a conversation. A conversation that does
// not exist yet has an empty history.
func (sm *SessionManager) Get(ctx context.Context, id string) (msgs []Message, err error) {
	ctx, span := tracing.StartSpan(tracing.WithConversationID(ctx, id), "supportdesk.session", "session.get",
		attribute.String("conversation_id", id),
	)
	defer func() { tracing.EndSpan(span, err) }()
	logger := tracing.LoggerFromContext(ctx, log.Logger)
	start := time.Now()
	defer func() { observability.RecordSessionLoad(time.Since(start)) }()

	if err := validateID(id); err != nil {
		return nil, err
	}

	file, err := os.Open(sm.historyPath(id))
	if os.IsNotExist(err) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	defer file.Close()

	msgs = []Message{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			logger.Warn().Int("line", lineNum).Err(err).Msg("Failed to parse history line, skipping")
			continue
		}
		if entry.Message.Role == "" || entry.Message.Content == "" {
			logger.Warn().Int("line", lineNum).Msg("Invalid history entry, skipping")
			continue
		}
		msgs = append(msgs, entry.Message)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	return msgs, nil
}

// AppendMessage appends one message to the history.
func (sm *SessionManager) AppendMessage(ctx context.Context, id string, message Message) (err error) {
	ctx, span := tracing.StartSpan(tracing.WithConversationID(ctx, id), "supportdesk.session", "session.append_message",
		attribute.String("conversation_id", id),
		attribute.String("role", message.Role),
	)
	defer func() { tracing.EndSpan(span, err) }()
	start := time.Now()
	defer func() { observability.RecordSessionSave(time.Since(start)) }()

	if err := validateID(id); err != nil {
		return err
	}
	if message.Role == "" {
		return fmt.Errorf("message role cannot be empty")
	}
	if message.Content == "" {
		return fmt.Errorf("message content cannot be empty")
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	l := sm.lock(id)
	l.Lock()
	defer l.Unlock()

	path := sm.historyPath(id)
	_, statErr := os.Stat(path)
	created := os.IsNotExist(statErr)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer file.Close()

	data, err := json.Marshal(Entry{ConversationID: id, Message: message})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync history: %w", err)
	}

	if created {
		sm.updateActiveMetric()
	}
	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Debug().Str("role", message.Role).Msg("Message appended")
	return nil
}

// ReplaceHistory swaps the whole history, e.g. after compaction.
func (sm *SessionManager) ReplaceHistory(ctx context.Context, id string, msgs []Message) (err error) {
	ctx, span := tracing.StartSpan(tracing.WithConversationID(ctx, id), "supportdesk.session", "session.replace_history",
		attribute.String("conversation_id", id),
		attribute.Int("messages", len(msgs)),
	)
	defer func() { tracing.EndSpan(span, err) }()
	start := time.Now()
	defer func() { observability.RecordSessionSave(time.Since(start)) }()

	if err := validateID(id); err != nil {
		return err
	}

	l := sm.lock(id)
	l.Lock()
	defer l.Unlock()

	var buf strings.Builder
	for _, msg := range msgs {
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}
		data, err := json.Marshal(Entry{ConversationID: id, Message: msg})
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	if err := writeAtomic(sm.historyPath(id), []byte(buf.String())); err != nil {
		return err
	}

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Debug().Int("messages", len(msgs)).Msg("History replaced")
	return nil
}

// SaveState snapshots v as JSON next to the history.
func (sm *SessionManager) SaveState(ctx context.Context, id string, v interface{}) (err error) {
	_, span := tracing.StartSpan(tracing.WithConversationID(ctx, id), "supportdesk.session", "session.save_state",
		attribute.String("conversation_id", id),
	)
	defer func() { tracing.EndSpan(span, err) }()
	start := time.Now()
	defer func() { observability.RecordSessionSave(time.Since(start)) }()

	if err := validateID(id); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	l := sm.lock(id)
	l.Lock()
	defer l.Unlock()

	return writeAtomic(sm.statePath(id), data)
}

// LoadState reads the snapshot into v. It reports false when none exists.
func (sm *SessionManager) LoadState(ctx context.Context, id string, v interface{}) (found bool, err error) {
	_, span := tracing.StartSpan(tracing.WithConversationID(ctx, id), "supportdesk.session", "session.load_state",
		attribute.String("conversation_id", id),
	)
	defer func() { tracing.EndSpan(span, err) }()
	start := time.Now()
	defer func() { observability.RecordSessionLoad(time.Since(start)) }()

	if err := validateID(id); err != nil {
		return false, err
	}

	data, err := os.ReadFile(sm.statePath(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read state: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode state: %w", err)
	}
	return true, nil
}

// Delete removes the history and state of a conversation.
func (sm *SessionManager) Delete(ctx context.Context, id string) (err error) {
	ctx, span := tracing.StartSpan(tracing.WithConversationID(ctx, id), "supportdesk.session", "session.delete",
		attribute.String("conversation_id", id),
	)
	defer func() { tracing.EndSpan(span, err) }()

	if err := validateID(id); err != nil {
		return err
	}

	l := sm.lock(id)
	l.Lock()
	defer l.Unlock()

	for _, path := range []string{sm.historyPath(id), sm.statePath(id)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete %s: %w", filepath.Base(path), err)
		}
	}

	sm.locksMu.Lock()
	delete(sm.writeLocks, id)
	sm.locksMu.Unlock()
	sm.updateActiveMetric()

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Info().Msg("Conversation deleted")
	return nil
}

// ListIDs lists stored conversation ids in sorted order.
func (sm *SessionManager) ListIDs() ([]string, error) {
	entries, err := os.ReadDir(sm.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	seen := map[string]bool{}
	ids := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		var id string
		switch {
		case strings.HasSuffix(name, stateSuffix):
			id = strings.TrimSuffix(name, stateSuffix)
		case strings.HasSuffix(name, historySuffix):
			id = strings.TrimSuffix(name, historySuffix)
		default:
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Info returns metadata about one conversation.
func (sm *SessionManager) Info(ctx context.Context, id string) (Info, error) {
	if err := validateID(id); err != nil {
		return Info{}, err
	}

	info := Info{ID: id}
	found := false

	if st, err := os.Stat(sm.historyPath(id)); err == nil {
		found = true
		info.Size = st.Size()
		info.LastModified = st.ModTime()
	}
	if st, err := os.Stat(sm.statePath(id)); err == nil {
		found = true
		info.HasState = true
		if st.ModTime().After(info.LastModified) {
			info.LastModified = st.ModTime()
		}
	}
	if !found {
		return Info{}, fmt.Errorf("conversation %s does not exist", id)
	}

	msgs, err := sm.Get(ctx, id)
	if err != nil {
		return Info{}, err
	}
	info.Messages = len(msgs)
	return info, nil
}

// List returns Info for every stored conversation.
func (sm *SessionManager) List(ctx context.Context) ([]Info, error) {
	ids, err := sm.ListIDs()
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(ids))
	for _, id := range ids {
		info, err := sm.Info(ctx, id)
		if err != nil {
			log.Warn().Str("conversation_id", id).Err(err).Msg("Failed to read conversation info")
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// Close releases write locks.
func (sm *SessionManager) Close() error {
	sm.locksMu.Lock()
	sm.writeLocks = make(map[string]*sync.Mutex)
	sm.locksMu.Unlock()

	log.Info().Msg("Session manager closed")
	return nil
}

func writeAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	file.Close()

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
