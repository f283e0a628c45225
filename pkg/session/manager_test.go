package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestManager(t *testing.T) *SessionManager {
	t.Helper()
	sm, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { sm.Close() })
	return sm
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		shouldErr bool
	}{
		{"valid id", "conv-1", false},
		{"empty id", "", true},
		{"path traversal", "../etc/passwd", true},
		{"forward slash", "a/b", true},
		{"backslash", "a\\b", true},
		{"null byte", "a\x00b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateID(tt.id)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAppendAndGet(t *testing.T) {
	sm := setupTestManager(t)
	ctx := context.Background()

	require.NoError(t, sm.AppendMessage(ctx, "c1", Message{Role: "user", Content: "My vacuum won't move"}))
	require.NoError(t, sm.AppendMessage(ctx, "c1", Message{Role: "assistant", Content: "Let me check."}))

	msgs, err := sm.Get(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "Let me check.", msgs[1].Content)
	assert.False(t, msgs[0].Timestamp.IsZero())

	info, err := os.Stat(filepath.Join(sm.Dir(), "c1.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestAppendMessage_Validation(t *testing.T) {
	sm := setupTestManager(t)
	ctx := context.Background()

	assert.Error(t, sm.AppendMessage(ctx, "c1", Message{Content: "x"}))
	assert.Error(t, sm.AppendMessage(ctx, "c1", Message{Role: "user"}))
	assert.Error(t, sm.AppendMessage(ctx, "../x", Message{Role: "user", Content: "x"}))
}

func TestGet_Missing(t *testing.T) {
	sm := setupTestManager(t)
	msgs, err := sm.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestGet_SkipsCorruptLines(t *testing.T) {
	sm := setupTestManager(t)
	ctx := context.Background()

	require.NoError(t, sm.AppendMessage(ctx, "c1", Message{Role: "user", Content: "one"}))
	f, err := os.OpenFile(filepath.Join(sm.Dir(), "c1.jsonl"), os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n{\"message\":{\"role\":\"\"}}\n")
	require.NoError(t, err)
	f.Close()
	require.NoError(t, sm.AppendMessage(ctx, "c1", Message{Role: "user", Content: "two"}))

	msgs, err := sm.Get(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[1].Content)
}

func TestReplaceHistory(t *testing.T) {
	sm := setupTestManager(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, sm.AppendMessage(ctx, "c1", Message{Role: "user", Content: fmt.Sprintf("m%d", i)}))
	}

	replacement := []Message{
		{Role: "system", Content: "Summary of earlier conversation: stuff"},
		{Role: "user", Content: "m4"},
	}
	require.NoError(t, sm.ReplaceHistory(ctx, "c1", replacement))

	msgs, err := sm.Get(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.NoFileExists(t, filepath.Join(sm.Dir(), "c1.jsonl.tmp"))
}

func TestStateRoundTrip(t *testing.T) {
	sm := setupTestManager(t)
	ctx := context.Background()

	type snapshot struct {
		Phase string `json:"phase"`
		Turns int    `json:"turns"`
	}

	var missing snapshot
	found, err := sm.LoadState(ctx, "c1", &missing)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, sm.SaveState(ctx, "c1", snapshot{Phase: "awaiting_human_input", Turns: 2}))

	var got snapshot
	found, err = sm.LoadState(ctx, "c1", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, snapshot{Phase: "awaiting_human_input", Turns: 2}, got)
}

func TestListInfoDelete(t *testing.T) {
	sm := setupTestManager(t)
	ctx := context.Background()

	require.NoError(t, sm.AppendMessage(ctx, "b", Message{Role: "user", Content: "hi"}))
	require.NoError(t, sm.SaveState(ctx, "a", map[string]string{"phase": "idle"}))
	require.NoError(t, sm.AppendMessage(ctx, "a", Message{Role: "user", Content: "hello"}))

	ids, err := sm.ListIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	infos, err := sm.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.True(t, infos[0].HasState)
	assert.False(t, infos[1].HasState)
	assert.Equal(t, 1, infos[0].Messages)

	require.NoError(t, sm.Delete(ctx, "a"))
	ids, err = sm.ListIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)

	_, err = sm.Info(ctx, "a")
	assert.Error(t, err)
}

func TestConcurrentAppends(t *testing.T) {
	sm := setupTestManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = sm.AppendMessage(ctx, "c1", Message{Role: "user", Content: fmt.Sprintf("m%d", i), Timestamp: time.Now()})
		}(i)
	}
	wg.Wait()

	msgs, err := sm.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, msgs, 20)
}
