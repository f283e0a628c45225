package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCleanup_Defaults(t *testing.T) {
	sm := setupTestManager(t)

	c, err := NewCleanup(sm, CleanupConfig{})
	require.NoError(t, err)
	assert.Equal(t, DefaultCleanupSchedule, c.cfg.Schedule)
	assert.Equal(t, DefaultCleanupAge, c.cfg.MaxAge)
	assert.Equal(t, DefaultMaxEntries, c.cfg.MaxEntries)
}

func TestNewCleanup_InvalidSchedule(t *testing.T) {
	sm := setupTestManager(t)
	_, err := NewCleanup(sm, CleanupConfig{Schedule: "every tuesday"})
	assert.Error(t, err)
}

func TestCleanupStartStop(t *testing.T) {
	sm := setupTestManager(t)
	c, err := NewCleanup(sm, CleanupConfig{Schedule: "@hourly"})
	require.NoError(t, err)

	require.NoError(t, c.Start())
	assert.True(t, c.IsRunning())
	assert.Error(t, c.Start())

	require.NoError(t, c.Stop())
	assert.False(t, c.IsRunning())
	assert.Error(t, c.Stop())
}

func TestCleanup_DeletesIdleConversations(t *testing.T) {
	sm := setupTestManager(t)
	ctx := context.Background()

	require.NoError(t, sm.AppendMessage(ctx, "old", Message{Role: "user", Content: "hi"}))
	require.NoError(t, sm.SaveState(ctx, "old", map[string]string{"phase": "completed"}))
	require.NoError(t, sm.AppendMessage(ctx, "fresh", Message{Role: "user", Content: "hi"}))

	past := time.Now().Add(-48 * time.Hour)
	for _, name := range []string{"old.jsonl", "old.state.json"} {
		require.NoError(t, os.Chtimes(filepath.Join(sm.Dir(), name), past, past))
	}

	c, err := NewCleanup(sm, CleanupConfig{MaxAge: 24 * time.Hour})
	require.NoError(t, err)

	report, err := c.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, report.Deleted)

	ids, err := sm.ListIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, ids)
}

func TestCleanup_PrunesLongHistories(t *testing.T) {
	sm := setupTestManager(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, sm.AppendMessage(ctx, "long", Message{Role: "user", Content: fmt.Sprintf("m%d", i)}))
	}

	c, err := NewCleanup(sm, CleanupConfig{MaxEntries: 3})
	require.NoError(t, err)

	report, err := c.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"long"}, report.Pruned)

	msgs, err := sm.Get(ctx, "long")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m5", msgs[0].Content)
}
