package conversation

import (
	"encoding/json"
	"testing"

	"github.com/harun/supportdesk/pkg/taskgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedContext_Namespaces(t *testing.T) {
	shared := NewSharedContext()
	troubleshoot := shared.Scope("troubleshoot")
	troubleshoot.Set("issue_resolved", false)
	shared.Scope("billing").Set("bill_id", "B001")

	v, ok := shared.Get("troubleshoot", "issue_resolved")
	require.True(t, ok)
	assert.Equal(t, false, v)

	_, ok = shared.Get("billing", "issue_resolved")
	assert.False(t, ok)

	assert.Equal(t, []string{"billing", "troubleshoot"}, shared.Namespaces())
	assert.Equal(t, 2, shared.Len())

	copied := shared.Namespace("billing")
	copied["bill_id"] = "changed"
	v, _ = shared.Get("billing", "bill_id")
	assert.Equal(t, "B001", v)
}

func TestState_SnapshotRoundTrip(t *testing.T) {
	st := New("conv-1")
	st.BeginEpisode()
	st.Graph = taskgraph.New()
	require.NoError(t, st.Graph.AddTasks([]taskgraph.Task{{ID: "task_1", Capability: "billing", Description: "refund"}}))
	require.NoError(t, st.Graph.MarkInProgress("task_1"))
	require.NoError(t, st.Graph.MarkBlocked("task_1"))
	st.CurrentTask = "task_1"
	st.Shared.Set("billing", "ph_number", "1234567890")
	st.Suspend("Could you share your phone number?")

	data, err := json.Marshal(st)
	require.NoError(t, err)

	var restored State
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, PhaseAwaitingHumanInput, restored.Phase)
	assert.True(t, restored.AwaitingInput)
	assert.Equal(t, "Could you share your phone number?", restored.Prompt)
	assert.Equal(t, "task_1", restored.CurrentTask)
	assert.False(t, restored.EpisodeLevelWait())

	task, ok := restored.Graph.Get("task_1")
	require.True(t, ok)
	assert.Equal(t, taskgraph.StatusBlocked, task.Status)

	v, ok := restored.Shared.Get("billing", "ph_number")
	require.True(t, ok)
	assert.Equal(t, "1234567890", v)
}

func TestState_BeginEpisodeKeepsHistory(t *testing.T) {
	st := New("conv-1")
	st.Append(userMsg("hi"))
	st.Graph = taskgraph.New()
	st.Shared.Set("billing", "x", 1)
	st.Complete("bye")
	assert.Equal(t, PhaseCompleted, st.Phase)
	assert.True(t, st.AllTerminal)

	st.BeginEpisode()
	assert.Nil(t, st.Graph)
	assert.Equal(t, 0, st.Shared.Len())
	assert.Empty(t, st.FinalResponse)
	assert.Len(t, st.Messages, 1)
	assert.Equal(t, 1, st.Episode)
}
