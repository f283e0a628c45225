package taskgraph

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddTasks_Validation(t *testing.T) {
	t.Run("duplicate id", func(t *testing.T) {
		g := New()
		err := g.AddTasks([]Task{{ID: "a"}, {ID: "a"}})
		assert.ErrorIs(t, err, ErrDuplicateTask)
		assert.Equal(t, 0, g.Len())
	})

	t.Run("unknown dependency", func(t *testing.T) {
		g := New()
		err := g.AddTasks([]Task{{ID: "a", Dependencies: []string{"missing"}}})
		assert.ErrorIs(t, err, ErrUnknownDependency)
		assert.Contains(t, err.Error(), "missing")
	})

	t.Run("self dependency", func(t *testing.T) {
		g := New()
		err := g.AddTasks([]Task{{ID: "a", Dependencies: []string{"a"}}})
		assert.ErrorIs(t, err, ErrCycleDetected)
	})

	t.Run("cycle", func(t *testing.T) {
		g := New()
		err := g.AddTasks([]Task{
			{ID: "a", Dependencies: []string{"c"}},
			{ID: "b", Dependencies: []string{"a"}},
			{ID: "c", Dependencies: []string{"b"}},
		})
		assert.ErrorIs(t, err, ErrCycleDetected)
		assert.Equal(t, 0, g.Len())
	})

	t.Run("missing ids are assigned", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddTasks([]Task{{Description: "x"}, {Description: "y"}}))
		tasks := g.Tasks()
		assert.Equal(t, "task-1", tasks[0].ID)
		assert.Equal(t, "task-2", tasks[1].ID)
	})

	t.Run("status is reset to pending", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddTasks([]Task{{ID: "a", Status: StatusCompleted, Result: "stale"}}))
		task, ok := g.Get("a")
		require.True(t, ok)
		assert.Equal(t, StatusPending, task.Status)
		assert.Empty(t, task.Result)
	})

	t.Run("later batch may depend on earlier tasks", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddTasks([]Task{{ID: "a"}}))
		require.NoError(t, g.AddTasks([]Task{{ID: "b", Dependencies: []string{"a"}}}))
		assert.Equal(t, 2, g.Len())
	})
}

func TestNextReady_PriorityAndInsertionOrder(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTasks([]Task{
		{ID: "low", Priority: 2},
		{ID: "first", Priority: 1},
		{ID: "second", Priority: 1},
	}))

	next, ok := g.NextReady()
	require.True(t, ok)
	assert.Equal(t, "first", next.ID)

	require.NoError(t, g.MarkInProgress("first"))
	require.NoError(t, g.MarkCompleted("first", "done"))

	next, ok = g.NextReady()
	require.True(t, ok)
	assert.Equal(t, "second", next.ID)
}

func TestNextReady_WaitsForCompletedDependencies(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTasks([]Task{
		{ID: "troubleshoot", Priority: 1},
		{ID: "warranty", Priority: 0, Dependencies: []string{"troubleshoot"}},
	}))

	next, ok := g.NextReady()
	require.True(t, ok)
	assert.Equal(t, "troubleshoot", next.ID)

	require.NoError(t, g.MarkInProgress("troubleshoot"))
	require.NoError(t, g.MarkBlocked("troubleshoot"))

	// A Blocked dependency does not satisfy readiness.
	_, ok = g.NextReady()
	assert.False(t, ok)
	assert.False(t, g.Stalled())

	require.NoError(t, g.Resume("troubleshoot"))
	require.NoError(t, g.MarkCompleted("troubleshoot", "fixed"))

	next, ok = g.NextReady()
	require.True(t, ok)
	assert.Equal(t, "warranty", next.ID)
}

func TestTransitions(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTasks([]Task{{ID: "a"}, {ID: "b"}}))

	assert.ErrorIs(t, g.MarkCompleted("a", "x"), ErrInvalidTransition)
	assert.ErrorIs(t, g.MarkBlocked("a"), ErrInvalidTransition)
	assert.ErrorIs(t, g.Resume("a"), ErrInvalidTransition)
	assert.ErrorIs(t, g.MarkInProgress("zzz"), ErrTaskNotFound)

	require.NoError(t, g.MarkInProgress("a"))
	assert.ErrorIs(t, g.MarkInProgress("b"), ErrTaskActive)

	require.NoError(t, g.MarkFailed("a", "boom"))
	assert.ErrorIs(t, g.MarkCompleted("a", "changed"), ErrInvalidTransition)
	assert.ErrorIs(t, g.MarkInProgress("a"), ErrInvalidTransition)

	task, _ := g.Get("a")
	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, "boom", task.Result)
}

func TestAllTerminalAndStalled(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTasks([]Task{
		{ID: "a"},
		{ID: "b", Dependencies: []string{"a"}},
	}))
	assert.False(t, g.AllTerminal())
	assert.False(t, g.Stalled())

	require.NoError(t, g.MarkInProgress("a"))
	require.NoError(t, g.MarkFailed("a", "no"))

	// b can never become ready.
	_, ok := g.NextReady()
	assert.False(t, ok)
	assert.False(t, g.AllTerminal())
	assert.True(t, g.Stalled())
}

func TestOrder(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTasks([]Task{
		{ID: "warranty", Dependencies: []string{"troubleshoot"}},
		{ID: "billing", Priority: 2},
		{ID: "troubleshoot", Priority: 1},
	}))

	levels, err := g.Order()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"troubleshoot", "billing"}, {"warranty"}}, levels)
}

func TestGraphJSONRoundTripKeepsStatus(t *testing.T) {
	g := New()
	require.NoError(t, g.AddTasks([]Task{{ID: "a", Capability: "billing"}, {ID: "b", Dependencies: []string{"a"}}}))
	require.NoError(t, g.MarkInProgress("a"))
	require.NoError(t, g.MarkBlocked("a"))

	data, err := json.Marshal(g)
	require.NoError(t, err)

	restored := New()
	require.NoError(t, json.Unmarshal(data, restored))

	cur, ok := restored.Current()
	require.True(t, ok)
	assert.Equal(t, "a", cur.ID)
	assert.Equal(t, StatusBlocked, cur.Status)
	require.NoError(t, restored.Resume("a"))
}

// Random DAGs driven to completion never expose a task with unfinished
// dependencies and never hold two tasks InProgress.
func TestNextReady_RandomGraphs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(8)
		tasks := make([]Task, n)
		for i := 0; i < n; i++ {
			tasks[i] = Task{ID: fmt.Sprintf("t%d", i), Priority: rng.Intn(3)}
			for j := 0; j < i; j++ {
				if rng.Intn(3) == 0 {
					tasks[i].Dependencies = append(tasks[i].Dependencies, fmt.Sprintf("t%d", j))
				}
			}
		}

		g := New()
		require.NoError(t, g.AddTasks(tasks))

		for steps := 0; steps < n; steps++ {
			next, ok := g.NextReady()
			require.True(t, ok, "round %d: graph stalled early", round)

			for _, dep := range next.Dependencies {
				d, _ := g.Get(dep)
				require.Equal(t, StatusCompleted, d.Status)
			}

			require.NoError(t, g.MarkInProgress(next.ID))
			inProgress := 0
			for _, task := range g.Tasks() {
				if task.Status == StatusInProgress {
					inProgress++
				}
			}
			require.Equal(t, 1, inProgress)

			if rng.Intn(4) == 0 {
				require.NoError(t, g.MarkBlocked(next.ID))
				require.NoError(t, g.Resume(next.ID))
			}
			require.NoError(t, g.MarkCompleted(next.ID, "ok"))
		}
		assert.True(t, g.AllTerminal())
		assert.False(t, g.Stalled())
	}
}
