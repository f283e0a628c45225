package taskgraph

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Graph is the dependency-ordered task set of one episode.
type Graph struct {
	mu    sync.RWMutex
	tasks []*Task
	index map[string]*Task
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		index: make(map[string]*Task),
	}
}

// AddTasks validates and appends tasks. Either every task is added or none is.
func (g *Graph) AddTasks(tasks []Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	staged := make([]*Task, 0, len(tasks))
	ids := make(map[string]bool, len(g.tasks)+len(tasks))
	for _, t := range g.tasks {
		ids[t.ID] = true
	}

	for i := range tasks {
		t := tasks[i]
		if t.ID == "" {
			t.ID = fmt.Sprintf("task-%d", len(g.tasks)+i+1)
		}
		if ids[t.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
		}
		ids[t.ID] = true

		t.Status = StatusPending
		t.Result = ""
		t.Dependencies = append([]string(nil), t.Dependencies...)
		staged = append(staged, &t)
	}

	for _, t := range staged {
		for _, dep := range t.Dependencies {
			if dep == t.ID {
				return fmt.Errorf("%w: task %s depends on itself", ErrCycleDetected, t.ID)
			}
			if !ids[dep] {
				return fmt.Errorf("%w: task %s depends on non-existent task: %s", ErrUnknownDependency, t.ID, dep)
			}
		}
	}

	all := make([]*Task, 0, len(g.tasks)+len(staged))
	all = append(all, g.tasks...)
	all = append(all, staged...)
	if err := checkCycles(all); err != nil {
		return err
	}

	g.tasks = all
	for _, t := range staged {
		g.index[t.ID] = t
	}
	return nil
}

// checkCycles runs a DFS over the dependency edges.
func checkCycles(tasks []*Task) error {
	deps := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		deps[t.ID] = t.Dependencies
	}

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var hasCycle func(string) bool
	hasCycle = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, dep := range deps[id] {
			if !visited[dep] {
				if hasCycle(dep) {
					return true
				}
			} else if recStack[dep] {
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, t := range tasks {
		if !visited[t.ID] && hasCycle(t.ID) {
			return fmt.Errorf("%w involving task: %s", ErrCycleDetected, t.ID)
		}
	}
	return nil
}

// NextReady returns the Pending task whose dependencies are all Completed,
// with the lowest priority value. Ties go to the task added first.
func (g *Graph) NextReady() (Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var best *Task
	for _, t := range g.tasks {
		if t.Status != StatusPending || !g.depsCompleted(t) {
			continue
		}
		if best == nil || t.Priority < best.Priority {
			best = t
		}
	}
	if best == nil {
		return Task{}, false
	}
	return best.clone(), true
}

func (g *Graph) depsCompleted(t *Task) bool {
	for _, dep := range t.Dependencies {
		d, ok := g.index[dep]
		if !ok || d.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// MarkInProgress moves a Pending task to InProgress.
func (g *Graph) MarkInProgress(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, err := g.lookup(id)
	if err != nil {
		return err
	}
	if t.Status != StatusPending {
		return transitionError(t, StatusInProgress)
	}
	if active := g.active(); active != nil {
		return fmt.Errorf("%w: %s", ErrTaskActive, active.ID)
	}
	t.Status = StatusInProgress
	return nil
}

// MarkBlocked pauses an InProgress task until human input arrives.
func (g *Graph) MarkBlocked(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, err := g.lookup(id)
	if err != nil {
		return err
	}
	if t.Status != StatusInProgress {
		return transitionError(t, StatusBlocked)
	}
	t.Status = StatusBlocked
	return nil
}

// Resume returns a Blocked task to InProgress after human input.
func (g *Graph) Resume(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, err := g.lookup(id)
	if err != nil {
		return err
	}
	if t.Status != StatusBlocked {
		return transitionError(t, StatusInProgress)
	}
	if active := g.active(); active != nil {
		return fmt.Errorf("%w: %s", ErrTaskActive, active.ID)
	}
	t.Status = StatusInProgress
	return nil
}

// MarkCompleted records the result of an InProgress task.
func (g *Graph) MarkCompleted(id, result string) error {
	return g.finish(id, StatusCompleted, result)
}

// MarkFailed records the failure reason of an InProgress task.
func (g *Graph) MarkFailed(id, reason string) error {
	return g.finish(id, StatusFailed, reason)
}

func (g *Graph) finish(id string, status Status, result string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, err := g.lookup(id)
	if err != nil {
		return err
	}
	if t.Status != StatusInProgress {
		return transitionError(t, status)
	}
	t.Status = status
	t.Result = result
	return nil
}

// AllTerminal reports whether every task is Completed or Failed.
func (g *Graph) AllTerminal() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, t := range g.tasks {
		if !t.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// Stalled reports whether nothing is ready, nothing is running, and the graph
// is not terminal. A Pending task behind a Failed dependency stalls the graph.
func (g *Graph) Stalled() bool {
	if _, ok := g.NextReady(); ok {
		return false
	}
	g.mu.RLock()
	active := g.active()
	g.mu.RUnlock()
	if active != nil {
		return false
	}
	return !g.AllTerminal()
}

// Current returns the task that is InProgress or Blocked, if any.
func (g *Graph) Current() (Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, t := range g.tasks {
		if t.Status == StatusInProgress || t.Status == StatusBlocked {
			return t.clone(), true
		}
	}
	return Task{}, false
}

// Get returns a copy of the task with the given id.
func (g *Graph) Get(id string) (Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	t, ok := g.index[id]
	if !ok {
		return Task{}, false
	}
	return t.clone(), true
}

// Tasks returns copies of all tasks in insertion order.
func (g *Graph) Tasks() []Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Task, 0, len(g.tasks))
	for _, t := range g.tasks {
		out = append(out, t.clone())
	}
	return out
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}

// Order returns task ids grouped into dependency levels (topological sort).
// Within a level ids follow priority, then insertion order.
func (g *Graph) Order() ([][]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	position := make(map[string]int, len(g.tasks))
	dependents := make(map[string][]string)
	inDegree := make(map[string]int, len(g.tasks))
	for i, t := range g.tasks {
		position[t.ID] = i
		inDegree[t.ID] += 0
		for _, dep := range t.Dependencies {
			dependents[dep] = append(dependents[dep], t.ID)
			inDegree[t.ID]++
		}
	}

	less := func(level []string) func(i, j int) bool {
		return func(i, j int) bool {
			a, b := g.index[level[i]], g.index[level[j]]
			if a.Priority != b.Priority {
				return a.Priority < b.Priority
			}
			return position[a.ID] < position[b.ID]
		}
	}

	var queue []string
	for _, t := range g.tasks {
		if inDegree[t.ID] == 0 {
			queue = append(queue, t.ID)
		}
	}

	var levels [][]string
	processed := 0
	for len(queue) > 0 {
		level := append([]string(nil), queue...)
		sort.SliceStable(level, less(level))
		levels = append(levels, level)
		processed += len(level)

		var next []string
		for _, id := range level {
			for _, dependent := range dependents[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		queue = next
	}

	if processed != len(g.tasks) {
		return nil, fmt.Errorf("cannot determine execution order: %w", ErrCycleDetected)
	}
	return levels, nil
}

func (g *Graph) lookup(id string) (*Task, error) {
	t, ok := g.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

func (g *Graph) active() *Task {
	for _, t := range g.tasks {
		if t.Status == StatusInProgress {
			return t
		}
	}
	return nil
}

func transitionError(t *Task, to Status) error {
	return fmt.Errorf("%w: task %s %s -> %s", ErrInvalidTransition, t.ID, t.Status, to)
}

func (t *Task) clone() Task {
	c := *t
	c.Dependencies = append([]string(nil), t.Dependencies...)
	return c
}

type graphJSON struct {
	Tasks []Task `json:"tasks"`
}

// MarshalJSON encodes the graph with its task statuses and results.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(graphJSON{Tasks: g.Tasks()})
}

// UnmarshalJSON restores a graph snapshot, statuses included.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var raw graphJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.tasks = make([]*Task, 0, len(raw.Tasks))
	g.index = make(map[string]*Task, len(raw.Tasks))
	for i := range raw.Tasks {
		t := raw.Tasks[i]
		if _, dup := g.index[t.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
		}
		if t.Status == "" {
			t.Status = StatusPending
		}
		g.tasks = append(g.tasks, &t)
		g.index[t.ID] = &t
	}
	return checkCycles(g.tasks)
}
