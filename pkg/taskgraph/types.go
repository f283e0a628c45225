package taskgraph

import "errors"

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is one unit of work bound to a single capability.
type Task struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	Capability   string   `json:"capability"`
	Status       Status   `json:"status"`
	Result       string   `json:"result,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	// Priority orders ready tasks; lower runs first.
	Priority int `json:"priority"`
}

var (
	ErrDuplicateTask     = errors.New("duplicate task id")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrCycleDetected     = errors.New("circular dependency detected")
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTaskActive        = errors.New("another task is already in progress")

	// ErrStalled means no task is ready yet the graph is not terminal.
	ErrStalled = errors.New("scheduling deadlock: no runnable task")
)
