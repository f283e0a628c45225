package decomposer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/harun/supportdesk/internal/jsonrepair"
	"github.com/harun/supportdesk/pkg/taskgraph"
	"github.com/tidwall/gjson"
)

// Parse reads a decomposition reply. It accepts an empty array, a JSON
// string or {"response": ...} object asking for clarification, or an array
// of task objects (optionally wrapped as {"tasks": [...]}).
func Parse(raw string) (Outcome, error) {
	text := jsonrepair.StripFences(raw)
	if text == "" {
		return Outcome{}, fmt.Errorf("%w: empty reply", ErrParse)
	}

	if !gjson.Valid(text) {
		text = jsonrepair.Repair(text)
		if !gjson.Valid(text) {
			return Outcome{}, fmt.Errorf("%w: reply is not JSON", ErrParse)
		}
	}

	return fromResult(gjson.Parse(text))
}

func fromResult(res gjson.Result) (Outcome, error) {
	switch {
	case res.Type == gjson.String:
		msg := strings.TrimSpace(res.String())
		if msg == "" {
			return Outcome{Kind: Empty}, nil
		}
		return Outcome{Kind: Clarify, Message: msg}, nil

	case res.IsArray():
		return tasksFrom(res.Array())

	case res.IsObject():
		if tasks := res.Get("tasks"); tasks.IsArray() {
			return tasksFrom(tasks.Array())
		}
		for _, key := range []string{"response", "message"} {
			if v := res.Get(key); v.Type == gjson.String && strings.TrimSpace(v.String()) != "" {
				return Outcome{Kind: Clarify, Message: strings.TrimSpace(v.String())}, nil
			}
		}
		return Outcome{}, fmt.Errorf("%w: object without tasks or message", ErrParse)
	}

	return Outcome{}, fmt.Errorf("%w: unexpected %s value", ErrParse, res.Type)
}

func tasksFrom(items []gjson.Result) (Outcome, error) {
	if len(items) == 0 {
		return Outcome{Kind: Empty}, nil
	}

	tasks := make([]taskgraph.Task, 0, len(items))
	for i, item := range items {
		if !item.IsObject() {
			return Outcome{}, fmt.Errorf("%w: task %d is not an object", ErrParse, i)
		}

		task := taskgraph.Task{
			ID:          firstString(item, "id", "task_id"),
			Description: firstString(item, "description", "task"),
			Capability:  strings.ToLower(firstString(item, "capability", "agent")),
			Priority:    1,
		}
		if task.Capability == "" {
			return Outcome{}, fmt.Errorf("%w: task %d has no capability", ErrParse, i)
		}
		if task.Description == "" {
			return Outcome{}, fmt.Errorf("%w: task %d has no description", ErrParse, i)
		}

		deps := item.Get("dependencies")
		if deps.IsArray() {
			for _, dep := range deps.Array() {
				if id := strings.TrimSpace(dep.String()); id != "" {
					task.Dependencies = append(task.Dependencies, id)
				}
			}
		} else if id := strings.TrimSpace(deps.String()); deps.Type == gjson.String && id != "" {
			task.Dependencies = []string{id}
		}

		if p := item.Get("priority"); p.Exists() {
			switch p.Type {
			case gjson.Number:
				task.Priority = int(p.Int())
			case gjson.String:
				if n, err := strconv.Atoi(strings.TrimSpace(p.String())); err == nil {
					task.Priority = n
				}
			}
		}

		tasks = append(tasks, task)
	}

	return Outcome{Kind: Tasks, Tasks: tasks}, nil
}

func firstString(res gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := res.Get(key); v.Exists() && v.Type != gjson.Null {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}
