package decomposer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		kind    Kind
		message string
		tasks   int
	}{
		{name: "empty array", raw: "[]", kind: Empty},
		{name: "fenced empty array", raw: "```json\n[]\n```", kind: Empty},
		{name: "bare string", raw: `"Which bill do you mean?"`, kind: Clarify, message: "Which bill do you mean?"},
		{name: "response object", raw: `{"response": "Can you share your serial number?"}`, kind: Clarify, message: "Can you share your serial number?"},
		{name: "message object", raw: `{"message": "What is your order number?"}`, kind: Clarify, message: "What is your order number?"},
		{name: "task array", raw: `[{"id":"t1","description":"check bill","capability":"billing","dependencies":[],"priority":1}]`, kind: Tasks, tasks: 1},
		{name: "wrapped tasks", raw: `{"tasks":[{"id":"t1","description":"check bill","capability":"billing"}]}`, kind: Tasks, tasks: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, out.Kind)
			assert.Equal(t, tt.message, out.Message)
			assert.Len(t, out.Tasks, tt.tasks)
		})
	}
}

func TestParse_AlternateFieldNames(t *testing.T) {
	raw := `[
		{"task_id": "task_1", "description": "Diagnose vacuum", "agent": "Troubleshoot", "dependencies": [], "priority": 1},
		{"task_id": "task_2", "description": "Check warranty", "agent": "warranty", "dependencies": ["task_1"], "priority": "2"}
	]`

	out, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, out.Tasks, 2)

	assert.Equal(t, "task_1", out.Tasks[0].ID)
	assert.Equal(t, "troubleshoot", out.Tasks[0].Capability)
	assert.Equal(t, []string{"task_1"}, out.Tasks[1].Dependencies)
	assert.Equal(t, 2, out.Tasks[1].Priority)
}

func TestParse_DefaultPriority(t *testing.T) {
	out, err := Parse(`[{"description": "Start a return", "capability": "returns"}]`)
	require.NoError(t, err)
	require.Len(t, out.Tasks, 1)
	assert.Equal(t, 1, out.Tasks[0].Priority)
	assert.Empty(t, out.Tasks[0].ID)
}

func TestParse_Repair(t *testing.T) {
	t.Run("trailing commas", func(t *testing.T) {
		out, err := Parse(`[{"id": "t1", "description": "refund", "capability": "billing", "dependencies": [],},]`)
		require.NoError(t, err)
		assert.Equal(t, Tasks, out.Kind)
	})

	t.Run("smart quotes", func(t *testing.T) {
		out, err := Parse(`[{“id”: “t1”, “description”: “refund”, “capability”: “billing”}]`)
		require.NoError(t, err)
		assert.Equal(t, "billing", out.Tasks[0].Capability)
	})

	t.Run("single quotes keep apostrophes", func(t *testing.T) {
		out, err := Parse(`[{'id': 't1', 'description': 'vacuum won't move', 'capability': 'troubleshoot'}]`)
		require.NoError(t, err)
		require.Len(t, out.Tasks, 1)
		assert.Equal(t, "vacuum won't move", out.Tasks[0].Description)
	})
}

func TestParse_Errors(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":            "   ",
		"prose":            "Sure, I can help with that!",
		"number":           "42",
		"missing agent":    `[{"id": "t1", "description": "do something"}]`,
		"missing desc":     `[{"id": "t1", "capability": "billing"}]`,
		"non object items": `["billing", "warranty"]`,
		"unknown object":   `{"foo": "bar"}`,
		"broken json":      `[{"id": "t1", "description": `,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(raw)
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}
