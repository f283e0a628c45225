package jsonrepair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func TestStripFences(t *testing.T) {
	assert.Equal(t, "[]", StripFences("```\n[]\n```"))
	assert.Equal(t, "[]", StripFences("```json\n[]\n```"))
	assert.Equal(t, `"hi"`, StripFences(`  "hi"  `))
	assert.Equal(t, "no fences", StripFences("no fences"))
}

func TestRepair(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trailing comma in object", `{"a": 1,}`, `{"a": 1}`},
		{"trailing comma in array", `[1, 2, ]`, `[1, 2]`},
		{"single quotes", `{'action': 'completed', 'message': 'done'}`, `{"action": "completed", "message": "done"}`},
		{"smart quotes", `{“a”: “b”}`, `{"a": "b"}`},
		{"bare single-quoted string", `'hello'`, `"hello"`},
		{"apostrophe inside value", `{'message': 'I've reset it'}`, `{"message": "I've reset it"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Repair(tt.in)
			assert.Equal(t, tt.want, got)
			assert.True(t, gjson.Valid(got))
		})
	}
}

func TestRepair_LeavesValidJSON(t *testing.T) {
	in := `{"a": [1, 2], "b": "it's fine"}`
	assert.Equal(t, in, Repair(in))
}
