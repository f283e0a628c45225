// Package toolexecutor registers and executes the deterministic tools that
// workers call on behalf of the model.
//
// Invariants:
// - Tool names are unique.
// - Parameters are schema-validated before execution.
// - Execute never panics and never returns an error value; every failure is
//   reported in ToolResult.Error so it can be fed back to the model.
//
// Usage:
//
//	exec := toolexecutor.New()
//	_ = exec.RegisterTool(toolexecutor.ToolDefinition{
//		Name: "echo",
//		Description: "Echo input",
//		Parameters: []toolexecutor.ToolParameter{{Name: "text", Type: "string", Description: "text", Required: true}},
//		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return params["text"], nil },
//	})
//	result := exec.Execute(ctx, "echo", map[string]interface{}{"text": "hi"}, nil)
package toolexecutor
