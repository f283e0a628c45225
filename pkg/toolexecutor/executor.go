package toolexecutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harun/supportdesk/internal/observability"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrToolNotFound      = errors.New("tool not found")
	ErrInvalidParameters = errors.New("parameter validation failed")
	ErrToolNotAllowed    = errors.New("tool not allowed")
	ErrToolTimeout       = errors.New("tool execution timeout")
)

const (
	defaultTimeout = 30 * time.Second
	maxOutputSize  = 10 * 1024
)

// ToolPolicy defines which tools a capability can use
type ToolPolicy struct {
	Allow []string `json:"allow" mapstructure:"allow"` // List of allowed tools (* for all)
	Deny  []string `json:"deny" mapstructure:"deny"`   // List of denied tools (overrides allow)
}

// IsToolAllowed checks if a tool is allowed by the policy
func (tp *ToolPolicy) IsToolAllowed(toolName string) bool {
	if tp == nil {
		return true
	}

	for _, denied := range tp.Deny {
		if denied == toolName || denied == "*" {
			return false
		}
	}
	for _, allowed := range tp.Allow {
		if allowed == toolName || allowed == "*" {
			return true
		}
	}
	return false
}

// ToolParameter defines a parameter for a tool. Types, when set, lets a
// parameter accept several JSON types (e.g. a phone number as string or
// integer) and takes precedence over Type.
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Types       []string    `json:"types,omitempty"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Enum        []string    `json:"enum,omitempty"`
	Default     interface{} `json:"default,omitempty"`
}

// ToolDefinition defines a tool's metadata and handler
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
	// Capability is the worker capability that owns the tool.
	Capability string `json:"capability,omitempty"`
}

// ToolHandler is the function signature for tool execution
type ToolHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// ExecutionContext provides runtime information for tool execution
type ExecutionContext struct {
	ConversationID string
	TaskID         string
	Capability     string
	Timeout        time.Duration
	ToolPolicy     *ToolPolicy
}

// ToolResult represents the result of a tool execution
type ToolResult struct {
	Success   bool                   `json:"success"`
	Output    interface{}            `json:"output,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Truncated bool                   `json:"truncated,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Text renders the result the way it is fed back to the model.
func (r ToolResult) Text() string {
	if !r.Success {
		return "Error: " + r.Error
	}
	switch v := r.Output.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// ToolExecutor manages and executes tools
type ToolExecutor struct {
	tools   map[string]*ToolDefinition
	schemas map[string]*gojsonschema.Schema
	mu      sync.RWMutex
}

// New creates a new ToolExecutor
func New() *ToolExecutor {
	te := &ToolExecutor{
		tools:   make(map[string]*ToolDefinition),
		schemas: make(map[string]*gojsonschema.Schema),
	}

	log.Debug().Msg("Tool executor initialized")

	return te
}

// RegisterTool registers a new tool
func (te *ToolExecutor) RegisterTool(def ToolDefinition) error {
	if err := validateToolDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.Schema()))
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	te.mu.Lock()
	defer te.mu.Unlock()

	if _, exists := te.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	te.tools[def.Name] = &def
	te.schemas[def.Name] = schema

	log.Debug().Str("tool", def.Name).Str("capability", def.Capability).Msg("Tool registered")

	return nil
}

// UnregisterTool removes a tool
func (te *ToolExecutor) UnregisterTool(name string) {
	te.mu.Lock()
	defer te.mu.Unlock()

	delete(te.tools, name)
	delete(te.schemas, name)
}

// GetTool retrieves a tool definition
func (te *ToolExecutor) GetTool(name string) *ToolDefinition {
	te.mu.RLock()
	defer te.mu.RUnlock()

	return te.tools[name]
}

// ListTools returns registered tool names, sorted.
func (te *ToolExecutor) ListTools() []string {
	te.mu.RLock()
	defer te.mu.RUnlock()

	tools := make([]string, 0, len(te.tools))
	for name := range te.tools {
		tools = append(tools, name)
	}
	sort.Strings(tools)
	return tools
}

// ToolsFor returns the definitions a policy permits, sorted by name.
func (te *ToolExecutor) ToolsFor(policy *ToolPolicy) []ToolDefinition {
	te.mu.RLock()
	defer te.mu.RUnlock()

	defs := []ToolDefinition{}
	for name, def := range te.tools {
		if policy.IsToolAllowed(name) {
			defs = append(defs, *def)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// GetToolCount returns the number of registered tools
func (te *ToolExecutor) GetToolCount() int {
	te.mu.RLock()
	defer te.mu.RUnlock()

	return len(te.tools)
}

// Execute runs a tool. Failures of any kind (unknown tool, policy, schema,
// handler error, panic, timeout) come back as a ToolResult with Success false.
func (te *ToolExecutor) Execute(ctx context.Context, toolName string, params map[string]interface{}, execCtx *ExecutionContext) (result ToolResult) {
	startTime := time.Now()
	logger := log.With().Str("tool", toolName).Logger()
	if execCtx != nil {
		logger = logger.With().Str("conversation_id", execCtx.ConversationID).Str("task_id", execCtx.TaskID).Logger()
	}

	defer func() {
		observability.RecordToolExecution(toolName, time.Since(startTime), result.Success)
		actor := ""
		if execCtx != nil {
			actor = execCtx.ConversationID
		}
		status := "success"
		if !result.Success {
			status = "failure"
		}
		observability.RecordToolAudit(ctx, toolName, actor, status, map[string]interface{}{"params": params})
	}()

	if execCtx != nil && execCtx.ToolPolicy != nil && !execCtx.ToolPolicy.IsToolAllowed(toolName) {
		logger.Warn().Str("capability", execCtx.Capability).Msg("Tool execution blocked by policy")
		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("%v: '%s' is not available to %s", ErrToolNotAllowed, toolName, execCtx.Capability),
			Metadata: map[string]interface{}{
				"policy_violation": true,
			},
		}
	}

	te.mu.RLock()
	tool := te.tools[toolName]
	schema := te.schemas[toolName]
	te.mu.RUnlock()

	if tool == nil {
		logger.Warn().Msg("Tool not found")
		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("%v: %s", ErrToolNotFound, toolName),
		}
	}

	if params == nil {
		params = map[string]interface{}{}
	}
	if err := validateParameters(schema, params); err != nil {
		logger.Warn().Err(err).Msg("Parameter validation failed")
		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("%v: %v", ErrInvalidParameters, err),
		}
	}

	timeout := defaultTimeout
	if execCtx != nil && execCtx.Timeout > 0 {
		timeout = execCtx.Timeout
	}

	timeoutCtx, cancel := context.WithTimeout(ContextWithExecContext(ctx, execCtx), timeout)
	defer cancel()

	resultChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errChan <- fmt.Errorf("tool %s panicked: %v", toolName, r)
			}
		}()
		out, err := tool.Handler(timeoutCtx, params)
		if err != nil {
			errChan <- err
			return
		}
		resultChan <- out
	}()

	select {
	case out := <-resultChan:
		duration := time.Since(startTime)
		output, truncated := truncateOutput(out)

		logger.Debug().
			Dur("duration", duration).
			Bool("truncated", truncated).
			Msg("Tool execution completed")

		return ToolResult{
			Success:   true,
			Output:    output,
			Truncated: truncated,
			Metadata: map[string]interface{}{
				"duration": duration.Milliseconds(),
			},
		}

	case err := <-errChan:
		duration := time.Since(startTime)
		logger.Warn().Dur("duration", duration).Err(err).Msg("Tool execution failed")

		return ToolResult{
			Success: false,
			Error:   err.Error(),
			Metadata: map[string]interface{}{
				"duration": duration.Milliseconds(),
			},
		}

	case <-timeoutCtx.Done():
		duration := time.Since(startTime)
		logger.Error().Dur("duration", duration).Msg("Tool execution timeout")

		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("%v after %v", ErrToolTimeout, timeout),
			Metadata: map[string]interface{}{
				"duration": duration.Milliseconds(),
			},
		}
	}
}

var validTypes = map[string]bool{
	"string": true, "number": true, "boolean": true,
	"object": true, "array": true, "integer": true,
}

func validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
		types := param.Types
		if len(types) == 0 {
			if param.Type == "" {
				return fmt.Errorf("parameter type cannot be empty for %s", param.Name)
			}
			types = []string{param.Type}
		}
		for _, typ := range types {
			if !validTypes[typ] {
				return fmt.Errorf("invalid parameter type %s for %s", typ, param.Name)
			}
		}
	}

	return nil
}

// Schema returns the JSON schema of the tool's parameters. The same schema is
// used for validation and offered to the model.
func (def ToolDefinition) Schema() map[string]interface{} {
	properties := make(map[string]interface{}, len(def.Parameters))
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"description": param.Description,
		}
		if len(param.Types) > 0 {
			types := make([]interface{}, len(param.Types))
			for i, typ := range param.Types {
				types[i] = typ
			}
			paramSchema["type"] = types
		} else {
			paramSchema["type"] = param.Type
		}
		if len(param.Enum) > 0 {
			enum := make([]interface{}, len(param.Enum))
			for i, v := range param.Enum {
				enum[i] = v
			}
			paramSchema["enum"] = enum
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}

		properties[param.Name] = paramSchema
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func validateParameters(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		errs := []string{}
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("validation errors: %v", errs)
	}

	return nil
}

func truncateOutput(output interface{}) (interface{}, bool) {
	var str string
	switch v := output.(type) {
	case string:
		str = v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			str = fmt.Sprintf("%v", v)
		} else {
			str = string(data)
		}
	}

	if len(str) <= maxOutputSize {
		return output, false
	}

	log.Warn().
		Int("original", len(str)).
		Int("truncated", maxOutputSize).
		Msg("Output truncated")

	return str[:maxOutputSize] + "\n... [output truncated]", true
}
