package core

import (
	"context"
	"encoding/json"
)

// Tool is a callable capability exposed to the reasoning model.
//
// Execute must never let a failure escape as anything other than an error
// return or a ToolResult with Success=false: the registry converts both
// into error observations that are fed back to the model, so a failing
// tool degrades the answer rather than the turn.
type Tool interface {
	// Name is the unique identifier the model calls the tool by.
	Name() string

	// Description tells the model what the tool does and when to use it.
	Description() string

	// InputSchema is the JSON schema for Execute's input, in the
	// map form produced by the tools package builders.
	InputSchema() map[string]interface{}

	// Execute runs the tool with schema-validated input.
	Execute(ctx context.Context, params *ToolParams) (*ToolResult, error)
}

// ToolParams carries the execution context and validated input for one call.
type ToolParams struct {
	// UserID is the user the current turn belongs to.
	UserID string

	// ConversationID identifies the enclosing conversation.
	ConversationID string

	// InstanceID identifies the agent instance handling the turn.
	InstanceID string

	// CohortKey is the persona cohort the user belongs to, if any.
	CohortKey string

	// Input is the raw JSON input requested by the model.
	Input json.RawMessage
}

// ToolResult is the only shape a tool execution produces.
type ToolResult struct {
	Success bool
	Data    interface{}
	Error   string
}

// ToolOK wraps data in a successful result.
func ToolOK(data interface{}) *ToolResult {
	return &ToolResult{Success: true, Data: data}
}

// ToolError builds a structured error result from a message.
func ToolError(msg string) *ToolResult {
	return &ToolResult{Success: false, Error: msg}
}
