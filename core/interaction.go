package core

import "encoding/json"

// InteractionKind distinguishes the two halves of a tool exchange.
type InteractionKind string

const (
	InteractionInvocation InteractionKind = "invocation"
	InteractionResult     InteractionKind = "result"
)

// ToolInteraction is one audit entry from a loop run. Two entries are
// recorded per dispatched call (the invocation and its result); entries
// are appended in execution order and never mutated. The full list is
// handed to the persistence collaborator alongside the conversation turn.
type ToolInteraction struct {
	Kind     InteractionKind `json:"kind"`
	CallID   string          `json:"call_id"`
	ToolName string          `json:"tool_name"`
	Input    json.RawMessage `json:"input,omitempty"`
	Output   json.RawMessage `json:"output,omitempty"`
	IsError  bool            `json:"is_error,omitempty"`
}
