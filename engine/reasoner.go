package engine

import (
	"context"
	"encoding/json"

	"github.com/hivelight/hive-go-sdk/core"
)

// ToolSchema is one entry of the schema list handed to the reasoning
// service so it knows what it may call.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// ToolCall is one tool invocation requested by the reasoning service.
type ToolCall struct {
	CallID string
	Name   string
	Input  json.RawMessage
}

// ResponseKind signals how a reasoning response should be handled.
type ResponseKind int

const (
	// FinalAnswer means the response text is the answer for this turn.
	FinalAnswer ResponseKind = iota

	// ToolCallRequest means the response asks for one or more tool calls.
	ToolCallRequest
)

// Request is what the reasoning service sees on each loop iteration.
type Request struct {
	System   string
	Messages []core.Message
	Tools    []ToolSchema
}

// Response is the reasoning service's answer to a Request.
// Text may be non-empty alongside Calls; it is carried into the
// assistant message either way.
type Response struct {
	Kind  ResponseKind
	Text  string
	Calls []ToolCall
}

// Reasoner abstracts the reasoning service. Implementations translate
// Request/Response to a concrete model API; transport failures are
// returned as errors and are fatal to the turn after the loop's single
// retry.
type Reasoner interface {
	Respond(ctx context.Context, req *Request) (*Response, error)
}
