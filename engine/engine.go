// Package engine drives the reasoning/acting loop for one user turn:
// it repeatedly invokes the reasoning service, dispatches requested tool
// calls through the registry, feeds observations back, and terminates on
// a final answer, a fatal transport error, or the iteration ceiling.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/hivelight/hive-go-sdk/core"
)

// StopReason explains why a loop run terminated.
type StopReason string

const (
	// StopFinalAnswer means the model produced a final textual answer.
	StopFinalAnswer StopReason = "final_answer"

	// StopIterationLimit means the iteration ceiling was hit before a
	// final answer. This is a planned stop condition, not an error.
	StopIterationLimit StopReason = "iteration_limit"

	// StopFatalError means the reasoning service was unreachable or
	// returned an unrecoverable error.
	StopFatalError StopReason = "fatal_error"
)

// DefaultMaxIterations bounds reasoning/acting cycles per turn. It is a
// circuit breaker against runaway tool-call cycles, not a latency budget.
const DefaultMaxIterations = 10

// User-facing messages for the two non-answer outcomes. Plain language,
// never stack traces or internal identifiers.
const (
	iterationLimitMessage = "I hit the limit on how many tool steps I can take for a single request. Could you try again, or break the request into smaller parts?"
	fatalErrorMessage     = "Something went wrong while processing your request. Please try again in a moment."
)

// Engine runs loop turns against a Reasoner and a ToolRegistry.
type Engine struct {
	reasoner   Reasoner
	registry   *ToolRegistry
	logger     *zap.Logger
	newBackOff func() backoff.BackOff
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithBackOff overrides the retry policy used for reasoning-service
// transport failures. The factory is called once per turn.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(e *Engine) {
		e.newBackOff = factory
	}
}

// New creates an engine.
func New(reasoner Reasoner, registry *ToolRegistry, opts ...Option) *Engine {
	e := &Engine{
		reasoner:   reasoner,
		registry:   registry,
		logger:     zap.NewNop(),
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// defaultBackOff is the bounded policy for the loop's single retry:
// 500ms initial interval, doubling, with the library's default jitter.
func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 2 * time.Second
	return b
}

// Registry returns the engine's tool registry.
func (e *Engine) Registry() *ToolRegistry {
	return e.registry
}

// Input describes one loop run.
type Input struct {
	// UserMessage is the new user message for this turn.
	UserMessage string

	// History contains prior conversation turns.
	History []core.Message

	// SystemPrompt overrides DefaultSystemPrompt when non-empty.
	SystemPrompt string

	// UserID, ConversationID, InstanceID and CohortKey identify the
	// turn; they are passed through to every tool execution.
	UserID         string
	ConversationID string
	InstanceID     string
	CohortKey      string

	// MaxIterations overrides DefaultMaxIterations when positive.
	MaxIterations int

	// AvailableTools filters which registered tools the model may call.
	// Empty means all of them.
	AvailableTools []string

	// OnInteraction, when set, is called for every recorded tool
	// interaction as it happens. Used for live progress reporting.
	OnInteraction func(core.ToolInteraction)
}

// Output is the result of one loop run: the final text, the audit trail,
// and the full message history that becomes the persisted record.
type Output struct {
	Text         string
	StopReason   StopReason
	Interactions []core.ToolInteraction
	Iterations   int
	History      []core.Message
}

// ToolWasUsed reports whether the named tool ran during this turn.
func (o *Output) ToolWasUsed(name string) bool {
	for _, it := range o.Interactions {
		if it.Kind == core.InteractionInvocation && it.ToolName == name {
			return true
		}
	}
	return false
}

// Run executes the loop until a final answer, the iteration ceiling, or
// a fatal reasoning-service failure. Tool-level failures are recoverable
// by design: they become error observations, never turn failures. The
// returned error is non-nil only for the fatal case.
func (e *Engine) Run(ctx context.Context, input *Input) (*Output, error) {
	maxIterations := input.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	systemPrompt := input.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	session := NewSession(input.UserID, input.ConversationID)
	session.RestoreHistory(input.History)
	if input.UserMessage != "" {
		session.AddUserMessage(input.UserMessage)
	}

	var schemas []ToolSchema
	if len(input.AvailableTools) > 0 {
		schemas = e.registry.SchemasFor(input.AvailableTools)
	} else {
		schemas = e.registry.Schemas()
	}

	var interactions []core.ToolInteraction
	record := func(it core.ToolInteraction) {
		interactions = append(interactions, it)
		if input.OnInteraction != nil {
			input.OnInteraction(it)
		}
	}
	output := func(text string, reason StopReason) *Output {
		return &Output{
			Text:         text,
			StopReason:   reason,
			Interactions: interactions,
			Iterations:   session.Iterations,
			History:      session.Messages(),
		}
	}

	for {
		if ctx.Err() != nil {
			return output(fatalErrorMessage, StopFatalError), fmt.Errorf("turn abandoned: %w", ctx.Err())
		}
		if session.Iterations >= maxIterations {
			e.logger.Warn("iteration ceiling reached",
				zap.String("session_id", session.ID),
				zap.Int("max_iterations", maxIterations))
			return output(iterationLimitMessage, StopIterationLimit), nil
		}

		resp, err := e.respondWithRetry(ctx, &Request{
			System:   systemPrompt,
			Messages: session.Messages(),
			Tools:    schemas,
		})
		if err != nil {
			e.logger.Error("reasoning service unavailable",
				zap.String("session_id", session.ID),
				zap.Error(err))
			return output(fatalErrorMessage, StopFatalError), fmt.Errorf("reasoning service: %w", err)
		}

		// A tool-call response with no calls (e.g. a truncated tool_use
		// block) would append an empty observation message; treat it as
		// a final answer instead.
		if resp.Kind == FinalAnswer || len(resp.Calls) == 0 {
			session.AddAssistantMessage(resp.Text)
			return output(resp.Text, StopFinalAnswer), nil
		}

		// Acting: run the requested calls sequentially, in the order
		// requested. Calls from one response may depend on each other,
		// so no reordering or concurrency here.
		assistantBlocks := make([]core.ContentBlock, 0, len(resp.Calls)+1)
		if resp.Text != "" {
			assistantBlocks = append(assistantBlocks, core.NewTextBlock(resp.Text))
		}
		resultBlocks := make([]core.ContentBlock, 0, len(resp.Calls))

		for _, call := range resp.Calls {
			assistantBlocks = append(assistantBlocks, core.NewToolUseBlock(call.CallID, call.Name, call.Input))
			record(core.ToolInteraction{
				Kind:     core.InteractionInvocation,
				CallID:   call.CallID,
				ToolName: call.Name,
				Input:    call.Input,
			})

			content, isError := e.dispatch(ctx, call, input)
			record(core.ToolInteraction{
				Kind:     core.InteractionResult,
				CallID:   call.CallID,
				ToolName: call.Name,
				Output:   json.RawMessage(content),
				IsError:  isError,
			})
			resultBlocks = append(resultBlocks, core.NewToolResultBlock(call.CallID, string(content), isError))
		}

		session.AddAssistantBlocks(assistantBlocks)
		session.AddToolResults(resultBlocks)
		session.Iterations++
	}
}

// dispatch runs one tool call and renders its observation content.
// Failures of any shape come back as error observations.
func (e *Engine) dispatch(ctx context.Context, call ToolCall, input *Input) (content []byte, isError bool) {
	params := &core.ToolParams{
		UserID:         input.UserID,
		ConversationID: input.ConversationID,
		InstanceID:     input.InstanceID,
		CohortKey:      input.CohortKey,
		Input:          call.Input,
	}

	start := time.Now()
	result, err := e.registry.Dispatch(ctx, call.Name, params)
	elapsed := time.Since(start)

	if err != nil {
		e.logger.Warn("tool dispatch failed",
			zap.String("tool", call.Name),
			zap.Error(err))
		return []byte(err.Error()), true
	}

	e.logger.Debug("tool executed",
		zap.String("tool", call.Name),
		zap.Bool("success", result.Success),
		zap.Duration("elapsed", elapsed))

	if !result.Success {
		return []byte(result.Error), true
	}
	data, merr := json.Marshal(result.Data)
	if merr != nil {
		return []byte(fmt.Sprintf("tool %s produced an unserializable result", call.Name)), true
	}
	return data, false
}

// respondWithRetry invokes the reasoner, retrying transport failures at
// most once with backoff so turn latency stays bounded.
func (e *Engine) respondWithRetry(ctx context.Context, req *Request) (*Response, error) {
	var resp *Response
	attempt := 0
	op := func() error {
		attempt++
		var err error
		resp, err = e.reasoner.Respond(ctx, req)
		if err != nil && attempt == 1 {
			e.logger.Warn("reasoning call failed, retrying once", zap.Error(err))
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(e.newBackOff(), 1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return resp, nil
}

// DefaultSystemPrompt is used when Input.SystemPrompt is empty.
const DefaultSystemPrompt = `You are a knowledgeable, personable assistant working on behalf of one user.

GUIDELINES:
- Be conversational and direct.
- Use tools when you need information you do not already have.
- If a tool returns an error, explain it or try a different approach; do not repeat the same failing call.

MEMORY:
- Use remember_fact to store durable facts the user tells you about themselves.
- Use search_memory before asking the user something they may have told you before.
- Shared cohort notes are for lessons that apply to everyone in the cohort. Never put names, contact details, or anything user-specific in them.`
