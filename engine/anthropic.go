package engine

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/hivelight/hive-go-sdk/core"
)

// DefaultModel is the Claude model used when none is configured.
const DefaultModel = "claude-sonnet-4-20250514"

// AnthropicReasoner implements Reasoner on the Anthropic Messages API.
type AnthropicReasoner struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// AnthropicOption configures the reasoner.
type AnthropicOption func(*AnthropicReasoner)

// WithModel sets the Claude model.
func WithModel(model string) AnthropicOption {
	return func(r *AnthropicReasoner) {
		r.model = model
	}
}

// WithMaxTokens sets the maximum response tokens.
func WithMaxTokens(n int64) AnthropicOption {
	return func(r *AnthropicReasoner) {
		r.maxTokens = n
	}
}

// NewAnthropicReasoner creates a reasoner backed by the given client.
func NewAnthropicReasoner(client *anthropic.Client, opts ...AnthropicOption) *AnthropicReasoner {
	r := &AnthropicReasoner{
		client:    client,
		model:     DefaultModel,
		maxTokens: 4096,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Respond translates the request to a Messages API call and classifies
// the response as a final answer or a tool-call request.
func (r *AnthropicReasoner) Respond(ctx context.Context, req *Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: r.maxTokens,
		Messages:  toAPIMessages(req.Messages),
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
	}
	if len(req.Tools) > 0 {
		params.Tools = toAPITools(req.Tools)
	}

	resp, err := r.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	out := &Response{Kind: FinalAnswer}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "tool_use":
			out.Kind = ToolCallRequest
			out.Calls = append(out.Calls, ToolCall{
				CallID: block.ID,
				Name:   block.Name,
				Input:  block.Input,
			})
		}
	}
	return out, nil
}

// toAPIMessages converts provider-neutral history to API params.
func toAPIMessages(msgs []core.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Blocks))
		for _, b := range m.Blocks {
			switch b.Type {
			case core.BlockText:
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case core.BlockToolUse:
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ID, b.Input, b.Name))
			case core.BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			}
		}
		if m.Role == core.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

// toAPITools converts the schema list to API tool params.
func toAPITools(schemas []ToolSchema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		tool := anthropic.ToolParam{
			Name:        s.Name,
			Description: anthropic.String(s.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: s.InputSchema["properties"],
				Required:   requiredKeys(s.InputSchema),
			},
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out
}
