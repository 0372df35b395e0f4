package core

import "encoding/json"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType identifies the kind of content inside a message.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one unit of message content. Exactly one of the
// per-kind field groups is populated, selected by Type.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// Text content (BlockText).
	Text string `json:"text,omitempty"`

	// Tool invocation (BlockToolUse).
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// Tool observation (BlockToolResult).
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// NewTextBlock creates a text content block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// NewToolUseBlock creates a tool invocation block.
func NewToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// NewToolResultBlock creates a tool observation block answering the
// tool_use block identified by toolUseID.
func NewToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// Message is one role-tagged entry in a conversation history.
type Message struct {
	Role   Role           `json:"role"`
	Blocks []ContentBlock `json:"blocks"`
}

// UserText builds a user message containing a single text block.
func UserText(text string) Message {
	return Message{Role: RoleUser, Blocks: []ContentBlock{NewTextBlock(text)}}
}

// AssistantText builds an assistant message containing a single text block.
func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Blocks: []ContentBlock{NewTextBlock(text)}}
}
