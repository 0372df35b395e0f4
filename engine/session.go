package engine

import (
	"github.com/google/uuid"

	"github.com/hivelight/hive-go-sdk/core"
)

// Session holds the per-turn loop state: the ordered message history,
// the iteration count, and the identities the turn runs under. A session
// is created per user turn and discarded once the turn completes; its
// final history becomes the persisted conversation record.
type Session struct {
	ID             string
	UserID         string
	ConversationID string

	// Iterations counts completed reasoning/acting cycles.
	Iterations int

	history []core.Message
}

// NewSession creates a session for one loop run.
func NewSession(userID, conversationID string) *Session {
	return &Session{
		ID:             uuid.New().String(),
		UserID:         userID,
		ConversationID: conversationID,
	}
}

// RestoreHistory seeds the session with prior conversation turns.
func (s *Session) RestoreHistory(history []core.Message) {
	s.history = append(s.history, history...)
}

// AddUserMessage appends the new user message.
func (s *Session) AddUserMessage(text string) {
	s.history = append(s.history, core.UserText(text))
}

// AddAssistantMessage appends a plain text assistant message.
func (s *Session) AddAssistantMessage(text string) {
	s.history = append(s.history, core.AssistantText(text))
}

// AddAssistantBlocks appends an assistant message with arbitrary blocks,
// typically the text plus tool_use blocks of a tool-calling response.
func (s *Session) AddAssistantBlocks(blocks []core.ContentBlock) {
	s.history = append(s.history, core.Message{Role: core.RoleAssistant, Blocks: blocks})
}

// AddToolResults appends tool observations as a user-role message,
// answering the preceding assistant tool_use blocks.
func (s *Session) AddToolResults(blocks []core.ContentBlock) {
	s.history = append(s.history, core.Message{Role: core.RoleUser, Blocks: blocks})
}

// Messages returns a copy of the current history.
func (s *Session) Messages() []core.Message {
	out := make([]core.Message, len(s.history))
	copy(out, s.history)
	return out
}
