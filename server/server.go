// Package server exposes the loop engine over a websocket chat
// endpoint with live tool-interaction events.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hivelight/hive-go-sdk/blocks"
	"github.com/hivelight/hive-go-sdk/core"
	"github.com/hivelight/hive-go-sdk/engine"
)

// ChatRequest is one inbound frame: a user message for a conversation.
// Persona selects the cohort whose shared block this session joins.
type ChatRequest struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	Persona        string `json:"persona,omitempty"`
	Text           string `json:"text"`
}

// Event is one outbound frame. Type is one of "tool_call",
// "tool_result", "final", or "error".
type Event struct {
	Type       string          `json:"type"`
	Tool       string          `json:"tool,omitempty"`
	CallID     string          `json:"call_id,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
	Text       string          `json:"text,omitempty"`
	StopReason string          `json:"stop_reason,omitempty"`
	Iterations int             `json:"iterations,omitempty"`
}

// ChatServer serves chat sessions over websockets. Each connection is
// one agent instance; its instance id joins the persona's cohort so the
// shared block reaches it.
type ChatServer struct {
	engine   *engine.Engine
	manager  *blocks.Manager
	dir      *blocks.MemoryDirectory
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu        sync.Mutex
	histories map[string][]core.Message
}

// Option configures the server.
type Option func(*ChatServer)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *ChatServer) {
		s.logger = logger
	}
}

// New creates a chat server.
func New(eng *engine.Engine, manager *blocks.Manager, dir *blocks.MemoryDirectory, opts ...Option) *ChatServer {
	s := &ChatServer{
		engine:    eng,
		manager:   manager,
		dir:       dir,
		logger:    zap.NewNop(),
		histories: make(map[string][]core.Message),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP upgrades the connection and runs the session loop until the
// client disconnects.
func (s *ChatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	instanceID := uuid.NewString()
	s.logger.Info("session opened", zap.String("instance_id", instanceID))
	defer s.logger.Info("session closed", zap.String("instance_id", instanceID))

	// Websocket writes are not concurrency-safe; OnInteraction events
	// and the final frame share this mutex.
	var writeMu sync.Mutex
	send := func(ev Event) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(ev); err != nil {
			s.logger.Warn("write failed",
				zap.String("instance_id", instanceID),
				zap.Error(err))
		}
	}

	joined := make(map[string]bool)
	for {
		var req ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("read failed",
					zap.String("instance_id", instanceID),
					zap.Error(err))
			}
			return
		}
		if req.UserID == "" || req.Text == "" {
			send(Event{Type: "error", Text: "user_id and text are required"})
			continue
		}

		if req.Persona != "" && !joined[req.Persona] {
			s.joinCohort(r.Context(), req.Persona, instanceID)
			joined[req.Persona] = true
		}

		s.handleTurn(r.Context(), &req, instanceID, send)
	}
}

// joinCohort registers the instance with the persona's cohort and
// attaches the shared block. Failures are logged and the turn proceeds
// without shared notes.
func (s *ChatServer) joinCohort(ctx context.Context, cohortKey, instanceID string) {
	s.dir.Add(cohortKey, instanceID)
	if _, err := s.manager.GetOrCreateAndAttach(ctx, cohortKey, instanceID); err != nil {
		s.logger.Warn("failed to join cohort",
			zap.String("cohort", cohortKey),
			zap.String("instance_id", instanceID),
			zap.Error(err))
		return
	}
	if err := s.manager.Propagate(ctx, cohortKey); err != nil {
		s.logger.Warn("propagation incomplete",
			zap.String("cohort", cohortKey),
			zap.Error(err))
	}
}

func (s *ChatServer) handleTurn(ctx context.Context, req *ChatRequest, instanceID string, send func(Event)) {
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = req.UserID
	}

	out, err := s.engine.Run(ctx, &engine.Input{
		UserMessage:    req.Text,
		History:        s.history(conversationID),
		UserID:         req.UserID,
		ConversationID: conversationID,
		InstanceID:     instanceID,
		CohortKey:      req.Persona,
		OnInteraction: func(it core.ToolInteraction) {
			ev := Event{
				Tool:    it.ToolName,
				CallID:  it.CallID,
				Input:   it.Input,
				Output:  it.Output,
				IsError: it.IsError,
			}
			if it.Kind == core.InteractionInvocation {
				ev.Type = "tool_call"
			} else {
				ev.Type = "tool_result"
			}
			send(ev)
		},
	})
	if err != nil {
		s.logger.Error("turn failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		send(Event{Type: "error", Text: out.Text, StopReason: string(out.StopReason)})
		return
	}

	s.setHistory(conversationID, out.History)
	send(Event{
		Type:       "final",
		Text:       out.Text,
		StopReason: string(out.StopReason),
		Iterations: out.Iterations,
	})
}

func (s *ChatServer) history(conversationID string) []core.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.histories[conversationID]
}

func (s *ChatServer) setHistory(conversationID string, history []core.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[conversationID] = history
}
