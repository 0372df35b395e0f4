package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivelight/hive-go-sdk/blocks"
	"github.com/hivelight/hive-go-sdk/engine"
	"github.com/hivelight/hive-go-sdk/tools"
)

// scriptedReasoner cycles through fixed responses.
type scriptedReasoner struct {
	responses []*engine.Response
	calls     int
}

func (r *scriptedReasoner) Respond(ctx context.Context, req *engine.Request) (*engine.Response, error) {
	resp := r.responses[r.calls%len(r.responses)]
	r.calls++
	return resp, nil
}

type fixture struct {
	srv     *httptest.Server
	chat    *ChatServer
	manager *blocks.Manager
	dir     *blocks.MemoryDirectory
}

func newFixture(t *testing.T, reasoner engine.Reasoner) *fixture {
	t.Helper()

	dir := blocks.NewMemoryDirectory()
	manager, err := blocks.NewManager(blocks.NewMemoryStore(), dir)
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	registry := engine.NewToolRegistry(nil)
	registry.RegisterAll(tools.NewHiveToolkit(manager).Tools())

	eng := engine.New(reasoner, registry)
	chat := New(eng, manager, dir)
	srv := httptest.NewServer(chat)
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, chat: chat, manager: manager, dir: dir}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestChatFinalAnswer(t *testing.T) {
	f := newFixture(t, &scriptedReasoner{responses: []*engine.Response{
		{Kind: engine.FinalAnswer, Text: "hello!"},
	}})
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(ChatRequest{UserID: "u1", Text: "hi"}))

	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "final", ev.Type)
	assert.Equal(t, "hello!", ev.Text)
	assert.Equal(t, string(engine.StopFinalAnswer), ev.StopReason)
}

func TestChatStreamsToolEvents(t *testing.T) {
	f := newFixture(t, &scriptedReasoner{responses: []*engine.Response{
		{
			Kind: engine.ToolCallRequest,
			Calls: []engine.ToolCall{
				{CallID: "call_1", Name: "read_hive_notes", Input: []byte(`{}`)},
			},
		},
		{Kind: engine.FinalAnswer, Text: "done"},
	}})
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(ChatRequest{
		UserID:  "u1",
		Persona: "travel-v2",
		Text:    "anything in the notes?",
	}))

	var types []string
	for {
		var ev Event
		require.NoError(t, conn.ReadJSON(&ev))
		types = append(types, ev.Type)
		if ev.Type == "final" {
			break
		}
	}
	assert.Equal(t, []string{"tool_call", "tool_result", "final"}, types)
}

func TestChatRejectsIncompleteRequest(t *testing.T) {
	f := newFixture(t, &scriptedReasoner{responses: []*engine.Response{
		{Kind: engine.FinalAnswer, Text: "unused"},
	}})
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(ChatRequest{Text: "no user id"}))

	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "error", ev.Type)
}

func TestChatPersonaJoinsCohort(t *testing.T) {
	f := newFixture(t, &scriptedReasoner{responses: []*engine.Response{
		{Kind: engine.FinalAnswer, Text: "ok"},
	}})
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(ChatRequest{
		UserID:  "u1",
		Persona: "travel-v2",
		Text:    "hi",
	}))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, "final", ev.Type)

	instances, err := f.dir.ListInstances(context.Background(), "travel-v2")
	require.NoError(t, err)
	assert.Len(t, instances, 1)
}

func TestChatKeepsHistoryAcrossTurns(t *testing.T) {
	reasoner := &scriptedReasoner{responses: []*engine.Response{
		{Kind: engine.FinalAnswer, Text: "noted"},
	}}
	f := newFixture(t, reasoner)
	conn := f.dial(t)

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.WriteJSON(ChatRequest{
			UserID:         "u1",
			ConversationID: "c1",
			Text:           "another message",
		}))
		var ev Event
		require.NoError(t, conn.ReadJSON(&ev))
		require.Equal(t, "final", ev.Type)
	}
	assert.Equal(t, 2, reasoner.calls)

	// Two turns, two user messages and two answers in the record.
	history := f.chat.history("c1")
	assert.Len(t, history, 4)
}
