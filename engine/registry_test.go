package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivelight/hive-go-sdk/core"
)

// fakeTool is a configurable registry test double.
type fakeTool struct {
	name     string
	version  string
	required []string
	execute  func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error)
}

func (t *fakeTool) Name() string        { return t.name }
func (t *fakeTool) Description() string { return "fake tool " + t.version }

func (t *fakeTool) InputSchema() map[string]interface{} {
	props := map[string]interface{}{}
	for _, r := range t.required {
		props[r] = map[string]interface{}{"type": "string"}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(t.required) > 0 {
		schema["required"] = t.required
	}
	return schema
}

func (t *fakeTool) Execute(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
	if t.execute != nil {
		return t.execute(ctx, params)
	}
	return core.ToolOK(t.version), nil
}

func TestRegisterLastWriteWins(t *testing.T) {
	r := NewToolRegistry(nil)
	r.Register(&fakeTool{name: "lookup", version: "v1"})
	r.Register(&fakeTool{name: "lookup", version: "v2"})

	assert.Equal(t, 1, r.Count())

	res, err := r.Dispatch(context.Background(), "lookup", &core.ToolParams{})
	require.NoError(t, err)
	assert.Equal(t, "v2", res.Data)
}

func TestDispatchUnknownTool(t *testing.T) {
	r := NewToolRegistry(nil)

	_, err := r.Dispatch(context.Background(), "missing", &core.ToolParams{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnknownTool))
	assert.Contains(t, err.Error(), "missing")
}

func TestDispatchRecoversPanic(t *testing.T) {
	r := NewToolRegistry(nil)
	r.Register(&fakeTool{
		name: "boom",
		execute: func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			panic("nil map write")
		},
	})

	res, err := r.Dispatch(context.Background(), "boom", &core.ToolParams{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "nil map write")
}

func TestDispatchConvertsExecuteError(t *testing.T) {
	r := NewToolRegistry(nil)
	r.Register(&fakeTool{
		name: "flaky",
		execute: func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			return nil, errors.New("backend unavailable")
		},
	})

	res, err := r.Dispatch(context.Background(), "flaky", &core.ToolParams{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "backend unavailable", res.Error)
}

func TestDispatchValidatesRequiredFields(t *testing.T) {
	r := NewToolRegistry(nil)
	r.Register(&fakeTool{name: "strict", required: []string{"query"}})

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"missing field", `{}`, "missing"},
		{"empty string", `{"query":""}`, "empty"},
		{"not an object", `[1,2]`, "not a JSON object"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := r.Dispatch(context.Background(), "strict", &core.ToolParams{
				Input: json.RawMessage(tc.input),
			})
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Contains(t, res.Error, tc.want)
		})
	}

	res, err := r.Dispatch(context.Background(), "strict", &core.ToolParams{
		Input: json.RawMessage(`{"query":"ok"}`),
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestSchemasSortedByName(t *testing.T) {
	r := NewToolRegistry(nil)
	r.Register(&fakeTool{name: "zeta"})
	r.Register(&fakeTool{name: "alpha"})
	r.Register(&fakeTool{name: "mid"})

	schemas := r.Schemas()
	require.Len(t, schemas, 3)
	assert.Equal(t, "alpha", schemas[0].Name)
	assert.Equal(t, "mid", schemas[1].Name)
	assert.Equal(t, "zeta", schemas[2].Name)
}

func TestSchemasForFiltersUnknownNames(t *testing.T) {
	r := NewToolRegistry(nil)
	r.Register(&fakeTool{name: "alpha"})
	r.Register(&fakeTool{name: "beta"})

	schemas := r.SchemasFor([]string{"beta", "ghost"})
	require.Len(t, schemas, 1)
	assert.Equal(t, "beta", schemas[0].Name)
}
