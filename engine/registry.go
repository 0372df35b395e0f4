package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hivelight/hive-go-sdk/core"
)

// ToolRegistry is the lookup and dispatch table for callable tools.
// It is safe for concurrent use; registration may happen at runtime.
type ToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]core.Tool
	logger *zap.Logger
}

// NewToolRegistry creates an empty registry. A nil logger is replaced
// with a no-op logger.
func NewToolRegistry(logger *zap.Logger) *ToolRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolRegistry{
		tools:  make(map[string]core.Tool),
		logger: logger,
	}
}

// Register adds a tool by name. Registering a duplicate name overwrites
// the previous tool (last write wins) so implementations can be
// hot-reloaded without restarting the fleet.
func (r *ToolRegistry) Register(tool core.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name()]; exists {
		r.logger.Debug("replacing registered tool", zap.String("tool", tool.Name()))
	}
	r.tools[tool.Name()] = tool
}

// RegisterAll registers every tool in the slice.
func (r *ToolRegistry) RegisterAll(tools []core.Tool) {
	for _, t := range tools {
		r.Register(t)
	}
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (core.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Schemas produces the schema list handed to the reasoning service.
// The list is sorted by tool name so prompts are deterministic.
func (r *ToolRegistry) Schemas() []ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		schemas = append(schemas, ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// SchemasFor is Schemas restricted to the given tool names. Unknown
// names are skipped.
func (r *ToolRegistry) SchemasFor(names []string) []ToolSchema {
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	var out []ToolSchema
	for _, s := range r.Schemas() {
		if allowed[s.Name] {
			out = append(out, s)
		}
	}
	return out
}

// Dispatch validates the input against the tool's schema and executes
// the tool. It returns core.ErrUnknownTool for unregistered names; every
// other failure, including a panicking tool, is converted into a
// structured error result so the loop can feed it back as an observation.
func (r *ToolRegistry) Dispatch(ctx context.Context, name string, params *core.ToolParams) (result *core.ToolResult, err error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownTool, name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked",
				zap.String("tool", name),
				zap.Any("panic", rec))
			result = core.ToolError(fmt.Sprintf("tool %s failed: %v", name, rec))
			err = nil
		}
	}()

	if verr := validateInput(tool.InputSchema(), params.Input); verr != nil {
		return core.ToolError(verr.Error()), nil
	}

	res, execErr := tool.Execute(ctx, params)
	if execErr != nil {
		return core.ToolError(execErr.Error()), nil
	}
	if res == nil {
		return core.ToolError(fmt.Sprintf("tool %s returned no result", name)), nil
	}
	return res, nil
}

// validateInput checks the raw input against the schema's object shape
// and required keys. Full JSON-schema validation is left to the model's
// own adherence; this catches the failure modes that would otherwise
// surface deep inside a tool.
func validateInput(schema map[string]interface{}, input json.RawMessage) *core.ValidationError {
	fields := map[string]interface{}{}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &fields); err != nil {
			return &core.ValidationError{Field: "input", Reason: "not a JSON object"}
		}
	}

	for _, key := range requiredKeys(schema) {
		v, ok := fields[key]
		if !ok || v == nil {
			return &core.ValidationError{Field: key, Reason: "required field is missing"}
		}
		if s, isString := v.(string); isString && s == "" {
			return &core.ValidationError{Field: key, Reason: "required field is empty"}
		}
	}
	return nil
}

func requiredKeys(schema map[string]interface{}) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []interface{}:
		keys := make([]string, 0, len(req))
		for _, k := range req {
			if s, ok := k.(string); ok {
				keys = append(keys, s)
			}
		}
		return keys
	default:
		return nil
	}
}
