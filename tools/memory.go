package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hivelight/hive-go-sdk/core"
	"github.com/hivelight/hive-go-sdk/memory"
)

// MemoryToolkit binds the user memory document (and optional semantic
// recall) to the tools the model calls: remember_fact, forget_fact,
// search_memory.
type MemoryToolkit struct {
	docs   memory.DocumentStore
	recall *memory.Recall
	budget int
	logger *zap.Logger
}

// MemoryToolkitOption configures the toolkit.
type MemoryToolkitOption func(*MemoryToolkit)

// WithTokenBudget overrides the document token budget applied after
// every mutation.
func WithTokenBudget(budget int) MemoryToolkitOption {
	return func(k *MemoryToolkit) {
		k.budget = budget
	}
}

// WithRecall enables semantic lookup for search_memory. Without it the
// tool falls back to substring matching over active facts.
func WithRecall(r *memory.Recall) MemoryToolkitOption {
	return func(k *MemoryToolkit) {
		k.recall = r
	}
}

// WithMemoryLogger sets the structured logger.
func WithMemoryLogger(logger *zap.Logger) MemoryToolkitOption {
	return func(k *MemoryToolkit) {
		k.logger = logger
	}
}

// NewMemoryToolkit creates the toolkit over a document store.
func NewMemoryToolkit(docs memory.DocumentStore, opts ...MemoryToolkitOption) *MemoryToolkit {
	k := &MemoryToolkit{
		docs:   docs,
		budget: memory.DefaultTokenBudget,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Tools returns the toolkit's tools for registration.
func (k *MemoryToolkit) Tools() []core.Tool {
	return []core.Tool{
		&rememberFactTool{k},
		&forgetFactTool{k},
		&searchMemoryTool{k},
	}
}

type rememberInput struct {
	Content string `json:"content" jsonschema:"description=The fact to remember phrased as a standalone statement"`
	Source  string `json:"source,omitempty" jsonschema:"description=Where the fact came from such as a quote of the user's words"`
}

type rememberFactTool struct {
	kit *MemoryToolkit
}

func (t *rememberFactTool) Name() string { return "remember_fact" }

func (t *rememberFactTool) Description() string {
	return "Store a durable fact about the user, such as a preference, a goal, or a piece of personal context they shared. Facts persist across conversations."
}

func (t *rememberFactTool) InputSchema() map[string]interface{} {
	return ReflectSchema(&rememberInput{})
}

func (t *rememberFactTool) Execute(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
	var in rememberInput
	if err := json.Unmarshal(params.Input, &in); err != nil {
		return core.ToolError("invalid input: " + err.Error()), nil
	}

	doc, err := t.kit.docs.Load(ctx, params.UserID)
	if err != nil {
		return nil, fmt.Errorf("load memory document: %w", err)
	}

	factID, err := doc.AddFact(in.Content, in.Source)
	if err != nil {
		return core.ToolError(err.Error()), nil
	}
	evicted := doc.EnforceBudget(t.kit.budget)

	if err := t.kit.docs.Replace(ctx, doc); err != nil {
		return nil, fmt.Errorf("replace memory document: %w", err)
	}

	if t.kit.recall != nil {
		for _, f := range doc.ActiveFacts() {
			if f.ID != factID {
				continue
			}
			if err := t.kit.recall.IndexFact(ctx, params.UserID, f); err != nil {
				// Recall is a derived index; the document write already
				// succeeded, so only warn.
				t.kit.logger.Warn("failed to index fact",
					zap.String("user_id", params.UserID),
					zap.Error(err))
			}
		}
	}

	return core.ToolOK(map[string]interface{}{
		"fact_id":      factID,
		"active_facts": doc.ActiveCount(),
		"evicted":      evicted,
	}), nil
}

type forgetFactTool struct {
	kit *MemoryToolkit
}

func (t *forgetFactTool) Name() string { return "forget_fact" }

func (t *forgetFactTool) Description() string {
	return "Mark a remembered fact as no longer true, by its fact_id. The fact is deactivated, not deleted, so its history stays traceable."
}

func (t *forgetFactTool) InputSchema() map[string]interface{} {
	return ObjectSchema(map[string]interface{}{
		"fact_id": StringProperty("The id of the fact to deactivate, as returned by remember_fact or search_memory."),
	}, "fact_id")
}

func (t *forgetFactTool) Execute(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
	var in struct {
		FactID string `json:"fact_id"`
	}
	if err := json.Unmarshal(params.Input, &in); err != nil {
		return core.ToolError("invalid input: " + err.Error()), nil
	}

	doc, err := t.kit.docs.Load(ctx, params.UserID)
	if err != nil {
		return nil, fmt.Errorf("load memory document: %w", err)
	}

	if !doc.DeactivateFact(in.FactID) {
		return core.ToolError(fmt.Sprintf("no fact with id %q", in.FactID)), nil
	}
	if err := t.kit.docs.Replace(ctx, doc); err != nil {
		return nil, fmt.Errorf("replace memory document: %w", err)
	}

	if t.kit.recall != nil {
		if err := t.kit.recall.RemoveFact(ctx, params.UserID, in.FactID); err != nil {
			t.kit.logger.Warn("failed to remove fact from index",
				zap.String("user_id", params.UserID),
				zap.Error(err))
		}
	}

	return core.ToolOK(map[string]interface{}{
		"deactivated":  true,
		"active_facts": doc.ActiveCount(),
	}), nil
}

type searchMemoryTool struct {
	kit *MemoryToolkit
}

func (t *searchMemoryTool) Name() string { return "search_memory" }

func (t *searchMemoryTool) Description() string {
	return "Search the user's remembered facts. Use this before asking the user for information they may have shared in an earlier conversation."
}

func (t *searchMemoryTool) InputSchema() map[string]interface{} {
	return ObjectSchema(map[string]interface{}{
		"query": StringProperty("What to look for, in natural language."),
		"limit": IntegerProperty("Maximum number of facts to return (default 5)."),
	}, "query")
}

func (t *searchMemoryTool) Execute(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
	var in struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(params.Input, &in); err != nil {
		return core.ToolError("invalid input: " + err.Error()), nil
	}

	facts, err := t.search(ctx, params.UserID, in.Query, in.Limit)
	if err != nil {
		return core.ToolError("memory search failed: " + err.Error()), nil
	}

	results := make([]map[string]interface{}, 0, len(facts))
	for _, f := range facts {
		results = append(results, map[string]interface{}{
			"fact_id": f.ID,
			"content": f.Content,
			"source":  f.SourceRef,
		})
	}
	return core.ToolOK(map[string]interface{}{"facts": results}), nil
}

// search prefers the semantic index; without one it falls back to a
// case-insensitive substring scan. Either way only facts that are still
// active in the document are returned: the index can lag behind
// deactivation and budget eviction, so the document is the authority.
func (t *searchMemoryTool) search(ctx context.Context, userID, query string, limit int) ([]memory.Fact, error) {
	if limit <= 0 {
		limit = 5
	}

	doc, err := t.kit.docs.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if t.kit.recall != nil {
		hits, err := t.kit.recall.Search(ctx, userID, query, limit)
		if err != nil {
			return nil, err
		}
		active := make(map[string]bool, doc.ActiveCount())
		for _, f := range doc.ActiveFacts() {
			active[f.ID] = true
		}
		out := hits[:0]
		for _, f := range hits {
			if active[f.ID] {
				out = append(out, f)
			}
		}
		return out, nil
	}

	needle := strings.ToLower(query)
	var out []memory.Fact
	for _, f := range doc.ActiveFacts() {
		if strings.Contains(strings.ToLower(f.Content), needle) {
			out = append(out, f)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
