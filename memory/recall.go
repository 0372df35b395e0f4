package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// Embedder converts text to vector embeddings.
// Implementations: mock (tests), ONNX (local, behind the `onnx` tag).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Recall indexes active facts in an embedded vector database so the
// search_memory tool can find them semantically. One collection per
// user keeps namespaces isolated.
type Recall struct {
	db          *chromem.DB
	embedder    Embedder
	logger      *zap.Logger
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// RecallOption configures Recall.
type RecallOption func(*Recall)

// WithRecallLogger sets the structured logger.
func WithRecallLogger(logger *zap.Logger) RecallOption {
	return func(r *Recall) {
		r.logger = logger
	}
}

// NewRecall creates a recall index over the given embedder.
func NewRecall(embedder Embedder, opts ...RecallOption) *Recall {
	r := &Recall{
		db:          chromem.NewDB(),
		embedder:    embedder,
		logger:      zap.NewNop(),
		collections: make(map[string]*chromem.Collection),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IndexFact embeds the fact and adds it to the user's collection.
func (r *Recall) IndexFact(ctx context.Context, userID string, fact Fact) error {
	col, err := r.collection(userID)
	if err != nil {
		return err
	}

	emb, err := r.embedder.Embed(ctx, fact.Content)
	if err != nil {
		return fmt.Errorf("embed fact: %w", err)
	}

	doc := chromem.Document{
		ID:        fact.ID,
		Content:   fact.Content,
		Embedding: emb,
		Metadata: map[string]string{
			"source_ref": fact.SourceRef,
			"created_at": fact.CreatedAt.Format(time.RFC3339),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("index fact: %w", err)
	}
	return nil
}

// RemoveFact drops the fact from the user's collection. Removing an
// unindexed or already-removed fact is a no-op.
func (r *Recall) RemoveFact(ctx context.Context, userID, factID string) error {
	col, err := r.collection(userID)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, factID); err != nil {
		return fmt.Errorf("remove fact: %w", err)
	}
	return nil
}

// Search returns up to limit facts similar to the query, best first.
// The index is derived state and can lag behind the document (budget
// eviction does not reach it); callers that need only live facts filter
// results against the document's active set.
func (r *Recall) Search(ctx context.Context, userID, query string, limit int) ([]Fact, error) {
	col, err := r.collection(userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	emb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// chromem rejects nResults larger than the collection; shrink until
	// the query goes through or the collection turns out to be empty.
	var results []chromem.Result
	for n := limit; n >= 1; n-- {
		results, err = col.QueryEmbedding(ctx, emb, n, nil, nil)
		if err == nil {
			break
		}
		if !isTooFewDocsError(err) {
			return nil, fmt.Errorf("recall query: %w", err)
		}
		if n == 1 {
			return nil, nil
		}
	}

	facts := make([]Fact, 0, len(results))
	for _, res := range results {
		createdAt, _ := time.Parse(time.RFC3339, res.Metadata["created_at"])
		facts = append(facts, Fact{
			ID:        res.ID,
			Content:   res.Content,
			CreatedAt: createdAt,
			SourceRef: res.Metadata["source_ref"],
			Active:    true,
		})
	}
	r.logger.Debug("recall search",
		zap.String("user_id", userID),
		zap.Int("results", len(facts)))
	return facts, nil
}

// collection returns the user's collection, creating it on first use.
func (r *Recall) collection(userID string) (*chromem.Collection, error) {
	r.mu.RLock()
	col, ok := r.collections[userID]
	r.mu.RUnlock()
	if ok {
		return col, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if col, ok := r.collections[userID]; ok {
		return col, nil
	}
	name := "user_" + userID
	col, err := r.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	r.collections[userID] = col
	return col, nil
}

func isTooFewDocsError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
