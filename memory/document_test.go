package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivelight/hive-go-sdk/core"
)

func TestAddFact(t *testing.T) {
	doc := NewDocument("u1")

	id, err := doc.AddFact("prefers window seats", "said so on 2026-08-12")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, doc.ActiveCount())

	fact := doc.Facts[0]
	assert.Equal(t, "prefers window seats", fact.Content)
	assert.Equal(t, "said so on 2026-08-12", fact.SourceRef)
	assert.True(t, fact.Active)
	assert.False(t, fact.CreatedAt.IsZero())
}

func TestAddFactValidation(t *testing.T) {
	doc := NewDocument("u1")

	_, err := doc.AddFact("   ", "")
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "content", verr.Field)

	_, err = doc.AddFact(strings.Repeat("x", MaxFactLength+1), "")
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "length")
}

func TestAddFactTrimsWhitespace(t *testing.T) {
	doc := NewDocument("u1")

	_, err := doc.AddFact("  vegetarian  ", "")
	require.NoError(t, err)
	assert.Equal(t, "vegetarian", doc.Facts[0].Content)
}

func TestDeactivateFact(t *testing.T) {
	doc := NewDocument("u1")
	id, err := doc.AddFact("lives in Lisbon", "")
	require.NoError(t, err)

	assert.True(t, doc.DeactivateFact(id))
	assert.Equal(t, 0, doc.ActiveCount())
	assert.Equal(t, 1, doc.TotalCount())

	// Deactivating twice is a no-op, not an error.
	assert.True(t, doc.DeactivateFact(id))
	// Unknown ids are reported.
	assert.False(t, doc.DeactivateFact("nope"))
}

func TestActiveFactsPreserveOrder(t *testing.T) {
	doc := NewDocument("u1")
	first, _ := doc.AddFact("first", "")
	second, _ := doc.AddFact("second", "")
	_, _ = doc.AddFact("third", "")

	doc.DeactivateFact(second)

	active := doc.ActiveFacts()
	require.Len(t, active, 2)
	assert.Equal(t, first, active[0].ID)
	assert.Equal(t, "third", active[1].Content)
}

// makeFact builds a fact directly so eviction tests control ordering
// without sleeping.
func makeFact(id, content string, active bool, age time.Duration) Fact {
	return Fact{
		ID:        id,
		Content:   content,
		CreatedAt: time.Now().UTC().Add(-age),
		Active:    active,
	}
}

func TestEnforceBudgetEvictsInactiveFirstOldestFirst(t *testing.T) {
	doc := &Document{UserID: "u1", Facts: []Fact{
		makeFact("i1", strings.Repeat("a", 200), false, 5*time.Hour),
		makeFact("a1", strings.Repeat("b", 200), true, 4*time.Hour),
		makeFact("i2", strings.Repeat("c", 200), false, 3*time.Hour),
		makeFact("a2", strings.Repeat("d", 200), true, 2*time.Hour),
		makeFact("i3", strings.Repeat("e", 200), false, 1*time.Hour),
	}}

	// Budget fits roughly two facts: all three inactive go first, in
	// creation order, then the oldest active one.
	evicted := doc.EnforceBudget(120)
	assert.Equal(t, 4, evicted)

	require.Len(t, doc.Facts, 1)
	assert.Equal(t, "a2", doc.Facts[0].ID)
}

func TestEnforceBudgetNoopWhenUnderBudget(t *testing.T) {
	doc := NewDocument("u1")
	_, err := doc.AddFact("small", "")
	require.NoError(t, err)

	assert.Equal(t, 0, doc.EnforceBudget(DefaultTokenBudget))
	assert.Equal(t, 1, doc.TotalCount())
}

func TestEnforceBudgetEmptyDocument(t *testing.T) {
	doc := NewDocument("u1")
	assert.Equal(t, 0, doc.EnforceBudget(1))
}

func TestDocumentStoreLoadMissingUserIsEmpty(t *testing.T) {
	store := NewMemoryDocumentStore()

	doc, err := store.Load(context.Background(), "new-user")
	require.NoError(t, err)
	assert.Equal(t, "new-user", doc.UserID)
	assert.Equal(t, 0, doc.TotalCount())
}

func TestDocumentStoreReplaceLastWriteWins(t *testing.T) {
	store := NewMemoryDocumentStore()
	ctx := context.Background()

	first := NewDocument("u1")
	_, err := first.AddFact("likes tea", "")
	require.NoError(t, err)
	require.NoError(t, store.Replace(ctx, first))

	second := NewDocument("u1")
	_, err = second.AddFact("likes coffee", "")
	require.NoError(t, err)
	require.NoError(t, store.Replace(ctx, second))

	got, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, got.TotalCount())
	assert.Equal(t, "likes coffee", got.Facts[0].Content)
}

func TestDocumentStoreReturnsCopies(t *testing.T) {
	store := NewMemoryDocumentStore()
	ctx := context.Background()

	doc := NewDocument("u1")
	_, err := doc.AddFact("likes tea", "")
	require.NoError(t, err)
	require.NoError(t, store.Replace(ctx, doc))

	loaded, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	loaded.Facts[0].Content = "mutated"

	fresh, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "likes tea", fresh.Facts[0].Content)
}
