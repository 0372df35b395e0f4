package memory

import (
	"context"
	"sync"
)

// DocumentStore persists memory documents. Load returns an empty
// document (not an error) for users with no history yet; Replace writes
// the whole document back, last write wins.
type DocumentStore interface {
	Load(ctx context.Context, userID string) (*Document, error)
	Replace(ctx context.Context, doc *Document) error
}

// MemoryDocumentStore is the in-memory reference DocumentStore.
type MemoryDocumentStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewMemoryDocumentStore creates an empty store.
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string]*Document)}
}

// Load returns a copy of the user's document, or a fresh empty one.
func (s *MemoryDocumentStore) Load(ctx context.Context, userID string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[userID]
	if !ok {
		return NewDocument(userID), nil
	}
	return copyDocument(doc), nil
}

// Replace stores the document wholesale.
func (s *MemoryDocumentStore) Replace(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[doc.UserID] = copyDocument(doc)
	return nil
}

func copyDocument(doc *Document) *Document {
	facts := make([]Fact, len(doc.Facts))
	copy(facts, doc.Facts)
	return &Document{UserID: doc.UserID, Facts: facts}
}
