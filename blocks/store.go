package blocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Store is the external block store. Implementations must make Attach
// idempotent: attaching an already-attached instance is a no-op, not an
// error.
type Store interface {
	// FindByLabel returns the block whose label matches, or (nil, nil)
	// when no such block exists.
	FindByLabel(ctx context.Context, label string) (*Block, error)

	// Create stores a new block. The caller is responsible for ensuring
	// no block with the same label already exists.
	Create(ctx context.Context, label, content, description string) (*Block, error)

	// Attach adds an instance to the block's attachment set.
	Attach(ctx context.Context, blockID, instanceID string) error

	// Get returns a block by id.
	Get(ctx context.Context, blockID string) (*Block, error)

	// UpdateContent replaces the block's content.
	UpdateContent(ctx context.Context, blockID, content string) error
}

// MemoryStore is the in-memory reference Store for local development and
// tests. Production deployments swap in a durable backend behind the
// same interface.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*Block
	byLabel map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*Block),
		byLabel: make(map[string]string),
	}
}

// FindByLabel returns a copy of the labeled block, or (nil, nil).
func (s *MemoryStore) FindByLabel(ctx context.Context, label string) (*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byLabel[label]
	if !ok {
		return nil, nil
	}
	return s.byID[id].Clone(), nil
}

// Create stores a new block under the label.
func (s *MemoryStore) Create(ctx context.Context, label, content, description string) (*Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byLabel[label]; exists {
		return nil, fmt.Errorf("block already exists for label %q", label)
	}

	blk := &Block{
		ID:          uuid.New().String(),
		Label:       label,
		Description: description,
		Content:     content,
	}
	s.byID[blk.ID] = blk
	s.byLabel[label] = blk.ID
	return blk.Clone(), nil
}

// Attach adds the instance to the block. Idempotent.
func (s *MemoryStore) Attach(ctx context.Context, blockID, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blk, ok := s.byID[blockID]
	if !ok {
		return fmt.Errorf("no block with id %q", blockID)
	}
	if blk.Attached(instanceID) {
		return nil
	}
	blk.AttachedTo = append(blk.AttachedTo, instanceID)
	return nil
}

// Get returns a copy of the block.
func (s *MemoryStore) Get(ctx context.Context, blockID string) (*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blk, ok := s.byID[blockID]
	if !ok {
		return nil, fmt.Errorf("no block with id %q", blockID)
	}
	return blk.Clone(), nil
}

// UpdateContent replaces the block's content.
func (s *MemoryStore) UpdateContent(ctx context.Context, blockID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blk, ok := s.byID[blockID]
	if !ok {
		return fmt.Errorf("no block with id %q", blockID)
	}
	blk.Content = content
	return nil
}
