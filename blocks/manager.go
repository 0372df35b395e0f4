package blocks

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// InitialContent seeds a freshly created block.
const InitialContent = "No accumulated experience yet for this cohort. Lessons that generalize across its users will be collected here as conversations happen."

// blockDescription is the content policy communicated to the writer of
// the block. It travels with the block as metadata; nothing in this
// package inspects what gets written.
const blockDescription = "Shared experience notes for every agent serving this cohort. " +
	"Record only lessons that generalize across users of the cohort. " +
	"Never record names, contact details, account numbers, or any other user-specific information."

// Manager guarantees a single canonical block per cohort key and
// attaches it to every instance serving that cohort.
type Manager struct {
	store  Store
	dir    Directory
	locks  *LockTable
	cache  *ristretto.Cache
	logger *zap.Logger
}

// ManagerOption configures the manager.
type ManagerOption func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithLockTable substitutes the per-key lock table, e.g. an
// instrumented one in tests.
func WithLockTable(t *LockTable) ManagerOption {
	return func(m *Manager) {
		m.locks = t
	}
}

// NewManager creates a manager over the given store and directory.
func NewManager(store Store, dir Directory, opts ...ManagerOption) (*Manager, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("block cache: %w", err)
	}

	m := &Manager{
		store:  store,
		dir:    dir,
		locks:  NewLockTable(),
		cache:  cache,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Close releases the manager's cache and its background goroutines.
func (m *Manager) Close() {
	m.cache.Close()
}

// GetOrCreateAndAttach returns the cohort's block, creating it if this
// is the first request for the cohort, and attaches it to the requesting
// instance. Attach is idempotent. The whole lookup/create/attach
// sequence runs inside the cohort's critical section so concurrent
// first-time requests create exactly one block.
func (m *Manager) GetOrCreateAndAttach(ctx context.Context, cohortKey, instanceID string) (*Block, error) {
	if cohortKey == "" {
		return nil, fmt.Errorf("cohort key must not be empty")
	}

	mu := m.locks.Get(cohortKey)
	mu.Lock()
	defer mu.Unlock()

	blk, err := m.lookup(ctx, cohortKey)
	if err != nil {
		return nil, fmt.Errorf("lookup block for %q: %w", cohortKey, err)
	}

	if blk == nil {
		blk, err = m.store.Create(ctx, cohortKey, InitialContent, blockDescription)
		if err != nil {
			return nil, fmt.Errorf("create block for %q: %w", cohortKey, err)
		}
		m.logger.Info("created shared block",
			zap.String("cohort", cohortKey),
			zap.String("block_id", blk.ID))
	}

	if !blk.Attached(instanceID) {
		if err := m.store.Attach(ctx, blk.ID, instanceID); err != nil {
			return nil, fmt.Errorf("attach block %s to %s: %w", blk.ID, instanceID, err)
		}
		blk.AttachedTo = append(blk.AttachedTo, instanceID)
	}

	m.cache.Set(cohortKey, blk.Clone(), 1)
	return blk, nil
}

// Propagate attaches the cohort's block to every instance the directory
// currently lists for the cohort. Unreachable instances are skipped with
// a warning; they converge on a later call. Safe to re-run at any time.
// A nil return only means propagation ran, not that every sibling is
// attached.
func (m *Manager) Propagate(ctx context.Context, cohortKey string) error {
	instances, err := m.dir.ListInstances(ctx, cohortKey)
	if err != nil {
		return fmt.Errorf("list instances for %q: %w", cohortKey, err)
	}

	mu := m.locks.Get(cohortKey)
	mu.Lock()
	blk, err := m.lookup(ctx, cohortKey)
	mu.Unlock()
	if err != nil {
		return fmt.Errorf("lookup block for %q: %w", cohortKey, err)
	}
	if blk == nil {
		m.logger.Debug("nothing to propagate, cohort has no block",
			zap.String("cohort", cohortKey))
		return nil
	}

	var g errgroup.Group
	for _, id := range instances {
		if blk.Attached(id) {
			continue
		}
		instanceID := id
		g.Go(func() error {
			if err := m.store.Attach(ctx, blk.ID, instanceID); err != nil {
				m.logger.Warn("skipping sibling during propagation",
					zap.String("cohort", cohortKey),
					zap.String("instance_id", instanceID),
					zap.Error(err))
			}
			return nil
		})
	}
	g.Wait() // attach failures never surface; errors are handled above

	// Refresh the cached attachment set.
	if fresh, err := m.store.FindByLabel(ctx, cohortKey); err == nil && fresh != nil {
		m.cache.Set(cohortKey, fresh, 1)
	}
	return nil
}

// Content returns the block's current content.
func (m *Manager) Content(ctx context.Context, blockID string) (string, error) {
	blk, err := m.store.Get(ctx, blockID)
	if err != nil {
		return "", err
	}
	return blk.Content, nil
}

// UpdateContent replaces the block's content and invalidates the cached
// copy for its cohort.
func (m *Manager) UpdateContent(ctx context.Context, blockID, content string) error {
	blk, err := m.store.Get(ctx, blockID)
	if err != nil {
		return err
	}
	if err := m.store.UpdateContent(ctx, blockID, content); err != nil {
		return err
	}
	m.cache.Del(blk.Label)
	return nil
}

// lookup consults the cache first, then the store. Called only inside
// the cohort's critical section; the cache can therefore never hide an
// in-flight creation.
func (m *Manager) lookup(ctx context.Context, cohortKey string) (*Block, error) {
	if v, ok := m.cache.Get(cohortKey); ok {
		if blk, ok := v.(*Block); ok {
			return blk.Clone(), nil
		}
	}
	return m.store.FindByLabel(ctx, cohortKey)
}
