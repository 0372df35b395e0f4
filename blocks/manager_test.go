package blocks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/golang/glog.(*fileSink).flushDaemon"))
}

// countingStore wraps a Store and counts Create calls, optionally
// delaying them to widen race windows.
type countingStore struct {
	Store
	creates     atomic.Int64
	createDelay time.Duration
}

func (s *countingStore) Create(ctx context.Context, label, content, description string) (*Block, error) {
	s.creates.Add(1)
	if s.createDelay > 0 {
		time.Sleep(s.createDelay)
	}
	return s.Store.Create(ctx, label, content, description)
}

func newTestManager(t *testing.T, store Store) *Manager {
	t.Helper()
	m, err := NewManager(store, NewMemoryDirectory())
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestGetOrCreateAndAttachCreatesOnce(t *testing.T) {
	store := &countingStore{Store: NewMemoryStore()}
	m := newTestManager(t, store)

	blk, err := m.GetOrCreateAndAttach(context.Background(), "travel-v2", "inst-a")
	require.NoError(t, err)
	assert.Equal(t, "travel-v2", blk.Label)
	assert.Equal(t, InitialContent, blk.Content)
	assert.True(t, blk.Attached("inst-a"))

	again, err := m.GetOrCreateAndAttach(context.Background(), "travel-v2", "inst-b")
	require.NoError(t, err)
	assert.Equal(t, blk.ID, again.ID)
	assert.Equal(t, int64(1), store.creates.Load())
}

func TestGetOrCreateAndAttachIdempotentAttach(t *testing.T) {
	m := newTestManager(t, NewMemoryStore())

	first, err := m.GetOrCreateAndAttach(context.Background(), "travel-v2", "inst-a")
	require.NoError(t, err)
	second, err := m.GetOrCreateAndAttach(context.Background(), "travel-v2", "inst-a")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, []string{"inst-a"}, second.AttachedTo)
}

func TestGetOrCreateAndAttachRejectsEmptyKey(t *testing.T) {
	m := newTestManager(t, NewMemoryStore())

	_, err := m.GetOrCreateAndAttach(context.Background(), "", "inst-a")
	require.Error(t, err)
}

func TestConcurrentFirstRequestsCreateOneBlock(t *testing.T) {
	store := &countingStore{Store: NewMemoryStore(), createDelay: 5 * time.Millisecond}
	m := newTestManager(t, store)

	const goroutines = 32
	ids := make([]string, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			blk, err := m.GetOrCreateAndAttach(context.Background(), "support-v1", "inst")
			assert.NoError(t, err)
			ids[i] = blk.ID
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), store.creates.Load())
	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
}

func TestConcurrentDistinctCohortsDoNotSerialize(t *testing.T) {
	store := &countingStore{Store: NewMemoryStore()}
	m := newTestManager(t, store)

	cohorts := []string{"a", "b", "c", "d"}
	var wg sync.WaitGroup
	for _, c := range cohorts {
		wg.Add(1)
		go func(cohort string) {
			defer wg.Done()
			_, err := m.GetOrCreateAndAttach(context.Background(), cohort, "inst")
			assert.NoError(t, err)
		}(c)
	}
	wg.Wait()

	assert.Equal(t, int64(len(cohorts)), store.creates.Load())
}

func TestPropagateAttachesSiblings(t *testing.T) {
	dir := NewMemoryDirectory()
	store := NewMemoryStore()
	m, err := NewManager(store, dir)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	// A creates the block; B and C are known to the directory but not
	// yet attached.
	blk, err := m.GetOrCreateAndAttach(context.Background(), "travel-v2", "inst-a")
	require.NoError(t, err)
	dir.Add("travel-v2", "inst-a")
	dir.Add("travel-v2", "inst-b")
	dir.Add("travel-v2", "inst-c")

	require.NoError(t, m.Propagate(context.Background(), "travel-v2"))

	fresh, err := store.Get(context.Background(), blk.ID)
	require.NoError(t, err)
	assert.True(t, fresh.Attached("inst-a"))
	assert.True(t, fresh.Attached("inst-b"))
	assert.True(t, fresh.Attached("inst-c"))
}

func TestPropagateWithoutBlockIsNoop(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.Add("empty-cohort", "inst-a")
	m, err := NewManager(NewMemoryStore(), dir)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	require.NoError(t, m.Propagate(context.Background(), "empty-cohort"))
}

func TestPropagateIsRerunnable(t *testing.T) {
	dir := NewMemoryDirectory()
	store := NewMemoryStore()
	m, err := NewManager(store, dir)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	blk, err := m.GetOrCreateAndAttach(context.Background(), "travel-v2", "inst-a")
	require.NoError(t, err)
	dir.Add("travel-v2", "inst-b")

	require.NoError(t, m.Propagate(context.Background(), "travel-v2"))
	require.NoError(t, m.Propagate(context.Background(), "travel-v2"))

	fresh, err := store.Get(context.Background(), blk.ID)
	require.NoError(t, err)
	assert.Len(t, fresh.AttachedTo, 2)
}

func TestUpdateContentRoundTrip(t *testing.T) {
	m := newTestManager(t, NewMemoryStore())

	blk, err := m.GetOrCreateAndAttach(context.Background(), "travel-v2", "inst-a")
	require.NoError(t, err)

	require.NoError(t, m.UpdateContent(context.Background(), blk.ID, "- visa rules changed"))

	content, err := m.Content(context.Background(), blk.ID)
	require.NoError(t, err)
	assert.Equal(t, "- visa rules changed", content)

	// The cached copy was invalidated; a fresh lookup sees the update.
	again, err := m.GetOrCreateAndAttach(context.Background(), "travel-v2", "inst-a")
	require.NoError(t, err)
	assert.Equal(t, "- visa rules changed", again.Content)
}

func TestLockTableReturnsSameMutexPerKey(t *testing.T) {
	lt := NewLockTable()

	a := lt.Get("k1")
	b := lt.Get("k1")
	c := lt.Get("k2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, lt.Len())
}

func TestLockTableConcurrentGet(t *testing.T) {
	lt := NewLockTable()

	const goroutines = 64
	results := make([]*sync.Mutex, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = lt.Get("shared")
		}(i)
	}
	wg.Wait()

	for _, mu := range results[1:] {
		assert.Same(t, results[0], mu)
	}
	assert.Equal(t, 1, lt.Len())
}
