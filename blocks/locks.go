package blocks

import "sync"

// LockTable hands out one mutex per cohort key. Insertion is atomic, so
// concurrent first-time requests for the same key get the same mutex.
// Keys are never removed; the table grows with the number of distinct
// cohorts, which is small and bounded in practice.
//
// The table is injected into the Manager rather than kept as package
// state so tests can substitute an instrumented one.
type LockTable struct {
	locks sync.Map
}

// NewLockTable creates an empty table.
func NewLockTable() *LockTable {
	return &LockTable{}
}

// Get returns the mutex for key, creating it on first use.
func (t *LockTable) Get(key string) *sync.Mutex {
	if m, ok := t.locks.Load(key); ok {
		return m.(*sync.Mutex)
	}
	m, _ := t.locks.LoadOrStore(key, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// Len returns the number of keys seen so far.
func (t *LockTable) Len() int {
	n := 0
	t.locks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
