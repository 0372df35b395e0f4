package blocks

import (
	"context"
	"sync"
)

// Directory reports which agent instances currently serve users of a
// cohort. Propagation uses it to find the siblings that should converge
// on the cohort's block.
type Directory interface {
	ListInstances(ctx context.Context, cohortKey string) ([]string, error)
}

// MemoryDirectory is the in-memory reference Directory.
type MemoryDirectory struct {
	mu      sync.RWMutex
	cohorts map[string][]string
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{cohorts: make(map[string][]string)}
}

// Add records that an instance serves a cohort. Idempotent.
func (d *MemoryDirectory) Add(cohortKey, instanceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range d.cohorts[cohortKey] {
		if id == instanceID {
			return
		}
	}
	d.cohorts[cohortKey] = append(d.cohorts[cohortKey], instanceID)
}

// Remove drops an instance from a cohort, e.g. when it goes offline.
func (d *MemoryDirectory) Remove(cohortKey, instanceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := d.cohorts[cohortKey]
	for i, id := range ids {
		if id == instanceID {
			d.cohorts[cohortKey] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

// ListInstances returns the instances serving the cohort.
func (d *MemoryDirectory) ListInstances(ctx context.Context, cohortKey string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]string, len(d.cohorts[cohortKey]))
	copy(out, d.cohorts[cohortKey])
	return out, nil
}
