// Package blocks manages the shared experience block that every agent
// instance serving one cohort ("persona") converges on.
//
// Invariant: at most one block exists per cohort key. Creation and
// discovery race under concurrent first-time requests, so both happen
// inside a per-key critical section handed out by a LockTable. The lock
// is held only for the lookup/create/attach sequence against the block
// store, never across a reasoning-service call.
//
// Attachment is idempotent and convergence is eventual: siblings that
// are unreachable during Propagate are skipped with a warning and picked
// up by the next propagation for the same key.
//
// Architecture:
//   - Store: the external block store (in-memory reference impl here,
//     a durable backend in production)
//   - Directory: reports which instances currently serve a cohort
//   - Manager: orchestrates lookup, creation, attachment, propagation
package blocks
