// Package memory holds the per-user memory document: an append-only
// list of facts (deactivation marks instead of deletes), each traceable
// to its source, with a token-budget eviction policy.
//
// Mutations follow a read-modify-write, last-write-wins pattern against
// the DocumentStore: the whole document is replaced rather than patched
// in place. Concurrent turns for the same user are rare and a lost
// update under simultaneous writes is an accepted risk here, not
// something this package mitigates with locking.
//
// Recall layers semantic lookup over the active facts:
//   - Store: chromem-go, an embedded pure-Go vector database
//   - Embedder: mock for tests, ONNX (all-MiniLM-L6-v2) behind the
//     `onnx` build tag, an API-backed embedder in production
package memory
