// Package storage provides the storage abstraction layer for corpora.
//
// It defines repository interfaces for collections, documents and elements
// that decouple the lifecycle, ingestion and retrieval packages from the
// concrete store. The badger subpackage is the production implementation.
//
// # Documents and elements
//
// Documents are keyed by id and carry a status index so that batch sweeps can
// list "everything pending" cheaply. Status changes go through CompareAndSwap,
// which only commits when the stored status still matches the caller's
// expectation; a concurrent writer loses with core.ErrStatusConflict.
//
// Elements are keyed under their parent document id. The reference is weak:
// deleting a document leaves its elements in place, and readers must tolerate
// elements whose parent is gone.
//
// # Vector search
//
// FindSimilar computes the inner product between the query vector and each
// stored embedding. Vectors are normalized at write time so this equals
// cosine similarity. A collection pre-filter, a similarity threshold and a
// result limit are applied in that order.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
