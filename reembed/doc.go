// Package reembed rebuilds the embeddings of documents and elements that are
// already ready, typically after the embedding model changed.
//
// Work runs in batches with retry and exponential backoff around every
// embedder call. Vectors are normalized before they are stored so stored
// similarities stay comparable with freshly ingested ones. Document status
// is never changed; a document that leaves ready while a batch is in flight
// is skipped.
package reembed
