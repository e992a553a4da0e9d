// Package lifecycle owns document status transitions.
//
// Every status change goes through a compare-and-swap on the document store:
// a transition names the status the caller expects the document to be in and
// fails with core.ErrStatusConflict when another writer moved it first. This
// makes an operator's manual "process" and a batch sweep safe to run against
// the same document.
//
// The Manager also creates a document's Elements when it reaches
// metadata_ready, reports per-collection coverage, and publishes every
// transition to subscribers of Watch and WaitFor.
package lifecycle
