// Package ingestion runs the worker stages of the document lifecycle.
//
// The Processor drives documents through two stages, each on its own worker
// pool:
//   - analysis: pending -> analyzing -> metadata_ready, reading the blob,
//     extracting locally and calling the multimodal analyzer
//   - embedding: metadata_ready -> embedding -> ready, embedding the document
//     and each of its pending elements
//
// Every job runs on its own background context bounded by the processing
// timeout, so cancelling the request that triggered it does not stop it.
// Stage claims go through lifecycle.Manager's conditional transitions, which
// makes concurrent triggers for the same document safe: the loser is skipped.
package ingestion
