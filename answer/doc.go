// Package answer turns ranked retrieval results into a cited answer.
//
// The Generator offers the top results to an ai.Grounder as evidence and
// resolves the citations it returns against that evidence, so an answer can
// never cite a source it was not given. When retrieval found nothing the
// grounder is not called and a fixed fallback answer is returned.
package answer
