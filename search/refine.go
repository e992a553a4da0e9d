package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/core"
)

// Refinement trims and optionally reorders a ranked candidate list.
type Refinement struct {
	Query string
	// Threshold drops results scoring below it. ShowAll keeps everything.
	Threshold float64
	// Limit caps the number of results. Zero or negative means unlimited.
	Limit  int
	Rerank bool
	Hints  ai.CallHints
}

// ValidateThreshold accepts ShowAll or a score in [0, 1].
func ValidateThreshold(threshold float64) error {
	if threshold == ShowAll || (threshold >= 0 && threshold <= 1) {
		return nil
	}
	return &core.ValidationError{
		Field: "threshold",
		Err:   fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold),
	}
}

// Refine applies the threshold and limit to results, then reranks the leading
// results when asked. It reports whether a rerank was applied.
// A failed rerank keeps the score order.
func (e *Engine) Refine(ctx context.Context, results []*core.SearchResult, r Refinement) ([]*core.SearchResult, bool, error) {
	if err := ValidateThreshold(r.Threshold); err != nil {
		return nil, false, err
	}

	out := make([]*core.SearchResult, 0, len(results))
	for _, res := range results {
		if r.Threshold != ShowAll && res.Score < r.Threshold {
			continue
		}
		out = append(out, res)
	}
	if r.Limit > 0 && len(out) > r.Limit {
		out = out[:r.Limit]
	}

	if !r.Rerank || e.reranker == nil || len(out) < 2 {
		return out, false, nil
	}

	applied, err := e.rerank(ctx, r, out)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		e.logger.Warn("rerank failed, keeping score order", "err", err)
		return out, false, nil
	}
	return applied, true, nil
}

func (e *Engine) rerank(ctx context.Context, r Refinement, results []*core.SearchResult) ([]*core.SearchResult, error) {
	n := min(e.rerankTopN, len(results))
	head := results[:n]

	candidates := make([]ai.RerankCandidate, 0, n)
	byKey := make(map[string]int, n)
	for i, res := range head {
		c := ai.RerankCandidate{
			ID:       res.Key(),
			Filename: res.Filename,
			Summary:  res.Summary,
			Keywords: res.Keywords,
		}
		if em, ok := res.Element(); ok {
			c.Title = em.Title
		}
		candidates = append(candidates, c)
		byKey[c.ID] = i
	}

	outcome, err := e.reranker.Rerank(ctx, r.Query, candidates, r.Hints)
	if err != nil {
		return nil, core.Upstream("reranker", err)
	}
	if outcome == nil {
		return nil, errors.New("reranker returned no outcome")
	}

	order := reconcileOrder(outcome.Order, candidates, byKey)
	reranked := make([]*core.SearchResult, 0, len(results))
	for pos, idx := range order {
		res := head[idx]
		info := &core.RerankInfo{OriginalPosition: idx, RerankPosition: pos}
		if pos < e.rerankExplanations {
			info.Explanation = outcome.Explanations[res.Key()]
		}
		res.Rerank = info
		reranked = append(reranked, res)
	}
	return append(reranked, results[n:]...), nil
}

// reconcileOrder turns the reranker's id order into indexes of candidates.
// Unknown and repeated ids are ignored and omitted candidates keep their
// relative order at the end.
func reconcileOrder(order []string, candidates []ai.RerankCandidate, byKey map[string]int) []int {
	seen := make([]bool, len(candidates))
	out := make([]int, 0, len(candidates))
	for _, id := range order {
		idx, ok := byKey[id]
		if !ok || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	for i := range candidates {
		if !seen[i] {
			out = append(out, i)
		}
	}
	return out
}
