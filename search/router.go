package search

import (
	"context"
	"sort"

	"github.com/poiesic/corpora/core"
	"golang.org/x/sync/errgroup"
)

// Policy decides how far a classified query fans out.
type Policy struct {
	// PrimaryOnlyConfidence above which only the primary collection is searched.
	PrimaryOnlyConfidence float64
	// MinResults and ScoreFloor define a sufficient primary pass under
	// primary_then_secondary: at least MinResults results and a best score of
	// at least ScoreFloor.
	MinResults int
	ScoreFloor float64
	// EvenSplitMargin is the confidence gap under which primary and secondary
	// are searched in parallel.
	EvenSplitMargin float64
}

// DefaultPolicy returns the stock routing policy.
func DefaultPolicy() Policy {
	return Policy{
		PrimaryOnlyConfidence: 0.8,
		MinResults:            3,
		ScoreFloor:            0.5,
		EvenSplitMargin:       0.1,
	}
}

// Retrieval is the merged candidate list of a routed query.
type Retrieval struct {
	Strategy            core.Strategy
	CollectionsSearched []string
	Results             []*core.SearchResult
}

// Router executes a classification against the engine.
type Router struct {
	engine *Engine
	policy Policy
}

// NewRouter creates a router for engine.
func NewRouter(engine *Engine, policy Policy) (*Router, error) {
	if engine == nil {
		return nil, ErrEngineRequired
	}
	return &Router{engine: engine, policy: policy}, nil
}

// Policy returns the routing policy in effect.
func (r *Router) Policy() Policy { return r.policy }

// Plan picks the strategy for c. The classifier's suggestion is only
// followed where the policy leaves room for it.
func (r *Router) Plan(c *core.Classification) core.Strategy {
	switch {
	case len(c.SecondaryCollections) == 0:
		return core.StrategyPrimaryOnly
	case c.PrimaryConfidence > r.policy.PrimaryOnlyConfidence:
		return core.StrategyPrimaryOnly
	case c.Strategy == core.StrategyParallel:
		return core.StrategyParallel
	case c.SecondaryConfidence > 0 && c.PrimaryConfidence-c.SecondaryConfidence <= r.policy.EvenSplitMargin:
		return core.StrategyParallel
	default:
		return core.StrategyPrimaryThenSecondary
	}
}

// Retrieve searches the collections chosen by Plan and merges the results
// best first.
func (r *Router) Retrieve(ctx context.Context, c *core.Classification, q Query) (*Retrieval, error) {
	strategy := r.Plan(c)
	out := &Retrieval{Strategy: strategy}

	q.ExactTerms = c.ExactMatchTerms
	q.SemanticTerms = c.SemanticSearchTerms

	primary := []string{c.PrimaryCollection}
	var err error
	switch strategy {
	case core.StrategyPrimaryOnly:
		out.CollectionsSearched = primary
		out.Results, err = r.searchAll(ctx, primary, q)
	case core.StrategyParallel:
		out.CollectionsSearched = c.Collections()
		out.Results, err = r.searchAll(ctx, out.CollectionsSearched, q)
	default:
		out.CollectionsSearched = primary
		out.Results, err = r.searchAll(ctx, primary, q)
		if err != nil || r.sufficient(out.Results) {
			break
		}
		r.engine.logger.Debug("primary pass thin, fanning out",
			"primary", c.PrimaryCollection,
			"results", len(out.Results))
		var rest []*core.SearchResult
		rest, err = r.searchAll(ctx, c.SecondaryCollections, q)
		out.CollectionsSearched = c.Collections()
		out.Results = merge(out.Results, rest)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Router) sufficient(results []*core.SearchResult) bool {
	return len(results) >= r.policy.MinResults &&
		len(results) > 0 &&
		results[0].Score >= r.policy.ScoreFloor
}

// searchAll searches collections concurrently and merges their results in
// collection order before sorting.
func (r *Router) searchAll(ctx context.Context, collections []string, q Query) ([]*core.SearchResult, error) {
	slots := make([][]*core.SearchResult, len(collections))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range collections {
		g.Go(func() error {
			res, err := r.engine.SearchCollection(gctx, id, q)
			if err != nil {
				return err
			}
			slots[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merge(slots...), nil
}

func merge(lists ...[]*core.SearchResult) []*core.SearchResult {
	var out []*core.SearchResult
	for _, l := range lists {
		out = append(out, l...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if out == nil {
		out = []*core.SearchResult{}
	}
	return out
}
