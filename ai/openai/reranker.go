package openai

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/poiesic/corpora/ai"
	"github.com/tmc/langchaingo/llms"
)

// Reranker implements ai.Reranker with a JSON-mode chat model.
type Reranker struct {
	gen     *generator
	explain int
	logger  *slog.Logger
}

func newReranker(gen *generator, explain int) *Reranker {
	return &Reranker{gen: gen, explain: explain, logger: slog.Default().With("component", "openai-reranker")}
}

// Rerank returns the model's preferred order. The order is returned as the
// model gave it; callers reconcile it with the candidate set.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []ai.RerankCandidate, hints ai.CallHints) (*ai.RerankOutcome, error) {
	if len(candidates) < 2 {
		order := make([]string, len(candidates))
		for i, c := range candidates {
			order[i] = c.ID
		}
		return &ai.RerankOutcome{Order: order}, nil
	}

	payload, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return nil, err
	}

	var outcome ai.RerankOutcome
	messages := prompt(buildRerankPrompt(string(payload), r.explain), llms.TextPart(query))
	if err := r.gen.generate(ctx, messages, hints, &outcome); err != nil {
		return nil, err
	}
	r.logger.Debug("reranked candidates", "count", len(candidates), "returned", len(outcome.Order))
	return &outcome, nil
}
