package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/core"
	"github.com/tmc/langchaingo/llms"
)

// Classifier implements ai.Classifier with a JSON-mode chat model.
type Classifier struct {
	gen    *generator
	logger *slog.Logger
}

func newClassifier(gen *generator) *Classifier {
	return &Classifier{gen: gen, logger: slog.Default().With("component", "openai-classifier")}
}

// Classify asks the model to route query among collections. The reply is
// normalized and validated; a reply naming an unknown collection or carrying
// no terms at all is returned as an error rather than searched.
func (c *Classifier) Classify(ctx context.Context, query string, collections []core.CollectionDescriptor, hints ai.CallHints) (*core.Classification, error) {
	if err := core.ValidateQuery(query); err != nil {
		return nil, err
	}
	if len(collections) == 0 {
		return nil, fmt.Errorf("%w: no collections to route to", core.ErrUnknownCollection)
	}

	payload, err := json.MarshalIndent(collections, "", "  ")
	if err != nil {
		return nil, err
	}

	var result core.Classification
	messages := prompt(buildClassifierPrompt(string(payload)), llms.TextPart(query))
	if err := c.gen.generate(ctx, messages, hints, &result); err != nil {
		return nil, err
	}
	result.Normalize()

	known := make(map[string]bool, len(collections))
	for _, d := range collections {
		known[d.ID] = true
	}
	if err := core.ValidateClassification(&result, func(id string) bool { return known[id] }); err != nil {
		c.logger.Warn("classifier contract violation", "query", query, "err", err)
		return nil, err
	}

	c.logger.Debug("classified query",
		"query", query,
		"primary", result.PrimaryCollection,
		"confidence", result.PrimaryConfidence,
		"strategy", result.Strategy)
	return &result, nil
}
