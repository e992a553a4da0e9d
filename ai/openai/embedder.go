package openai

import (
	"context"
	"log/slog"

	"github.com/poiesic/corpora/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder       embeddings.Embedder
	queryPrefix    string
	documentPrefix string
	logger         *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Use "none" as token for local OpenAI-compatible services that don't require authentication
	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken("none"),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}
	return wrapEmbedder(embedder, config), nil
}

func wrapEmbedder(embedder embeddings.Embedder, config *ai.Config) *Embedder {
	return &Embedder{
		embedder:       embedder,
		queryPrefix:    config.QueryPrefix,
		documentPrefix: config.DocumentPrefix,
		logger:         slog.Default().With("component", "openai-embedder"),
	}
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText generates a vector embedding for a single text string.
// Query-hinted texts go through the query endpoint, the rest are embedded as
// documents.
func (e *Embedder) EmbedText(ctx context.Context, text string, hint ai.TaskHint) ([]float32, error) {
	e.logger.Debug("generating embedding for single text", "length", len(text), "hint", hint)

	if hint == ai.TaskQuery {
		vec, err := e.embedder.EmbedQuery(ctx, e.queryPrefix+text)
		if err != nil {
			e.logger.Error("failed to generate query embedding", "err", err)
			return nil, err
		}
		return vec, nil
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, []string{e.documentPrefix + text})
	if err != nil {
		e.logger.Error("failed to generate embedding", "err", err)
		return nil, err
	}
	if len(vectors) == 0 {
		e.logger.Warn("embedder returned empty result")
		return []float32{}, nil
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string, hint ai.TaskHint) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts), "hint", hint)

	prefix := e.documentPrefix
	if hint == ai.TaskQuery {
		prefix = e.queryPrefix
	}
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = prefix + t
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, prefixed)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	return vectors, nil
}
