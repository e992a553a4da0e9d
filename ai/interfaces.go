package ai

import (
	"context"

	"github.com/poiesic/corpora/core"
)

// TaskHint biases an embedding towards query or document intent.
type TaskHint string

const (
	TaskQuery    TaskHint = "query"
	TaskDocument TaskHint = "document"
)

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string, hint TaskHint) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string, hint TaskHint) ([][]float32, error)
}

// CallHints are per-request overrides for generative calls.
type CallHints struct {
	// Model overrides the configured generative model.
	Model string
	// ReasoningEffort is one of "low", "medium" or "high". Empty leaves the
	// model default.
	ReasoningEffort string
}

// Classifier routes a query to collections and splits its terms into exact
// and semantic buckets. It does not pick the collections to search; the
// caller applies the strategy policy to its output.
type Classifier interface {
	Classify(ctx context.Context, query string, collections []core.CollectionDescriptor, hints CallHints) (*core.Classification, error)
}

// Analyzer extracts the content map and elements of an uploaded file.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest) (*Analysis, error)
}

// Reranker reorders an already-ranked candidate list by holistic relevance.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []RerankCandidate, hints CallHints) (*RerankOutcome, error)
}

// Grounder writes an answer that cites only the candidates it was given.
type Grounder interface {
	Ground(ctx context.Context, req GroundingRequest) (*core.GroundedAnswer, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	Embedder() Embedder
	Classifier() Classifier
	Analyzer() Analyzer
	Reranker() Reranker
	Grounder() Grounder

	// Close releases resources held by the provider and its services.
	Close() error
}
