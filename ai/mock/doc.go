// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Classifier,
// ai.Analyzer, ai.Reranker, ai.Grounder and ai.AIProvider for use in unit
// tests. The mocks allow tests to run without external AI service
// dependencies and enable controlled, deterministic behavior.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	mockProvider := mock.NewMockProvider()
//	vec, err := mockProvider.Embedder().EmbedText(ctx, "test", ai.TaskQuery)
//
//	// Fixed vectors for known texts
//	mockEmbedder := mock.NewMockEmbedder().WithVectors(map[string][]float32{
//	    "SiC driver": {1, 0},
//	})
//
//	// Check call counts
//	count := mockEmbedder.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: returns unit vectors derived from a hash of the text
//   - MockClassifier: routes to the first collection, treating upper-case
//     tokens with digits as exact terms and the rest as one semantic term
//   - MockAnalyzer: summarizes with the filename and returns no elements
//   - MockReranker: keeps the incoming order
//   - MockGrounder: cites every candidate with confidence 0.5
//   - MockProvider: aggregates the above
package mock
