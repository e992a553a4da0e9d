package mock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode"

	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/core"
)

// counter is a concurrency-safe call counter shared by the mocks.
type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

// CallCount returns the number of calls made.
func (c *counter) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func (c *counter) reset() {
	c.mu.Lock()
	c.n = 0
	c.mu.Unlock()
}

// MockClassifier is a test double for ai.Classifier.
type MockClassifier struct {
	counter
	ClassifyFunc func(ctx context.Context, query string, collections []core.CollectionDescriptor, hints ai.CallHints) (*core.Classification, error)
}

// NewMockClassifier creates a mock classifier with default behavior.
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{}
}

// Classify routes to the first collection with confidence 0.9. Tokens that
// contain both a digit and an upper-case letter become exact terms; the
// remaining tokens form a single semantic term.
func (m *MockClassifier) Classify(ctx context.Context, query string, collections []core.CollectionDescriptor, hints ai.CallHints) (*core.Classification, error) {
	m.inc()
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, query, collections, hints)
	}
	if len(collections) == 0 {
		return nil, core.ErrUnknownCollection
	}

	var exact, rest []string
	for _, tok := range strings.Fields(query) {
		if isIdentifier(tok) {
			exact = append(exact, tok)
		} else {
			rest = append(rest, tok)
		}
	}
	c := &core.Classification{
		PrimaryCollection: collections[0].ID,
		PrimaryConfidence: 0.9,
		Reasoning:         "mock",
		Strategy:          core.StrategyPrimaryOnly,
		ExactMatchTerms:   exact,
	}
	if len(rest) > 0 {
		c.SemanticSearchTerms = []string{strings.Join(rest, " ")}
	}
	c.Normalize()
	return c, nil
}

func isIdentifier(tok string) bool {
	var digit, upper bool
	for _, r := range tok {
		digit = digit || unicode.IsDigit(r)
		upper = upper || unicode.IsUpper(r)
	}
	return digit && upper
}

// MockAnalyzer is a test double for ai.Analyzer.
type MockAnalyzer struct {
	counter
	AnalyzeFunc func(ctx context.Context, req ai.AnalysisRequest) (*ai.Analysis, error)
}

// NewMockAnalyzer creates a mock analyzer with default behavior.
func NewMockAnalyzer() *MockAnalyzer {
	return &MockAnalyzer{}
}

// Analyze returns a summary naming the file and passes local tables through
// as elements.
func (m *MockAnalyzer) Analyze(ctx context.Context, req ai.AnalysisRequest) (*ai.Analysis, error) {
	m.inc()
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, req)
	}
	if req.Collection == nil {
		return nil, errors.New("analysis request has no collection")
	}
	return &ai.Analysis{
		Content: core.Content{
			core.ContentSummary:  "Contents of " + req.Filename,
			core.ContentKeywords: []string{},
		},
		Elements: append([]ai.ExtractedElement(nil), req.Tables...),
	}, nil
}

// MockReranker is a test double for ai.Reranker.
type MockReranker struct {
	counter
	RerankFunc func(ctx context.Context, query string, candidates []ai.RerankCandidate, hints ai.CallHints) (*ai.RerankOutcome, error)
}

// NewMockReranker creates a mock reranker that keeps the incoming order.
func NewMockReranker() *MockReranker {
	return &MockReranker{}
}

// Rerank keeps the incoming order unless RerankFunc is set.
func (m *MockReranker) Rerank(ctx context.Context, query string, candidates []ai.RerankCandidate, hints ai.CallHints) (*ai.RerankOutcome, error) {
	m.inc()
	if m.RerankFunc != nil {
		return m.RerankFunc(ctx, query, candidates, hints)
	}
	order := make([]string, len(candidates))
	for i, c := range candidates {
		order[i] = c.ID
	}
	return &ai.RerankOutcome{Order: order}, nil
}

// MockGrounder is a test double for ai.Grounder.
type MockGrounder struct {
	counter
	GroundFunc func(ctx context.Context, req ai.GroundingRequest) (*core.GroundedAnswer, error)
}

// NewMockGrounder creates a mock grounder with default behavior.
func NewMockGrounder() *MockGrounder {
	return &MockGrounder{}
}

// Ground cites every candidate and answers with their filenames.
func (m *MockGrounder) Ground(ctx context.Context, req ai.GroundingRequest) (*core.GroundedAnswer, error) {
	m.inc()
	if m.GroundFunc != nil {
		return m.GroundFunc(ctx, req)
	}
	names := make([]string, 0, len(req.Candidates))
	citations := make([]core.Citation, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		names = append(names, c.Filename)
		citations = append(citations, core.Citation{SourceID: c.SourceID})
	}
	return &core.GroundedAnswer{
		Answer:     "See " + strings.Join(names, ", "),
		Citations:  citations,
		Confidence: 0.5,
	}, nil
}

// Reset clears call counts and custom functions on all service mocks.
func (m *MockClassifier) Reset() { m.reset(); m.ClassifyFunc = nil }
func (m *MockAnalyzer) Reset()   { m.reset(); m.AnalyzeFunc = nil }
func (m *MockReranker) Reset()   { m.reset(); m.RerankFunc = nil }
func (m *MockGrounder) Reset()   { m.reset(); m.GroundFunc = nil }
