package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/poiesic/corpora/ai"
)

// DefaultDimensions is the length of generated vectors.
const DefaultDimensions = 384

// MockEmbedder is a test double for ai.Embedder.
// It allows custom behavior injection via function fields.
type MockEmbedder struct {
	// EmbedTextFunc is called by EmbedText if set.
	// If nil, uses the vector table and then default deterministic behavior.
	EmbedTextFunc func(ctx context.Context, text string, hint ai.TaskHint) ([]float32, error)

	// EmbedTextsFunc is called by EmbedTexts if set.
	EmbedTextsFunc func(ctx context.Context, texts []string, hint ai.TaskHint) ([][]float32, error)

	Dimensions int

	mu        sync.Mutex
	vectors   map[string][]float32
	callCount int
	texts     []string
}

// NewMockEmbedder creates a mock embedder with default deterministic behavior.
// Note: Returns concrete type to allow test assertions.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{Dimensions: DefaultDimensions}
}

// WithVectors registers fixed vectors for exact texts. Texts not in the
// table fall back to hashed vectors.
func (m *MockEmbedder) WithVectors(vectors map[string][]float32) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vectors == nil {
		m.vectors = make(map[string][]float32, len(vectors))
	}
	for k, v := range vectors {
		m.vectors[k] = v
	}
	return m
}

// EmbedText returns a fixed or deterministic embedding for text.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string, hint ai.TaskHint) ([]float32, error) {
	m.record(text)

	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text, hint)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.vectorFor(text), nil
}

// EmbedTexts returns embeddings for multiple texts.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string, hint ai.TaskHint) ([][]float32, error) {
	for _, t := range texts {
		m.record(t)
	}

	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts, hint)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.vectorFor(text)
	}
	return out, nil
}

func (m *MockEmbedder) record(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	m.texts = append(m.texts, text)
}

func (m *MockEmbedder) vectorFor(text string) []float32 {
	m.mu.Lock()
	v, ok := m.vectors[text]
	m.mu.Unlock()
	if ok {
		return append([]float32(nil), v...)
	}
	dim := m.Dimensions
	if dim <= 0 {
		dim = DefaultDimensions
	}
	return generateDeterministicVector(text, dim)
}

// CallCount returns the number of texts embedded.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Texts returns every text embedded so far, in call order.
func (m *MockEmbedder) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// Reset clears the call count, the vector table and custom functions.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.texts = nil
	m.vectors = nil
	m.EmbedTextFunc = nil
	m.EmbedTextsFunc = nil
}

// generateDeterministicVector creates a unit vector from text.
// It uses FNV hash to ensure the same text always produces the same vector.
func generateDeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	var sumSquares float64
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000)/1000.0 - 0.5
		sumSquares += float64(vector[i]) * float64(vector[i])
	}
	if sumSquares > 0 {
		norm := float32(1 / math.Sqrt(sumSquares))
		for i := range vector {
			vector[i] *= norm
		}
	}
	return vector
}
