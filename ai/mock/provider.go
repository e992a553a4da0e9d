// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mock

import "github.com/poiesic/corpora/ai"

// MockProvider is a test double for ai.AIProvider.
type MockProvider struct {
	embedder   *MockEmbedder
	classifier *MockClassifier
	analyzer   *MockAnalyzer
	reranker   *MockReranker
	grounder   *MockGrounder
}

// NewMockProvider creates a new mock provider with default mock services.
// It returns the concrete type; its accessors return the interfaces.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		embedder:   NewMockEmbedder(),
		classifier: NewMockClassifier(),
		analyzer:   NewMockAnalyzer(),
		reranker:   NewMockReranker(),
		grounder:   NewMockGrounder(),
	}
}

var _ ai.AIProvider = (*MockProvider)(nil)

func (p *MockProvider) Embedder() ai.Embedder     { return p.embedder }
func (p *MockProvider) Classifier() ai.Classifier { return p.classifier }
func (p *MockProvider) Analyzer() ai.Analyzer     { return p.analyzer }
func (p *MockProvider) Reranker() ai.Reranker     { return p.reranker }
func (p *MockProvider) Grounder() ai.Grounder     { return p.grounder }

// Close is a no-op for mock provider.
func (p *MockProvider) Close() error {
	return nil
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder { return p.embedder }

// GetMockClassifier returns the underlying mock classifier.
func (p *MockProvider) GetMockClassifier() *MockClassifier { return p.classifier }

// GetMockAnalyzer returns the underlying mock analyzer.
func (p *MockProvider) GetMockAnalyzer() *MockAnalyzer { return p.analyzer }

// GetMockReranker returns the underlying mock reranker.
func (p *MockProvider) GetMockReranker() *MockReranker { return p.reranker }

// GetMockGrounder returns the underlying mock grounder.
func (p *MockProvider) GetMockGrounder() *MockGrounder { return p.grounder }
