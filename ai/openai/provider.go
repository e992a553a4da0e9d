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

package openai

import (
	"log/slog"

	"github.com/poiesic/corpora/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// rerankExplanations is how many top reranked entries get an explanation.
const rerankExplanations = 3

// Provider implements ai.AIProvider using OpenAI-compatible services.
// All generative services share one rate limiter.
type Provider struct {
	config     *ai.Config
	embedder   *Embedder
	classifier *Classifier
	analyzer   *Analyzer
	reranker   *Reranker
	grounder   *Grounder
	logger     *slog.Logger
}

// NewProvider creates a new AI provider with OpenAI-compatible services.
// The config is validated and normalized before use.
//
// Returns ai.AIProvider interface (not *Provider) to enforce abstraction
// and prevent coupling to OpenAI-specific implementation details.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}

	// Use "none" as token for local OpenAI-compatible services that don't require authentication
	client, err := openai.New(
		openai.WithBaseURL(config.GenerativeHost),
		openai.WithToken("none"),
		openai.WithModel(config.GenerativeModel),
	)
	if err != nil {
		return nil, err
	}

	return newProvider(config, embedder, client), nil
}

func newProvider(config *ai.Config, embedder *Embedder, client llms.Model) *Provider {
	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		burst := max(1, int(config.RequestsPerSecond))
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}

	gen := func(model, component string) *generator {
		return newGenerator(client, model, limiter, config.JSONAttempts, component)
	}

	return &Provider{
		config:     config,
		embedder:   embedder,
		classifier: newClassifier(gen(config.GenerativeModel, "openai-classifier")),
		analyzer:   newAnalyzer(gen(config.AnalysisModel, "openai-analyzer")),
		reranker:   newReranker(gen(config.GenerativeModel, "openai-reranker"), rerankExplanations),
		grounder:   newGrounder(gen(config.GenerativeModel, "openai-grounder")),
		logger:     slog.Default().With("component", "openai-provider"),
	}
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Classifier returns the query classifier.
func (p *Provider) Classifier() ai.Classifier {
	return p.classifier
}

// Analyzer returns the multimodal file analyzer.
func (p *Provider) Analyzer() ai.Analyzer {
	return p.analyzer
}

// Reranker returns the result reranker.
func (p *Provider) Reranker() ai.Reranker {
	return p.reranker
}

// Grounder returns the grounded answer generator.
func (p *Provider) Grounder() ai.Grounder {
	return p.grounder
}

// Close releases resources held by the provider.
// Currently a no-op as the underlying clients don't require explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return nil
}
