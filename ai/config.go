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

package ai

import (
	"errors"
	"strings"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// GenerativeHost is the base URL for the chat/generation service API used
	// for classification, analysis, reranking and grounded answers.
	GenerativeHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// GenerativeModel is the model identifier used for structured JSON generation.
	// Example: "qwen2.5:7b", "gpt-4o-mini"
	GenerativeModel string

	// AnalysisModel is the multimodal model used to analyze uploaded files.
	// Defaults to GenerativeModel when empty.
	AnalysisModel string

	// QueryPrefix and DocumentPrefix are prepended to texts embedded with the
	// query and document task hints. Some embedding models expect them.
	QueryPrefix    string
	DocumentPrefix string

	// RequestsPerSecond caps generative calls. Zero disables limiting.
	RequestsPerSecond float64

	// JSONAttempts is how many times a malformed JSON response is retried.
	// Default: 3
	JSONAttempts int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithGenerativeHost sets the generative service host URL.
func WithGenerativeHost(host string) ConfigOption {
	return func(c *Config) {
		c.GenerativeHost = host
	}
}

// WithHost sets both embedding and generative hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.GenerativeHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithGenerativeModel sets the generative model identifier.
func WithGenerativeModel(model string) ConfigOption {
	return func(c *Config) {
		c.GenerativeModel = model
	}
}

// WithAnalysisModel sets the multimodal analysis model identifier.
func WithAnalysisModel(model string) ConfigOption {
	return func(c *Config) {
		c.AnalysisModel = model
	}
}

// WithTaskPrefixes sets the query and document embedding prefixes.
func WithTaskPrefixes(query, document string) ConfigOption {
	return func(c *Config) {
		c.QueryPrefix = query
		c.DocumentPrefix = document
	}
}

// WithRequestsPerSecond sets the generative call rate limit.
func WithRequestsPerSecond(rps float64) ConfigOption {
	return func(c *Config) {
		c.RequestsPerSecond = rps
	}
}

// WithJSONAttempts sets the number of attempts for malformed JSON responses.
func WithJSONAttempts(n int) ConfigOption {
	return func(c *Config) {
		c.JSONAttempts = n
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
// By default, both embedding and generation use the same host.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingHost:   defaultHost,
		GenerativeHost:  defaultHost,
		EmbeddingModel:  "embeddinggemma",
		GenerativeModel: "qwen2.5:7b",
		QueryPrefix:     "task: search result | query: ",
		DocumentPrefix:  "title: none | text: ",
		JSONAttempts:    3,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithEmbeddingModel("text-embedding-3-small"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to hosts if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	c.EmbeddingHost = withV1(c.EmbeddingHost)
	c.GenerativeHost = withV1(c.GenerativeHost)
	if c.AnalysisModel == "" {
		c.AnalysisModel = c.GenerativeModel
	}
}

func withV1(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.GenerativeHost == "" {
		return errors.New("ai config: GenerativeHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.GenerativeModel == "" {
		return errors.New("ai config: GenerativeModel is required")
	}
	if c.RequestsPerSecond < 0 {
		return errors.New("ai config: RequestsPerSecond cannot be negative")
	}
	if c.JSONAttempts < 1 || c.JSONAttempts > 10 {
		return errors.New("ai config: JSONAttempts must be between 1 and 10")
	}
	return nil
}
