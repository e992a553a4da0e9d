package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		EmbeddingHost:   "http://localhost:11434",
		GenerativeHost:  "http://localhost:11434",
		EmbeddingModel:  "embeddinggemma",
		GenerativeModel: "qwen2.5:7b",
		JSONAttempts:    3,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "http://localhost:11434/v1", cfg.GenerativeHost)
	assert.Equal(t, "embeddinggemma", cfg.EmbeddingModel)
	assert.Equal(t, "qwen2.5:7b", cfg.GenerativeModel)
	assert.Equal(t, 3, cfg.JSONAttempts)
	assert.Zero(t, cfg.RequestsPerSecond)
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("with separate hosts", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("http://embed:8080/v1"),
			WithGenerativeHost("http://generate:9090/v1"),
		)

		assert.Equal(t, "http://embed:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://generate:9090/v1", cfg.GenerativeHost)
	})

	t.Run("with multiple options", func(t *testing.T) {
		cfg := NewConfig(
			WithHost("http://custom:8080/v1"),
			WithEmbeddingModel("custom-embed"),
			WithGenerativeModel("custom-generate"),
			WithAnalysisModel("custom-vision"),
			WithTaskPrefixes("q: ", "d: "),
			WithRequestsPerSecond(2.5),
			WithJSONAttempts(5),
		)

		assert.Equal(t, "http://custom:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://custom:8080/v1", cfg.GenerativeHost)
		assert.Equal(t, "custom-embed", cfg.EmbeddingModel)
		assert.Equal(t, "custom-generate", cfg.GenerativeModel)
		assert.Equal(t, "custom-vision", cfg.AnalysisModel)
		assert.Equal(t, "q: ", cfg.QueryPrefix)
		assert.Equal(t, "d: ", cfg.DocumentPrefix)
		assert.Equal(t, 2.5, cfg.RequestsPerSecond)
		assert.Equal(t, 5, cfg.JSONAttempts)
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected string
	}{
		{name: "already has /v1", host: "http://localhost:11434/v1", expected: "http://localhost:11434/v1"},
		{name: "missing /v1", host: "http://localhost:11434", expected: "http://localhost:11434/v1"},
		{name: "has trailing slash", host: "http://localhost:11434/", expected: "http://localhost:11434/v1"},
		{name: "empty host", host: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.host, GenerativeHost: tt.host}
			cfg.Normalize()

			assert.Equal(t, tt.expected, cfg.EmbeddingHost)
			assert.Equal(t, tt.expected, cfg.GenerativeHost)
		})
	}

	t.Run("analysis model defaults to generative model", func(t *testing.T) {
		cfg := &Config{GenerativeModel: "gen"}
		cfg.Normalize()
		assert.Equal(t, "gen", cfg.AnalysisModel)
	})
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := validConfig()
		require.NoError(t, cfg.Validate())

		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://localhost:11434/v1", cfg.GenerativeHost)
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing embedding host", func(c *Config) { c.EmbeddingHost = "" }, "EmbeddingHost"},
		{"missing generative host", func(c *Config) { c.GenerativeHost = "" }, "GenerativeHost"},
		{"missing embedding model", func(c *Config) { c.EmbeddingModel = "" }, "EmbeddingModel"},
		{"missing generative model", func(c *Config) { c.GenerativeModel = "" }, "GenerativeModel"},
		{"negative rate", func(c *Config) { c.RequestsPerSecond = -1 }, "RequestsPerSecond"},
		{"zero attempts", func(c *Config) { c.JSONAttempts = 0 }, "JSONAttempts"},
		{"too many attempts", func(c *Config) { c.JSONAttempts = 11 }, "JSONAttempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestConfigValidate_Integration(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	require.NoError(t, cfg.Validate())
}
