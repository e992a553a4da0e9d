// Package config loads the service configuration and collection schemas.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/search"
)

// Duration is a time.Duration written as a string ("30s", "10m") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText writes the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the service configuration file.
type Config struct {
	Store      StoreConfig      `toml:"store"`
	Blobs      BlobConfig       `toml:"blobs"`
	Server     ServerConfig     `toml:"server"`
	AI         AIConfig         `toml:"ai"`
	Processing ProcessingConfig `toml:"processing"`
	Search     SearchConfig     `toml:"search"`
}

// StoreConfig locates the document store.
type StoreConfig struct {
	Path string `toml:"path"`
}

// BlobConfig locates the blob store and signs read URLs.
type BlobConfig struct {
	// Root is an afs URL, e.g. file:///var/lib/corpora/blobs or mem://localhost/blobs.
	Root          string   `toml:"root"`
	SigningSecret string   `toml:"signing_secret"`
	URLTTL        Duration `toml:"url_ttl"`
}

// ServerConfig is the HTTP boundary.
type ServerConfig struct {
	Listen string `toml:"listen"`
}

// AIConfig selects the model endpoints.
type AIConfig struct {
	Host              string  `toml:"host"`
	EmbeddingHost     string  `toml:"embedding_host"`
	GenerativeHost    string  `toml:"generative_host"`
	EmbeddingModel    string  `toml:"embedding_model"`
	GenerativeModel   string  `toml:"generative_model"`
	AnalysisModel     string  `toml:"analysis_model"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// ProcessingConfig tunes background document processing.
type ProcessingConfig struct {
	PoolSize int      `toml:"pool_size"`
	Timeout  Duration `toml:"timeout"`
	// InboxDir is watched for new files when set.
	InboxDir        string `toml:"inbox_dir"`
	InboxCollection string `toml:"inbox_collection"`
}

// SearchConfig tunes interactive retrieval.
type SearchConfig struct {
	Timeout               Duration `toml:"timeout"`
	RerankTopN            int      `toml:"rerank_top_n"`
	RerankExplanations    int      `toml:"rerank_explanations"`
	GroundingTopK         int      `toml:"grounding_top_k"`
	HistoryLimit          int      `toml:"history_limit"`
	PrimaryOnlyConfidence float64  `toml:"primary_only_confidence"`
	FanOutMinResults      int      `toml:"fan_out_min_results"`
	FanOutScoreFloor      float64  `toml:"fan_out_score_floor"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	policy := search.DefaultPolicy()
	return &Config{
		Store: StoreConfig{Path: "corpora.db"},
		Blobs: BlobConfig{
			Root:   "file://localhost/var/lib/corpora/blobs",
			URLTTL: Duration{15 * time.Minute},
		},
		Server: ServerConfig{Listen: ":8080"},
		AI: AIConfig{
			EmbeddingModel:  aiDefaults.EmbeddingModel,
			GenerativeModel: aiDefaults.GenerativeModel,
		},
		Processing: ProcessingConfig{
			Timeout: Duration{10 * time.Minute},
		},
		Search: SearchConfig{
			Timeout:               Duration{search.DefaultTimeout},
			RerankTopN:            search.DefaultRerankTopN,
			RerankExplanations:    search.DefaultRerankExplanations,
			GroundingTopK:         5,
			HistoryLimit:          search.DefaultHistoryLimit,
			PrimaryOnlyConfidence: policy.PrimaryOnlyConfidence,
			FanOutMinResults:      policy.MinResults,
			FanOutScoreFloor:      policy.ScoreFloor,
		},
	}
}

// Load reads a TOML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes TOML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required values are present and in range.
func (c *Config) Validate() error {
	var errs []error
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Blobs.Root == "" {
		errs = append(errs, errors.New("blobs.root is required"))
	}
	if c.Blobs.SigningSecret != "" && len(c.Blobs.SigningSecret) < 16 {
		errs = append(errs, errors.New("blobs.signing_secret must be at least 16 bytes"))
	}
	if c.Blobs.URLTTL.Duration <= 0 {
		errs = append(errs, errors.New("blobs.url_ttl must be positive"))
	}
	if c.Processing.PoolSize < 0 {
		errs = append(errs, errors.New("processing.pool_size cannot be negative"))
	}
	if c.Processing.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("processing.timeout must be positive"))
	}
	if c.Processing.InboxDir != "" && c.Processing.InboxCollection == "" {
		errs = append(errs, errors.New("processing.inbox_collection is required with inbox_dir"))
	}
	if c.Search.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("search.timeout must be positive"))
	}
	if c.Search.RerankTopN < 2 {
		errs = append(errs, errors.New("search.rerank_top_n must be at least 2"))
	}
	if c.Search.RerankExplanations < 0 {
		errs = append(errs, errors.New("search.rerank_explanations cannot be negative"))
	}
	if c.Search.GroundingTopK < 1 {
		errs = append(errs, errors.New("search.grounding_top_k must be at least 1"))
	}
	if c.Search.HistoryLimit < 0 {
		errs = append(errs, errors.New("search.history_limit cannot be negative"))
	}
	if !inUnit(c.Search.PrimaryOnlyConfidence) {
		errs = append(errs, errors.New("search.primary_only_confidence must be between 0 and 1"))
	}
	if c.Search.FanOutMinResults < 0 {
		errs = append(errs, errors.New("search.fan_out_min_results cannot be negative"))
	}
	if !inUnit(c.Search.FanOutScoreFloor) {
		errs = append(errs, errors.New("search.fan_out_score_floor must be between 0 and 1"))
	}
	if c.AI.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("ai.requests_per_second cannot be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }

// AIOptions translates the [ai] table into ai.ConfigOptions. A shared host
// is applied first so per-service hosts can override it. Unset hosts keep
// the ai package defaults.
func (c *Config) AIOptions() []ai.ConfigOption {
	var opts []ai.ConfigOption
	if c.AI.Host != "" {
		opts = append(opts, ai.WithHost(c.AI.Host))
	}
	if c.AI.EmbeddingHost != "" {
		opts = append(opts, ai.WithEmbeddingHost(c.AI.EmbeddingHost))
	}
	if c.AI.GenerativeHost != "" {
		opts = append(opts, ai.WithGenerativeHost(c.AI.GenerativeHost))
	}
	if c.AI.EmbeddingModel != "" {
		opts = append(opts, ai.WithEmbeddingModel(c.AI.EmbeddingModel))
	}
	if c.AI.GenerativeModel != "" {
		opts = append(opts, ai.WithGenerativeModel(c.AI.GenerativeModel))
	}
	if c.AI.AnalysisModel != "" {
		opts = append(opts, ai.WithAnalysisModel(c.AI.AnalysisModel))
	}
	if c.AI.RequestsPerSecond > 0 {
		opts = append(opts, ai.WithRequestsPerSecond(c.AI.RequestsPerSecond))
	}
	return opts
}

// Policy returns the routing policy described by the [search] table.
func (c *Config) Policy() search.Policy {
	policy := search.DefaultPolicy()
	policy.PrimaryOnlyConfidence = c.Search.PrimaryOnlyConfidence
	policy.MinResults = c.Search.FanOutMinResults
	policy.ScoreFloor = c.Search.FanOutScoreFloor
	return policy
}
