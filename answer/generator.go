package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/core"
)

// DefaultTopK is how many results are offered as evidence.
const DefaultTopK = 5

// ErrGrounderRequired is returned when a grounder is not provided.
var ErrGrounderRequired = errors.New("grounder required")

// Generator produces grounded answers.
type Generator struct {
	grounder ai.Grounder
	topK     int
	logger   *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) error {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
		return nil
	}
}

// WithTopK sets how many results are offered as evidence.
// Default is DefaultTopK.
func WithTopK(k int) Option {
	return func(g *Generator) error {
		if k < 1 {
			return fmt.Errorf("top-k must be at least 1, got %d", k)
		}
		g.topK = k
		return nil
	}
}

// NewGenerator creates an answer generator.
func NewGenerator(grounder ai.Grounder, opts ...Option) (*Generator, error) {
	if grounder == nil {
		return nil, ErrGrounderRequired
	}
	g := &Generator{
		grounder: grounder,
		topK:     DefaultTopK,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	g.logger = g.logger.With("component", "answer")
	return g, nil
}

// Request is the input of one grounded answer.
type Request struct {
	Query   string
	Results []*core.SearchResult
	History []core.ChatMessage
	Hints   ai.CallHints
}

// Candidates projects the top results into grounding evidence.
func (g *Generator) Candidates(results []*core.SearchResult) []core.GroundingCandidate {
	n := min(len(results), g.topK)
	out := make([]core.GroundingCandidate, 0, n)
	for _, r := range results[:n] {
		out = append(out, core.CandidateFromResult(r))
	}
	return out
}

// Answer grounds the query in the top results. With no results it returns
// core.NoEvidenceAnswer without calling the grounder.
func (g *Generator) Answer(ctx context.Context, req Request) (*core.GroundedAnswer, error) {
	if err := core.ValidateQuery(req.Query); err != nil {
		return nil, err
	}
	candidates := g.Candidates(req.Results)
	if len(candidates) == 0 {
		g.logger.Debug("no evidence, returning fallback answer")
		return core.NoEvidenceAnswer(), nil
	}

	raw, err := g.grounder.Ground(ctx, ai.GroundingRequest{
		Query:      req.Query,
		Candidates: candidates,
		History:    req.History,
		Hints:      req.Hints,
	})
	if err != nil {
		return nil, core.Upstream("answer generator", err)
	}
	if raw == nil {
		return nil, core.Upstream("answer generator", errors.New("empty answer"))
	}

	answer := &core.GroundedAnswer{
		Answer:     strings.TrimSpace(raw.Answer),
		Citations:  g.resolve(candidates, raw.Citations),
		Confidence: clamp(raw.Confidence),
	}
	return answer, nil
}

// resolve maps claimed citations onto the evidence. Claims that name no
// supplied source are dropped, as are repeats.
func (g *Generator) resolve(candidates []core.GroundingCandidate, claims []core.Citation) []core.Citation {
	bySource := make(map[string]core.GroundingCandidate, len(candidates))
	for _, c := range candidates {
		bySource[c.SourceID] = c
	}

	out := make([]core.Citation, 0, len(claims))
	seen := make(map[string]bool, len(claims))
	for _, claim := range claims {
		id := strings.TrimSpace(claim.SourceID)
		c, ok := bySource[id]
		if !ok && claim.DocumentID != "" {
			c, ok = bySource["document:"+claim.DocumentID]
		}
		if !ok {
			c, ok = bySource["document:"+id]
		}
		if !ok {
			g.logger.Warn("dropping citation", "source", claim.SourceID, "err", core.ErrCitationOutsideInput)
			continue
		}
		if seen[c.SourceID] {
			continue
		}
		seen[c.SourceID] = true
		out = append(out, c.Citation(strings.TrimSpace(claim.RelevanceNote)))
	}
	return out
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
