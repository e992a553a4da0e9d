package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/answer"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/storage"
)

const (
	// DefaultTimeout bounds one interactive search or chat request.
	DefaultTimeout = 30 * time.Second
	// DefaultLimit is the result count when a request sets none.
	DefaultLimit = 10
	// MaxLimit is the largest result count a request may ask for.
	MaxLimit = 100
	// DefaultHistoryLimit is how many prior chat turns reach the grounder.
	DefaultHistoryLimit = 10
)

// SearchRequest is the search wire contract.
type SearchRequest struct {
	Query           string  `json:"query"`
	Limit           int     `json:"limit,omitempty"`
	Threshold       float64 `json:"threshold,omitempty"`
	TargetModel     string  `json:"targetModel,omitempty"`
	ReasoningEffort string  `json:"reasoningEffort,omitempty"`
	DebugMode       bool    `json:"debugMode,omitempty"`
	EnableRerank    bool    `json:"enableRerank,omitempty"`
}

// SearchMetadata describes how a response was produced.
type SearchMetadata struct {
	CollectionsSearched []string      `json:"collectionsSearched"`
	Strategy            core.Strategy `json:"strategy"`
	TotalCandidates     int           `json:"totalCandidates"`
	SearchTimeMs        int64         `json:"searchTimeMs"`
	// RerankApplied is only reported when a rerank was requested.
	RerankApplied *bool `json:"rerankApplied,omitempty"`
}

// SearchResponse is the search wire contract.
type SearchResponse struct {
	Results        []*core.SearchResult `json:"results"`
	Classification *core.Classification `json:"classification"`
	SearchMetadata SearchMetadata       `json:"searchMetadata"`
}

// ChatRequest is the grounded-answer wire contract.
type ChatRequest struct {
	Query               string             `json:"query"`
	ConversationHistory []core.ChatMessage `json:"conversationHistory,omitempty"`
	TargetModel         string             `json:"targetModel,omitempty"`
	ReasoningEffort     string             `json:"reasoningEffort,omitempty"`
}

// ChatResponse is the grounded-answer wire contract.
type ChatResponse struct {
	Answer         string          `json:"answer"`
	Citations      []core.Citation `json:"citations"`
	Confidence     float64         `json:"confidence"`
	SearchMetadata SearchMetadata  `json:"searchMetadata"`
	ProcessTrace   core.Snapshot   `json:"processTrace"`
}

// TraceError is returned when a stage fails. It carries the trace recorded
// up to and including the failed stage.
type TraceError struct {
	Trace core.Snapshot
	Err   error
}

func (e *TraceError) Error() string { return e.Err.Error() }

func (e *TraceError) Unwrap() error { return e.Err }

// Service orchestrates classify, retrieve, rank and ground for interactive
// requests.
type Service struct {
	collections  storage.CollectionRepository
	classifier   ai.Classifier
	router       *Router
	answers      *answer.Generator
	timeout      time.Duration
	historyLimit int
	logger       *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service) error

// WithServiceLogger sets a custom logger.
// Default is slog.Default().
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithTimeout bounds each request.
// Default is DefaultTimeout.
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *Service) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		s.timeout = d
		return nil
	}
}

// WithHistoryLimit caps the chat turns passed to the grounder.
// Default is DefaultHistoryLimit.
func WithHistoryLimit(n int) ServiceOption {
	return func(s *Service) error {
		if n < 0 {
			return fmt.Errorf("history limit cannot be negative, got %d", n)
		}
		s.historyLimit = n
		return nil
	}
}

// NewService wires the interactive pipeline.
func NewService(
	collections storage.CollectionRepository,
	classifier ai.Classifier,
	router *Router,
	answers *answer.Generator,
	opts ...ServiceOption,
) (*Service, error) {
	if collections == nil {
		return nil, ErrCollectionRepositoryRequired
	}
	if classifier == nil {
		return nil, ErrAIProviderRequired
	}
	if router == nil {
		return nil, ErrEngineRequired
	}
	if answers == nil {
		return nil, answer.ErrGrounderRequired
	}
	s := &Service{
		collections:  collections,
		classifier:   classifier,
		router:       router,
		answers:      answers,
		timeout:      DefaultTimeout,
		historyLimit: DefaultHistoryLimit,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "search-service")
	return s, nil
}

// plan is one validated pipeline run.
type plan struct {
	query     string
	limit     int
	threshold float64
	debug     bool
	rerank    bool
	hints     ai.CallHints
}

// outcome is what the retrieval half of the pipeline produced.
type outcome struct {
	classification *core.Classification
	retrieval      *Retrieval
	results        []*core.SearchResult
	rerankApplied  bool
}

func (o *outcome) metadata(p plan, started time.Time) SearchMetadata {
	md := SearchMetadata{
		CollectionsSearched: o.retrieval.CollectionsSearched,
		Strategy:            o.retrieval.Strategy,
		TotalCandidates:     len(o.retrieval.Results),
		SearchTimeMs:        time.Since(started).Milliseconds(),
	}
	if p.rerank {
		applied := o.rerankApplied
		md.RerankApplied = &applied
	}
	return md
}

// Search classifies and retrieves without generating an answer.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	started := time.Now()
	p, err := newPlan(req.Query, req.Limit, req.Threshold, req.TargetModel, req.ReasoningEffort)
	if err != nil {
		return nil, err
	}
	p.debug = req.DebugMode
	p.rerank = req.EnableRerank

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	trace := core.NewProcessTrace()
	out, err := s.retrieve(ctx, trace, p)
	if err != nil {
		return nil, s.fail(trace, "search", err)
	}
	return &SearchResponse{
		Results:        out.results,
		Classification: out.classification,
		SearchMetadata: out.metadata(p, started),
	}, nil
}

// Chat retrieves evidence and grounds an answer in it.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	started := time.Now()
	p, err := newPlan(req.Query, 0, ShowAll, req.TargetModel, req.ReasoningEffort)
	if err != nil {
		return nil, err
	}
	history, err := s.history(req.ConversationHistory)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	trace := core.NewProcessTrace()
	out, err := s.retrieve(ctx, trace, p)
	if err != nil {
		return nil, s.fail(trace, "chat", err)
	}

	grounded, err := core.Trace(trace, "ground",
		map[string]any{"candidates": len(s.answers.Candidates(out.results)), "history": len(history)},
		func() (*core.GroundedAnswer, error) {
			return s.answers.Answer(ctx, answer.Request{
				Query:   p.query,
				Results: out.results,
				History: history,
				Hints:   p.hints,
			})
		})
	if err != nil {
		return nil, s.fail(trace, "chat", err)
	}

	return &ChatResponse{
		Answer:         grounded.Answer,
		Citations:      grounded.Citations,
		Confidence:     grounded.Confidence,
		SearchMetadata: out.metadata(p, started),
		ProcessTrace:   trace.Snapshot(),
	}, nil
}

func (s *Service) retrieve(ctx context.Context, trace *core.ProcessTrace, p plan) (*outcome, error) {
	collections, err := s.collections.ListCollections(ctx)
	if err != nil {
		return nil, core.Upstream("document store", err)
	}
	if len(collections) == 0 {
		return nil, &core.NotFoundError{Kind: "collection", ID: "*", Err: ErrNoCollections}
	}
	descriptors := make([]core.CollectionDescriptor, 0, len(collections))
	known := make(map[string]bool, len(collections))
	for _, c := range collections {
		descriptors = append(descriptors, c.Descriptor())
		known[c.ID] = true
	}

	classification, err := core.Trace(trace, "classify",
		map[string]any{"query": p.query, "collections": len(descriptors)},
		func() (*core.Classification, error) {
			c, err := s.classifier.Classify(ctx, p.query, descriptors, p.hints)
			if err != nil {
				return nil, core.Upstream("classifier", err)
			}
			c.Normalize()
			if err := core.ValidateClassification(c, func(id string) bool { return known[id] }); err != nil {
				return nil, core.Upstream("classifier", err)
			}
			return c, nil
		})
	if err != nil {
		return nil, err
	}

	step := trace.Begin("retrieve", map[string]any{
		"exactTerms":    classification.ExactMatchTerms,
		"semanticTerms": classification.SemanticSearchTerms,
	})
	retrieval, err := s.router.Retrieve(ctx, classification, Query{
		Text:    p.query,
		Debug:   p.debug,
		Monitor: &LogMonitor{Logger: s.logger},
	})
	if err != nil {
		trace.End(step, nil, err)
		return nil, err
	}
	trace.End(step, map[string]any{
		"strategy":            retrieval.Strategy,
		"collectionsSearched": retrieval.CollectionsSearched,
		"candidates":          len(retrieval.Results),
	}, nil)

	step = trace.Begin("rank", map[string]any{
		"threshold": p.threshold,
		"limit":     p.limit,
		"rerank":    p.rerank,
	})
	results, applied, err := s.router.engine.Refine(ctx, retrieval.Results, Refinement{
		Query:     p.query,
		Threshold: p.threshold,
		Limit:     p.limit,
		Rerank:    p.rerank,
		Hints:     p.hints,
	})
	if err != nil {
		trace.End(step, nil, err)
		return nil, err
	}
	trace.End(step, map[string]any{"returned": len(results), "rerankApplied": applied}, nil)

	return &outcome{
		classification: classification,
		retrieval:      retrieval,
		results:        results,
		rerankApplied:  applied,
	}, nil
}

func (s *Service) fail(trace *core.ProcessTrace, op string, err error) error {
	s.logger.Error(op+" failed", "err", err)
	return &TraceError{Trace: trace.Snapshot(), Err: err}
}

// history keeps the most recent turns and rejects unknown roles.
func (s *Service) history(turns []core.ChatMessage) ([]core.ChatMessage, error) {
	for i, m := range turns {
		if m.Role != core.RoleUser && m.Role != core.RoleAssistant {
			return nil, &core.ValidationError{
				Field: fmt.Sprintf("conversationHistory[%d].role", i),
				Err:   fmt.Errorf("unknown role %q", m.Role),
			}
		}
	}
	if len(turns) > s.historyLimit {
		turns = turns[len(turns)-s.historyLimit:]
	}
	return turns, nil
}

func newPlan(query string, limit int, threshold float64, model, effort string) (plan, error) {
	if err := core.ValidateQuery(query); err != nil {
		return plan{}, err
	}
	if err := ValidateThreshold(threshold); err != nil {
		return plan{}, err
	}
	switch {
	case limit == 0:
		limit = DefaultLimit
	case limit < 0 || limit > MaxLimit:
		return plan{}, &core.ValidationError{
			Field: "limit",
			Err:   fmt.Errorf("must be between 1 and %d, got %d", MaxLimit, limit),
		}
	}
	switch effort {
	case "", "low", "medium", "high":
	default:
		return plan{}, &core.ValidationError{
			Field: "reasoningEffort",
			Err:   fmt.Errorf("must be low, medium or high, got %q", effort),
		}
	}
	return plan{
		query:     query,
		limit:     limit,
		threshold: threshold,
		hints:     ai.CallHints{Model: model, ReasoningEffort: effort},
	}, nil
}
