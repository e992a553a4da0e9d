package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/storage"
	"golang.org/x/sync/errgroup"
)

const (
	// ShowAll is the threshold that disables score-based pruning.
	ShowAll = -1.0

	// SemanticCeiling is the score of a perfect semantic match. It keeps every
	// semantic score below core.ExactScore.
	SemanticCeiling = 0.9

	// DefaultCandidatesPerSignal caps the nearest neighbours fetched for each
	// embedded term.
	DefaultCandidatesPerSignal = 50

	// DefaultRerankTopN is how many leading results the rerank pass reorders.
	DefaultRerankTopN = 10

	// DefaultRerankExplanations is how many reranked results keep an explanation.
	DefaultRerankExplanations = 3
)

// Engine runs hybrid retrieval against one collection at a time.
type Engine struct {
	documents          storage.DocumentRepository
	elements           storage.ElementRepository
	embedder           ai.Embedder
	reranker           ai.Reranker
	candidates         int
	rerankTopN         int
	rerankExplanations int
	logger             *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithCandidatesPerSignal caps nearest-neighbour results per embedded term.
func WithCandidatesPerSignal(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			return fmt.Errorf("candidates per signal must be at least 1, got %d", n)
		}
		e.candidates = n
		return nil
	}
}

// WithRerankTopN sets how many leading results are reranked.
func WithRerankTopN(n int) Option {
	return func(e *Engine) error {
		if n < 2 {
			return fmt.Errorf("rerank top-n must be at least 2, got %d", n)
		}
		e.rerankTopN = n
		return nil
	}
}

// WithRerankExplanations sets how many reranked results carry an explanation.
func WithRerankExplanations(n int) Option {
	return func(e *Engine) error {
		if n < 0 {
			return fmt.Errorf("rerank explanations cannot be negative, got %d", n)
		}
		e.rerankExplanations = n
		return nil
	}
}

// NewEngine creates a retrieval engine.
func NewEngine(
	documents storage.DocumentRepository,
	elements storage.ElementRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Engine, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if elements == nil {
		return nil, ErrElementRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	e := &Engine{
		documents:          documents,
		elements:           elements,
		embedder:           provider.Embedder(),
		reranker:           provider.Reranker(),
		candidates:         DefaultCandidatesPerSignal,
		rerankTopN:         DefaultRerankTopN,
		rerankExplanations: DefaultRerankExplanations,
		logger:             slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "search")
	return e, nil
}

// Query is one retrieval request. Routing has already happened.
type Query struct {
	Text          string
	ExactTerms    []string
	SemanticTerms []string
	// Debug attaches a ScoreBreakdown to every result.
	Debug   bool
	Monitor SearchMonitor
}

// signal is one embedded text of the semantic pass.
type signal struct {
	term string
	full bool
	docs []storage.DocumentMatch
	els  []storage.ElementMatch
}

// SearchCollection runs the exact and semantic passes over one collection and
// returns every candidate, best first.
func (e *Engine) SearchCollection(ctx context.Context, collectionID string, q Query) ([]*core.SearchResult, error) {
	monitor := q.Monitor
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(collectionID, q.Text)

	m := newMerger(q)

	// 1. Exact pass
	exactDocs, exactEls := 0, 0
	for _, term := range q.ExactTerms {
		ids, err := e.documents.FindByKeyword(ctx, collectionID, term)
		if err != nil {
			return nil, core.Upstream("document store", err)
		}
		docs, err := e.documents.GetDocuments(ctx, ids...)
		if err != nil {
			return nil, core.Upstream("document store", err)
		}
		for _, doc := range docs {
			if doc.Searchable() {
				m.exactDocument(doc, term)
				exactDocs++
			}
		}

		els, err := e.elements.FindByIdentifier(ctx, collectionID, term)
		if err != nil {
			return nil, core.Upstream("document store", err)
		}
		for _, el := range els {
			m.exactElement(el, term)
			exactEls++
		}
	}
	monitor.AfterExactPass(collectionID, exactDocs, exactEls)

	// 2. Semantic pass, one embedding per term plus the full query
	signals := make([]signal, 0, len(q.SemanticTerms)+1)
	for _, term := range q.SemanticTerms {
		signals = append(signals, signal{term: term})
	}
	if q.Text != "" {
		signals = append(signals, signal{term: q.Text, full: true})
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range signals {
		g.Go(func() error {
			return e.runSignal(gctx, collectionID, &signals[i])
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Error("semantic pass failed", "collection", collectionID, "err", err)
		return nil, err
	}

	semDocs, semEls := 0, 0
	for i, s := range signals {
		for _, dm := range s.docs {
			m.semanticDocument(dm.Document, i, dm.Similarity)
			semDocs++
		}
		for _, em := range s.els {
			m.semanticElement(em.Element, i, em.Similarity)
			semEls++
		}
	}
	monitor.AfterSemanticPass(collectionID, semDocs, semEls)

	// 3. Drop elements whose parent is gone or not searchable
	dropped, err := e.dropStaleElements(ctx, m)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		monitor.StaleElementsDropped(collectionID, dropped)
	}

	results := m.results(signals)
	monitor.Finish(collectionID, results)
	return results, nil
}

func (e *Engine) runSignal(ctx context.Context, collectionID string, s *signal) error {
	vector, err := e.embedder.EmbedText(ctx, s.term, ai.TaskQuery)
	if err != nil {
		return core.Upstream("embedder", err)
	}
	vq := storage.VectorQuery{
		Vector:        core.NormalizeVector(vector),
		CollectionID:  collectionID,
		MinSimilarity: storage.NoThreshold,
		Limit:         e.candidates,
	}
	if s.docs, err = e.documents.FindSimilar(ctx, vq); err != nil {
		return core.Upstream("document store", err)
	}
	if s.els, err = e.elements.FindSimilar(ctx, vq); err != nil {
		return core.Upstream("document store", err)
	}
	return nil
}

func (e *Engine) dropStaleElements(ctx context.Context, m *merger) (int, error) {
	parents := m.elementParents()
	if len(parents) == 0 {
		return 0, nil
	}
	docs, err := e.documents.GetDocuments(ctx, parents...)
	if err != nil {
		return 0, core.Upstream("document store", err)
	}
	live := make(map[string]bool, len(docs))
	for _, d := range docs {
		if d.Searchable() {
			live[d.ID] = true
		}
	}
	return m.dropElements(func(parentID string) bool { return !live[parentID] }), nil
}

// semanticScore maps an inner-product similarity onto [0, SemanticCeiling].
func semanticScore(similarity float32) float64 {
	s := float64(similarity)
	switch {
	case s < 0:
		s = 0
	case s > 1:
		s = 1
	}
	return SemanticCeiling * s
}

// entry accumulates the evidence for one document or element.
type entry struct {
	order   int
	result  *core.SearchResult
	exact   map[string]bool
	sims    map[int]float32
	literal []string
	parent  string
	element bool
}

// merger folds pass outputs into one record per document and per element.
type merger struct {
	query   Query
	entries map[string]*entry
	ordered []*entry
}

func newMerger(q Query) *merger {
	return &merger{query: q, entries: make(map[string]*entry)}
}

func (m *merger) get(key string, build func() *entry) *entry {
	if en, ok := m.entries[key]; ok {
		return en
	}
	en := build()
	en.order = len(m.ordered)
	en.exact = make(map[string]bool)
	en.sims = make(map[int]float32)
	m.entries[key] = en
	m.ordered = append(m.ordered, en)
	return en
}

func documentKey(id string) string { return "document:" + id }

func elementKey(id core.ID) string { return "element:" + strconv.FormatUint(uint64(id), 10) }

func (m *merger) document(doc *core.Document) *entry {
	return m.get(documentKey(doc.ID), func() *entry {
		keywords := doc.Content.Keywords()
		return &entry{
			result: &core.SearchResult{
				DocumentID:   doc.ID,
				CollectionID: doc.CollectionID,
				Summary:      doc.Content.Summary(),
				Keywords:     keywords,
				Filename:     doc.File.Filename,
				StorageURI:   doc.StorageURI,
			},
			literal: keywords,
		}
	})
}

func (m *merger) elementEntry(el *core.Element) *entry {
	return m.get(elementKey(el.ID), func() *entry {
		return &entry{
			result: &core.SearchResult{
				DocumentID:   el.ParentID,
				CollectionID: el.CollectionID,
				Summary:      elementSummary(el),
				Keywords:     el.Payload.Identifiers,
				Filename:     el.ParentFilename,
				StorageURI:   el.ParentURI,
				Match: core.ElementMatch{
					ElementID:        el.ID,
					ElementType:      el.Type,
					Title:            el.Payload.Title,
					PageNumber:       el.Payload.PageNumber,
					ParentDocumentID: el.ParentID,
				},
			},
			literal: el.Payload.Identifiers,
			parent:  el.ParentID,
			element: true,
		}
	})
}

func elementSummary(el *core.Element) string {
	for _, s := range []string{el.Payload.Description, el.Payload.Caption, el.Payload.Title} {
		if s != "" {
			return s
		}
	}
	return string(el.Type)
}

func (m *merger) exactDocument(doc *core.Document, term string) {
	m.document(doc).exact[term] = true
}

func (m *merger) exactElement(el *core.Element, term string) {
	m.elementEntry(el).exact[term] = true
}

func (m *merger) semanticDocument(doc *core.Document, signal int, similarity float32) {
	en := m.document(doc)
	if prev, ok := en.sims[signal]; !ok || similarity > prev {
		en.sims[signal] = similarity
	}
}

func (m *merger) semanticElement(el *core.Element, signal int, similarity float32) {
	en := m.elementEntry(el)
	if prev, ok := en.sims[signal]; !ok || similarity > prev {
		en.sims[signal] = similarity
	}
}

func (m *merger) elementParents() []string {
	seen := make(map[string]bool)
	var out []string
	for _, en := range m.ordered {
		if en.element && !seen[en.parent] {
			seen[en.parent] = true
			out = append(out, en.parent)
		}
	}
	return out
}

func (m *merger) dropElements(stale func(parentID string) bool) int {
	kept := m.ordered[:0]
	dropped := 0
	for _, en := range m.ordered {
		if en.element && stale(en.parent) {
			dropped++
			continue
		}
		kept = append(kept, en)
	}
	m.ordered = kept
	return dropped
}

// results scores every entry and sorts them, keeping discovery order on ties.
func (m *merger) results(signals []signal) []*core.SearchResult {
	out := make([]*core.SearchResult, 0, len(m.ordered))
	for _, en := range m.ordered {
		r := en.result
		matchedTerm := ""
		for _, term := range m.query.ExactTerms {
			if en.exact[term] {
				matchedTerm = term
				break
			}
		}

		combination := "max"
		if matchedTerm != "" {
			combination = "exact"
			r.Score = core.ExactScore
		} else {
			for _, sim := range en.sims {
				r.Score = max(r.Score, semanticScore(sim))
			}
		}

		switch match := r.Match.(type) {
		case core.ElementMatch:
			match.Exact = matchedTerm != ""
			r.Match = match
		default:
			if matchedTerm != "" {
				r.Match = core.ExactMatch{Term: matchedTerm}
			} else {
				r.Match = core.SemanticMatch{}
			}
		}

		if m.query.Debug {
			r.Breakdown = m.breakdown(en, signals, combination)
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func (m *merger) breakdown(en *entry, signals []signal, combination string) *core.ScoreBreakdown {
	b := &core.ScoreBreakdown{
		ExactTerms:    make([]core.TermMatch, 0, len(m.query.ExactTerms)),
		SemanticTerms: make([]core.TermScore, 0, len(signals)),
		Combination:   combination,
		FinalScore:    en.result.Score,
	}
	for _, term := range m.query.ExactTerms {
		b.ExactTerms = append(b.ExactTerms, core.TermMatch{
			Term:    term,
			Matched: en.exact[term] || core.ContainsFold(en.literal, term),
		})
	}
	for i, s := range signals {
		ts := core.TermScore{Term: s.term}
		if sim, ok := en.sims[i]; ok {
			ts.Similarity = float64(sim)
			ts.Score = semanticScore(sim)
		}
		if s.full {
			b.FullQuery = &ts
			continue
		}
		b.SemanticTerms = append(b.SemanticTerms, ts)
	}
	return b
}
