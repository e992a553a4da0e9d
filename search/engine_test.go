package search

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/ai/mock"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testQuery    = "AHV85003 isolated gate driver"
	testSemantic = "isolated gate driver"
)

type fixture struct {
	repos    *badger.Repositories
	provider *mock.MockProvider
	engine   *Engine
}

func setupEngine(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	provider := mock.NewMockProvider()
	provider.GetMockEmbedder().WithVectors(map[string][]float32{
		testSemantic: {1, 0, 0},
		testQuery:    {0.6, 0.8, 0},
	})

	engine, err := NewEngine(repos.Documents, repos.Elements, provider, opts...)
	require.NoError(t, err)
	return &fixture{repos: repos, provider: provider, engine: engine}
}

func (f *fixture) addDocument(t *testing.T, id, collection string, status core.DocumentStatus, keywords []string, vector []float32) {
	t.Helper()
	doc := &core.Document{
		ID:           id,
		CollectionID: collection,
		StorageURI:   "mem://localhost/blobs/" + collection + "/" + id + ".pdf",
		File:         core.FileMetadata{Filename: id + ".pdf", ContentType: "application/pdf"},
		Status:       status,
		Content: core.Content{
			core.ContentSummary:  "Summary of " + id,
			core.ContentKeywords: keywords,
		},
	}
	if vector != nil {
		doc.Embedding = &core.Embedding{Vector: vector, Model: "test"}
	}
	require.NoError(t, f.repos.Documents.AddDocument(context.Background(), doc))
}

func (f *fixture) addElement(t *testing.T, parent, collection string, ordinal int, title string, identifiers []string, vector []float32) *core.Element {
	t.Helper()
	el := &core.Element{
		ID:             core.ElementIDFor(parent, core.ElementTable, ordinal),
		ParentID:       parent,
		CollectionID:   collection,
		Type:           core.ElementTable,
		Payload:        core.ElementPayload{Title: title, PageNumber: 4, Identifiers: identifiers},
		ParentFilename: parent + ".pdf",
		ParentURI:      "mem://localhost/blobs/" + collection + "/" + parent + ".pdf",
		Status:         core.ElementReady,
		Embedding:      &core.Embedding{Vector: vector, Model: "test"},
	}
	require.NoError(t, f.repos.Elements.PutElements(context.Background(), el))
	return el
}

// seedDatasheets builds the gate driver corpus: one exact document hit, one
// exact table hit, two semantic-only documents, an unsearchable pending
// document and a table whose parent no longer exists.
func (f *fixture) seedDatasheets(t *testing.T) {
	t.Helper()
	f.addDocument(t, "ahv85003", "datasheets", core.StatusReady, []string{"AHV85003", "gate driver"}, []float32{1, 0, 0})
	f.addDocument(t, "ahv85110", "datasheets", core.StatusReady, []string{"AHV85110"}, []float32{0.8, 0.6, 0})
	f.addDocument(t, "notes", "datasheets", core.StatusReady, nil, []float32{0, 0, 1})
	f.addDocument(t, "draft", "datasheets", core.StatusPending, []string{"AHV85003"}, nil)
	f.addElement(t, "ahv85003", "datasheets", 0, "Absolute maximum ratings", []string{"AHV85003"}, []float32{0, 1, 0})
	f.addElement(t, "deleted", "datasheets", 0, "Orphaned table", []string{"AHV85003"}, []float32{0.6, 0.8, 0})
}

func testQueryFor(debug bool) Query {
	return Query{
		Text:          testQuery,
		ExactTerms:    []string{"AHV85003"},
		SemanticTerms: []string{testSemantic},
		Debug:         debug,
	}
}

func keys(results []*core.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Key()
	}
	return out
}

func TestNewEngine_Validation(t *testing.T) {
	f := setupEngine(t)

	_, err := NewEngine(nil, f.repos.Elements, f.provider)
	assert.ErrorIs(t, err, ErrDocumentRepositoryRequired)

	_, err = NewEngine(f.repos.Documents, nil, f.provider)
	assert.ErrorIs(t, err, ErrElementRepositoryRequired)

	_, err = NewEngine(f.repos.Documents, f.repos.Elements, nil)
	assert.ErrorIs(t, err, ErrAIProviderRequired)

	_, err = NewEngine(f.repos.Documents, f.repos.Elements, f.provider, WithRerankTopN(1))
	assert.Error(t, err)
}

func TestSearchCollection_HybridRanking(t *testing.T) {
	f := setupEngine(t)
	f.seedDatasheets(t)
	element := core.ElementIDFor("ahv85003", core.ElementTable, 0)

	results, err := f.engine.SearchCollection(context.Background(), "datasheets", testQueryFor(false))
	require.NoError(t, err)

	require.Equal(t, []string{
		"document:ahv85003",
		elementKey(element),
		"document:ahv85110",
		"document:notes",
	}, keys(results))

	// Exact hits share the fixed exact score
	assert.Equal(t, core.ExactScore, results[0].Score)
	assert.Equal(t, core.ExactMatch{Term: "AHV85003"}, results[0].Match)
	assert.Equal(t, core.ExactScore, results[1].Score)

	em, ok := results[1].Element()
	require.True(t, ok)
	assert.True(t, em.Exact)
	assert.Equal(t, "ahv85003", em.ParentDocumentID)
	assert.Equal(t, "Absolute maximum ratings", em.Title)
	assert.Equal(t, 4, em.PageNumber)
	assert.Equal(t, "ahv85003.pdf", results[1].Filename)
	assert.Equal(t, "Absolute maximum ratings", results[1].Summary)

	// Best semantic signal wins: the full query at 0.96
	assert.InDelta(t, SemanticCeiling*0.96, results[2].Score, 1e-5)
	assert.Equal(t, core.SemanticMatch{}, results[2].Match)
	assert.InDelta(t, 0, results[3].Score, 1e-6)

	for _, r := range results {
		assert.Nil(t, r.Breakdown)
		assert.Less(t, r.Score, 1.0)
	}
}

func TestSearchCollection_ExactOutranksSemantic(t *testing.T) {
	f := setupEngine(t)
	// A perfect semantic match still ranks below a literal hit.
	f.addDocument(t, "semantic", "datasheets", core.StatusReady, nil, []float32{0.6, 0.8, 0})
	f.addDocument(t, "literal", "datasheets", core.StatusReady, []string{"AHV85003"}, []float32{0, 0, 1})

	results, err := f.engine.SearchCollection(context.Background(), "datasheets", testQueryFor(false))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "literal", results[0].DocumentID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearchCollection_Deterministic(t *testing.T) {
	f := setupEngine(t)
	f.seedDatasheets(t)

	first, err := f.engine.SearchCollection(context.Background(), "datasheets", testQueryFor(false))
	require.NoError(t, err)
	for range 5 {
		again, err := f.engine.SearchCollection(context.Background(), "datasheets", testQueryFor(false))
		require.NoError(t, err)
		assert.Equal(t, keys(first), keys(again))
	}
}

func TestSearchCollection_DebugBreakdown(t *testing.T) {
	f := setupEngine(t)
	f.seedDatasheets(t)

	plain, err := f.engine.SearchCollection(context.Background(), "datasheets", testQueryFor(false))
	require.NoError(t, err)
	debug, err := f.engine.SearchCollection(context.Background(), "datasheets", testQueryFor(true))
	require.NoError(t, err)

	// Debug never changes ranking
	require.Equal(t, keys(plain), keys(debug))
	for i := range plain {
		assert.Equal(t, plain[i].Score, debug[i].Score)
		require.NotNil(t, debug[i].Breakdown)
		assert.Equal(t, debug[i].Score, debug[i].Breakdown.FinalScore)
	}

	exact := debug[0].Breakdown
	assert.Equal(t, "exact", exact.Combination)
	assert.Equal(t, []core.TermMatch{{Term: "AHV85003", Matched: true}}, exact.ExactTerms)

	semantic := debug[2].Breakdown
	assert.Equal(t, "max", semantic.Combination)
	assert.Equal(t, []core.TermMatch{{Term: "AHV85003", Matched: false}}, semantic.ExactTerms)
	require.Len(t, semantic.SemanticTerms, 1)
	assert.Equal(t, testSemantic, semantic.SemanticTerms[0].Term)
	assert.InDelta(t, 0.8, semantic.SemanticTerms[0].Similarity, 1e-5)
	require.NotNil(t, semantic.FullQuery)
	assert.Equal(t, testQuery, semantic.FullQuery.Term)
	assert.InDelta(t, 0.96, semantic.FullQuery.Similarity, 1e-5)
}

func TestSearchCollection_ScopedToCollection(t *testing.T) {
	f := setupEngine(t)
	f.seedDatasheets(t)
	f.addDocument(t, "appnote", "appnotes", core.StatusReady, []string{"AHV85003"}, []float32{1, 0, 0})

	results, err := f.engine.SearchCollection(context.Background(), "appnotes", testQueryFor(false))
	require.NoError(t, err)
	assert.Equal(t, []string{"document:appnote"}, keys(results))
}

type recordingMonitor struct {
	mu    sync.Mutex
	stale int
	done  int
}

func (m *recordingMonitor) Start(string, string) {}

func (m *recordingMonitor) AfterExactPass(string, int, int) {}

func (m *recordingMonitor) AfterSemanticPass(string, int, int) {}

func (m *recordingMonitor) StaleElementsDropped(_ string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stale += n
}

func (m *recordingMonitor) Finish(string, []*core.SearchResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done++
}

func TestSearchCollection_DropsStaleElements(t *testing.T) {
	f := setupEngine(t)
	f.seedDatasheets(t)
	monitor := &recordingMonitor{}

	q := testQueryFor(false)
	q.Monitor = monitor
	results, err := f.engine.SearchCollection(context.Background(), "datasheets", q)
	require.NoError(t, err)

	for _, r := range results {
		assert.NotEqual(t, "deleted", r.DocumentID)
	}
	assert.Equal(t, 1, monitor.stale)
	assert.Equal(t, 1, monitor.done)
}

func TestSearchCollection_EmbedderFailure(t *testing.T) {
	f := setupEngine(t)
	f.seedDatasheets(t)
	f.provider.GetMockEmbedder().EmbedTextFunc = func(context.Context, string, ai.TaskHint) ([]float32, error) {
		return nil, errors.New("quota exceeded")
	}

	_, err := f.engine.SearchCollection(context.Background(), "datasheets", testQueryFor(false))
	var upstream *core.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "embedder", upstream.Service)
}

func TestRefine_ThresholdAndLimit(t *testing.T) {
	f := setupEngine(t)
	f.seedDatasheets(t)
	ctx := context.Background()

	search := func() []*core.SearchResult {
		results, err := f.engine.SearchCollection(ctx, "datasheets", testQueryFor(false))
		require.NoError(t, err)
		return results
	}

	all, applied, err := f.engine.Refine(ctx, search(), Refinement{Threshold: ShowAll})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Len(t, all, 4)

	// Zero keeps zero-score results, unlike a positive floor
	zero, _, err := f.engine.Refine(ctx, search(), Refinement{Threshold: 0})
	require.NoError(t, err)
	assert.Len(t, zero, 4)

	high, _, err := f.engine.Refine(ctx, search(), Refinement{Threshold: 0.9})
	require.NoError(t, err)
	assert.Len(t, high, 2)

	limited, _, err := f.engine.Refine(ctx, search(), Refinement{Threshold: ShowAll, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, keys(all[:3]), keys(limited))

	_, _, err = f.engine.Refine(ctx, search(), Refinement{Threshold: 1.5})
	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestRefine_RerankOnlyReorders(t *testing.T) {
	f := setupEngine(t, WithRerankExplanations(1))
	f.seedDatasheets(t)
	ctx := context.Background()

	f.provider.GetMockReranker().RerankFunc = func(_ context.Context, _ string, candidates []ai.RerankCandidate, _ ai.CallHints) (*ai.RerankOutcome, error) {
		// Reverse, with a made-up id and a duplicate thrown in
		order := []string{"document:invented"}
		for i := len(candidates) - 1; i >= 1; i-- {
			order = append(order, candidates[i].ID, candidates[i].ID)
		}
		explanations := make(map[string]string)
		for _, c := range candidates {
			explanations[c.ID] = "because " + c.Filename
		}
		return &ai.RerankOutcome{Order: order, Explanations: explanations}, nil
	}

	results, err := f.engine.SearchCollection(ctx, "datasheets", testQueryFor(false))
	require.NoError(t, err)
	before := keys(results)

	reranked, applied, err := f.engine.Refine(ctx, results, Refinement{Query: testQuery, Threshold: ShowAll, Rerank: true})
	require.NoError(t, err)
	require.True(t, applied)

	after := keys(reranked)
	assert.ElementsMatch(t, before, after)
	// The candidate the reranker left out keeps its place at the end
	assert.Equal(t, []string{before[3], before[2], before[1], before[0]}, after)

	for pos, r := range reranked {
		require.NotNil(t, r.Rerank)
		assert.Equal(t, pos, r.Rerank.RerankPosition)
	}
	assert.Equal(t, 3, reranked[0].Rerank.OriginalPosition)
	assert.NotEmpty(t, reranked[0].Rerank.Explanation)
	assert.Empty(t, reranked[1].Rerank.Explanation)
}

func TestRefine_RerankFailureKeepsOrder(t *testing.T) {
	f := setupEngine(t)
	f.seedDatasheets(t)
	ctx := context.Background()
	f.provider.GetMockReranker().RerankFunc = func(context.Context, string, []ai.RerankCandidate, ai.CallHints) (*ai.RerankOutcome, error) {
		return nil, errors.New("model overloaded")
	}

	results, err := f.engine.SearchCollection(ctx, "datasheets", testQueryFor(false))
	require.NoError(t, err)
	before := keys(results)

	refined, applied, err := f.engine.Refine(ctx, results, Refinement{Query: testQuery, Threshold: ShowAll, Rerank: true})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, before, keys(refined))
	assert.Equal(t, 1, f.provider.GetMockReranker().CallCount())
}

func TestRefine_RerankTopN(t *testing.T) {
	f := setupEngine(t, WithRerankTopN(2))
	f.seedDatasheets(t)
	ctx := context.Background()

	var seen int
	f.provider.GetMockReranker().RerankFunc = func(_ context.Context, _ string, candidates []ai.RerankCandidate, _ ai.CallHints) (*ai.RerankOutcome, error) {
		seen = len(candidates)
		return &ai.RerankOutcome{Order: []string{candidates[1].ID, candidates[0].ID}}, nil
	}

	results, err := f.engine.SearchCollection(ctx, "datasheets", testQueryFor(false))
	require.NoError(t, err)
	before := keys(results)

	refined, applied, err := f.engine.Refine(ctx, results, Refinement{Threshold: ShowAll, Rerank: true})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 2, seen)
	assert.Equal(t, []string{before[1], before[0], before[2], before[3]}, keys(refined))
	assert.Nil(t, refined[2].Rerank)
}
