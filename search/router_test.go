package search

import (
	"context"
	"testing"

	"github.com/poiesic/corpora/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_Plan(t *testing.T) {
	router, err := NewRouter(setupEngine(t).engine, DefaultPolicy())
	require.NoError(t, err)

	tests := []struct {
		name string
		c    core.Classification
		want core.Strategy
	}{
		{
			name: "no secondaries",
			c:    core.Classification{PrimaryCollection: "a", PrimaryConfidence: 0.3, Strategy: core.StrategyParallel},
			want: core.StrategyPrimaryOnly,
		},
		{
			name: "confident primary overrides classifier",
			c: core.Classification{
				PrimaryCollection: "a", PrimaryConfidence: 0.85,
				SecondaryCollections: []string{"b"}, SecondaryConfidence: 0.8,
				Strategy: core.StrategyParallel,
			},
			want: core.StrategyPrimaryOnly,
		},
		{
			name: "classifier asks for parallel",
			c: core.Classification{
				PrimaryCollection: "a", PrimaryConfidence: 0.6,
				SecondaryCollections: []string{"b"}, SecondaryConfidence: 0.2,
				Strategy: core.StrategyParallel,
			},
			want: core.StrategyParallel,
		},
		{
			name: "even split",
			c: core.Classification{
				PrimaryCollection: "a", PrimaryConfidence: 0.5,
				SecondaryCollections: []string{"b"}, SecondaryConfidence: 0.45,
				Strategy: core.StrategyPrimaryThenSecondary,
			},
			want: core.StrategyParallel,
		},
		{
			name: "clear primary",
			c: core.Classification{
				PrimaryCollection: "a", PrimaryConfidence: 0.7,
				SecondaryCollections: []string{"b"}, SecondaryConfidence: 0.2,
				Strategy: core.StrategyPrimaryOnly,
			},
			want: core.StrategyPrimaryThenSecondary,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, router.Plan(&tt.c))
		})
	}
}

func routedClassification(strategy core.Strategy, confidence float64) *core.Classification {
	return &core.Classification{
		PrimaryCollection:    "datasheets",
		PrimaryConfidence:    confidence,
		SecondaryCollections: []string{"appnotes"},
		SecondaryConfidence:  0.2,
		Strategy:             strategy,
		ExactMatchTerms:      []string{"AHV85003"},
		SemanticSearchTerms:  []string{testSemantic},
	}
}

func TestRouter_Retrieve(t *testing.T) {
	f := setupEngine(t)
	f.seedDatasheets(t)
	f.addDocument(t, "appnote", "appnotes", core.StatusReady, nil, []float32{1, 0, 0})
	ctx := context.Background()
	q := Query{Text: testQuery}

	t.Run("primary only", func(t *testing.T) {
		router, err := NewRouter(f.engine, DefaultPolicy())
		require.NoError(t, err)

		got, err := router.Retrieve(ctx, routedClassification(core.StrategyPrimaryOnly, 0.95), q)
		require.NoError(t, err)
		assert.Equal(t, core.StrategyPrimaryOnly, got.Strategy)
		assert.Equal(t, []string{"datasheets"}, got.CollectionsSearched)
		for _, r := range got.Results {
			assert.Equal(t, "datasheets", r.CollectionID)
		}
	})

	t.Run("sufficient primary pass", func(t *testing.T) {
		router, err := NewRouter(f.engine, DefaultPolicy())
		require.NoError(t, err)

		got, err := router.Retrieve(ctx, routedClassification(core.StrategyPrimaryThenSecondary, 0.6), q)
		require.NoError(t, err)
		assert.Equal(t, core.StrategyPrimaryThenSecondary, got.Strategy)
		assert.Equal(t, []string{"datasheets"}, got.CollectionsSearched)
		assert.Len(t, got.Results, 4)
	})

	t.Run("thin primary pass fans out", func(t *testing.T) {
		policy := DefaultPolicy()
		policy.MinResults = 10
		router, err := NewRouter(f.engine, policy)
		require.NoError(t, err)

		got, err := router.Retrieve(ctx, routedClassification(core.StrategyPrimaryThenSecondary, 0.6), q)
		require.NoError(t, err)
		assert.Equal(t, []string{"datasheets", "appnotes"}, got.CollectionsSearched)
		require.Len(t, got.Results, 5)
		// appnote scores 0.9 on the semantic term and slots in behind the exact hits
		assert.Equal(t, "appnote", got.Results[2].DocumentID)
	})

	t.Run("parallel", func(t *testing.T) {
		router, err := NewRouter(f.engine, DefaultPolicy())
		require.NoError(t, err)

		got, err := router.Retrieve(ctx, routedClassification(core.StrategyParallel, 0.6), q)
		require.NoError(t, err)
		assert.Equal(t, core.StrategyParallel, got.Strategy)
		assert.Equal(t, []string{"datasheets", "appnotes"}, got.CollectionsSearched)
		assert.Len(t, got.Results, 5)
	})
}

func TestNewRouter_RequiresEngine(t *testing.T) {
	_, err := NewRouter(nil, DefaultPolicy())
	assert.ErrorIs(t, err, ErrEngineRequired)
}
