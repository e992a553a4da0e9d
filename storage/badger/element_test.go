package badger

import (
	"testing"

	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestElement(parentID string, ordinal int, idents ...string) *core.Element {
	return &core.Element{
		ID:             core.ElementIDFor(parentID, core.ElementTable, ordinal),
		ParentID:       parentID,
		CollectionID:   "datasheets",
		Type:           core.ElementTable,
		Payload:        core.ElementPayload{Title: "Ordering Information", Identifiers: idents, PageNumber: 2},
		ParentFilename: parentID + ".pdf",
		Status:         core.ElementPending,
	}
}

func TestElementRepository_PutIsIdempotent(t *testing.T) {
	repos, ctx := setupDocuments(t)

	el := newTestElement("doc-1", 0, "AHV85003")
	require.NoError(t, repos.Elements.PutElements(ctx, el))
	created := el.CreatedAt

	again := newTestElement("doc-1", 0, "AHV85003")
	require.NoError(t, repos.Elements.PutElements(ctx, again))
	assert.Equal(t, created, again.CreatedAt)

	elements, err := repos.Elements.GetElements(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, elements, 1)

	found, err := repos.Elements.FindByIdentifier(ctx, "datasheets", "AHV85003")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestElementRepository_FindByIdentifier(t *testing.T) {
	repos, ctx := setupDocuments(t)

	require.NoError(t, repos.Elements.PutElements(ctx,
		newTestElement("doc-1", 0, "AHV85003", "AHV85003-EVB"),
		newTestElement("doc-2", 0, "ahv85003"),
		newTestElement("doc-2", 1, "LT3045"),
	))

	found, err := repos.Elements.FindByIdentifier(ctx, "datasheets", "ahv85003")
	require.NoError(t, err)
	require.Len(t, found, 2)
	parents := []string{found[0].ParentID, found[1].ParentID}
	assert.ElementsMatch(t, []string{"doc-1", "doc-2"}, parents)

	found, err = repos.Elements.FindByIdentifier(ctx, "appnotes", "AHV85003")
	require.NoError(t, err)
	assert.Empty(t, found)

	t.Run("replacing identifiers drops stale index entries", func(t *testing.T) {
		require.NoError(t, repos.Elements.PutElements(ctx, newTestElement("doc-2", 1, "LT3042")))
		found, err := repos.Elements.FindByIdentifier(ctx, "datasheets", "LT3045")
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("delete drops index entries", func(t *testing.T) {
		require.NoError(t, repos.Elements.DeleteElements(ctx, newTestElement("doc-1", 0)))
		found, err := repos.Elements.FindByIdentifier(ctx, "datasheets", "AHV85003-EVB")
		require.NoError(t, err)
		assert.Empty(t, found)
	})
}

func TestElementRepository_FindSimilar(t *testing.T) {
	repos, ctx := setupDocuments(t)

	ready := newTestElement("doc-1", 0)
	ready.Status = core.ElementReady
	ready.Embedding = &core.Embedding{Vector: []float32{0, 1}}

	pending := newTestElement("doc-1", 1)
	pending.Embedding = &core.Embedding{Vector: []float32{0, 1}}

	other := newTestElement("doc-2", 0)
	other.Status = core.ElementReady
	other.Embedding = &core.Embedding{Vector: []float32{1, 0}}

	require.NoError(t, repos.Elements.PutElements(ctx, ready, pending, other))

	matches, err := repos.Elements.FindSimilar(ctx, storage.VectorQuery{Vector: []float32{0, 1}, MinSimilarity: storage.NoThreshold})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, ready.ID, matches[0].Element.ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)

	all, err := repos.Elements.ListElements(ctx, "datasheets")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestElementRepository_RejectsInvalid(t *testing.T) {
	repos, ctx := setupDocuments(t)

	el := newTestElement("doc-1", 0)
	el.Type = core.ElementType("chart")
	assert.ErrorIs(t, repos.Elements.PutElements(ctx, el), core.ErrInvalidElement)
}
