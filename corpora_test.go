package corpora

import (
	"context"
	"strings"
	"testing"

	"github.com/poiesic/corpora/ai/mock"
	"github.com/poiesic/corpora/config"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Blobs.Root = "mem://localhost/" + strings.ReplaceAll(t.Name(), "/", "_")
	cfg.Blobs.SigningSecret = "0123456789abcdef-test-secret"
	cfg.Processing.PoolSize = 2
	return cfg
}

func openTestSystem(t *testing.T) (*System, *mock.MockProvider) {
	t.Helper()
	provider := mock.NewMockProvider()
	sys, err := Open(testConfig(t), InMemory(), WithProvider(provider))
	require.NoError(t, err)
	t.Cleanup(func() { sys.Close() })
	return sys, provider
}

func notesCollection() *core.Collection {
	return &core.Collection{
		ID:          "notes",
		DisplayName: "Lab notes",
		Fields: []core.FieldDefinition{
			{Name: "author", Type: core.FieldString, Source: core.SourceManual},
		},
	}
}

func TestOpen(t *testing.T) {
	sys, provider := openTestSystem(t)
	assert.Same(t, provider, sys.Provider())
	assert.NotNil(t, sys.Manager())
	assert.NotNil(t, sys.Processor())
	assert.NotNil(t, sys.Search())
	assert.Equal(t, sys.Config().Blobs.Root, sys.Blobs().Root())
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Path = ""
	_, err := Open(cfg, InMemory(), WithProvider(mock.NewMockProvider()))
	assert.ErrorContains(t, err, "store.path is required")
}

func TestImportCollections(t *testing.T) {
	sys, _ := openTestSystem(t)
	ctx := context.Background()

	stored, err := sys.ImportCollections(ctx, []*core.Collection{notesCollection()})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	first := stored[0].SchemaVersion

	updated := notesCollection()
	updated.Description = "Bench measurements"
	stored, err = sys.ImportCollections(ctx, []*core.Collection{updated})
	require.NoError(t, err)
	assert.Greater(t, stored[0].SchemaVersion, first, "re-import bumps the schema version")

	got, err := sys.Collections().GetCollection(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, "Bench measurements", got.Description)

	_, err = sys.ImportCollections(ctx, []*core.Collection{{ID: "bad"}})
	assert.ErrorContains(t, err, "importing collection bad")
}

func TestIngest(t *testing.T) {
	sys, _ := openTestSystem(t)
	ctx := context.Background()
	_, err := sys.ImportCollections(ctx, []*core.Collection{notesCollection()})
	require.NoError(t, err)

	doc, err := sys.Ingest(ctx, "notes", "bench.txt", strings.NewReader("Gate driver bench results"), core.Content{"author": "kim"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, doc.Status)
	assert.Equal(t, sys.Blobs().URI("notes", "bench.txt"), doc.StorageURI)

	sys.Processor().Wait()
	got, err := sys.Manager().Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, got.Status)
	assert.Equal(t, "kim", got.Content["author"])
	assert.Equal(t, "Contents of bench.txt", got.Content.Summary())
	assert.True(t, got.Searchable())

	resp, err := sys.Search().Search(ctx, search.SearchRequest{Query: "gate driver bench"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, doc.ID, resp.Results[0].DocumentID)
}

func TestIngest_Rejects(t *testing.T) {
	sys, _ := openTestSystem(t)
	ctx := context.Background()
	_, err := sys.ImportCollections(ctx, []*core.Collection{notesCollection()})
	require.NoError(t, err)

	var nf *core.NotFoundError
	_, err = sys.Ingest(ctx, "missing", "a.txt", strings.NewReader("x"), nil)
	assert.ErrorAs(t, err, &nf)

	var ve *core.ValidationError
	_, err = sys.Ingest(ctx, "notes", "a.txt", strings.NewReader("x"), core.Content{"unknown": "x"})
	require.ErrorAs(t, err, &ve)
	exists, err := sys.Blobs().Get(ctx, sys.Blobs().URI("notes", "a.txt"))
	assert.Error(t, err, "nothing is written for rejected content")
	assert.Nil(t, exists)

	_, err = sys.Ingest(ctx, "notes", "a.txt", strings.NewReader("x"), nil)
	require.NoError(t, err)
	_, err = sys.Ingest(ctx, "notes", "a.txt", strings.NewReader("y"), nil)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "filename", ve.Field)
	sys.Processor().Wait()
}

func TestNewReembedderAndWatcher(t *testing.T) {
	sys, _ := openTestSystem(t)
	r, err := sys.NewReembedder()
	require.NoError(t, err)
	report, err := r.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, report.Documents)

	_, err = sys.NewWatcher("", "")
	assert.Error(t, err, "no inbox configured")
	w, err := sys.NewWatcher(t.TempDir(), "notes")
	require.NoError(t, err)
	assert.NotNil(t, w)
}
