package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/corpora"
	"github.com/poiesic/corpora/ai/mock"
	"github.com/poiesic/corpora/config"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

const notesYAML = `id: notes
display_name: Lab notes
fields:
  - name: author
    type: string
    source: manual
  - name: reviewed
    type: boolean
    source: manual
  - name: tags
    type: string_list
    source: manual
`

type harness struct {
	sys *corpora.System
	dir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Blobs.Root = "mem://localhost/" + strings.ReplaceAll(t.Name(), "/", "_")
	cfg.Processing.PoolSize = 2

	sys, err := corpora.Open(cfg, corpora.InMemory(), corpora.WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	t.Cleanup(func() { sys.Close() })
	return &harness{sys: sys, dir: t.TempDir()}
}

// run executes one command line against the shared system.
func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	open := func(*cli.Context) (*corpora.System, func() error, error) {
		return h.sys, func() error { return nil }, nil
	}
	var stdout, stderr bytes.Buffer
	app := newApp(open)
	app.Writer = &stdout
	app.ErrWriter = &stderr
	err := app.Run(append([]string{"corpora", "--log-level", "error"}, args...))
	return stdout.String(), err
}

func (h *harness) file(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (h *harness) importNotes(t *testing.T) {
	t.Helper()
	_, err := h.run(t, "collections", "import", h.file(t, "notes.yaml", notesYAML))
	require.NoError(t, err)
}

func (h *harness) onlyDocument(t *testing.T) *core.Document {
	t.Helper()
	docs, err := h.sys.Manager().ListByStatus(context.Background(), core.StatusReady, storage.ListOptions{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	return docs[0]
}

func TestCollections(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "collections", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No collections")

	out, err = h.run(t, "collections", "import", h.file(t, "notes.yaml", notesYAML))
	require.NoError(t, err)
	assert.Contains(t, out, "notes (schema version 1)")

	out, err = h.run(t, "collections", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Lab notes")

	_, err = h.run(t, "collections", "import")
	assert.ErrorIs(t, err, errUsage)
}

func TestIngestSearchAsk(t *testing.T) {
	h := newHarness(t)
	h.importNotes(t)

	out, err := h.run(t, "ingest", "--collection", "notes", "--field", "author=Ada", "--field", "reviewed=true",
		"--wait", h.file(t, "bench.txt", "Gate driver bench results"))
	require.NoError(t, err)
	assert.Contains(t, out, "bench.txt  ready")

	doc := h.onlyDocument(t)
	assert.Equal(t, "Ada", doc.Content["author"])
	assert.Equal(t, true, doc.Content["reviewed"])

	out, err = h.run(t, "status", doc.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Status:     ready")
	assert.Contains(t, out, "Summary:    Contents of bench.txt")

	out, err = h.run(t, "search", "--threshold=-1", "gate driver bench")
	require.NoError(t, err)
	assert.Contains(t, out, "Routed to notes")
	assert.Contains(t, out, "bench.txt  [notes] semantic")

	out, err = h.run(t, "search", "--threshold=-1", "--json", "gate driver bench")
	require.NoError(t, err)
	assert.Contains(t, out, `"documentId": "`+doc.ID+`"`)

	out, err = h.run(t, "ask", "what did the bench show?")
	require.NoError(t, err)
	assert.Contains(t, out, "See bench.txt")
	assert.Contains(t, out, "bench.txt (notes)")

	out, err = h.run(t, "stats", "--collection", "notes")
	require.NoError(t, err)
	assert.Contains(t, out, "Documents: 1")
	assert.Contains(t, out, "With embedding: 1 (100.0%)")

	out, err = h.run(t, "stats", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"total": 1`)
}

func TestIngest_Rejects(t *testing.T) {
	h := newHarness(t)
	h.importNotes(t)

	_, err := h.run(t, "ingest", "--collection", "notes", "--field", "colour=red", h.file(t, "a.txt", "a"))
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "colour", verr.Field)

	_, err = h.run(t, "ingest", "--collection", "missing", h.file(t, "b.txt", "b"))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	out, err := h.run(t, "ingest", "--collection", "notes", filepath.Join(h.dir, "nope.txt"))
	assert.ErrorContains(t, err, "1 of 1 files failed")
	assert.Contains(t, out, "nope.txt")
}

func TestDocumentCommands(t *testing.T) {
	h := newHarness(t)
	h.importNotes(t)

	_, err := h.run(t, "ingest", "--collection", "notes", "--wait", h.file(t, "bench.txt", "bench"))
	require.NoError(t, err)
	doc := h.onlyDocument(t)

	_, err = h.run(t, "reset", doc.ID)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	_, err = h.run(t, "status")
	assert.ErrorIs(t, err, errUsage)

	out, err := h.run(t, "status", "--watch", doc.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "ready")

	out, err = h.run(t, "process", "--stage", "all")
	require.NoError(t, err)
	assert.Contains(t, out, "Processed 0 documents")

	_, err = h.run(t, "process", "--stage", "bogus")
	assert.ErrorContains(t, err, `invalid stage "bogus"`)

	out, err = h.run(t, "reembed", "--collection", "notes", "--batch-size", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "Reembedded 1 documents")

	out, err = h.run(t, "delete", doc.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted "+doc.ID)

	_, err = h.run(t, "status", doc.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	out, err = h.run(t, "purge-orphans")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 orphaned elements")
}

func TestParseFields(t *testing.T) {
	col := &core.Collection{Fields: []core.FieldDefinition{
		{Name: "author", Type: core.FieldString},
		{Name: "reviewed", Type: core.FieldBoolean},
		{Name: "tags", Type: core.FieldStringList},
		{Name: "pages", Type: core.FieldNumber},
	}}

	got, err := parseFields(col, []string{"author=Ada", "reviewed=false", "tags=a, b,,c", "pages=12"})
	require.NoError(t, err)
	assert.Equal(t, core.Content{
		"author":   "Ada",
		"reviewed": false,
		"tags":     []string{"a", "b", "c"},
		"pages":    "12",
	}, got)

	for _, bad := range []string{"author", "=x", "reviewed=maybe", "colour=red"} {
		_, err := parseFields(col, []string{bad})
		assert.Error(t, err, bad)
	}
}

func TestSetupLogger_InvalidLevel(t *testing.T) {
	app := newApp(func(*cli.Context) (*corpora.System, func() error, error) {
		t.Fatal("opener should not be called")
		return nil, nil, nil
	})
	err := app.Run([]string{"corpora", "--log-level", "loud", "stats"})
	assert.ErrorContains(t, err, `invalid log level "loud"`)
}
