package ingestion

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/ai/mock"
	"github.com/poiesic/corpora/blob"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/lifecycle"
	"github.com/poiesic/corpora/storage"
	"github.com/poiesic/corpora/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type testEnv struct {
	repos     *badger.Repositories
	manager   *lifecycle.Manager
	blobs     *blob.Store
	provider  *mock.MockProvider
	processor *Processor
}

func setupProcessor(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	return setupProcessorWith(t, nil, opts...)
}

// setupProcessorWith builds the manager over repositories returned by wrap,
// so tests can inject store failures.
func setupProcessorWith(t *testing.T, wrap func(*badger.Repositories) (storage.DocumentRepository, storage.ElementRepository), opts ...Option) *testEnv {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	_, err = repos.Collections.AddCollection(context.Background(), &core.Collection{
		ID:          "datasheets",
		DisplayName: "Datasheets",
		Fields: []core.FieldDefinition{
			{Name: "vendor", Type: core.FieldString, Source: core.SourceGenerated},
		},
		Embedding: core.EmbeddingConfig{Model: "embeddinggemma"},
	})
	require.NoError(t, err)

	var documents storage.DocumentRepository = repos.Documents
	var elements storage.ElementRepository = repos.Elements
	if wrap != nil {
		documents, elements = wrap(repos)
	}
	manager, err := lifecycle.NewManager(repos.Collections, documents, elements)
	require.NoError(t, err)

	store, err := blob.NewStore("mem://localhost/" + strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)

	provider := mock.NewMockProvider()
	p, err := NewProcessor(manager, store, provider, append([]Option{WithPoolSize(2)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(p.Release)

	return &testEnv{repos: repos, manager: manager, blobs: store, provider: provider, processor: p}
}

// upload stores data and creates a pending document for it. A nil data
// creates the document without a blob behind it.
func (e *testEnv) upload(t *testing.T, filename string, data []byte) *core.Document {
	t.Helper()
	ctx := context.Background()
	uri := e.blobs.URI("datasheets", filename)
	if data != nil {
		var err error
		uri, err = e.blobs.Put(ctx, "datasheets", filename, bytes.NewReader(data))
		require.NoError(t, err)
	}
	doc, err := e.manager.Create(ctx, lifecycle.Upload{
		CollectionID: "datasheets",
		StorageURI:   uri,
		File:         core.FileMetadata{Filename: filename},
	})
	require.NoError(t, err)
	return doc
}

func spreadsheet(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Part", "Voltage"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"AHV85003", 1200}))
	_, err := f.NewSheet("Pinout")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Pinout", "A1", &[]any{"Pin", "Name"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestNewProcessor_RequiresDependencies(t *testing.T) {
	env := setupProcessor(t)

	_, err := NewProcessor(nil, env.blobs, env.provider)
	assert.ErrorIs(t, err, ErrManagerRequired)
	_, err = NewProcessor(env.manager, nil, env.provider)
	assert.ErrorIs(t, err, ErrBlobSourceRequired)
	_, err = NewProcessor(env.manager, env.blobs, nil)
	assert.ErrorIs(t, err, ErrAIProviderRequired)
	_, err = NewProcessor(env.manager, env.blobs, env.provider, WithTimeout(0))
	assert.Error(t, err)
}

func TestProcess_TextDocument(t *testing.T) {
	env := setupProcessor(t)
	doc := env.upload(t, "notes.txt", []byte("gate driver notes"))

	got, err := env.processor.Process(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, got.Status)
	assert.Equal(t, "Contents of notes.txt", got.Content.Summary())
	assert.Equal(t, "text/plain", got.File.ContentType)
	assert.EqualValues(t, 17, got.File.Size)
	require.NotNil(t, got.ProcessedAt)

	require.NotNil(t, got.Embedding)
	assert.Equal(t, "embeddinggemma", got.Embedding.Model)
	var sum float64
	for _, v := range got.Embedding.Vector {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
	assert.Equal(t, 1, env.provider.GetMockAnalyzer().CallCount())
}

func TestProcess_SpreadsheetCreatesElements(t *testing.T) {
	env := setupProcessor(t, WithEmbeddingModel("test-embedder"))
	doc := env.upload(t, "parts.xlsx", spreadsheet(t))

	got, err := env.processor.Process(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, got.Status)
	assert.Equal(t, "test-embedder", got.Embedding.Model)
	counts, ok := got.Content[core.ContentCounts].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 2, counts["tables"])

	els, err := env.manager.Elements(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, els, 2)
	for _, el := range els {
		assert.Equal(t, core.ElementReady, el.Status)
		assert.Equal(t, core.ElementTable, el.Type)
		require.NotNil(t, el.Embedding)
		assert.Equal(t, "test-embedder", el.Embedding.Model)
	}
}

func TestProcess_ElementFailureDoesNotFailDocument(t *testing.T) {
	env := setupProcessor(t)
	env.provider.GetMockEmbedder().EmbedTextsFunc = func(ctx context.Context, texts []string, hint ai.TaskHint) ([][]float32, error) {
		return nil, errors.New("batch endpoint down")
	}
	doc := env.upload(t, "parts.xlsx", spreadsheet(t))

	got, err := env.processor.Process(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, got.Status)

	els, err := env.manager.Elements(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, els, 2)
	for _, el := range els {
		assert.Equal(t, core.ElementError, el.Status)
		assert.Equal(t, "batch endpoint down", el.Error)
		assert.Nil(t, el.Embedding)
	}
}

func TestProcess_Failures(t *testing.T) {
	t.Run("analyzer error", func(t *testing.T) {
		env := setupProcessor(t)
		env.provider.GetMockAnalyzer().AnalyzeFunc = func(ctx context.Context, req ai.AnalysisRequest) (*ai.Analysis, error) {
			return nil, errors.New("model overloaded")
		}
		doc := env.upload(t, "notes.txt", []byte("x"))

		_, err := env.processor.Process(context.Background(), doc.ID)
		var ue *core.UpstreamError
		require.ErrorAs(t, err, &ue)

		got, err := env.manager.Get(context.Background(), doc.ID)
		require.NoError(t, err)
		assert.Equal(t, core.StatusError, got.Status)
		assert.Contains(t, got.Error, "model overloaded")
	})

	t.Run("missing blob", func(t *testing.T) {
		env := setupProcessor(t)
		doc := env.upload(t, "gone.pdf", nil)

		_, err := env.processor.Process(context.Background(), doc.ID)
		assert.ErrorIs(t, err, blob.ErrBlobNotFound)

		got, err := env.manager.Get(context.Background(), doc.ID)
		require.NoError(t, err)
		assert.Equal(t, core.StatusError, got.Status)
	})

	t.Run("schema violation", func(t *testing.T) {
		env := setupProcessor(t)
		env.provider.GetMockAnalyzer().AnalyzeFunc = func(ctx context.Context, req ai.AnalysisRequest) (*ai.Analysis, error) {
			return &ai.Analysis{Content: core.Content{"vendor": 7}}, nil
		}
		doc := env.upload(t, "notes.txt", []byte("x"))

		_, err := env.processor.Process(context.Background(), doc.ID)
		assert.ErrorIs(t, err, core.ErrFieldType)

		got, err := env.manager.Get(context.Background(), doc.ID)
		require.NoError(t, err)
		assert.Equal(t, core.StatusError, got.Status)
	})

	t.Run("embedding error", func(t *testing.T) {
		env := setupProcessor(t)
		env.provider.GetMockEmbedder().EmbedTextFunc = func(ctx context.Context, text string, hint ai.TaskHint) ([]float32, error) {
			return nil, errors.New("embedder offline")
		}
		doc := env.upload(t, "notes.txt", []byte("x"))

		_, err := env.processor.Process(context.Background(), doc.ID)
		require.Error(t, err)

		got, err := env.manager.Get(context.Background(), doc.ID)
		require.NoError(t, err)
		assert.Equal(t, core.StatusError, got.Status)
		assert.Nil(t, got.Embedding)
		assert.Equal(t, "Contents of notes.txt", got.Content.Summary(), "analysis output is kept")
	})
}

func TestProcess_DimensionMismatch(t *testing.T) {
	env := setupProcessor(t)
	ctx := context.Background()
	c, err := env.manager.Collection(ctx, "datasheets")
	require.NoError(t, err)
	c.Embedding.Dimensions = 3
	_, err = env.repos.Collections.UpdateCollection(ctx, c)
	require.NoError(t, err)

	env.provider.GetMockEmbedder().EmbedTextFunc = func(ctx context.Context, text string, hint ai.TaskHint) ([]float32, error) {
		return []float32{1, 2}, nil
	}
	doc := env.upload(t, "notes.txt", []byte("x"))
	_, err = env.processor.Process(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	got, err := env.manager.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, got.Status)
}

// readyWriteFailure rejects every write that would move a document to ready.
type readyWriteFailure struct {
	storage.DocumentRepository
}

func (r *readyWriteFailure) CompareAndSwap(ctx context.Context, id string, expected core.DocumentStatus, mutate func(*core.Document) error) (*core.Document, error) {
	current, err := r.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	preview := *current
	if err := mutate(&preview); err == nil && preview.Status == core.StatusReady {
		return nil, errors.New("transient store failure")
	}
	return r.DocumentRepository.CompareAndSwap(ctx, id, expected, mutate)
}

// elementReadFailure fails GetElements once broken is set.
type elementReadFailure struct {
	storage.ElementRepository
	broken atomic.Bool
}

func (e *elementReadFailure) GetElements(ctx context.Context, parentID string) ([]*core.Element, error) {
	if e.broken.Load() {
		return nil, errors.New("element index unavailable")
	}
	return e.ElementRepository.GetElements(ctx, parentID)
}

func TestProcess_ReadyWriteFailureFailsDocument(t *testing.T) {
	env := setupProcessorWith(t, func(repos *badger.Repositories) (storage.DocumentRepository, storage.ElementRepository) {
		return &readyWriteFailure{DocumentRepository: repos.Documents}, repos.Elements
	})
	ctx := context.Background()
	doc := env.upload(t, "notes.txt", []byte("gate driver notes"))

	_, err := env.processor.Process(ctx, doc.ID)
	assert.ErrorContains(t, err, "transient store failure")

	got, err := env.manager.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, got.Status)
	assert.Contains(t, got.Error, "transient store failure")

	reset, err := env.manager.Reset(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, reset.Status)
}

func TestProcess_ElementLoadFailureFailsDocument(t *testing.T) {
	var elements *elementReadFailure
	env := setupProcessorWith(t, func(repos *badger.Repositories) (storage.DocumentRepository, storage.ElementRepository) {
		elements = &elementReadFailure{ElementRepository: repos.Elements}
		return repos.Documents, elements
	})
	ctx := context.Background()
	doc := env.upload(t, "parts.xlsx", spreadsheet(t))

	report, err := env.processor.ProcessPending(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 1, report.Succeeded)

	elements.broken.Store(true)
	_, err = env.processor.Process(ctx, doc.ID)
	assert.ErrorContains(t, err, "element index unavailable")

	got, err := env.manager.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, got.Status)
	assert.Contains(t, got.Error, "element index unavailable")
	assert.Nil(t, got.Embedding)

	elements.broken.Store(false)
	_, err = env.manager.Reset(ctx, doc.ID)
	require.NoError(t, err)
	got, err = env.processor.Process(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, got.Status)

	els, err := env.manager.Elements(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, els, 2)
	for _, el := range els {
		assert.Equal(t, core.ElementReady, el.Status)
	}
}

func TestProcess_ElementDimensionMismatch(t *testing.T) {
	env := setupProcessor(t)
	ctx := context.Background()
	c, err := env.manager.Collection(ctx, "datasheets")
	require.NoError(t, err)
	c.Embedding.Dimensions = 3
	_, err = env.repos.Collections.UpdateCollection(ctx, c)
	require.NoError(t, err)

	env.provider.GetMockEmbedder().EmbedTextFunc = func(ctx context.Context, text string, hint ai.TaskHint) ([]float32, error) {
		return []float32{1, 2, 2}, nil
	}
	env.provider.GetMockEmbedder().EmbedTextsFunc = func(ctx context.Context, texts []string, hint ai.TaskHint) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{3, 4}
		}
		return out, nil
	}
	doc := env.upload(t, "parts.xlsx", spreadsheet(t))

	got, err := env.processor.Process(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, got.Status)

	els, err := env.manager.Elements(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, els, 2)
	for _, el := range els {
		assert.Equal(t, core.ElementError, el.Status)
		assert.Contains(t, el.Error, ErrDimensionMismatch.Error())
		assert.Nil(t, el.Embedding)
	}
}

func TestProcess_SkipsCompletedDocuments(t *testing.T) {
	env := setupProcessor(t)
	doc := env.upload(t, "notes.txt", []byte("x"))
	first, err := env.processor.Process(context.Background(), doc.ID)
	require.NoError(t, err)
	calls := env.provider.GetMockEmbedder().CallCount()

	again, err := env.processor.Process(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, again.Status)
	assert.Equal(t, first.Embedding.Vector, again.Embedding.Vector)
	assert.Equal(t, calls, env.provider.GetMockEmbedder().CallCount(), "no second embedding")
	assert.Equal(t, 1, env.provider.GetMockAnalyzer().CallCount())
}

func TestProcess_CallerCancellationDoesNotAbortJob(t *testing.T) {
	env := setupProcessor(t)
	doc := env.upload(t, "notes.txt", []byte("x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := env.processor.Process(ctx, doc.ID)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
	env.processor.Wait()

	got, err := env.manager.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, got.Status)
}

func TestSubmit(t *testing.T) {
	env := setupProcessor(t)
	a := env.upload(t, "a.txt", []byte("a"))
	b := env.upload(t, "b.txt", []byte("b"))

	require.NoError(t, env.processor.Submit(a.ID))
	require.NoError(t, env.processor.Submit(b.ID))
	require.NoError(t, env.processor.Submit(a.ID))
	env.processor.Wait()

	for _, id := range []string{a.ID, b.ID} {
		got, err := env.manager.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, core.StatusReady, got.Status)
	}
	assert.Equal(t, 2, env.provider.GetMockAnalyzer().CallCount(), "duplicate submit is skipped")
}

func TestSweeps(t *testing.T) {
	env := setupProcessor(t)
	ctx := context.Background()
	env.upload(t, "a.txt", []byte("a"))
	env.upload(t, "b.txt", []byte("b"))
	broken := env.upload(t, "c.pdf", nil)

	report, err := env.processor.ProcessPending(ctx, "")
	var pf *core.PartialFailure
	require.ErrorAs(t, err, &pf)
	require.NotNil(t, report)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.Succeeded)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, broken.ID, report.Failures[0].ID)
	assert.Equal(t, "pending", report.Failures[0].Stage)

	report, err = env.processor.ProcessReadyForEmbedding(ctx, "datasheets")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 2, report.Succeeded)

	stats, err := env.manager.Stats(ctx, "datasheets")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ByStatus[core.StatusReady])
	assert.Equal(t, 1, stats.ByStatus[core.StatusError])
	assert.InDelta(t, 2.0/3.0, stats.Coverage, 1e-9)

	report, err = env.processor.ProcessAll(ctx, "")
	require.NoError(t, err, "nothing left to do")
	assert.Zero(t, report.Attempted)
}
