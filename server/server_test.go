package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/corpora"
	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/ai/mock"
	"github.com/poiesic/corpora/blob"
	"github.com/poiesic/corpora/config"
	"github.com/poiesic/corpora/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef-server-secret"

type fixture struct {
	sys      *corpora.System
	provider *mock.MockProvider
	srv      *httptest.Server
}

func setup(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Blobs.Root = "mem://localhost/" + strings.ReplaceAll(t.Name(), "/", "_")
	cfg.Blobs.SigningSecret = testSecret
	cfg.Processing.PoolSize = 2

	provider := mock.NewMockProvider()
	sys, err := corpora.Open(cfg, corpora.InMemory(), corpora.WithProvider(provider))
	require.NoError(t, err)
	t.Cleanup(func() { sys.Close() })

	_, err = sys.ImportCollections(context.Background(), []*core.Collection{{ID: "notes", DisplayName: "Lab notes"}})
	require.NoError(t, err)

	s, err := sys.NewServer()
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{sys: sys, provider: provider, srv: srv}
}

// ingest stores a text file and waits until processing settles.
func (f *fixture) ingest(t *testing.T, filename, text string) *core.Document {
	t.Helper()
	doc, err := f.sys.Ingest(context.Background(), "notes", filename, strings.NewReader(text), nil)
	require.NoError(t, err)
	f.sys.Processor().Wait()
	doc, err = f.sys.Manager().Get(context.Background(), doc.ID)
	require.NoError(t, err)
	return doc
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	f := setup(t)
	status, body := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestSearch(t *testing.T) {
	f := setup(t)
	doc := f.ingest(t, "bench.txt", "Gate driver bench results")
	require.Equal(t, core.StatusReady, doc.Status)

	status, body := f.do(t, http.MethodPost, "/api/search", map[string]any{"query": "gate driver bench", "limit": 5})
	require.Equal(t, http.StatusOK, status)

	results := body["results"].([]any)
	require.Len(t, results, 1)
	first := results[0].(map[string]any)
	assert.Equal(t, doc.ID, first["documentId"])
	assert.Equal(t, "semantic", first["matchType"])
	assert.Equal(t, "bench.txt", first["filename"])

	meta := body["searchMetadata"].(map[string]any)
	assert.Equal(t, []any{"notes"}, meta["collectionsSearched"])
	assert.Equal(t, "notes", body["classification"].(map[string]any)["primaryCollection"])
}

func TestSearch_Validation(t *testing.T) {
	f := setup(t)
	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"blank query", map[string]any{"query": "  "}, "query"},
		{"threshold out of range", map[string]any{"query": "x", "threshold": 2}, "threshold"},
		{"unknown field", map[string]any{"query": "x", "collections": []string{"a"}}, "body"},
		{"not an object", []int{1}, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := f.do(t, http.MethodPost, "/api/search", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tt.field, body["field"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestSearch_UpstreamFailureCarriesTrace(t *testing.T) {
	f := setup(t)
	f.provider.GetMockClassifier().ClassifyFunc = func(ctx context.Context, query string, collections []core.CollectionDescriptor, hints ai.CallHints) (*core.Classification, error) {
		return nil, errors.New("model overloaded")
	}

	status, body := f.do(t, http.MethodPost, "/api/search", map[string]any{"query": "gate driver"})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, body["error"], "model overloaded")

	trace, ok := body["processTrace"].(map[string]any)
	require.True(t, ok, "failed searches return their trace")
	steps := trace["steps"].([]any)
	require.NotEmpty(t, steps)
	assert.Equal(t, "classify", steps[0].(map[string]any)["name"])
}

func TestChat(t *testing.T) {
	f := setup(t)
	f.ingest(t, "bench.txt", "Gate driver bench results")

	status, body := f.do(t, http.MethodPost, "/api/chat", map[string]any{
		"query": "what did the bench show",
		"conversationHistory": []map[string]string{
			{"role": "user", "content": "hello"},
			{"role": "assistant", "content": "hi"},
		},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "See bench.txt", body["answer"])
	assert.Len(t, body["citations"], 1)
	assert.NotNil(t, body["processTrace"])
}

func TestDocuments(t *testing.T) {
	f := setup(t)
	doc := f.ingest(t, "bench.txt", "Gate driver bench results")

	t.Run("get", func(t *testing.T) {
		status, body := f.do(t, http.MethodGet, "/api/documents/"+doc.ID, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, doc.ID, body["document"].(map[string]any)["id"])
		assert.Equal(t, []any{}, body["elements"])
		assert.True(t, strings.HasPrefix(body["downloadUrl"].(string), blob.PathPrefix+"notes/bench.txt?"))
	})

	t.Run("missing", func(t *testing.T) {
		status, body := f.do(t, http.MethodGet, "/api/documents/nope", nil)
		assert.Equal(t, http.StatusNotFound, status)
		assert.NotEmpty(t, body["error"])
	})

	t.Run("reset of a ready document conflicts", func(t *testing.T) {
		status, _ := f.do(t, http.MethodPost, "/api/documents/"+doc.ID+"/reset", nil)
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("process of a terminal document is a no-op", func(t *testing.T) {
		status, body := f.do(t, http.MethodPost, "/api/documents/"+doc.ID+"/process", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, false, body["queued"])
	})
}

func TestDocuments_ResetAndProcess(t *testing.T) {
	f := setup(t)
	f.provider.GetMockAnalyzer().AnalyzeFunc = func(ctx context.Context, req ai.AnalysisRequest) (*ai.Analysis, error) {
		return nil, errors.New("analyzer down")
	}
	doc := f.ingest(t, "bench.txt", "Gate driver bench results")
	require.Equal(t, core.StatusError, doc.Status)

	f.provider.GetMockAnalyzer().Reset()
	status, body := f.do(t, http.MethodPost, "/api/documents/"+doc.ID+"/reset", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "pending", body["document"].(map[string]any)["status"])

	status, body = f.do(t, http.MethodPost, "/api/documents/"+doc.ID+"/process", nil)
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, true, body["queued"])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ready, err := f.sys.Manager().WaitFor(ctx, doc.ID, core.StatusReady, core.StatusError)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, ready.Status)
}

func TestStats(t *testing.T) {
	f := setup(t)
	f.ingest(t, "bench.txt", "Gate driver bench results")

	status, body := f.do(t, http.MethodGet, "/api/stats?collection=notes", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "notes", body["collectionId"])
	assert.EqualValues(t, 1, body["total"])
	assert.EqualValues(t, 1, body["withEmbedding"])
	assert.EqualValues(t, 1, body["coverage"])
}

func TestBlobs(t *testing.T) {
	f := setup(t)
	doc := f.ingest(t, "bench.txt", "Gate driver bench results")
	link, err := f.sys.Blobs().SignedURL(doc.StorageURI, time.Minute)
	require.NoError(t, err)

	get := func(t *testing.T, path string) (int, string) {
		resp, err := http.Get(f.srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(data)
	}

	t.Run("valid", func(t *testing.T) {
		status, data := get(t, link)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "Gate driver bench results", data)
	})

	t.Run("tampered", func(t *testing.T) {
		u, err := url.Parse(link)
		require.NoError(t, err)
		q := u.Query()
		q.Set("sig", strings.Repeat("0", 64))
		status, _ := get(t, u.Path+"?"+q.Encode())
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("other file", func(t *testing.T) {
		status, _ := get(t, strings.Replace(link, "bench.txt", "other.txt", 1))
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("expired", func(t *testing.T) {
		signer, err := blob.NewSigner(testSecret)
		require.NoError(t, err)
		past := time.Now().Add(-time.Hour).Unix()
		q := url.Values{}
		q.Set("expires", strconv.FormatInt(past, 10))
		q.Set("sig", signer.Sign("notes", "bench.txt", past))
		status, _ := get(t, blob.PathPrefix+"notes/bench.txt?"+q.Encode())
		assert.Equal(t, http.StatusGone, status)
	})

	t.Run("missing blob", func(t *testing.T) {
		signer, err := blob.NewSigner(testSecret)
		require.NoError(t, err)
		status, _ := get(t, signer.URL("notes", "absent.txt", time.Minute))
		assert.Equal(t, http.StatusNotFound, status)
	})
}
