package server

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/poiesic/corpora/blob"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/search"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req search.SearchRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.search.Search(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req search.ChatRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.search.Chat(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// documentResponse is a document with its elements and, when signing is
// enabled, a temporary download link.
type documentResponse struct {
	Document    *core.Document  `json:"document"`
	Elements    []*core.Element `json:"elements"`
	DownloadURL string          `json:"downloadUrl,omitempty"`
}

func (s *Server) documentResponse(r *http.Request, doc *core.Document) (*documentResponse, error) {
	els, err := s.manager.Elements(r.Context(), doc.ID)
	if err != nil {
		return nil, err
	}
	if els == nil {
		els = []*core.Element{}
	}
	resp := &documentResponse{Document: doc, Elements: els}
	if s.signer != nil {
		// Documents stored outside the blob root simply get no link.
		if link, err := s.blobs.SignedURL(doc.StorageURI, s.urlTTL); err == nil {
			resp.DownloadURL = link
		}
	}
	return resp, nil
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.manager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.documentResponse(r, doc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	doc, err := s.manager.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": doc})
}

// handleProcess queues a document and returns immediately. Documents that
// already reached a terminal status are returned untouched.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	doc, err := s.manager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if doc.Status.Terminal() {
		writeJSON(w, http.StatusOK, map[string]any{"document": doc, "queued": false})
		return
	}
	if err := s.processor.Submit(doc.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"document": doc, "queued": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.manager.Stats(r.Context(), r.URL.Query().Get("collection"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "collection")
	filename := chi.URLParam(r, "filename")
	q := r.URL.Query()

	switch err := s.signer.Verify(collectionID, filename, q.Get("expires"), q.Get("sig")); {
	case errors.Is(err, blob.ErrSignatureExpired):
		http.Error(w, "link expired", http.StatusGone)
		return
	case err != nil:
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	data, err := s.blobs.Get(r.Context(), s.blobs.URI(collectionID, filename))
	switch {
	case errors.Is(err, blob.ErrBlobNotFound), errors.Is(err, blob.ErrOutsideRoot):
		http.NotFound(w, r)
		return
	case err != nil:
		s.logger.Error("reading blob", "collection", collectionID, "filename", filename, "err", err)
		http.Error(w, "blob store unavailable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Cache-Control", "private, no-store")
	http.ServeContent(w, r, filename, time.Time{}, bytes.NewReader(data))
}
