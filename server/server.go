// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes search, chat, document status and signed blob
// downloads over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/poiesic/corpora/blob"
	"github.com/poiesic/corpora/ingestion"
	"github.com/poiesic/corpora/lifecycle"
	"github.com/poiesic/corpora/search"
)

const (
	// DefaultURLTTL is how long a signed download URL stays valid.
	DefaultURLTTL = 15 * time.Minute

	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

var (
	// ErrSearchServiceRequired is returned when a search service is not provided.
	ErrSearchServiceRequired = errors.New("search service required")

	// ErrManagerRequired is returned when a lifecycle manager is not provided.
	ErrManagerRequired = errors.New("lifecycle manager required")

	// ErrProcessorRequired is returned when a processor is not provided.
	ErrProcessorRequired = errors.New("processor required")

	// ErrBlobStoreRequired is returned when a blob store is not provided.
	ErrBlobStoreRequired = errors.New("blob store required")
)

// Server routes HTTP requests to the search service, the lifecycle manager
// and the blob store.
type Server struct {
	search    *search.Service
	manager   *lifecycle.Manager
	processor *ingestion.Processor
	blobs     *blob.Store
	signer    *blob.Signer
	urlTTL    time.Duration
	logger    *slog.Logger
	router    chi.Router
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithSigner enables the signed blob route and download URLs on documents.
func WithSigner(signer *blob.Signer) Option {
	return func(s *Server) error {
		s.signer = signer
		return nil
	}
}

// WithURLTTL sets how long signed download URLs stay valid.
func WithURLTTL(ttl time.Duration) Option {
	return func(s *Server) error {
		if ttl <= 0 {
			return fmt.Errorf("url ttl must be positive, got %s", ttl)
		}
		s.urlTTL = ttl
		return nil
	}
}

// New builds the router.
func New(
	svc *search.Service,
	manager *lifecycle.Manager,
	processor *ingestion.Processor,
	blobs *blob.Store,
	opts ...Option,
) (*Server, error) {
	switch {
	case svc == nil:
		return nil, ErrSearchServiceRequired
	case manager == nil:
		return nil, ErrManagerRequired
	case processor == nil:
		return nil, ErrProcessorRequired
	case blobs == nil:
		return nil, ErrBlobStoreRequired
	}

	s := &Server{
		search:    svc,
		manager:   manager,
		processor: processor,
		blobs:     blobs,
		urlTTL:    DefaultURLTTL,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "http")
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/chat", s.handleChat)
		r.Get("/stats", s.handleStats)
		r.Route("/documents/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetDocument)
			r.Post("/reset", s.handleReset)
			r.Post("/process", s.handleProcess)
		})
	})

	if s.signer != nil {
		r.Get(blob.PathPrefix+"{collection}/{filename}", s.handleBlob)
	}
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
