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

// Package corpora assembles the document store, blob store, processing
// pipeline and search service into one System.
package corpora

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/ai/openai"
	"github.com/poiesic/corpora/answer"
	"github.com/poiesic/corpora/blob"
	"github.com/poiesic/corpora/config"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/inbox"
	"github.com/poiesic/corpora/ingestion"
	"github.com/poiesic/corpora/lifecycle"
	"github.com/poiesic/corpora/mcpserver"
	"github.com/poiesic/corpora/reembed"
	"github.com/poiesic/corpora/search"
	"github.com/poiesic/corpora/server"
	"github.com/poiesic/corpora/storage"
	"github.com/poiesic/corpora/storage/badger"
)

// System owns every long-lived component. Close releases them.
type System struct {
	cfg       *config.Config
	repos     *badger.Repositories
	provider  ai.AIProvider
	blobs     *blob.Store
	signer    *blob.Signer
	manager   *lifecycle.Manager
	processor *ingestion.Processor
	engine    *search.Engine
	router    *search.Router
	search    *search.Service
	logger    *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	provider ai.AIProvider
	logger   *slog.Logger
	inMemory bool
}

// WithProvider replaces the OpenAI-compatible provider built from the config.
// The System takes ownership and closes it.
func WithProvider(p ai.AIProvider) Option {
	return func(o *options) { o.provider = p }
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// InMemory keeps the document store in memory. Store.Path is ignored.
func InMemory() Option {
	return func(o *options) { o.inMemory = true }
}

// Open builds a System from cfg.
func Open(cfg *config.Config, opts ...Option) (*System, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	s := &System{cfg: cfg, logger: o.logger}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	var err error
	if s.repos, err = badger.Open(cfg.Store.Path, o.inMemory); err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	s.provider = o.provider
	if s.provider == nil {
		if s.provider, err = openai.NewProvider(ai.NewConfig(cfg.AIOptions()...)); err != nil {
			return nil, fmt.Errorf("creating AI provider: %w", err)
		}
	}

	blobOpts := []blob.Option{blob.WithLogger(o.logger)}
	if cfg.Blobs.SigningSecret != "" {
		if s.signer, err = blob.NewSigner(cfg.Blobs.SigningSecret); err != nil {
			return nil, err
		}
		blobOpts = append(blobOpts, blob.WithSigner(s.signer))
	}
	if s.blobs, err = blob.NewStore(cfg.Blobs.Root, blobOpts...); err != nil {
		return nil, err
	}

	if s.manager, err = lifecycle.NewManager(s.repos.Collections, s.repos.Documents, s.repos.Elements,
		lifecycle.WithLogger(o.logger)); err != nil {
		return nil, err
	}

	procOpts := []ingestion.Option{
		ingestion.WithLogger(o.logger),
		ingestion.WithTimeout(cfg.Processing.Timeout.Duration),
	}
	if cfg.Processing.PoolSize > 0 {
		procOpts = append(procOpts, ingestion.WithPoolSize(cfg.Processing.PoolSize))
	}
	if cfg.AI.EmbeddingModel != "" {
		procOpts = append(procOpts, ingestion.WithEmbeddingModel(cfg.AI.EmbeddingModel))
	}
	if s.processor, err = ingestion.NewProcessor(s.manager, s.blobs, s.provider, procOpts...); err != nil {
		return nil, err
	}

	if s.engine, err = search.NewEngine(s.repos.Documents, s.repos.Elements, s.provider,
		search.WithLogger(o.logger),
		search.WithRerankTopN(cfg.Search.RerankTopN),
		search.WithRerankExplanations(cfg.Search.RerankExplanations),
	); err != nil {
		return nil, err
	}
	if s.router, err = search.NewRouter(s.engine, cfg.Policy()); err != nil {
		return nil, err
	}
	answers, err := answer.NewGenerator(s.provider.Grounder(),
		answer.WithLogger(o.logger),
		answer.WithTopK(cfg.Search.GroundingTopK),
	)
	if err != nil {
		return nil, err
	}
	if s.search, err = search.NewService(s.repos.Collections, s.provider.Classifier(), s.router, answers,
		search.WithServiceLogger(o.logger),
		search.WithTimeout(cfg.Search.Timeout.Duration),
		search.WithHistoryLimit(cfg.Search.HistoryLimit),
	); err != nil {
		return nil, err
	}

	ok = true
	return s, nil
}

// Close waits for queued jobs, then releases the provider and the store.
func (s *System) Close() error {
	var errs []error
	if s.processor != nil {
		s.processor.Release()
	}
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			s.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if s.repos != nil {
		if err := s.repos.Close(); err != nil {
			s.logger.Error("error closing store", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *System) Config() *config.Config                    { return s.cfg }
func (s *System) Collections() storage.CollectionRepository { return s.repos.Collections }
func (s *System) Documents() storage.DocumentRepository     { return s.repos.Documents }
func (s *System) Elements() storage.ElementRepository       { return s.repos.Elements }
func (s *System) Provider() ai.AIProvider                   { return s.provider }
func (s *System) Blobs() *blob.Store                        { return s.blobs }
func (s *System) Manager() *lifecycle.Manager               { return s.manager }
func (s *System) Processor() *ingestion.Processor           { return s.processor }
func (s *System) Search() *search.Service                   { return s.search }

// ImportCollections adds each collection, or replaces the schema of one that
// already exists. It returns the stored collections in input order.
func (s *System) ImportCollections(ctx context.Context, collections []*core.Collection) ([]*core.Collection, error) {
	out := make([]*core.Collection, 0, len(collections))
	for _, c := range collections {
		stored, err := s.repos.Collections.AddCollection(ctx, c)
		if errors.Is(err, storage.ErrDuplicateKey) {
			stored, err = s.repos.Collections.UpdateCollection(ctx, c)
			if err == nil {
				s.logger.Info("collection updated", "collection", c.ID, "schema_version", stored.SchemaVersion)
			}
		} else if err == nil {
			s.logger.Info("collection added", "collection", c.ID)
		}
		if err != nil {
			return out, fmt.Errorf("importing collection %s: %w", c.ID, err)
		}
		out = append(out, stored)
	}
	return out, nil
}

// Ingest writes r to the blob store, records it as a pending document and
// queues it for processing. manual holds manually supplied content fields.
func (s *System) Ingest(ctx context.Context, collectionID, filename string, r io.Reader, manual core.Content) (*core.Document, error) {
	collection, err := s.manager.Collection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if manual != nil {
		if err := core.ValidatePartialContent(collection, manual); err != nil {
			return nil, err
		}
	}

	uri, err := s.blobs.Put(ctx, collectionID, filename, r)
	switch {
	case errors.Is(err, blob.ErrBlobExists), errors.Is(err, blob.ErrInvalidName):
		return nil, &core.ValidationError{Field: "filename", Err: err}
	case err != nil:
		return nil, core.Upstream("blob store", err)
	}

	doc, err := s.manager.Create(ctx, lifecycle.Upload{
		CollectionID: collectionID,
		StorageURI:   uri,
		File:         core.FileMetadata{Filename: filename},
		Content:      manual,
	})
	if err != nil {
		if derr := s.blobs.Delete(ctx, uri); derr != nil {
			s.logger.Warn("error removing orphaned blob", "uri", uri, "err", derr)
		}
		return nil, err
	}
	if err := s.processor.Submit(doc.ID); err != nil {
		s.logger.Warn("document left pending", "document", doc.ID, "err", err)
	}
	return doc, nil
}

// NewServer builds the HTTP boundary over this System.
func (s *System) NewServer(opts ...server.Option) (*server.Server, error) {
	base := []server.Option{server.WithLogger(s.logger), server.WithURLTTL(s.cfg.Blobs.URLTTL.Duration)}
	if s.signer != nil {
		base = append(base, server.WithSigner(s.signer))
	}
	return server.New(s.search, s.manager, s.processor, s.blobs, append(base, opts...)...)
}

// NewTools builds the MCP tool set over this System.
func (s *System) NewTools() (*mcpserver.Tools, error) {
	return mcpserver.New(s.search, s.manager, mcpserver.WithLogger(s.logger))
}

// NewWatcher builds an inbox watcher that ingests into collectionID. Empty
// arguments fall back to the processing config.
func (s *System) NewWatcher(dir, collectionID string, opts ...inbox.Option) (*inbox.Watcher, error) {
	if dir == "" {
		dir = s.cfg.Processing.InboxDir
	}
	if collectionID == "" {
		collectionID = s.cfg.Processing.InboxCollection
	}
	return inbox.NewWatcher(dir, collectionID, s, append([]inbox.Option{inbox.WithLogger(s.logger)}, opts...)...)
}

// NewReembedder builds a reembedder over this System's store and provider.
func (s *System) NewReembedder(opts ...reembed.Option) (*reembed.Reembedder, error) {
	base := []reembed.Option{reembed.WithLogger(s.logger)}
	if s.cfg.AI.EmbeddingModel != "" {
		base = append(base, reembed.WithModel(s.cfg.AI.EmbeddingModel))
	}
	return reembed.NewReembedder(s.manager, s.provider, append(base, opts...)...)
}
