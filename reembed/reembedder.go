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

package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/lifecycle"
	"github.com/poiesic/corpora/storage"
)

const (
	DefaultBatchSize      = 100
	DefaultReportInterval = 100
	DefaultMaxAttempts    = 3
	DefaultRetryDelay     = time.Second
)

// Report summarizes a reembedding run.
type Report struct {
	Documents int           `json:"documents"`
	Elements  int           `json:"elements"`
	Skipped   int           `json:"skipped"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Reembedder rewrites the embeddings of ready documents and their ready
// elements with the configured embedder.
type Reembedder struct {
	manager        *lifecycle.Manager
	batch          *BatchEmbedder
	embedder       ai.Embedder
	model          string
	batchSize      int
	reportInterval int
	maxAttempts    int
	retryDelay     time.Duration
	progress       io.Writer
	logger         *slog.Logger
}

// Option configures a Reembedder.
type Option func(*Reembedder) error

// WithBatchSize sets how many items share one embedder call.
func WithBatchSize(n int) Option {
	return func(r *Reembedder) error {
		if n < 1 {
			return fmt.Errorf("batch size must be positive, got %d", n)
		}
		r.batchSize = n
		return nil
	}
}

// WithRetry sets the attempts per batch and the base backoff delay.
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(r *Reembedder) error {
		if maxAttempts < 1 {
			return ErrInvalidMaxAttempts
		}
		r.maxAttempts = maxAttempts
		r.retryDelay = delay
		return nil
	}
}

// WithProgress writes progress lines to w every interval items.
// Default is no progress output.
func WithProgress(w io.Writer, interval int) Option {
	return func(r *Reembedder) error {
		r.progress = w
		if interval > 0 {
			r.reportInterval = interval
		}
		return nil
	}
}

// WithModel records model as the producer of the new vectors. Default is
// each collection's configured embedding model.
func WithModel(model string) Option {
	return func(r *Reembedder) error {
		r.model = model
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reembedder) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewReembedder creates a reembedder that reads and writes through manager.
func NewReembedder(manager *lifecycle.Manager, provider ai.AIProvider, opts ...Option) (*Reembedder, error) {
	switch {
	case manager == nil:
		return nil, ErrManagerRequired
	case provider == nil:
		return nil, ErrAIProviderRequired
	}

	r := &Reembedder{
		manager:        manager,
		embedder:       provider.Embedder(),
		batchSize:      DefaultBatchSize,
		reportInterval: DefaultReportInterval,
		maxAttempts:    DefaultMaxAttempts,
		retryDelay:     DefaultRetryDelay,
		progress:       io.Discard,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "reembed")
	r.batch = NewBatchEmbedder(r.embedder, r.maxAttempts, r.retryDelay)
	return r, nil
}

// Run reembeds every ready document of collectionID (all collections when
// empty), then the ready elements of those documents.
func (r *Reembedder) Run(ctx context.Context, collectionID string) (*Report, error) {
	start := time.Now()
	report := &Report{}

	docs, err := r.readyDocuments(ctx, collectionID)
	if err != nil {
		return report, err
	}
	if len(docs) == 0 {
		fmt.Fprintln(r.progress, "No ready documents found")
		report.Elapsed = time.Since(start)
		return report, nil
	}
	fmt.Fprintf(r.progress, "Reembedding %d documents (batch size: %d)\n", len(docs), r.batchSize)

	collections := make(map[string]*core.Collection)
	parents := make(map[string]bool, len(docs))
	if err := r.reembedDocuments(ctx, docs, collections, parents, report); err != nil {
		return report, err
	}

	els, err := r.readyElements(ctx, collectionID, parents)
	if err != nil {
		return report, err
	}
	if err := r.reembedElements(ctx, els, collections, report); err != nil {
		return report, err
	}

	report.Elapsed = time.Since(start)
	fmt.Fprintf(r.progress, "Reembedding complete: %d documents, %d elements, %d skipped in %v\n",
		report.Documents, report.Elements, report.Skipped, report.Elapsed.Round(time.Millisecond))
	r.logger.Info("reembedding complete", "collection", collectionID,
		"documents", report.Documents, "elements", report.Elements, "skipped", report.Skipped)
	return report, nil
}

func (r *Reembedder) readyDocuments(ctx context.Context, collectionID string) ([]*core.Document, error) {
	var out []*core.Document
	for offset := 0; ; offset += r.batchSize {
		page, err := r.manager.ListByStatus(ctx, core.StatusReady, storage.ListOptions{
			CollectionID: collectionID,
			Offset:       offset,
			Limit:        r.batchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("listing ready documents: %w", err)
		}
		out = append(out, page...)
		if len(page) < r.batchSize {
			return out, nil
		}
	}
}

func (r *Reembedder) readyElements(ctx context.Context, collectionID string, parents map[string]bool) ([]*core.Element, error) {
	all, err := r.manager.ListElements(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("listing elements: %w", err)
	}
	out := make([]*core.Element, 0, len(all))
	for _, el := range all {
		if el.Status == core.ElementReady && parents[el.ParentID] {
			out = append(out, el)
		}
	}
	return out, nil
}

func (r *Reembedder) collection(ctx context.Context, cache map[string]*core.Collection, id string) (*core.Collection, error) {
	if c, ok := cache[id]; ok {
		return c, nil
	}
	c, err := r.manager.Collection(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading collection %s: %w", id, err)
	}
	cache[id] = c
	return c, nil
}

func (r *Reembedder) modelFor(c *core.Collection) string {
	if r.model != "" {
		return r.model
	}
	return c.Embedding.Model
}

func (r *Reembedder) reembedDocuments(ctx context.Context, docs []*core.Document, cache map[string]*core.Collection, parents map[string]bool, report *Report) error {
	tracker := NewProgressTracker(r.progress, "documents", len(docs), r.reportInterval)
	tracker.Start()
	defer tracker.Finish()

	for batch := range chunks(docs, r.batchSize) {
		texts := make([]string, len(batch))
		owners := make([]*core.Collection, len(batch))
		for i, doc := range batch {
			c, err := r.collection(ctx, cache, doc.CollectionID)
			if err != nil {
				return err
			}
			owners[i] = c
			texts[i] = c.EmbeddingText(doc)
		}

		vectors, err := r.batch.Embed(ctx, texts)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for i, doc := range batch {
			if dims := owners[i].Embedding.Dimensions; dims > 0 && len(vectors[i]) != dims {
				r.logger.Warn("skipping document with wrong dimensions", "document", doc.ID, "expected", dims, "received", len(vectors[i]))
				report.Skipped++
				continue
			}
			emb := &core.Embedding{Vector: vectors[i], Model: r.modelFor(owners[i]), CreatedAt: now}
			_, err := r.manager.ReplaceEmbedding(ctx, doc.ID, emb)
			switch {
			case err == nil:
				report.Documents++
				parents[doc.ID] = true
			case errors.Is(err, core.ErrStatusConflict), errors.Is(err, storage.ErrNotFound):
				r.logger.Debug("document left ready, skipping", "document", doc.ID)
				report.Skipped++
			default:
				return fmt.Errorf("updating document %s: %w", doc.ID, err)
			}
		}
		tracker.Add(len(batch))
	}
	return nil
}

func (r *Reembedder) reembedElements(ctx context.Context, els []*core.Element, cache map[string]*core.Collection, report *Report) error {
	if len(els) == 0 {
		return nil
	}
	tracker := NewProgressTracker(r.progress, "elements", len(els), r.reportInterval)
	tracker.Start()
	defer tracker.Finish()

	for batch := range chunks(els, r.batchSize) {
		texts := make([]string, len(batch))
		for i, el := range batch {
			texts[i] = el.EmbeddingText()
		}
		vectors, err := r.batch.Embed(ctx, texts)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		keep := make([]*core.Element, 0, len(batch))
		embs := make([]*core.Embedding, 0, len(batch))
		for i, el := range batch {
			model := r.model
			if c, ok := cache[el.CollectionID]; ok {
				if dims := c.Embedding.Dimensions; dims > 0 && len(vectors[i]) != dims {
					r.logger.Warn("skipping element with wrong dimensions", "element", el.ID, "expected", dims, "received", len(vectors[i]))
					report.Skipped++
					continue
				}
				model = r.modelFor(c)
			}
			keep = append(keep, el)
			embs = append(embs, &core.Embedding{Vector: vectors[i], Model: model, CreatedAt: now})
		}
		if err := r.manager.ReplaceElementEmbeddings(ctx, keep, embs); err != nil {
			return fmt.Errorf("updating elements: %w", err)
		}
		report.Elements += len(keep)
		tracker.Add(len(batch))
	}
	return nil
}

// chunks yields consecutive slices of at most size items.
func chunks[T any](items []T, size int) func(yield func([]T) bool) {
	return func(yield func([]T) bool) {
		for start := 0; start < len(items); start += size {
			if !yield(items[start:min(start+size, len(items))]) {
				return
			}
		}
	}
}
