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

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/storage"
)

// Manager is the single writer of document status, embeddings and elements.
type Manager struct {
	collections storage.CollectionRepository
	documents   storage.DocumentRepository
	elements    storage.ElementRepository
	events      *bus
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
		return nil
	}
}

// WithClock overrides the time source used for processed timestamps and events.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		m.now = now
		return nil
	}
}

// NewManager creates a lifecycle manager over the given repositories.
func NewManager(
	collections storage.CollectionRepository,
	documents storage.DocumentRepository,
	elements storage.ElementRepository,
	opts ...Option,
) (*Manager, error) {
	if collections == nil {
		return nil, ErrCollectionRepositoryRequired
	}
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if elements == nil {
		return nil, ErrElementRepositoryRequired
	}

	m := &Manager{
		collections: collections,
		documents:   documents,
		elements:    elements,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	m.logger = m.logger.With("component", "lifecycle")
	m.events = newBus(m.logger)
	return m, nil
}

// Upload describes a file that has been written to the blob store.
type Upload struct {
	CollectionID string
	StorageURI   string
	File         core.FileMetadata
	// Content holds manually supplied fields. Generated fields are filled in
	// by analysis.
	Content core.Content
}

// Create records a freshly uploaded file as a pending document.
func (m *Manager) Create(ctx context.Context, up Upload) (*core.Document, error) {
	if up.CollectionID == "" {
		return nil, &core.ValidationError{Field: "collectionId", Err: core.ErrInvalidDocument}
	}
	collection, err := m.Collection(ctx, up.CollectionID)
	if err != nil {
		return nil, err
	}
	if up.Content != nil {
		if err := core.ValidatePartialContent(collection, up.Content); err != nil {
			return nil, err
		}
	}

	now := m.now()
	if up.File.UploadedAt.IsZero() {
		up.File.UploadedAt = now
	}
	doc := &core.Document{
		ID:           uuid.NewString(),
		CollectionID: up.CollectionID,
		StorageURI:   up.StorageURI,
		File:         up.File,
		Status:       core.StatusPending,
		Content:      up.Content,
		CreatedAt:    now,
	}
	if err := core.ValidateDocument(doc); err != nil {
		return nil, &core.ValidationError{Field: "document", Err: err}
	}
	if err := m.documents.AddDocument(ctx, doc); err != nil {
		return nil, storeError("document", doc.ID, err)
	}

	m.logger.Info("document created", "document", doc.ID, "collection", doc.CollectionID, "filename", doc.File.Filename)
	m.events.publish(StatusEvent{DocumentID: doc.ID, To: core.StatusPending, At: now})
	return doc, nil
}

// Collection returns a collection or a NotFoundError.
func (m *Manager) Collection(ctx context.Context, id string) (*core.Collection, error) {
	c, err := m.collections.GetCollection(ctx, id)
	if err != nil {
		return nil, storeError("collection", id, err)
	}
	return c, nil
}

// Get returns a document or a NotFoundError.
func (m *Manager) Get(ctx context.Context, id string) (*core.Document, error) {
	doc, err := m.documents.GetDocument(ctx, id)
	if err != nil {
		return nil, storeError("document", id, err)
	}
	return doc, nil
}

// Elements returns the elements extracted from a document.
func (m *Manager) Elements(ctx context.Context, id string) ([]*core.Element, error) {
	els, err := m.elements.GetElements(ctx, id)
	if err != nil {
		return nil, storeError("document", id, err)
	}
	return els, nil
}

// ListByStatus lists documents in a status, oldest first.
func (m *Manager) ListByStatus(ctx context.Context, status core.DocumentStatus, opts storage.ListOptions) ([]*core.Document, error) {
	if !status.Valid() {
		return nil, &core.ValidationError{Field: "status", Err: core.ErrInvalidStatus}
	}
	docs, err := m.documents.ListByStatus(ctx, status, opts)
	if err != nil {
		return nil, storeError("document", "", err)
	}
	return docs, nil
}

// ElementSpec is an element found during analysis, before it is stored.
type ElementSpec struct {
	Type    core.ElementType
	Payload core.ElementPayload
}

// Transition is a status change requested by a worker stage.
type Transition struct {
	To core.DocumentStatus
	// Err is the failure message source when To is StatusError.
	Err error
	// Content replaces the content map when To is StatusMetadataReady.
	// Manual fields already on the document are kept unless overwritten.
	Content core.Content
	// Elements are created when To is StatusMetadataReady.
	Elements []ElementSpec
	// File replaces the file metadata when set.
	File *core.FileMetadata
	// Embedding is required when To is StatusReady.
	Embedding *core.Embedding
}

// Advance moves document id from status from to t.To. It fails with
// core.ErrStatusConflict when the document is no longer in from and with
// core.ErrInvalidTransition when the move is not part of the lifecycle.
func (m *Manager) Advance(ctx context.Context, id string, from core.DocumentStatus, t Transition) (*core.Document, error) {
	if err := core.ValidateTransition(from, t.To); err != nil {
		return nil, err
	}

	var collection *core.Collection
	switch t.To {
	case core.StatusReady:
		if t.Embedding == nil || len(t.Embedding.Vector) == 0 {
			return nil, &core.ValidationError{Field: "embedding", Err: core.ErrInvalidDocument}
		}
	case core.StatusMetadataReady:
		doc, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc.Status != from {
			return nil, fmt.Errorf("%w: expected %s, found %s", core.ErrStatusConflict, from, doc.Status)
		}
		if collection, err = m.Collection(ctx, doc.CollectionID); err != nil {
			return nil, err
		}
		// Elements first: ids are deterministic, so losing the status race
		// below leaves exactly what the winner writes.
		if err := m.replaceElements(ctx, doc, t.Elements); err != nil {
			return nil, err
		}
	}

	now := m.now()
	updated, err := m.documents.CompareAndSwap(ctx, id, from, func(doc *core.Document) error {
		doc.Status = t.To
		if t.File != nil {
			doc.File = *t.File
		}
		switch t.To {
		case core.StatusError:
			doc.Error = "unknown error"
			if t.Err != nil {
				doc.Error = t.Err.Error()
			}
			doc.Embedding = nil
		case core.StatusMetadataReady:
			content := make(core.Content, len(doc.Content)+len(t.Content))
			for k, v := range doc.Content {
				content[k] = v
			}
			for k, v := range t.Content {
				content[k] = v
			}
			if err := core.ValidateContent(collection, content); err != nil {
				return err
			}
			doc.Content = content
			doc.Error = ""
		case core.StatusReady:
			emb := *t.Embedding
			doc.Embedding = &emb
			doc.ProcessedAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, storeError("document", id, err)
	}

	m.logger.Info("document advanced", "document", id, "from", from, "to", t.To)
	m.events.publish(StatusEvent{DocumentID: id, From: from, To: t.To, Error: updated.Error, At: now})
	return updated, nil
}

// Fail moves a document to error from whatever non-terminal status it is in.
func (m *Manager) Fail(ctx context.Context, id string, from core.DocumentStatus, cause error) (*core.Document, error) {
	return m.Advance(ctx, id, from, Transition{To: core.StatusError, Err: cause})
}

// replaceElements upserts the new elements and drops any left from an
// earlier analysis of the same document.
func (m *Manager) replaceElements(ctx context.Context, doc *core.Document, specs []ElementSpec) error {
	ordinals := make(map[core.ElementType]int, 3)
	fresh := make([]*core.Element, 0, len(specs))
	keep := make(map[core.ID]bool, len(specs))
	for _, spec := range specs {
		n := ordinals[spec.Type]
		ordinals[spec.Type] = n + 1
		el := &core.Element{
			ID:             core.ElementIDFor(doc.ID, spec.Type, n),
			ParentID:       doc.ID,
			CollectionID:   doc.CollectionID,
			Type:           spec.Type,
			Payload:        spec.Payload,
			ParentFilename: doc.File.Filename,
			ParentURI:      doc.StorageURI,
			Status:         core.ElementPending,
		}
		keep[el.ID] = true
		fresh = append(fresh, el)
	}

	existing, err := m.elements.GetElements(ctx, doc.ID)
	if err != nil {
		return storeError("document", doc.ID, err)
	}
	var stale []*core.Element
	for _, el := range existing {
		if !keep[el.ID] {
			stale = append(stale, el)
		}
	}
	if len(stale) > 0 {
		if err := m.elements.DeleteElements(ctx, stale...); err != nil {
			return storeError("document", doc.ID, err)
		}
	}
	if len(fresh) > 0 {
		if err := m.elements.PutElements(ctx, fresh...); err != nil {
			return storeError("document", doc.ID, err)
		}
	}
	return nil
}

// CompleteElement records the outcome of one element's embedding step.
// A nil cause with an embedding marks it ready; a cause marks it failed.
func (m *Manager) CompleteElement(ctx context.Context, el *core.Element, emb *core.Embedding, cause error) error {
	updated := *el
	switch {
	case cause != nil:
		updated.Status = core.ElementError
		updated.Error = cause.Error()
		updated.Embedding = nil
	case emb == nil || len(emb.Vector) == 0:
		return &core.ValidationError{Field: "embedding", Err: core.ErrInvalidElement}
	default:
		e := *emb
		updated.Status = core.ElementReady
		updated.Error = ""
		updated.Embedding = &e
	}
	if err := m.elements.PutElements(ctx, &updated); err != nil {
		return storeError("element", el.ParentID, err)
	}
	*el = updated
	return nil
}

// ReplaceEmbedding swaps the embedding of a ready document without changing
// its status. It fails with core.ErrStatusConflict when the document is no
// longer ready. Subscribers see a ready to ready event.
func (m *Manager) ReplaceEmbedding(ctx context.Context, id string, emb *core.Embedding) (*core.Document, error) {
	if emb == nil || len(emb.Vector) == 0 {
		return nil, &core.ValidationError{Field: "embedding", Err: core.ErrInvalidDocument}
	}
	now := m.now()
	updated, err := m.documents.CompareAndSwap(ctx, id, core.StatusReady, func(doc *core.Document) error {
		e := *emb
		doc.Embedding = &e
		doc.ProcessedAt = &now
		return nil
	})
	if err != nil {
		return nil, storeError("document", id, err)
	}
	m.logger.Debug("document embedding replaced", "document", id, "model", emb.Model)
	m.events.publish(StatusEvent{DocumentID: id, From: core.StatusReady, To: core.StatusReady, At: now})
	return updated, nil
}

// ReplaceElementEmbeddings stores new embeddings for ready elements, pairing
// els[i] with embs[i]. Elements in any other status are rejected.
func (m *Manager) ReplaceElementEmbeddings(ctx context.Context, els []*core.Element, embs []*core.Embedding) error {
	if len(els) != len(embs) {
		return &core.ValidationError{
			Field: "embedding",
			Err:   fmt.Errorf("%w: %d elements, %d embeddings", core.ErrInvalidElement, len(els), len(embs)),
		}
	}
	now := m.now()
	updated := make([]*core.Element, len(els))
	for i, el := range els {
		if el.Status != core.ElementReady {
			return fmt.Errorf("%w: element %d is %s", core.ErrStatusConflict, el.ID, el.Status)
		}
		if embs[i] == nil || len(embs[i].Vector) == 0 {
			return &core.ValidationError{Field: "embedding", Err: core.ErrInvalidElement}
		}
		u := *el
		e := *embs[i]
		u.Embedding = &e
		u.UpdatedAt = now
		updated[i] = &u
	}
	if len(updated) == 0 {
		return nil
	}
	if err := m.elements.PutElements(ctx, updated...); err != nil {
		return storeError("element", "", err)
	}
	for i, u := range updated {
		*els[i] = *u
	}
	m.logger.Debug("element embeddings replaced", "elements", len(updated))
	return nil
}

// ListElements returns the elements of a collection, or of all collections
// when collectionID is empty.
func (m *Manager) ListElements(ctx context.Context, collectionID string) ([]*core.Element, error) {
	els, err := m.elements.ListElements(ctx, collectionID)
	if err != nil {
		return nil, storeError("element", "", err)
	}
	return els, nil
}

// Reset sends a failed document back to pending. Generated content and any
// embedding are cleared; manual fields are kept.
func (m *Manager) Reset(ctx context.Context, id string) (*core.Document, error) {
	doc, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !core.CanReset(doc.Status) {
		return nil, fmt.Errorf("%w: only error documents can be reset, found %s", core.ErrInvalidTransition, doc.Status)
	}
	collection, err := m.Collection(ctx, doc.CollectionID)
	if err != nil {
		return nil, err
	}

	updated, err := m.documents.CompareAndSwap(ctx, id, core.StatusError, func(d *core.Document) error {
		d.Status = core.StatusPending
		d.Error = ""
		d.Embedding = nil
		d.ProcessedAt = nil
		d.Content = manualContent(collection, d.Content)
		return nil
	})
	if err != nil {
		return nil, storeError("document", id, err)
	}

	m.logger.Info("document reset", "document", id)
	m.events.publish(StatusEvent{DocumentID: id, From: core.StatusError, To: core.StatusPending, At: m.now()})
	return updated, nil
}

func manualContent(c *core.Collection, content core.Content) core.Content {
	var out core.Content
	for _, f := range c.Fields {
		if f.Source != core.SourceManual {
			continue
		}
		if v, ok := content[f.Name]; ok {
			if out == nil {
				out = core.Content{}
			}
			out[f.Name] = v
		}
	}
	return out
}

// Delete removes a document. Its elements stay behind and are filtered out of
// retrieval until PurgeOrphans removes them.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.documents.DeleteDocument(ctx, id); err != nil {
		return storeError("document", id, err)
	}
	m.logger.Info("document deleted", "document", id)
	m.events.publish(StatusEvent{DocumentID: id, Deleted: true, At: m.now()})
	return nil
}

// PurgeOrphans deletes elements whose parent document no longer exists and
// returns how many were removed. An empty collectionID covers all collections.
func (m *Manager) PurgeOrphans(ctx context.Context, collectionID string) (int, error) {
	els, err := m.elements.ListElements(ctx, collectionID)
	if err != nil {
		return 0, storeError("element", "", err)
	}

	byParent := make(map[string][]*core.Element)
	for _, el := range els {
		byParent[el.ParentID] = append(byParent[el.ParentID], el)
	}
	parents := make([]string, 0, len(byParent))
	for id := range byParent {
		parents = append(parents, id)
	}
	slices.Sort(parents)

	found, err := m.documents.GetDocuments(ctx, parents...)
	if err != nil {
		return 0, storeError("document", "", err)
	}
	alive := make(map[string]bool, len(found))
	for _, d := range found {
		alive[d.ID] = true
	}

	var orphans []*core.Element
	for _, id := range parents {
		if !alive[id] {
			orphans = append(orphans, byParent[id]...)
		}
	}
	if len(orphans) == 0 {
		return 0, nil
	}
	if err := m.elements.DeleteElements(ctx, orphans...); err != nil {
		return 0, storeError("element", "", err)
	}
	m.logger.Info("purged orphaned elements", "collection", collectionID, "elements", len(orphans))
	return len(orphans), nil
}

// Stats reports per-status counts and coverage for a collection, or for all
// collections when collectionID is empty.
func (m *Manager) Stats(ctx context.Context, collectionID string) (*core.Stats, error) {
	counts, withEmbedding, err := m.documents.CountByStatus(ctx, collectionID)
	if err != nil {
		return nil, storeError("document", "", err)
	}
	els, err := m.elements.ListElements(ctx, collectionID)
	if err != nil {
		return nil, storeError("element", "", err)
	}

	stats := &core.Stats{
		CollectionID:  collectionID,
		ByStatus:      counts,
		WithEmbedding: withEmbedding,
		Elements:      len(els),
	}
	for _, n := range counts {
		stats.Total += n
	}
	for _, el := range els {
		if el.Status == core.ElementReady {
			stats.ReadyElements++
		}
	}
	if stats.Total > 0 {
		stats.Coverage = float64(withEmbedding) / float64(stats.Total)
	}
	return stats, nil
}
