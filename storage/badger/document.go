package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) *DocumentRepository {
	return &DocumentRepository{backend: backend}
}

// Close is a no-op; the backend is closed by its owner.
func (r *DocumentRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *DocumentRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddDocument stores a new document and indexes it.
func (r *DocumentRepository) AddDocument(ctx context.Context, doc *core.Document) error {
	if err := core.ValidateDocument(doc); err != nil {
		return err
	}
	return r.backend.Update(func(tx *badger.Txn) error {
		key := makeDocumentKey(doc.ID)
		existing, err := getValue(tx, key, storage.UnmarshalDocument)
		if err != nil {
			return err
		}
		if existing != nil {
			return storage.ErrDuplicateKey
		}
		now := time.Now().UTC()
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		doc.UpdatedAt = now
		return r.writeDocument(tx, nil, doc)
	})
}

// GetDocument retrieves a single document by id.
func (r *DocumentRepository) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	var result *core.Document
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		result, err = getValue(tx, makeDocumentKey(id), storage.UnmarshalDocument)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return result, err
}

// GetDocuments retrieves documents by id, skipping missing ones.
func (r *DocumentRepository) GetDocuments(ctx context.Context, ids ...string) ([]*core.Document, error) {
	results := make([]*core.Document, 0, len(ids))
	err := r.backend.View(func(tx *badger.Txn) error {
		for _, id := range ids {
			doc, err := getValue(tx, makeDocumentKey(id), storage.UnmarshalDocument)
			if err != nil {
				return err
			}
			if doc != nil {
				results = append(results, doc)
			}
		}
		return nil
	})
	return results, err
}

// ListByStatus returns documents in a status ordered by creation time.
func (r *DocumentRepository) ListByStatus(ctx context.Context, status core.DocumentStatus, opts storage.ListOptions) ([]*core.Document, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %w: %q", storage.ErrInvalidQuery, core.ErrInvalidStatus, status)
	}
	if opts.Offset < 0 || opts.Limit < 0 {
		return nil, fmt.Errorf("%w: negative offset or limit", storage.ErrInvalidQuery)
	}

	var results []*core.Document
	skipped := 0
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanPrefix(tx, makeStatusPrefix(status), func(_, val []byte) error {
			if opts.Limit > 0 && len(results) >= opts.Limit {
				return nil
			}
			doc, err := getValue(tx, makeDocumentKey(string(val)), storage.UnmarshalDocument)
			if err != nil {
				return err
			}
			if doc == nil || doc.Status != status {
				return nil
			}
			if opts.CollectionID != "" && doc.CollectionID != opts.CollectionID {
				return nil
			}
			if skipped < opts.Offset {
				skipped++
				return nil
			}
			results = append(results, doc)
			return nil
		})
	})
	return results, err
}

// CompareAndSwap applies mutate only when the stored status equals expected.
// The read, the check and the write share one transaction, so a concurrent
// writer to the same document makes the later commit fail.
func (r *DocumentRepository) CompareAndSwap(ctx context.Context, id string, expected core.DocumentStatus, mutate func(*core.Document) error) (*core.Document, error) {
	var updated *core.Document
	err := r.backend.Update(func(tx *badger.Txn) error {
		old, err := getValue(tx, makeDocumentKey(id), storage.UnmarshalDocument)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}
		if old.Status != expected {
			return fmt.Errorf("%w: expected %s, found %s", core.ErrStatusConflict, expected, old.Status)
		}

		// mutate works on a private copy so a failed callback leaves old intact
		data, err := storage.MarshalDocument(old)
		if err != nil {
			return err
		}
		doc, err := storage.UnmarshalDocument(data)
		if err != nil {
			return err
		}
		if err := mutate(doc); err != nil {
			return err
		}
		doc.ID = old.ID
		doc.CreatedAt = old.CreatedAt
		doc.UpdatedAt = time.Now().UTC()
		if err := core.ValidateDocument(doc); err != nil {
			return err
		}
		if err := r.writeDocument(tx, old, doc); err != nil {
			return err
		}
		updated = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteDocument removes a document and its indexes. Elements are left alone.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id string) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		key := makeDocumentKey(id)
		doc, err := getValue(tx, key, storage.UnmarshalDocument)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		if err := r.deleteIndexes(tx, doc); err != nil {
			return err
		}
		return tx.Delete(key)
	})
}

// FindByKeyword returns ids of documents whose keyword set contains term.
func (r *DocumentRepository) FindByKeyword(ctx context.Context, collectionID, term string) ([]string, error) {
	if normalizeTerm(term) == "" {
		return nil, nil
	}
	var ids []string
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanPrefix(tx, makeKeywordPrefix(collectionID, term), func(_, val []byte) error {
			ids = append(ids, string(val))
			return nil
		})
	})
	return ids, err
}

// FindSimilar scans searchable documents and ranks them by inner product.
func (r *DocumentRepository) FindSimilar(ctx context.Context, q storage.VectorQuery) ([]storage.DocumentMatch, error) {
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", storage.ErrInvalidQuery)
	}
	var candidates []scored[*core.Document]
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(documentPrefix), func(_, val []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := storage.UnmarshalDocument(val)
			if err != nil {
				return err
			}
			if q.CollectionID != "" && doc.CollectionID != q.CollectionID {
				return nil
			}
			if !doc.Searchable() {
				return nil
			}
			candidates = append(candidates, scored[*core.Document]{
				item:       doc,
				key:        doc.ID,
				similarity: dotProduct(q.Vector, doc.Embedding.Vector),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	ranked := rank(candidates, q)
	matches := make([]storage.DocumentMatch, len(ranked))
	for i, c := range ranked {
		matches[i] = storage.DocumentMatch{Document: c.item, Similarity: c.similarity}
	}
	return matches, nil
}

// CountByStatus tallies documents per status.
func (r *DocumentRepository) CountByStatus(ctx context.Context, collectionID string) (core.StatusCounts, int, error) {
	counts := make(core.StatusCounts, len(core.AllStatuses))
	for _, s := range core.AllStatuses {
		counts[s] = 0
	}
	withEmbedding := 0
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(documentPrefix), func(_, val []byte) error {
			doc, err := storage.UnmarshalDocument(val)
			if err != nil {
				return err
			}
			if collectionID != "" && doc.CollectionID != collectionID {
				return nil
			}
			counts[doc.Status]++
			if doc.Searchable() {
				withEmbedding++
			}
			return nil
		})
	})
	return counts, withEmbedding, err
}

// writeDocument stores doc and moves its index entries from old (may be nil).
func (r *DocumentRepository) writeDocument(tx *badger.Txn, old, doc *core.Document) error {
	if old != nil {
		if err := r.deleteIndexes(tx, old); err != nil {
			return err
		}
	}
	value, err := storage.MarshalDocument(doc)
	if err != nil {
		return err
	}
	if err := tx.Set(makeDocumentKey(doc.ID), value); err != nil {
		return err
	}
	if err := tx.Set(makeStatusKey(doc.Status, doc.CreatedAt, doc.ID), []byte(doc.ID)); err != nil {
		return err
	}
	for _, kw := range doc.Content.Keywords() {
		if normalizeTerm(kw) == "" {
			continue
		}
		if err := tx.Set(makeKeywordKey(doc.CollectionID, kw, doc.ID), []byte(doc.ID)); err != nil {
			return err
		}
	}
	return nil
}

func (r *DocumentRepository) deleteIndexes(tx *badger.Txn, doc *core.Document) error {
	if err := tx.Delete(makeStatusKey(doc.Status, doc.CreatedAt, doc.ID)); err != nil {
		return err
	}
	for _, kw := range doc.Content.Keywords() {
		if normalizeTerm(kw) == "" {
			continue
		}
		if err := tx.Delete(makeKeywordKey(doc.CollectionID, kw, doc.ID)); err != nil {
			return err
		}
	}
	return nil
}
