package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/storage"
)

// ElementRepository implements storage.ElementRepository for BadgerDB.
type ElementRepository struct {
	backend *Backend
}

var _ storage.ElementRepository = (*ElementRepository)(nil)

// NewElementRepository creates a new ElementRepository.
func NewElementRepository(backend *Backend) *ElementRepository {
	return &ElementRepository{backend: backend}
}

// Close is a no-op; the backend is closed by its owner.
func (r *ElementRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *ElementRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// PutElements inserts or replaces elements and their identifier index.
func (r *ElementRepository) PutElements(ctx context.Context, elements ...*core.Element) error {
	for _, el := range elements {
		if err := core.ValidateElement(el); err != nil {
			return err
		}
	}
	return r.backend.Update(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, el := range elements {
			key := makeElementKey(el.ParentID, el.ID)
			old, err := getValue(tx, key, storage.UnmarshalElement)
			if err != nil {
				return err
			}
			if old != nil {
				if err := r.deleteIndexes(tx, old); err != nil {
					return err
				}
				el.CreatedAt = old.CreatedAt
			} else if el.CreatedAt.IsZero() {
				el.CreatedAt = now
			}
			el.UpdatedAt = now

			value, err := storage.MarshalElement(el)
			if err != nil {
				return err
			}
			if err := tx.Set(key, value); err != nil {
				return err
			}
			for _, ident := range el.Payload.Identifiers {
				if normalizeTerm(ident) == "" {
					continue
				}
				if err := tx.Set(makeIdentifierKey(el.CollectionID, ident, el.ParentID, el.ID), key); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// GetElements returns the elements of one parent document.
func (r *ElementRepository) GetElements(ctx context.Context, parentID string) ([]*core.Element, error) {
	var results []*core.Element
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanPrefix(tx, makeElementParentPrefix(parentID), func(_, val []byte) error {
			el, err := storage.UnmarshalElement(val)
			if err != nil {
				return err
			}
			results = append(results, el)
			return nil
		})
	})
	return results, err
}

// ListElements returns every element of a collection.
func (r *ElementRepository) ListElements(ctx context.Context, collectionID string) ([]*core.Element, error) {
	var results []*core.Element
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(elementPrefix), func(_, val []byte) error {
			el, err := storage.UnmarshalElement(val)
			if err != nil {
				return err
			}
			if collectionID == "" || el.CollectionID == collectionID {
				results = append(results, el)
			}
			return nil
		})
	})
	return results, err
}

// DeleteElements removes elements and their identifier index entries.
func (r *ElementRepository) DeleteElements(ctx context.Context, elements ...*core.Element) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		for _, el := range elements {
			key := makeElementKey(el.ParentID, el.ID)
			old, err := getValue(tx, key, storage.UnmarshalElement)
			if err != nil {
				return err
			}
			if old == nil {
				continue
			}
			if err := r.deleteIndexes(tx, old); err != nil {
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindByIdentifier returns elements exposing term as a literal identifier.
func (r *ElementRepository) FindByIdentifier(ctx context.Context, collectionID, term string) ([]*core.Element, error) {
	if normalizeTerm(term) == "" {
		return nil, nil
	}
	var results []*core.Element
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanPrefix(tx, makeIdentifierPrefix(collectionID, term), func(_, val []byte) error {
			el, err := getValue(tx, val, storage.UnmarshalElement)
			if err != nil {
				return err
			}
			if el != nil {
				results = append(results, el)
			}
			return nil
		})
	})
	return results, err
}

// FindSimilar scans ready elements and ranks them by inner product.
func (r *ElementRepository) FindSimilar(ctx context.Context, q storage.VectorQuery) ([]storage.ElementMatch, error) {
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", storage.ErrInvalidQuery)
	}
	var candidates []scored[*core.Element]
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(elementPrefix), func(key, val []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			el, err := storage.UnmarshalElement(val)
			if err != nil {
				return err
			}
			if q.CollectionID != "" && el.CollectionID != q.CollectionID {
				return nil
			}
			if el.Status != core.ElementReady || el.Embedding == nil || len(el.Embedding.Vector) == 0 {
				return nil
			}
			candidates = append(candidates, scored[*core.Element]{
				item:       el,
				key:        string(key),
				similarity: dotProduct(q.Vector, el.Embedding.Vector),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	ranked := rank(candidates, q)
	matches := make([]storage.ElementMatch, len(ranked))
	for i, c := range ranked {
		matches[i] = storage.ElementMatch{Element: c.item, Similarity: c.similarity}
	}
	return matches, nil
}

func (r *ElementRepository) deleteIndexes(tx *badger.Txn, el *core.Element) error {
	for _, ident := range el.Payload.Identifiers {
		if normalizeTerm(ident) == "" {
			continue
		}
		if err := tx.Delete(makeIdentifierKey(el.CollectionID, ident, el.ParentID, el.ID)); err != nil {
			return err
		}
	}
	return nil
}
