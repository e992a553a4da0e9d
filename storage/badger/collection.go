package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/storage"
)

// CollectionRepository implements storage.CollectionRepository for BadgerDB.
type CollectionRepository struct {
	backend *Backend
}

var _ storage.CollectionRepository = (*CollectionRepository)(nil)

// NewCollectionRepository creates a new CollectionRepository.
func NewCollectionRepository(backend *Backend) *CollectionRepository {
	return &CollectionRepository{backend: backend}
}

// Close is a no-op; the backend is closed by its owner.
func (r *CollectionRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *CollectionRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddCollection stores a new collection.
func (r *CollectionRepository) AddCollection(ctx context.Context, c *core.Collection) (*core.Collection, error) {
	if err := core.ValidateCollection(c); err != nil {
		return nil, err
	}
	err := r.backend.Update(func(tx *badger.Txn) error {
		key := makeCollectionKey(c.ID)
		existing, err := getValue(tx, key, storage.UnmarshalCollection)
		if err != nil {
			return err
		}
		if existing != nil {
			return storage.ErrDuplicateKey
		}
		c.SchemaVersion = 1
		c.CreatedAt = time.Now().UTC()
		c.UpdatedAt = c.CreatedAt
		value, err := storage.MarshalCollection(c)
		if err != nil {
			return err
		}
		return tx.Set(key, value)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateCollection replaces an existing collection's schema.
func (r *CollectionRepository) UpdateCollection(ctx context.Context, c *core.Collection) (*core.Collection, error) {
	if err := core.ValidateCollection(c); err != nil {
		return nil, err
	}
	err := r.backend.Update(func(tx *badger.Txn) error {
		key := makeCollectionKey(c.ID)
		existing, err := getValue(tx, key, storage.UnmarshalCollection)
		if err != nil {
			return err
		}
		if existing == nil {
			return storage.ErrNotFound
		}
		c.SchemaVersion = existing.SchemaVersion + 1
		c.CreatedAt = existing.CreatedAt
		c.UpdatedAt = time.Now().UTC()
		value, err := storage.MarshalCollection(c)
		if err != nil {
			return err
		}
		return tx.Set(key, value)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetCollection retrieves a collection by id.
func (r *CollectionRepository) GetCollection(ctx context.Context, id string) (*core.Collection, error) {
	var result *core.Collection
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		result, err = getValue(tx, makeCollectionKey(id), storage.UnmarshalCollection)
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

// ListCollections returns all collections ordered by id.
func (r *CollectionRepository) ListCollections(ctx context.Context) ([]*core.Collection, error) {
	var results []*core.Collection
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(collectionPrefix), func(_, val []byte) error {
			c, err := storage.UnmarshalCollection(val)
			if err != nil {
				return err
			}
			results = append(results, c)
			return nil
		})
	})
	return results, err
}
