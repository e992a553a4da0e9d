package storage

import (
	"context"

	"github.com/poiesic/corpora/core"
)

// NoThreshold disables similarity pruning in a VectorQuery.
const NoThreshold float32 = -2

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close releases resources held by the repository.
	Close() error
}

// VectorQuery is a nearest-neighbour request over stored embeddings.
// Similarity is the inner product of normalized vectors, higher is closer.
type VectorQuery struct {
	Vector []float32
	// CollectionID pre-filters candidates by equality. Empty means all collections.
	CollectionID string
	// MinSimilarity drops candidates below it. Use NoThreshold to keep everything.
	MinSimilarity float32
	// Limit caps the number of matches. Zero or negative means unlimited.
	Limit int
}

// DocumentMatch is a document returned by a vector query.
type DocumentMatch struct {
	Document   *core.Document
	Similarity float32
}

// ElementMatch is an element returned by a vector query.
type ElementMatch struct {
	Element    *core.Element
	Similarity float32
}

// ListOptions controls status-filtered listing.
// Results are ordered by creation time, oldest first.
type ListOptions struct {
	CollectionID string
	Offset       int
	Limit        int
}

// CollectionRepository stores collection schemas.
type CollectionRepository interface {
	Repository

	// AddCollection stores a new collection.
	// Returns ErrDuplicateKey if the id is taken.
	AddCollection(ctx context.Context, c *core.Collection) (*core.Collection, error)

	// UpdateCollection replaces the schema of an existing collection and bumps
	// its SchemaVersion. Returns ErrNotFound if it doesn't exist.
	UpdateCollection(ctx context.Context, c *core.Collection) (*core.Collection, error)

	// GetCollection retrieves a collection by id.
	// Returns ErrNotFound if it doesn't exist.
	GetCollection(ctx context.Context, id string) (*core.Collection, error)

	// ListCollections returns all collections ordered by id.
	ListCollections(ctx context.Context) ([]*core.Collection, error)
}

// DocumentRepository stores documents and their status index.
type DocumentRepository interface {
	Repository

	// AddDocument stores a new document.
	// Returns ErrDuplicateKey if the id is taken.
	AddDocument(ctx context.Context, doc *core.Document) error

	// GetDocument retrieves a single document by id.
	// Returns ErrNotFound if it doesn't exist.
	GetDocument(ctx context.Context, id string) (*core.Document, error)

	// GetDocuments retrieves documents by id.
	// Missing documents are skipped without error.
	GetDocuments(ctx context.Context, ids ...string) ([]*core.Document, error)

	// ListByStatus returns documents in the given status, oldest first.
	ListByStatus(ctx context.Context, status core.DocumentStatus, opts ListOptions) ([]*core.Document, error)

	// CompareAndSwap applies mutate to the document only if its current status
	// equals expected, and commits atomically. Returns core.ErrStatusConflict
	// when the status differs or a concurrent writer committed first.
	CompareAndSwap(ctx context.Context, id string, expected core.DocumentStatus, mutate func(*core.Document) error) (*core.Document, error)

	// DeleteDocument removes a document and its indexes.
	// Returns ErrNotFound if it doesn't exist.
	DeleteDocument(ctx context.Context, id string) error

	// FindByKeyword returns ids of documents whose keyword set contains term,
	// ignoring case. Documents are returned in id order.
	FindByKeyword(ctx context.Context, collectionID, term string) ([]string, error)

	// FindSimilar runs a nearest-neighbour query over searchable documents.
	FindSimilar(ctx context.Context, q VectorQuery) ([]DocumentMatch, error)

	// CountByStatus tallies documents per status plus how many carry an embedding.
	CountByStatus(ctx context.Context, collectionID string) (core.StatusCounts, int, error)
}

// ElementRepository stores elements scoped by parent document id.
type ElementRepository interface {
	Repository

	// PutElements inserts or replaces elements. Replaying the same write is harmless.
	PutElements(ctx context.Context, elements ...*core.Element) error

	// GetElements returns the elements of a parent document ordered by id.
	GetElements(ctx context.Context, parentID string) ([]*core.Element, error)

	// ListElements returns every element of a collection, or all elements when
	// collectionID is empty.
	ListElements(ctx context.Context, collectionID string) ([]*core.Element, error)

	// DeleteElements removes elements by parent and id.
	DeleteElements(ctx context.Context, elements ...*core.Element) error

	// FindByIdentifier returns elements whose literal identifiers contain term,
	// ignoring case.
	FindByIdentifier(ctx context.Context, collectionID, term string) ([]*core.Element, error)

	// FindSimilar runs a nearest-neighbour query over ready elements.
	FindSimilar(ctx context.Context, q VectorQuery) ([]ElementMatch, error)
}
