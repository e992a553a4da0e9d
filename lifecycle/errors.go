package lifecycle

import (
	"errors"

	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/storage"
)

var (
	// ErrCollectionRepositoryRequired is returned when a collection repository is not provided.
	ErrCollectionRepositoryRequired = errors.New("collection repository required")

	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrElementRepositoryRequired is returned when an element repository is not provided.
	ErrElementRepositoryRequired = errors.New("element repository required")

	// ErrUnexpectedTerminal is returned by WaitFor when the document reached a
	// terminal status other than the ones waited for, or was deleted.
	ErrUnexpectedTerminal = errors.New("document reached an unexpected terminal state")
)

// storeError classifies a repository error for callers. Missing records
// become NotFoundError; lifecycle and validation errors pass through; the
// rest are upstream failures.
func storeError(kind, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return &core.NotFoundError{Kind: kind, ID: id, Err: err}
	}
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, core.ErrStatusConflict),
		errors.Is(err, core.ErrInvalidTransition),
		errors.Is(err, core.ErrInvalidDocument),
		errors.Is(err, core.ErrInvalidElement):
		return err
	}
	return core.Upstream("document store", err)
}
