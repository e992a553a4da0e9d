package ingestion

import "errors"

var (
	// ErrManagerRequired is returned when a lifecycle manager is not provided.
	ErrManagerRequired = errors.New("lifecycle manager required")

	// ErrBlobSourceRequired is returned when a blob source is not provided.
	ErrBlobSourceRequired = errors.New("blob source required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrDimensionMismatch is returned when an embedding does not have the
	// collection's declared dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimensions do not match collection")

	// errSkipped marks a document another worker already claimed or finished.
	errSkipped = errors.New("document skipped")
)
