package blob

import "errors"

var (
	// ErrRootRequired is returned when a store is created without a root URL.
	ErrRootRequired = errors.New("blob root URL is required")

	// ErrBlobExists is returned when writing to an occupied address.
	ErrBlobExists = errors.New("blob already exists")

	// ErrBlobNotFound is returned when no object lives at a URI.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrInvalidName is returned for empty names or names containing path separators.
	ErrInvalidName = errors.New("invalid blob name")

	// ErrOutsideRoot is returned for URIs that do not belong to the store.
	ErrOutsideRoot = errors.New("uri is outside the blob root")

	// ErrSecretRequired is returned when a signer is created without a secret.
	ErrSecretRequired = errors.New("signing secret must be at least 16 bytes")

	// ErrSignerRequired is returned by SignedURL on a store without a signer.
	ErrSignerRequired = errors.New("blob store has no signer")

	// ErrSignatureExpired is returned for signed URLs past their expiry.
	ErrSignatureExpired = errors.New("signed url expired")

	// ErrSignatureInvalid is returned for tampered or malformed signed URLs.
	ErrSignatureInvalid = errors.New("signed url signature invalid")
)
