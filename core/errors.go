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


package core

import (
	"errors"
	"fmt"
	"strings"
)

// Domain validation errors
var (
	// ErrInvalidCollection indicates a Collection failed validation.
	ErrInvalidCollection = errors.New("invalid collection")

	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidElement indicates an Element failed validation.
	ErrInvalidElement = errors.New("invalid element")

	// ErrInvalidStatus indicates an unknown DocumentStatus value.
	ErrInvalidStatus = errors.New("invalid document status")

	// ErrInvalidTransition indicates a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStatusConflict indicates the document was not in the expected prior
	// status when a conditional transition was attempted.
	ErrStatusConflict = errors.New("document status changed concurrently")

	// ErrEmptyQuery indicates a search or chat request without query text.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrEmptyTerms indicates the classifier returned neither exact nor semantic terms.
	ErrEmptyTerms = errors.New("classification has no exact or semantic terms")

	// ErrUnknownCollection indicates a reference to a collection that does not exist.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrInvalidConfidence indicates a confidence outside [0,1].
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")

	// ErrUnknownField indicates a content key not declared by the collection schema.
	ErrUnknownField = errors.New("field not declared in collection schema")

	// ErrFieldType indicates a content value of the wrong type.
	ErrFieldType = errors.New("field value has wrong type")

	// ErrMissingField indicates a required content field is absent.
	ErrMissingField = errors.New("required field missing")

	// ErrCitationOutsideInput indicates a citation that was not among the grounding candidates.
	ErrCitationOutsideInput = errors.New("citation references a source that was not supplied")
)

// ValidationError is a caller error: a missing or malformed query, identifier
// or field. It maps to a 4xx response.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Err.Error()
	}
	return fmt.Sprintf("validation failed on %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError reports an unknown document, element or collection.
type NotFoundError struct {
	Kind string
	ID   string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// UpstreamError wraps a failure of the store, blob store or a model service.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream wraps err as an UpstreamError unless it already carries a
// caller-facing classification.
func Upstream(service string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	var nf *NotFoundError
	var ue *UpstreamError
	if errors.As(err, &ve) || errors.As(err, &nf) || errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Service: service, Err: err}
}

// ItemFailure records why one item of a batch failed.
type ItemFailure struct {
	ID    string `json:"id"`
	Stage string `json:"stage"`
	Err   error  `json:"-"`
	Msg   string `json:"error"`
}

// NewItemFailure builds an ItemFailure with its message populated.
func NewItemFailure(id, stage string, err error) ItemFailure {
	return ItemFailure{ID: id, Stage: stage, Err: err, Msg: err.Error()}
}

// PartialFailure is returned when some items of a batch failed while the
// rest succeeded. The batch is never aborted on the first failure.
type PartialFailure struct {
	Attempted int
	Failures  []ItemFailure
}

func (e *PartialFailure) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.ID)
	}
	return fmt.Sprintf("%d of %d items failed: %s", len(e.Failures), e.Attempted, strings.Join(ids, ", "))
}

// Unwrap exposes the per-item causes to errors.Is and errors.As.
func (e *PartialFailure) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}
