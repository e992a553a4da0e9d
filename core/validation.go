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
	"fmt"
	"strings"
)

// ValidateCollection validates a Collection according to domain rules.
//
// Validation rules:
//   - ID and DisplayName must not be empty
//   - Field names must be unique, non-empty and not shadow reserved keys
//   - Field types and sources must be known
//   - Embedding source fields must reference declared or reserved fields
func ValidateCollection(c *Collection) error {
	if c == nil {
		return fmt.Errorf("%w: collection is nil", ErrInvalidCollection)
	}
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidCollection)
	}
	if strings.TrimSpace(c.DisplayName) == "" {
		return fmt.Errorf("%w: display name is required", ErrInvalidCollection)
	}

	seen := make(map[string]bool, len(c.Fields))
	for _, f := range c.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: field name is required", ErrInvalidCollection)
		}
		if IsReservedKey(f.Name) {
			return fmt.Errorf("%w: field %q shadows a reserved key", ErrInvalidCollection, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidCollection, f.Name)
		}
		seen[f.Name] = true
		switch f.Type {
		case FieldString, FieldNumber, FieldBoolean, FieldStringList, FieldDate:
		default:
			return fmt.Errorf("%w: field %q has unknown type %q", ErrInvalidCollection, f.Name, f.Type)
		}
		switch f.Source {
		case SourceGenerated, SourceManual:
		default:
			return fmt.Errorf("%w: field %q has unknown source %q", ErrInvalidCollection, f.Name, f.Source)
		}
	}

	for _, sf := range c.Embedding.SourceFields {
		if !seen[sf.Field] && !IsReservedKey(sf.Field) {
			return fmt.Errorf("%w: embedding source %q is not a declared field", ErrInvalidCollection, sf.Field)
		}
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("%w: embedding dimensions cannot be negative", ErrInvalidCollection)
	}
	return nil
}

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - ID, CollectionID, StorageURI and filename must not be empty
//   - Status must be valid
//   - An embedding is only allowed once the document is ready
//
// NOT validated here (checked against the schema when written):
//   - Content
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDocument)
	}
	if d.CollectionID == "" {
		return fmt.Errorf("%w: collection id is required", ErrInvalidDocument)
	}
	if d.StorageURI == "" {
		return fmt.Errorf("%w: storage uri is required", ErrInvalidDocument)
	}
	if d.File.Filename == "" {
		return fmt.Errorf("%w: filename is required", ErrInvalidDocument)
	}
	if !d.Status.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidDocument, ErrInvalidStatus, d.Status)
	}
	if d.Embedding != nil && d.Status != StatusReady && d.Status != StatusEmbedding {
		return fmt.Errorf("%w: embedding present in status %s", ErrInvalidDocument, d.Status)
	}
	return nil
}

// ValidateElement validates an Element according to domain rules.
func ValidateElement(e *Element) error {
	if e == nil {
		return fmt.Errorf("%w: element is nil", ErrInvalidElement)
	}
	if e.ParentID == "" {
		return fmt.Errorf("%w: parent document id is required", ErrInvalidElement)
	}
	if e.CollectionID == "" {
		return fmt.Errorf("%w: collection id is required", ErrInvalidElement)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown element type %q", ErrInvalidElement, e.Type)
	}
	return nil
}

// ValidateQuery rejects blank query text.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return &ValidationError{Field: "query", Err: ErrEmptyQuery}
	}
	return nil
}

// ValidateClassification checks a classifier result against the known
// collections. A result with neither exact nor semantic terms is a contract
// violation and is reported as ErrEmptyTerms rather than searched.
func ValidateClassification(c *Classification, known func(id string) bool) error {
	if c == nil {
		return fmt.Errorf("%w: classification is nil", ErrEmptyTerms)
	}
	if c.PrimaryCollection == "" || (known != nil && !known(c.PrimaryCollection)) {
		return fmt.Errorf("%w: primary %q", ErrUnknownCollection, c.PrimaryCollection)
	}
	if c.PrimaryConfidence < 0 || c.PrimaryConfidence > 1 {
		return fmt.Errorf("%w: primary %.3f", ErrInvalidConfidence, c.PrimaryConfidence)
	}
	if c.SecondaryConfidence < 0 || c.SecondaryConfidence > 1 {
		return fmt.Errorf("%w: secondary %.3f", ErrInvalidConfidence, c.SecondaryConfidence)
	}
	if known != nil {
		for _, id := range c.SecondaryCollections {
			if !known(id) {
				return fmt.Errorf("%w: secondary %q", ErrUnknownCollection, id)
			}
		}
	}
	if len(c.ExactMatchTerms) == 0 && len(c.SemanticSearchTerms) == 0 {
		return ErrEmptyTerms
	}
	return nil
}
