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

package search

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrElementRepositoryRequired is returned when an element repository is not provided.
	ErrElementRepositoryRequired = errors.New("element repository required")

	// ErrCollectionRepositoryRequired is returned when a collection repository is not provided.
	ErrCollectionRepositoryRequired = errors.New("collection repository required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrEngineRequired is returned when a router is created without an engine.
	ErrEngineRequired = errors.New("search engine required")

	// ErrNoCollections is returned when there is nothing to route a query to.
	ErrNoCollections = errors.New("no collections defined")

	// ErrInvalidThreshold is returned for thresholds other than ShowAll or [0,1].
	ErrInvalidThreshold = errors.New("threshold must be -1 or between 0 and 1")
)
