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

import "fmt"

// DocumentStatus is a stage of the document processing lifecycle.
type DocumentStatus string

const (
	StatusPending       DocumentStatus = "pending"
	StatusAnalyzing     DocumentStatus = "analyzing"
	StatusMetadataReady DocumentStatus = "metadata_ready"
	StatusEmbedding     DocumentStatus = "embedding"
	StatusReady         DocumentStatus = "ready"
	StatusError         DocumentStatus = "error"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []DocumentStatus{
	StatusPending,
	StatusAnalyzing,
	StatusMetadataReady,
	StatusEmbedding,
	StatusReady,
	StatusError,
}

// forward holds the single successor of each non-terminal status.
var forward = map[DocumentStatus]DocumentStatus{
	StatusPending:       StatusAnalyzing,
	StatusAnalyzing:     StatusMetadataReady,
	StatusMetadataReady: StatusEmbedding,
	StatusEmbedding:     StatusReady,
}

// Valid reports whether s is one of the known statuses.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAnalyzing, StatusMetadataReady, StatusEmbedding, StatusReady, StatusError:
		return true
	}
	return false
}

// Terminal reports whether no worker stage will move the document further.
func (s DocumentStatus) Terminal() bool {
	return s == StatusReady || s == StatusError
}

// Next returns the successor of s on the success path.
func (s DocumentStatus) Next() (DocumentStatus, bool) {
	n, ok := forward[s]
	return n, ok
}

// CanTransition reports whether a worker stage may move a document from one
// status to another. Operator resets are handled separately by CanReset.
func CanTransition(from, to DocumentStatus) bool {
	if to == StatusError {
		return !from.Terminal() && from.Valid()
	}
	next, ok := forward[from]
	return ok && next == to
}

// CanReset reports whether an operator may send a document back to pending.
func CanReset(from DocumentStatus) bool {
	return from == StatusError
}

// ValidateTransition returns ErrInvalidTransition wrapped with context when
// the move is not allowed.
func ValidateTransition(from, to DocumentStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
