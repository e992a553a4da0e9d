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

package storage

import "errors"

// Sentinel errors shared by every repository implementation. Callers above
// the storage layer should test with errors.Is.
var (
	// ErrNotFound is returned when no collection, document or element has the requested id.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned when adding a record whose id is taken.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrTransactionFailed wraps a failed commit of the underlying store.
	ErrTransactionFailed = errors.New("transaction failed")
	// ErrStorageClosed is returned by every operation after Close.
	ErrStorageClosed = errors.New("storage is closed")
	// ErrInvalidQuery rejects list and similarity queries with bad arguments,
	// such as an unknown status, a negative page or an empty vector.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrSerializationFailed wraps an encode or decode failure of a stored record.
	ErrSerializationFailed = errors.New("record serialization failed")
	// ErrTruncatedData is returned when a stored record is empty.
	ErrTruncatedData = errors.New("truncated record")
)
