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

import (
	"encoding/json"
	"fmt"

	"github.com/poiesic/corpora/core"
)

func marshal[T any](v *T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

func unmarshal[T any](data []byte) (*T, error) {
	if len(data) == 0 {
		return nil, ErrTruncatedData
	}
	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return v, nil
}

// MarshalCollection serializes a Collection to bytes.
func MarshalCollection(c *core.Collection) ([]byte, error) {
	return marshal(c)
}

// UnmarshalCollection deserializes a Collection from bytes.
func UnmarshalCollection(data []byte) (*core.Collection, error) {
	return unmarshal[core.Collection](data)
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(d *core.Document) ([]byte, error) {
	return marshal(d)
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	return unmarshal[core.Document](data)
}

// MarshalElement serializes an Element to bytes.
func MarshalElement(e *core.Element) ([]byte, error) {
	return marshal(e)
}

// UnmarshalElement deserializes an Element from bytes.
func UnmarshalElement(data []byte) (*core.Element, error) {
	return unmarshal[core.Element](data)
}
