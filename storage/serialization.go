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
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/poiesic/marginalia/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	if len(data) < 8 {
		return 0, ErrTruncatedData
	}
	return core.ID(binary.BigEndian.Uint64(data)), nil
}

// Marshal serializes v as JSON.
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// Unmarshal deserializes JSON data into a new T.
func Unmarshal[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &v, nil
}

// storedFragment keeps embeddings, which ContentFragment omits from JSON.
type storedFragment struct {
	core.ContentFragment
	Embedding []float32 `json:"embedding,omitempty"`
}

// FragmentSet is the persisted form of a document's precomputed fragments.
type FragmentSet struct {
	DocumentID core.ID          `json:"document_id"`
	Version    time.Time        `json:"version"`
	Fragments  []storedFragment `json:"fragments"`
}

// MarshalFragments serializes fragments including their embeddings.
func MarshalFragments(documentID core.ID, version time.Time, fragments []core.ContentFragment) ([]byte, error) {
	set := FragmentSet{DocumentID: documentID, Version: version.UTC(), Fragments: make([]storedFragment, len(fragments))}
	for i, f := range fragments {
		set.Fragments[i] = storedFragment{ContentFragment: f, Embedding: f.Embedding}
	}
	return Marshal(set)
}

// UnmarshalFragments deserializes fragments and their version.
func UnmarshalFragments(data []byte) ([]core.ContentFragment, time.Time, error) {
	set, err := Unmarshal[FragmentSet](data)
	if err != nil {
		return nil, time.Time{}, err
	}
	out := make([]core.ContentFragment, len(set.Fragments))
	for i, f := range set.Fragments {
		out[i] = f.ContentFragment
		out[i].Embedding = f.Embedding
	}
	return out, set.Version, nil
}
