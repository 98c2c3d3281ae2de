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

var (
	// ErrNotFound is returned when a document, fragment set, or cache entry does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrTransactionFailed wraps a write that kept losing commit conflicts.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrStorageClosed is returned by operations on a closed backend.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrSerializationFailed wraps encoding and decoding failures of stored records.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTruncatedData indicates a stored key or value is shorter than its encoding requires.
	ErrTruncatedData = errors.New("truncated data")

	// ErrEmptyProcessorType is returned when a checkpoint has no processor type.
	ErrEmptyProcessorType = errors.New("processor type required")
)
