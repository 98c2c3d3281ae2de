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

import "errors"

// Failure classes shared by every component.
var (
	// ErrTransientProvider indicates an embedding or completion call failed or timed out.
	ErrTransientProvider = errors.New("transient provider error")

	// ErrMalformedResponse indicates structured model output could not be parsed.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrCacheStorage indicates the cache persistence layer failed.
	ErrCacheStorage = errors.New("cache storage error")

	// ErrMissingContext indicates a query lacks the user context it needs.
	ErrMissingContext = errors.New("missing query context")
)

// Domain validation errors
var (
	// ErrInvalidQuery indicates a Query failed validation.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrEmptyContent indicates required text is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyUserID indicates the user id is missing.
	ErrEmptyUserID = errors.New("user id cannot be empty")

	// ErrInvalidSourceType indicates an unknown SourceType value.
	ErrInvalidSourceType = errors.New("invalid source type")
)
