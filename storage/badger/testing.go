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

package badger

// Repositories bundles every repository sharing one backend.
type Repositories struct {
	Backend     *Backend
	Library     *LibraryRepository
	Fragments   *FragmentRepository
	Cache       *CacheRepository
	Checkpoints *CheckpointRepository
}

// NewRepositories creates all repositories on top of backend.
func NewRepositories(backend *Backend) *Repositories {
	return &Repositories{
		Backend:     backend,
		Library:     NewLibraryRepository(backend),
		Fragments:   NewFragmentRepository(backend),
		Cache:       NewCacheRepository(backend),
		Checkpoints: NewCheckpointRepository(backend),
	}
}

// Close closes the shared backend.
func (r *Repositories) Close() error {
	return r.Backend.Close()
}

// NewMemoryRepositories creates in-memory repositories for testing.
// Caller must Close the result when done.
func NewMemoryRepositories() (*Repositories, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}
	return NewRepositories(backend), nil
}
