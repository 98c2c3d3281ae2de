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

import (
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/storage"
)

// CacheRepository implements storage.CacheRepository for BadgerDB.
//
// Each entry is split in two records: a small header with the access
// bookkeeping and a body with the results. Touching an entry rewrites only
// the header.
type CacheRepository struct {
	backend *Backend
}

var _ storage.CacheRepository = (*CacheRepository)(nil)

type cacheHeader struct {
	ID              string    `json:"id"`
	QueryHash       string    `json:"query_hash"`
	QueryText       string    `json:"query_text"`
	NormalizedQuery string    `json:"normalized_query"`
	UserID          string    `json:"user_id"`
	DocumentID      core.ID   `json:"document_id"`
	Chapter         string    `json:"chapter,omitempty"`
	AccessCount     int64     `json:"access_count"`
	CreatedAt       time.Time `json:"created_at"`
	LastAccessedAt  time.Time `json:"last_accessed_at"`
}

type cacheBody struct {
	Results  []core.ScoredResult `json:"results"`
	Metadata core.CacheMetadata  `json:"metadata"`
}

func (h *cacheHeader) info() core.CacheEntryInfo {
	return core.CacheEntryInfo{
		ID:              h.ID,
		QueryHash:       h.QueryHash,
		NormalizedQuery: h.NormalizedQuery,
		UserID:          h.UserID,
		DocumentID:      h.DocumentID,
		AccessCount:     h.AccessCount,
		CreatedAt:       h.CreatedAt,
		LastAccessedAt:  h.LastAccessedAt,
	}
}

// NewCacheRepository creates a new CacheRepository.
func NewCacheRepository(backend *Backend) *CacheRepository {
	return &CacheRepository{backend: backend}
}

// Close is a no-op; the backend owns the database handle.
func (r *CacheRepository) Close() error {
	return nil
}

// GetEntry retrieves an entry with its results.
func (r *CacheRepository) GetEntry(ctx context.Context, queryHash string) (*core.CacheEntry, error) {
	var entry *core.CacheEntry
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		header, err := readRecord[cacheHeader](tx, makeCacheHeaderKey(queryHash))
		if err != nil {
			return err
		}
		if header == nil {
			return storage.ErrNotFound
		}
		body, err := readRecord[cacheBody](tx, makeCacheBodyKey(queryHash))
		if err != nil {
			return err
		}
		if body == nil {
			body = &cacheBody{}
		}
		entry = &core.CacheEntry{
			ID:              header.ID,
			QueryHash:       header.QueryHash,
			QueryText:       header.QueryText,
			NormalizedQuery: header.NormalizedQuery,
			UserID:          header.UserID,
			DocumentID:      header.DocumentID,
			Chapter:         header.Chapter,
			Results:         body.Results,
			Metadata:        body.Metadata,
			AccessCount:     header.AccessCount,
			CreatedAt:       header.CreatedAt,
			LastAccessedAt:  header.LastAccessedAt,
		}
		return nil
	}, false)
	return entry, err
}

// PutEntry inserts an entry, replacing any entry with the same hash.
func (r *CacheRepository) PutEntry(ctx context.Context, entry *core.CacheEntry) error {
	header := cacheHeader{
		ID:              entry.ID,
		QueryHash:       entry.QueryHash,
		QueryText:       entry.QueryText,
		NormalizedQuery: entry.NormalizedQuery,
		UserID:          entry.UserID,
		DocumentID:      entry.DocumentID,
		Chapter:         entry.Chapter,
		AccessCount:     entry.AccessCount,
		CreatedAt:       entry.CreatedAt.UTC(),
		LastAccessedAt:  entry.LastAccessedAt.UTC(),
	}
	body := cacheBody{Results: entry.Results, Metadata: entry.Metadata}

	return r.backend.UpdateWithRetry(ctx, func(tx *badger.Txn) error {
		old, err := readRecord[cacheHeader](tx, makeCacheHeaderKey(entry.QueryHash))
		if err != nil {
			return err
		}
		if old != nil && old.UserID != entry.UserID {
			if err := tx.Delete(makeCacheUserKey(old.UserID, old.QueryHash)); err != nil {
				return err
			}
		}
		if err := writeRecord(tx, makeCacheHeaderKey(entry.QueryHash), &header); err != nil {
			return err
		}
		if err := writeRecord(tx, makeCacheBodyKey(entry.QueryHash), &body); err != nil {
			return err
		}
		return tx.Set(makeCacheUserKey(entry.UserID, entry.QueryHash), nil)
	})
}

// TouchEntry increments the access count and sets the last-accessed time.
// Concurrent touches that conflict are retried, so increments are not lost.
func (r *CacheRepository) TouchEntry(ctx context.Context, queryHash string, at time.Time) error {
	return r.backend.UpdateWithRetry(ctx, func(tx *badger.Txn) error {
		key := makeCacheHeaderKey(queryHash)
		header, err := readRecord[cacheHeader](tx, key)
		if err != nil {
			return err
		}
		if header == nil {
			return storage.ErrNotFound
		}
		header.AccessCount++
		if at.After(header.LastAccessedAt) {
			header.LastAccessedAt = at.UTC()
		}
		return writeRecord(tx, key, header)
	})
}

// RecentEntries returns up to limit entries for userID, most recently accessed first.
func (r *CacheRepository) RecentEntries(ctx context.Context, userID string, limit int) ([]core.CacheEntryInfo, error) {
	var infos []core.CacheEntryInfo
	prefix := makeUserIndexPrefix(cacheUserPrefix, userID)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanKeys(tx, prefix, func(k []byte) error {
			hash := string(k[len(prefix):])
			header, err := readRecord[cacheHeader](tx, makeCacheHeaderKey(hash))
			if err != nil {
				return err
			}
			if header != nil {
				infos = append(infos, header.info())
			}
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}

	sortByRecentAccess(infos)
	if limit > 0 && len(infos) > limit {
		infos = infos[:limit]
	}
	return infos, nil
}

// ListEntryInfo returns every entry without results.
func (r *CacheRepository) ListEntryInfo(ctx context.Context) ([]core.CacheEntryInfo, error) {
	var infos []core.CacheEntryInfo
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(cacheHeaderPrefix+":"), func(_, val []byte) error {
			header, err := storage.Unmarshal[cacheHeader](val)
			if err != nil {
				return err
			}
			infos = append(infos, header.info())
			return nil
		})
	}, false)
	return infos, err
}

// DeleteEntries removes entries by hash and returns how many existed.
func (r *CacheRepository) DeleteEntries(ctx context.Context, queryHashes ...string) (int, error) {
	deleted := 0
	// Chunk deletes so a large eviction stays under badger's transaction limits.
	for chunk := range slices.Chunk(queryHashes, 256) {
		n := 0
		err := r.backend.UpdateWithRetry(ctx, func(tx *badger.Txn) error {
			n = 0
			for _, hash := range chunk {
				header, err := readRecord[cacheHeader](tx, makeCacheHeaderKey(hash))
				if err != nil {
					return err
				}
				if header == nil {
					continue
				}
				for _, key := range [][]byte{
					makeCacheHeaderKey(hash),
					makeCacheBodyKey(hash),
					makeCacheUserKey(header.UserID, hash),
				} {
					if err := tx.Delete(key); err != nil {
						return err
					}
				}
				n++
			}
			return nil
		})
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	return deleted, nil
}

// CountEntries returns the number of stored entries.
func (r *CacheRepository) CountEntries(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanKeys(tx, []byte(cacheHeaderPrefix+":"), func([]byte) error {
			count++
			return nil
		})
	}, false)
	return count, err
}

func sortByRecentAccess(infos []core.CacheEntryInfo) {
	slices.SortStableFunc(infos, func(a, b core.CacheEntryInfo) int {
		return b.LastAccessedAt.Compare(a.LastAccessedAt)
	})
}
