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

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/storage"
)

// CacheRepository implements storage.CacheRepository on a SQLite table.
type CacheRepository struct {
	db   *sql.DB
	path string
}

var _ storage.CacheRepository = (*CacheRepository)(nil)

const entryColumns = `id, query_hash, query_text, normalized_query, user_id, document_id, chapter,
	result, metadata, access_count, created_at, last_accessed_at`

const infoColumns = `id, query_hash, normalized_query, user_id, document_id, access_count,
	created_at, last_accessed_at`

// GetEntry retrieves an entry with its results.
func (r *CacheRepository) GetEntry(ctx context.Context, queryHash string) (*core.CacheEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM query_cache WHERE query_hash = ?`, queryHash)

	var (
		entry                   core.CacheEntry
		docID                   int64
		result, metadata        string
		createdAt, lastAccessed int64
	)
	err := row.Scan(&entry.ID, &entry.QueryHash, &entry.QueryText, &entry.NormalizedQuery,
		&entry.UserID, &docID, &entry.Chapter, &result, &metadata, &entry.AccessCount,
		&createdAt, &lastAccessed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}

	results, err := storage.Unmarshal[[]core.ScoredResult]([]byte(result))
	if err != nil {
		return nil, err
	}
	meta, err := storage.Unmarshal[core.CacheMetadata]([]byte(metadata))
	if err != nil {
		return nil, err
	}

	entry.DocumentID = core.ID(uint64(docID))
	entry.Results = *results
	entry.Metadata = *meta
	entry.CreatedAt = fromNanos(createdAt)
	entry.LastAccessedAt = fromNanos(lastAccessed)
	return &entry, nil
}

// PutEntry inserts an entry, replacing any entry with the same hash.
func (r *CacheRepository) PutEntry(ctx context.Context, entry *core.CacheEntry) error {
	results := entry.Results
	if results == nil {
		results = []core.ScoredResult{}
	}
	result, err := storage.Marshal(results)
	if err != nil {
		return err
	}
	metadata, err := storage.Marshal(entry.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO query_cache (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(query_hash) DO UPDATE SET
			id = excluded.id,
			query_text = excluded.query_text,
			normalized_query = excluded.normalized_query,
			user_id = excluded.user_id,
			document_id = excluded.document_id,
			chapter = excluded.chapter,
			result = excluded.result,
			metadata = excluded.metadata,
			access_count = excluded.access_count,
			created_at = excluded.created_at,
			last_accessed_at = excluded.last_accessed_at`,
		entry.ID, entry.QueryHash, entry.QueryText, entry.NormalizedQuery, entry.UserID,
		int64(uint64(entry.DocumentID)), entry.Chapter, string(result), string(metadata),
		entry.AccessCount, toNanos(entry.CreatedAt), toNanos(entry.LastAccessedAt),
	)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// TouchEntry increments the access count in a single UPDATE, so concurrent
// touches never lose an increment.
func (r *CacheRepository) TouchEntry(ctx context.Context, queryHash string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE query_cache
		SET access_count = access_count + 1,
		    last_accessed_at = MAX(last_accessed_at, ?)
		WHERE query_hash = ?`, toNanos(at), queryHash)
	if err != nil {
		return fmt.Errorf("touching cache entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RecentEntries returns up to limit entries for userID, most recently accessed first.
func (r *CacheRepository) RecentEntries(ctx context.Context, userID string, limit int) ([]core.CacheEntryInfo, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+infoColumns+` FROM query_cache
		WHERE user_id = ?
		ORDER BY last_accessed_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent cache entries: %w", err)
	}
	return scanInfos(rows)
}

// ListEntryInfo returns every entry without results.
func (r *CacheRepository) ListEntryInfo(ctx context.Context) ([]core.CacheEntryInfo, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+infoColumns+` FROM query_cache`)
	if err != nil {
		return nil, fmt.Errorf("listing cache entries: %w", err)
	}
	return scanInfos(rows)
}

// DeleteEntries removes entries by hash and returns how many existed.
func (r *CacheRepository) DeleteEntries(ctx context.Context, queryHashes ...string) (int, error) {
	deleted := 0
	// SQLite caps bound parameters per statement.
	const chunk = 500
	for start := 0; start < len(queryHashes); start += chunk {
		end := min(start+chunk, len(queryHashes))
		batch := queryHashes[start:end]

		args := make([]any, len(batch))
		for i, h := range batch {
			args[i] = h
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")

		res, err := r.db.ExecContext(ctx,
			`DELETE FROM query_cache WHERE query_hash IN (`+placeholders+`)`, args...)
		if err != nil {
			return deleted, fmt.Errorf("deleting cache entries: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return deleted, err
		}
		deleted += int(n)
	}
	return deleted, nil
}

// CountEntries returns the number of stored entries.
func (r *CacheRepository) CountEntries(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM query_cache`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return count, nil
}

func scanInfos(rows *sql.Rows) ([]core.CacheEntryInfo, error) {
	defer rows.Close()

	var infos []core.CacheEntryInfo
	for rows.Next() {
		var (
			info                    core.CacheEntryInfo
			docID                   int64
			createdAt, lastAccessed int64
		)
		if err := rows.Scan(&info.ID, &info.QueryHash, &info.NormalizedQuery, &info.UserID,
			&docID, &info.AccessCount, &createdAt, &lastAccessed); err != nil {
			return nil, fmt.Errorf("scanning cache entry: %w", err)
		}
		info.DocumentID = core.ID(uint64(docID))
		info.CreatedAt = fromNanos(createdAt)
		info.LastAccessedAt = fromNanos(lastAccessed)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
