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

package ai

import (
	"container/list"
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// CachingEmbedder wraps an Embedder with a bounded in-memory LRU keyed by a
// BLAKE2b digest of the input text. Entries expire after a TTL.
type CachingEmbedder struct {
	inner    Embedder
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List

	hits   uint64
	misses uint64
}

type embeddingEntry struct {
	key       string
	vector    []float32
	expiresAt time.Time
}

// NewCachingEmbedder wraps inner. A capacity of zero or less returns inner unchanged.
func NewCachingEmbedder(inner Embedder, capacity int, ttl time.Duration) Embedder {
	if capacity <= 0 {
		return inner
	}
	return newCachingEmbedder(inner, capacity, ttl)
}

func newCachingEmbedder(inner Embedder, capacity int, ttl time.Duration) *CachingEmbedder {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachingEmbedder{
		inner:    inner,
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// EmbedText returns the cached vector for text or computes and caches it.
func (c *CachingEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := embeddingKey(text)
	if v, ok := c.get(key); ok {
		return v, nil
	}
	v, err := c.inner.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	c.put(key, v)
	return v, nil
}

// EmbedTexts sends only the cache misses to the wrapped embedder, in one batch.
func (c *CachingEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		keys[i] = embeddingKey(text)
		if v, ok := c.get(keys[i]); ok {
			out[i] = v
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := c.inner.EmbedTexts(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(missing))
	}
	for j, idx := range missingIdx {
		out[idx] = vectors[j]
		c.put(keys[idx], vectors[j])
	}
	return out, nil
}

// Stats returns hit and miss counts.
func (c *CachingEmbedder) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of cached vectors.
func (c *CachingEmbedder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *CachingEmbedder) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	e := el.Value.(*embeddingEntry)
	if c.now().After(e.expiresAt) {
		c.order.Remove(el)
		delete(c.items, key)
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return e.vector, true
}

func (c *CachingEmbedder) put(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*embeddingEntry)
		e.vector = vector
		e.expiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*embeddingEntry).key)
	}

	c.items[key] = c.order.PushFront(&embeddingEntry{
		key:       key,
		vector:    vector,
		expiresAt: c.now().Add(c.ttl),
	})
}

func embeddingKey(text string) string {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
