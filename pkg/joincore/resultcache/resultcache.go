// Copyright 2021 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package resultcache is the process-wide hash-table result cache (spec.md
// §4.2): a mapping from HashTableCacheKey to a fully built table, guarded by
// a single mutex, living until process exit.
package resultcache

import (
	"sync"

	"github.com/ngocbd/omniscidb/pkg/joincore/layout"
)

// ChunkKeyWithDictGeneration pairs a chunk key with the dictionary
// generation it was built against, so a stale dictionary invalidates the
// cache entry even if the chunk key itself is unchanged.
type ChunkKeyWithDictGeneration struct {
	Key            layout.Key
	DictGeneration int64
}

// CacheKey is HashTableCacheKey from spec.md §3: structural equality, with
// Distinct-equals (`=`) and bitwise-equals (`<=>`) producing distinct keys.
type CacheKey struct {
	NumTuplesUpperBound int64
	ChunkKeys           []ChunkKeyWithDictGeneration
	OpType              layout.OpType
}

// encode produces a comparable representation so CacheKey can be a Go map
// key despite containing a slice.
func (k CacheKey) encode() string {
	buf := make([]byte, 0, 32+len(k.ChunkKeys)*24)
	buf = appendInt64(buf, k.NumTuplesUpperBound)
	buf = append(buf, byte(k.OpType))
	for _, ck := range k.ChunkKeys {
		for i := 0; i < ck.Key.Len; i++ {
			buf = appendInt64(buf, int64(ck.Key.Parts[i]))
		}
		buf = append(buf, '.')
		buf = appendInt64(buf, ck.DictGeneration)
		buf = append(buf, '|')
	}
	return string(buf)
}

func appendInt64(buf []byte, v int64) []byte {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(u>>(8*i)))
	}
	return buf
}

// Entry is a built table held by the cache.
type Entry struct {
	Buffer           *layout.Buffer
	EmittedKeysCount int64
}

// Cache is the process-wide hash-table result cache, guarded by a single
// mutex (spec.md §5).
type Cache struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func New() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// containsNegativeTableID reports whether any chunk key in the cache key
// names a temporary/transient table (negative table id), in which case the
// entry must never be cached (spec.md §4.2).
func containsNegativeTableID(key CacheKey) bool {
	for _, ck := range key.ChunkKeys {
		if ck.Key.Len >= 2 && ck.Key.Parts[1] < 0 {
			return true
		}
	}
	return false
}

// Put appends unless the key already exists, in which case it replaces.
// Does not cache when any chunk's table id is negative.
func (c *Cache) Put(key CacheKey, entry Entry) {
	if containsNegativeTableID(key) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.encode()] = entry
}

// Get returns the first matching entry.
func (c *Cache) Get(key CacheKey) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.encode()]
	return e, ok
}

// ApproximateTupleCount returns (entry_count/2, emitted_keys_count) of the
// cached table, to short-circuit HLL estimation on repeated builds.
func (c *Cache) ApproximateTupleCount(key CacheKey) (approxTuples int64, emittedKeys int64, ok bool) {
	e, found := c.Get(key)
	if !found {
		return 0, 0, false
	}
	return e.Buffer.Spec.EntryCount / 2, e.EmittedKeysCount, true
}

// Global is the process-wide default instance (spec.md §5:
// hash_table_cache_ guarded by hash_table_cache_mutex_).
var Global = New()
