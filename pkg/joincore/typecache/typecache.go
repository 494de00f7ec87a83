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

// Package typecache is the process-wide HashTypeCache (spec.md §4.1): a
// mapping from the chunk keys feeding a join to the last layout that
// succeeded for them, so a later build of the same join skips straight to
// the working layout instead of retrying OneToOne first.
package typecache

import (
	"sync"

	"github.com/ngocbd/omniscidb/pkg/joincore/layout"
)

// Key identifies a join by the chunk keys of its inner columns, in order.
type Key struct {
	chunkKeys string // joined, comparable encoding of the ordered chunk keys
}

// NewKey builds a lookup key from the ordered inner-column chunk keys.
func NewKey(chunkKeys []layout.Key) Key {
	return Key{chunkKeys: encodeChunkKeys(chunkKeys)}
}

func encodeChunkKeys(keys []layout.Key) string {
	buf := make([]byte, 0, len(keys)*21)
	for _, k := range keys {
		for i := 0; i < k.Len; i++ {
			buf = append(buf, byte(k.Parts[i]), byte(k.Parts[i]>>8), byte(k.Parts[i]>>16), byte(k.Parts[i]>>24))
		}
		buf = append(buf, '|')
	}
	return string(buf)
}

// Cache is a HashTypeCache guarded by one mutex, an injectable service per
// spec.md §9's note that a global mutable cache should not be only a
// package-level variable with no seam for tests; Global below is the
// process-wide default instance.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]layout.Layout
}

// New constructs an (injectable) HashTypeCache instance.
func New() *Cache {
	return &Cache{entries: make(map[Key]layout.Layout)}
}

// Get returns the cached layout for key and whether one was found.
func (c *Cache) Get(key Key) (layout.Layout, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.entries[key]
	return l, ok
}

// Set records the last-successful layout for key, overwriting any prior
// entry.
func (c *Cache) Set(key Key, l layout.Layout) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = l
}

// Global is the process-wide default instance, analogous to the source's
// static HashTypeCache::hash_type_cache_. Code with a test seam should
// prefer constructing its own *Cache and threading it through; join.New
// wires this one into the orchestrator (C8), matching the source's
// process-lifetime singleton.
var Global = New()
