// Copyright 2022 Matrix Origin
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

// Package cache is the foreign storage cache (spec.md §4.6, component
// C4.6): it tracks which chunks and which chunk metadata are currently
// materialized on disk via filemgr, evicting least-recently-used chunks
// per table once a byte budget is exceeded.
package cache

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/btree"

	"github.com/ngocbd/omniscidb/internal/logutil"
	"github.com/ngocbd/omniscidb/internal/moerr"
	"github.com/ngocbd/omniscidb/pkg/foreigncache/eviction"
	"github.com/ngocbd/omniscidb/pkg/foreigncache/filemgr"
	"github.com/ngocbd/omniscidb/pkg/foreigncache/wrapper"
	"github.com/ngocbd/omniscidb/pkg/joincore/layout"
)

const btreeDegree = 32

// chunkItem orders cached_chunks_ by the same lexicographic ChunkKey rule
// every other ordered set in this project uses.
type chunkItem struct{ key layout.Key }

func (c chunkItem) Less(than btree.Item) bool { return c.key.Less(than.(chunkItem).key) }

// metadataItem orders cached_metadata_, carrying the metadata payload
// alongside the key so a prefix scan can return it without a second lookup.
type metadataItem struct {
	key  layout.Key
	frag int
	meta layout.Metadata
}

func (m metadataItem) Less(than btree.Item) bool { return m.key.Less(than.(metadataItem).key) }

// tableTracker is the per-table-prefix entry of eviction_tracker_map_: an
// LRU order over that table's cached chunk keys plus how many pages it
// currently occupies.
type tableTracker struct {
	lru          *eviction.LRU
	pagesInUse   int64
}

// Cache is the foreign storage cache. cached_chunks_ and cached_metadata_
// are kept as separate ordered sets on purpose (spec.md §4.6): a chunk can
// be evicted while its metadata stays cached, but never the other way
// around in this implementation (see DESIGN.md Open Question 5).
type Cache struct {
	fm *filemgr.Manager

	chunksMu      sync.RWMutex
	cachedChunks  *btree.BTree

	metadataMu     sync.RWMutex
	cachedMetadata *btree.BTree

	trackersMu sync.Mutex
	trackers   map[layout.Key]*tableTracker

	maxCachedBytes   int64
	maxPagesPerTable int64
	pageSize         int64

	cacheDir string
}

// New builds a Cache backed by fm with an overall byte budget, from which
// setLimit derives max_pages_per_table_: the budget in pages, rounded up to
// a whole number of MaxFileNPages-page backing files (spec.md §3).
func New(fm *filemgr.Manager, cacheDir string, pageSize int64, maxCachedBytes int64) (*Cache, error) {
	c := &Cache{
		fm:             fm,
		cachedChunks:   btree.New(btreeDegree),
		cachedMetadata: btree.New(btreeDegree),
		trackers:       make(map[layout.Key]*tableTracker),
		pageSize:       pageSize,
		cacheDir:       cacheDir,
	}
	if err := c.setLimitLocked(maxCachedBytes); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) trackerFor(tablePrefix layout.Key) *tableTracker {
	c.trackersMu.Lock()
	defer c.trackersMu.Unlock()
	return c.trackerForLocked(tablePrefix)
}

// trackerForLocked is trackerFor for callers that already hold trackersMu.
func (c *Cache) trackerForLocked(tablePrefix layout.Key) *tableTracker {
	t, ok := c.trackers[tablePrefix]
	if !ok {
		t = &tableTracker{lru: eviction.New()}
		c.trackers[tablePrefix] = t
	}
	return t
}

// setLimit re-derives max_pages_per_table_ from a new overall byte budget,
// rejecting a limit too small to hold even one maximally-sized backing
// file (spec.md §4.6). Existing tables whose usage now exceeds the new
// per-table ceiling are evicted down to size.
func (c *Cache) SetLimit(maxCachedBytes int64) error {
	c.trackersMu.Lock()
	defer c.trackersMu.Unlock()
	return c.setLimitLocked(maxCachedBytes)
}

func (c *Cache) setLimitLocked(maxCachedBytes int64) error {
	if maxCachedBytes < c.pageSize*filemgr.MaxFileNPages {
		return moerr.New(moerr.ErrCacheTooSmall,
			"cache limit %d bytes is smaller than one full backing file (%d bytes)",
			maxCachedBytes, c.pageSize*filemgr.MaxFileNPages)
	}
	c.maxCachedBytes = maxCachedBytes
	fileBytes := c.pageSize * filemgr.MaxFileNPages
	c.maxPagesPerTable = ((maxCachedBytes + fileBytes - 1) / fileBytes) * filemgr.MaxFileNPages
	for prefix, t := range c.trackers {
		for t.pagesInUse > c.maxPagesPerTable {
			if !c.evictOneLocked(prefix, t) {
				break
			}
		}
	}
	return nil
}

// evictOneLocked requires the caller to hold trackersMu.
func (c *Cache) evictOneLocked(tablePrefix layout.Key, t *tableTracker) bool {
	id, ok := t.lru.EvictOne()
	if !ok {
		return false
	}
	key := id.(layout.Key)
	if err := c.evictThenEraseChunkLocked(key, t); err != nil {
		logutil.Error(fmt.Sprintf("foreigncache: eviction of %v failed: %v", key, err))
	}
	return true
}

// GetCacheDirectoryForTablePrefix returns the on-disk directory a table's
// backing files would live under, for tooling/debugging use.
func (c *Cache) GetCacheDirectoryForTablePrefix(tablePrefix layout.Key) string {
	return filepath.Join(c.cacheDir, fmt.Sprintf("%d_%d", tablePrefix.Parts[0], tablePrefix.Parts[1]))
}

// IsMetadataCached reports whether key's descriptive metadata (not
// necessarily its data) is present.
func (c *Cache) IsMetadataCached(key layout.Key) bool {
	c.metadataMu.RLock()
	defer c.metadataMu.RUnlock()
	return c.cachedMetadata.Get(metadataItem{key: key}) != nil
}

// HasCachedMetadataForKeyPrefix reports whether any metadata entry exists
// under prefix (a table or column key).
func (c *Cache) HasCachedMetadataForKeyPrefix(prefix layout.Key) bool {
	c.metadataMu.RLock()
	defer c.metadataMu.RUnlock()
	found := false
	c.cachedMetadata.AscendGreaterOrEqual(metadataItem{key: prefix}, func(i btree.Item) bool {
		item := i.(metadataItem)
		if !item.key.HasPrefix(prefix) {
			return false
		}
		found = true
		return false
	})
	return found
}

// GetCachedMetadataVecForKeyPrefix returns every metadata entry under
// prefix, in key order.
func (c *Cache) GetCachedMetadataVecForKeyPrefix(prefix layout.Key) []wrapper.MetadataEntry {
	c.metadataMu.RLock()
	defer c.metadataMu.RUnlock()
	var out []wrapper.MetadataEntry
	c.cachedMetadata.AscendGreaterOrEqual(metadataItem{key: prefix}, func(i btree.Item) bool {
		item := i.(metadataItem)
		if !item.key.HasPrefix(prefix) {
			return false
		}
		out = append(out, wrapper.MetadataEntry{Key: item.key, FragID: item.frag, Metadata: item.meta})
		return true
	})
	return out
}

// CacheMetadataWithFragIdGreaterOrEqualTo supports append-mode refresh: it
// returns the already-cached metadata entries for fragments at or above
// minFragID, so a refresh can tell which fragments it still needs to
// populate versus which are already materialized.
func (c *Cache) CacheMetadataWithFragIdGreaterOrEqualTo(tablePrefix layout.Key, minFragID int) []wrapper.MetadataEntry {
	all := c.GetCachedMetadataVecForKeyPrefix(tablePrefix)
	out := all[:0:0]
	for _, e := range all {
		if e.FragID >= minFragID {
			out = append(out, e)
		}
	}
	return out
}

// CacheMetadataVec records entries' metadata as cached, exactly the keys
// given; no sibling index key is added for a variable-length column's data
// key.
func (c *Cache) CacheMetadataVec(entries []wrapper.MetadataEntry) error {
	c.metadataMu.Lock()
	defer c.metadataMu.Unlock()
	for _, e := range entries {
		c.cachedMetadata.ReplaceOrInsert(metadataItem{key: e.Key, frag: e.FragID, meta: e.Metadata})
	}
	return nil
}

// GetCachedChunksForKeyPrefix returns every currently-cached chunk key
// under prefix, in key order.
func (c *Cache) GetCachedChunksForKeyPrefix(prefix layout.Key) []layout.Key {
	c.chunksMu.RLock()
	defer c.chunksMu.RUnlock()
	var out []layout.Key
	c.cachedChunks.AscendGreaterOrEqual(chunkItem{key: prefix}, func(i btree.Item) bool {
		item := i.(chunkItem)
		if !item.key.HasPrefix(prefix) {
			return false
		}
		out = append(out, item.key)
		return true
	})
	return out
}

// GetCachedChunkIfExists returns the chunk's data buffer and bumps it to
// most-recently-used, or ok=false if it isn't cached.
func (c *Cache) GetCachedChunkIfExists(key layout.Key) (data []byte, ok bool, err error) {
	c.chunksMu.RLock()
	present := c.cachedChunks.Get(chunkItem{key: key}) != nil
	c.chunksMu.RUnlock()
	if !present {
		return nil, false, nil
	}
	data, ok, err = c.fm.Get(key)
	if err != nil || !ok {
		return data, ok, err
	}
	c.trackerFor(key.TablePrefix()).lru.Touch(key)
	return data, true, nil
}

// GetChunkBuffersForCaching returns one empty destination buffer per key,
// ready for a ForeignDataWrapper.PopulateChunkBuffers call; the caller then
// passes the filled map to CacheTableChunks.
func (c *Cache) GetChunkBuffersForCaching(keys []layout.Key) map[layout.Key][]byte {
	dst := make(map[layout.Key][]byte, len(keys))
	for _, k := range keys {
		dst[k] = nil
	}
	return dst
}

// CacheChunk writes a single chunk's data, evicting least-recently-used
// chunks of the same table until it fits within max_pages_per_table_, and
// only then records the chunk as cached. It does not touch cached metadata
// (DESIGN.md Open Question 5: metadata never claims a chunk that failed to
// actually get written).
func (c *Cache) CacheChunk(key layout.Key, data []byte) error {
	return c.cacheChunkInternal(key, data, true)
}

func (c *Cache) cacheChunkInternal(key layout.Key, data []byte, checkpoint bool) error {
	tablePrefix := key.TablePrefix()
	tracker := c.trackerFor(tablePrefix)
	needed := c.fm.NumPagesForSize(int64(len(data)))

	c.trackersMu.Lock()
	if needed > c.maxPagesPerTable {
		c.trackersMu.Unlock()
		return moerr.New(moerr.ErrChunkExceedsTableBudget,
			"chunk %v needs %d pages, exceeding the table's %d-page budget", key.Parts, needed, c.maxPagesPerTable)
	}
	for tracker.pagesInUse+needed > c.maxPagesPerTable {
		if !c.evictOneLocked(tablePrefix, tracker) {
			break
		}
	}
	c.trackersMu.Unlock()

	if err := c.fm.Put(key, data); err != nil {
		return moerr.Wrap(moerr.ErrFailedToFetchColumn, err, "writing chunk %v", key.Parts)
	}
	if checkpoint {
		if err := c.fm.Checkpoint(); err != nil {
			return err
		}
	}

	c.chunksMu.Lock()
	c.cachedChunks.ReplaceOrInsert(chunkItem{key: key})
	c.chunksMu.Unlock()

	c.trackersMu.Lock()
	tracker.pagesInUse += needed
	c.trackersMu.Unlock()
	tracker.lru.Touch(key)
	return nil
}

// CacheTableChunks bulk-inserts every buffer in buffers under a single
// checkpoint (spec.md §4.6: "one fsync per batch, not per chunk").
func (c *Cache) CacheTableChunks(buffers map[layout.Key][]byte) error {
	for key, data := range buffers {
		if err := c.cacheChunkInternal(key, data, false); err != nil {
			return err
		}
	}
	return c.fm.Checkpoint()
}

// DeleteBufferIfExists removes a single chunk's on-disk data and its
// cached_chunks_ entry, leaving any cached metadata untouched.
func (c *Cache) DeleteBufferIfExists(key layout.Key) error {
	exists, err := c.fm.Exists(key)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	c.trackersMu.Lock()
	tracker := c.trackerForLocked(key.TablePrefix())
	err = c.evictThenEraseChunkLocked(key, tracker)
	c.trackersMu.Unlock()
	return err
}

// evictThenEraseChunkLocked is the shared eviction path: delete from
// filemgr, drop the cached_chunks_ entry, adjust the table's page count,
// remove the LRU entry. It does not touch cached_metadata_. Callers must
// hold trackersMu and pass tracker's own tablePrefix tracker, since trying
// to re-derive it here via trackerFor would re-lock trackersMu and deadlock.
func (c *Cache) evictThenEraseChunkLocked(key layout.Key, tracker *tableTracker) error {
	pages, err := c.fm.PageCount(key)
	if err != nil {
		return err
	}
	if err := c.fm.Delete(key); err != nil {
		return err
	}
	c.chunksMu.Lock()
	c.cachedChunks.Delete(chunkItem{key: key})
	c.chunksMu.Unlock()

	tracker.pagesInUse -= pages
	if tracker.pagesInUse < 0 {
		tracker.pagesInUse = 0
	}
	tracker.lru.Remove(key)
	return nil
}

// ClearForTablePrefix drops every cached chunk and metadata entry for a
// table, and its on-disk backing files. prefix must be a table-length (2)
// key; a column or chunk key would silently clear too little or escape
// into a sibling table.
func (c *Cache) ClearForTablePrefix(prefix layout.Key) error {
	if prefix.Len != 2 {
		return moerr.New(moerr.ErrTablePrefixRequired, "clearForTablePrefix requires a table prefix, got length %d", prefix.Len)
	}
	if err := c.fm.DeleteRange(prefix); err != nil {
		return err
	}

	c.chunksMu.Lock()
	var toDelete []btree.Item
	c.cachedChunks.AscendGreaterOrEqual(chunkItem{key: prefix}, func(i btree.Item) bool {
		item := i.(chunkItem)
		if !item.key.HasPrefix(prefix) {
			return false
		}
		toDelete = append(toDelete, i)
		return true
	})
	for _, i := range toDelete {
		c.cachedChunks.Delete(i)
	}
	c.chunksMu.Unlock()

	c.metadataMu.Lock()
	var metaToDelete []btree.Item
	c.cachedMetadata.AscendGreaterOrEqual(metadataItem{key: prefix}, func(i btree.Item) bool {
		item := i.(metadataItem)
		if !item.key.HasPrefix(prefix) {
			return false
		}
		metaToDelete = append(metaToDelete, i)
		return true
	})
	for _, i := range metaToDelete {
		c.cachedMetadata.Delete(i)
	}
	c.metadataMu.Unlock()

	c.trackersMu.Lock()
	delete(c.trackers, prefix)
	c.trackersMu.Unlock()
	return nil
}

// Clear drops every table's cached chunks and metadata.
func (c *Cache) Clear() error {
	c.trackersMu.Lock()
	prefixes := make([]layout.Key, 0, len(c.trackers))
	for p := range c.trackers {
		prefixes = append(prefixes, p)
	}
	c.trackersMu.Unlock()
	for _, p := range prefixes {
		if err := c.ClearForTablePrefix(p); err != nil {
			return err
		}
	}
	return nil
}

// RecoverCacheForTable re-derives cached_chunks_ for a table from whatever
// filemgr still has on disk, used on process restart (spec.md §4.6). It
// does not attempt to recover cached_metadata_, which is rebuilt instead by
// a fresh PopulateChunkMetadata call against the wrapper.
func (c *Cache) RecoverCacheForTable(tablePrefix layout.Key) error {
	tracker := c.trackerFor(tablePrefix)
	return c.fm.ForEachInPrefix(tablePrefix, 5, func(key layout.Key, data []byte) error {
		c.chunksMu.Lock()
		c.cachedChunks.ReplaceOrInsert(chunkItem{key: key})
		c.chunksMu.Unlock()

		pages := c.fm.NumPagesForSize(int64(len(data)))
		c.trackersMu.Lock()
		tracker.pagesInUse += pages
		c.trackersMu.Unlock()
		tracker.lru.Touch(key)
		return nil
	})
}

// DumpCachedChunkEntries returns every cached chunk key across every table,
// in key order; a debugging aid mirroring the original's dump* methods.
func (c *Cache) DumpCachedChunkEntries() []layout.Key {
	c.chunksMu.RLock()
	defer c.chunksMu.RUnlock()
	var out []layout.Key
	c.cachedChunks.Ascend(func(i btree.Item) bool {
		out = append(out, i.(chunkItem).key)
		return true
	})
	return out
}

// DumpCachedMetadataEntries returns every cached metadata key across every
// table, in key order.
func (c *Cache) DumpCachedMetadataEntries() []layout.Key {
	c.metadataMu.RLock()
	defer c.metadataMu.RUnlock()
	var out []layout.Key
	c.cachedMetadata.Ascend(func(i btree.Item) bool {
		out = append(out, i.(metadataItem).key)
		return true
	})
	return out
}

// DumpEvictionQueue returns, per table prefix, the chunk keys in
// least-to-most-recently-used order.
func (c *Cache) DumpEvictionQueue() map[layout.Key][]layout.Key {
	c.trackersMu.Lock()
	defer c.trackersMu.Unlock()
	out := make(map[layout.Key][]layout.Key, len(c.trackers))
	for prefix, t := range c.trackers {
		ids := t.lru.OrderedIDs()
		keys := make([]layout.Key, len(ids))
		for i, id := range ids {
			keys[i] = id.(layout.Key)
		}
		out[prefix] = keys
	}
	return out
}
