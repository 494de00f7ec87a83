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

// Package manager is the foreign storage manager (spec.md §4.4/§4.5,
// components C4.4 and C4.5): it owns one ForeignDataWrapper per table and
// routes fetches and refreshes through the cache when caching is enabled.
package manager

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ngocbd/omniscidb/config"
	"github.com/ngocbd/omniscidb/internal/moerr"
	"github.com/ngocbd/omniscidb/pkg/foreigncache/cache"
	"github.com/ngocbd/omniscidb/pkg/foreigncache/wrapper"
	"github.com/ngocbd/omniscidb/pkg/joincore/layout"
)

// MaxRefreshTimeInSeconds bounds the wall-clock duration of a single
// refreshTable call's fragment loop (spec.md §5's cancellation model).
const MaxRefreshTimeInSeconds = 3600

const wrapperMetadataFile = "wrapper_metadata.json"

// tableEntry is everything the manager tracks for one foreign table.
type tableEntry struct {
	dbID, tableID int32
	wrapper       wrapper.ForeignDataWrapper
	options       config.RefreshOptions
	lastFragID    int // highest fragment id already cached, append mode only
}

// Manager is the uncached-or-caching foreign storage manager. A nil cache
// makes it behave as the uncached variant (component C4.4): every fetch
// goes straight to the wrapper, nothing is persisted between calls.
type Manager struct {
	cache *cache.Cache // nil => uncached mode

	tablesMu sync.RWMutex
	tables   map[layout.Key]*tableEntry

	// temp_chunk_buffer_map_: buffers a wrapper just populated but that
	// haven't yet been committed to the cache, guarded independently of
	// the tables map per spec.md §5's suspension-point list.
	tempMu  sync.RWMutex
	tempBuf map[layout.Key][]byte
}

// New constructs a manager. Pass a nil cache for the uncached mode.
func New(c *cache.Cache) *Manager {
	return &Manager{
		cache:   c,
		tables:  make(map[layout.Key]*tableEntry),
		tempBuf: make(map[layout.Key][]byte),
	}
}

// RegisterTable associates a wrapper and its refresh options with a table,
// replacing any prior registration.
func (m *Manager) RegisterTable(dbID, tableID int32, w wrapper.ForeignDataWrapper, opts config.RefreshOptions) {
	m.tablesMu.Lock()
	defer m.tablesMu.Unlock()
	m.tables[layout.NewTableKey(dbID, tableID)] = &tableEntry{dbID: dbID, tableID: tableID, wrapper: w, options: opts}
}

func (m *Manager) entryFor(tableKey layout.Key) (*tableEntry, error) {
	m.tablesMu.RLock()
	defer m.tablesMu.RUnlock()
	e, ok := m.tables[tableKey]
	if !ok {
		return nil, moerr.New(moerr.ErrFailedToFetchColumn, "no foreign table registered for prefix %v", tableKey.Parts)
	}
	return e, nil
}

// FetchBuffer returns key's data, from cache if caching is enabled and the
// chunk is already materialized, otherwise by asking the table's wrapper
// to populate it (and, in caching mode, committing the result).
func (m *Manager) FetchBuffer(key layout.Key) ([]byte, error) {
	if m.cache != nil {
		if data, ok, err := m.cache.GetCachedChunkIfExists(key); err != nil {
			return nil, err
		} else if ok {
			return data, nil
		}
	}

	tableKey := key.TablePrefix()
	e, err := m.entryFor(tableKey)
	if err != nil {
		return nil, err
	}

	dst := map[layout.Key][]byte{key: nil}
	if err := e.wrapper.PopulateChunkBuffers(dst); err != nil {
		return nil, moerr.Wrap(moerr.ErrFailedToFetchColumn, err, "populating chunk %v", key.Parts)
	}

	data := dst[key]
	if m.cache != nil {
		if err := m.cache.CacheChunk(key, data); err != nil {
			return nil, err
		}
	} else {
		m.tempMu.Lock()
		m.tempBuf[key] = data
		m.tempMu.Unlock()
	}
	return data, nil
}

// GetChunkMetadataVecForKeyPrefix returns metadata under prefix, from the
// cache if present, otherwise freshly populated from the wrapper (and
// cached, in caching mode).
func (m *Manager) GetChunkMetadataVecForKeyPrefix(prefix layout.Key) ([]wrapper.MetadataEntry, error) {
	if m.cache != nil && m.cache.HasCachedMetadataForKeyPrefix(prefix) {
		return m.cache.GetCachedMetadataVecForKeyPrefix(prefix), nil
	}

	tableKey := prefix.TablePrefix()
	e, err := m.entryFor(tableKey)
	if err != nil {
		return nil, err
	}
	var out []wrapper.MetadataEntry
	if err := e.wrapper.PopulateChunkMetadata(&out); err != nil {
		return nil, moerr.Wrap(moerr.ErrFailedToFetchColumn, err, "populating metadata for %v", prefix.Parts)
	}
	if m.cache != nil {
		if err := m.cache.CacheMetadataVec(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RemoveTableRelatedDS drops everything the manager and cache know about a
// table: its wrapper registration and, in caching mode, its cached chunks
// and metadata.
func (m *Manager) RemoveTableRelatedDS(tableKey layout.Key) error {
	m.tablesMu.Lock()
	delete(m.tables, tableKey)
	m.tablesMu.Unlock()

	if m.cache == nil {
		return nil
	}
	return m.cache.ClearForTablePrefix(tableKey)
}

// RefreshTable re-fetches a table's fragments. Append mode only fetches
// fragments past the last one already cached; full-replace mode scans the
// wrapper for its *current* fragment set before clearing anything already
// cached, so a connection failure mid-scan leaves the existing cache
// intact (spec.md §4.5 edge case S5) rather than erasing data it then
// fails to replace.
func (m *Manager) RefreshTable(tableKey layout.Key, evictCachedEntries bool) error {
	e, err := m.entryFor(tableKey)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(MaxRefreshTimeInSeconds * time.Second)

	if e.options.UpdateType == config.UpdateTypeAppend {
		return m.refreshAppend(tableKey, e, deadline)
	}
	return m.refreshFull(tableKey, e, deadline, evictCachedEntries)
}

func (m *Manager) refreshAppend(tableKey layout.Key, e *tableEntry, deadline time.Time) error {
	maxFrag, err := e.wrapper.MaxFragmentID()
	if err != nil {
		return moerr.Wrap(moerr.ErrFailedToFetchColumn, err, "querying max fragment id")
	}
	for frag := e.lastFragID + 1; frag <= maxFrag; frag++ {
		if time.Now().After(deadline) {
			return moerr.New(moerr.ErrRefreshConnectionFailed, "refresh of table %v exceeded %ds deadline at fragment %d", tableKey.Parts, MaxRefreshTimeInSeconds, frag)
		}
		if err := m.cacheFragment(tableKey, e, frag); err != nil {
			return err
		}
		e.lastFragID = frag
	}
	return m.persistWrapperState(tableKey, e)
}

func (m *Manager) refreshFull(tableKey layout.Key, e *tableEntry, deadline time.Time, evictCachedEntries bool) error {
	var freshMeta []wrapper.MetadataEntry
	if err := e.wrapper.PopulateChunkMetadata(&freshMeta); err != nil {
		return moerr.Wrap(moerr.ErrFailedToFetchColumn, err, "scanning table %v before refresh", tableKey.Parts)
	}

	if evictCachedEntries && m.cache != nil {
		if err := m.cache.ClearForTablePrefix(tableKey); err != nil {
			return err
		}
	}

	maxFrag := -1
	for _, entry := range freshMeta {
		if entry.FragID > maxFrag {
			maxFrag = entry.FragID
		}
	}
	for frag := 0; frag <= maxFrag; frag++ {
		if time.Now().After(deadline) {
			return moerr.Wrap(moerr.ErrPostEvictionRefresh,
				moerr.New(moerr.ErrRefreshConnectionFailed, "refresh of table %v exceeded %ds deadline at fragment %d", tableKey.Parts, MaxRefreshTimeInSeconds, frag),
				"refresh deadline exceeded after cache was cleared")
		}
		if err := m.cacheFragment(tableKey, e, frag); err != nil {
			return err
		}
	}
	e.lastFragID = maxFrag
	return m.persistWrapperState(tableKey, e)
}

func (m *Manager) cacheFragment(tableKey layout.Key, e *tableEntry, frag int) error {
	var meta []wrapper.MetadataEntry
	if err := e.wrapper.PopulateChunkMetadata(&meta); err != nil {
		return err
	}
	dst := make(map[layout.Key][]byte)
	for _, entry := range meta {
		if int(entry.Key.Parts[3]) != frag {
			continue
		}
		dst[entry.Key] = nil
		if entry.Key.Parts[4] == int32(layout.SubIDIndex) {
			continue
		}
	}
	if len(dst) == 0 {
		return nil
	}
	if err := e.wrapper.PopulateChunkBuffers(dst); err != nil {
		return moerr.Wrap(moerr.ErrFailedToFetchColumn, err, "populating fragment %d of table %v", frag, tableKey.Parts)
	}
	if m.cache != nil {
		if err := m.cache.CacheTableChunks(dst); err != nil {
			return err
		}
		var fragMeta []wrapper.MetadataEntry
		for _, entry := range meta {
			if int(entry.Key.Parts[3]) == frag {
				fragMeta = append(fragMeta, entry)
			}
		}
		if err := m.cache.CacheMetadataVec(fragMeta); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) persistWrapperState(tableKey layout.Key, e *tableEntry) error {
	if m.cache == nil {
		return nil
	}
	data, err := e.wrapper.SerializeState()
	if err != nil {
		return err
	}
	dir := m.cache.GetCacheDirectoryForTablePrefix(tableKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return moerr.Wrap(moerr.ErrNotADirectory, err, "creating cache directory %s", dir)
	}
	path := filepath.Join(dir, wrapperMetadataFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return moerr.Wrap(moerr.ErrFailedToFetchColumn, err, "writing %s", path)
	}
	return nil
}

// RecoverWrapperState reloads a table's wrapper_metadata.json, restoring
// the wrapper's bookkeeping without re-scanning the backing files.
func (m *Manager) RecoverWrapperState(tableKey layout.Key) error {
	e, err := m.entryFor(tableKey)
	if err != nil {
		return err
	}
	if m.cache == nil {
		return nil
	}
	path := filepath.Join(m.cache.GetCacheDirectoryForTablePrefix(tableKey), wrapperMetadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return moerr.Wrap(moerr.ErrFailedToFetchColumn, err, "reading %s", path)
	}
	return e.wrapper.RestoreState(data)
}

// String is a debugging aid for logging which tables a manager tracks.
func (m *Manager) String() string {
	m.tablesMu.RLock()
	defer m.tablesMu.RUnlock()
	return fmt.Sprintf("manager(%d tables, caching=%t)", len(m.tables), m.cache != nil)
}
