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

// Package filemgr is the page-backed file manager (spec.md §3/§4.6,
// component C2): it maps a chunk identifier to a page-granular buffer,
// backed on disk by an embedded pebble store (the teacher's own embedded-KV
// choice in cmd/db-server), with optional lz4 compression of every stored
// buffer.
package filemgr

import (
	"bytes"
	"fmt"
	"io"

	"github.com/cockroachdb/pebble"
	"github.com/pierrec/lz4"

	"github.com/ngocbd/omniscidb/internal/moerr"
	"github.com/ngocbd/omniscidb/pkg/joincore/layout"
)

// DefaultPageSize matches the on-disk page granularity the cache's
// insertion arithmetic (num_pages_for_chunk = ceil(chunk_size/page_size))
// is defined against.
const DefaultPageSize int64 = 2 * 1024 * 1024

// MaxFileNPages bounds how many pages a single backing file may hold,
// used by setLimit's max_pages_per_table_ rounding (spec.md §3).
const MaxFileNPages int64 = 256

// Manager is the page-backed file manager: one pebble store per cache
// directory, one logical "file" (a single pebble key) per ChunkKey.
type Manager struct {
	db       *pebble.DB
	pageSize int64
	compress bool
}

// Open opens (creating if absent) a pebble store rooted at path.
func Open(path string, pageSize int64, compress bool) (*Manager, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, moerr.Wrap(moerr.ErrNotADirectory, err, "opening page store at %s", path)
	}
	return &Manager{db: db, pageSize: pageSize, compress: compress}, nil
}

func (m *Manager) Close() error {
	return m.db.Close()
}

func encodeKey(key layout.Key) []byte {
	buf := make([]byte, 0, 20)
	for i := 0; i < key.Len; i++ {
		v := uint32(key.Parts[i])
		buf = append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	return buf
}

func encodePrefix(key layout.Key) []byte {
	return encodeKey(key)
}

// NumPagesForSize returns ceil(size/page_size), the insertion arithmetic
// spec.md §4.6 defines.
func (m *Manager) NumPagesForSize(size int64) int64 {
	return (size + m.pageSize - 1) / m.pageSize
}

func (m *Manager) compressBuf(data []byte) ([]byte, error) {
	if !m.compress {
		return data, nil
	}
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Manager) decompressBuf(data []byte) ([]byte, error) {
	if !m.compress {
		return data, nil
	}
	r := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Put writes the full buffer for key, replacing any existing content. It
// does not itself persist durably until Checkpoint is called.
func (m *Manager) Put(key layout.Key, data []byte) error {
	compressed, err := m.compressBuf(data)
	if err != nil {
		return err
	}
	return m.db.Set(encodeKey(key), compressed, pebble.NoSync)
}

// Get returns the buffer for key, or ok=false if not present.
func (m *Manager) Get(key layout.Key) (data []byte, ok bool, err error) {
	v, closer, err := m.db.Get(encodeKey(key))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	out, derr := m.decompressBuf(v)
	if derr != nil {
		return nil, false, derr
	}
	return out, true, nil
}

// PageCount returns ceil(len(buffer)/page_size) for the currently stored
// buffer at key, or 0 if absent.
func (m *Manager) PageCount(key layout.Key) (int64, error) {
	data, ok, err := m.Get(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return m.NumPagesForSize(int64(len(data))), nil
}

// Delete removes a single chunk's backing file.
func (m *Manager) Delete(key layout.Key) error {
	return m.db.Delete(encodeKey(key), pebble.NoSync)
}

// DeleteRange removes every key under a table/column prefix, used by
// clearForTablePrefix / removeTableRelatedDS.
func (m *Manager) DeleteRange(prefix layout.Key) error {
	lower := encodePrefix(prefix)
	upperKey := prefix.UpperBound()
	upper := encodePrefix(upperKey)
	// pebble's upper bound is exclusive; append a sentinel byte so the
	// range also captures upperKey's own full-length keys.
	upper = append(upper, 0xff, 0xff, 0xff, 0xff)
	return m.db.DeleteRange(lower, upper, pebble.NoSync)
}

// Checkpoint is the only persistence fence (spec.md §5): flush the pebble
// memtable for this manager so everything Put so far is durable.
func (m *Manager) Checkpoint() error {
	return m.db.Flush()
}

// Exists reports whether key currently has a stored buffer.
func (m *Manager) Exists(key layout.Key) (bool, error) {
	_, ok, err := m.Get(key)
	return ok, err
}

// ForEachInPrefix iterates every stored key under prefix in key order,
// calling fn with the decoded layout.Key; used by recoverCacheForTable to
// re-derive which chunks have non-zero pages without keeping its own
// redundant index. Keys are reconstructed from the fixed-width encoding
// using keyLen positions (ambiguous past the chunk-key level), so callers
// pass the expected Len.
func (m *Manager) ForEachInPrefix(prefix layout.Key, keyLen int, fn func(layout.Key, []byte) error) error {
	lower := encodePrefix(prefix)
	upperKey := prefix.UpperBound()
	upper := append(encodePrefix(upperKey), 0xff, 0xff, 0xff, 0xff)

	iter := m.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		raw := iter.Key()
		if len(raw)%4 != 0 {
			return fmt.Errorf("filemgr: malformed key of length %d", len(raw))
		}
		n := len(raw) / 4
		if n != keyLen {
			continue
		}
		var parts layout.ChunkKey
		for i := 0; i < n; i++ {
			off := i * 4
			parts[i] = int32(uint32(raw[off])<<24 | uint32(raw[off+1])<<16 | uint32(raw[off+2])<<8 | uint32(raw[off+3]))
		}
		key := layout.Key{Parts: parts, Len: n}

		decoded, derr := m.decompressBuf(iter.Value())
		if derr != nil {
			return derr
		}
		if err := fn(key, decoded); err != nil {
			return err
		}
	}
	return iter.Error()
}
