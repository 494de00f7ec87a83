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

package filemgr

import (
	"testing"

	"github.com/ngocbd/omniscidb/pkg/joincore/layout"
)

func openTestManager(t *testing.T, pageSize int64, compress bool) *Manager {
	t.Helper()
	m, err := Open(t.TempDir(), pageSize, compress)
	if err != nil {
		t.Fatalf("unexpected error opening manager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestPutGetRoundTrips(t *testing.T) {
	m := openTestManager(t, DefaultPageSize, false)
	key := layout.NewChunkKey(1, 2, 3, 0, layout.SubIDData)
	data := []byte("some chunk bytes")

	if err := m.Put(key, data); err != nil {
		t.Fatalf("unexpected error on Put: %v", err)
	}
	got, ok, err := m.Get(key)
	if err != nil {
		t.Fatalf("unexpected error on Get: %v", err)
	}
	if !ok {
		t.Fatal("expected the key to be found after Put")
	}
	if string(got) != string(data) {
		t.Fatalf("expected %q, got %q", data, got)
	}
}

func TestPutGetRoundTripsWithCompression(t *testing.T) {
	m := openTestManager(t, DefaultPageSize, true)
	key := layout.NewChunkKey(1, 2, 3, 0, layout.SubIDData)
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i % 7)
	}

	if err := m.Put(key, data); err != nil {
		t.Fatalf("unexpected error on Put: %v", err)
	}
	got, ok, err := m.Get(key)
	if err != nil {
		t.Fatalf("unexpected error on Get: %v", err)
	}
	if !ok {
		t.Fatal("expected the key to be found after Put")
	}
	if len(got) != len(data) {
		t.Fatalf("expected %d bytes after decompression, got %d", len(data), len(got))
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d mismatch: want %d got %d", i, data[i], got[i])
		}
	}
}

func TestGetOnMissingKeyReportsNotFound(t *testing.T) {
	m := openTestManager(t, DefaultPageSize, false)
	_, ok, err := m.Get(layout.NewChunkKey(9, 9, 9, 9, layout.SubIDData))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected a miss for a never-written key")
	}
}

func TestNumPagesForSizeRoundsUp(t *testing.T) {
	m := openTestManager(t, 100, false)
	cases := map[int64]int64{0: 0, 1: 1, 100: 1, 101: 2, 250: 3}
	for size, want := range cases {
		if got := m.NumPagesForSize(size); got != want {
			t.Fatalf("NumPagesForSize(%d): expected %d, got %d", size, want, got)
		}
	}
}

func TestPageCountReflectsStoredBufferSize(t *testing.T) {
	m := openTestManager(t, 10, false)
	key := layout.NewChunkKey(1, 1, 1, 0, layout.SubIDData)
	if err := m.Put(key, make([]byte, 25)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := m.PageCount(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 3 {
		t.Fatalf("expected ceil(25/10)=3 pages, got %d", got)
	}
}

func TestDeleteRemovesSingleKey(t *testing.T) {
	m := openTestManager(t, DefaultPageSize, false)
	key := layout.NewChunkKey(1, 1, 1, 0, layout.SubIDData)
	if err := m.Put(key, []byte("x")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Delete(key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := m.Exists(key); ok {
		t.Fatal("expected the key to be gone after Delete")
	}
}

func TestDeleteRangeRemovesOnlyMatchingTablePrefix(t *testing.T) {
	m := openTestManager(t, DefaultPageSize, false)
	table2Chunk := layout.NewChunkKey(1, 2, 0, 0, layout.SubIDData)
	table3Chunk := layout.NewChunkKey(1, 3, 0, 0, layout.SubIDData)
	if err := m.Put(table2Chunk, []byte("t2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Put(table3Chunk, []byte("t3")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := m.DeleteRange(layout.NewTableKey(1, 2)); err != nil {
		t.Fatalf("unexpected error on DeleteRange: %v", err)
	}

	if ok, _ := m.Exists(table2Chunk); ok {
		t.Fatal("expected table 2's chunk to be removed")
	}
	if ok, _ := m.Exists(table3Chunk); !ok {
		t.Fatal("expected table 3's chunk to survive table 2's DeleteRange")
	}
}

func TestForEachInPrefixVisitsOnlyMatchingChunkKeys(t *testing.T) {
	m := openTestManager(t, DefaultPageSize, false)
	chunk1 := layout.NewChunkKey(1, 2, 0, 0, layout.SubIDData)
	chunk2 := layout.NewChunkKey(1, 2, 0, 1, layout.SubIDData)
	otherTable := layout.NewChunkKey(1, 5, 0, 0, layout.SubIDData)
	for _, kv := range []struct {
		k layout.Key
		v string
	}{{chunk1, "a"}, {chunk2, "b"}, {otherTable, "c"}} {
		if err := m.Put(kv.k, []byte(kv.v)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	var visited []layout.Key
	err := m.ForEachInPrefix(layout.NewTableKey(1, 2), 5, func(k layout.Key, data []byte) error {
		visited = append(visited, k)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(visited) != 2 {
		t.Fatalf("expected 2 chunks visited for table 2, got %d", len(visited))
	}
	for _, v := range visited {
		if !v.HasPrefix(layout.NewTableKey(1, 2)) {
			t.Fatalf("visited key %v does not belong to table 2's prefix", v)
		}
	}
}
