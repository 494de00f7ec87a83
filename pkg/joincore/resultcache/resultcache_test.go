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

package resultcache

import (
	"testing"

	"github.com/ngocbd/omniscidb/pkg/joincore/layout"
)

func key(tableID int32, upperBound int64, op layout.OpType) CacheKey {
	return CacheKey{
		NumTuplesUpperBound: upperBound,
		OpType:              op,
		ChunkKeys: []ChunkKeyWithDictGeneration{
			{Key: layout.NewTableKey(1, tableID), DictGeneration: 0},
		},
	}
}

func TestPutThenGetRoundTrips(t *testing.T) {
	c := New()
	k := key(5, 100, layout.OpEquals)
	spec, _ := layout.NewSpec(layout.OneToOne, 1, false, 8)
	entry := Entry{Buffer: layout.NewBuffer(spec), EmittedKeysCount: 4}

	c.Put(k, entry)

	got, ok := c.Get(k)
	if !ok {
		t.Fatal("expected the entry to be found after Put")
	}
	if got.EmittedKeysCount != 4 {
		t.Fatalf("expected EmittedKeysCount 4, got %d", got.EmittedKeysCount)
	}
}

func TestDistinctEqualsAndBitwiseEqualsProduceDistinctKeys(t *testing.T) {
	c := New()
	eq := key(5, 100, layout.OpEquals)
	spaceship := key(5, 100, layout.OpBitwiseEquals)

	spec, _ := layout.NewSpec(layout.OneToOne, 1, false, 8)
	c.Put(eq, Entry{Buffer: layout.NewBuffer(spec)})

	if _, ok := c.Get(spaceship); ok {
		t.Fatal("expected OpEquals and OpBitwiseEquals to be distinct cache keys")
	}
}

func TestNegativeTableIDIsNeverCached(t *testing.T) {
	c := New()
	k := key(-1, 100, layout.OpEquals)
	spec, _ := layout.NewSpec(layout.OneToOne, 1, false, 8)
	c.Put(k, Entry{Buffer: layout.NewBuffer(spec)})

	if _, ok := c.Get(k); ok {
		t.Fatal("expected a temporary-table (negative table id) key to never be cached")
	}
}

func TestApproximateTupleCountReflectsCachedEntryCount(t *testing.T) {
	c := New()
	k := key(5, 100, layout.OpEquals)
	spec, _ := layout.NewSpec(layout.OneToMany, 1, false, 16)
	c.Put(k, Entry{Buffer: layout.NewBuffer(spec), EmittedKeysCount: 9})

	approx, emitted, ok := c.ApproximateTupleCount(k)
	if !ok {
		t.Fatal("expected ApproximateTupleCount to find the cached entry")
	}
	if approx != 8 {
		t.Fatalf("expected entry_count/2 = 8, got %d", approx)
	}
	if emitted != 9 {
		t.Fatalf("expected emitted keys count 9, got %d", emitted)
	}
}

func TestApproximateTupleCountMissReportsNotFound(t *testing.T) {
	c := New()
	if _, _, ok := c.ApproximateTupleCount(key(1, 1, layout.OpEquals)); ok {
		t.Fatal("expected an uncached key to report not found")
	}
}
