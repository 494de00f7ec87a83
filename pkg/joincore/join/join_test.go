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

package join

import (
	"testing"

	"github.com/prashantv/gostub"

	"github.com/ngocbd/omniscidb/internal/moerr"
	"github.com/ngocbd/omniscidb/pkg/joincore/builder"
	"github.com/ngocbd/omniscidb/pkg/joincore/layout"
	"github.com/ngocbd/omniscidb/pkg/joincore/resultcache"
	"github.com/ngocbd/omniscidb/pkg/joincore/typecache"
)

func newOrchestrator() *Orchestrator {
	return &Orchestrator{TypeCache: typecache.New(), ResultCache: resultcache.New()}
}

func simplePair(tableID int32) ColumnPair {
	return ColumnPair{InnerChunkKey: layout.NewTableKey(1, tableID), InnerWidth: 4}
}

func TestBuildSelfJoinIsRejected(t *testing.T) {
	o := newOrchestrator()
	_, err := o.Build(BuildParams{
		Condition: Condition{Pairs: []ColumnPair{simplePair(1)}, SelfJoin: true},
	})
	if !moerr.HasCode(err, moerr.ErrSelfJoinUnsupported) {
		t.Fatalf("expected ErrSelfJoinUnsupported, got %v", err)
	}
}

func TestBuildProducesOneToOneTableByDefault(t *testing.T) {
	o := newOrchestrator()
	cond := Condition{Pairs: []ColumnPair{simplePair(1)}, Op: layout.OpEquals}
	cols := FetchedColumns{PerDevice: []builder.RowSource{
		{Keys: []layout.CompositeKey{{Components: []int64{1}}, {Components: []int64{2}}}},
	}}

	table, err := o.Build(BuildParams{Condition: cond, Columns: cols, UpperBoundRows: 4, MemoryLevel: builder.CPU})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Layout != layout.OneToOne {
		t.Fatalf("expected OneToOne, got %v", table.Layout)
	}
	if len(table.Buffers) != 1 {
		t.Fatalf("expected 1 buffer, got %d", len(table.Buffers))
	}
}

func TestBuildCachesSingleDeviceResultAndServesFromCache(t *testing.T) {
	o := newOrchestrator()
	cond := Condition{Pairs: []ColumnPair{simplePair(2)}, Op: layout.OpEquals}
	cols := FetchedColumns{PerDevice: []builder.RowSource{
		{Keys: []layout.CompositeKey{{Components: []int64{5}}}},
	}}
	params := BuildParams{Condition: cond, Columns: cols, UpperBoundRows: 2, MemoryLevel: builder.CPU}

	first, err := o.Build(params)
	if err != nil {
		t.Fatalf("unexpected error on first build: %v", err)
	}

	second, err := o.Build(params)
	if err != nil {
		t.Fatalf("unexpected error on second build: %v", err)
	}
	if second.Buffers[0] != first.Buffers[0] {
		t.Fatal("expected the second build to reuse the cached buffer instance")
	}
}

func TestBuildDowngradesLayoutOnDuplicateKeyAndRecordsInTypeCache(t *testing.T) {
	o := newOrchestrator()
	cond := Condition{Pairs: []ColumnPair{simplePair(3)}, Op: layout.OpEquals}
	cols := FetchedColumns{PerDevice: []builder.RowSource{
		{Keys: []layout.CompositeKey{
			{Components: []int64{9}},
			{Components: []int64{9}},
		}},
	}}

	table, err := o.Build(BuildParams{Condition: cond, Columns: cols, UpperBoundRows: 1, MemoryLevel: builder.CPU})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Layout != layout.OneToMany {
		t.Fatalf("expected a downgrade to OneToMany, got %v", table.Layout)
	}

	key := typecache.NewKey(chunkKeysFor(cond))
	got, ok := o.TypeCache.Get(key)
	if !ok {
		t.Fatal("expected the downgrade to be recorded in the type cache")
	}
	if got != layout.OneToMany {
		t.Fatalf("expected type cache to record OneToMany, got %v", got)
	}
}

func TestPreferredLayoutConsultsTypeCacheAfterADowngrade(t *testing.T) {
	o := newOrchestrator()
	cond := Condition{Pairs: []ColumnPair{simplePair(4)}, Op: layout.OpEquals}
	dupCols := FetchedColumns{PerDevice: []builder.RowSource{
		{Keys: []layout.CompositeKey{{Components: []int64{1}}, {Components: []int64{1}}}},
	}}
	if _, err := o.Build(BuildParams{Condition: cond, Columns: dupCols, UpperBoundRows: 1, MemoryLevel: builder.CPU}); err != nil {
		t.Fatalf("unexpected error priming the type cache: %v", err)
	}

	if got := o.preferredLayout(cond); got != layout.OneToMany {
		t.Fatalf("expected preferredLayout to read back the downgraded OneToMany, got %v", got)
	}
}

func TestOverlapsPredicateWithArrayOuterForcesManyToMany(t *testing.T) {
	o := newOrchestrator()
	cond := Condition{
		Pairs:      []ColumnPair{{InnerChunkKey: layout.NewTableKey(1, 5), IsArrayOuter: true}},
		IsOverlaps: true,
	}
	if got := o.preferredLayout(cond); got != layout.ManyToMany {
		t.Fatalf("expected ManyToMany for an array-outer overlaps predicate, got %v", got)
	}
}

func TestOverlapsPredicateWithoutArrayOuterPrefersOneToMany(t *testing.T) {
	o := newOrchestrator()
	cond := Condition{
		Pairs:      []ColumnPair{{InnerChunkKey: layout.NewTableKey(1, 5)}},
		IsOverlaps: true,
	}
	if got := o.preferredLayout(cond); got != layout.OneToMany {
		t.Fatalf("expected OneToMany for a non-array overlaps predicate, got %v", got)
	}
}

func TestCodegenSlotRequiresOneToOneLayout(t *testing.T) {
	spec, _ := layout.NewSpec(layout.OneToMany, 1, false, 4)
	table := &Table{Spec: spec, Layout: layout.OneToMany, Buffers: []*layout.Buffer{layout.NewBuffer(spec)}}
	if _, err := table.CodegenSlot(nil, 0); err == nil {
		t.Fatal("expected CodegenSlot to reject a non-OneToOne table")
	}
}

func TestCodegenMatchingSetRejectsOneToOneLayout(t *testing.T) {
	spec, _ := layout.NewSpec(layout.OneToOne, 1, false, 4)
	table := &Table{Spec: spec, Layout: layout.OneToOne, Buffers: []*layout.Buffer{layout.NewBuffer(spec)}}
	if _, _, err := table.CodegenMatchingSet(nil, 0); err == nil {
		t.Fatal("expected CodegenMatchingSet to reject a OneToOne table")
	}
}

func TestNewWiresTheProcessWideDefaultCaches(t *testing.T) {
	stubTypeCache := typecache.New()
	stubResultCache := resultcache.New()
	stubs := gostub.New()
	defer stubs.Reset()
	stubs.Stub(&typecache.Global, stubTypeCache)
	stubs.Stub(&resultcache.Global, stubResultCache)

	o := New()
	if o.TypeCache != stubTypeCache {
		t.Fatal("expected New to wire the current typecache.Global instance")
	}
	if o.ResultCache != stubResultCache {
		t.Fatal("expected New to wire the current resultcache.Global instance")
	}
}
