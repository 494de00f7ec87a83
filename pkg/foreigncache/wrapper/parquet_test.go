// Copyright 2020 Matrix Origin
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

package wrapper

import (
	"testing"

	"github.com/ngocbd/omniscidb/pkg/joincore/layout"
)

func newDiscoveredParquetWrapper(rowGroups map[string]int, rowsPerGroup int, files ...string) *ParquetWrapper {
	w := NewParquetWrapper(1, 2, files, rowsPerGroup)
	w.discoverFragments(rowGroups)
	return w
}

func TestParquetWrapperDiscoverFragmentsAssignsOnePerRowGroupInFileOrder(t *testing.T) {
	w := newDiscoveredParquetWrapper(map[string]int{"a.parquet": 2, "b.parquet": 1}, 10, "a.parquet", "b.parquet")
	if len(w.fragmentIntervals) != 3 {
		t.Fatalf("expected 3 fragments, got %d", len(w.fragmentIntervals))
	}
	if w.fragmentIntervals[0].File != "a.parquet" || w.fragmentIntervals[1].File != "a.parquet" {
		t.Fatalf("expected fragments 0 and 1 to belong to a.parquet, got %+v", w.fragmentIntervals)
	}
	if w.fragmentIntervals[2].File != "b.parquet" {
		t.Fatalf("expected fragment 2 to belong to b.parquet, got %+v", w.fragmentIntervals[2])
	}
}

func TestParquetWrapperMaxFragmentIDMatchesDiscoveredCount(t *testing.T) {
	w := newDiscoveredParquetWrapper(map[string]int{"a.parquet": 3}, 10, "a.parquet")
	max, err := w.MaxFragmentID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if max != 2 {
		t.Fatalf("expected max fragment id 2, got %d", max)
	}
}

func TestParquetWrapperMaxFragmentIDOnEmptyWrapperIsNegativeOne(t *testing.T) {
	w := NewParquetWrapper(1, 2, nil, 10)
	max, err := w.MaxFragmentID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if max != -1 {
		t.Fatalf("expected -1 for an empty wrapper, got %d", max)
	}
}

func TestParquetWrapperPopulateChunkMetadataReportsRowCounts(t *testing.T) {
	w := newDiscoveredParquetWrapper(map[string]int{"a.parquet": 1}, 25, "a.parquet")
	var entries []MetadataEntry
	if err := w.PopulateChunkMetadata(&entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Metadata.NumElements != 25 {
		t.Fatalf("expected 25 rows, got %d", entries[0].Metadata.NumElements)
	}
	if entries[0].Metadata.NumBytes != 25*8 {
		t.Fatalf("expected 200 bytes, got %d", entries[0].Metadata.NumBytes)
	}
}

func TestParquetWrapperPopulateChunkBuffersFillsRequestedFragment(t *testing.T) {
	w := newDiscoveredParquetWrapper(map[string]int{"a.parquet": 2}, 10, "a.parquet")
	key := layout.NewChunkKey(1, 2, 1, 1, layout.SubIDData)
	dst := map[layout.Key][]byte{key: nil}
	if err := w.PopulateChunkBuffers(dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dst[key]) != 10*8 {
		t.Fatalf("expected 80 bytes, got %d", len(dst[key]))
	}
}

func TestParquetWrapperPopulateChunkBuffersRejectsUnknownFragment(t *testing.T) {
	w := newDiscoveredParquetWrapper(map[string]int{"a.parquet": 1}, 10, "a.parquet")
	key := layout.NewChunkKey(1, 2, 1, 99, layout.SubIDData)
	dst := map[layout.Key][]byte{key: nil}
	if err := w.PopulateChunkBuffers(dst); err == nil {
		t.Fatal("expected an error for a fragment id with no discovered interval")
	}
}

func TestParquetWrapperSerializeRestoreStateRoundTrips(t *testing.T) {
	w := newDiscoveredParquetWrapper(map[string]int{"a.parquet": 2}, 10, "a.parquet")
	data, err := w.SerializeState()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	restored := NewParquetWrapper(1, 2, nil, 0)
	if err := restored.RestoreState(data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if restored.rowsPerGroup != 10 {
		t.Fatalf("expected rowsPerGroup 10, got %d", restored.rowsPerGroup)
	}
	if len(restored.fragmentIntervals) != 2 {
		t.Fatalf("expected 2 restored fragment intervals, got %d", len(restored.fragmentIntervals))
	}
	max, err := restored.MaxFragmentID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if max != 1 {
		t.Fatalf("expected restored max fragment id 1, got %d", max)
	}
}

func TestParquetWrapperRestoreStateOnEmptyIntervalsInitializesMap(t *testing.T) {
	w := NewParquetWrapper(1, 2, []string{"a.parquet"}, 5)
	data, err := w.SerializeState()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	restored := &ParquetWrapper{}
	if err := restored.RestoreState(data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if restored.fragmentIntervals == nil {
		t.Fatal("expected RestoreState to initialize a nil fragmentIntervals map")
	}
}
