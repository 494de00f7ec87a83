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
	"os"
	"path/filepath"
	"testing"

	"github.com/ngocbd/omniscidb/pkg/joincore/layout"
)

func writeTestCSV(t *testing.T, rows int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("unexpected error creating test csv: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString("a,b\n"); err != nil {
		t.Fatalf("unexpected error writing header: %v", err)
	}
	for i := 0; i < rows; i++ {
		if _, err := f.WriteString("1,2\n"); err != nil {
			t.Fatalf("unexpected error writing row: %v", err)
		}
	}
	return path
}

func TestCsvWrapperPopulateChunkMetadataReportsOneFragment(t *testing.T) {
	path := writeTestCSV(t, 3)
	w := NewCsvWrapper(1, 2, path, ',')

	var entries []MetadataEntry
	if err := w.PopulateChunkMetadata(&entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 fragment for a file under the batch size, got %d", len(entries))
	}
	if entries[0].Metadata.NumElements != 3 {
		t.Fatalf("expected 3 rows, got %d", entries[0].Metadata.NumElements)
	}
}

func TestCsvWrapperMaxFragmentIDMatchesScan(t *testing.T) {
	path := writeTestCSV(t, 5)
	w := NewCsvWrapper(1, 2, path, ',')

	maxFrag, err := w.MaxFragmentID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if maxFrag != 0 {
		t.Fatalf("expected fragment 0 to be the only (and max) fragment, got %d", maxFrag)
	}
}

func TestCsvWrapperPopulateChunkBuffersFillsRequestedFragment(t *testing.T) {
	path := writeTestCSV(t, 3)
	w := NewCsvWrapper(1, 2, path, ',')

	key := layout.NewChunkKey(1, 2, 1, 0, layout.SubIDData)
	dst := map[layout.Key][]byte{key: nil}
	if err := w.PopulateChunkBuffers(dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dst[key]) == 0 {
		t.Fatal("expected a non-empty placeholder buffer for fragment 0")
	}
}

func TestCsvWrapperPopulateChunkBuffersRejectsOutOfRangeFragment(t *testing.T) {
	path := writeTestCSV(t, 3)
	w := NewCsvWrapper(1, 2, path, ',')

	key := layout.NewChunkKey(1, 2, 1, 7, layout.SubIDData)
	dst := map[layout.Key][]byte{key: nil}
	if err := w.PopulateChunkBuffers(dst); err == nil {
		t.Fatal("expected an error for a fragment id past the end of the file")
	}
}

func TestCsvWrapperSerializeRestoreStateRoundTrips(t *testing.T) {
	path := writeTestCSV(t, 3)
	w := NewCsvWrapper(1, 2, path, ',')
	if _, err := w.MaxFragmentID(); err != nil {
		t.Fatalf("unexpected error priming fragment counts: %v", err)
	}

	data, err := w.SerializeState()
	if err != nil {
		t.Fatalf("unexpected error on SerializeState: %v", err)
	}

	restored := NewCsvWrapper(0, 0, "", ',')
	if err := restored.RestoreState(data); err != nil {
		t.Fatalf("unexpected error on RestoreState: %v", err)
	}
	if restored.path != path {
		t.Fatalf("expected restored path %q, got %q", path, restored.path)
	}
	if len(restored.fragmentRowCounts) != len(w.fragmentRowCounts) {
		t.Fatalf("expected restored fragment counts to match, got %v vs %v", restored.fragmentRowCounts, w.fragmentRowCounts)
	}
}
