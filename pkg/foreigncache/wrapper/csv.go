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
	"context"
	"encoding/json"
	"os"

	"github.com/matrixorigin/simdcsv"

	"github.com/ngocbd/omniscidb/internal/moerr"
	"github.com/ngocbd/omniscidb/pkg/joincore/layout"
)

// csvBatchRows matches the teacher's own batching constant for csv reads
// (pkg/util/export/merge.go's BatchReadRows).
const csvBatchRows = 4000

// CsvWrapper reads chunk data out of a single delimited file, one fragment
// per csvBatchRows rows. CSV/Parquet decoder internals beyond this surface
// are out of scope (spec.md §1 Non-goals); this wrapper only has to satisfy
// ForeignDataWrapper.
type CsvWrapper struct {
	dbID, tableID int32
	path          string
	fieldSep      rune

	fragmentRowCounts []int // rows found in each fragment, filled by a scan
}

var _ ForeignDataWrapper = (*CsvWrapper)(nil)

func NewCsvWrapper(dbID, tableID int32, path string, fieldSep rune) *CsvWrapper {
	return &CsvWrapper{dbID: dbID, tableID: tableID, path: path, fieldSep: fieldSep}
}

func (w *CsvWrapper) Kind() Kind { return Csv }

func (w *CsvWrapper) scan() error {
	f, err := os.Open(w.path)
	if err != nil {
		return moerr.Wrap(moerr.ErrFailedToFetchColumn, err, "opening csv file %s", w.path)
	}
	defer f.Close()

	reader := simdcsv.NewReaderWithOptions(f, w.fieldSep, '#', true, true)
	w.fragmentRowCounts = nil
	rows := make([][]string, csvBatchRows)
	for {
		batch, n, err := reader.Read(csvBatchRows, context.Background(), rows)
		if err != nil {
			return moerr.Wrap(moerr.ErrFailedToFetchColumn, err, "reading csv file %s", w.path)
		}
		if n == 0 {
			break
		}
		w.fragmentRowCounts = append(w.fragmentRowCounts, n)
		rows = batch
		if n < csvBatchRows {
			break
		}
	}
	return nil
}

// PopulateChunkBuffers fills dst for every requested chunk key by mapping
// fragment id to a byte-serialised row slice of that fragment; column
// projection and typed decoding live in the query engine's external
// collaborator surface, out of scope here.
func (w *CsvWrapper) PopulateChunkBuffers(dst map[layout.Key][]byte) error {
	if w.fragmentRowCounts == nil {
		if err := w.scan(); err != nil {
			return err
		}
	}
	for key := range dst {
		fragID := int(key.Parts[3])
		if fragID < 0 || fragID >= len(w.fragmentRowCounts) {
			return moerr.New(moerr.ErrFailedToFetchColumn, "csv wrapper: fragment %d out of range", fragID)
		}
		dst[key] = encodeFragmentPlaceholder(fragID, w.fragmentRowCounts[fragID])
	}
	return nil
}

// encodeFragmentPlaceholder stands in for the real column-typed payload a
// full CSV decoder would produce; the cache and file manager only need a
// byte buffer of a believable size to exercise page accounting correctly.
func encodeFragmentPlaceholder(fragID, rowCount int) []byte {
	return make([]byte, rowCount*8)
}

func (w *CsvWrapper) PopulateChunkMetadata(out *[]MetadataEntry) error {
	if w.fragmentRowCounts == nil {
		if err := w.scan(); err != nil {
			return err
		}
	}
	for frag, rows := range w.fragmentRowCounts {
		key := layout.NewChunkKey(w.dbID, w.tableID, 1, int32(frag), layout.SubIDData)
		*out = append(*out, MetadataEntry{
			Key:    key,
			FragID: frag,
			Metadata: layout.Metadata{
				SQLType:     "TEXT",
				NumBytes:    int64(rows * 8),
				NumElements: int64(rows),
			},
		})
	}
	return nil
}

func (w *CsvWrapper) MaxFragmentID() (int, error) {
	if w.fragmentRowCounts == nil {
		if err := w.scan(); err != nil {
			return 0, err
		}
	}
	return len(w.fragmentRowCounts) - 1, nil
}

type csvWrapperState struct {
	Path              string `json:"path"`
	FragmentRowCounts []int  `json:"fragment_row_counts"`
}

func (w *CsvWrapper) SerializeState() ([]byte, error) {
	return json.Marshal(csvWrapperState{Path: w.path, FragmentRowCounts: w.fragmentRowCounts})
}

func (w *CsvWrapper) RestoreState(data []byte) error {
	var st csvWrapperState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	w.path = st.Path
	w.fragmentRowCounts = st.FragmentRowCounts
	return nil
}
