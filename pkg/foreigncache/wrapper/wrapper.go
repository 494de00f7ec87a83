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

// Package wrapper is the foreign data wrapper interface (spec.md §4.4,
// component C3): a per-format reader producing chunk buffers and metadata
// from external files. Each concrete wrapper reports a Kind tag; the manager
// calls every wrapper through the ForeignDataWrapper interface.
package wrapper

import (
	"github.com/ngocbd/omniscidb/pkg/joincore/layout"
)

// Kind tags which concrete wrapper a table uses.
type Kind int

const (
	Csv Kind = iota
	Parquet
	MySQL
)

func (k Kind) String() string {
	switch k {
	case Csv:
		return "csv"
	case Parquet:
		return "parquet"
	case MySQL:
		return "mysql"
	default:
		return "unknown"
	}
}

// RowGroupInterval is the inclusive [start, end] of Parquet row groups per
// file, used by the Parquet wrapper (spec.md §3).
type RowGroupInterval struct {
	File       string
	Start, End int
}

// ForeignDataWrapper is the interface every format-specific reader
// implements. Ownership of a wrapper instance stays with the manager's
// wrapper map; a mock decorator (see wrapper/mock) may hold a weak
// backpointer to the real wrapper without owning it (spec.md §9).
type ForeignDataWrapper interface {
	Kind() Kind

	// PopulateChunkBuffers fills every destination buffer in dst (keyed by
	// exact chunk key, including transient sibling buffers for the rest of
	// the chunk's column family) from the external file(s) backing this
	// table.
	PopulateChunkBuffers(dst map[layout.Key][]byte) error

	// PopulateChunkMetadata appends one Metadata entry per chunk this
	// wrapper currently knows about to out.
	PopulateChunkMetadata(out *[]MetadataEntry) error

	// MaxFragmentID reports the highest fragment id currently visible in
	// the backing storage, used by append-mode refresh to bound the scan.
	MaxFragmentID() (int, error)

	// SerializeState captures whatever internal bookkeeping (file list,
	// row-group intervals, schema) a later process needs to reconstruct
	// this wrapper without re-scanning files; written to
	// wrapper_metadata.json by the caching manager (spec.md §4.5).
	SerializeState() ([]byte, error)

	// RestoreState is the inverse of SerializeState.
	RestoreState(data []byte) error
}

// MetadataEntry pairs a chunk key with its descriptive metadata.
type MetadataEntry struct {
	Key      layout.Key
	Metadata layout.Metadata
	FragID   int
}

// Factory constructs a wrapper for a table given its persisted options
// (spec.md §6's FILE_PATH/STORAGE_TYPE etc).
type Factory func(dbID, tableID int32, options map[string]string) (ForeignDataWrapper, error)
