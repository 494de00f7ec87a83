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

// Package layout defines the composite-key hash-table buffer layout and the
// ChunkKey/ChunkMetadata data model shared by the join core and the foreign
// storage cache.
package layout

import "math"

// SubID distinguishes the data portion of a variable-length column's chunk
// from its index (offsets) portion.
type SubID int32

const (
	SubIDData  SubID = 1
	SubIDIndex SubID = 2
)

// MaxInt bounds the half-open interval of a table's or column's key prefix.
const MaxInt = math.MaxInt32

// ChunkKey is [db_id, table_id, column_id, fragment_id, sub_id], though a
// shorter prefix identifies a table (len 2) or a column (len 3). Ordering is
// lexicographic over the populated positions.
type ChunkKey [5]int32

// Len tracks how many of the five positions are meaningful; a table prefix
// is Len 2, a column prefix Len 3, a full chunk key Len 5.
type Key struct {
	Parts ChunkKey
	Len   int
}

// TablePrefix returns the 2-element table-identifying prefix of k.
func (k Key) TablePrefix() Key {
	return Key{Parts: ChunkKey{k.Parts[0], k.Parts[1]}, Len: 2}
}

// Less implements the lexicographic ordering spec.md §3 requires, comparing
// only the shorter key's populated length so a prefix sorts immediately
// before any key extending it.
func (k Key) Less(other Key) bool {
	n := k.Len
	if other.Len < n {
		n = other.Len
	}
	for i := 0; i < n; i++ {
		if k.Parts[i] != other.Parts[i] {
			return k.Parts[i] < other.Parts[i]
		}
	}
	return k.Len < other.Len
}

// Equal reports structural equality over the populated positions.
func (k Key) Equal(other Key) bool {
	if k.Len != other.Len {
		return false
	}
	for i := 0; i < k.Len; i++ {
		if k.Parts[i] != other.Parts[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix (a table or column key) bounds k.
func (k Key) HasPrefix(prefix Key) bool {
	if prefix.Len > k.Len {
		return false
	}
	for i := 0; i < prefix.Len; i++ {
		if k.Parts[i] != prefix.Parts[i] {
			return false
		}
	}
	return true
}

// UpperBound returns the exclusive upper bound of the half-open interval
// spanned by all keys sharing this prefix: the prefix extended to a full
// chunk key with every position past Len set to MaxInt. Extending rather
// than overwriting matters for a table prefix (Len 2): the last populated
// position there is the table_id itself, and overwriting it would widen
// the bound to cover every higher-numbered table too.
func (k Key) UpperBound() Key {
	up := Key{Parts: k.Parts, Len: len(ChunkKey{})}
	for i := k.Len; i < len(up.Parts); i++ {
		up.Parts[i] = MaxInt
	}
	return up
}

func NewTableKey(dbID, tableID int32) Key {
	return Key{Parts: ChunkKey{dbID, tableID}, Len: 2}
}

func NewColumnKey(dbID, tableID, columnID int32) Key {
	return Key{Parts: ChunkKey{dbID, tableID, columnID}, Len: 3}
}

func NewChunkKey(dbID, tableID, columnID, fragmentID int32, sub SubID) Key {
	return Key{Parts: ChunkKey{dbID, tableID, columnID, fragmentID, int32(sub)}, Len: 5}
}

// IndexSibling returns the sub_id=2 key for a sub_id=1 data key, and vice
// versa. Variable-length columns always carry both.
func (k Key) IndexSibling() Key {
	sib := k
	if sib.Parts[4] == int32(SubIDData) {
		sib.Parts[4] = int32(SubIDIndex)
	} else {
		sib.Parts[4] = int32(SubIDData)
	}
	return sib
}

// ChunkStats is purely descriptive min/max/null summary for a chunk.
type ChunkStats struct {
	Min      any
	Max      any
	HasNulls bool
}

// Metadata is owned by whoever cached it; purely descriptive.
type Metadata struct {
	SQLType     string
	NumBytes    int64
	NumElements int64
	Stats       ChunkStats
}
