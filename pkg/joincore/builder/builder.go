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

// Package builder is the composite-key hash-table builder (spec.md §4.1,
// component C6): it populates a layout.Buffer on the CPU or GPU memory tier
// for a given Spec, probing a generic key handler.
package builder

import (
	"sync"

	"github.com/ngocbd/omniscidb/internal/moerr"
	"github.com/ngocbd/omniscidb/pkg/joincore/layout"
)

// MemoryLevel selects the device tier a buffer is built for.
type MemoryLevel int

const (
	CPU MemoryLevel = iota
	GPU
)

// RowSource supplies the dense, already-fetched inner-column values for one
// device's fragment list: one composite key and one row id per row.
type RowSource struct {
	Keys   []layout.CompositeKey
	RowIDs []int64 // defaults to row index in Keys if nil

	// NullMask, if non-nil, reports whether row i's component c was SQL
	// NULL in the source column, feeding spec.md §4.1's null-fold: under
	// OpEquals a null component means the row can never match anything
	// (including itself) and is excluded from insertion; under
	// OpBitwiseEquals (<=>) it is inserted and matches other rows that are
	// null in the same component.
	NullMask func(row, component int) bool
}

func (rs RowSource) rowID(i int) int64 {
	if rs.RowIDs != nil {
		return rs.RowIDs[i]
	}
	return int64(i)
}

// isNullIn reports whether row i has any null component, per NullMask.
func (rs RowSource) isNullIn(i int) func(component int) bool {
	if rs.NullMask == nil {
		return nil
	}
	return func(component int) bool { return rs.NullMask(i, component) }
}

// cpuHashTableBuildMu serialises CPU builds: only one CPU build proceeds at
// a time (spec.md §5), matching cpu_hash_table_buff_mutex_.
var cpuHashTableBuildMu sync.Mutex

// Reify builds a single device's hash table for spec, retrying with a
// downgraded layout on duplicate-key failure exactly as spec.md §4.1
// describes: start with the preferred layout, and on OneToOne duplicate-key
// failure free the buffer and retry as OneToMany. TableMustBeReplicated-class
// errors bypass the retry and propagate immediately (spec.md §9).
func Reify(level MemoryLevel, spec layout.Spec, rows RowSource, op layout.OpType) (*layout.Buffer, layout.Layout, error) {
	if level == CPU {
		cpuHashTableBuildMu.Lock()
		defer cpuHashTableBuildMu.Unlock()
	}

	buf, err := build(spec, rows, op)
	if err == nil {
		return buf, spec.Layout, nil
	}

	if moerr.HasCode(err, moerr.ErrTableMustBeReplicated) {
		return nil, spec.Layout, err
	}

	if spec.Layout == layout.OneToOne && moerr.HasCode(err, moerr.ErrDuplicateKey) {
		downgraded := spec
		downgraded.Layout = layout.OneToMany
		downgraded.EntryCount = layout.EntryCountForMultiEntry(approxFromUpperBound(spec.EntryCount))
		buf, buildErr := build(downgraded, rows, op)
		if buildErr != nil {
			return nil, downgraded.Layout, buildErr
		}
		return buf, downgraded.Layout, nil
	}

	return nil, spec.Layout, err
}

// approxFromUpperBound derives a sizing estimate for the downgrade retry
// when no fresh HLL estimate is available: half of the original
// one-to-one entry count (itself 2x an upper bound), rounded up to 1.
func approxFromUpperBound(oneToOneEntryCount int64) int64 {
	v := oneToOneEntryCount / 2
	if v < 1 {
		v = 1
	}
	return v
}

func build(spec layout.Spec, rows RowSource, op layout.OpType) (*layout.Buffer, error) {
	switch spec.Layout {
	case layout.OneToOne:
		return buildOneToOne(spec, rows, op)
	case layout.OneToMany, layout.ManyToMany:
		return buildOneToMany(spec, rows, op)
	default:
		return nil, moerr.New(moerr.ErrHashJoinFail, "unknown layout %v", spec.Layout)
	}
}

// rowHasNullComponent reports whether a composite key's row should be
// excluded from insertion under OpEquals null semantics: any null component
// means the row never matches, including itself.
func rowHasNullComponent(k layout.CompositeKey, isNull func(component int) bool) bool {
	if isNull == nil {
		return false
	}
	for c := range k.Components {
		if isNull(c) {
			return true
		}
	}
	return false
}

// buildOneToOne implements §4.1's OneToOne algorithm: open addressing with
// linear probing. A collision with a distinct key keeps probing; a
// duplicate key is a conflict the caller converts into a layout downgrade.
func buildOneToOne(spec layout.Spec, rows RowSource, op layout.OpType) (*layout.Buffer, error) {
	buf := layout.NewBuffer(spec)
	stride := spec.KeyComponentCount*spec.KeyComponentWidth + spec.KeyComponentWidth
	entryCount := spec.EntryCount
	keyWidth := spec.KeyComponentCount * spec.KeyComponentWidth

	encoded := make([]byte, spec.KeyBufferSize())

	for i, k := range rows.Keys {
		if op == layout.OpEquals && rowHasNullComponent(k, rows.isNullIn(i)) {
			// a null component never matches under =, not even itself:
			// exclude the row from insertion entirely.
			continue
		}
		spec.EncodeKey(k, encoded)
		h := hashKey(encoded)
		slot := int64(h % uint64(entryCount))

		for probes := int64(0); probes < entryCount; probes++ {
			idx := (slot + probes) % entryCount
			entryOff := idx * int64(stride)
			entry := buf.Data[entryOff : entryOff+int64(stride)]

			if spec.IsEmptySlot(entry) {
				copy(entry[:keyWidth], encoded)
				writePayload(entry, spec.KeyComponentWidth, rows.rowID(i))
				break
			}
			if spec.KeysEqual(entry, encoded) {
				if op == layout.OpBitwiseEquals && rowHasNullComponent(k, rows.isNullIn(i)) {
					// nulls match themselves under <=>; treat as a repeat
					// insertion of the same slot rather than a conflict.
					break
				}
				return nil, moerr.New(moerr.ErrDuplicateKey,
					"row %d duplicates an existing OneToOne key", i)
			}
			// distinct key collision: keep probing.
		}
	}

	return buf, nil
}

// writePayload fills the key-width-sized trailing slot the OneToOne key
// region reserves per entry (spec.md §3's "hash" slot) with the row id:
// OneToOne has no separate payload region, so its one payload value per
// slot lives in that trailing component instead.
func writePayload(entry []byte, width int, rowID int64) {
	off := len(entry) - width
	if width == 4 {
		putInt32(entry[off:], int32(rowID))
	} else {
		putInt64(entry[off:], rowID)
	}
}

func putInt32(b []byte, v int32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putInt64(b []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
}

func readInt32(b []byte) int32 {
	return int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

func readInt64(b []byte) int64 {
	var u uint64
	for i := 0; i < 8; i++ {
		u |= uint64(b[i]) << (8 * i)
	}
	return int64(u)
}

// buildOneToMany implements §4.1's two-pass OneToMany/ManyToMany algorithm:
// pass one inserts each key, incrementing its Counts-region counter; a
// prefix sum converts Counts into stable Offsets; pass two writes each row
// id into Payload[offsets[slot] + --counts[slot]].
func buildOneToMany(spec layout.Spec, rows RowSource, op layout.OpType) (*layout.Buffer, error) {
	buf := layout.NewBuffer(spec)
	keyWidth := spec.KeyComponentCount * spec.KeyComponentWidth
	entryCount := spec.EntryCount

	slots := make([]int64, len(rows.Keys))
	excluded := make([]bool, len(rows.Keys))
	encoded := make([]byte, spec.KeyBufferSize())
	counts := buf.CountsRegion()

	// Pass 1: assign each row a slot (inserting its key if new) and bump
	// that slot's counter.
	for i, k := range rows.Keys {
		if op == layout.OpEquals && rowHasNullComponent(k, rows.isNullIn(i)) {
			// a null component never matches under =, not even itself:
			// exclude the row from insertion entirely.
			excluded[i] = true
			continue
		}
		spec.EncodeKey(k, encoded)
		h := hashKey(encoded)
		slot := int64(h % uint64(entryCount))

		var found int64 = -1
		for probes := int64(0); probes < entryCount; probes++ {
			idx := (slot + probes) % entryCount
			entryOff := idx * int64(keyWidth)
			entry := buf.Data[entryOff : entryOff+int64(keyWidth)]

			if spec.IsEmptySlot(entry) {
				copy(entry, encoded)
				found = idx
				break
			}
			if spec.KeysEqual(entry, encoded) {
				found = idx
				break
			}
		}
		if found == -1 {
			return nil, moerr.New(moerr.ErrHashJoinFail, "hash table full while inserting row %d", i)
		}
		slots[i] = found
		writeCount(counts, found, readCount(counts, found)+1)
	}

	// Convert counts to prefix-sum offsets.
	offsets := buf.OffsetsRegion()
	var running int64
	for e := int64(0); e < entryCount; e++ {
		c := readCount(counts, e)
		writeOffset(offsets, e, running)
		running += c
	}

	// Pass 2: write each row's id into Payload[offsets[slot] + --counts[slot]].
	payload := buf.PayloadRegion()
	remaining := make([]int64, entryCount)
	for e := int64(0); e < entryCount; e++ {
		remaining[e] = readCount(counts, e)
	}
	for i, slot := range slots {
		if excluded[i] {
			continue
		}
		remaining[slot]--
		pos := readOffset(offsets, slot) + remaining[slot]
		writeRowID(payload, pos, rows.rowID(i))
	}

	return buf, nil
}

func readCount(region []byte, idx int64) int64 {
	return int64(layout.ReadInt32(region, idx))
}

func writeCount(region []byte, idx int64, v int64) {
	layout.WriteInt32(region, idx, int32(v))
}

func readOffset(region []byte, idx int64) int64 {
	return int64(layout.ReadInt32(region, idx))
}

func writeOffset(region []byte, idx int64, v int64) {
	layout.WriteInt32(region, idx, int32(v))
}

func writeRowID(region []byte, idx int64, v int64) {
	layout.WriteInt32(region, idx, int32(v))
}
