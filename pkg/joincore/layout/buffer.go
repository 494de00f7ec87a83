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

package layout

import (
	"encoding/binary"

	"github.com/ngocbd/omniscidb/internal/moerr"
)

// Layout tags the physical organisation of a composite-key hash table.
type Layout int

const (
	OneToOne Layout = iota
	OneToMany
	ManyToMany
)

func (l Layout) String() string {
	switch l {
	case OneToOne:
		return "OneToOne"
	case OneToMany:
		return "OneToMany"
	case ManyToMany:
		return "ManyToMany"
	default:
		return "Unknown"
	}
}

const int32Size = 4

// EmptySentinel32 / EmptySentinel64 mark unfilled key-region slots.
var (
	EmptySentinel32 int32 = -1
	EmptySentinel64 int64 = -1 << 63 // INT_MIN
)

// Spec describes everything needed to compute the four sub-region byte
// offsets of a hash-table buffer (spec.md §3).
type Spec struct {
	Layout              Layout
	KeyComponentCount   int
	KeyComponentWidth   int // 4 or 8
	EntryCount          int64
}

// NewSpec validates and builds a Spec, choosing component width per the
// invariant: 8 if any inner column's logical size exceeds 4, else 4.
func NewSpec(l Layout, keyComponentCount int, anyWiderThan4 bool, entryCount int64) (Spec, error) {
	if entryCount > MaxInt {
		return Spec{}, moerr.New(moerr.ErrTooManyHashEntries,
			"entry_count %d exceeds INT32_MAX", entryCount)
	}
	width := 4
	if anyWiderThan4 {
		width = 8
	}
	return Spec{
		Layout:            l,
		KeyComponentCount: keyComponentCount,
		KeyComponentWidth: width,
		EntryCount:        entryCount,
	}, nil
}

// KeyBufferSize is the width in bytes of one materialised composite key
// (codegenKey's stack buffer width).
func (s Spec) KeyBufferSize() int {
	return s.KeyComponentCount * s.KeyComponentWidth
}

// keyRegionEntryStride is the per-entry width of the key region: the
// composite key, plus (OneToOne only) a trailing hash slot of the same
// component width.
func (s Spec) keyRegionEntryStride() int {
	stride := s.KeyComponentCount * s.KeyComponentWidth
	if s.Layout == OneToOne {
		stride += s.KeyComponentWidth
	}
	return stride
}

// KeyRegionSize is the byte length of sub-region 1.
func (s Spec) KeyRegionSize() int64 {
	return s.EntryCount * int64(s.keyRegionEntryStride())
}

// auxElemSize is the width of one Offsets/Counts/Payload region element:
// these three sub-regions are always int32-wide per spec.md §3, regardless
// of the table's key component width.
const auxElemSize = int32Size

// auxRegionSize is the byte length of each of sub-regions 2/3/4, which are
// absent (zero) for OneToOne.
func (s Spec) auxRegionSize() int64 {
	if s.Layout == OneToOne {
		return 0
	}
	return s.EntryCount * auxElemSize
}

// Offsets returns the byte offset of each of the four sub-regions within
// the single contiguous buffer.
func (s Spec) Offsets() (keyOff, offsetsOff, countsOff, payloadOff int64) {
	keyOff = 0
	offsetsOff = keyOff + s.KeyRegionSize()
	countsOff = offsetsOff + s.auxRegionSize()
	payloadOff = countsOff + s.auxRegionSize()
	return
}

// TotalSize is the full contiguous buffer length.
func (s Spec) TotalSize() int64 {
	_, _, _, payloadOff := s.Offsets()
	return payloadOff + s.auxRegionSize()
}

// EntryCountForMultiEntry computes entry_count = 2 * approximate_distinct_tuples
// (rounded up to 1) for OneToMany/ManyToMany layouts.
func EntryCountForMultiEntry(approxDistinct int64) int64 {
	if approxDistinct < 1 {
		approxDistinct = 1
	}
	return 2 * approxDistinct
}

// EntryCountForOneToOne computes entry_count = 2 * upper_bound_on_tuples.
func EntryCountForOneToOne(upperBound int64) int64 {
	if upperBound < 1 {
		upperBound = 1
	}
	return 2 * upperBound
}

// EntriesPerDevice is ceil(entry_count / device_count) when sharded.
func EntriesPerDevice(entryCount int64, deviceCount int) int64 {
	if deviceCount <= 0 {
		deviceCount = 1
	}
	return (entryCount + int64(deviceCount) - 1) / int64(deviceCount)
}

// Buffer is the single owned byte region backing one device's hash table.
type Buffer struct {
	Spec Spec
	Data []byte
}

// NewBuffer allocates a buffer sized for spec and seeds its key region with
// the empty sentinel for every layout, matching IsEmptySlot's test: 0 is a
// valid composite-key component value (unlike the teacher's int64_hash_map,
// which special-cases a zero key via a dedicated zeroCell outside the main
// bucket array), so an all-zero entry cannot double as "unfilled".
func NewBuffer(spec Spec) *Buffer {
	b := &Buffer{Spec: spec, Data: make([]byte, spec.TotalSize())}
	b.fillKeyRegionWithSentinel()
	return b
}

func (b *Buffer) fillKeyRegionWithSentinel() {
	stride := b.Spec.keyRegionEntryStride()
	width := b.Spec.KeyComponentWidth
	n := int(b.Spec.EntryCount)
	for e := 0; e < n; e++ {
		base := e * stride
		for c := 0; c < b.Spec.KeyComponentCount; c++ {
			off := base + c*width
			if width == 4 {
				binary.LittleEndian.PutUint32(b.Data[off:], uint32(EmptySentinel32))
			} else {
				binary.LittleEndian.PutUint64(b.Data[off:], uint64(EmptySentinel64))
			}
		}
	}
}

// HashPtr returns the byte offset of the hash buffer for probe slot index
// (hashPtr(index) in spec.md §4.3 — here a slice offset rather than a raw
// pointer, since Go code addresses memory through slices).
func (b *Buffer) HashPtr(index int64) []byte {
	stride := b.Spec.keyRegionEntryStride()
	return b.Data[index*int64(stride):]
}

// OffsetsRegion, CountsRegion, PayloadRegion return the sub-region slices.
func (b *Buffer) OffsetsRegion() []byte {
	_, off, _, _ := b.Spec.Offsets()
	size := b.Spec.auxRegionSize()
	return b.Data[off : off+size]
}

func (b *Buffer) CountsRegion() []byte {
	_, _, off, _ := b.Spec.Offsets()
	size := b.Spec.auxRegionSize()
	return b.Data[off : off+size]
}

func (b *Buffer) PayloadRegion() []byte {
	_, _, _, off := b.Spec.Offsets()
	size := b.Spec.auxRegionSize()
	return b.Data[off : off+size]
}

func ReadInt32(region []byte, idx int64) int32 {
	return int32(binary.LittleEndian.Uint32(region[idx*int32Size:]))
}

func WriteInt32(region []byte, idx int64, v int32) {
	binary.LittleEndian.PutUint32(region[idx*int32Size:], uint32(v))
}
