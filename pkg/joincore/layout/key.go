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

import "encoding/binary"

// CompositeKey holds the N equi-join component values for one row, already
// widened to the table's key_component_width.
type CompositeKey struct {
	Components []int64
}

// EncodeKey writes the composite key into a caller-owned buffer of width
// KeyBufferSize(), sign-extending each component to componentWidth bytes.
// This is codegenKey(co) in spec.md §4.3.
func (s Spec) EncodeKey(k CompositeKey, out []byte) {
	width := s.KeyComponentWidth
	for i, v := range k.Components {
		off := i * width
		if width == 4 {
			binary.LittleEndian.PutUint32(out[off:], uint32(int32(v)))
		} else {
			binary.LittleEndian.PutUint64(out[off:], uint64(v))
		}
	}
}

// DecodeKey is the inverse of EncodeKey, used by tests; the builder compares
// candidate slots with KeysEqual instead.
func (s Spec) DecodeKey(in []byte) CompositeKey {
	width := s.KeyComponentWidth
	comps := make([]int64, s.KeyComponentCount)
	for i := range comps {
		off := i * width
		if width == 4 {
			comps[i] = int64(int32(binary.LittleEndian.Uint32(in[off:])))
		} else {
			comps[i] = int64(binary.LittleEndian.Uint64(in[off:]))
		}
	}
	return CompositeKey{Components: comps}
}

// IsEmptySlot reports whether the key-region entry starting at entry is the
// empty sentinel, judged by the entry's first key component alone.
func (s Spec) IsEmptySlot(entry []byte) bool {
	width := s.KeyComponentWidth
	if width == 4 {
		return int32(binary.LittleEndian.Uint32(entry)) == EmptySentinel32
	}
	return int64(binary.LittleEndian.Uint64(entry)) == EmptySentinel64
}

// KeysEqual compares two encoded composite keys byte-for-byte over
// KeyComponentCount*KeyComponentWidth bytes (the key portion only, not the
// trailing hash slot some layouts append).
func (s Spec) KeysEqual(a, b []byte) bool {
	n := s.KeyComponentCount * s.KeyComponentWidth
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// OpType selects §4.1's null semantics, which the builder applies through
// RowSource.NullMask (KeysEqual itself compares bytes only): for OpEquals,
// any component being null means the row can never match (including
// itself); for OpBitwiseEquals (<=>), a null component compares equal to
// another null component in the same position.
type OpType int

const (
	OpEquals OpType = iota
	OpBitwiseEquals
)
