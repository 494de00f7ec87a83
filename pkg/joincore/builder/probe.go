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

package builder

import "github.com/ngocbd/omniscidb/pkg/joincore/layout"

// MissSentinel is returned by BaselineHashJoinIdx on a probe miss.
const MissSentinel int64 = -1

// BaselineHashJoinIdx is the host-side Go equivalent of the probe-site ABI
// spec.md §6 exports to the external code generator
// (baseline_hash_join_idx_{32,64}): given the hash buffer, an
// encoded key, its byte width, and the table's entry count, return the
// slot's payload or MissSentinel on a miss. Only meaningful for OneToOne.
func BaselineHashJoinIdx(spec layout.Spec, hashBuf []byte, key []byte, entryCount int64) int64 {
	keyWidth := spec.KeyComponentCount * spec.KeyComponentWidth
	stride := keyWidth + spec.KeyComponentWidth
	h := hashKey(key)
	slot := int64(h % uint64(entryCount))

	for probes := int64(0); probes < entryCount; probes++ {
		idx := (slot + probes) % entryCount
		entryOff := idx * int64(stride)
		entry := hashBuf[entryOff : entryOff+int64(stride)]

		if spec.IsEmptySlot(entry) {
			return MissSentinel
		}
		if spec.KeysEqual(entry, key) {
			payload := entry[keyWidth:]
			if spec.KeyComponentWidth == 4 {
				return int64(readInt32(payload))
			}
			return readInt64(payload)
		}
	}
	return MissSentinel
}

// GetCompositeKeyIndex is get_composite_key_index_{32,64}: resolves a
// composite key's entry slot for OneToMany/ManyToMany layouts (where the
// key region holds no trailing payload, only the key itself), returning
// MissSentinel when the key was never inserted.
func GetCompositeKeyIndex(spec layout.Spec, keyBuf []byte, key []byte, entryCount int64) int64 {
	keyWidth := spec.KeyComponentCount * spec.KeyComponentWidth
	h := hashKey(key)
	slot := int64(h % uint64(entryCount))

	for probes := int64(0); probes < entryCount; probes++ {
		idx := (slot + probes) % entryCount
		entryOff := idx * int64(keyWidth)
		entry := keyBuf[entryOff : entryOff+int64(keyWidth)]

		if spec.IsEmptySlot(entry) {
			return MissSentinel
		}
		if spec.KeysEqual(entry, key) {
			return idx
		}
	}
	return MissSentinel
}

// MatchingSet is the [begin, end) row-id range produced by
// codegenMatchingSet(co, index) for OneToMany probing.
type MatchingSet struct {
	Begin, End int64
}

// MatchingSetFor resolves the matching set for a composite key: locate its
// entry via GetCompositeKeyIndex, then read its [offset, offset+count)
// bounds from the Offsets/Counts regions.
func MatchingSetFor(spec layout.Spec, buf *layout.Buffer, key []byte) (MatchingSet, bool) {
	keyRegion := buf.Data[:buf.Spec.KeyRegionSize()]
	idx := GetCompositeKeyIndex(spec, keyRegion, key, spec.EntryCount)
	if idx == MissSentinel {
		return MatchingSet{}, false
	}
	offsets := buf.OffsetsRegion()
	counts := buf.CountsRegion()
	begin := readOffset(offsets, idx)
	count := readCount(counts, idx)
	return MatchingSet{Begin: begin, End: begin + count}, true
}

// RowIDsInSet reads the row ids held in the payload region over [Begin, End).
func RowIDsInSet(buf *layout.Buffer, set MatchingSet) []int64 {
	payload := buf.PayloadRegion()
	out := make([]int64, 0, set.End-set.Begin)
	for i := set.Begin; i < set.End; i++ {
		out = append(out, int64(layout.ReadInt32(payload, i)))
	}
	return out
}
