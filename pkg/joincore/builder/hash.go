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

// hashKey is a simple multiplicative mix over the composite key's encoded
// bytes, matching the shape (not the exact constants) of the teacher's
// Crc32Int64Hash: fast, order-sensitive, and good enough to drive linear
// probing uniformly. The probe-site ABI contract (spec.md §4.3) only
// requires that baseline_hash_join_idx_{32,64}'s probe sequence matches
// between build and probe, not any specific hash function.
func hashKey(encoded []byte) uint64 {
	var h uint64 = 14695981039346656037 // FNV offset basis
	for _, b := range encoded {
		h ^= uint64(b)
		h *= 1099511628211 // FNV prime
	}
	return h
}

func hashComposite(spec layout.Spec, k layout.CompositeKey) uint64 {
	buf := make([]byte, spec.KeyBufferSize())
	spec.EncodeKey(k, buf)
	return hashKey(buf)
}
