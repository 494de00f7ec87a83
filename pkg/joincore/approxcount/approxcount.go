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

// Package approxcount is the HyperLogLog-based distinct-composite-key
// estimator used to size OneToMany/ManyToMany hash tables (spec.md §4.1,
// component C7). It shards work across CPU threads or GPU devices, each
// populating an independent sketch, then unifies into a single estimate.
package approxcount

import (
	"runtime"
	"sync"

	hll "github.com/axiomhq/hyperloglog"
	"github.com/panjf2000/ants/v2"

	"github.com/ngocbd/omniscidb/internal/logutil"
	"go.uber.org/zap"
)

// cacheLinePadding keeps each thread's sketch on its own cache line so
// concurrent Insert calls from different shards never false-share; this is
// the Go-idiomatic rendition of the spec's "threads × padded_bitmap_bytes"
// allocation, since the underlying register array is owned by the library's
// Sketch rather than a bitmap we size by hand.
const cacheLinePadding = 64

type paddedSketch struct {
	sk  *hll.Sketch
	_   [cacheLinePadding]byte
}

// Counter estimates the number of distinct composite-key hashes across a
// sharded input, used only to size OneToMany/ManyToMany tables.
type Counter struct {
	shards []paddedSketch
}

// NewCounter allocates one sketch per shard (a CPU thread or a GPU device).
// Each sketch uses hll.New()'s default precision, not a fixed 2048-register
// sketch (DESIGN.md Open Question 1).
func NewCounter(shardCount int) *Counter {
	if shardCount < 1 {
		shardCount = 1
	}
	c := &Counter{shards: make([]paddedSketch, shardCount)}
	for i := range c.shards {
		c.shards[i].sk = hll.New()
	}
	return c
}

// InsertHash feeds one composite-key hash (already computed by the builder)
// into shard's sketch.
func (c *Counter) InsertHash(shard int, hash uint64) {
	var buf [8]byte
	putUint64(buf[:], hash)
	c.shards[shard].sk.Insert(buf[:])
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// BuildCPU shards rows across runtime.NumCPU() goroutines dispatched through
// a bounded ants.Pool (mirroring the teacher's own ants.Pool usage in
// pkg/frontend and pkg/backup), each hashing its slice of composite keys
// into its own sketch, then unifies and estimates.
func BuildCPU(rowCount int, hashOf func(row int) uint64) (uint64, error) {
	threads := runtime.NumCPU()
	if threads > rowCount && rowCount > 0 {
		threads = rowCount
	}
	if threads < 1 {
		threads = 1
	}
	c := NewCounter(threads)

	pool, err := ants.NewPool(threads)
	if err != nil {
		return 0, err
	}
	defer pool.Release()

	var wg sync.WaitGroup
	chunk := (rowCount + threads - 1) / threads
	for t := 0; t < threads; t++ {
		start := t * chunk
		end := start + chunk
		if end > rowCount {
			end = rowCount
		}
		if start >= end {
			continue
		}
		t := t
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			var buf [8]byte
			for r := start; r < end; r++ {
				putUint64(buf[:], hashOf(r))
				c.shards[t].sk.Insert(buf[:])
			}
		}); err != nil {
			wg.Done()
			logutil.Error("approxcount: failed to submit shard", zap.Int("shard", t), zap.Error(err))
		}
	}
	wg.Wait()

	return c.Estimate()
}

// Estimate bitmap-unifies every shard's sketch into shard 0's and returns
// the cardinality estimate.
func (c *Counter) Estimate() (uint64, error) {
	if len(c.shards) == 0 {
		return 0, nil
	}
	unified := c.shards[0].sk
	for i := 1; i < len(c.shards); i++ {
		if err := unified.Merge(c.shards[i].sk); err != nil {
			return 0, err
		}
	}
	return unified.Estimate(), nil
}

// BuildGPU mirrors BuildCPU's shape for the GPU memory tier: one partial
// sketch per device, unified into device 0's buffer. The per-device hashing
// itself happens in GPU kernels outside this package's scope (spec.md §1
// Non-goals); this only owns the host-side unify-and-estimate step once
// each device reports back its partial sketch.
func BuildGPU(deviceSketches []*hll.Sketch) (uint64, error) {
	if len(deviceSketches) == 0 {
		return 0, nil
	}
	unified := deviceSketches[0]
	for i := 1; i < len(deviceSketches); i++ {
		if err := unified.Merge(deviceSketches[i]); err != nil {
			return 0, err
		}
	}
	return unified.Estimate(), nil
}
