// Copyright 2022 Matrix Origin
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

// Package eviction is the per-table LRU eviction algorithm (spec.md §3/§4.6,
// component C1): a strict least-recently-used order over opaque chunk
// identifiers, touched on every cache read or write.
package eviction

import "container/list"

// ChunkID is whatever opaque identifier the cache tracks eviction for; the
// foreign storage cache uses layout.Key, but this package stays generic the
// way the teacher's own fileservice LRU (pkg/service/fileservice/lru.go)
// keys on `any`.
type ChunkID = any

// LRU is a strict least-recently-used tracker. It holds no size/byte
// accounting of its own — the cache above decides what "evict until it
// fits" means and calls EvictOne in a loop.
type LRU struct {
	order *list.List
	index map[ChunkID]*list.Element
}

// New constructs an empty tracker.
func New() *LRU {
	return &LRU{
		order: list.New(),
		index: make(map[ChunkID]*list.Element),
	}
}

// Touch records (or re-records) id as the most-recently-used entry.
func (l *LRU) Touch(id ChunkID) {
	if elem, ok := l.index[id]; ok {
		l.order.MoveToFront(elem)
		return
	}
	l.index[id] = l.order.PushFront(id)
}

// Remove drops id from the tracker, if present.
func (l *LRU) Remove(id ChunkID) {
	if elem, ok := l.index[id]; ok {
		l.order.Remove(elem)
		delete(l.index, id)
	}
}

// EvictOne evicts and returns the least-recently-used entry, or ok=false if
// the tracker is empty.
func (l *LRU) EvictOne() (id ChunkID, ok bool) {
	elem := l.order.Back()
	if elem == nil {
		return nil, false
	}
	l.order.Remove(elem)
	id = elem.Value
	delete(l.index, id)
	return id, true
}

// Len reports how many entries the tracker currently holds.
func (l *LRU) Len() int {
	return l.order.Len()
}

// Contains reports whether id is currently tracked.
func (l *LRU) Contains(id ChunkID) bool {
	_, ok := l.index[id]
	return ok
}

// OrderedIDs returns every tracked id from least- to most-recently-used, a
// debugging aid for dumping eviction order.
func (l *LRU) OrderedIDs() []ChunkID {
	out := make([]ChunkID, 0, l.order.Len())
	for e := l.order.Back(); e != nil; e = e.Prev() {
		out = append(out, e.Value)
	}
	return out
}
