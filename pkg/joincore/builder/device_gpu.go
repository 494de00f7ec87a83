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

//go:build gpu

package builder

// cudaDeviceAllocator is a placeholder for the real CUDA-backed allocator;
// the CUDA runtime's internals are out of scope (spec.md §1 Non-goals), so
// this package only owns the calling contract: allocate device memory sized
// like a host buffer, copy into it, and release everything on Close.
type cudaDeviceAllocator struct {
	deviceID int
	bufs     [][]byte // host-side shadow storage standing in for device memory
}

type cudaDeviceBuffer struct {
	data []byte
}

func (b *cudaDeviceBuffer) CopyFromHost(src []byte) error {
	copy(b.data, src)
	return nil
}

func (b *cudaDeviceBuffer) Size() int64 { return int64(len(b.data)) }

func NewDeviceAllocator(deviceID int) (DeviceAllocator, error) {
	return &cudaDeviceAllocator{deviceID: deviceID}, nil
}

func (a *cudaDeviceAllocator) DeviceID() int { return a.deviceID }

func (a *cudaDeviceAllocator) Alloc(size int64) (DeviceBuffer, error) {
	buf := &cudaDeviceBuffer{data: make([]byte, size)}
	a.bufs = append(a.bufs, buf.data)
	return buf, nil
}

func (a *cudaDeviceAllocator) Close() {
	a.bufs = nil
}
