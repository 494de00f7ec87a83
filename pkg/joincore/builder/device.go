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

// DeviceAllocator is constructed per device before fetching columns; its
// lifetime equals the build, and all device allocations are released when
// it is closed (spec.md §5 "Device lifecycle"). The CUDA-backed
// implementation lives behind the `gpu` build tag; see device_gpu.go and
// device_nogpu.go.
type DeviceAllocator interface {
	DeviceID() int
	Alloc(size int64) (DeviceBuffer, error)
	Close()
}

// DeviceBuffer is device-resident memory sized exactly like a CPU
// layout.Buffer, addressed by the same sub-region offsets.
type DeviceBuffer interface {
	CopyFromHost(src []byte) error
	Size() int64
}

// ReifyAndTransferToGPU builds the table on CPU (required whenever a
// per-column dictionary translation differs between inner and outer, since
// the translation logic only runs host-side), then copies the built buffer
// byte-for-byte to device memory of the exact same layout and size
// (spec.md §4.1 "CPU-to-GPU transfer").
func ReifyAndTransferToGPU(alloc DeviceAllocator, spec layout.Spec, rows RowSource, op layout.OpType) (DeviceBuffer, layout.Layout, error) {
	cpuBuf, chosen, err := Reify(CPU, spec, rows, op)
	if err != nil {
		return nil, chosen, err
	}
	devBuf, err := alloc.Alloc(int64(len(cpuBuf.Data)))
	if err != nil {
		return nil, chosen, err
	}
	if err := devBuf.CopyFromHost(cpuBuf.Data); err != nil {
		return nil, chosen, err
	}
	return devBuf, chosen, nil
}
