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

//go:build !gpu

package builder

// NewDeviceAllocator is unreachable on CPU-only builds; the orchestrator
// (C8) must never route a GPU memory-level build here without the `gpu`
// build tag (spec.md §9's "GPU/CPU duality": GPU-only branches must be
// unreachable via contract on CPU-only builds).
func NewDeviceAllocator(deviceID int) (DeviceAllocator, error) {
	panic("builder: GPU memory tier requested in a CPU-only build (missing `gpu` build tag)")
}
