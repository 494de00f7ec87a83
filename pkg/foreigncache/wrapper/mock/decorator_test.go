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

package mock

import (
	"errors"
	"testing"

	gomock "github.com/golang/mock/gomock"

	"github.com/ngocbd/omniscidb/pkg/foreigncache/wrapper"
	"github.com/ngocbd/omniscidb/pkg/joincore/layout"
)

func TestDecoratorDelegatesToRealWrapperByDefault(t *testing.T) {
	ctrl := gomock.NewController(t)
	real := NewMockForeignDataWrapper(ctrl)
	real.EXPECT().Kind().Return(wrapper.Csv)
	real.EXPECT().PopulateChunkBuffers(gomock.Any()).Return(nil)

	d := NewDecorator(real)
	if d.Kind() != wrapper.Csv {
		t.Fatal("expected Kind() to delegate to the real wrapper")
	}
	dst := map[layout.Key][]byte{}
	if err := d.PopulateChunkBuffers(dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.PopulateChunkBuffersCallCount != 1 {
		t.Fatalf("expected call count 1, got %d", d.PopulateChunkBuffersCallCount)
	}
}

func TestDecoratorOverrideBypassesRealWrapper(t *testing.T) {
	ctrl := gomock.NewController(t)
	real := NewMockForeignDataWrapper(ctrl) // no calls expected

	d := NewDecorator(real)
	wantErr := errors.New("injected failure")
	d.OnPopulateChunkMetadata = func(out *[]wrapper.MetadataEntry) error {
		return wantErr
	}

	var entries []wrapper.MetadataEntry
	if err := d.PopulateChunkMetadata(&entries); !errors.Is(err, wantErr) {
		t.Fatalf("expected the override's error to be returned, got %v", err)
	}
	if d.PopulateChunkMetadataCallCount != 1 {
		t.Fatalf("expected call count 1, got %d", d.PopulateChunkMetadataCallCount)
	}
}

func TestDecoratorUnwrapReturnsTheRealWrapper(t *testing.T) {
	ctrl := gomock.NewController(t)
	real := NewMockForeignDataWrapper(ctrl)
	d := NewDecorator(real)
	if d.Unwrap() != real {
		t.Fatal("expected Unwrap to return the original real wrapper")
	}
}

func TestDecoratorPassesThroughSerializeAndRestoreState(t *testing.T) {
	ctrl := gomock.NewController(t)
	real := NewMockForeignDataWrapper(ctrl)
	real.EXPECT().SerializeState().Return([]byte("state"), nil)
	real.EXPECT().RestoreState([]byte("state")).Return(nil)

	d := NewDecorator(real)
	data, err := d.SerializeState()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.RestoreState(data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
