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

package manager

import (
	"testing"
	"time"

	gomock "github.com/golang/mock/gomock"

	"github.com/ngocbd/omniscidb/config"
	"github.com/ngocbd/omniscidb/pkg/foreigncache/wrapper/mock"
)

func TestNewRefreshSchedulerDefaultsWaitDuration(t *testing.T) {
	s := NewRefreshScheduler(New(nil), 0)
	if s.waitDuration != 60*time.Second {
		t.Fatalf("expected a default 60s wait duration, got %v", s.waitDuration)
	}
}

func TestStartStopTogglesIsRunning(t *testing.T) {
	s := NewRefreshScheduler(New(nil), time.Hour)
	if s.IsRunning() {
		t.Fatal("expected a fresh scheduler to not be running")
	}
	s.Start()
	if !s.IsRunning() {
		t.Fatal("expected IsRunning to be true after Start")
	}
	s.Stop()
	if s.IsRunning() {
		t.Fatal("expected IsRunning to be false after Stop")
	}
}

func TestStopWithoutStartIsANoOp(t *testing.T) {
	s := NewRefreshScheduler(New(nil), time.Hour)
	s.Stop() // must not block or panic
	if s.IsRunning() {
		t.Fatal("expected IsRunning to remain false")
	}
}

func TestPollOnceRefreshesOnlyScheduledTables(t *testing.T) {
	ctrl := gomock.NewController(t)
	scheduled := mock.NewMockForeignDataWrapper(ctrl)
	scheduled.EXPECT().MaxFragmentID().Return(-1, nil)
	scheduled.EXPECT().SerializeState().Return([]byte("s"), nil)

	manualWrapper := mock.NewMockForeignDataWrapper(ctrl) // no calls expected

	m := New(nil)
	m.RegisterTable(1, 1, scheduled, config.RefreshOptions{UpdateType: config.UpdateTypeAppend, TimingType: config.TimingTypeScheduled})
	m.RegisterTable(1, 2, manualWrapper, config.RefreshOptions{UpdateType: config.UpdateTypeAppend, TimingType: config.TimingTypeManual})

	s := NewRefreshScheduler(m, time.Hour)
	s.pollOnce()

	if !s.HasRefreshedTable() {
		t.Fatal("expected pollOnce to mark a scheduled refresh as having run")
	}
}

func TestResetHasRefreshedTableClearsTheFlag(t *testing.T) {
	ctrl := gomock.NewController(t)
	w := mock.NewMockForeignDataWrapper(ctrl)
	w.EXPECT().MaxFragmentID().Return(-1, nil)
	w.EXPECT().SerializeState().Return([]byte("s"), nil)

	m := New(nil)
	m.RegisterTable(1, 1, w, config.RefreshOptions{UpdateType: config.UpdateTypeAppend, TimingType: config.TimingTypeScheduled})

	s := NewRefreshScheduler(m, time.Hour)
	s.pollOnce()
	if !s.HasRefreshedTable() {
		t.Fatal("expected the flag to be set after a successful scheduled refresh")
	}
	s.ResetHasRefreshedTable()
	if s.HasRefreshedTable() {
		t.Fatal("expected ResetHasRefreshedTable to clear the flag")
	}
}

func TestPollOnceLogsAndContinuesOnRefreshError(t *testing.T) {
	ctrl := gomock.NewController(t)
	failing := mock.NewMockForeignDataWrapper(ctrl)
	failing.EXPECT().MaxFragmentID().Return(0, assertErr)

	m := New(nil)
	m.RegisterTable(1, 1, failing, config.RefreshOptions{UpdateType: config.UpdateTypeAppend, TimingType: config.TimingTypeScheduled})

	s := NewRefreshScheduler(m, time.Hour)
	s.pollOnce()

	if s.HasRefreshedTable() {
		t.Fatal("expected a failed refresh to not set the has-refreshed flag")
	}
}

var assertErr = &refreshProbeError{}

type refreshProbeError struct{}

func (*refreshProbeError) Error() string { return "injected max-fragment-id failure" }
