// Copyright 2024 Nokia
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

package session

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sdcio/netconf-server/pkg/datastore"
	"github.com/sdcio/netconf-server/pkg/metrics"
	"github.com/sdcio/netconf-server/pkg/rpcerr"
)

func mustCreate(t *testing.T, m *Manager, user string) *Session {
	t.Helper()
	s, err := m.Create(user, "192.0.2.1", 4000, ProtocolNETCONF)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return s
}

func TestLockMutualExclusion(t *testing.T) {
	m := NewManager()
	a := mustCreate(t, m, "a")
	b := mustCreate(t, m, "b")

	if err := m.Lock(datastore.Candidate, a.ID); err != nil {
		t.Fatal(err)
	}
	err := m.Lock(datastore.Candidate, b.ID)
	if !rpcerr.Is(err, rpcerr.TagLockDenied) {
		t.Fatalf("Lock() error = %v, want lock-denied", err)
	}
	if got := rpcerr.From(err).SessionID; got != a.ID {
		t.Errorf("lock-denied holder = %d, want %d", got, a.ID)
	}
	if err := m.CheckLock(datastore.Candidate, b.ID); !rpcerr.Is(err, rpcerr.TagLockDenied) {
		t.Errorf("CheckLock() error = %v", err)
	}
	if err := m.CheckLock(datastore.Running, b.ID); err != nil {
		t.Errorf("CheckLock() on unlocked datastore error = %v", err)
	}
	if err := m.Unlock(datastore.Candidate, b.ID); !rpcerr.Is(err, rpcerr.TagOperationFailed) {
		t.Errorf("Unlock() by non holder error = %v", err)
	}
	if err := m.Unlock(datastore.Candidate, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.Lock(datastore.Candidate, b.ID); err != nil {
		t.Fatalf("Lock() after unlock error = %v", err)
	}
}

func TestCloseReleasesLocks(t *testing.T) {
	m := NewManager()
	a := mustCreate(t, m, "a")
	closed := []uint32{}
	m.OnClose(func(id uint32) { closed = append(closed, id) })

	for _, ds := range []datastore.Name{datastore.Running, datastore.Startup} {
		if err := m.Lock(ds, a.ID); err != nil {
			t.Fatal(err)
		}
	}
	if d := cmp.Diff([]datastore.Name{datastore.Running, datastore.Startup}, a.Locks()); d != "" {
		t.Errorf("Locks() mismatch (-want +got):\n%s", d)
	}
	m.Close(a.ID)

	if _, ok := m.Holder(datastore.Running); ok {
		t.Error("running still locked after close")
	}
	if _, ok := m.Get(a.ID); ok {
		t.Error("session still present after close")
	}
	if d := cmp.Diff([]uint32{a.ID}, closed); d != "" {
		t.Errorf("close hooks mismatch (-want +got):\n%s", d)
	}
	b := mustCreate(t, m, "b")
	if err := m.Lock(datastore.Running, b.ID); err != nil {
		t.Fatalf("Lock() after close error = %v", err)
	}
}

func TestKill(t *testing.T) {
	m := NewManager()
	a := mustCreate(t, m, "a")
	b := mustCreate(t, m, "b")
	transportClosed := false
	a.SetCloser(func() { transportClosed = true })
	if err := m.Lock(datastore.Running, a.ID); err != nil {
		t.Fatal(err)
	}

	if err := m.Kill(b.ID, b.ID); !rpcerr.Is(err, rpcerr.TagInvalidValue) {
		t.Errorf("Kill() self error = %v", err)
	}
	if err := m.Kill(b.ID, 999); !rpcerr.Is(err, rpcerr.TagInvalidValue) {
		t.Errorf("Kill() unknown error = %v", err)
	}
	if err := m.Kill(b.ID, a.ID); err != nil {
		t.Fatal(err)
	}
	if !transportClosed {
		t.Error("transport of killed session not closed")
	}
	if err := m.Lock(datastore.Running, b.ID); err != nil {
		t.Fatalf("Lock() after kill error = %v", err)
	}
}

func TestSessionCap(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewManager(WithMaxSessions(2), WithMetrics(metrics.New(reg)))
	a := mustCreate(t, m, "a")
	mustCreate(t, m, "b")
	if _, err := m.Create("c", "", 0, ProtocolRESTCONF); !rpcerr.Is(err, rpcerr.TagResourceDenied) {
		t.Fatalf("Create() over the cap error = %v", err)
	}
	m.Close(a.ID)
	c := mustCreate(t, m, "c")
	if c.ID != 3 {
		t.Errorf("session id = %d, want 3", c.ID)
	}
	gathered, err := testutil.GatherAndCount(reg, "netconf_server_sessions")
	if err != nil || gathered != 1 {
		t.Errorf("sessions gauge count = %d, %v", gathered, err)
	}
}

func TestReap(t *testing.T) {
	m := NewManager(WithIdleTimeout(time.Minute))
	a := mustCreate(t, m, "a")
	b := mustCreate(t, m, "b")
	if err := m.Lock(datastore.Candidate, a.ID); err != nil {
		t.Fatal(err)
	}
	b.Touch()

	got := m.Reap(a.LastActivity().Add(2 * time.Minute))
	if d := cmp.Diff([]uint32{a.ID, b.ID}, got); d != "" {
		t.Errorf("Reap() mismatch (-want +got):\n%s", d)
	}
	if _, ok := m.Holder(datastore.Candidate); ok {
		t.Error("reaped session still holds its lock")
	}

	c := mustCreate(t, m, "c")
	if got := m.Reap(c.LastActivity().Add(30 * time.Second)); len(got) != 0 {
		t.Errorf("Reap() closed active sessions %v", got)
	}
}

func TestConcurrentLock(t *testing.T) {
	m := NewManager(WithMaxSessions(32))
	wg := &sync.WaitGroup{}
	mu := &sync.Mutex{}
	winners := 0
	for i := 0; i < 20; i++ {
		s := mustCreate(t, m, "u")
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			if m.Lock(datastore.Running, id) == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(s.ID)
	}
	wg.Wait()
	if winners != 1 {
		t.Errorf("%d sessions acquired the lock, want 1", winners)
	}
}
