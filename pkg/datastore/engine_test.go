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

package datastore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/mock/gomock"

	"github.com/sdcio/netconf-server/mocks/mockapplier"
	"github.com/sdcio/netconf-server/pkg/rpcerr"
	"github.com/sdcio/netconf-server/pkg/tree"
)

type lockTable map[Name]uint32

func (l lockTable) CheckLock(ds Name, id uint32) error {
	if holder, ok := l[ds]; ok && holder != id {
		return rpcerr.LockDenied(string(ds), holder)
	}
	return nil
}

type memStore struct {
	n *tree.Node
}

func (m *memStore) Load(context.Context) (*tree.Node, error) { return m.n, nil }

func (m *memStore) Save(_ context.Context, n *tree.Node) error {
	m.n = n.Clone()
	return nil
}

func mustJSON(t *testing.T, s string) *tree.Node {
	t.Helper()
	n, err := tree.ParseJSON([]byte(s))
	if err != nil {
		t.Fatalf("invalid json %s: %v", s, err)
	}
	return n
}

func mustPath(t *testing.T, s string) tree.Path {
	t.Helper()
	p, err := tree.ParsePath(s)
	if err != nil {
		t.Fatalf("invalid path %s: %v", s, err)
	}
	return p
}

func newEngine(t *testing.T, initial string, opts ...Option) *Engine {
	t.Helper()
	var n *tree.Node
	if initial != "" {
		n = mustJSON(t, initial)
	}
	e, err := New(context.Background(), n, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func assertTree(t *testing.T, e *Engine, ds Name, want string) {
	t.Helper()
	got, err := e.Get(ds, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff(mustJSON(t, want).ToValue(), got.ToValue()); d != "" {
		t.Errorf("%s mismatch (-want +got):\n%s", ds, d)
	}
}

func TestEngineEdit(t *testing.T) {
	tests := []struct {
		name    string
		initial string
		edits   func(t *testing.T) []Edit
		want    string
		wantTag rpcerr.Tag
	}{
		{
			name:    "merge keeps siblings",
			initial: `{"a":{"p":1,"q":2}}`,
			edits: func(t *testing.T) []Edit {
				return []Edit{{Operation: OperationMerge, Payload: mustJSON(t, `{"a":{"p":9}}`)}}
			},
			want: `{"a":{"p":9,"q":2}}`,
		},
		{
			name:    "replace at root drops siblings",
			initial: `{"a":{"p":1,"q":2}}`,
			edits: func(t *testing.T) []Edit {
				return []Edit{{Operation: OperationReplace, Payload: mustJSON(t, `{"a":{"p":9}}`)}}
			},
			want: `{"a":{"p":9}}`,
		},
		{
			name:    "replace at a path",
			initial: `{"a":{"p":1,"q":2},"b":1}`,
			edits: func(t *testing.T) []Edit {
				return []Edit{{Path: mustPath(t, "a"), Operation: OperationReplace, Payload: mustJSON(t, `{"z":3}`)}}
			},
			want: `{"a":{"z":3},"b":1}`,
		},
		{
			name:    "delete payload leaf",
			initial: `{"a":{"p":1,"q":2}}`,
			edits: func(t *testing.T) []Edit {
				return []Edit{{Operation: OperationDelete, Payload: mustJSON(t, `{"a":{"q":null}}`)}}
			},
			want: `{"a":{"p":1}}`,
		},
		{
			name:    "delete missing path is data-missing",
			initial: `{"a":1}`,
			edits: func(t *testing.T) []Edit {
				return []Edit{{Path: mustPath(t, "b"), Operation: OperationDelete}}
			},
			wantTag: rpcerr.TagDataMissing,
		},
		{
			name:    "remove missing path is silent",
			initial: `{"a":1}`,
			edits: func(t *testing.T) []Edit {
				return []Edit{{Path: mustPath(t, "b"), Operation: OperationRemove}}
			},
			want: `{"a":1}`,
		},
		{
			name:    "create on existing data fails",
			initial: `{"a":{"p":1}}`,
			edits: func(t *testing.T) []Edit {
				return []Edit{{Operation: OperationCreate, Payload: mustJSON(t, `{"a":{"q":2}}`)}}
			},
			wantTag: rpcerr.TagDataExists,
		},
		{
			name:    "create new data",
			initial: `{"a":{"p":1}}`,
			edits: func(t *testing.T) []Edit {
				return []Edit{{Path: mustPath(t, "b"), Operation: OperationCreate, Payload: mustJSON(t, `{"q":2}`)}}
			},
			want: `{"a":{"p":1},"b":{"q":2}}`,
		},
		{
			name:    "put list entry by key",
			initial: `{"interfaces":{"interface":[{"name":"eth0","mtu":1500},{"name":"eth1","mtu":1500}]}}`,
			edits: func(t *testing.T) []Edit {
				return []Edit{{
					Path:      mustPath(t, "interfaces/interface[name='eth0']"),
					Operation: OperationReplace,
					Payload:   mustJSON(t, `{"mtu":9000}`),
				}}
			},
			want: `{"interfaces":{"interface":[{"name":"eth0","mtu":9000},{"name":"eth1","mtu":1500}]}}`,
		},
		{
			name:    "merge creates keyed entry",
			initial: `{}`,
			edits: func(t *testing.T) []Edit {
				return []Edit{{
					Path:      mustPath(t, "interfaces/interface[name='eth0']"),
					Operation: OperationMerge,
					Payload:   mustJSON(t, `{"mtu":1500}`),
				}}
			},
			want: `{"interfaces":{"interface":[{"name":"eth0","mtu":1500}]}}`,
		},
		{
			name:    "merge adds entry next to single entry",
			initial: `{"interfaces":{"interface":{"name":"eth0","mtu":"1500"}}}`,
			edits: func(t *testing.T) []Edit {
				return []Edit{{Operation: OperationMerge, Payload: mustJSON(t, `{"interfaces":{"interface":{"name":"eth1"}}}`)}}
			},
			want: `{"interfaces":{"interface":[{"name":"eth0","mtu":"1500"},{"name":"eth1"}]}}`,
		},
		{
			name:    "merge appends entry to list",
			initial: `{"interfaces":{"interface":[{"name":"eth0"},{"name":"eth1"}]}}`,
			edits: func(t *testing.T) []Edit {
				return []Edit{{Operation: OperationMerge, Payload: mustJSON(t, `{"interfaces":{"interface":{"name":"eth2"}}}`)}}
			},
			want: `{"interfaces":{"interface":[{"name":"eth0"},{"name":"eth1"},{"name":"eth2"}]}}`,
		},
		{
			name:    "merge updates matching entry",
			initial: `{"interfaces":{"interface":[{"name":"eth0","mtu":1500},{"name":"eth1","mtu":1500}]}}`,
			edits: func(t *testing.T) []Edit {
				return []Edit{{Operation: OperationMerge, Payload: mustJSON(t, `{"interfaces":{"interface":{"name":"eth1","mtu":9000}}}`)}}
			},
			want: `{"interfaces":{"interface":[{"name":"eth0","mtu":1500},{"name":"eth1","mtu":9000}]}}`,
		},
		{
			name:    "failing edit publishes nothing",
			initial: `{"a":1}`,
			edits: func(t *testing.T) []Edit {
				return []Edit{
					{Operation: OperationMerge, Payload: mustJSON(t, `{"b":2}`)},
					{Operation: OperationCreate, Payload: mustJSON(t, `{"a":3}`)},
				}
			},
			wantTag: rpcerr.TagDataExists,
		},
		{
			name:    "none changes nothing",
			initial: `{"a":1}`,
			edits: func(t *testing.T) []Edit {
				return []Edit{{Operation: OperationNone, Payload: mustJSON(t, `{"b":2}`)}}
			},
			want: `{"a":1}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, tt.initial)
			err := e.Edit(context.Background(), Candidate, 1, tt.edits(t)...)
			if tt.wantTag != "" {
				if !rpcerr.Is(err, tt.wantTag) {
					t.Fatalf("Edit() error = %v, want %s", err, tt.wantTag)
				}
				assertTree(t, e, Candidate, tt.initial)
				return
			}
			if err != nil {
				t.Fatalf("Edit() error = %v", err)
			}
			assertTree(t, e, Candidate, tt.want)
		})
	}
}

func TestEngineWithoutApplier(t *testing.T) {
	e := newEngine(t, `{"a":1}`)
	ctx := context.Background()
	if err := e.Edit(ctx, Candidate, 1, Edit{Operation: OperationMerge, Payload: mustJSON(t, `{"b":2}`)}); err != nil {
		t.Fatal(err)
	}
	if err := e.Commit(ctx, 1, CommitOptions{}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	assertTree(t, e, Running, `{"a":1,"b":2}`)
}

func TestEngineExclusiveWaitsForWrite(t *testing.T) {
	applying := make(chan struct{})
	release := make(chan struct{})
	e := newEngine(t, `{}`, WithApplier(ApplierFunc(func(context.Context, *tree.Node) error {
		close(applying)
		<-release
		return nil
	})))

	edit := Edit{Operation: OperationMerge, Payload: mustJSON(t, `{"x":1}`)}
	editErr := make(chan error, 1)
	go func() {
		editErr <- e.Edit(context.Background(), Running, 1, edit)
	}()
	<-applying

	granted := make(chan *tree.Node, 1)
	go func() {
		_ = e.Exclusive(Running, func() error {
			n, _ := e.Get(Running, nil)
			granted <- n
			return nil
		})
	}()
	select {
	case <-granted:
		t.Fatal("Exclusive ran while a write was being applied")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-editErr; err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	select {
	case n := <-granted:
		if d := cmp.Diff(mustJSON(t, `{"x":1}`).ToValue(), n.ToValue()); d != "" {
			t.Errorf("running seen under Exclusive (-want +got):\n%s", d)
		}
	case <-time.After(time.Second):
		t.Fatal("Exclusive did not run after the write finished")
	}
}

func TestEngineExclusiveUnknownDatastore(t *testing.T) {
	e := newEngine(t, `{}`)
	called := false
	err := e.Exclusive(Name("operational"), func() error {
		called = true
		return nil
	})
	if err == nil || called {
		t.Errorf("Exclusive(operational) error = %v, called = %v", err, called)
	}
}

func TestEngineLockDenied(t *testing.T) {
	locks := lockTable{Candidate: 1}
	e := newEngine(t, `{}`, WithLockChecker(locks))
	edit := Edit{Operation: OperationMerge, Payload: mustJSON(t, `{"x":1}`)}

	err := e.Edit(context.Background(), Candidate, 2, edit)
	if !rpcerr.Is(err, rpcerr.TagLockDenied) {
		t.Fatalf("Edit() error = %v, want lock-denied", err)
	}
	if rpcerr.From(err).SessionID != 1 {
		t.Errorf("lock-denied session id = %d, want 1", rpcerr.From(err).SessionID)
	}
	if err := e.Edit(context.Background(), Candidate, 1, edit); err != nil {
		t.Fatalf("holder Edit() error = %v", err)
	}
	delete(locks, Candidate)
	if err := e.Edit(context.Background(), Candidate, 2, edit); err != nil {
		t.Fatalf("Edit() after unlock error = %v", err)
	}
}

func TestEngineCommit(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	applier := mockapplier.NewMockApplier(mockCtrl)
	applier.EXPECT().Apply(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, n *tree.Node) error {
			if !n.Equal(mustJSON(t, `{"x":1}`)) {
				t.Errorf("Apply() got %s", n)
			}
			return nil
		},
	)

	e := newEngine(t, `{}`, WithApplier(applier))
	ctx := context.Background()
	if err := e.Edit(ctx, Candidate, 1, Edit{Operation: OperationMerge, Payload: mustJSON(t, `{"x":1}`)}); err != nil {
		t.Fatal(err)
	}
	assertTree(t, e, Running, `{}`)
	if err := e.Commit(ctx, 1, CommitOptions{}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	assertTree(t, e, Running, `{"x":1}`)
}

func TestEngineCommitApplyFailure(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	applier := mockapplier.NewMockApplier(mockCtrl)
	applier.EXPECT().Apply(gomock.Any(), gomock.Any()).Return(errors.New("device unreachable"))

	e := newEngine(t, `{"x":0}`, WithApplier(applier))
	ctx := context.Background()
	if err := e.Edit(ctx, Candidate, 1, Edit{Operation: OperationMerge, Payload: mustJSON(t, `{"x":1}`)}); err != nil {
		t.Fatal(err)
	}
	err := e.Commit(ctx, 1, CommitOptions{})
	if !rpcerr.Is(err, rpcerr.TagOperationFailed) {
		t.Fatalf("Commit() error = %v, want operation-failed", err)
	}
	assertTree(t, e, Running, `{"x":0}`)
}

func TestEngineCommitLockedRunning(t *testing.T) {
	e := newEngine(t, `{}`, WithLockChecker(lockTable{Running: 7}))
	if err := e.Commit(context.Background(), 1, CommitOptions{}); !rpcerr.Is(err, rpcerr.TagLockDenied) {
		t.Fatalf("Commit() error = %v, want lock-denied", err)
	}
}

func TestEngineCommitAtomic(t *testing.T) {
	e := newEngine(t, `{}`)
	ctx := context.Background()
	big := tree.NewMap()
	for _, k := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		big.Set(k, tree.NewScalar(1))
	}
	if err := e.Edit(ctx, Candidate, 1, Edit{Operation: OperationReplace, Payload: big}); err != nil {
		t.Fatal(err)
	}

	stop := make(chan struct{})
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			n, _ := e.Get(Running, nil)
			if n.Len() != 0 && n.Len() != big.Len() {
				t.Errorf("observed partial running with %d keys", n.Len())
				return
			}
		}
	}()
	if err := e.Commit(ctx, 1, CommitOptions{}); err != nil {
		t.Fatal(err)
	}
	close(stop)
	wg.Wait()
}

func TestEngineDiscard(t *testing.T) {
	e := newEngine(t, `{"a":1}`)
	ctx := context.Background()
	if err := e.Edit(ctx, Candidate, 1, Edit{Operation: OperationMerge, Payload: mustJSON(t, `{"b":2}`)}); err != nil {
		t.Fatal(err)
	}
	if err := e.Discard(ctx, 1); err != nil {
		t.Fatal(err)
	}
	assertTree(t, e, Candidate, `{"a":1}`)
}

func TestEngineCopyAndDelete(t *testing.T) {
	store := &memStore{}
	e := newEngine(t, `{"a":1}`, WithStartupStore(store))
	ctx := context.Background()

	if err := e.Copy(ctx, Startup, Startup, 1); !rpcerr.Is(err, rpcerr.TagInvalidValue) {
		t.Errorf("Copy() to itself error = %v", err)
	}
	if err := e.CopyTree(ctx, mustJSON(t, `{"z":1}`), Running, 1); err != nil {
		t.Fatal(err)
	}
	if err := e.Copy(ctx, Running, Startup, 1); err != nil {
		t.Fatal(err)
	}
	assertTree(t, e, Startup, `{"z":1}`)
	if !store.n.Equal(mustJSON(t, `{"z":1}`)) {
		t.Errorf("startup store holds %s", store.n)
	}

	if err := e.Delete(ctx, Running, 1); !rpcerr.Is(err, rpcerr.TagOperationFailed) {
		t.Errorf("Delete(running) error = %v", err)
	}
	if err := e.Delete(ctx, Startup, 1); err != nil {
		t.Fatal(err)
	}
	assertTree(t, e, Startup, `{}`)
}

func TestEngineLoadsStartup(t *testing.T) {
	store := &memStore{n: mustJSON(t, `{"persisted":true}`)}
	e := newEngine(t, `{"initial":true}`, WithStartupStore(store))
	for _, ds := range Names {
		assertTree(t, e, ds, `{"persisted":true}`)
	}
}

func TestEngineGetIsCopy(t *testing.T) {
	e := newEngine(t, `{"a":{"b":1}}`)
	n, err := e.Get(Running, mustPath(t, "a"))
	if err != nil {
		t.Fatal(err)
	}
	n.Set("b", tree.NewScalar(2))
	assertTree(t, e, Running, `{"a":{"b":1}}`)

	n, err = e.Get(Running, mustPath(t, "missing"))
	if err != nil || n != nil {
		t.Errorf("Get(missing) = %v, %v", n, err)
	}
	if _, err := e.Get(Name("bogus"), nil); err == nil {
		t.Error("Get() on an unknown datastore must fail")
	}
}

func TestConfirmedCommitTimeout(t *testing.T) {
	mu := &sync.Mutex{}
	var applied []string
	record := ApplierFunc(func(_ context.Context, config *tree.Node) error {
		b, err := config.MarshalJSON()
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		applied = append(applied, string(b))
		return nil
	})
	e := newEngine(t, `{"v":0}`, WithConfirmTimeout(20*time.Millisecond), WithApplier(record))
	ctx := context.Background()
	if err := e.Edit(ctx, Candidate, 1, Edit{Operation: OperationMerge, Payload: mustJSON(t, `{"v":1}`)}); err != nil {
		t.Fatal(err)
	}
	if err := e.Commit(ctx, 1, CommitOptions{Confirmed: true}); err != nil {
		t.Fatal(err)
	}
	assertTree(t, e, Running, `{"v":1}`)

	deadline := time.Now().Add(2 * time.Second)
	for e.PendingConfirmed() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assertTree(t, e, Running, `{"v":0}`)

	mu.Lock()
	defer mu.Unlock()
	if d := cmp.Diff([]string{`{"v":1}`, `{"v":0}`}, applied); d != "" {
		t.Errorf("applied configurations mismatch (-want +got):\n%s", d)
	}
}

func TestConfirmedCommitConfirm(t *testing.T) {
	e := newEngine(t, `{"v":0}`)
	ctx := context.Background()
	if err := e.Edit(ctx, Candidate, 1, Edit{Operation: OperationMerge, Payload: mustJSON(t, `{"v":1}`)}); err != nil {
		t.Fatal(err)
	}
	if err := e.Commit(ctx, 1, CommitOptions{Confirmed: true, Timeout: time.Minute}); err != nil {
		t.Fatal(err)
	}
	if err := e.Commit(ctx, 2, CommitOptions{}); !rpcerr.Is(err, rpcerr.TagInUse) {
		t.Errorf("Commit() from another session error = %v, want in-use", err)
	}
	if err := e.Commit(ctx, 1, CommitOptions{}); err != nil {
		t.Fatal(err)
	}
	if e.PendingConfirmed() {
		t.Error("confirmed commit still pending after confirmation")
	}
	e.SessionClosed(1)
	assertTree(t, e, Running, `{"v":1}`)
}

func TestConfirmedCommitCancelAndSessionClose(t *testing.T) {
	tests := []struct {
		name   string
		opts   CommitOptions
		finish func(e *Engine) error
		want   string
	}{
		{
			name: "cancel-commit reverts",
			opts: CommitOptions{Confirmed: true, Timeout: time.Minute},
			finish: func(e *Engine) error {
				return e.CancelCommit(context.Background(), 1, "")
			},
			want: `{"v":0}`,
		},
		{
			name: "session close reverts",
			opts: CommitOptions{Confirmed: true, Timeout: time.Minute},
			finish: func(e *Engine) error {
				e.SessionClosed(1)
				return nil
			},
			want: `{"v":0}`,
		},
		{
			name: "persistent commit survives session close",
			opts: CommitOptions{Confirmed: true, Timeout: time.Minute, Persist: "abc"},
			finish: func(e *Engine) error {
				e.SessionClosed(1)
				return e.Commit(context.Background(), 2, CommitOptions{PersistID: "abc"})
			},
			want: `{"v":1}`,
		},
		{
			name: "persist-id mismatch",
			opts: CommitOptions{Confirmed: true, Timeout: time.Minute, Persist: "abc"},
			finish: func(e *Engine) error {
				err := e.CancelCommit(context.Background(), 2, "xyz")
				if !rpcerr.Is(err, rpcerr.TagInvalidValue) {
					return err
				}
				return e.CancelCommit(context.Background(), 2, "abc")
			},
			want: `{"v":0}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, `{"v":0}`)
			ctx := context.Background()
			if err := e.Edit(ctx, Candidate, 1, Edit{Operation: OperationMerge, Payload: mustJSON(t, `{"v":1}`)}); err != nil {
				t.Fatal(err)
			}
			if err := e.Commit(ctx, 1, tt.opts); err != nil {
				t.Fatal(err)
			}
			if err := tt.finish(e); err != nil {
				t.Fatal(err)
			}
			assertTree(t, e, Running, tt.want)
			if e.PendingConfirmed() {
				t.Error("confirmed commit still pending")
			}
		})
	}
	e := newEngine(t, `{}`)
	if err := e.CancelCommit(context.Background(), 1, ""); !rpcerr.Is(err, rpcerr.TagOperationFailed) {
		t.Errorf("CancelCommit() without pending commit error = %v", err)
	}
}
