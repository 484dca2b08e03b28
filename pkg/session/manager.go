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
	"context"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/sdcio/netconf-server/pkg/datastore"
	"github.com/sdcio/netconf-server/pkg/metrics"
	"github.com/sdcio/netconf-server/pkg/rpcerr"
)

const DefaultMaxSessions = 16

// Manager tracks sessions and the per datastore advisory locks. The lock
// table and the session records are guarded by one mutex so that closing a
// session releases its locks and removes it in a single step.
type Manager struct {
	mu       *sync.Mutex
	sessions map[uint32]*Session
	// datastore -> holding session
	locks  map[datastore.Name]uint32
	nextID uint32

	sem         *semaphore.Weighted
	idleTimeout time.Duration
	onClose     []func(id uint32)
	metrics     *metrics.Metrics
}

type Option func(*Manager)

func WithMaxSessions(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithIdleTimeout enables reaping of idle sessions.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.idleTimeout = d
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		mu:       &sync.Mutex{},
		sessions: map[uint32]*Session{},
		locks:    map[datastore.Name]uint32{},
		sem:      semaphore.NewWeighted(DefaultMaxSessions),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// OnClose registers f to run after a session was closed and its locks
// released.
func (m *Manager) OnClose(f func(id uint32)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClose = append(m.onClose, f)
}

// Create opens a session. It fails with resource-denied once the session
// cap is reached.
func (m *Manager) Create(user, remoteAddr string, remotePort int, proto Protocol) (*Session, error) {
	if !m.sem.TryAcquire(1) {
		return nil, rpcerr.New(rpcerr.TypeProtocol, rpcerr.TagResourceDenied, "too many sessions")
	}
	m.mu.Lock()
	m.nextID++
	// ids are never 0, that one belongs to the server itself
	if m.nextID == datastore.SystemSession {
		m.nextID++
	}
	s := newSession(m.nextID, user, remoteAddr, remotePort, proto)
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.metrics.SessionOpened()
	log.WithFields(log.Fields{
		"session-id": s.ID,
		"user":       user,
		"remote":     remoteAddr,
		"protocol":   proto,
	}).Debugf("session opened")
	return s, nil
}

func (m *Manager) Get(id uint32) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Sessions returns the open sessions ordered by id.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		r = append(r, s)
	}
	sort.Slice(r, func(i, j int) bool { return r[i].ID < r[j].ID })
	return r
}

func (m *Manager) Lock(ds datastore.Name, id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return rpcerr.InvalidValue("unknown session %d", id)
	}
	if holder, ok := m.locks[ds]; ok {
		return rpcerr.LockDenied(string(ds), holder)
	}
	m.locks[ds] = id
	s.mu.Lock()
	s.locks[ds] = struct{}{}
	s.mu.Unlock()
	m.metrics.LocksHeld(len(m.locks))
	log.Infof("session %d locked %s", id, ds)
	return nil
}

func (m *Manager) Unlock(ds datastore.Name, id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	holder, ok := m.locks[ds]
	if !ok {
		return rpcerr.New(rpcerr.TypeProtocol, rpcerr.TagOperationFailed, "datastore %s is not locked", ds)
	}
	if holder != id {
		return rpcerr.New(rpcerr.TypeProtocol, rpcerr.TagOperationFailed, "datastore %s is locked by session %d", ds, holder)
	}
	m.release(ds)
	log.Infof("session %d unlocked %s", id, ds)
	return nil
}

// release drops the lock on ds. mu must be held.
func (m *Manager) release(ds datastore.Name) {
	holder, ok := m.locks[ds]
	if !ok {
		return
	}
	delete(m.locks, ds)
	if s, ok := m.sessions[holder]; ok {
		s.mu.Lock()
		delete(s.locks, ds)
		s.mu.Unlock()
	}
	m.metrics.LocksHeld(len(m.locks))
}

// Holder returns the session holding the lock on ds.
func (m *Manager) Holder(ds datastore.Name) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.locks[ds]
	return id, ok
}

// CheckLock implements datastore.LockChecker.
func (m *Manager) CheckLock(ds datastore.Name, id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if holder, ok := m.locks[ds]; ok && holder != id {
		return rpcerr.LockDenied(string(ds), holder)
	}
	return nil
}

// Close releases every lock held by the session and removes it. Closing an
// unknown session is a no-op.
func (m *Manager) Close(id uint32) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	for _, ds := range s.Locks() {
		m.release(ds)
		log.Infof("released lock on %s held by closing session %d", ds, id)
	}
	delete(m.sessions, id)
	hooks := append([]func(uint32){}, m.onClose...)
	m.mu.Unlock()

	m.sem.Release(1)
	m.metrics.SessionClosed()
	log.WithFields(log.Fields{
		"session-id": id,
		"operations": s.Operations(),
	}).Debugf("session closed")
	for _, f := range hooks {
		f(id)
	}
}

// Kill force-closes target on behalf of requester.
func (m *Manager) Kill(requester, target uint32) error {
	if requester == target {
		return rpcerr.InvalidValue("a session cannot kill itself")
	}
	s, ok := m.Get(target)
	if !ok {
		return rpcerr.InvalidValue("unknown session %d", target)
	}
	log.Infof("session %d killed session %d", requester, target)
	s.closeTransport()
	m.Close(target)
	return nil
}

// Reap closes the sessions idle for longer than the idle timeout and returns
// their ids.
func (m *Manager) Reap(now time.Time) []uint32 {
	if m.idleTimeout <= 0 {
		return nil
	}
	var idle []*Session
	for _, s := range m.Sessions() {
		if now.Sub(s.LastActivity()) > m.idleTimeout {
			idle = append(idle, s)
		}
	}
	ids := make([]uint32, 0, len(idle))
	for _, s := range idle {
		log.Infof("closing session %d, idle since %s", s.ID, s.LastActivity().Format(time.RFC3339))
		s.closeTransport()
		m.Close(s.ID)
		ids = append(ids, s.ID)
	}
	return ids
}

// RunReaper reaps idle sessions until ctx is done.
func (m *Manager) RunReaper(ctx context.Context) error {
	if m.idleTimeout <= 0 {
		<-ctx.Done()
		return nil
	}
	interval := m.idleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			m.Reap(now)
		}
	}
}
