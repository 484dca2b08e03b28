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
	"sort"
	"sync"
	"time"

	"github.com/sdcio/netconf-server/pkg/datastore"
)

type Protocol string

const (
	ProtocolNETCONF  Protocol = "netconf"
	ProtocolRESTCONF Protocol = "restconf"
)

// Session is one client connection, or one RESTCONF request.
type Session struct {
	ID          uint32
	User        string
	RemoteAddr  string
	RemotePort  int
	Protocol    Protocol
	ConnectedAt time.Time

	mu           *sync.Mutex
	lastActivity time.Time
	ops          uint64
	// datastores locked by this session, owned by the Manager
	locks map[datastore.Name]struct{}
	// closes the underlying transport on kill-session or idle reap
	closer func()
}

func newSession(id uint32, user, addr string, port int, proto Protocol) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		User:         user,
		RemoteAddr:   addr,
		RemotePort:   port,
		Protocol:     proto,
		ConnectedAt:  now,
		mu:           &sync.Mutex{},
		lastActivity: now,
		locks:        map[datastore.Name]struct{}{},
	}
}

// Touch records activity and counts one operation.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
	s.ops++
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) Operations() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops
}

// SetCloser registers the function tearing down the session's transport.
func (s *Session) SetCloser(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closer = f
}

func (s *Session) closeTransport() {
	s.mu.Lock()
	f := s.closer
	s.closer = nil
	s.mu.Unlock()
	if f != nil {
		f()
	}
}

// Locks returns the datastores held by the session.
func (s *Session) Locks() []datastore.Name {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := make([]datastore.Name, 0, len(s.locks))
	for n := range s.locks {
		r = append(r, n)
	}
	sort.Slice(r, func(i, j int) bool { return r[i] < r[j] })
	return r
}
