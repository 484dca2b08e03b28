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

package netconf

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/sdcio/netconf-server/pkg/rpcerr"
	"github.com/sdcio/netconf-server/pkg/session"
)

const defaultHelloTimeout = 30 * time.Second

// Server runs NETCONF sessions over TCP and websocket transports.
type Server struct {
	d            *Dispatcher
	sessions     *session.Manager
	helloTimeout time.Duration
	maxSize      int
	defaultUser  string

	upgrader *websocket.Upgrader
	wg       *sync.WaitGroup
}

type ServerOption func(*Server)

func WithHelloTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.helloTimeout = d
		}
	}
}

func WithMaxMessageSize(n int) ServerOption {
	return func(s *Server) {
		s.maxSize = n
	}
}

// WithDefaultUser names the user of sessions carrying no credentials.
func WithDefaultUser(u string) ServerOption {
	return func(s *Server) {
		s.defaultUser = u
	}
}

func NewServer(d *Dispatcher, sessions *session.Manager, opts ...ServerOption) *Server {
	s := &Server{
		d:            d,
		sessions:     sessions,
		helloTimeout: defaultHelloTimeout,
		defaultUser:  "netconf",
		upgrader: &websocket.Upgrader{
			Subprotocols: []string{"netconf"},
			CheckOrigin:  func(*http.Request) bool { return true },
		},
		wg: &sync.WaitGroup{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ListenAndServe accepts TCP connections on address until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	log.Infof("netconf listening on %s", l.Addr())
	return s.Serve(ctx, l)
}

func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			t := newTCPTransport(conn, s.maxSize)
			if err := s.ServeTransport(ctx, t, s.defaultUser); err != nil {
				log.Infof("netconf session from %s ended: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}

// ServeHTTP upgrades the request to a websocket carrying one NETCONF session.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := s.defaultUser
	if u, _, ok := r.BasicAuth(); ok && u != "" {
		user = u
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("websocket upgrade failed: %v", err)
		return
	}
	t := newWSTransport(conn, s.maxSize)
	if err := s.ServeTransport(r.Context(), t, user); err != nil {
		log.Infof("netconf websocket session from %s ended: %v", r.RemoteAddr, err)
	}
}

// ServeTransport runs one session: hello exchange, then request/reply until
// close-session, kill-session, disconnect or ctx end. The session and its
// locks are always released on return.
func (s *Server) ServeTransport(ctx context.Context, t Transport, user string) error {
	defer t.Close()
	addr, port := t.RemoteAddr()
	sess, err := s.sessions.Create(user, addr, port, session.ProtocolNETCONF)
	if err != nil {
		// RFC 6241 offers no way to report this before the hello
		return err
	}
	defer s.sessions.Close(sess.ID)
	sess.SetCloser(func() { t.Close() })

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		t.Close()
	}()

	if err := s.hello(t, sess.ID); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"session-id": sess.ID,
		"user":       user,
		"remote":     addr,
	}).Infof("netconf session established")

	for {
		msg, err := t.ReadMessage()
		if err != nil {
			if errors.Is(err, ErrMessageTooLarge) {
				_ = t.WriteMessage(s.d.errorReply(nil, "", rpcerr.Malformed(err)))
				return err
			}
			if isClosed(err) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		reply, closeSession := s.d.Handle(ctx, sess, msg)
		log.Tracef("session %d reply: %s", sess.ID, reply)
		if err := t.WriteMessage(reply); err != nil {
			return err
		}
		if closeSession {
			log.Infof("netconf session %d closed by client", sess.ID)
			return nil
		}
	}
}

// hello sends the server hello and waits for the client hello.
func (s *Server) hello(t Transport, sessionID uint32) error {
	b, err := s.d.caps.Hello(sessionID)
	if err != nil {
		return err
	}
	if err := t.WriteMessage(b); err != nil {
		return err
	}

	timer := time.AfterFunc(s.helloTimeout, func() {
		log.Infof("no hello from session %d within %s", sessionID, s.helloTimeout)
		t.Close()
	})
	msg, err := t.ReadMessage()
	timer.Stop()
	if err != nil {
		return err
	}
	caps, err := parseHello(msg)
	if err != nil {
		return err
	}
	for _, c := range caps {
		if strings.TrimSpace(c) == CapabilityBase11 {
			t.EnableChunked()
			break
		}
	}
	return nil
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
