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
	"net"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
)

// Transport carries whole NETCONF messages. The session loop is unaware of
// the framing underneath.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage([]byte) error
	// EnableChunked switches to base:1.1 framing after the hello exchange.
	EnableChunked()
	RemoteAddr() (string, int)
	Close() error
}

type tcpTransport struct {
	conn net.Conn
	*framer
	wmu *sync.Mutex
}

func newTCPTransport(conn net.Conn, maxSize int) *tcpTransport {
	return &tcpTransport{
		conn:   conn,
		framer: newFramer(conn, conn, maxSize),
		wmu:    &sync.Mutex{},
	}
}

func (t *tcpTransport) WriteMessage(b []byte) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	return t.framer.WriteMessage(b)
}

func (t *tcpTransport) EnableChunked() { t.chunked = true }

func (t *tcpTransport) RemoteAddr() (string, int) {
	return splitAddr(t.conn.RemoteAddr())
}

func (t *tcpTransport) Close() error { return t.conn.Close() }

// wsTransport maps one NETCONF message onto one websocket text frame.
type wsTransport struct {
	conn    *websocket.Conn
	maxSize int
	wmu     *sync.Mutex
}

func newWSTransport(conn *websocket.Conn, maxSize int) *wsTransport {
	if maxSize > 0 {
		conn.SetReadLimit(int64(maxSize))
	}
	return &wsTransport{conn: conn, maxSize: maxSize, wmu: &sync.Mutex{}}
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	for {
		mt, b, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return b, nil
		}
	}
}

func (t *wsTransport) WriteMessage(b []byte) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, b)
}

// EnableChunked is a no-op, websocket frames delimit messages.
func (t *wsTransport) EnableChunked() {}

func (t *wsTransport) RemoteAddr() (string, int) {
	return splitAddr(t.conn.RemoteAddr())
}

func (t *wsTransport) Close() error { return t.conn.Close() }

func splitAddr(a net.Addr) (string, int) {
	if a == nil {
		return "", 0
	}
	host, port, err := net.SplitHostPort(a.String())
	if err != nil {
		return a.String(), 0
	}
	p, _ := strconv.Atoi(port)
	return host, p
}
