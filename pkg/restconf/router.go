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

// Package restconf maps RESTCONF requests onto the datastore engine. Every
// request runs in its own short lived session and writes go straight to
// running.
package restconf

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/pretty"

	"github.com/sdcio/netconf-server/pkg/datastore"
	"github.com/sdcio/netconf-server/pkg/metrics"
	"github.com/sdcio/netconf-server/pkg/netconf"
	"github.com/sdcio/netconf-server/pkg/rpcerr"
	"github.com/sdcio/netconf-server/pkg/session"
)

const (
	DefaultAPIRoot = "/restconf"

	mediaTypeJSON = "application/yang-data+json"
	requestIDHdr  = "X-Request-Id"
)

type Router struct {
	engine   *datastore.Engine
	sessions *session.Manager
	caps     netconf.Capabilities
	apiRoot  string
	metrics  *metrics.Metrics
}

func NewRouter(engine *datastore.Engine, sessions *session.Manager, caps netconf.Capabilities, apiRoot string, m *metrics.Metrics) *Router {
	apiRoot = "/" + strings.Trim(apiRoot, "/")
	if apiRoot == "/" {
		apiRoot = DefaultAPIRoot
	}
	return &Router{
		engine:   engine,
		sessions: sessions,
		caps:     caps,
		apiRoot:  apiRoot,
		metrics:  m,
	}
}

func (rt *Router) APIRoot() string {
	return rt.apiRoot
}

// Register adds the RESTCONF routes to m.
func (rt *Router) Register(m *mux.Router) {
	m.HandleFunc("/.well-known/host-meta", rt.hostMeta).Methods(http.MethodGet, http.MethodHead)

	sub := m.PathPrefix(rt.apiRoot).Subrouter()
	sub.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rt.writeError(w, r, "invalid-path", rpcerr.New(rpcerr.TypeProtocol, rpcerr.TagInvalidPath, "no resource at %s", r.URL.Path))
	})
	sub.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rt.writeError(w, r, "method", rpcerr.NotSupported("method %s is not supported on %s", r.Method, r.URL.Path))
	})

	for _, p := range []string{"", "/"} {
		sub.HandleFunc(p, rt.root).Methods(http.MethodGet, http.MethodHead)
	}
	sub.HandleFunc("/yang-library-version", rt.yangLibraryVersion).Methods(http.MethodGet, http.MethodHead)

	for _, p := range []string{"/data", "/data/", "/data/{path:.*}"} {
		sub.HandleFunc(p, rt.handle("get", rt.getData)).Methods(http.MethodGet, http.MethodHead)
		sub.HandleFunc(p, rt.handle("put", rt.putData)).Methods(http.MethodPut)
		sub.HandleFunc(p, rt.handle("post", rt.postData)).Methods(http.MethodPost)
		sub.HandleFunc(p, rt.handle("patch", rt.patchData)).Methods(http.MethodPatch)
		sub.HandleFunc(p, rt.handle("delete", rt.deleteData)).Methods(http.MethodDelete)
	}
	sub.HandleFunc("/operations/{name}", rt.handle("operation", rt.invoke)).Methods(http.MethodPost)
}

// response is what a handler produced: either a data tree body or a
// success message.
type response struct {
	status int
	body   []byte
}

type handlerFunc func(ctx context.Context, sess *session.Session, r *http.Request) (*response, error)

// handle wraps h in an implicit session. The session ends with the request
// so it can never leave a lock behind.
func (rt *Router) handle(op string, h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(requestIDHdr) == "" {
			r.Header.Set(requestIDHdr, uuid.NewString())
		}
		rt.metrics.Operation(metrics.ProtocolRESTCONF, op)

		user := "anonymous"
		if u, _, ok := r.BasicAuth(); ok && u != "" {
			user = u
		}
		addr, port := splitRemote(r.RemoteAddr)
		sess, err := rt.sessions.Create(user, addr, port, session.ProtocolRESTCONF)
		if err != nil {
			rt.writeError(w, r, op, err)
			return
		}
		defer rt.sessions.Close(sess.ID)
		sess.Touch()

		log.WithFields(log.Fields{
			"session-id": sess.ID,
			"request-id": r.Header.Get(requestIDHdr),
			"user":       user,
		}).Debugf("restconf %s %s", r.Method, r.URL.Path)

		resp, err := rt.call(r.Context(), h, sess, r)
		if err != nil {
			rt.writeError(w, r, op, err)
			return
		}
		rt.write(w, r, resp.status, resp.body)
	}
}

func (rt *Router) call(ctx context.Context, h handlerFunc, sess *session.Session, r *http.Request) (resp *response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("panic handling %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
			resp = nil
			err = rpcerr.OperationFailed(fmt.Errorf("internal error: %v", rec))
		}
	}()
	return h(ctx, sess, r)
}

func success(status int, format string, args ...any) *response {
	b, _ := json.Marshal(struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{
		Success: true,
		Message: fmt.Sprintf(format, args...),
	})
	return &response{status: status, body: b}
}

func (rt *Router) write(w http.ResponseWriter, r *http.Request, status int, body []byte) {
	if _, ok := r.URL.Query()["pretty"]; ok {
		body = pretty.Pretty(body)
	}
	w.Header().Set("Content-Type", mediaTypeJSON)
	if id := r.Header.Get(requestIDHdr); id != "" {
		w.Header().Set(requestIDHdr, id)
	}
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(body); err != nil {
		log.Debugf("failed to write response: %v", err)
	}
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	e := rpcerr.From(err)
	rt.metrics.Failure(metrics.ProtocolRESTCONF, op, string(e.Tag))
	log.Debugf("restconf %s %s failed: %v", r.Method, r.URL.Path, e)
	b, _ := json.Marshal(struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}{
		Error:   string(e.Tag),
		Message: e.Message,
	})
	rt.write(w, r, rpcerr.HTTPStatus(e.Tag), b)
}

func splitRemote(addr string) (string, int) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	p, _ := strconv.Atoi(port)
	return host, p
}
