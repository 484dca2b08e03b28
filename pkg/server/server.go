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

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/sdcio/netconf-server/pkg/apply"
	"github.com/sdcio/netconf-server/pkg/config"
	"github.com/sdcio/netconf-server/pkg/datastore"
	"github.com/sdcio/netconf-server/pkg/metrics"
	"github.com/sdcio/netconf-server/pkg/netconf"
	"github.com/sdcio/netconf-server/pkg/restconf"
	"github.com/sdcio/netconf-server/pkg/session"
	"github.com/sdcio/netconf-server/pkg/store"
	"github.com/sdcio/netconf-server/pkg/tree"
)

const shutdownTimeout = 5 * time.Second

// Server holds every component of one running instance. Nothing is kept in
// package level state so a restart builds a fresh Server.
type Server struct {
	config *config.Config

	ctx context.Context
	cfn context.CancelFunc

	router *mux.Router
	reg    *prometheus.Registry

	store    store.Store
	engine   *datastore.Engine
	sessions *session.Manager
	netconf  *netconf.Server
	restconf *restconf.Router
}

func New(ctx context.Context, c *config.Config) (*Server, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &Server{
		config: c,
		ctx:    ctx,
		cfn:    cancel,
		router: mux.NewRouter(),
		reg:    prometheus.NewRegistry(),
	}
	if err := s.build(); err != nil {
		s.Stop()
		return nil, err
	}
	return s, nil
}

func (s *Server) build() error {
	c := s.config
	var m *metrics.Metrics
	if c.Prometheus != nil {
		m = metrics.New(s.reg)
	}

	st, err := store.New(c.Datastores.StartupStore.Type, c.Datastores.StartupStore.Path, c.Fs())
	if err != nil {
		return fmt.Errorf("failed to open startup store: %w", err)
	}
	s.store = st

	initial, err := LoadInitialConfig(c.Fs(), c.Datastores.InitialConfig)
	if err != nil {
		return err
	}

	s.sessions = session.NewManager(
		session.WithMaxSessions(int(c.NETCONF.MaxSessions)),
		session.WithIdleTimeout(c.NETCONF.IdleTimeout.Std()),
		session.WithMetrics(m),
	)

	opts := []datastore.Option{
		datastore.WithLockChecker(s.sessions),
		datastore.WithApplier(newApplier(c.Apply)),
		datastore.WithMetrics(m),
	}
	if st != nil {
		opts = append(opts, datastore.WithStartupStore(st))
	}
	if c.Datastores.ConfirmTimeout > 0 {
		opts = append(opts, datastore.WithConfirmTimeout(c.Datastores.ConfirmTimeout.Std()))
	}
	s.engine, err = datastore.New(s.ctx, initial, opts...)
	if err != nil {
		return err
	}
	s.sessions.OnClose(s.engine.SessionClosed)

	caps := capabilities(c.Capabilities)
	d := netconf.NewDispatcher(s.engine, s.sessions, caps, m)
	s.netconf = netconf.NewServer(d, s.sessions,
		netconf.WithHelloTimeout(c.NETCONF.HelloTimeout.Std()),
		netconf.WithMaxMessageSize(c.NETCONF.MaxMessageSize),
		netconf.WithDefaultUser(c.NETCONF.DefaultUser),
	)
	s.restconf = restconf.NewRouter(s.engine, s.sessions, caps, c.RESTCONF.APIRoot, m)
	s.restconf.Register(s.router)
	if c.NETCONF.WebSocket {
		s.router.Handle("/netconf", s.netconf)
	}
	return nil
}

func newApplier(c *config.Apply) datastore.Applier {
	switch c.Type {
	case config.ApplyTypeHTTP:
		return apply.NewHTTP(c.URL,
			apply.WithTimeout(c.Timeout.Std()),
			apply.WithRetries(c.Retries),
		)
	}
	return apply.Noop{}
}

func capabilities(c *config.Capabilities) netconf.Capabilities {
	return netconf.Capabilities{
		Candidate:       *c.Candidate,
		Startup:         *c.Startup,
		Validate:        *c.Validate,
		WritableRunning: *c.WritableRunning,
		ConfirmedCommit: *c.ConfirmedCommit,
	}
}

// LoadInitialConfig reads the document seeding the datastores. Files ending
// in .xml, or starting with '<', are XML whose root element wraps the
// configuration; everything else is JSON. An empty path yields nil.
func LoadInitialConfig(fs afero.Fs, path string) (*tree.Node, error) {
	if path == "" {
		return nil, nil
	}
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read initial config: %w", err)
	}
	var n *tree.Node
	if strings.EqualFold(filepath.Ext(path), ".xml") || strings.HasPrefix(strings.TrimSpace(string(b)), "<") {
		doc := etree.NewDocument()
		if err := doc.ReadFromBytes(b); err != nil {
			return nil, fmt.Errorf("failed to parse initial config %s: %w", path, err)
		}
		if doc.Root() == nil {
			return nil, fmt.Errorf("initial config %s holds no element", path)
		}
		n, err = tree.FromXML(doc.Root())
	} else {
		n, err = tree.ParseJSON(b)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse initial config %s: %w", path, err)
	}
	log.Infof("loaded initial config from %s", path)
	return n, nil
}

// Handler returns the HTTP handler serving RESTCONF and, when enabled,
// NETCONF over websocket.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve runs all listeners until ctx is done or one of them fails.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Stop ends Serve as well
	defer context.AfterFunc(s.ctx, cancel)()
	g, ctx := errgroup.WithContext(ctx)

	if s.config.RESTCONF.Address != "" {
		g.Go(func() error {
			return s.serveHTTP(ctx)
		})
	}
	if s.config.NETCONF.Address != "" {
		g.Go(func() error {
			return s.netconf.ListenAndServe(ctx, s.config.NETCONF.Address)
		})
	}
	if s.config.Prometheus != nil {
		g.Go(func() error {
			return s.serveMetrics(ctx)
		})
	}
	g.Go(func() error {
		return s.sessions.RunReaper(ctx)
	})
	log.Infof("ready...")
	return g.Wait()
}

func (s *Server) serveHTTP(ctx context.Context) error {
	c := s.config.RESTCONF
	srv := &http.Server{
		Addr:              c.Address,
		Handler:           s.router,
		ReadHeaderTimeout: time.Minute,
		// websocket sessions outlive Shutdown, tie them to ctx
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	listen := srv.ListenAndServe
	if c.TLS != nil {
		tlsCfg, err := c.TLS.NewConfig(ctx, s.config.Fs())
		if err != nil {
			return err
		}
		srv.TLSConfig = tlsCfg
		listen = func() error { return srv.ListenAndServeTLS("", "") }
	}
	log.Infof("restconf listening on %s%s", c.Address, c.APIRoot)
	return run(ctx, srv, listen)
}

func (s *Server) serveMetrics(ctx context.Context) error {
	s.reg.MustRegister(collectors.NewGoCollector())
	s.reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:         s.config.Prometheus.Address,
		Handler:      router,
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
	}
	log.Infof("metrics listening on %s", srv.Addr)
	return run(ctx, srv, srv.ListenAndServe)
}

// run serves srv until ctx is done, then shuts it down.
func run(ctx context.Context, srv *http.Server, listen func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- listen()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	}
}

func (s *Server) Stop() {
	s.cfn()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Errorf("failed to close startup store: %v", err)
		}
	}
}
