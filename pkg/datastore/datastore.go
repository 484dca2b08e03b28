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
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sdcio/netconf-server/pkg/metrics"
	"github.com/sdcio/netconf-server/pkg/rpcerr"
	"github.com/sdcio/netconf-server/pkg/tree"
)

type Name string

const (
	Running   Name = "running"
	Candidate Name = "candidate"
	Startup   Name = "startup"
)

var Names = []Name{Running, Candidate, Startup}

func ParseName(s string) (Name, error) {
	switch n := Name(s); n {
	case Running, Candidate, Startup:
		return n, nil
	}
	return "", rpcerr.InvalidValue("unknown datastore %q", s)
}

// SystemSession is the session id used for server initiated writes. It is
// never subject to advisory locks.
const SystemSession uint32 = 0

// LockChecker reports advisory lock ownership to the engine.
type LockChecker interface {
	// CheckLock returns a lock-denied error if ds is locked by a session other than id.
	CheckLock(ds Name, id uint32) error
}

// StartupStore persists the startup datastore.
type StartupStore interface {
	// Load returns the persisted tree, or nil if nothing was stored yet.
	Load(ctx context.Context) (*tree.Node, error)
	Save(ctx context.Context, n *tree.Node) error
}

type noLocks struct{}

func (noLocks) CheckLock(Name, uint32) error { return nil }

// Datastore is one named configuration tree. Published roots are never
// mutated: writers build a staged copy and swap it in.
type Datastore struct {
	name Name

	// serializes writers, held across the apply callback
	wmu *sync.Mutex
	// guards root
	mu   *sync.RWMutex
	root *tree.Node

	lastChange time.Time
}

func newDatastore(name Name, root *tree.Node) *Datastore {
	return &Datastore{
		name:       name,
		wmu:        &sync.Mutex{},
		mu:         &sync.RWMutex{},
		root:       root,
		lastChange: time.Now(),
	}
}

func (d *Datastore) Name() Name {
	return d.name
}

func (d *Datastore) snapshot() *tree.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.root
}

func (d *Datastore) swap(n *tree.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.root = n
	d.lastChange = time.Now()
}

func (d *Datastore) LastChange() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastChange
}

// Engine owns the running, candidate and startup datastores.
type Engine struct {
	datastores map[Name]*Datastore

	locks   LockChecker
	applier Applier
	startup StartupStore
	metrics *metrics.Metrics

	// guards pending and serializes commits
	cmu     *sync.Mutex
	pending *pendingCommit
	// generation of the latest confirmed commit timer
	gen uint64

	confirmTimeout time.Duration
}

type Option func(*Engine)

func WithApplier(a Applier) Option {
	return func(e *Engine) {
		e.applier = a
	}
}

func WithLockChecker(l LockChecker) Option {
	return func(e *Engine) {
		e.locks = l
	}
}

func WithStartupStore(s StartupStore) Option {
	return func(e *Engine) {
		e.startup = s
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithConfirmTimeout sets the timeout of a confirmed commit not carrying one.
func WithConfirmTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.confirmTimeout = d
	}
}

// New creates the three datastores with identical content. The persisted
// startup tree takes precedence over initial; with neither the datastores
// start empty.
func New(ctx context.Context, initial *tree.Node, opts ...Option) (*Engine, error) {
	e := &Engine{
		datastores:     make(map[Name]*Datastore, len(Names)),
		locks:          noLocks{},
		cmu:            &sync.Mutex{},
		confirmTimeout: defaultConfirmTimeout,
	}
	for _, o := range opts {
		o(e)
	}

	if e.startup != nil {
		stored, err := e.startup.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load startup datastore: %w", err)
		}
		if stored != nil {
			log.Infof("loaded startup datastore from store")
			initial = stored
		}
	}
	if initial == nil {
		initial = tree.NewMap()
	}
	if !initial.IsMap() {
		return nil, fmt.Errorf("initial configuration must be a container, got %s", initial.Kind())
	}
	if initial.Depth() > tree.MaxDepth {
		return nil, tree.ErrMaxDepth
	}
	for _, n := range Names {
		e.datastores[n] = newDatastore(n, initial.Clone())
	}
	return e, nil
}

func (e *Engine) datastore(name Name) (*Datastore, error) {
	ds, ok := e.datastores[name]
	if !ok {
		return nil, rpcerr.InvalidValue("unknown datastore %q", name)
	}
	return ds, nil
}

// Get returns a copy of the subtree at p, or nil if p does not resolve.
func (e *Engine) Get(name Name, p tree.Path) (*tree.Node, error) {
	ds, err := e.datastore(name)
	if err != nil {
		return nil, err
	}
	n, ok := tree.Lookup(ds.snapshot(), p)
	if !ok {
		return nil, nil
	}
	return n.Clone(), nil
}

// write runs mutate on a staged copy of the datastore and publishes the
// result. Writers of one datastore are serialized; readers keep seeing the
// previous root until the swap.
func (e *Engine) write(ctx context.Context, name Name, sessionID uint32, mutate func(staged *tree.Node) (*tree.Node, error)) error {
	ds, err := e.datastore(name)
	if err != nil {
		return err
	}
	ds.wmu.Lock()
	defer ds.wmu.Unlock()

	if sessionID != SystemSession {
		if err := e.locks.CheckLock(name, sessionID); err != nil {
			return err
		}
	}
	staged, err := mutate(ds.snapshot().Clone())
	if err != nil {
		return err
	}
	return e.publish(ctx, ds, staged)
}

// Exclusive runs f while no write to the datastore is in flight. Lock grants
// go through it so that a new lock holder never sees a change published
// after it locked.
func (e *Engine) Exclusive(name Name, f func() error) error {
	ds, err := e.datastore(name)
	if err != nil {
		return err
	}
	ds.wmu.Lock()
	defer ds.wmu.Unlock()
	return f()
}

func (e *Engine) publish(ctx context.Context, ds *Datastore, staged *tree.Node) error {
	switch ds.name {
	case Running:
		if err := e.apply(ctx, staged); err != nil {
			return err
		}
	case Startup:
		if e.startup != nil {
			if err := e.startup.Save(ctx, staged); err != nil {
				return rpcerr.OperationFailed(fmt.Errorf("failed to persist startup datastore: %w", err))
			}
		}
	}
	ds.swap(staged)
	log.Debugf("datastore %s updated", ds.name)
	return nil
}

// apply pushes the staged running tree to the applier. On failure running
// is left untouched. Without an applier there is nothing to push.
func (e *Engine) apply(ctx context.Context, staged *tree.Node) error {
	if e.applier == nil {
		return nil
	}
	start := time.Now()
	err := e.applier.Apply(ctx, staged.Clone())
	e.metrics.ObserveApply(time.Since(start))
	if err != nil {
		log.Errorf("failed to apply running configuration: %v", err)
		return rpcerr.OperationFailed(fmt.Errorf("apply failed: %w", err))
	}
	return nil
}

// Validate checks the structural validity of a datastore.
func (e *Engine) Validate(name Name) error {
	ds, err := e.datastore(name)
	if err != nil {
		return err
	}
	return ValidateTree(ds.snapshot())
}

// ValidateTree checks the structural validity of an inline configuration.
func ValidateTree(n *tree.Node) error {
	if !n.IsMap() {
		return rpcerr.InvalidValue("configuration must be a container")
	}
	if n.Depth() > tree.MaxDepth {
		return rpcerr.Wrap(rpcerr.TypeApplication, rpcerr.TagInvalidValue, tree.ErrMaxDepth)
	}
	return nil
}
