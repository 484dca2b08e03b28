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

	"github.com/sdcio/netconf-server/pkg/rpcerr"
	"github.com/sdcio/netconf-server/pkg/tree"
)

const defaultConfirmTimeout = 600 * time.Second

// CommitOptions carries the confirmed commit parameters of RFC 6241 section 8.4.
type CommitOptions struct {
	Confirmed bool
	// Timeout of a confirmed commit, the engine default when zero.
	Timeout time.Duration
	// Persist makes the pending commit survive the end of its session and
	// requires the confirming commit to carry it as PersistID.
	Persist   string
	PersistID string
}

type pendingCommit struct {
	sessionID uint32
	persist   string
	// running before the first confirmed commit
	rollback *tree.Node
	timer    *cancelTimer
	gen      uint64
}

// checkConfirming verifies a session may touch a pending confirmed commit.
func (e *Engine) checkConfirming(sessionID uint32, persistID string) error {
	p := e.pending
	if p == nil {
		if persistID != "" {
			return rpcerr.InvalidValue("no confirmed commit with persist-id %q pending", persistID)
		}
		return nil
	}
	if p.persist != "" {
		if persistID != p.persist {
			return rpcerr.InvalidValue("persist-id does not match the pending confirmed commit")
		}
		return nil
	}
	if persistID != "" {
		return rpcerr.InvalidValue("pending confirmed commit has no persist-id")
	}
	if sessionID != p.sessionID {
		return rpcerr.New(rpcerr.TypeProtocol, rpcerr.TagInUse, "confirmed commit pending on session %d", p.sessionID)
	}
	return nil
}

// startConfirmed arms or re-arms the revert timer. A follow-up confirmed
// commit extends the window but keeps the original rollback tree.
func (e *Engine) startConfirmed(sessionID uint32, opts CommitOptions, previous *tree.Node) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.confirmTimeout
	}
	if e.pending != nil {
		e.pending.timer.Stop()
		previous = e.pending.rollback
	}
	e.gen++
	gen := e.gen
	e.pending = &pendingCommit{
		sessionID: sessionID,
		persist:   opts.Persist,
		rollback:  previous,
		gen:       gen,
		timer: newCancelTimer(timeout, func() {
			e.expire(gen)
		}),
	}
	e.pending.timer.Start()
	log.Infof("session %d started confirmed commit, reverting in %s unless confirmed", sessionID, timeout)
}

func (e *Engine) expire(gen uint64) {
	e.cmu.Lock()
	defer e.cmu.Unlock()
	// a timer stopped after it fired finds a newer generation
	if e.pending == nil || e.pending.gen != gen {
		return
	}
	log.Infof("confirmed commit timed out")
	if err := e.revert(context.Background()); err != nil {
		log.Errorf("failed to revert confirmed commit: %v", err)
	}
}

// revert restores running to the tree saved by the pending confirmed commit.
// cmu must be held.
func (e *Engine) revert(ctx context.Context) error {
	p := e.pending
	e.pending = nil
	p.timer.Stop()
	return e.write(ctx, Running, SystemSession, func(*tree.Node) (*tree.Node, error) {
		return p.rollback.Clone(), nil
	})
}

// CancelCommit reverts a pending confirmed commit.
func (e *Engine) CancelCommit(ctx context.Context, sessionID uint32, persistID string) error {
	e.cmu.Lock()
	defer e.cmu.Unlock()
	if e.pending == nil {
		return rpcerr.OperationFailed(fmt.Errorf("no confirmed commit pending"))
	}
	if err := e.checkConfirming(sessionID, persistID); err != nil {
		return err
	}
	log.Infof("session %d cancelled confirmed commit", sessionID)
	return e.revert(ctx)
}

// SessionClosed reverts a pending confirmed commit owned by the session,
// unless it was made persistent.
func (e *Engine) SessionClosed(sessionID uint32) {
	e.cmu.Lock()
	defer e.cmu.Unlock()
	if e.pending == nil || e.pending.persist != "" || e.pending.sessionID != sessionID {
		return
	}
	log.Infof("session %d closed with a pending confirmed commit, reverting", sessionID)
	if err := e.revert(context.Background()); err != nil {
		log.Errorf("failed to revert confirmed commit: %v", err)
	}
}

// PendingConfirmed reports whether a confirmed commit awaits confirmation.
func (e *Engine) PendingConfirmed() bool {
	e.cmu.Lock()
	defer e.cmu.Unlock()
	return e.pending != nil
}

// cancelTimer runs fnc once after delay unless stopped first.
type cancelTimer struct {
	delay time.Duration
	fnc   func()

	mu      *sync.Mutex
	done    chan struct{}
	stopped bool
}

func newCancelTimer(delay time.Duration, f func()) *cancelTimer {
	return &cancelTimer{
		delay: delay,
		fnc:   f,
		mu:    &sync.Mutex{},
	}
}

func (t *cancelTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != nil {
		return
	}
	t.done = make(chan struct{})
	done := t.done

	go func() {
		timer := time.NewTimer(t.delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			log.Debugf("confirmed commit timer fired after %s", t.delay)
			if t.fnc != nil {
				t.fnc()
			}
		case <-done:
			log.Debugf("confirmed commit timer stopped")
		}
	}()
}

func (t *cancelTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done == nil || t.stopped {
		return
	}
	t.stopped = true
	close(t.done)
}
