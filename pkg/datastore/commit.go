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

	log "github.com/sirupsen/logrus"

	"github.com/sdcio/netconf-server/pkg/rpcerr"
	"github.com/sdcio/netconf-server/pkg/tree"
)

// Commit promotes candidate into running. Only the running lock is checked.
// The new running tree is handed to the applier before it is published, so a
// failed apply leaves running untouched.
func (e *Engine) Commit(ctx context.Context, sessionID uint32, opts CommitOptions) error {
	e.cmu.Lock()
	defer e.cmu.Unlock()

	if err := e.checkConfirming(sessionID, opts.PersistID); err != nil {
		return err
	}

	cand, err := e.datastore(Candidate)
	if err != nil {
		return err
	}
	var previous *tree.Node
	err = e.write(ctx, Running, sessionID, func(staged *tree.Node) (*tree.Node, error) {
		previous = staged
		return cand.snapshot().Clone(), nil
	})
	if err != nil {
		return err
	}

	switch {
	case opts.Confirmed:
		e.startConfirmed(sessionID, opts, previous)
	case e.pending != nil:
		e.pending.timer.Stop()
		e.pending = nil
		log.Infof("confirmed commit confirmed by session %d", sessionID)
	default:
		log.Infof("session %d committed candidate", sessionID)
	}
	return nil
}

// Discard resets candidate to the content of running.
func (e *Engine) Discard(ctx context.Context, sessionID uint32) error {
	return e.Copy(ctx, Running, Candidate, sessionID)
}

// Copy replaces dst with a copy of src, subject to the lock on dst.
func (e *Engine) Copy(ctx context.Context, src, dst Name, sessionID uint32) error {
	if src == dst {
		return rpcerr.InvalidValue("source and target datastore are both %s", src)
	}
	from, err := e.datastore(src)
	if err != nil {
		return err
	}
	return e.write(ctx, dst, sessionID, func(*tree.Node) (*tree.Node, error) {
		return from.snapshot().Clone(), nil
	})
}

// CopyTree replaces dst with an inline configuration.
func (e *Engine) CopyTree(ctx context.Context, n *tree.Node, dst Name, sessionID uint32) error {
	if n == nil {
		n = tree.NewMap()
	}
	if err := ValidateTree(n); err != nil {
		return err
	}
	return e.write(ctx, dst, sessionID, func(*tree.Node) (*tree.Node, error) {
		return n.Clone(), nil
	})
}

// Delete empties a datastore. running cannot be deleted.
func (e *Engine) Delete(ctx context.Context, name Name, sessionID uint32) error {
	if name == Running {
		return rpcerr.OperationFailed(errors.New("the running datastore cannot be deleted"))
	}
	return e.write(ctx, name, sessionID, func(*tree.Node) (*tree.Node, error) {
		return tree.NewMap(), nil
	})
}
