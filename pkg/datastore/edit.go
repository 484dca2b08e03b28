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
	"fmt"

	"github.com/sdcio/netconf-server/pkg/rpcerr"
	"github.com/sdcio/netconf-server/pkg/tree"
)

type EditOperation string

const (
	OperationMerge   EditOperation = "merge"
	OperationReplace EditOperation = "replace"
	OperationCreate  EditOperation = "create"
	OperationDelete  EditOperation = "delete"
	OperationRemove  EditOperation = "remove"
	OperationNone    EditOperation = "none"
)

func ParseEditOperation(s string) (EditOperation, error) {
	switch op := EditOperation(s); op {
	case OperationMerge, OperationReplace, OperationCreate, OperationDelete, OperationRemove, OperationNone:
		return op, nil
	}
	return "", rpcerr.InvalidValue("unknown edit operation %q", s)
}

// Edit is one mutation of a datastore. An empty Path addresses the root.
type Edit struct {
	Path      tree.Path
	Operation EditOperation
	Payload   *tree.Node
}

func (e Edit) String() string {
	return fmt.Sprintf("%s %s", e.Operation, e.Path)
}

// Edit applies edits in order to a staged copy of the datastore. Either all
// of them are published or none.
func (e *Engine) Edit(ctx context.Context, name Name, sessionID uint32, edits ...Edit) error {
	return e.write(ctx, name, sessionID, func(staged *tree.Node) (*tree.Node, error) {
		var err error
		for _, ed := range edits {
			staged, err = applyEdit(staged, ed)
			if err != nil {
				return nil, err
			}
		}
		if staged.Depth() > tree.MaxDepth {
			return nil, treeError(tree.Path{}, tree.ErrMaxDepth)
		}
		return staged, nil
	})
}

func applyEdit(root *tree.Node, ed Edit) (*tree.Node, error) {
	switch ed.Operation {
	case OperationNone:
		return root, nil
	case OperationMerge, "":
		return root, mergeAt(root, ed.Path, ed.Payload)
	case OperationReplace:
		if ed.Path.IsRoot() {
			if ed.Payload == nil {
				return tree.NewMap(), nil
			}
			if !ed.Payload.IsMap() {
				return nil, rpcerr.InvalidValue("configuration root must be a container")
			}
			return ed.Payload.Clone(), nil
		}
		payload := ed.Payload
		if payload == nil {
			payload = tree.NewScalar(nil)
		}
		if err := tree.Put(root, ed.Path, payload.Clone()); err != nil {
			return nil, treeError(ed.Path, err)
		}
		return root, nil
	case OperationCreate:
		if err := checkAbsent(root, ed.Path, ed.Payload); err != nil {
			return nil, err
		}
		return root, mergeAt(root, ed.Path, ed.Payload)
	case OperationDelete, OperationRemove:
		return root, deleteAt(root, ed.Path, ed.Payload, ed.Operation == OperationDelete)
	}
	return nil, rpcerr.InvalidValue("unknown edit operation %q", ed.Operation)
}

func mergeAt(root *tree.Node, p tree.Path, payload *tree.Node) error {
	if payload == nil {
		payload = tree.NewMap()
	}
	if p.IsRoot() {
		if !payload.IsMap() {
			return rpcerr.InvalidValue("configuration root must be a container")
		}
		return treeError(p, tree.Merge(root, payload.Clone()))
	}
	if !payload.IsMap() {
		if len(p.Last().Keys) > 0 {
			return rpcerr.InvalidValue("list entry %s must be a container", p)
		}
		return treeError(p, tree.Put(root, p, payload.Clone()))
	}
	target, err := tree.Ensure(root, p)
	if err != nil {
		return treeError(p, err)
	}
	if !target.IsMap() {
		return treeError(p, tree.Put(root, p, payload.Clone()))
	}
	for _, kv := range p.Last().Keys {
		if v, ok := payload.Get(kv.Name); ok && v.String() != kv.Value {
			return treeError(p, tree.ErrKeyMismatch)
		}
	}
	return treeError(p, tree.Merge(target, payload.Clone()))
}

// checkAbsent fails with data-exists when a create would overwrite data. At
// the root every top-level payload key is checked.
func checkAbsent(root *tree.Node, p tree.Path, payload *tree.Node) error {
	if !p.IsRoot() {
		if _, ok := tree.Lookup(root, p); ok {
			return rpcerr.DataExists(p.String())
		}
		return nil
	}
	if !payload.IsMap() {
		return nil
	}
	for _, k := range payload.Keys() {
		if _, ok := root.Get(k); ok {
			return rpcerr.DataExists("/" + k)
		}
	}
	return nil
}

// deleteAt removes data. Without a payload the node at p is removed, with
// one the payload keys are pruned from the node at p. strict reports a
// missing target as data-missing.
func deleteAt(root *tree.Node, p tree.Path, payload *tree.Node, strict bool) error {
	if payload == nil || (payload.IsMap() && payload.Len() == 0) {
		if p.IsRoot() {
			return rpcerr.New(rpcerr.TypeProtocol, rpcerr.TagMissingElement, "delete at the root requires a payload")
		}
		if !tree.Remove(root, p) && strict {
			return rpcerr.DataMissing(p.String())
		}
		return nil
	}
	target, ok := tree.Lookup(root, p)
	if !ok {
		if strict {
			return rpcerr.DataMissing(p.String())
		}
		return nil
	}
	return treeError(p, tree.Prune(target, payload))
}

func treeError(p tree.Path, err error) error {
	if err == nil {
		return nil
	}
	var rerr *rpcerr.Error
	if errors.As(err, &rerr) {
		return err
	}
	switch {
	case errors.Is(err, tree.ErrMaxDepth), errors.Is(err, tree.ErrNotContainer), errors.Is(err, tree.ErrKeyMismatch):
		return rpcerr.Wrap(rpcerr.TypeApplication, rpcerr.TagInvalidValue, err).WithPath(p.String())
	}
	return rpcerr.OperationFailed(err).WithPath(p.String())
}
