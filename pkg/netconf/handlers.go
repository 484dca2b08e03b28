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
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/sdcio/netconf-server/pkg/datastore"
	"github.com/sdcio/netconf-server/pkg/rpcerr"
	"github.com/sdcio/netconf-server/pkg/tree"
)

func missingElement(name string) *rpcerr.Error {
	return rpcerr.New(rpcerr.TypeProtocol, rpcerr.TagMissingElement, "missing element %q", name)
}

// datastoreParam reads <name><running/></name> below the operation element.
// dflt is used when the parameter is absent.
func datastoreParam(op *etree.Element, name string, dflt datastore.Name) (datastore.Name, error) {
	p := op.SelectElement(name)
	if p == nil {
		return dflt, nil
	}
	children := p.ChildElements()
	if len(children) == 0 {
		return "", missingElement(name + " datastore")
	}
	switch children[0].Tag {
	case "url":
		return "", rpcerr.NotSupported("url datastores are not supported")
	case "config":
		return "", rpcerr.InvalidValue("inline configuration is not allowed as %s", name)
	}
	return datastore.ParseName(children[0].Tag)
}

// checkDatastore enforces the advertised capabilities. write is true for
// operations modifying ds.
func (d *Dispatcher) checkDatastore(ds datastore.Name, write bool) error {
	switch {
	case ds == datastore.Candidate && !d.caps.Candidate:
		return rpcerr.NotSupported("the candidate capability is not enabled")
	case ds == datastore.Startup && !d.caps.Startup:
		return rpcerr.NotSupported("the startup capability is not enabled")
	case ds == datastore.Running && write && !d.caps.WritableRunning:
		return rpcerr.NotSupported("the writable-running capability is not enabled")
	}
	return nil
}

func (d *Dispatcher) get(_ context.Context, req *request) (*tree.Node, error) {
	return d.read(datastore.Running, req.op)
}

func (d *Dispatcher) getConfig(_ context.Context, req *request) (*tree.Node, error) {
	ds, err := datastoreParam(req.op, "source", datastore.Running)
	if err != nil {
		return nil, err
	}
	if err := d.checkDatastore(ds, false); err != nil {
		return nil, err
	}
	return d.read(ds, req.op)
}

func (d *Dispatcher) read(ds datastore.Name, op *etree.Element) (*tree.Node, error) {
	f := op.SelectElement("filter")
	if f == nil {
		return d.engine.Get(ds, nil)
	}
	switch typ := f.SelectAttrValue("type", "subtree"); typ {
	case "subtree":
		if len(f.ChildElements()) == 0 {
			// an empty filter selects nothing
			return tree.NewMap(), nil
		}
		filter, err := tree.FromXML(f)
		if err != nil {
			return nil, rpcerr.Malformed(err)
		}
		data, err := d.engine.Get(ds, nil)
		if err != nil {
			return nil, err
		}
		return tree.Filter(data, filter), nil
	case "xpath":
		return d.readPath(ds, f.SelectAttrValue("select", ""))
	default:
		return nil, rpcerr.InvalidValue("unsupported filter type %q", typ)
	}
}

// readPath supports the location paths understood by tree.ParsePath and
// returns the selected node wrapped in its ancestors.
func (d *Dispatcher) readPath(ds datastore.Name, sel string) (*tree.Node, error) {
	sel = strings.TrimSpace(sel)
	if sel == "" {
		return nil, missingElement("select")
	}
	p, err := tree.ParsePath(sel)
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.TypeApplication, rpcerr.TagInvalidValue, err)
	}
	n, err := d.engine.Get(ds, p)
	if err != nil {
		return nil, err
	}
	if p.IsRoot() {
		return n, nil
	}
	out := tree.NewMap()
	if n == nil {
		return out, nil
	}
	if err := tree.Put(out, p, n); err != nil {
		return nil, rpcerr.OperationFailed(err)
	}
	return out, nil
}

func (d *Dispatcher) editConfig(ctx context.Context, req *request) (*tree.Node, error) {
	ds, err := datastoreParam(req.op, "target", datastore.Candidate)
	if err != nil {
		return nil, err
	}
	if ds == datastore.Startup {
		return nil, rpcerr.NotSupported("edit-config does not support the startup datastore")
	}
	if err := d.checkDatastore(ds, true); err != nil {
		return nil, err
	}

	defaultOp := datastore.OperationMerge
	if e := req.op.SelectElement("default-operation"); e != nil {
		defaultOp, err = datastore.ParseEditOperation(strings.TrimSpace(e.Text()))
		if err != nil {
			return nil, err
		}
	}
	cfg := req.op.SelectElement("config")
	if cfg == nil {
		if req.op.SelectElement("url") != nil {
			return nil, rpcerr.NotSupported("url configuration sources are not supported")
		}
		return nil, missingElement("config")
	}
	edits, err := buildEdits(cfg, defaultOp)
	if err != nil {
		return nil, err
	}
	return nil, d.engine.Edit(ctx, ds, req.sess.ID, edits...)
}

// buildEdits converts a <config> element into edits. Top-level children
// carrying an operation attribute become edits of their own, the rest is
// applied with the default operation.
func buildEdits(cfg *etree.Element, defaultOp datastore.EditOperation) ([]datastore.Edit, error) {
	rest := etree.NewElement("config")
	var edits []datastore.Edit
	for _, c := range cfg.ChildElements() {
		opAttr := c.SelectAttrValue("operation", "")
		if opAttr == "" {
			rest.AddChild(c.Copy())
			continue
		}
		op, err := datastore.ParseEditOperation(opAttr)
		if err != nil {
			return nil, err
		}
		wrapper := etree.NewElement("config")
		wrapper.AddChild(c.Copy())
		payload, err := tree.FromXML(wrapper)
		if err != nil {
			return nil, rpcerr.Malformed(err)
		}
		value, _ := payload.Get(c.Tag)
		path := tree.Path{{Name: c.Tag}}
		switch {
		case op == datastore.OperationReplace:
			edits = append(edits, datastore.Edit{Path: path, Operation: op, Payload: value})
		case (op == datastore.OperationDelete || op == datastore.OperationRemove) && !value.IsMap():
			edits = append(edits, datastore.Edit{Path: path, Operation: op})
		default:
			edits = append(edits, datastore.Edit{Operation: op, Payload: payload})
		}
	}
	if defaultOp != datastore.OperationNone && len(rest.ChildElements()) > 0 {
		payload, err := tree.FromXML(rest)
		if err != nil {
			return nil, rpcerr.Malformed(err)
		}
		// default edits go first so explicit operations win
		edits = append([]datastore.Edit{{Operation: defaultOp, Payload: payload}}, edits...)
	}
	return edits, nil
}

func (d *Dispatcher) lock(_ context.Context, req *request) (*tree.Node, error) {
	ds, err := d.lockTarget(req)
	if err != nil {
		return nil, err
	}
	return nil, d.engine.Exclusive(ds, func() error {
		return d.sessions.Lock(ds, req.sess.ID)
	})
}

func (d *Dispatcher) unlock(_ context.Context, req *request) (*tree.Node, error) {
	ds, err := d.lockTarget(req)
	if err != nil {
		return nil, err
	}
	return nil, d.sessions.Unlock(ds, req.sess.ID)
}

func (d *Dispatcher) lockTarget(req *request) (datastore.Name, error) {
	ds, err := datastoreParam(req.op, "target", datastore.Candidate)
	if err != nil {
		return "", err
	}
	return ds, d.checkDatastore(ds, false)
}

func (d *Dispatcher) commit(ctx context.Context, req *request) (*tree.Node, error) {
	if !d.caps.Candidate {
		return nil, rpcerr.NotSupported("the candidate capability is not enabled")
	}
	opts := datastore.CommitOptions{
		Confirmed: req.op.SelectElement("confirmed") != nil,
	}
	if e := req.op.SelectElement("confirm-timeout"); e != nil {
		secs, err := strconv.ParseUint(strings.TrimSpace(e.Text()), 10, 32)
		if err != nil || secs == 0 {
			return nil, rpcerr.InvalidValue("invalid confirm-timeout %q", e.Text())
		}
		opts.Timeout = time.Duration(secs) * time.Second
	}
	if e := req.op.SelectElement("persist"); e != nil {
		opts.Persist = strings.TrimSpace(e.Text())
	}
	if e := req.op.SelectElement("persist-id"); e != nil {
		opts.PersistID = strings.TrimSpace(e.Text())
	}
	if (opts.Confirmed || opts.PersistID != "") && !d.caps.ConfirmedCommit {
		return nil, rpcerr.NotSupported("the confirmed-commit capability is not enabled")
	}
	return nil, d.engine.Commit(ctx, req.sess.ID, opts)
}

func (d *Dispatcher) cancelCommit(ctx context.Context, req *request) (*tree.Node, error) {
	if !d.caps.Candidate || !d.caps.ConfirmedCommit {
		return nil, rpcerr.NotSupported("the confirmed-commit capability is not enabled")
	}
	persistID := ""
	if e := req.op.SelectElement("persist-id"); e != nil {
		persistID = strings.TrimSpace(e.Text())
	}
	return nil, d.engine.CancelCommit(ctx, req.sess.ID, persistID)
}

func (d *Dispatcher) discardChanges(ctx context.Context, req *request) (*tree.Node, error) {
	if !d.caps.Candidate {
		return nil, rpcerr.NotSupported("the candidate capability is not enabled")
	}
	return nil, d.engine.Discard(ctx, req.sess.ID)
}

func (d *Dispatcher) closeSession(_ context.Context, req *request) (*tree.Node, error) {
	req.closeSession = true
	return nil, nil
}

func (d *Dispatcher) killSession(_ context.Context, req *request) (*tree.Node, error) {
	e := req.op.SelectElement("session-id")
	if e == nil {
		return nil, missingElement("session-id")
	}
	id, err := strconv.ParseUint(strings.TrimSpace(e.Text()), 10, 32)
	if err != nil {
		return nil, rpcerr.InvalidValue("invalid session-id %q", e.Text())
	}
	return nil, d.sessions.Kill(req.sess.ID, uint32(id))
}

func (d *Dispatcher) copyConfig(ctx context.Context, req *request) (*tree.Node, error) {
	target, err := datastoreParam(req.op, "target", "")
	if err != nil {
		return nil, err
	}
	if target == "" {
		return nil, missingElement("target")
	}
	if err := d.checkDatastore(target, true); err != nil {
		return nil, err
	}

	inline, err := inlineConfig(req.op)
	if err != nil {
		return nil, err
	}
	if inline != nil {
		return nil, d.engine.CopyTree(ctx, inline, target, req.sess.ID)
	}
	source, err := datastoreParam(req.op, "source", "")
	if err != nil {
		return nil, err
	}
	if source == "" {
		return nil, missingElement("source")
	}
	if err := d.checkDatastore(source, false); err != nil {
		return nil, err
	}
	return nil, d.engine.Copy(ctx, source, target, req.sess.ID)
}

// inlineConfig returns the tree of <source><config>, nil if the source is
// not inline.
func inlineConfig(op *etree.Element) (*tree.Node, error) {
	src := op.SelectElement("source")
	if src == nil {
		return nil, nil
	}
	cfg := src.SelectElement("config")
	if cfg == nil {
		return nil, nil
	}
	n, err := tree.FromXML(cfg)
	if err != nil {
		return nil, rpcerr.Malformed(err)
	}
	return n, nil
}

func (d *Dispatcher) deleteConfig(ctx context.Context, req *request) (*tree.Node, error) {
	target, err := datastoreParam(req.op, "target", "")
	if err != nil {
		return nil, err
	}
	if target == "" {
		return nil, missingElement("target")
	}
	if err := d.checkDatastore(target, true); err != nil {
		return nil, err
	}
	return nil, d.engine.Delete(ctx, target, req.sess.ID)
}

func (d *Dispatcher) validate(_ context.Context, req *request) (*tree.Node, error) {
	if !d.caps.Validate {
		return nil, rpcerr.NotSupported("the validate capability is not enabled")
	}
	inline, err := inlineConfig(req.op)
	if err != nil {
		return nil, err
	}
	if inline != nil {
		return nil, datastore.ValidateTree(inline)
	}
	source, err := datastoreParam(req.op, "source", "")
	if err != nil {
		return nil, err
	}
	if source == "" {
		return nil, missingElement("source")
	}
	if err := d.checkDatastore(source, false); err != nil {
		return nil, err
	}
	return nil, d.engine.Validate(source)
}
