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
	"fmt"
	"runtime/debug"

	"github.com/beevik/etree"
	log "github.com/sirupsen/logrus"

	"github.com/sdcio/netconf-server/pkg/datastore"
	"github.com/sdcio/netconf-server/pkg/metrics"
	"github.com/sdcio/netconf-server/pkg/rpcerr"
	"github.com/sdcio/netconf-server/pkg/session"
	"github.com/sdcio/netconf-server/pkg/tree"
)

var errNotHello = errors.New("expected a hello message")

// Dispatcher turns <rpc> messages into datastore and session operations.
// It holds no per session state and is shared by all transports.
type Dispatcher struct {
	engine   *datastore.Engine
	sessions *session.Manager
	caps     Capabilities
	metrics  *metrics.Metrics

	handlers map[string]handlerFunc
}

// request is one parsed <rpc>.
type request struct {
	sess *session.Session
	rpc  *etree.Element
	op   *etree.Element
	// set by close-session
	closeSession bool
}

// handlerFunc returns the reply data, or nil for <ok/>.
type handlerFunc func(ctx context.Context, req *request) (*tree.Node, error)

func NewDispatcher(engine *datastore.Engine, sessions *session.Manager, caps Capabilities, m *metrics.Metrics) *Dispatcher {
	d := &Dispatcher{
		engine:   engine,
		sessions: sessions,
		caps:     caps,
		metrics:  m,
	}
	d.handlers = map[string]handlerFunc{
		"get":             d.get,
		"get-config":      d.getConfig,
		"edit-config":     d.editConfig,
		"lock":            d.lock,
		"unlock":          d.unlock,
		"commit":          d.commit,
		"cancel-commit":   d.cancelCommit,
		"discard-changes": d.discardChanges,
		"close-session":   d.closeSession,
		"kill-session":    d.killSession,
		"copy-config":     d.copyConfig,
		"delete-config":   d.deleteConfig,
		"validate":        d.validate,
	}
	return d
}

func (d *Dispatcher) Capabilities() Capabilities {
	return d.caps
}

// Handle processes one message and returns the serialized <rpc-reply>.
// closeSession reports that the session asked to be closed.
func (d *Dispatcher) Handle(ctx context.Context, sess *session.Session, msg []byte) (reply []byte, closeSession bool) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(msg); err != nil {
		return d.errorReply(nil, "", rpcerr.Malformed(err)), false
	}
	rpc := doc.Root()
	if rpc == nil || rpc.Tag != "rpc" {
		return d.errorReply(nil, "", rpcerr.Malformed(errors.New("expected an rpc element"))), false
	}

	req := &request{sess: sess, rpc: rpc}
	// the operation is the first child naming a known one
	opName := ""
	var h handlerFunc
	for _, c := range rpc.ChildElements() {
		if opName == "" {
			opName = c.Tag
		}
		if f, ok := d.handlers[c.Tag]; ok {
			req.op, opName, h = c, c.Tag, f
			break
		}
	}
	sess.Touch()

	log.WithFields(log.Fields{
		"session-id": sess.ID,
		"message-id": rpc.SelectAttrValue("message-id", ""),
	}).Debugf("received rpc %q", opName)
	log.Tracef("session %d rpc: %s", sess.ID, msg)

	if h == nil {
		d.metrics.Operation(metrics.ProtocolNETCONF, "unknown")
		err := rpcerr.NotSupported("operation %q is not supported", opName)
		return d.errorReply(rpc, "unknown", err), false
	}
	d.metrics.Operation(metrics.ProtocolNETCONF, opName)

	data, err := d.call(ctx, h, req)
	if err != nil {
		return d.errorReply(rpc, opName, err), req.closeSession
	}
	return d.reply(rpc, data), req.closeSession
}

// call runs h, converting a panic into operation-failed.
func (d *Dispatcher) call(ctx context.Context, h handlerFunc, req *request) (data *tree.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic handling %s on session %d: %v\n%s", req.op.Tag, req.sess.ID, r, debug.Stack())
			data = nil
			err = rpcerr.OperationFailed(fmt.Errorf("internal error: %v", r))
		}
	}()
	return h(ctx, req)
}

// newReply starts an <rpc-reply> carrying the attributes of the request.
// A missing message-id is tolerated.
func newReply(rpc *etree.Element) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	reply := doc.CreateElement("rpc-reply")
	hasNS := false
	if rpc != nil {
		for _, a := range rpc.Attr {
			if a.Space == "" && a.Key == "xmlns" {
				hasNS = true
			}
			reply.CreateAttr(a.FullKey(), a.Value)
		}
	}
	if !hasNS {
		reply.CreateAttr("xmlns", NamespaceBase)
	}
	return doc, reply
}

func (d *Dispatcher) reply(rpc *etree.Element, data *tree.Node) []byte {
	doc, reply := newReply(rpc)
	if data == nil {
		reply.CreateElement("ok")
	} else {
		tree.ToXML(reply.CreateElement("data"), data)
	}
	b, err := doc.WriteToBytes()
	if err != nil {
		log.Errorf("failed to render rpc-reply: %v", err)
	}
	return b
}

func (d *Dispatcher) errorReply(rpc *etree.Element, opName string, err error) []byte {
	e := rpcerr.From(err)
	if opName == "" {
		opName = "malformed"
	}
	d.metrics.Failure(metrics.ProtocolNETCONF, opName, string(e.Tag))
	log.Debugf("rpc %s failed: %v", opName, e)

	doc, reply := newReply(rpc)
	appendRPCError(reply, e)
	b, werr := doc.WriteToBytes()
	if werr != nil {
		log.Errorf("failed to render rpc-reply: %v", werr)
	}
	return b
}

func appendRPCError(reply *etree.Element, e *rpcerr.Error) {
	re := reply.CreateElement("rpc-error")
	re.CreateElement("error-type").SetText(string(e.Type))
	re.CreateElement("error-tag").SetText(string(e.Tag))
	re.CreateElement("error-severity").SetText(e.Severity)
	if e.Path != "" {
		re.CreateElement("error-path").SetText(e.Path)
	}
	if e.Message != "" {
		msg := re.CreateElement("error-message")
		msg.CreateAttr("xml:lang", "en")
		msg.SetText(e.Message)
	}
	if e.Tag == rpcerr.TagLockDenied {
		re.CreateElement("error-info").CreateElement("session-id").SetText(fmt.Sprintf("%d", e.SessionID))
	}
}
