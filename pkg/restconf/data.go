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

package restconf

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/beevik/etree"
	"github.com/gorilla/mux"

	"github.com/sdcio/netconf-server/pkg/datastore"
	"github.com/sdcio/netconf-server/pkg/rpcerr"
	"github.com/sdcio/netconf-server/pkg/session"
	"github.com/sdcio/netconf-server/pkg/tree"
)

const maxBodySize = 16 << 20

func requestPath(r *http.Request) (tree.Path, error) {
	p, err := tree.ParsePath(mux.Vars(r)["path"])
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.TypeProtocol, rpcerr.TagInvalidValue, err)
	}
	return p, nil
}

func (rt *Router) getData(_ context.Context, _ *session.Session, r *http.Request) (*response, error) {
	p, err := requestPath(r)
	if err != nil {
		return nil, err
	}
	n, err := rt.engine.Get(datastore.Running, p)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, rpcerr.DataMissing(p.String())
	}
	body, err := dataBody(n)
	if err != nil {
		return nil, rpcerr.OperationFailed(err)
	}
	return &response{status: http.StatusOK, body: body}, nil
}

func dataBody(n *tree.Node) ([]byte, error) {
	b, err := n.MarshalJSON()
	if err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	buf.WriteString(`{"data":`)
	buf.Write(b)
	buf.WriteString("}")
	return buf.Bytes(), nil
}

func (rt *Router) putData(ctx context.Context, sess *session.Session, r *http.Request) (*response, error) {
	return rt.edit(ctx, sess, r, datastore.OperationReplace, http.StatusOK)
}

// postData creates the addressed node, merging into it when it exists.
func (rt *Router) postData(ctx context.Context, sess *session.Session, r *http.Request) (*response, error) {
	return rt.edit(ctx, sess, r, datastore.OperationMerge, http.StatusCreated)
}

func (rt *Router) patchData(ctx context.Context, sess *session.Session, r *http.Request) (*response, error) {
	return rt.edit(ctx, sess, r, datastore.OperationMerge, http.StatusOK)
}

func (rt *Router) edit(ctx context.Context, sess *session.Session, r *http.Request, op datastore.EditOperation, status int) (*response, error) {
	p, err := requestPath(r)
	if err != nil {
		return nil, err
	}
	payload, err := readBody(r)
	if err != nil {
		return nil, err
	}
	payload = unwrap(p, payload)
	if p.IsRoot() && !payload.IsMap() {
		return nil, rpcerr.InvalidValue("the datastore root must be a JSON object")
	}
	edit := datastore.Edit{Path: p, Operation: op, Payload: payload}
	if err := rt.engine.Edit(ctx, datastore.Running, sess.ID, edit); err != nil {
		return nil, err
	}
	return success(status, "%s %s applied", strings.ToUpper(string(op)), p), nil
}

func (rt *Router) deleteData(ctx context.Context, sess *session.Session, r *http.Request) (*response, error) {
	p, err := requestPath(r)
	if err != nil {
		return nil, err
	}
	if p.IsRoot() {
		return nil, rpcerr.NotSupported("the datastore root cannot be deleted")
	}
	edit := datastore.Edit{Path: p, Operation: datastore.OperationDelete}
	if err := rt.engine.Edit(ctx, datastore.Running, sess.ID, edit); err != nil {
		return nil, err
	}
	return success(http.StatusOK, "deleted %s", p), nil
}

// readBody parses a JSON or XML request body.
func readBody(r *http.Request) (*tree.Node, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, rpcerr.Malformed(err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, rpcerr.Malformed(errors.New("request body is empty"))
	}
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasSuffix(mt, "xml") {
		return parseXMLBody(b)
	}
	n, err := tree.ParseJSON(b)
	if err != nil {
		return nil, rpcerr.Malformed(err)
	}
	return n, nil
}

// parseXMLBody returns {root-name: content} for an XML document.
func parseXMLBody(b []byte) (*tree.Node, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(b); err != nil {
		return nil, rpcerr.Malformed(err)
	}
	root := doc.Root()
	if root == nil {
		return nil, rpcerr.Malformed(errors.New("request body holds no element"))
	}
	wrapper := etree.NewElement("body")
	wrapper.AddChild(root)
	n, err := tree.FromXML(wrapper)
	if err != nil {
		return nil, rpcerr.Malformed(err)
	}
	return n, nil
}

// unwrap strips the enclosing object of an RFC 8040 style body, whose single
// member is named after the addressed node. A keyed list entry may come as a
// one element array.
func unwrap(p tree.Path, n *tree.Node) *tree.Node {
	if p.IsRoot() || !n.IsMap() || n.Len() != 1 {
		return n
	}
	key := n.Keys()[0]
	if i := strings.IndexByte(key, ':'); i >= 0 {
		key = key[i+1:]
	}
	last := p.Last()
	if key != last.Name {
		return n
	}
	v, _ := n.Get(n.Keys()[0])
	if len(last.Keys) > 0 && v.IsList() && v.Len() == 1 {
		return v.Items()[0]
	}
	return v
}
