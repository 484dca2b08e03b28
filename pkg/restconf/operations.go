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
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"

	"github.com/sdcio/netconf-server/pkg/datastore"
	"github.com/sdcio/netconf-server/pkg/rpcerr"
	"github.com/sdcio/netconf-server/pkg/session"
)

// operations lists the names accepted under {api-root}/operations.
var operations = []string{"commit", "discard-changes", "copy-config", "validate", "save-config"}

func (rt *Router) invoke(ctx context.Context, sess *session.Session, r *http.Request) (*response, error) {
	name := mux.Vars(r)["name"]
	if i := strings.IndexByte(name, ':'); i >= 0 {
		name = name[i+1:]
	}
	input, err := readInput(r)
	if err != nil {
		return nil, err
	}

	switch name {
	case "commit":
		if !rt.caps.Candidate {
			return nil, rpcerr.NotSupported("the candidate capability is not enabled")
		}
		if err := rt.engine.Commit(ctx, sess.ID, datastore.CommitOptions{}); err != nil {
			return nil, err
		}
		return success(http.StatusOK, "candidate committed"), nil
	case "discard-changes":
		if !rt.caps.Candidate {
			return nil, rpcerr.NotSupported("the candidate capability is not enabled")
		}
		if err := rt.engine.Discard(ctx, sess.ID); err != nil {
			return nil, err
		}
		return success(http.StatusOK, "candidate changes discarded"), nil
	case "copy-config":
		src, err := inputDatastore(input, "source", "")
		if err != nil {
			return nil, err
		}
		dst, err := inputDatastore(input, "target", "")
		if err != nil {
			return nil, err
		}
		for _, ds := range []datastore.Name{src, dst} {
			if err := rt.checkDatastore(ds); err != nil {
				return nil, err
			}
		}
		if err := rt.engine.Copy(ctx, src, dst, sess.ID); err != nil {
			return nil, err
		}
		return success(http.StatusOK, "copied %s to %s", src, dst), nil
	case "validate":
		src, err := inputDatastore(input, "source", datastore.Running)
		if err != nil {
			return nil, err
		}
		if err := rt.checkDatastore(src); err != nil {
			return nil, err
		}
		if err := rt.engine.Validate(src); err != nil {
			return nil, err
		}
		return success(http.StatusOK, "%s is valid", src), nil
	case "save-config":
		if !rt.caps.Startup {
			return nil, rpcerr.NotSupported("the startup capability is not enabled")
		}
		if err := rt.engine.Copy(ctx, datastore.Running, datastore.Startup, sess.ID); err != nil {
			return nil, err
		}
		return success(http.StatusOK, "running saved to startup"), nil
	}
	return nil, rpcerr.New(rpcerr.TypeProtocol, rpcerr.TagUnknownOperation, "unknown operation %q", name)
}

// checkDatastore rejects datastores whose capability is disabled. Writes to
// running are always allowed here.
func (rt *Router) checkDatastore(ds datastore.Name) error {
	switch {
	case ds == datastore.Candidate && !rt.caps.Candidate:
		return rpcerr.NotSupported("the candidate capability is not enabled")
	case ds == datastore.Startup && !rt.caps.Startup:
		return rpcerr.NotSupported("the startup capability is not enabled")
	}
	return nil
}

// readInput returns the operation input, unwrapping an RFC 8040 "input"
// member. An empty body yields an empty input.
func readInput(r *http.Request) (gjson.Result, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return gjson.Result{}, rpcerr.Malformed(err)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return gjson.Result{}, nil
	}
	if !gjson.ValidBytes(b) {
		return gjson.Result{}, rpcerr.New(rpcerr.TypeRPC, rpcerr.TagMalformedMessage, "operation input is not valid JSON")
	}
	res := gjson.ParseBytes(b)
	var input gjson.Result
	res.ForEach(func(k, v gjson.Result) bool {
		key := k.String()
		if i := strings.IndexByte(key, ':'); i >= 0 {
			key = key[i+1:]
		}
		if key == "input" && v.IsObject() {
			input = v
			return false
		}
		return true
	})
	if input.Exists() {
		return input, nil
	}
	return res, nil
}

func inputDatastore(input gjson.Result, field string, dflt datastore.Name) (datastore.Name, error) {
	v := input.Get(field)
	if !v.Exists() {
		if dflt == "" {
			return "", rpcerr.New(rpcerr.TypeProtocol, rpcerr.TagMissingElement, "missing input %q", field)
		}
		return dflt, nil
	}
	return datastore.ParseName(v.String())
}
