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
	"encoding/json"
	"net/http"

	"github.com/beevik/etree"
	log "github.com/sirupsen/logrus"
)

// yangLibraryVersion is the ietf-yang-library revision reported by the
// server.
const yangLibraryVersion = "2019-01-04"

func (rt *Router) root(w http.ResponseWriter, r *http.Request) {
	ops := make(map[string][]any, len(operations))
	for _, op := range operations {
		ops["ietf-netconf:"+op] = []any{nil}
	}
	b, err := json.Marshal(map[string]any{
		"ietf-restconf:restconf": map[string]any{
			"data":                 map[string]any{},
			"operations":           ops,
			"yang-library-version": yangLibraryVersion,
		},
		"capabilities": rt.caps.URIs(),
	})
	if err != nil {
		rt.writeError(w, r, "discovery", err)
		return
	}
	rt.write(w, r, http.StatusOK, b)
}

func (rt *Router) yangLibraryVersion(w http.ResponseWriter, r *http.Request) {
	b, _ := json.Marshal(map[string]string{
		"ietf-restconf:yang-library-version": yangLibraryVersion,
	})
	rt.write(w, r, http.StatusOK, b)
}

// hostMeta answers the RFC 6415 discovery of the RESTCONF root.
func (rt *Router) hostMeta(w http.ResponseWriter, r *http.Request) {
	doc := etree.NewDocument()
	xrd := doc.CreateElement("XRD")
	xrd.CreateAttr("xmlns", "http://docs.oasis-open.org/ns/xri/xrd-1.0")
	link := xrd.CreateElement("Link")
	link.CreateAttr("rel", "restconf")
	link.CreateAttr("href", rt.apiRoot)
	doc.Indent(2)
	b, err := doc.WriteToBytes()
	if err != nil {
		rt.writeError(w, r, "discovery", err)
		return
	}
	w.Header().Set("Content-Type", "application/xrd+xml")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(b); err != nil {
		log.Debugf("failed to write host-meta: %v", err)
	}
}
