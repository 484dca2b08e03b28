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
	"strconv"

	"github.com/beevik/etree"
)

const (
	NamespaceBase = "urn:ietf:params:xml:ns:netconf:base:1.0"

	CapabilityBase10          = "urn:ietf:params:netconf:base:1.0"
	CapabilityBase11          = "urn:ietf:params:netconf:base:1.1"
	CapabilityCandidate       = "urn:ietf:params:netconf:capability:candidate:1.0"
	CapabilityStartup         = "urn:ietf:params:netconf:capability:startup:1.0"
	CapabilityValidate        = "urn:ietf:params:netconf:capability:validate:1.1"
	CapabilityWritableRunning = "urn:ietf:params:netconf:capability:writable-running:1.0"
	CapabilityConfirmedCommit = "urn:ietf:params:netconf:capability:confirmed-commit:1.1"
	CapabilityXPath           = "urn:ietf:params:netconf:capability:xpath:1.0"
)

// Capabilities is the optional feature set advertised in the server hello.
type Capabilities struct {
	Candidate       bool
	Startup         bool
	Validate        bool
	WritableRunning bool
	ConfirmedCommit bool
}

// DefaultCapabilities enables every optional capability.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		Candidate:       true,
		Startup:         true,
		Validate:        true,
		WritableRunning: true,
		ConfirmedCommit: true,
	}
}

// URIs lists the advertised capability URIs, base capabilities first.
func (c Capabilities) URIs() []string {
	uris := []string{CapabilityBase10, CapabilityBase11}
	if c.Candidate {
		uris = append(uris, CapabilityCandidate)
	}
	if c.Startup {
		uris = append(uris, CapabilityStartup)
	}
	if c.Validate {
		uris = append(uris, CapabilityValidate)
	}
	if c.WritableRunning {
		uris = append(uris, CapabilityWritableRunning)
	}
	// confirmed commit works on top of the candidate datastore
	if c.ConfirmedCommit && c.Candidate {
		uris = append(uris, CapabilityConfirmedCommit)
	}
	return append(uris, CapabilityXPath)
}

// Hello renders the server hello carrying the session id.
func (c Capabilities) Hello(sessionID uint32) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	hello := doc.CreateElement("hello")
	hello.CreateAttr("xmlns", NamespaceBase)
	caps := hello.CreateElement("capabilities")
	for _, uri := range c.URIs() {
		caps.CreateElement("capability").SetText(uri)
	}
	hello.CreateElement("session-id").SetText(strconv.FormatUint(uint64(sessionID), 10))
	return doc.WriteToBytes()
}

// parseHello returns the capabilities announced by a client hello.
func parseHello(b []byte) ([]string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(b); err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil || root.Tag != "hello" {
		return nil, errNotHello
	}
	var caps []string
	for _, c := range root.FindElements("./capabilities/capability") {
		caps = append(caps, c.Text())
	}
	return caps, nil
}
