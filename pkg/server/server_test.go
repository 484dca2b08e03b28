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

package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/gorilla/websocket"
	"github.com/spf13/afero"
	"github.com/tidwall/gjson"

	"github.com/sdcio/netconf-server/pkg/config"
	"github.com/sdcio/netconf-server/pkg/netconf"
	"github.com/sdcio/netconf-server/pkg/tree"
)

const testConfig = `
netconf:
  websocket: true
  hello-timeout: 2s
datastores:
  initial-config: /etc/netconf/initial.json
  startup-store:
    type: file
    path: /var/lib/netconf/startup.json
`

func newTestServer(t *testing.T) (*Server, afero.Fs, *httptest.Server) {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/etc/netconf/config.yaml":  testConfig,
		"/etc/netconf/initial.json": `{"system":{"hostname":"r1"}}`,
	}
	for name, content := range files {
		if err := afero.WriteFile(fs, name, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg, err := config.NewFromFs(fs, "/etc/netconf/config.yaml")
	if err != nil {
		t.Fatal(err)
	}
	s, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Stop()
	})
	return s, fs, ts
}

func restGet(t *testing.T, url string) string {
	t.Helper()
	rsp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer rsp.Body.Close()
	b, err := io.ReadAll(rsp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if rsp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s = %d: %s", url, rsp.StatusCode, b)
	}
	return string(b)
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	id   int
}

func dialNETCONF(t *testing.T, ts *httptest.Server) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/netconf"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	c := &wsClient{t: t, conn: conn}
	hello := c.read()
	if hello.Root() == nil || hello.Root().Tag != "hello" {
		t.Fatalf("expected server hello, got %v", hello.Root())
	}
	c.write(`<hello xmlns="` + netconf.NamespaceBase + `"><capabilities><capability>` +
		netconf.CapabilityBase10 + `</capability></capabilities></hello>`)
	return c
}

func (c *wsClient) read() *etree.Document {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatal(err)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(b); err != nil {
		c.t.Fatal(err)
	}
	return doc
}

func (c *wsClient) write(s string) {
	c.t.Helper()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(s)); err != nil {
		c.t.Fatal(err)
	}
}

// rpc sends op and fails the test unless the reply carries no rpc-error.
func (c *wsClient) rpc(op string) *etree.Element {
	c.t.Helper()
	c.id++
	c.write(`<rpc message-id="` + strconv.Itoa(c.id) + `" xmlns="` + netconf.NamespaceBase + `">` + op + `</rpc>`)
	reply := c.read().Root()
	if e := reply.SelectElement("rpc-error"); e != nil {
		c.t.Fatalf("rpc %s failed: %s", op, e.SelectElement("error-tag").Text())
	}
	return reply
}

func TestServerEndToEnd(t *testing.T) {
	_, fs, ts := newTestServer(t)

	got := restGet(t, ts.URL+"/restconf/data/system/hostname")
	if v := gjson.Get(got, "data").String(); v != "r1" {
		t.Fatalf("initial hostname = %q, body %s", v, got)
	}

	c := dialNETCONF(t, ts)
	c.rpc(`<edit-config><target><candidate/></target><config><system><hostname>r2</hostname></system></config></edit-config>`)

	// candidate changes stay invisible until commit
	got = restGet(t, ts.URL+"/restconf/data/system/hostname")
	if v := gjson.Get(got, "data").String(); v != "r1" {
		t.Fatalf("hostname before commit = %q", v)
	}

	c.rpc(`<commit/>`)
	got = restGet(t, ts.URL+"/restconf/data/system/hostname")
	if v := gjson.Get(got, "data").String(); v != "r2" {
		t.Fatalf("hostname after commit = %q", v)
	}

	c.rpc(`<copy-config><target><startup/></target><source><running/></source></copy-config>`)
	b, err := afero.ReadFile(fs, "/var/lib/netconf/startup.json")
	if err != nil {
		t.Fatalf("startup not persisted: %v", err)
	}
	if v := gjson.GetBytes(b, "system.hostname").String(); v != "r2" {
		t.Errorf("persisted hostname = %q, file %s", v, b)
	}

	reply := c.rpc(`<get-config><source><startup/></source></get-config>`)
	if h := reply.FindElement("./data/system/hostname"); h == nil || h.Text() != "r2" {
		t.Errorf("startup get-config = %v", h)
	}
}

func TestServerRestartLoadsStartup(t *testing.T) {
	_, fs, ts := newTestServer(t)
	c := dialNETCONF(t, ts)
	c.rpc(`<edit-config><target><candidate/></target><config><system><hostname>persisted</hostname></system></config></edit-config>`)
	c.rpc(`<commit/>`)
	c.rpc(`<copy-config><target><startup/></target><source><running/></source></copy-config>`)

	cfg, err := config.NewFromFs(fs, "/etc/netconf/config.yaml")
	if err != nil {
		t.Fatal(err)
	}
	s2, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Stop()
	ts2 := httptest.NewServer(s2.Handler())
	defer ts2.Close()
	got := restGet(t, ts2.URL+"/restconf/data/system/hostname")
	if v := gjson.Get(got, "data").String(); v != "persisted" {
		t.Errorf("hostname after restart = %q", v)
	}
}

func TestLoadInitialConfig(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content string
		want    string
		wantErr bool
	}{
		{name: "no file", want: "null"},
		{name: "json", path: "/init.json", content: `{"a":{"b":"c"}}`, want: `{"a":{"b":"c"}}`},
		{name: "xml", path: "/init.xml", content: `<config><a><b>c</b></a><l>1</l><l>2</l></config>`, want: `{"a":{"b":"c"},"l":["1","2"]}`},
		{name: "xml without extension", path: "/init", content: ` <data><x>y</x></data>`, want: `{"x":"y"}`},
		{name: "broken json", path: "/init.json", content: `{"a":`, wantErr: true},
		{name: "broken xml", path: "/init.xml", content: `<config><a></config>`, wantErr: true},
		{name: "missing file", path: "/nope.json", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			if tt.content != "" {
				if err := afero.WriteFile(fs, tt.path, []byte(tt.content), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			n, err := LoadInitialConfig(fs, tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadInitialConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			got := "null"
			if n != nil {
				got = mustMarshal(t, n)
			}
			if got != tt.want {
				t.Errorf("LoadInitialConfig() = %s, want %s", got, tt.want)
			}
		})
	}
}

func mustMarshal(t *testing.T, n *tree.Node) string {
	t.Helper()
	b, err := n.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
