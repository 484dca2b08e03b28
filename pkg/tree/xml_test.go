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

package tree

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/google/go-cmp/cmp"
)

func TestFromXML(t *testing.T) {
	tests := []struct {
		name string
		xml  string
		want string
	}{
		{
			name: "nested containers",
			xml:  `<config><system><hostname>r1</hostname><ntp><server>10.0.0.1</server></ntp></system></config>`,
			want: `{"system":{"hostname":"r1","ntp":{"server":"10.0.0.1"}}}`,
		},
		{
			name: "repeated siblings become a list",
			xml: `<config xmlns:if="urn:ietf:params:xml:ns:yang:ietf-interfaces">
				<if:interfaces>
					<if:interface><if:name>eth0</if:name><if:mtu>1500</if:mtu></if:interface>
					<if:interface><if:name>eth1</if:name></if:interface>
					<if:interface><if:name>eth2</if:name></if:interface>
				</if:interfaces>
			</config>`,
			want: `{"interfaces":{"interface":[{"name":"eth0","mtu":"1500"},{"name":"eth1"},{"name":"eth2"}]}}`,
		},
		{
			name: "empty element is null",
			xml:  `<config><a><q/></a></config>`,
			want: `{"a":{"q":null}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := etree.NewDocument()
			if err := doc.ReadFromString(tt.xml); err != nil {
				t.Fatal(err)
			}
			got, err := FromXML(doc.Root())
			if err != nil {
				t.Fatal(err)
			}
			if d := diffNodes(mustJSON(t, tt.want), got); d != "" {
				t.Errorf("FromXML() diff(-want +got):\n%s", d)
			}
		})
	}
}

func TestToXML(t *testing.T) {
	n := mustJSON(t, `{"interfaces":{"interface":[{"name":"eth0","mtu":1500},{"name":"eth1","enabled":true}]},"flag":null}`)
	doc := etree.NewDocument()
	data := doc.CreateElement("data")
	ToXML(data, n)
	got, err := doc.WriteToString()
	if err != nil {
		t.Fatal(err)
	}
	want := `<data><interfaces><interface><name>eth0</name><mtu>1500</mtu></interface><interface><name>eth1</name><enabled>true</enabled></interface></interfaces><flag/></data>`
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("ToXML() diff(-want +got):\n%s", d)
	}
}
