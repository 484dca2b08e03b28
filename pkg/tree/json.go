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
	"bytes"
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

var ErrInvalidJSON = errors.New("invalid json document")

// ParseJSON decodes a JSON document keeping the member order of objects.
// Numbers are kept as json.Number.
func ParseJSON(b []byte) (*Node, error) {
	if !gjson.ValidBytes(b) {
		return nil, ErrInvalidJSON
	}
	return fromJSON(gjson.ParseBytes(b), 1)
}

func fromJSON(r gjson.Result, depth int) (*Node, error) {
	if depth > MaxDepth {
		return nil, ErrMaxDepth
	}
	switch {
	case r.IsObject():
		m := NewMap()
		var err error
		r.ForEach(func(k, v gjson.Result) bool {
			var c *Node
			c, err = fromJSON(v, depth+1)
			if err != nil {
				return false
			}
			m.Set(k.String(), c)
			return true
		})
		return m, err
	case r.IsArray():
		l := NewList()
		var err error
		r.ForEach(func(_, v gjson.Result) bool {
			var c *Node
			c, err = fromJSON(v, depth+1)
			if err != nil {
				return false
			}
			l.Append(c)
			return true
		})
		return l, err
	}

	switch r.Type {
	case gjson.Null:
		return NewScalar(nil), nil
	case gjson.True:
		return NewScalar(true), nil
	case gjson.False:
		return NewScalar(false), nil
	case gjson.Number:
		return NewScalar(json.Number(r.Raw)), nil
	}
	return NewScalar(r.String()), nil
}

// MarshalJSON renders n with map members in insertion order.
func (n *Node) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := n.writeJSON(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) writeJSON(buf *bytes.Buffer) error {
	if n == nil {
		buf.WriteString("null")
		return nil
	}
	switch n.kind {
	case KindMap:
		buf.WriteByte('{')
		for i, k := range n.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := n.children[k].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case KindList:
		buf.WriteByte('[')
		for i, it := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	}
	b, err := json.Marshal(n.value)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// UnmarshalJSON decodes into n, see ParseJSON.
func (n *Node) UnmarshalJSON(b []byte) error {
	p, err := ParseJSON(b)
	if err != nil {
		return err
	}
	*n = *p
	return nil
}
