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

// Package tree implements the schema-less configuration tree shared by the
// NETCONF and RESTCONF front ends: an ordered map of scalars, nested maps and
// lists of maps, the path resolver addressing into it and the merge, prune
// and filter visitors operating on it.
package tree

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// MaxDepth bounds the nesting accepted by the parsers and visitors.
const MaxDepth = 128

var ErrMaxDepth = fmt.Errorf("tree exceeds maximum depth of %d", MaxDepth)

var ErrNotContainer = errors.New("path traverses a leaf value")

type Kind uint8

const (
	KindScalar Kind = iota
	KindMap
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	}
	return "unknown"
}

// Node is one element of a configuration tree. Exactly one of the scalar
// value, the ordered children or the list items is meaningful, depending on
// the Kind.
type Node struct {
	kind Kind

	// KindScalar: string, bool, json.Number or nil
	value any

	// KindMap
	keys     []string
	children map[string]*Node

	// KindList
	items []*Node
	// set on lists assembled from repeated XML siblings during conversion
	collected bool
}

func NewMap() *Node {
	return &Node{
		kind:     KindMap,
		children: map[string]*Node{},
	}
}

func NewList(items ...*Node) *Node {
	return &Node{
		kind:  KindList,
		items: items,
	}
}

// NewScalar wraps v as a leaf value. Numeric Go types are stored as
// json.Number so that values parsed from JSON and values built in code
// compare equal.
func NewScalar(v any) *Node {
	switch t := v.(type) {
	case nil, string, bool, json.Number:
	case int:
		v = json.Number(strconv.Itoa(t))
	case int64:
		v = json.Number(strconv.FormatInt(t, 10))
	case uint32:
		v = json.Number(strconv.FormatUint(uint64(t), 10))
	case uint64:
		v = json.Number(strconv.FormatUint(t, 10))
	case float64:
		v = json.Number(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		v = fmt.Sprint(t)
	}
	return &Node{kind: KindScalar, value: v}
}

func (n *Node) Kind() Kind { return n.kind }

func (n *Node) IsMap() bool    { return n != nil && n.kind == KindMap }
func (n *Node) IsList() bool   { return n != nil && n.kind == KindList }
func (n *Node) IsScalar() bool { return n != nil && n.kind == KindScalar }

// IsNull reports whether n is a scalar without value (JSON null, empty XML element).
func (n *Node) IsNull() bool { return n.IsScalar() && n.value == nil }

func (n *Node) Value() any { return n.value }

// String returns the canonical string form of a scalar.
func (n *Node) String() string {
	if n == nil {
		return ""
	}
	switch n.kind {
	case KindMap:
		return fmt.Sprintf("map[%d]", len(n.keys))
	case KindList:
		return fmt.Sprintf("list[%d]", len(n.items))
	}
	return scalarString(n.value)
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	}
	return fmt.Sprint(v)
}

// Keys returns the child names of a map in insertion order.
func (n *Node) Keys() []string {
	if !n.IsMap() {
		return nil
	}
	return append([]string(nil), n.keys...)
}

func (n *Node) Len() int {
	switch {
	case n.IsMap():
		return len(n.keys)
	case n.IsList():
		return len(n.items)
	}
	return 0
}

func (n *Node) Get(key string) (*Node, bool) {
	if !n.IsMap() {
		return nil, false
	}
	c, ok := n.children[key]
	return c, ok
}

// Set adds or replaces a child of a map. Replacing keeps the original position.
func (n *Node) Set(key string, c *Node) {
	if _, exists := n.children[key]; !exists {
		n.keys = append(n.keys, key)
	}
	n.children[key] = c
}

func (n *Node) Delete(key string) bool {
	if _, exists := n.children[key]; !exists {
		return false
	}
	delete(n.children, key)
	for i, k := range n.keys {
		if k == key {
			n.keys = append(n.keys[:i], n.keys[i+1:]...)
			break
		}
	}
	return true
}

func (n *Node) Items() []*Node {
	if !n.IsList() {
		return nil
	}
	return n.items
}

func (n *Node) Append(items ...*Node) {
	n.items = append(n.items, items...)
}

func (n *Node) SetItem(i int, c *Node) {
	n.items[i] = c
}

func (n *Node) RemoveItem(i int) {
	n.items = append(n.items[:i], n.items[i+1:]...)
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	switch n.kind {
	case KindMap:
		c := &Node{
			kind:     KindMap,
			keys:     make([]string, len(n.keys)),
			children: make(map[string]*Node, len(n.children)),
		}
		copy(c.keys, n.keys)
		for k, v := range n.children {
			c.children[k] = v.Clone()
		}
		return c
	case KindList:
		c := &Node{
			kind:  KindList,
			items: make([]*Node, 0, len(n.items)),
		}
		for _, it := range n.items {
			c.items = append(c.items, it.Clone())
		}
		return c
	}
	return &Node{kind: KindScalar, value: n.value}
}

// Equal reports structural equality. Map key order is not significant,
// list order is.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.kind != o.kind {
		return false
	}
	switch n.kind {
	case KindMap:
		if len(n.keys) != len(o.keys) {
			return false
		}
		for k, v := range n.children {
			ov, ok := o.children[k]
			if !ok || !v.Equal(ov) {
				return false
			}
		}
		return true
	case KindList:
		if len(n.items) != len(o.items) {
			return false
		}
		for i := range n.items {
			if !n.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	}
	if (n.value == nil) != (o.value == nil) {
		return false
	}
	return scalarString(n.value) == scalarString(o.value)
}

// Depth returns the nesting depth of n, a scalar being depth 1.
func (n *Node) Depth() int {
	if n == nil {
		return 0
	}
	max := 0
	switch n.kind {
	case KindMap:
		for _, c := range n.children {
			if d := c.Depth(); d > max {
				max = d
			}
		}
	case KindList:
		for _, c := range n.items {
			if d := c.Depth(); d > max {
				max = d
			}
		}
	}
	return max + 1
}

// FromValue builds a tree from plain Go values (map[string]any, []any and
// scalars). Map keys are sorted since Go maps carry no order; intended for
// tests and programmatic construction.
func FromValue(v any) *Node {
	switch t := v.(type) {
	case *Node:
		return t
	case map[string]any:
		m := NewMap()
		for _, k := range sortedKeys(t) {
			m.Set(k, FromValue(t[k]))
		}
		return m
	case []any:
		l := NewList()
		for _, it := range t {
			l.Append(FromValue(it))
		}
		return l
	}
	return NewScalar(v)
}

// ToValue is the inverse of FromValue.
func (n *Node) ToValue() any {
	if n == nil {
		return nil
	}
	switch n.kind {
	case KindMap:
		m := make(map[string]any, len(n.keys))
		for k, v := range n.children {
			m[k] = v.ToValue()
		}
		return m
	case KindList:
		l := make([]any, 0, len(n.items))
		for _, it := range n.items {
			l = append(l, it.ToValue())
		}
		return l
	}
	return n.value
}
