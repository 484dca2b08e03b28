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
	"strings"

	"github.com/beevik/etree"
)

// FromXML converts the child elements of e into a map. Element names are
// taken without namespace prefix. Repeated sibling elements become a list,
// an element without child elements becomes a scalar holding its trimmed
// text and an empty element becomes a null scalar.
func FromXML(e *etree.Element) (*Node, error) {
	return fromXMLChildren(e, 1)
}

func fromXMLChildren(e *etree.Element, depth int) (*Node, error) {
	if depth > MaxDepth {
		return nil, ErrMaxDepth
	}
	m := NewMap()
	for _, c := range e.ChildElements() {
		v, err := fromXMLElement(c, depth+1)
		if err != nil {
			return nil, err
		}
		existing, ok := m.Get(c.Tag)
		switch {
		case !ok:
			m.Set(c.Tag, v)
		case existing.IsList() && existing.collected:
			existing.Append(v)
		default:
			l := NewList(existing, v)
			l.collected = true
			m.Set(c.Tag, l)
		}
	}
	// the collected marker only lives for the duration of the conversion
	for _, k := range m.keys {
		m.children[k].collected = false
	}
	return m, nil
}

func fromXMLElement(e *etree.Element, depth int) (*Node, error) {
	if len(e.ChildElements()) > 0 {
		return fromXMLChildren(e, depth)
	}
	text := strings.TrimSpace(e.Text())
	if text == "" {
		return NewScalar(nil), nil
	}
	return NewScalar(text), nil
}

// ToXML renders the children of the map n as child elements of parent.
func ToXML(parent *etree.Element, n *Node) {
	if !n.IsMap() {
		if n != nil && !n.IsNull() {
			parent.SetText(n.String())
		}
		return
	}
	for _, k := range n.keys {
		addXMLElement(parent, k, n.children[k])
	}
}

func addXMLElement(parent *etree.Element, name string, n *Node) {
	switch n.Kind() {
	case KindList:
		for _, it := range n.items {
			addXMLElement(parent, name, it)
		}
	case KindMap:
		e := parent.CreateElement(name)
		for _, k := range n.keys {
			addXMLElement(e, k, n.children[k])
		}
	default:
		e := parent.CreateElement(name)
		if !n.IsNull() {
			e.SetText(n.String())
		}
	}
}
