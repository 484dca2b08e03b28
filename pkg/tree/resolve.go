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
	"errors"
	"fmt"
)

var ErrKeyMismatch = errors.New("list entry key does not match the path predicate")

// matchEntry reports whether the list entry e carries all key values.
func matchEntry(e *Node, keys []KeyValue) bool {
	if !e.IsMap() {
		return false
	}
	for _, k := range keys {
		v, ok := e.Get(k.Name)
		if !ok || !v.IsScalar() || v.String() != k.Value {
			return false
		}
	}
	return true
}

func newEntry(keys []KeyValue) *Node {
	m := NewMap()
	for _, k := range keys {
		m.Set(k.Name, NewScalar(k.Value))
	}
	return m
}

// child resolves pe directly below the map n.
func child(n *Node, pe PathElem) (*Node, bool) {
	c, ok := n.Get(pe.Name)
	if !ok {
		return nil, false
	}
	if len(pe.Keys) == 0 {
		return c, true
	}
	switch {
	case c.IsList():
		for _, it := range c.items {
			if matchEntry(it, pe.Keys) {
				return it, true
			}
		}
	case c.IsMap():
		// a list holding a single entry arrives from XML as a plain map
		if matchEntry(c, pe.Keys) {
			return c, true
		}
	}
	return nil, false
}

// Lookup resolves p below root. The returned node is part of root, not a copy.
func Lookup(root *Node, p Path) (*Node, bool) {
	cur := root
	for _, pe := range p {
		if !cur.IsMap() {
			return nil, false
		}
		c, ok := child(cur, pe)
		if !ok {
			return nil, false
		}
		cur = c
	}
	return cur, true
}

// Ensure resolves p below root, creating missing containers on the way.
// A missing keyed list entry is created with its key leaves pre-populated.
func Ensure(root *Node, p Path) (*Node, error) {
	if !root.IsMap() {
		return nil, ErrNotContainer
	}
	cur := root
	for i, pe := range p {
		next, err := ensureChild(cur, pe)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p[:i+1], err)
		}
		cur = next
	}
	return cur, nil
}

func ensureChild(n *Node, pe PathElem) (*Node, error) {
	if !n.IsMap() {
		return nil, ErrNotContainer
	}
	c, ok := n.Get(pe.Name)
	if len(pe.Keys) == 0 {
		if ok && !c.IsNull() {
			return c, nil
		}
		m := NewMap()
		n.Set(pe.Name, m)
		return m, nil
	}

	switch {
	case !ok || c.IsNull():
		e := newEntry(pe.Keys)
		n.Set(pe.Name, NewList(e))
		return e, nil
	case c.IsList():
		for _, it := range c.items {
			if matchEntry(it, pe.Keys) {
				return it, nil
			}
		}
		e := newEntry(pe.Keys)
		c.Append(e)
		return e, nil
	case c.IsMap():
		if matchEntry(c, pe.Keys) {
			return c, nil
		}
		e := newEntry(pe.Keys)
		n.Set(pe.Name, NewList(c, e))
		return e, nil
	}
	return nil, ErrNotContainer
}

// Put replaces the node addressed by p with v, creating the path as needed.
// When p ends in a keyed list entry, v must be a map; missing key leaves are
// injected and conflicting ones rejected.
func Put(root *Node, p Path, v *Node) error {
	if p.IsRoot() {
		return errors.New("cannot put at the root path")
	}
	parent, err := Ensure(root, p.Parent())
	if err != nil {
		return err
	}
	if !parent.IsMap() {
		return fmt.Errorf("%s: %w", p.Parent(), ErrNotContainer)
	}
	last := p.Last()
	if len(last.Keys) == 0 {
		parent.Set(last.Name, v)
		return nil
	}

	if !v.IsMap() {
		return fmt.Errorf("%s: list entry must be a container", p)
	}
	for _, k := range last.Keys {
		kv, ok := v.Get(k.Name)
		switch {
		case !ok || kv.IsNull():
			v.Set(k.Name, NewScalar(k.Value))
		case kv.String() != k.Value:
			return fmt.Errorf("%s: %w", p, ErrKeyMismatch)
		}
	}

	c, ok := parent.Get(last.Name)
	switch {
	case !ok || c.IsNull():
		parent.Set(last.Name, NewList(v))
	case c.IsList():
		for i, it := range c.items {
			if matchEntry(it, last.Keys) {
				c.SetItem(i, v)
				return nil
			}
		}
		c.Append(v)
	case c.IsMap():
		if matchEntry(c, last.Keys) {
			parent.Set(last.Name, v)
			return nil
		}
		parent.Set(last.Name, NewList(c, v))
	default:
		return fmt.Errorf("%s: %w", p, ErrNotContainer)
	}
	return nil
}

// Remove deletes the node addressed by p. It reports whether anything was removed.
func Remove(root *Node, p Path) bool {
	if p.IsRoot() {
		return false
	}
	parent, ok := Lookup(root, p.Parent())
	if !ok || !parent.IsMap() {
		return false
	}
	last := p.Last()
	if len(last.Keys) == 0 {
		return parent.Delete(last.Name)
	}
	c, ok := parent.Get(last.Name)
	if !ok {
		return false
	}
	switch {
	case c.IsList():
		for i, it := range c.items {
			if matchEntry(it, last.Keys) {
				c.RemoveItem(i)
				return true
			}
		}
	case c.IsMap():
		if matchEntry(c, last.Keys) {
			return parent.Delete(last.Name)
		}
	}
	return false
}
