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

// Merge overlays src onto dst key by key. Where both sides hold a map the
// merge recurses, otherwise the incoming value wins. Keys of dst not present
// in src are untouched. A null incoming value never replaces an existing
// container. Both arguments must be maps.
//
// Lists merge entry by entry: an incoming entry is merged into the existing
// entry carrying the same key leaf and appended when there is none. A map
// standing for a single list entry takes part in this when it carries a
// conventional key leaf (see keyLeaves), so merging an entry with another key
// turns it into a list instead of rewriting the key.
func Merge(dst, src *Node) error {
	return merge(dst, src, 1)
}

func merge(dst, src *Node, depth int) error {
	if depth > MaxDepth {
		return ErrMaxDepth
	}
	if !dst.IsMap() || !src.IsMap() {
		return ErrNotContainer
	}
	for _, k := range src.keys {
		sv := src.children[k]
		dv, ok := dst.children[k]
		switch {
		case ok && dv.IsList() && (sv.IsList() || sv.IsMap() || (isLeafList(dv) && sv.IsScalar() && !sv.IsNull())):
			if err := mergeEntries(dv, asEntries(sv), depth+1); err != nil {
				return err
			}
		case ok && dv.IsMap() && sv.IsList() && hasEntryKey(dv):
			l := NewList(dv)
			if err := mergeEntries(l, sv.items, depth+1); err != nil {
				return err
			}
			dst.Set(k, l)
		case ok && dv.IsMap() && sv.IsMap() && distinctEntries(dv, sv):
			dst.Set(k, NewList(dv, sv.Clone()))
		case ok && dv.IsMap() && sv.IsMap():
			if err := merge(dv, sv, depth+1); err != nil {
				return err
			}
		case ok && sv.IsNull() && !dv.IsScalar():
		default:
			dst.Set(k, sv.Clone())
		}
	}
	return nil
}

// keyLeaves are the leaf names taken as list keys when nothing else tells a
// single entry apart from a container.
var keyLeaves = map[string]struct{}{
	"name":  {},
	"id":    {},
	"index": {},
	"key":   {},
}

func namedKey(n *Node) (KeyValue, bool) {
	for _, k := range n.keys {
		if _, ok := keyLeaves[k]; !ok {
			continue
		}
		if c := n.children[k]; c.IsScalar() && !c.IsNull() {
			return KeyValue{Name: k, Value: c.String()}, true
		}
	}
	return KeyValue{}, false
}

// entryKey returns the leaf identifying the list entry n. Without a
// conventional key leaf the first child is used when it is a leaf, list keys
// being encoded ahead of the other children.
func entryKey(n *Node) (KeyValue, bool) {
	if !n.IsMap() || len(n.keys) == 0 {
		return KeyValue{}, false
	}
	if kv, ok := namedKey(n); ok {
		return kv, true
	}
	first := n.keys[0]
	if c := n.children[first]; c.IsScalar() && !c.IsNull() {
		return KeyValue{Name: first, Value: c.String()}, true
	}
	return KeyValue{}, false
}

func hasEntryKey(n *Node) bool {
	_, ok := entryKey(n)
	return ok
}

// distinctEntries reports whether the maps a and b are two entries of the
// same list, both keyed by the same conventional leaf with different values.
func distinctEntries(a, b *Node) bool {
	ka, ok := namedKey(a)
	if !ok {
		return false
	}
	kb, ok := namedKey(b)
	return ok && ka.Name == kb.Name && ka.Value != kb.Value
}

func isLeafList(l *Node) bool {
	for _, it := range l.items {
		if !it.IsScalar() {
			return false
		}
	}
	return true
}

func asEntries(n *Node) []*Node {
	if n.IsList() {
		return n.items
	}
	return []*Node{n}
}

// mergeEntries merges each incoming entry into the list entry it matches, or
// appends it. Scalars match by value, so leaf-list values are added once.
func mergeEntries(list *Node, entries []*Node, depth int) error {
	if depth > MaxDepth {
		return ErrMaxDepth
	}
	for _, e := range entries {
		if e.IsNull() {
			continue
		}
		i := findEntry(list, e)
		switch {
		case i < 0:
			list.Append(e.Clone())
		case e.IsMap() && list.items[i].IsMap():
			if err := merge(list.items[i], e, depth+1); err != nil {
				return err
			}
		default:
			list.SetItem(i, e.Clone())
		}
	}
	return nil
}

func findEntry(list *Node, e *Node) int {
	if e.IsScalar() {
		for i, it := range list.items {
			if it.IsScalar() && it.String() == e.String() {
				return i
			}
		}
		return -1
	}
	kv, ok := entryKey(e)
	if !ok {
		return -1
	}
	for i, it := range list.items {
		if matchEntry(it, []KeyValue{kv}) {
			return i
		}
	}
	return -1
}

// Prune removes from dst the keys named by src. A leaf, null or empty map in
// src deletes the corresponding key, a non-empty map over a map recurses and
// a list names entries to delete by their scalar leaves. Keys missing in dst
// are ignored.
func Prune(dst, src *Node) error {
	return prune(dst, src, 1)
}

func prune(dst, src *Node, depth int) error {
	if depth > MaxDepth {
		return ErrMaxDepth
	}
	if !dst.IsMap() || !src.IsMap() {
		return nil
	}
	for _, k := range src.Keys() {
		sv := src.children[k]
		dv, ok := dst.children[k]
		if !ok {
			continue
		}
		switch {
		case sv.IsMap() && sv.Len() > 0 && dv.IsMap():
			if err := prune(dv, sv, depth+1); err != nil {
				return err
			}
		case dv.IsList() && (sv.IsList() || (sv.IsMap() && sv.Len() > 0)):
			entries := sv.Items()
			if sv.IsMap() {
				entries = []*Node{sv}
			}
			if err := pruneEntries(dv, entries, depth+1); err != nil {
				return err
			}
		default:
			dst.Delete(k)
		}
	}
	return nil
}

// pruneEntries removes or recurses into the entries of list matching each of
// the selectors. A selector matches on its scalar leaves; if it carries
// nothing but scalars the whole entry goes, otherwise its container children
// are pruned from the entry.
func pruneEntries(list *Node, selectors []*Node, depth int) error {
	for _, sel := range selectors {
		if !sel.IsMap() {
			continue
		}
		keys, nested := splitSelector(sel)
		for i := 0; i < len(list.items); i++ {
			if !matchEntry(list.items[i], keys) {
				continue
			}
			if nested.Len() == 0 {
				list.RemoveItem(i)
				i--
				continue
			}
			if err := prune(list.items[i], nested, depth); err != nil {
				return err
			}
		}
	}
	return nil
}

func splitSelector(sel *Node) ([]KeyValue, *Node) {
	keys := []KeyValue{}
	nested := NewMap()
	for _, k := range sel.keys {
		c := sel.children[k]
		if c.IsScalar() && !c.IsNull() {
			keys = append(keys, KeyValue{Name: k, Value: c.String()})
			continue
		}
		nested.Set(k, c)
	}
	return keys, nested
}

// Filter applies a NETCONF subtree filter to data and returns a new tree
// holding only the selected nodes. A nil filter selects everything. The
// result is never nil for a map input.
func Filter(data, filter *Node) *Node {
	if filter == nil {
		return data.Clone()
	}
	r := filterNode(data, filter, 1)
	if r == nil && data.IsMap() {
		return NewMap()
	}
	return r
}

func filterNode(data, f *Node, depth int) *Node {
	if depth > MaxDepth || data == nil {
		return nil
	}
	switch {
	case f.IsScalar():
		// selection node, or content match node on a leaf
		if f.IsNull() || f.String() == "" {
			return data.Clone()
		}
		if data.IsScalar() && data.String() == f.String() {
			return data.Clone()
		}
		return nil
	case f.IsList():
		// sibling filters for the same node, the result is their union
		var out *Node
		for _, it := range f.items {
			r := filterNode(data, it, depth)
			if r == nil {
				continue
			}
			if out == nil {
				out = r
				continue
			}
			out = union(out, r)
		}
		return out
	}

	switch {
	case data.IsMap():
		return filterMap(data, f, depth)
	case data.IsList():
		out := NewList()
		for _, it := range data.items {
			if r := filterMap(it, f, depth); r != nil {
				out.Append(r)
			}
		}
		if out.Len() == 0 {
			return nil
		}
		return out
	}
	return nil
}

func isContentMatch(n *Node) bool {
	return n.IsScalar() && !n.IsNull() && n.String() != ""
}

func filterMap(data, f *Node, depth int) *Node {
	if !data.IsMap() {
		return nil
	}
	if f.Len() == 0 {
		return data.Clone()
	}
	onlyContentMatch := true
	for _, k := range f.keys {
		fv := f.children[k]
		if !isContentMatch(fv) {
			onlyContentMatch = false
			continue
		}
		dv, ok := data.Get(k)
		if !ok || !dv.IsScalar() || dv.String() != fv.String() {
			return nil
		}
	}
	if onlyContentMatch {
		return data.Clone()
	}

	out := NewMap()
	for _, k := range f.keys {
		dv, ok := data.Get(k)
		if !ok {
			continue
		}
		fv := f.children[k]
		if isContentMatch(fv) {
			out.Set(k, dv.Clone())
			continue
		}
		if r := filterNode(dv, fv, depth+1); r != nil {
			out.Set(k, r)
		}
	}
	if out.Len() == 0 {
		return nil
	}
	return out
}

func union(a, b *Node) *Node {
	switch {
	case a.IsMap() && b.IsMap():
		_ = Merge(a, b)
		return a
	case a.IsList() && b.IsList():
		for _, it := range b.items {
			dup := false
			for _, e := range a.items {
				if e.Equal(it) {
					dup = true
					break
				}
			}
			if !dup {
				a.Append(it)
			}
		}
		return a
	}
	return a
}
