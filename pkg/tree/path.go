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
	"fmt"
	"sort"
	"strings"
)

// KeyValue is one list-key predicate, e.g. name='eth0'.
type KeyValue struct {
	Name  string
	Value string
}

// PathElem is one segment of a Path.
type PathElem struct {
	Name string
	Keys []KeyValue
}

func (pe PathElem) String() string {
	sb := &strings.Builder{}
	sb.WriteString(pe.Name)
	for _, k := range pe.Keys {
		quote := "'"
		if strings.Contains(k.Value, "'") {
			quote = `"`
		}
		fmt.Fprintf(sb, "[%s=%s%s%s]", k.Name, quote, k.Value, quote)
	}
	return sb.String()
}

// Path addresses a node in a tree. An empty Path addresses the root.
type Path []PathElem

func (p Path) String() string {
	elems := make([]string, 0, len(p))
	for _, pe := range p {
		elems = append(elems, pe.String())
	}
	return "/" + strings.Join(elems, "/")
}

func (p Path) IsRoot() bool { return len(p) == 0 }

// Last returns the final path element. It must not be called on the root path.
func (p Path) Last() PathElem { return p[len(p)-1] }

// Parent returns p without its final element.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return p
	}
	return p[:len(p)-1]
}

// ParsePath parses a slash separated path whose segments may carry one or
// more key predicates: interfaces/interface[name='eth0']/mtu. Values may be
// single or double quoted, or bare. Module prefixes (ietf-interfaces:) on
// segment and key names are dropped. Leading, trailing and repeated slashes
// are ignored.
func ParsePath(s string) (Path, error) {
	segments, err := splitPath(s)
	if err != nil {
		return nil, err
	}
	p := make(Path, 0, len(segments))
	for _, seg := range segments {
		pe, err := parseElem(seg)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", s, err)
		}
		p = append(p, pe)
	}
	return p, nil
}

// splitPath splits on '/' outside of predicates and quotes.
func splitPath(s string) ([]string, error) {
	var (
		result []string
		cur    strings.Builder
		depth  int
		quote  rune
	)
	flush := func() {
		if cur.Len() > 0 {
			result = append(result, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			if depth > 0 {
				quote = r
			}
		case r == '[':
			depth++
		case r == ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("invalid path %q: unbalanced ']'", s)
			}
		case r == '/' && depth == 0:
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	if quote != 0 || depth != 0 {
		return nil, fmt.Errorf("invalid path %q: unterminated predicate", s)
	}
	flush()
	return result, nil
}

func parseElem(seg string) (PathElem, error) {
	idx := strings.IndexByte(seg, '[')
	if idx < 0 {
		name := stripPrefix(seg)
		if name == "" {
			return PathElem{}, fmt.Errorf("empty path element")
		}
		return PathElem{Name: name}, nil
	}
	pe := PathElem{Name: stripPrefix(seg[:idx])}
	if pe.Name == "" {
		return PathElem{}, fmt.Errorf("predicate without element name in %q", seg)
	}
	rest := seg[idx:]
	for len(rest) > 0 {
		if rest[0] != '[' {
			return PathElem{}, fmt.Errorf("unexpected %q in %q", rest, seg)
		}
		end := predicateEnd(rest)
		if end < 0 {
			return PathElem{}, fmt.Errorf("unterminated predicate in %q", seg)
		}
		kv, err := parsePredicate(rest[1:end])
		if err != nil {
			return PathElem{}, err
		}
		pe.Keys = append(pe.Keys, kv)
		rest = rest[end+1:]
	}
	return pe, nil
}

// predicateEnd returns the index of the ']' closing the predicate starting at s[0].
func predicateEnd(s string) int {
	var quote byte
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ']':
			return i
		}
	}
	return -1
}

func parsePredicate(p string) (KeyValue, error) {
	eq := strings.IndexByte(p, '=')
	if eq <= 0 {
		return KeyValue{}, fmt.Errorf("invalid predicate [%s]", p)
	}
	name := stripPrefix(strings.TrimSpace(p[:eq]))
	value := strings.TrimSpace(p[eq+1:])
	if len(value) >= 2 && (value[0] == '\'' || value[0] == '"') {
		if value[len(value)-1] != value[0] {
			return KeyValue{}, fmt.Errorf("invalid predicate [%s]: unbalanced quotes", p)
		}
		value = value[1 : len(value)-1]
	}
	if name == "" {
		return KeyValue{}, fmt.Errorf("invalid predicate [%s]: empty key name", p)
	}
	return KeyValue{Name: name, Value: value}, nil
}

func stripPrefix(s string) string {
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
