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

package store

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang/snappy"

	"github.com/sdcio/netconf-server/pkg/tree"
)

const (
	scalarNull uint8 = iota
	scalarString
	scalarBool
	scalarNumber
)

// wireNode is the CBOR form of a tree node. Map keys and children are
// parallel slices so the key order survives.
type wireNode struct {
	Kind     uint8      `cbor:"1,keyasint"`
	Scalar   uint8      `cbor:"2,keyasint,omitempty"`
	Value    string     `cbor:"3,keyasint,omitempty"`
	Keys     []string   `cbor:"4,keyasint,omitempty"`
	Children []wireNode `cbor:"5,keyasint,omitempty"`
}

// Encode serializes a tree as snappy compressed CBOR.
func Encode(n *tree.Node) ([]byte, error) {
	w, err := toWire(n, 1)
	if err != nil {
		return nil, err
	}
	b, err := cbor.Marshal(w)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, b), nil
}

func Decode(b []byte) (*tree.Node, error) {
	raw, err := snappy.Decode(nil, b)
	if err != nil {
		return nil, err
	}
	w := wireNode{}
	if err := cbor.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return fromWire(w, 1)
}

func toWire(n *tree.Node, depth int) (wireNode, error) {
	if depth > tree.MaxDepth {
		return wireNode{}, tree.ErrMaxDepth
	}
	w := wireNode{Kind: uint8(n.Kind())}
	switch n.Kind() {
	case tree.KindMap:
		for _, k := range n.Keys() {
			c, _ := n.Get(k)
			cw, err := toWire(c, depth+1)
			if err != nil {
				return wireNode{}, err
			}
			w.Keys = append(w.Keys, k)
			w.Children = append(w.Children, cw)
		}
	case tree.KindList:
		for _, it := range n.Items() {
			cw, err := toWire(it, depth+1)
			if err != nil {
				return wireNode{}, err
			}
			w.Children = append(w.Children, cw)
		}
	default:
		switch v := n.Value().(type) {
		case nil:
			w.Scalar = scalarNull
		case bool:
			w.Scalar = scalarBool
		case json.Number:
			w.Scalar = scalarNumber
		case string:
			w.Scalar = scalarString
		default:
			return wireNode{}, fmt.Errorf("unsupported scalar %T", v)
		}
		w.Value = n.String()
	}
	return w, nil
}

func fromWire(w wireNode, depth int) (*tree.Node, error) {
	if depth > tree.MaxDepth {
		return nil, tree.ErrMaxDepth
	}
	switch tree.Kind(w.Kind) {
	case tree.KindMap:
		if len(w.Keys) != len(w.Children) {
			return nil, fmt.Errorf("corrupt map node: %d keys, %d children", len(w.Keys), len(w.Children))
		}
		m := tree.NewMap()
		for i, k := range w.Keys {
			c, err := fromWire(w.Children[i], depth+1)
			if err != nil {
				return nil, err
			}
			m.Set(k, c)
		}
		return m, nil
	case tree.KindList:
		l := tree.NewList()
		for _, cw := range w.Children {
			c, err := fromWire(cw, depth+1)
			if err != nil {
				return nil, err
			}
			l.Append(c)
		}
		return l, nil
	case tree.KindScalar:
		switch w.Scalar {
		case scalarNull:
			return tree.NewScalar(nil), nil
		case scalarBool:
			return tree.NewScalar(w.Value == "true"), nil
		case scalarNumber:
			return tree.NewScalar(json.Number(w.Value)), nil
		case scalarString:
			return tree.NewScalar(w.Value), nil
		}
		return nil, fmt.Errorf("unknown scalar type %d", w.Scalar)
	}
	return nil, fmt.Errorf("unknown node kind %d", w.Kind)
}
