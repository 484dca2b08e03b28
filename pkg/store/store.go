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

// Package store persists the startup datastore.
package store

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/sdcio/netconf-server/pkg/tree"
)

const (
	TypeMemory = "memory"
	TypeFile   = "file"
	TypeBadger = "badger"
)

type Store interface {
	// Load returns the stored tree, nil if nothing was saved yet.
	Load(ctx context.Context) (*tree.Node, error)
	Save(ctx context.Context, n *tree.Node) error
	Close() error
}

// New opens the store of the given type. The memory type keeps startup in
// the engine only and returns a nil Store.
func New(typ, path string, fs afero.Fs) (Store, error) {
	switch typ {
	case "", TypeMemory:
		return nil, nil
	case TypeFile:
		return NewFile(fs, path), nil
	case TypeBadger:
		b, err := NewBadger(path)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown startup store type %q", typ)
}
