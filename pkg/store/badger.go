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
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"

	"github.com/sdcio/netconf-server/pkg/tree"
)

var startupKey = []byte("startup")

// Badger keeps the startup tree in a badger database, encoded by Encode.
type Badger struct {
	db *badger.DB
}

// NewBadger opens the database at path. An empty path opens an in-memory
// database.
func NewBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	log.Infof("opened startup store %q", path)
	return &Badger{db: db}, nil
}

func (b *Badger) Load(context.Context) (*tree.Node, error) {
	var raw []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(startupKey)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}

func (b *Badger) Save(_ context.Context, n *tree.Node) error {
	v, err := Encode(n)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(startupKey, v)
	})
}

func (b *Badger) Close() error {
	return b.db.Close()
}
