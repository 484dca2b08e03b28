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
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/sdcio/netconf-server/pkg/tree"
)

// File keeps the startup tree as a JSON document.
type File struct {
	fs   afero.Fs
	path string
}

func NewFile(fs afero.Fs, path string) *File {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &File{fs: fs, path: path}
}

func (f *File) Load(context.Context) (*tree.Node, error) {
	b, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	n, err := tree.ParseJSON(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.path, err)
	}
	return n, nil
}

// Save writes to a temporary file renamed over the target, readers never
// see a partial document.
func (f *File) Save(_ context.Context, n *tree.Node) error {
	b, err := n.MarshalJSON()
	if err != nil {
		return err
	}
	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, b, 0o644); err != nil {
		return err
	}
	return f.fs.Rename(tmp, f.path)
}

func (f *File) Close() error { return nil }
