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

package datastore

import (
	"context"

	"github.com/sdcio/netconf-server/pkg/tree"
)

//go:generate mockgen -destination ../../mocks/mockapplier/applier.go -package mockapplier . Applier

// Applier pushes a running configuration to the system being managed. It
// receives a private copy of the complete post-mutation tree.
type Applier interface {
	Apply(ctx context.Context, config *tree.Node) error
}

// ApplierFunc adapts a function to the Applier interface.
type ApplierFunc func(ctx context.Context, config *tree.Node) error

func (f ApplierFunc) Apply(ctx context.Context, config *tree.Node) error {
	return f(ctx, config)
}
