// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package embedder implements the embedding client (spec §4.C2): text in,
// fixed-dimension vector out, used by both the store and the memory
// manager's retrieval path.
package embedder

import (
	"context"

	"github.com/loomrun/loom/pkg/errs"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	// Embed returns an error wrapping errs.KindModel for an empty string —
	// spec §4.C2 requires a distinct error rather than a zero vector, since
	// a zero vector would silently rank as maximally dissimilar to
	// everything instead of failing loud.
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
	Close() error
}

// ErrEmptyText is wrapped into a KindModel error when Embed/EmbedBatch is
// asked to embed an empty string.
var ErrEmptyText = errs.New(errs.KindModel, "embedder", "cannot embed empty text")
