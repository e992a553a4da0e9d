// Copyright 2025 Poiesic Systems
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

package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/core"
)

// BatchEmbedder embeds texts in one embedder call guarded by retries.
type BatchEmbedder struct {
	embedder       ai.Embedder
	maxAttempts    int
	retryBaseDelay time.Duration
}

// NewBatchEmbedder creates a batch embedder.
// maxAttempts: attempts per batch before giving up
// retryBaseDelay: base delay for exponential backoff
func NewBatchEmbedder(embedder ai.Embedder, maxAttempts int, retryBaseDelay time.Duration) *BatchEmbedder {
	return &BatchEmbedder{
		embedder:       embedder,
		maxAttempts:    maxAttempts,
		retryBaseDelay: retryBaseDelay,
	}
}

// Embed returns one normalized vector per text, in input order.
func (b *BatchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var vectors [][]float32
	err := RetryWithBackoff(ctx, func(ctx context.Context) error {
		out, err := b.embedder.EmbedTexts(ctx, texts, ai.TaskDocument)
		if err != nil {
			return err
		}
		if len(out) != len(texts) {
			return fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingMismatch, len(texts), len(out))
		}
		vectors = out
		return nil
	}, b.maxAttempts, b.retryBaseDelay)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.Upstream("embedder", fmt.Errorf("after %d attempts: %w", b.maxAttempts, err))
	}

	for i := range vectors {
		vectors[i] = core.NormalizeVector(vectors[i])
	}
	return vectors, nil
}
