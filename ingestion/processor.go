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

package ingestion

import (
	"context"

	"github.com/poiesic/corpora/core"
)

// processor is one worker stage of the document pipeline.
type processor interface {
	// claims is the status a document must be in for the stage to take it.
	claims() core.DocumentStatus

	// process claims the document, runs the stage and advances it. It returns
	// errSkipped when the document is no longer in the claimed status.
	process(ctx context.Context, doc *core.Document) (*core.Document, error)
}

// BlobSource reads uploaded files by storage URI.
type BlobSource interface {
	Get(ctx context.Context, uri string) ([]byte, error)
}
