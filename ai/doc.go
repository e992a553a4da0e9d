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

// Package ai provides abstractions for the model services used in Corpora.
//
// This package defines interfaces for the generative and embedding operations
// the retrieval pipeline orchestrates. The core domain and the search,
// lifecycle and ingestion packages depend on these abstractions rather than on
// a concrete model vendor.
//
// # Interfaces
//
//   - Embedder: text embeddings with a query/document task hint
//   - Classifier: routes a query to collections and splits its terms
//   - Analyzer: multimodal extraction of a file's content map and elements
//   - Reranker: holistic reordering of the top ranked results
//   - Grounder: answers a question citing only supplied evidence
//   - AIProvider: aggregates the above for initialization and shutdown
//
// # Implementation Packages
//
//   - ai/openai: production implementation using OpenAI-compatible APIs
//   - ai/mock: test doubles for unit testing without external dependencies
//
// Public constructors in ai/openai return interface types. Mock constructors
// return concrete types so tests can inject behaviour through the exported
// ...Func fields and assert on call counts.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithHost("http://localhost:11434"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "gate driver", ai.TaskQuery)
package ai
