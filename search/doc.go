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

// Package search implements hybrid retrieval over document collections.
//
// A query runs through three pieces:
//   - Engine searches one collection with an exact pass over keyword sets and
//     element identifiers and a semantic pass over document and element
//     embeddings, merging both into one stable-sorted list
//   - Router applies the routing policy to a classification, searching the
//     primary collection alone, primary then secondaries, or all in parallel
//   - Service wraps classification, routing, reranking, threshold filtering
//     and grounded answering behind the search and chat request contracts,
//     recording each stage in a core.ProcessTrace
//
// Scoring is deterministic. An exact hit scores core.ExactScore. A semantic
// signal scores SemanticCeiling times its similarity clamped to [0,1], and a
// result's score is the maximum over its signals (the full query and each
// semantic term). Exact therefore always outranks semantic. Ties keep
// discovery order: exact hits first, then semantic hits in signal order.
package search
