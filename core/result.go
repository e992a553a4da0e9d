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


package core

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// MatchType tags which retrieval pass produced a SearchResult.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchSemantic MatchType = "semantic"
	MatchElement  MatchType = "element"
)

// ExactScore is the fixed score of a literal keyword hit. It is above any
// score the semantic pass can produce for the same document.
const ExactScore = 0.95

// Match is the matchType-specific payload of a SearchResult. The concrete
// types are ExactMatch, SemanticMatch and ElementMatch.
type Match interface {
	MatchType() MatchType
	isMatch()
}

// ExactMatch is a literal keyword hit on a document.
type ExactMatch struct {
	Term string
}

// SemanticMatch is a vector-similarity hit on a document.
type SemanticMatch struct{}

// ElementMatch is a hit on an extracted table, figure or image.
type ElementMatch struct {
	ElementID        ID
	ElementType      ElementType
	Title            string
	PageNumber       int
	ParentDocumentID string
	Exact            bool
}

func (ExactMatch) MatchType() MatchType    { return MatchExact }
func (SemanticMatch) MatchType() MatchType { return MatchSemantic }
func (ElementMatch) MatchType() MatchType  { return MatchElement }

func (ExactMatch) isMatch()    {}
func (SemanticMatch) isMatch() {}
func (ElementMatch) isMatch()  {}

// TermMatch is the outcome of one exact term in a ScoreBreakdown.
type TermMatch struct {
	Term    string `json:"term"`
	Matched bool   `json:"matched"`
}

// TermScore is one semantic signal in a ScoreBreakdown.
type TermScore struct {
	Term       string  `json:"term"`
	Similarity float64 `json:"similarity"`
	Score      float64 `json:"score"`
}

// ScoreBreakdown explains how a result's score was computed. It is only
// attached in debug mode and never influences ranking.
type ScoreBreakdown struct {
	ExactTerms    []TermMatch `json:"exactTerms"`
	SemanticTerms []TermScore `json:"semanticTerms"`
	FullQuery     *TermScore  `json:"fullQuery,omitempty"`
	Combination   string      `json:"combination"`
	FinalScore    float64     `json:"finalScore"`
}

// RerankInfo records how the rerank pass moved a result.
type RerankInfo struct {
	OriginalPosition int    `json:"originalPosition"`
	RerankPosition   int    `json:"rerankPosition"`
	Explanation      string `json:"explanation,omitempty"`
}

// SearchResult is one ranked hit. Fields shared by every match type live on
// the struct; element-only data is reachable only through Match.
type SearchResult struct {
	DocumentID   string
	CollectionID string
	Score        float64
	Summary      string
	Keywords     []string
	Filename     string
	StorageURI   string
	Match        Match
	Breakdown    *ScoreBreakdown
	Rerank       *RerankInfo
}

// MatchType returns the tag of the result's payload.
func (r *SearchResult) MatchType() MatchType {
	if r.Match == nil {
		return MatchSemantic
	}
	return r.Match.MatchType()
}

// Element returns the element payload when the result is an element hit.
func (r *SearchResult) Element() (ElementMatch, bool) {
	em, ok := r.Match.(ElementMatch)
	return em, ok
}

// Key identifies the retrievable unit behind the result: the document for
// document hits and the element for element hits.
func (r *SearchResult) Key() string {
	if em, ok := r.Element(); ok {
		return "element:" + strconv.FormatUint(uint64(em.ElementID), 10)
	}
	return "document:" + r.DocumentID
}

type searchResultWire struct {
	MatchType        MatchType       `json:"matchType"`
	DocumentID       string          `json:"documentId"`
	CollectionID     string          `json:"collectionId"`
	Score            float64         `json:"score"`
	Summary          string          `json:"summary,omitempty"`
	Keywords         []string        `json:"keywords,omitempty"`
	Filename         string          `json:"filename"`
	StorageURI       string          `json:"storageUri"`
	MatchedTerm      string          `json:"matchedTerm,omitempty"`
	ElementID        string          `json:"elementId,omitempty"`
	ElementType      ElementType     `json:"elementType,omitempty"`
	Title            string          `json:"title,omitempty"`
	PageNumber       int             `json:"pageNumber,omitempty"`
	ParentDocumentID string          `json:"parentDocumentId,omitempty"`
	ExactElement     bool            `json:"exactElement,omitempty"`
	Breakdown        *ScoreBreakdown `json:"scoreBreakdown,omitempty"`
	Rerank           *RerankInfo     `json:"rerank,omitempty"`
}

// MarshalJSON flattens the result into the wire shape tagged by matchType.
func (r *SearchResult) MarshalJSON() ([]byte, error) {
	w := searchResultWire{
		MatchType:    r.MatchType(),
		DocumentID:   r.DocumentID,
		CollectionID: r.CollectionID,
		Score:        r.Score,
		Summary:      r.Summary,
		Keywords:     r.Keywords,
		Filename:     r.Filename,
		StorageURI:   r.StorageURI,
		Breakdown:    r.Breakdown,
		Rerank:       r.Rerank,
	}
	switch m := r.Match.(type) {
	case ExactMatch:
		w.MatchedTerm = m.Term
	case ElementMatch:
		w.ElementID = strconv.FormatUint(uint64(m.ElementID), 10)
		w.ElementType = m.ElementType
		w.Title = m.Title
		w.PageNumber = m.PageNumber
		w.ParentDocumentID = m.ParentDocumentID
		w.ExactElement = m.Exact
	}
	return json.Marshal(w)
}

// UnmarshalJSON rebuilds the tagged payload from the wire shape.
func (r *SearchResult) UnmarshalJSON(data []byte) error {
	var w searchResultWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = SearchResult{
		DocumentID:   w.DocumentID,
		CollectionID: w.CollectionID,
		Score:        w.Score,
		Summary:      w.Summary,
		Keywords:     w.Keywords,
		Filename:     w.Filename,
		StorageURI:   w.StorageURI,
		Breakdown:    w.Breakdown,
		Rerank:       w.Rerank,
	}
	switch w.MatchType {
	case MatchExact:
		r.Match = ExactMatch{Term: w.MatchedTerm}
	case MatchSemantic, "":
		r.Match = SemanticMatch{}
	case MatchElement:
		id, err := strconv.ParseUint(w.ElementID, 10, 64)
		if err != nil {
			return fmt.Errorf("element id %q: %w", w.ElementID, err)
		}
		r.Match = ElementMatch{
			ElementID:        ID(id),
			ElementType:      w.ElementType,
			Title:            w.Title,
			PageNumber:       w.PageNumber,
			ParentDocumentID: w.ParentDocumentID,
			Exact:            w.ExactElement,
		}
	default:
		return fmt.Errorf("unknown match type %q", w.MatchType)
	}
	return nil
}
