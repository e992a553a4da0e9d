package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchResult_ElementPayloadOnlyOnElementHits(t *testing.T) {
	doc := &SearchResult{DocumentID: "d1", Match: ExactMatch{Term: "AHV85003"}}
	_, ok := doc.Element()
	assert.False(t, ok)
	assert.Equal(t, MatchExact, doc.MatchType())
	assert.Equal(t, "document:d1", doc.Key())

	el := &SearchResult{DocumentID: "d1", Match: ElementMatch{ElementID: 42, ElementType: ElementTable, ParentDocumentID: "d1"}}
	em, ok := el.Element()
	require.True(t, ok)
	assert.Equal(t, ID(42), em.ElementID)
	assert.Equal(t, MatchElement, el.MatchType())
	assert.Equal(t, "element:42", el.Key())

	assert.Equal(t, MatchSemantic, (&SearchResult{}).MatchType())
}

func TestSearchResult_WireShape(t *testing.T) {
	r := &SearchResult{
		DocumentID:   "d1",
		CollectionID: "datasheets",
		Score:        0.8,
		Filename:     "a.pdf",
		Match: ElementMatch{
			ElementID:        ID(18446744073709551615),
			ElementType:      ElementFigure,
			Title:            "Block diagram",
			PageNumber:       3,
			ParentDocumentID: "d1",
		},
		Rerank: &RerankInfo{OriginalPosition: 4, RerankPosition: 1},
	}
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "element", wire["matchType"])
	assert.Equal(t, "18446744073709551615", wire["elementId"], "ids above 2^53 travel as strings")
	assert.Equal(t, "d1", wire["parentDocumentId"])
	assert.NotContains(t, wire, "scoreBreakdown")

	var back SearchResult
	require.NoError(t, json.Unmarshal(data, &back))
	em, ok := back.Element()
	require.True(t, ok)
	assert.Equal(t, r.Match, em)
	assert.Equal(t, 1, back.Rerank.RerankPosition)
}

func TestSearchResult_UnknownMatchType(t *testing.T) {
	var r SearchResult
	err := json.Unmarshal([]byte(`{"matchType":"fuzzy","documentId":"d"}`), &r)
	assert.Error(t, err)
}
