package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "simple text", content: "hello world"},
		{name: "empty string", content: ""},
		{name: "identifier", content: "AHV85003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, IDFromContent(tt.content), IDFromContent(tt.content))
		})
	}

	assert.NotEqual(t, IDFromContent("content1"), IDFromContent("content2"))
}

func TestElementIDFor(t *testing.T) {
	a := ElementIDFor("doc-1", ElementTable, 0)
	assert.Equal(t, a, ElementIDFor("doc-1", ElementTable, 0), "same inputs must give same id")
	assert.NotEqual(t, a, ElementIDFor("doc-1", ElementTable, 1))
	assert.NotEqual(t, a, ElementIDFor("doc-1", ElementFigure, 0))
	assert.NotEqual(t, a, ElementIDFor("doc-2", ElementTable, 0))
}

func TestDocument_Searchable(t *testing.T) {
	doc := &Document{Status: StatusReady}
	assert.False(t, doc.Searchable(), "ready without embedding")

	doc.Embedding = &Embedding{Vector: []float32{1}}
	assert.True(t, doc.Searchable())

	doc.Status = StatusEmbedding
	assert.False(t, doc.Searchable())
}

func TestElement_EmbeddingText(t *testing.T) {
	el := &Element{
		Type: ElementTable,
		Payload: ElementPayload{
			Title:       "Absolute maximum ratings",
			Identifiers: []string{"AHV85003"},
			Rows:        [][]string{{"VDD", "20V"}},
		},
	}
	text := el.EmbeddingText()
	assert.Contains(t, text, "table")
	assert.Contains(t, text, "Absolute maximum ratings")
	assert.Contains(t, text, "AHV85003")
	assert.Contains(t, text, "VDD | 20V")
}

func TestCollection_EmbeddingText(t *testing.T) {
	doc := &Document{
		File: FileMetadata{Filename: "driver.pdf"},
		Content: Content{
			ContentSummary:  "Isolated gate driver",
			ContentKeywords: []any{"AHV85003", "SiC"},
			"part_number":   "AHV85003",
		},
	}

	t.Run("weighted fields repeat", func(t *testing.T) {
		c := &Collection{Embedding: EmbeddingConfig{SourceFields: []WeightedField{
			{Field: ContentSummary, Weight: 2},
			{Field: "part_number", Weight: 1},
		}}}
		assert.Equal(t, "Isolated gate driver\nIsolated gate driver\nAHV85003", c.EmbeddingText(doc))
	})

	t.Run("template substitution", func(t *testing.T) {
		c := &Collection{Embedding: EmbeddingConfig{
			Template:     "{{filename}}: {{summary}} [{{keywords}}]",
			SourceFields: []WeightedField{{Field: ContentSummary}, {Field: ContentKeywords}},
		}}
		assert.Equal(t, "driver.pdf: Isolated gate driver [AHV85003, SiC]", c.EmbeddingText(doc))
	})

	t.Run("defaults to summary and keywords", func(t *testing.T) {
		c := &Collection{}
		assert.Equal(t, "Isolated gate driver\nAHV85003, SiC", c.EmbeddingText(doc))
	})

	t.Run("falls back to filename", func(t *testing.T) {
		c := &Collection{}
		assert.Equal(t, "empty.pdf", c.EmbeddingText(&Document{File: FileMetadata{Filename: "empty.pdf"}}))
	})
}
