package storage

import (
	"testing"
	"time"

	"github.com/poiesic/corpora/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentSerialization_PreservesContentAndVector(t *testing.T) {
	processed := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	doc := &core.Document{
		ID:           "d1",
		CollectionID: "datasheets",
		StorageURI:   "mem://localhost/blobs/datasheets/a.pdf",
		File:         core.FileMetadata{Filename: "a.pdf", PageCount: 12},
		Status:       core.StatusReady,
		Content: core.Content{
			core.ContentSummary:  "gate driver",
			core.ContentKeywords: []string{"AHV85003"},
		},
		Embedding:   &core.Embedding{Vector: []float32{0.6, 0.8}, Model: "embeddinggemma"},
		ProcessedAt: &processed,
	}

	data, err := MarshalDocument(doc)
	require.NoError(t, err)
	back, err := UnmarshalDocument(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"AHV85003"}, back.Content.Keywords(), "keywords decode from []any")
	assert.Equal(t, []float32{0.6, 0.8}, back.Embedding.Vector)
	assert.True(t, processed.Equal(*back.ProcessedAt))
}

func TestUnmarshal_Errors(t *testing.T) {
	_, err := UnmarshalDocument(nil)
	assert.ErrorIs(t, err, ErrTruncatedData)

	_, err = UnmarshalElement([]byte("{not json"))
	assert.ErrorIs(t, err, ErrSerializationFailed)
}
