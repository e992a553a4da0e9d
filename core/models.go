package core

import (
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID identifies an Element. It is derived from content so that re-running
// extraction on the same document produces the same element ids.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ElementIDFor derives the id of the n-th element of a given type within a document.
func ElementIDFor(parentID string, elementType ElementType, ordinal int) ID {
	var b strings.Builder
	b.WriteString(parentID)
	b.WriteByte(':')
	b.WriteString(string(elementType))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(ordinal))
	return IDFromContent(b.String())
}

// ElementType identifies the kind of sub-document unit.
type ElementType string

const (
	ElementTable  ElementType = "table"
	ElementFigure ElementType = "figure"
	ElementImage  ElementType = "image"
)

// Valid reports whether t is a known element type.
func (t ElementType) Valid() bool {
	switch t {
	case ElementTable, ElementFigure, ElementImage:
		return true
	}
	return false
}

// ElementStatus tracks an Element's own embedding step.
type ElementStatus string

const (
	ElementPending ElementStatus = "pending"
	ElementReady   ElementStatus = "ready"
	ElementError   ElementStatus = "error"
)

// Embedding is a vector together with the model that produced it.
type Embedding struct {
	Vector    []float32 `json:"vector"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"createdAt"`
}

// FileMetadata describes the uploaded blob.
type FileMetadata struct {
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType,omitempty"`
	Size        int64     `json:"size"`
	PageCount   int       `json:"pageCount,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Document is one uploaded file in a collection.
// Embedding is only set once Status reaches StatusReady and Content only once
// the document has passed StatusMetadataReady.
type Document struct {
	ID           string         `json:"id"`
	CollectionID string         `json:"collectionId"`
	StorageURI   string         `json:"storageUri"`
	File         FileMetadata   `json:"file"`
	Status       DocumentStatus `json:"status"`
	Content      Content        `json:"content,omitempty"`
	Embedding    *Embedding     `json:"embedding,omitempty"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	ProcessedAt  *time.Time     `json:"processedAt,omitempty"`
}

// Searchable reports whether the document may appear in retrieval results.
func (d *Document) Searchable() bool {
	return d.Status == StatusReady && d.Embedding != nil && len(d.Embedding.Vector) > 0
}

// ElementPayload carries the type-specific extracted data of an Element.
type ElementPayload struct {
	Title       string     `json:"title,omitempty"`
	Caption     string     `json:"caption,omitempty"`
	Description string     `json:"description,omitempty"`
	Text        string     `json:"text,omitempty"`
	Rows        [][]string `json:"rows,omitempty"`
	PageNumber  int        `json:"pageNumber,omitempty"`
	Identifiers []string   `json:"identifiers,omitempty"`
}

// Element is a table, figure or image extracted from a Document.
// ParentID is a weak reference: the parent may have been deleted.
type Element struct {
	ID             ID             `json:"id,string"`
	ParentID       string         `json:"parentDocumentId"`
	CollectionID   string         `json:"collectionId"`
	Type           ElementType    `json:"elementType"`
	Payload        ElementPayload `json:"payload"`
	ParentFilename string         `json:"parentFilename"`
	ParentURI      string         `json:"parentUri"`
	Status         ElementStatus  `json:"status"`
	Embedding      *Embedding     `json:"embedding,omitempty"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// EmbeddingText renders the text that represents the element in vector space.
func (e *Element) EmbeddingText() string {
	parts := make([]string, 0, 6)
	parts = append(parts, string(e.Type))
	for _, s := range []string{e.Payload.Title, e.Payload.Caption, e.Payload.Description, e.Payload.Text} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(e.Payload.Identifiers) > 0 {
		parts = append(parts, strings.Join(e.Payload.Identifiers, ", "))
	}
	for _, row := range e.Payload.Rows {
		parts = append(parts, strings.Join(row, " | "))
	}
	return strings.Join(parts, "\n")
}

// StatusCounts is the per-status document tally used for coverage reporting.
type StatusCounts map[DocumentStatus]int

// Stats summarizes the processing state of a collection (or of all collections).
type Stats struct {
	CollectionID  string       `json:"collectionId,omitempty"`
	Total         int          `json:"total"`
	ByStatus      StatusCounts `json:"byStatus"`
	WithEmbedding int          `json:"withEmbedding"`
	Coverage      float64      `json:"coverage"`
	Elements      int          `json:"elements"`
	ReadyElements int          `json:"readyElements"`
}
