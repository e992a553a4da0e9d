package ai

import "github.com/poiesic/corpora/core"

// AnalysisRequest is one file submitted for multimodal analysis.
type AnalysisRequest struct {
	Collection  *core.Collection
	Filename    string
	ContentType string
	// Data is the raw file. It is attached to the request when the content
	// type can be analyzed multimodally.
	Data []byte
	// Text is locally extracted text (HTML body, spreadsheet cells) that
	// accompanies or replaces Data.
	Text string
	// Tables are spreadsheet tables found locally. The analyzer may title
	// and describe them.
	Tables []ExtractedElement
}

// ExtractedElement is a table, figure or image found in a file.
type ExtractedElement struct {
	Type    core.ElementType    `json:"type"`
	Payload core.ElementPayload `json:"payload"`
}

// Analysis is the analyzer's output before schema validation.
type Analysis struct {
	Content  core.Content       `json:"content"`
	Elements []ExtractedElement `json:"elements"`
}

// RerankCandidate is the reranker's view of one ranked result.
type RerankCandidate struct {
	ID       string   `json:"id"`
	Filename string   `json:"filename"`
	Title    string   `json:"title,omitempty"`
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords,omitempty"`
}

// RerankOutcome lists candidate ids best first and optional explanations
// keyed by id.
type RerankOutcome struct {
	Order        []string          `json:"order"`
	Explanations map[string]string `json:"explanations,omitempty"`
}

// GroundingRequest is the input of a grounded answer.
type GroundingRequest struct {
	Query      string
	Candidates []core.GroundingCandidate
	History    []core.ChatMessage
	Hints      CallHints
}
