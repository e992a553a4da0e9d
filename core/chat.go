package core

import "strconv"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Citations []Citation `json:"citations,omitempty"`
}

// Citation is a reduced view of a SearchResult that an answer relies on.
type Citation struct {
	SourceID      string      `json:"sourceId"`
	DocumentID    string      `json:"documentId"`
	ElementID     string      `json:"elementId,omitempty"`
	ElementType   ElementType `json:"elementType,omitempty"`
	CollectionID  string      `json:"collectionId"`
	Filename      string      `json:"filename"`
	StorageURI    string      `json:"storageUri"`
	Title         string      `json:"title,omitempty"`
	PageNumber    int         `json:"pageNumber,omitempty"`
	RelevanceNote string      `json:"relevanceNote,omitempty"`
}

// GroundingCandidate is one piece of evidence offered to the answer generator.
// SourceID is the handle the generator must cite it by.
type GroundingCandidate struct {
	SourceID     string      `json:"sourceId"`
	DocumentID   string      `json:"documentId"`
	ElementID    string      `json:"elementId,omitempty"`
	ElementType  ElementType `json:"elementType,omitempty"`
	CollectionID string      `json:"collectionId"`
	Filename     string      `json:"filename"`
	Title        string      `json:"title,omitempty"`
	PageNumber   int         `json:"pageNumber,omitempty"`
	Summary      string      `json:"summary"`
	Keywords     []string    `json:"keywords,omitempty"`
	StorageURI   string      `json:"storageUri"`
}

// CandidateFromResult projects a ranked result into grounding evidence.
func CandidateFromResult(r *SearchResult) GroundingCandidate {
	c := GroundingCandidate{
		SourceID:     r.Key(),
		DocumentID:   r.DocumentID,
		CollectionID: r.CollectionID,
		Filename:     r.Filename,
		Summary:      r.Summary,
		Keywords:     r.Keywords,
		StorageURI:   r.StorageURI,
	}
	if em, ok := r.Element(); ok {
		c.ElementID = strconv.FormatUint(uint64(em.ElementID), 10)
		c.ElementType = em.ElementType
		c.Title = em.Title
		c.PageNumber = em.PageNumber
	}
	return c
}

// Citation converts the candidate to a citation carrying the given note.
func (c GroundingCandidate) Citation(note string) Citation {
	return Citation{
		SourceID:      c.SourceID,
		DocumentID:    c.DocumentID,
		ElementID:     c.ElementID,
		ElementType:   c.ElementType,
		CollectionID:  c.CollectionID,
		Filename:      c.Filename,
		StorageURI:    c.StorageURI,
		Title:         c.Title,
		PageNumber:    c.PageNumber,
		RelevanceNote: note,
	}
}

// GroundedAnswer is the output of the answer generator.
type GroundedAnswer struct {
	Answer     string     `json:"answer"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence"`
}

// FallbackAnswer is returned without calling the generator when retrieval
// produced no candidates.
const FallbackAnswer = "I could not find any documents relevant to your question. Try rephrasing it or searching a different collection."

// NoEvidenceAnswer is the fixed zero-candidate answer.
func NoEvidenceAnswer() *GroundedAnswer {
	return &GroundedAnswer{Answer: FallbackAnswer, Citations: []Citation{}, Confidence: 0}
}
