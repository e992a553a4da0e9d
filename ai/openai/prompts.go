package openai

import (
	"fmt"
	"strings"

	"github.com/poiesic/corpora/core"
)

const classifierPromptTemplate = `You route search queries for a technical document library.

The library is divided into collections. Each collection is described below as JSON:

%s

Given the user's query, decide which collection it targets and split the query into terms.
Output ONLY a JSON object with exactly these keys and no preamble or explanation:

{
  "primaryCollection": "<id of the best collection>",
  "primaryConfidence": <number between 0 and 1>,
  "secondaryCollections": ["<other plausible collection ids>"],
  "secondaryConfidence": <average confidence of the secondary collections, 0 if none>,
  "reasoning": "<one sentence>",
  "strategy": "primary_only" | "primary_then_secondary" | "parallel",
  "exactMatchTerms": ["<literal identifiers>"],
  "semanticSearchTerms": ["<concepts>"]
}

Rules:
- Collection ids must be copied exactly from the list above.
- exactMatchTerms are literal identifiers expected verbatim in a document: part numbers,
  model numbers, standard numbers, product codes. Copy them exactly as written in the query.
- semanticSearchTerms are the concepts of the query, expanded to their usual phrasing
  (for example "SiC" becomes "SiC driver" when the query is about drivers).
- Never leave both term lists empty. If the query has no identifiers, put the whole query
  in semanticSearchTerms.
- Use "primary_only" when you are confident (above 0.8) in one collection, "parallel" when
  confidence is evenly split, otherwise "primary_then_secondary".

Example:
Query: "AHV85003 SiC driver"
Output:
{"primaryCollection":"datasheets","primaryConfidence":0.9,"secondaryCollections":[],"secondaryConfidence":0,"reasoning":"Part number of a gate driver IC.","strategy":"primary_only","exactMatchTerms":["AHV85003"],"semanticSearchTerms":["SiC driver"]}`

func buildClassifierPrompt(collectionsJSON string) string {
	return fmt.Sprintf(classifierPromptTemplate, collectionsJSON)
}

const analysisPromptTemplate = `You extract structured metadata from documents in the collection %q (%s).

Output ONLY a JSON object of the form:

{
  "content": {
    "summary": "<3-5 sentence summary>",
    "keywords": ["<identifiers, part numbers and key terms found verbatim in the document>"],
    "outline": ["<top level section headings>"]%s
  },
  "elements": [
    {
      "type": "table" | "figure" | "image",
      "payload": {
        "title": "<title or caption heading>",
        "caption": "<caption text>",
        "description": "<what the element shows>",
        "text": "<text content, for tables a compact rendering>",
        "pageNumber": <page number, 1-based>,
        "identifiers": ["<part numbers or codes appearing in the element>"]
      }
    }
  ]
}

Rules:
- Only report what the document actually contains. Do not invent values.
- Omit a field you cannot determine rather than guessing.
- keywords must include every part number or model identifier in the document, copied exactly.
- List every significant table, figure and image as an element.`

// buildAnalysisPrompt lists the collection's generated fields after the
// reserved keys.
func buildAnalysisPrompt(c *core.Collection) string {
	var fields strings.Builder
	for _, f := range c.GeneratedFields() {
		fmt.Fprintf(&fields, ",\n    %q: <%s>", f.Name, describeField(f))
	}
	description := c.Description
	if description == "" {
		description = c.DisplayName
	}
	return fmt.Sprintf(analysisPromptTemplate, c.ID, description, fields.String())
}

func describeField(f core.FieldDefinition) string {
	var kind string
	switch f.Type {
	case core.FieldNumber:
		kind = "number"
	case core.FieldBoolean:
		kind = "true or false"
	case core.FieldStringList:
		kind = "list of strings"
	case core.FieldDate:
		kind = "date as YYYY-MM-DD"
	default:
		kind = "string"
	}
	if f.Prompt != "" {
		return kind + ", " + f.Prompt
	}
	return kind
}

const rerankPromptTemplate = `You judge search results for relevance to a query.

Candidates (JSON, in their current order):

%s

Reorder the candidates from most to least relevant to the user's query, judging the whole
candidate: summary, keywords, title and filename. Output ONLY a JSON object:

{
  "order": ["<candidate id>", ...],
  "explanations": {"<candidate id>": "<one sentence on why it ranks here>"}
}

Rules:
- order must contain every candidate id exactly once and nothing else.
- Give explanations only for the top %d candidates.`

func buildRerankPrompt(candidatesJSON string, explain int) string {
	return fmt.Sprintf(rerankPromptTemplate, candidatesJSON, explain)
}

const groundingPromptTemplate = `You answer questions about technical documents using ONLY the evidence below.

Evidence (JSON, most relevant first):

%s

Output ONLY a JSON object:

{
  "answer": "<answer in plain prose>",
  "citations": [{"sourceId": "<sourceId of an evidence item>", "relevanceNote": "<what it supports>"}],
  "confidence": <number between 0 and 1>
}

Rules:
- Cite evidence only by its sourceId. Never cite anything that is not in the evidence list.
- If the evidence does not answer the question, say so and use a low confidence.
- Keep the answer concise.`

func buildGroundingPrompt(evidenceJSON string) string {
	return fmt.Sprintf(groundingPromptTemplate, evidenceJSON)
}
