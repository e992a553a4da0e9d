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
	"strings"
	"time"
)

// FieldType is the declared value type of a schema field.
type FieldType string

const (
	FieldString     FieldType = "string"
	FieldNumber     FieldType = "number"
	FieldBoolean    FieldType = "boolean"
	FieldStringList FieldType = "string_list"
	FieldDate       FieldType = "date"
)

// FieldSource says who populates a field.
type FieldSource string

const (
	SourceGenerated FieldSource = "generated"
	SourceManual    FieldSource = "manual"
)

// FieldDefinition declares one schema-defined content field.
type FieldDefinition struct {
	Name     string      `json:"name" yaml:"name"`
	Type     FieldType   `json:"type" yaml:"type"`
	Source   FieldSource `json:"source" yaml:"source"`
	Prompt   string      `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Required bool        `json:"required,omitempty" yaml:"required,omitempty"`
}

// WeightedField names a content field that feeds the document embedding.
// Weight is the number of times the field is repeated in the rendered text.
type WeightedField struct {
	Field  string `json:"field" yaml:"field"`
	Weight int    `json:"weight" yaml:"weight"`
}

// EmbeddingConfig describes how a collection's documents are embedded.
type EmbeddingConfig struct {
	Model        string          `json:"model" yaml:"model"`
	Dimensions   int             `json:"dimensions" yaml:"dimensions"`
	SourceFields []WeightedField `json:"sourceFields" yaml:"source_fields"`
	Template     string          `json:"template,omitempty" yaml:"template,omitempty"`
}

// ClassifierHints steer query routing towards a collection.
type ClassifierHints struct {
	Keywords       []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	ExampleQueries []string `json:"exampleQueries,omitempty" yaml:"example_queries,omitempty"`
}

// Collection groups documents sharing one schema and one routing profile.
type Collection struct {
	ID            string            `json:"id" yaml:"id"`
	DisplayName   string            `json:"displayName" yaml:"display_name"`
	Description   string            `json:"description,omitempty" yaml:"description,omitempty"`
	Fields        []FieldDefinition `json:"fields" yaml:"fields"`
	Embedding     EmbeddingConfig   `json:"embedding" yaml:"embedding"`
	Hints         ClassifierHints   `json:"hints" yaml:"hints"`
	SchemaVersion int               `json:"schemaVersion" yaml:"-"`
	CreatedAt     time.Time         `json:"createdAt" yaml:"-"`
	UpdatedAt     time.Time         `json:"updatedAt" yaml:"-"`
}

// Field returns the definition of a named field.
func (c *Collection) Field(name string) (FieldDefinition, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// GeneratedFields returns the fields the analyzer is expected to fill in.
func (c *Collection) GeneratedFields() []FieldDefinition {
	out := make([]FieldDefinition, 0, len(c.Fields))
	for _, f := range c.Fields {
		if f.Source == SourceGenerated {
			out = append(out, f)
		}
	}
	return out
}

// CollectionDescriptor is what the query classifier sees of a collection.
type CollectionDescriptor struct {
	ID             string   `json:"id"`
	DisplayName    string   `json:"displayName"`
	Description    string   `json:"description,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
	ExampleQueries []string `json:"exampleQueries,omitempty"`
}

// Descriptor projects the collection for the classifier.
func (c *Collection) Descriptor() CollectionDescriptor {
	return CollectionDescriptor{
		ID:             c.ID,
		DisplayName:    c.DisplayName,
		Description:    c.Description,
		Keywords:       c.Hints.Keywords,
		ExampleQueries: c.Hints.ExampleQueries,
	}
}

// EmbeddingText renders the text used for a document's embedding.
// When a template is set, {{field}} placeholders are substituted; otherwise
// weighted source fields are concatenated, each repeated Weight times.
// Summary and keywords are used when no source fields are configured.
func (c *Collection) EmbeddingText(d *Document) string {
	if c.Embedding.Template != "" {
		out := c.Embedding.Template
		for _, f := range c.Embedding.SourceFields {
			out = strings.ReplaceAll(out, "{{"+f.Field+"}}", d.Content.Text(f.Field))
		}
		out = strings.ReplaceAll(out, "{{filename}}", d.File.Filename)
		return out
	}

	sources := c.Embedding.SourceFields
	if len(sources) == 0 {
		sources = []WeightedField{{Field: ContentSummary, Weight: 1}, {Field: ContentKeywords, Weight: 1}}
	}

	var b strings.Builder
	for _, f := range sources {
		text := d.Content.Text(f.Field)
		if text == "" {
			continue
		}
		weight := f.Weight
		if weight < 1 {
			weight = 1
		}
		for range weight {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(text)
		}
	}
	if b.Len() == 0 {
		return d.File.Filename
	}
	return b.String()
}
