package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Reserved content keys present on every collection regardless of schema.
const (
	ContentSummary  = "summary"
	ContentKeywords = "keywords"
	ContentOutline  = "outline"
	ContentTables   = "tables"
	ContentFigures  = "figures"
	ContentImages   = "images"
	ContentCounts   = "counts"
)

var reservedKeys = map[string]bool{
	ContentSummary:  true,
	ContentKeywords: true,
	ContentOutline:  true,
	ContentTables:   true,
	ContentFigures:  true,
	ContentImages:   true,
	ContentCounts:   true,
}

// IsReservedKey reports whether key is one of the reserved content keys.
func IsReservedKey(key string) bool {
	return reservedKeys[key]
}

// Content is the extracted, schema-validated field map of a Document.
type Content map[string]any

// Summary returns the reserved summary field.
func (c Content) Summary() string {
	s, _ := c[ContentSummary].(string)
	return s
}

// Keywords returns the reserved keyword set.
func (c Content) Keywords() []string {
	return c.Strings(ContentKeywords)
}

// Strings returns a list-valued field. Values decoded from JSON arrive as
// []any and are converted.
func (c Content) Strings(key string) []string {
	switch v := c[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// Text renders any field as plain text for embedding templates.
func (c Content) Text(key string) string {
	switch v := c[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	case []any:
		return strings.Join(c.Strings(key), ", ")
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// HasKeyword reports whether term is in the keyword set, ignoring case and
// surrounding whitespace.
func (c Content) HasKeyword(term string) bool {
	return ContainsFold(c.Keywords(), term)
}

// ContainsFold reports whether list contains term, ignoring case and
// surrounding whitespace.
func ContainsFold(list []string, term string) bool {
	term = strings.TrimSpace(term)
	if term == "" {
		return false
	}
	for _, k := range list {
		if strings.EqualFold(strings.TrimSpace(k), term) {
			return true
		}
	}
	return false
}

// ValidateContent checks a content map against a collection's field schema.
// Unknown keys, wrongly typed values and missing required fields are rejected.
// List values are normalized to []string and numbers to float64 in place.
func ValidateContent(c *Collection, content Content) error {
	return validateContent(c, content, true)
}

// ValidatePartialContent is ValidateContent without the required-field check.
// It is used for manual fields supplied before analysis has run.
func ValidatePartialContent(c *Collection, content Content) error {
	return validateContent(c, content, false)
}

func validateContent(c *Collection, content Content, requireAll bool) error {
	if c == nil {
		return &ValidationError{Field: "collection", Err: ErrInvalidCollection}
	}
	for key, value := range content {
		if IsReservedKey(key) {
			if key == ContentSummary {
				if _, ok := value.(string); !ok && value != nil {
					return &ValidationError{Field: key, Err: fmt.Errorf("%w: expected string", ErrFieldType)}
				}
			}
			if key == ContentKeywords && value != nil {
				list, ok := toStringList(value)
				if !ok {
					return &ValidationError{Field: key, Err: fmt.Errorf("%w: expected string list", ErrFieldType)}
				}
				content[key] = list
			}
			continue
		}
		def, ok := c.Field(key)
		if !ok {
			return &ValidationError{Field: key, Err: ErrUnknownField}
		}
		normalized, err := checkFieldValue(def, value)
		if err != nil {
			return &ValidationError{Field: key, Err: err}
		}
		content[key] = normalized
	}
	if !requireAll {
		return nil
	}
	for _, def := range c.Fields {
		if !def.Required {
			continue
		}
		if v, ok := content[def.Name]; !ok || v == nil {
			return &ValidationError{Field: def.Name, Err: ErrMissingField}
		}
	}
	return nil
}

func checkFieldValue(def FieldDefinition, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch def.Type {
	case FieldString:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case FieldNumber:
		switch n := value.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				return f, nil
			}
		}
	case FieldBoolean:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case FieldStringList:
		if list, ok := toStringList(value); ok {
			return list, nil
		}
	case FieldDate:
		switch d := value.(type) {
		case time.Time:
			return d.UTC().Format(time.DateOnly), nil
		case string:
			for _, layout := range []string{time.DateOnly, time.RFC3339} {
				if t, err := time.Parse(layout, d); err == nil {
					return t.UTC().Format(time.DateOnly), nil
				}
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrFieldType, def.Type)
	}
	return nil, fmt.Errorf("%w: expected %s, got %T", ErrFieldType, def.Type, value)
}

func toStringList(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
