package openai

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	// `, type":` -> `, "type":`
	missingOpenQuote = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)":`)
	// `{type:` -> `{"type":`
	bareKey = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	// `[1, 2,]` -> `[1, 2]`
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// cleanJSON strips markdown fences and surrounding chatter from a model reply
// and, only when the result does not parse, repairs the common mistakes small
// local models make.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); start >= 0 && end > start {
		s = s[start : end+1]
	}
	if json.Valid([]byte(s)) {
		return s
	}

	repaired := missingOpenQuote.ReplaceAllString(s, `$1"$2":`)
	repaired = bareKey.ReplaceAllString(repaired, `$1"$2":`)
	repaired = trailingComma.ReplaceAllString(repaired, `$1`)
	return repaired
}
