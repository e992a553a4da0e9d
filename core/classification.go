package core

import "strings"

// Strategy is the collection fan-out policy for a query.
type Strategy string

const (
	// StrategyPrimaryOnly searches only the primary collection.
	StrategyPrimaryOnly Strategy = "primary_only"
	// StrategyPrimaryThenSecondary searches the primary collection first and
	// only fans out when the primary pass comes back thin.
	StrategyPrimaryThenSecondary Strategy = "primary_then_secondary"
	// StrategyParallel searches every targeted collection concurrently.
	StrategyParallel Strategy = "parallel"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyPrimaryOnly, StrategyPrimaryThenSecondary, StrategyParallel:
		return true
	}
	return false
}

// Classification routes a query to collections and splits its terms.
type Classification struct {
	PrimaryCollection    string   `json:"primaryCollection"`
	PrimaryConfidence    float64  `json:"primaryConfidence"`
	SecondaryCollections []string `json:"secondaryCollections"`
	SecondaryConfidence  float64  `json:"secondaryConfidence"`
	Reasoning            string   `json:"reasoning"`
	Strategy             Strategy `json:"strategy"`
	ExactMatchTerms      []string `json:"exactMatchTerms"`
	SemanticSearchTerms  []string `json:"semanticSearchTerms"`
}

// Normalize trims and de-duplicates terms, drops the primary collection from
// the secondaries and fills in a strategy when the classifier gave none.
func (c *Classification) Normalize() {
	c.PrimaryCollection = strings.TrimSpace(c.PrimaryCollection)
	c.ExactMatchTerms = dedupeTerms(c.ExactMatchTerms)
	c.SemanticSearchTerms = dedupeTerms(c.SemanticSearchTerms)

	secondaries := make([]string, 0, len(c.SecondaryCollections))
	seen := map[string]bool{c.PrimaryCollection: true}
	for _, id := range c.SecondaryCollections {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		secondaries = append(secondaries, id)
	}
	c.SecondaryCollections = secondaries

	if !c.Strategy.Valid() {
		if len(secondaries) == 0 {
			c.Strategy = StrategyPrimaryOnly
		} else {
			c.Strategy = StrategyPrimaryThenSecondary
		}
	}
}

// Collections returns the primary followed by the secondary collection ids.
func (c *Classification) Collections() []string {
	out := make([]string, 0, 1+len(c.SecondaryCollections))
	out = append(out, c.PrimaryCollection)
	return append(out, c.SecondaryCollections...)
}

func dedupeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
