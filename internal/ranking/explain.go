package ranking

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/kalambet/shoprank/internal/catalog"
)

// MatchedTerms returns the case-insensitive query tokens that appear in the
// product's title, description, or features, ordered by first appearance in
// the product text, duplicates removed.
func MatchedTerms(query string, p catalog.Product) []string {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}
	inQuery := make(map[string]bool, len(queryTokens))
	for _, t := range queryTokens {
		inQuery[t] = true
	}

	productText := strings.Join(append([]string{p.Title, p.Description}, p.Features...), " ")

	var matched []string
	seen := make(map[string]bool)
	for _, t := range tokenize(productText) {
		if inQuery[t] && !seen[t] {
			matched = append(matched, t)
			seen[t] = true
		}
	}
	return matched
}

// factorContribution is one factor's share of the final score.
type factorContribution struct {
	name     string
	value    float64 // normalized factor score in [0,1]
	weighted float64 // weight * value
	semantic bool
}

// Explain produces a human-readable justification for a scored result,
// naming the one or two factors with the largest weighted contribution.
// When no query terms matched, the semantic factor is not a meaningful
// signal, so the explanation falls back to the dominant non-semantic factor.
// Explain is derived purely from already-computed scores and never alters
// ranking order.
func Explain(f FactorScores, w Weights, matched []string) string {
	contributions := []factorContribution{
		{name: "semantic relevance", value: f.Semantic, weighted: w.Semantic * f.Semantic, semantic: true},
		{name: "rating", value: f.Rating, weighted: w.Rating * f.Rating},
		{name: "price", value: f.Price, weighted: w.Price * f.Price},
		{name: "stock", value: f.Stock, weighted: w.Stock * f.Stock},
		{name: "recency", value: f.Recency, weighted: w.Recency * f.Recency},
	}

	if len(matched) == 0 {
		var top factorContribution
		found := false
		for _, c := range contributions {
			if c.semantic {
				continue
			}
			if !found || c.weighted > top.weighted {
				top = c
				found = true
			}
		}
		return fmt.Sprintf("no query terms matched; ranked mainly on %s (%.2f)", top.name, top.value)
	}

	// Stable sort keeps the declaration order for equal contributions, so
	// the explanation is deterministic.
	sort.SliceStable(contributions, func(i, j int) bool {
		return contributions[i].weighted > contributions[j].weighted
	})

	quoted := make([]string, len(matched))
	for i, m := range matched {
		quoted[i] = fmt.Sprintf("%q", m)
	}

	first := contributions[0]
	if contributions[1].weighted > 0 {
		second := contributions[1]
		return fmt.Sprintf("matched %s; ranked mainly on %s (%.2f) and %s (%.2f)",
			strings.Join(quoted, ", "), first.name, first.value, second.name, second.value)
	}
	return fmt.Sprintf("matched %s; ranked mainly on %s (%.2f)",
		strings.Join(quoted, ", "), first.name, first.value)
}

// tokenize lower-cases the text and splits it on any non-letter,
// non-digit rune.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
