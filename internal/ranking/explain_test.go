package ranking

import (
	"reflect"
	"strings"
	"testing"

	"github.com/kalambet/shoprank/internal/catalog"
)

func TestMatchedTermsOrderAndDedup(t *testing.T) {
	p := catalog.Product{
		Title:       "Red Leather Wallet",
		Description: "A slim wallet made of genuine red leather.",
		Features:    []string{"RFID blocking", "leather lining"},
	}

	got := MatchedTerms("leather red wallet", p)
	// Order of first appearance in product text, not query order.
	want := []string{"red", "leather", "wallet"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MatchedTerms = %v, want %v", got, want)
	}
}

func TestMatchedTermsCaseInsensitive(t *testing.T) {
	p := catalog.Product{Title: "WIRELESS Headphones"}
	got := MatchedTerms("wireless", p)
	if !reflect.DeepEqual(got, []string{"wireless"}) {
		t.Errorf("MatchedTerms = %v, want [wireless]", got)
	}
}

func TestMatchedTermsFromFeaturesOnly(t *testing.T) {
	p := catalog.Product{
		Title:    "Travel Mug",
		Features: []string{"vacuum insulated", "leakproof lid"},
	}
	got := MatchedTerms("insulated", p)
	if !reflect.DeepEqual(got, []string{"insulated"}) {
		t.Errorf("MatchedTerms = %v, want [insulated]", got)
	}
}

func TestMatchedTermsNoMatch(t *testing.T) {
	p := catalog.Product{Title: "Desk Lamp"}
	if got := MatchedTerms("bicycle helmet", p); got != nil {
		t.Errorf("MatchedTerms = %v, want nil", got)
	}
}

func TestMatchedTermsEmptyQuery(t *testing.T) {
	p := catalog.Product{Title: "Desk Lamp"}
	if got := MatchedTerms("", p); got != nil {
		t.Errorf("MatchedTerms = %v, want nil", got)
	}
}

func TestExplainNamesTopTwoFactors(t *testing.T) {
	f := FactorScores{Semantic: 0.9, Rating: 0.96, Price: 0.1, Stock: 0.2, Recency: 0.3}
	w := Weights{Semantic: 0.5, Rating: 0.2, Price: 0.15, Stock: 0.1, Recency: 0.05}

	got := Explain(f, w, []string{"red", "wallet"})

	// semantic contributes 0.45, rating 0.192 — both should be named.
	if !strings.Contains(got, "semantic relevance (0.90)") {
		t.Errorf("explanation missing top factor: %q", got)
	}
	if !strings.Contains(got, "rating (0.96)") {
		t.Errorf("explanation missing second factor: %q", got)
	}
	if !strings.Contains(got, `"red"`) || !strings.Contains(got, `"wallet"`) {
		t.Errorf("explanation missing matched terms: %q", got)
	}
}

func TestExplainNoMatchFallsBackToNonSemantic(t *testing.T) {
	f := FactorScores{Semantic: 0.5, Rating: 0.92, Price: 0.4, Stock: 1, Recency: 0.1}
	w := Weights{Semantic: 0.5, Rating: 0.2, Price: 0.15, Stock: 0.1, Recency: 0.05}

	got := Explain(f, w, nil)

	if strings.Contains(got, "semantic") {
		t.Errorf("no-match explanation must not name the semantic factor: %q", got)
	}
	// rating contributes 0.184, stock 0.1, price 0.06 — rating dominates.
	if !strings.Contains(got, "rating (0.92)") {
		t.Errorf("explanation should name dominant non-semantic factor: %q", got)
	}
}

func TestExplainDeterministic(t *testing.T) {
	f := FactorScores{Semantic: 0.5, Rating: 0.5, Price: 0.5, Stock: 0.5, Recency: 0.5}
	w := Weights{Semantic: 0.2, Rating: 0.2, Price: 0.2, Stock: 0.2, Recency: 0.2}

	first := Explain(f, w, []string{"mug"})
	second := Explain(f, w, []string{"mug"})
	if first != second {
		t.Errorf("Explain not deterministic: %q vs %q", first, second)
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("Red-Leather, WALLET! 2nd edition")
	want := []string{"red", "leather", "wallet", "2nd", "edition"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tokenize = %v, want %v", got, want)
	}
}
