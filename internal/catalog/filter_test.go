package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
)

func nullDec(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func testProduct() Product {
	return Product{
		ID:           "p1",
		Title:        "Red Leather Wallet",
		Category:     "accessories",
		Subcategory:  "wallets",
		Brand:        "Craftline",
		Price:        decimal.RequireFromString("49.99"),
		Availability: InStock,
		IsFeatured:   true,
	}
}

func TestFiltersMatch(t *testing.T) {
	p := testProduct()

	tests := []struct {
		name    string
		filters Filters
		want    bool
	}{
		{"zero filters match everything", Filters{}, true},
		{"category match", Filters{Category: "accessories"}, true},
		{"category mismatch", Filters{Category: "kitchen"}, false},
		{"subcategory match", Filters{Subcategory: "wallets"}, true},
		{"subcategory mismatch", Filters{Subcategory: "belts"}, false},
		{"brand match", Filters{Brand: "Craftline"}, true},
		{"brand mismatch", Filters{Brand: "Other"}, false},
		{"availability match", Filters{Availability: InStock}, true},
		{"availability mismatch", Filters{Availability: OutOfStock}, false},
		{"price min below", Filters{PriceMin: nullDec("10")}, true},
		{"price min above", Filters{PriceMin: nullDec("60")}, false},
		{"price min exact", Filters{PriceMin: nullDec("49.99")}, true},
		{"price max above", Filters{PriceMax: nullDec("60")}, true},
		{"price max below", Filters{PriceMax: nullDec("10")}, false},
		{"price max exact", Filters{PriceMax: nullDec("49.99")}, true},
		{"featured only matches featured", Filters{FeaturedOnly: true}, true},
		{"combined filters all pass", Filters{Category: "accessories", Brand: "Craftline", PriceMax: nullDec("50")}, true},
		{"combined filters one fails", Filters{Category: "accessories", Brand: "Other"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filters.Match(p); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFiltersMatchFeaturedOnly(t *testing.T) {
	p := testProduct()
	p.IsFeatured = false

	if (Filters{FeaturedOnly: true}).Match(p) {
		t.Error("featured-only filter should reject non-featured product")
	}
	if !(Filters{}).Match(p) {
		t.Error("zero filters should accept non-featured product")
	}
}

func TestFiltersIsZero(t *testing.T) {
	if !(Filters{}).IsZero() {
		t.Error("empty Filters should be zero")
	}
	if (Filters{Brand: "x"}).IsZero() {
		t.Error("Filters with brand set should not be zero")
	}
	if (Filters{PriceMin: nullDec("1")}).IsZero() {
		t.Error("Filters with price bound should not be zero")
	}
	if (Filters{FeaturedOnly: true}).IsZero() {
		t.Error("Filters with featured_only should not be zero")
	}
}

func TestFiltersApplied(t *testing.T) {
	f := Filters{
		Category:     "accessories",
		Availability: LowStock,
		PriceMax:     nullDec("99.50"),
		FeaturedOnly: true,
	}

	got := f.Applied()
	want := map[string]string{
		"category":      "accessories",
		"availability":  "low_stock",
		"price_max":     "99.5",
		"featured_only": "true",
	}

	if len(got) != len(want) {
		t.Fatalf("Applied() has %d entries, want %d: %v", len(got), len(want), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Applied()[%q] = %q, want %q", k, got[k], v)
		}
	}
}

func TestFiltersAppliedEmpty(t *testing.T) {
	if got := (Filters{}).Applied(); len(got) != 0 {
		t.Errorf("Applied() on zero Filters = %v, want empty", got)
	}
}
