package catalog

import "github.com/shopspring/decimal"

// Filters restricts the candidate set before scoring. Zero-valued fields
// are ignored; an entirely zero Filters matches every product.
type Filters struct {
	Category     string
	Subcategory  string
	Brand        string
	Availability Availability
	PriceMin     decimal.NullDecimal
	PriceMax     decimal.NullDecimal
	FeaturedOnly bool
}

// Match reports whether p passes every set filter.
func (f Filters) Match(p Product) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Subcategory != "" && p.Subcategory != f.Subcategory {
		return false
	}
	if f.Brand != "" && p.Brand != f.Brand {
		return false
	}
	if f.Availability != "" && p.Availability != f.Availability {
		return false
	}
	if f.PriceMin.Valid && p.Price.LessThan(f.PriceMin.Decimal) {
		return false
	}
	if f.PriceMax.Valid && p.Price.GreaterThan(f.PriceMax.Decimal) {
		return false
	}
	if f.FeaturedOnly && !p.IsFeatured {
		return false
	}
	return true
}

// IsZero reports whether no filter field is set.
func (f Filters) IsZero() bool {
	return f.Category == "" && f.Subcategory == "" && f.Brand == "" &&
		f.Availability == "" && !f.PriceMin.Valid && !f.PriceMax.Valid && !f.FeaturedOnly
}

// Applied returns the set filters as a name -> value map, the shape stored
// on the search log for later analysis.
func (f Filters) Applied() map[string]string {
	m := make(map[string]string)
	if f.Category != "" {
		m["category"] = f.Category
	}
	if f.Subcategory != "" {
		m["subcategory"] = f.Subcategory
	}
	if f.Brand != "" {
		m["brand"] = f.Brand
	}
	if f.Availability != "" {
		m["availability"] = string(f.Availability)
	}
	if f.PriceMin.Valid {
		m["price_min"] = f.PriceMin.Decimal.String()
	}
	if f.PriceMax.Valid {
		m["price_max"] = f.PriceMax.Decimal.String()
	}
	if f.FeaturedOnly {
		m["featured_only"] = "true"
	}
	return m
}
