package catalog

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Availability is the stock state of a product as reported by the catalog.
type Availability string

const (
	InStock    Availability = "in_stock"
	LowStock   Availability = "low_stock"
	OutOfStock Availability = "out_of_stock"
)

// ParseAvailability validates a raw availability string from an upload row.
func ParseAvailability(s string) (Availability, error) {
	switch Availability(s) {
	case InStock, LowStock, OutOfStock:
		return Availability(s), nil
	case "":
		return OutOfStock, nil
	default:
		return "", fmt.Errorf("unknown availability %q", s)
	}
}

// Product is a single catalog entry. Products are owned by the ingestion
// path; the ranking core treats them as read-only.
type Product struct {
	ID            string
	Title         string
	Description   string
	Category      string
	Subcategory   string
	Brand         string
	Price         decimal.Decimal
	OriginalPrice decimal.Decimal
	Currency      string
	Rating        float64 // 0–5, 0 when unrated
	ReviewCount   int
	Availability  Availability
	StockQuantity int
	Features      []string
	IsFeatured    bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// InteractionKind classifies a recorded user interaction.
type InteractionKind string

const (
	InteractionView      InteractionKind = "view"
	InteractionClick     InteractionKind = "click"
	InteractionSearch    InteractionKind = "search_click"
	InteractionAddToCart InteractionKind = "add_to_cart"
	InteractionPurchase  InteractionKind = "purchase"
)

// ParseInteractionKind validates a raw kind string from a client event.
func ParseInteractionKind(s string) (InteractionKind, error) {
	switch InteractionKind(s) {
	case InteractionView, InteractionClick, InteractionSearch, InteractionAddToCart, InteractionPurchase:
		return InteractionKind(s), nil
	default:
		return "", fmt.Errorf("unknown interaction kind %q", s)
	}
}

// ClickLike reports whether the interaction counts as a relevance signal
// for evaluation and for marking explanation rows clicked. Views do not.
func (k InteractionKind) ClickLike() bool {
	switch k {
	case InteractionClick, InteractionSearch, InteractionAddToCart, InteractionPurchase:
		return true
	case InteractionView:
		return false
	default:
		return false
	}
}
