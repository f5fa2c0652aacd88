// Package embedding turns catalog and query text into fixed-length vectors
// used only for relative similarity comparison.
package embedding

import (
	"context"
	"strings"

	"github.com/kalambet/shoprank/internal/catalog"
)

// Embedder maps text to a fixed-dimension vector. Implementations must be
// pure functions of the normalized input (or stably equivalent for
// model-backed ones): identical text yields identical vectors. An input
// that is empty after normalization yields the zero vector of the
// embedder's dimension, not an error, so downstream scoring degrades to
// zero semantic similarity instead of crashing a batch.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Model() string
}

// Normalize case-folds the text and collapses all whitespace runs to single
// spaces. Embedders operate on normalized text so trivially different
// inputs map to the same vector.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// ProductText assembles the text embedded for a product: title,
// description, category, subcategory, brand, then each feature, skipping
// empty fields, joined by single spaces.
func ProductText(p catalog.Product) string {
	parts := make([]string, 0, 5+len(p.Features))
	for _, s := range []string{p.Title, p.Description, p.Category, p.Subcategory, p.Brand} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	for _, f := range p.Features {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}
