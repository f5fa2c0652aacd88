package ranking

import (
	"math"
	"time"

	"github.com/kalambet/shoprank/internal/catalog"
)

// recencyFloor keeps the recency factor strictly positive so age alone can
// never zero a product out of the ranking.
const recencyFloor = 1e-9

// FactorScores holds the five normalized per-factor scores, each in [0,1].
type FactorScores struct {
	Semantic float64 `json:"semantic"`
	Rating   float64 `json:"rating"`
	Price    float64 `json:"price"`
	Stock    float64 `json:"stock"`
	Recency  float64 `json:"recency"`
}

// Weighted returns the final score under the given weights.
func (f FactorScores) Weighted(w Weights) float64 {
	return w.Semantic*f.Semantic +
		w.Rating*f.Rating +
		w.Price*f.Price +
		w.Stock*f.Stock +
		w.Recency*f.Recency
}

// Cosine returns the cosine similarity dot(a,b)/(‖a‖·‖b‖) in [-1,1].
// If either vector has zero norm the similarity is 0, never NaN.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, aNormSq, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aNormSq += float64(a[i]) * float64(a[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	if aNormSq == 0 || bNormSq == 0 {
		return 0
	}
	return dot / (math.Sqrt(aNormSq) * math.Sqrt(bNormSq))
}

// semanticFactor rescales cosine similarity from [-1,1] to [0,1] so the
// weighted score stays non-negative.
func semanticFactor(query, candidate []float32) float64 {
	return (Cosine(query, candidate) + 1) / 2
}

// ratingFactor maps a 0–5 rating to [0,1]. A missing rating (0) stays 0.
func ratingFactor(rating float64) float64 {
	return clamp01(rating / 5)
}

// priceFactor inverse-normalizes a price within the candidate set's
// [min,max] range. A degenerate range carries no information, so every
// candidate gets 1 rather than an arbitrary penalty.
func priceFactor(price, min, max float64) float64 {
	if max <= min {
		return 1
	}
	return clamp01(1 - (price-min)/(max-min))
}

// stockFactor combines the availability scale with a quantity ramp that
// saturates at reference units.
func stockFactor(availability catalog.Availability, quantity, reference int) float64 {
	var scale float64
	switch availability {
	case catalog.InStock:
		scale = 1
	case catalog.LowStock:
		scale = 0.5
	case catalog.OutOfStock:
		scale = 0
	default:
		scale = 0
	}
	if reference <= 0 {
		return clamp01(scale)
	}
	qty := float64(quantity) / float64(reference)
	if qty > 1 {
		qty = 1
	}
	if qty < 0 {
		qty = 0
	}
	return clamp01(scale * qty)
}

// recencyFactor decays exponentially with age: a product exactly halfLife
// old scores 0.5. The result is floored above zero.
func recencyFactor(age, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 1
	}
	if age < 0 {
		age = 0
	}
	f := math.Exp2(-age.Hours() / halfLife.Hours())
	if f < recencyFloor {
		return recencyFloor
	}
	return clamp01(f)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
