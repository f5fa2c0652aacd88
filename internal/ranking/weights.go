package ranking

import (
	"errors"
	"math"
)

// ErrNoActiveWeights is returned when a query arrives and the store has no
// active weights configuration. Scoring cannot proceed without one.
var ErrNoActiveWeights = errors.New("no active ranking weights configured")

// ErrNegativeWeight is returned for configurations with a negative
// coefficient. Negative weights invert factor ordering and are refused.
var ErrNegativeWeight = errors.New("ranking weights must be non-negative")

// sumTolerance is how far the weight sum may drift from 1.0 before a
// validation warning is surfaced. Scoring still proceeds either way.
const sumTolerance = 1e-3

// Weights holds the five scoring coefficients. The final score is
// Semantic·semantic + Rating·rating + Price·price + Stock·stock + Recency·recency.
type Weights struct {
	Semantic float64
	Rating   float64
	Price    float64
	Stock    float64
	Recency  float64
}

// Sum returns the total of all five coefficients.
func (w Weights) Sum() float64 {
	return w.Semantic + w.Rating + w.Price + w.Stock + w.Recency
}

// Validate returns ErrNegativeWeight if any coefficient is negative.
// A sum away from 1.0 is not an error; callers check SumsToOne and warn.
func (w Weights) Validate() error {
	if w.Semantic < 0 || w.Rating < 0 || w.Price < 0 || w.Stock < 0 || w.Recency < 0 {
		return ErrNegativeWeight
	}
	return nil
}

// SumsToOne reports whether the coefficients add up to 1.0 within tolerance.
func (w Weights) SumsToOne() bool {
	return math.Abs(w.Sum()-1.0) <= sumTolerance
}
