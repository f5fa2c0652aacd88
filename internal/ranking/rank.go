package ranking

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kalambet/shoprank/internal/catalog"
)

// DefaultTopK is the result list size when the caller does not request one.
const DefaultTopK = 10

const defaultConcurrency = 4

// Candidate pairs a product with its embedding vector for scoring.
type Candidate struct {
	Product catalog.Product
	Vector  []float32
}

// ScoredResult is a ranked product with its final score and the per-factor
// breakdown that produced it.
type ScoredResult struct {
	Product catalog.Product
	Score   float64
	Factors FactorScores
}

// Ranker computes weighted multi-factor scores over a candidate set.
// Rank is a pure function of its inputs plus the configured constants, so a
// single Ranker is safe for concurrent queries.
type Ranker struct {
	stockReference  int
	recencyHalfLife time.Duration
	defaultTopK     int
	concurrency     int
	logger          *slog.Logger
}

// NewRanker creates a Ranker. stockReference is the quantity at which the
// stock factor saturates; recencyHalfLife controls the age decay; defaultTopK
// is the result list size used when a query does not request one (<= 0 falls
// back to DefaultTopK).
func NewRanker(stockReference int, recencyHalfLife time.Duration, defaultTopK int) *Ranker {
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &Ranker{
		stockReference:  stockReference,
		recencyHalfLife: recencyHalfLife,
		defaultTopK:     defaultTopK,
		concurrency:     defaultConcurrency,
		logger:          slog.Default(),
	}
}

// Rank scores every candidate against the query vector under the given
// weights and returns the top-K results ordered by final score descending,
// ties broken by product ID ascending. The order is total and deterministic
// for identical inputs. An empty candidate set yields an empty result.
//
// Candidates whose vector length differs from the query vector are excluded
// from this query (logged), never the whole response.
func (r *Ranker) Rank(queryVec []float32, candidates []Candidate, w Weights, topK int, now time.Time) []ScoredResult {
	if len(candidates) == 0 {
		return nil
	}
	if topK <= 0 {
		topK = r.defaultTopK
	}

	priceMin, priceMax := priceRange(candidates, len(queryVec))

	// Scoring is an independent map over candidates: each goroutine writes
	// only its own slot, the merge below is sequential.
	scored := make([]ScoredResult, len(candidates))
	skipped := make([]bool, len(candidates))

	var wg sync.WaitGroup
	sem := make(chan struct{}, r.concurrency)
	for i := range candidates {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			c := candidates[i]
			if len(c.Vector) != len(queryVec) {
				skipped[i] = true
				return
			}
			f := FactorScores{
				Semantic: semanticFactor(queryVec, c.Vector),
				Rating:   ratingFactor(c.Product.Rating),
				Price:    priceFactor(c.Product.Price.InexactFloat64(), priceMin, priceMax),
				Stock:    stockFactor(c.Product.Availability, c.Product.StockQuantity, r.stockReference),
				Recency:  recencyFactor(now.Sub(c.Product.UpdatedAt), r.recencyHalfLife),
			}
			scored[i] = ScoredResult{
				Product: c.Product,
				Score:   f.Weighted(w),
				Factors: f,
			}
		}(i)
	}
	wg.Wait()

	results := make([]ScoredResult, 0, len(candidates))
	for i := range scored {
		if skipped[i] {
			r.logger.Warn("excluding candidate with mismatched embedding dimension",
				"product_id", candidates[i].Product.ID,
				"got_dim", len(candidates[i].Vector),
				"want_dim", len(queryVec),
			)
			continue
		}
		results = append(results, scored[i])
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Product.ID < results[j].Product.ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// priceRange returns the min and max prices over candidates whose vector
// matches dim; excluded candidates must not skew the normalization of the
// eligible set. A single eligible candidate yields min == max, which
// priceFactor treats as "no information".
func priceRange(candidates []Candidate, dim int) (min, max float64) {
	first := true
	for _, c := range candidates {
		if len(c.Vector) != dim {
			continue
		}
		p := c.Product.Price.InexactFloat64()
		if first {
			min, max = p, p
			first = false
			continue
		}
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	return min, max
}
