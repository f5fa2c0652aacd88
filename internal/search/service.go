package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/shoprank/internal/catalog"
	"github.com/kalambet/shoprank/internal/embedding"
	"github.com/kalambet/shoprank/internal/ranking"
	"github.com/kalambet/shoprank/internal/storage"
)

// Store is the slice of storage the search service needs.
type Store interface {
	GetActiveWeights() (storage.RankingWeights, error)
	InsertSearchResults(log storage.SearchLog, explanations []storage.Explanation) error
	InsertInteraction(i storage.Interaction) error
	MarkExplanationClicked(sessionID, query, productID string) error
}

// CandidateSource supplies the current candidate snapshot.
type CandidateSource interface {
	Candidates(filters catalog.Filters) ([]ranking.Candidate, error)
}

// Evaluator runs an offline metrics pass over the logged searches.
type Evaluator interface {
	Run(notes string) ([]storage.EvaluationMetric, error)
}

// Request is one search query as received from a client surface.
type Request struct {
	Query     string
	SessionID string
	TopK      int
	Filters   catalog.Filters
}

// Result is one ranked product with its explanation.
type Result struct {
	Product      catalog.Product      `json:"product"`
	Position     int                  `json:"position"`
	Score        float64              `json:"score"`
	Factors      ranking.FactorScores `json:"factors"`
	MatchedTerms []string             `json:"matched_terms"`
	Explanation  string               `json:"explanation"`
}

// Response carries the ranked results plus the log row they were written to.
type Response struct {
	LogID     string   `json:"log_id"`
	LatencyMs int64    `json:"latency_ms"`
	Results   []Result `json:"results"`
}

// Service orchestrates the full query pipeline: weights, embedding,
// candidate retrieval, ranking, explanation and durable logging.
type Service struct {
	store     Store
	index     CandidateSource
	embedder  embedding.Embedder
	ranker    *ranking.Ranker
	evaluator Evaluator
	logger    *slog.Logger
}

// NewService wires the search pipeline together.
func NewService(store Store, index CandidateSource, embedder embedding.Embedder, ranker *ranking.Ranker, evaluator Evaluator) *Service {
	return &Service{
		store:     store,
		index:     index,
		embedder:  embedder,
		ranker:    ranker,
		evaluator: evaluator,
		logger:    slog.Default(),
	}
}

// Search runs one query end to end. The active weights are read once per
// query, so an activation mid-flight never mixes configurations within a
// response. The search log and its explanation rows are written atomically
// before the response returns.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("empty query")
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}
	started := time.Now()

	stored, err := s.store.GetActiveWeights()
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ranking.ErrNoActiveWeights
	}
	if err != nil {
		return nil, fmt.Errorf("loading active weights: %w", err)
	}
	w := toRankingWeights(stored)
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("active weights %s: %w", stored.ID, err)
	}
	if !w.SumsToOne() {
		s.logger.Warn("active weights do not sum to 1",
			"weights_id", stored.ID, "sum", w.Sum())
	}

	queryVec, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	candidates, err := s.index.Candidates(req.Filters)
	if err != nil {
		return nil, fmt.Errorf("loading candidates: %w", err)
	}

	// A non-positive TopK defers to the ranker's configured default.
	ranked := s.ranker.Rank(queryVec, candidates, w, req.TopK, time.Now().UTC())
	latency := time.Since(started).Milliseconds()

	logID := uuid.New().String()
	results := make([]Result, len(ranked))
	explanations := make([]storage.Explanation, len(ranked))
	for i, r := range ranked {
		matched := ranking.MatchedTerms(req.Query, r.Product)
		explanation := ranking.Explain(r.Factors, w, matched)

		results[i] = Result{
			Product:      r.Product,
			Position:     i + 1,
			Score:        r.Score,
			Factors:      r.Factors,
			MatchedTerms: matched,
			Explanation:  explanation,
		}
		explanations[i] = storage.Explanation{
			LogID:        logID,
			ProductID:    r.Product.ID,
			Position:     i + 1,
			FinalScore:   r.Score,
			Semantic:     r.Factors.Semantic,
			Rating:       r.Factors.Rating,
			Price:        r.Factors.Price,
			Stock:        r.Factors.Stock,
			Recency:      r.Factors.Recency,
			MatchedTerms: encodeTerms(matched),
			Explanation:  explanation,
		}
	}

	log := storage.SearchLog{
		ID:          logID,
		SessionID:   req.SessionID,
		Query:       req.Query,
		QueryVector: queryVec,
		ResultCount: len(results),
		LatencyMs:   latency,
		Filters:     encodeFilters(req.Filters),
	}
	if err := s.store.InsertSearchResults(log, explanations); err != nil {
		return nil, fmt.Errorf("logging search: %w", err)
	}

	s.logger.Info("search completed",
		"log_id", logID, "query", req.Query,
		"results", len(results), "latency_ms", latency)

	return &Response{LogID: logID, LatencyMs: latency, Results: results}, nil
}

// Interaction is one client-observed event submitted for recording.
type Interaction struct {
	SessionID string
	ProductID string
	Kind      string
	Query     string
	Position  int
}

// RecordInteraction appends an interaction event. Click-like kinds also
// retroactively flag the product's explanation row on the most recent log
// for the same (session, query); a missing log is not an error, because
// interactions may arrive for searches served before logging was enabled.
func (s *Service) RecordInteraction(in Interaction) error {
	kind, err := catalog.ParseInteractionKind(in.Kind)
	if err != nil {
		return err
	}
	if in.SessionID == "" {
		return fmt.Errorf("missing session_id")
	}
	if in.ProductID == "" {
		return fmt.Errorf("missing product_id")
	}

	if err := s.store.InsertInteraction(storage.Interaction{
		ID:        uuid.New().String(),
		SessionID: in.SessionID,
		ProductID: in.ProductID,
		Kind:      string(kind),
		Query:     in.Query,
		Position:  in.Position,
	}); err != nil {
		return fmt.Errorf("recording interaction: %w", err)
	}

	if kind.ClickLike() && in.Query != "" {
		err := s.store.MarkExplanationClicked(in.SessionID, in.Query, in.ProductID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("marking explanation clicked: %w", err)
		}
	}
	return nil
}

// RunEvaluation delegates to the offline evaluator.
func (s *Service) RunEvaluation(notes string) ([]storage.EvaluationMetric, error) {
	return s.evaluator.Run(notes)
}

func toRankingWeights(w storage.RankingWeights) ranking.Weights {
	return ranking.Weights{
		Semantic: w.Semantic,
		Rating:   w.Rating,
		Price:    w.Price,
		Stock:    w.Stock,
		Recency:  w.Recency,
	}
}

func encodeTerms(terms []string) string {
	if len(terms) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(terms)
	return string(b)
}

func encodeFilters(f catalog.Filters) string {
	applied := f.Applied()
	if len(applied) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(applied)
	return string(b)
}
