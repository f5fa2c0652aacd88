package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kalambet/shoprank/internal/catalog"
	"github.com/kalambet/shoprank/internal/ingest"
	"github.com/kalambet/shoprank/internal/ranking"
	"github.com/kalambet/shoprank/internal/search"
	"github.com/kalambet/shoprank/internal/storage"
)

const maxSearchBodySize = 1 << 20  // 1MB
const maxUploadBodySize = 50 << 20 // 50MB

// Invalidator marks the candidate snapshot stale on demand.
type Invalidator interface {
	Invalidate()
}

// Deps holds everything the HTTP surface needs.
type Deps struct {
	Store  *storage.Store
	Search *search.Service
	Index  Invalidator
	Token  string // operator bearer token
}

// NewHandler builds the full HTTP router. The search surface is public;
// weights, uploads, evaluations and reindexing require the operator token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))
	r.Post("/v1/search", handleSearch(deps))
	r.Post("/v1/interactions", handleInteraction(deps))

	r.Group(func(r chi.Router) {
		r.Use(OperatorAuth(deps.Token))
		r.Get("/v1/weights", handleListWeights(deps))
		r.Post("/v1/weights", handleCreateWeights(deps))
		r.Get("/v1/weights/active", handleActiveWeights(deps))
		r.Post("/v1/weights/{id}/activate", handleActivateWeights(deps))
		r.Post("/v1/uploads", handleCreateUpload(deps))
		r.Get("/v1/uploads/{id}", handleGetUpload(deps))
		r.Post("/v1/evaluations", handleRunEvaluation(deps))
		r.Get("/v1/evaluations", handleListEvaluations(deps))
		r.Post("/v1/reindex", handleReindex(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		products, err := deps.Store.CountProducts()
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "store unavailable: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"products": products,
		})
	}
}

// SearchRequest is the POST /v1/search body.
type SearchRequest struct {
	Query     string         `json:"query"`
	SessionID string         `json:"session_id"`
	TopK      int            `json:"top_k"`
	Filters   *FilterRequest `json:"filters"`
}

// FilterRequest narrows the candidate set before ranking.
type FilterRequest struct {
	Category     string `json:"category"`
	Subcategory  string `json:"subcategory"`
	Brand        string `json:"brand"`
	Availability string `json:"availability"`
	PriceMin     string `json:"price_min"`
	PriceMax     string `json:"price_max"`
	FeaturedOnly bool   `json:"featured_only"`
}

func (f *FilterRequest) toFilters() (catalog.Filters, error) {
	if f == nil {
		return catalog.Filters{}, nil
	}
	out := catalog.Filters{
		Category:     f.Category,
		Subcategory:  f.Subcategory,
		Brand:        f.Brand,
		FeaturedOnly: f.FeaturedOnly,
	}
	if f.Availability != "" {
		availability, err := catalog.ParseAvailability(f.Availability)
		if err != nil {
			return catalog.Filters{}, err
		}
		out.Availability = availability
	}
	if f.PriceMin != "" {
		d, err := decimal.NewFromString(f.PriceMin)
		if err != nil {
			return catalog.Filters{}, fmt.Errorf("invalid price_min %q", f.PriceMin)
		}
		out.PriceMin = decimal.NewNullDecimal(d)
	}
	if f.PriceMax != "" {
		d, err := decimal.NewFromString(f.PriceMax)
		if err != nil {
			return catalog.Filters{}, fmt.Errorf("invalid price_max %q", f.PriceMax)
		}
		out.PriceMax = decimal.NewNullDecimal(d)
	}
	return out, nil
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxSearchBodySize)
		defer r.Body.Close()

		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}
		filters, err := req.Filters.toFilters()
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		resp, err := deps.Search.Search(r.Context(), search.Request{
			Query:     req.Query,
			SessionID: req.SessionID,
			TopK:      req.TopK,
			Filters:   filters,
		})
		if errors.Is(err, ranking.ErrNoActiveWeights) || errors.Is(err, ranking.ErrNegativeWeight) {
			httpError(w, http.StatusConflict, "configuration_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "search failed: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// InteractionRequest is the POST /v1/interactions body.
type InteractionRequest struct {
	SessionID string `json:"session_id"`
	ProductID string `json:"product_id"`
	Kind      string `json:"kind"`
	Query     string `json:"query"`
	Position  int    `json:"position"`
}

func handleInteraction(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxSearchBodySize)
		defer r.Body.Close()

		var req InteractionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		err := deps.Search.RecordInteraction(search.Interaction{
			SessionID: req.SessionID,
			ProductID: req.ProductID,
			Kind:      req.Kind,
			Query:     req.Query,
			Position:  req.Position,
		})
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
	}
}

func handleListWeights(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		weights, err := deps.Store.ListWeights()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing weights: %v", err)
			return
		}
		if weights == nil {
			weights = []storage.RankingWeights{}
		}
		writeJSON(w, http.StatusOK, weights)
	}
}

// WeightsRequest is the POST /v1/weights body.
type WeightsRequest struct {
	Name     string  `json:"name"`
	Semantic float64 `json:"semantic"`
	Rating   float64 `json:"rating"`
	Price    float64 `json:"price"`
	Stock    float64 `json:"stock"`
	Recency  float64 `json:"recency"`
}

func handleCreateWeights(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxSearchBodySize)
		defer r.Body.Close()

		var req WeightsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}
		candidate := ranking.Weights{
			Semantic: req.Semantic, Rating: req.Rating,
			Price: req.Price, Stock: req.Stock, Recency: req.Recency,
		}
		if err := candidate.Validate(); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		row := storage.RankingWeights{
			ID:       uuid.New().String(),
			Name:     req.Name,
			Version:  1,
			Semantic: req.Semantic,
			Rating:   req.Rating,
			Price:    req.Price,
			Stock:    req.Stock,
			Recency:  req.Recency,
		}
		if err := deps.Store.InsertWeights(row); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving weights: %v", err)
			return
		}

		created, err := deps.Store.GetWeights(row.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading saved weights: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleActiveWeights(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		weights, err := deps.Store.GetActiveWeights()
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "no active weights configured")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading active weights: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, weights)
	}
}

func handleActivateWeights(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Store.ActivateWeights(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "weights %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "activating weights: %v", err)
			return
		}

		active, err := deps.Store.GetWeights(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading activated weights: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, active)
	}
}

// UploadJobResponse is the JSON view of an upload job.
type UploadJobResponse struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	TotalRows  int    `json:"total_rows"`
	FailedRows int    `json:"failed_rows"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func uploadJobResponse(job storage.UploadJob) UploadJobResponse {
	return UploadJobResponse{
		ID:         job.ID,
		Filename:   job.Filename,
		Status:     job.Status,
		TotalRows:  job.TotalRows,
		FailedRows: job.FailedRows,
		Error:      job.Error,
		CreatedAt:  job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  job.UpdatedAt.Format(time.RFC3339),
	}
}

func handleCreateUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
		defer r.Body.Close()

		filename := r.URL.Query().Get("filename")
		if filename == "" {
			filename = "upload.csv"
		}

		jobID, rows, err := ingest.EnqueueUpload(deps.Store, filename, r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"job_id": jobID,
			"rows":   rows,
		})
	}
}

func handleGetUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := deps.Store.GetUploadJob(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "upload %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading upload: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, uploadJobResponse(job))
	}
}

// EvaluationRequest is the POST /v1/evaluations body.
type EvaluationRequest struct {
	Notes string `json:"notes"`
}

// MetricResponse is the JSON view of one evaluation metric row.
type MetricResponse struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	Value      float64 `json:"value"`
	QueryCount int     `json:"query_count"`
	Notes      string  `json:"notes,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

func metricResponses(metrics []storage.EvaluationMetric) []MetricResponse {
	out := make([]MetricResponse, len(metrics))
	for i, m := range metrics {
		out[i] = MetricResponse{
			ID:         m.ID,
			Kind:       m.Kind,
			Value:      m.Value,
			QueryCount: m.QueryCount,
			Notes:      m.Notes,
			CreatedAt:  m.CreatedAt.Format(time.RFC3339),
		}
	}
	return out
}

func handleRunEvaluation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxSearchBodySize)
		defer r.Body.Close()

		var req EvaluationRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
				return
			}
		}

		metrics, err := deps.Search.RunEvaluation(req.Notes)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "evaluation failed: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"metrics": metricResponses(metrics),
		})
	}
}

func handleListEvaluations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics, err := deps.Store.ListEvaluationMetrics(0)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing metrics: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"metrics": metricResponses(metrics),
		})
	}
}

func handleReindex(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Index.Invalidate()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "reindexing"})
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
