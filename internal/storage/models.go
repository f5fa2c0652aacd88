package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Embedding is the stored vector for a product, one-to-one on ProductID.
// TextUsed preserves the exact string that was embedded for auditability.
type Embedding struct {
	ProductID string
	Vector    []float32
	Dim       int
	Model     string
	TextUsed  string
	UpdatedAt time.Time
}

// RankingWeights is a named, versioned scoring configuration. At most one
// row is active at a time; ActivateWeights enforces that in a transaction.
type RankingWeights struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Version   int     `json:"version"`
	Semantic  float64 `json:"semantic"`
	Rating    float64 `json:"rating"`
	Price     float64 `json:"price"`
	Stock     float64 `json:"stock"`
	Recency   float64 `json:"recency"`
	IsActive  bool    `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchLog records one executed query. Created once, never mutated.
type SearchLog struct {
	ID          string
	SessionID   string
	Query       string
	QueryVector []float32 // optional
	ResultCount int
	LatencyMs   int64
	Filters     string // JSON object stored as text
	CreatedAt   time.Time
}

// Explanation is the per-result scoring breakdown for one (log, product)
// pair. WasClicked is the only field mutated after insert.
type Explanation struct {
	LogID        string
	ProductID    string
	Position     int // 1-based rank
	FinalScore   float64
	Semantic     float64
	Rating       float64
	Price        float64
	Stock        float64
	Recency      float64
	MatchedTerms string // JSON array stored as text
	Explanation  string
	WasClicked   bool
}

// Interaction is a client-observed event. Append-only.
type Interaction struct {
	ID        string
	SessionID string
	ProductID string
	Kind      string
	Query     string
	Position  int // 0 when unknown
	CreatedAt time.Time
}

// EvaluationMetric is one computed metric snapshot. Append-only; each
// evaluation run inserts new rows so history is preserved for trends.
type EvaluationMetric struct {
	ID         string
	Kind       string
	Value      float64
	QueryCount int
	Notes      string
	CreatedAt  time.Time
}

// Upload job statuses. A job advances pending -> processing -> embedding ->
// completed, or to failed on an unrecoverable job-level error. Per-row
// failures only increment FailedRows.
const (
	UploadPending    = "pending"
	UploadProcessing = "processing"
	UploadEmbedding  = "embedding"
	UploadCompleted  = "completed"
	UploadFailed     = "failed"
)

// UploadJob tracks one catalog CSV upload through its state machine.
type UploadJob struct {
	ID         string
	Filename   string
	Status     string
	TotalRows  int
	FailedRows int
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UploadRow is one raw product row deposited by the upload producer,
// serialized as JSON.
type UploadRow struct {
	JobID   string
	RowNum  int
	Payload string
}
