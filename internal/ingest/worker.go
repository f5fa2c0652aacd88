package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/shoprank/internal/catalog"
	"github.com/kalambet/shoprank/internal/embedding"
	"github.com/kalambet/shoprank/internal/storage"
)

// JobStore abstracts the upload-job queue operations.
type JobStore interface {
	ClaimUploadJob() (*storage.UploadJob, error)
	ListUploadRows(jobID string) ([]storage.UploadRow, error)
	CompleteUploadJob(id string, totalRows, failedRows int) error
	FailUploadJob(id string, errMsg string) error
	UpsertProduct(p catalog.Product) error
	UpsertEmbedding(e storage.Embedding) error
}

// Invalidator marks the candidate snapshot stale after a catalog change.
type Invalidator interface {
	Invalidate()
}

// Worker processes upload jobs from the SQLite queue.
type Worker struct {
	store    JobStore
	embedder embedding.Embedder
	index    Invalidator
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, embedder embedding.Embedder, index Invalidator, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		embedder: embedder,
		index:    index,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single upload job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimUploadJob()
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("upload job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailUploadJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}
	return true, nil
}

// processJob runs every row of a claimed job. Per-row problems are counted
// and logged but never fail the job; only queue-level errors do.
func (w *Worker) processJob(ctx context.Context, job *storage.UploadJob) error {
	rows, err := w.store.ListUploadRows(job.ID)
	if err != nil {
		return fmt.Errorf("loading rows for job %s: %w", job.ID, err)
	}

	failed := 0
	for _, row := range rows {
		if err := w.processRow(ctx, row); err != nil {
			failed++
			w.logger.Warn("upload row skipped",
				"job_id", job.ID, "row", row.RowNum, "error", err)
		}
	}

	if err := w.store.CompleteUploadJob(job.ID, len(rows), failed); err != nil {
		return fmt.Errorf("completing job %s: %w", job.ID, err)
	}

	if w.index != nil {
		w.index.Invalidate()
	}
	w.logger.Info("upload job completed",
		"job_id", job.ID, "rows", len(rows), "failed", failed)
	return nil
}

func (w *Worker) processRow(ctx context.Context, row storage.UploadRow) error {
	var raw Row
	if err := json.Unmarshal([]byte(row.Payload), &raw); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	product, err := raw.Product()
	if err != nil {
		return err
	}

	if err := w.store.UpsertProduct(product); err != nil {
		return fmt.Errorf("upserting product %s: %w", product.ID, err)
	}

	text := embedding.ProductText(product)
	vec, err := w.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding product %s: %w", product.ID, err)
	}

	if err := w.store.UpsertEmbedding(storage.Embedding{
		ProductID: product.ID,
		Vector:    vec,
		Dim:       w.embedder.Dimension(),
		Model:     w.embedder.Model(),
		TextUsed:  text,
	}); err != nil {
		return fmt.Errorf("upserting embedding for %s: %w", product.ID, err)
	}
	return nil
}
