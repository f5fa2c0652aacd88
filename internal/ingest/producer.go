package ingest

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/kalambet/shoprank/internal/storage"
)

// ProducerStore is the slice of storage the upload producer needs.
type ProducerStore interface {
	CreateUploadJob(job storage.UploadJob) error
	InsertUploadRows(jobID string, payloads []string) error
	AdvanceUploadJob(id, from, to string) error
}

// EnqueueUpload parses an uploaded catalog CSV, creates a pending job,
// deposits its rows and hands the job to the worker by advancing it to
// processing. A file that fails to parse never produces a job.
func EnqueueUpload(store ProducerStore, filename string, r io.Reader) (string, int, error) {
	rows, err := ParseCatalogCSV(r)
	if err != nil {
		return "", 0, fmt.Errorf("parsing catalog csv: %w", err)
	}
	if len(rows) == 0 {
		return "", 0, fmt.Errorf("upload %s contains no data rows", filename)
	}

	payloads := make([]string, len(rows))
	for i, row := range rows {
		b, err := json.Marshal(row)
		if err != nil {
			return "", 0, fmt.Errorf("encoding row %d: %w", i+1, err)
		}
		payloads[i] = string(b)
	}

	jobID := uuid.New().String()
	if err := store.CreateUploadJob(storage.UploadJob{
		ID:        jobID,
		Filename:  filename,
		Status:    storage.UploadPending,
		TotalRows: len(rows),
	}); err != nil {
		return "", 0, fmt.Errorf("creating upload job: %w", err)
	}
	if err := store.InsertUploadRows(jobID, payloads); err != nil {
		return "", 0, fmt.Errorf("depositing upload rows: %w", err)
	}
	if err := store.AdvanceUploadJob(jobID, storage.UploadPending, storage.UploadProcessing); err != nil {
		return "", 0, fmt.Errorf("handing job to worker: %w", err)
	}
	return jobID, len(rows), nil
}
