package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateUploadJob inserts a new job in the pending state.
func (s *Store) CreateUploadJob(job UploadJob) error {
	now := time.Now().UTC().Format(time.RFC3339)
	status := job.Status
	if status == "" {
		status = UploadPending
	}
	_, err := s.db.Exec(`
		INSERT INTO upload_jobs (id, filename, status, total_rows, failed_rows, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, '', ?, ?)`,
		job.ID, job.Filename, status, job.TotalRows, now, now,
	)
	return err
}

// InsertUploadRows deposits the raw row payloads for a job in one transaction.
func (s *Store) InsertUploadRows(jobID string, payloads []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning upload rows transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO upload_rows (job_id, row_num, payload) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing upload row insert: %w", err)
	}
	defer stmt.Close()

	for i, payload := range payloads {
		if _, err := stmt.Exec(jobID, i+1, payload); err != nil {
			return fmt.Errorf("inserting upload row %d: %w", i+1, err)
		}
	}

	return tx.Commit()
}

// ListUploadRows returns a job's rows in row order.
func (s *Store) ListUploadRows(jobID string) ([]UploadRow, error) {
	rows, err := s.db.Query(`SELECT job_id, row_num, payload FROM upload_rows WHERE job_id = ? ORDER BY row_num ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("querying upload rows: %w", err)
	}
	defer rows.Close()

	var results []UploadRow
	for rows.Next() {
		var r UploadRow
		if err := rows.Scan(&r.JobID, &r.RowNum, &r.Payload); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetUploadJob returns one job by ID.
func (s *Store) GetUploadJob(id string) (UploadJob, error) {
	var job UploadJob
	var createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT id, filename, status, total_rows, failed_rows, error, created_at, updated_at
		FROM upload_jobs WHERE id = ?`, id,
	).Scan(&job.ID, &job.Filename, &job.Status, &job.TotalRows, &job.FailedRows, &job.Error, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return UploadJob{}, ErrNotFound
	}
	if err != nil {
		return UploadJob{}, err
	}
	if job.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return UploadJob{}, fmt.Errorf("parsing created_at for job %s: %w", job.ID, err)
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return UploadJob{}, fmt.Errorf("parsing updated_at for job %s: %w", job.ID, err)
	}
	return job, nil
}

// AdvanceUploadJob moves a job from one status to the next. The transition
// is guarded by the expected current status, so state never goes backwards
// and concurrent workers cannot double-claim.
func (s *Store) AdvanceUploadJob(id, from, to string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE upload_jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, now, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimUploadJob atomically picks the oldest job in "processing" and moves
// it to "embedding". Returns (nil, nil) when no job is waiting.
func (s *Store) ClaimUploadJob() (*UploadJob, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var job UploadJob
	var createdAt, updatedAt string
	err = tx.QueryRow(`
		SELECT id, filename, status, total_rows, failed_rows, error, created_at, updated_at
		FROM upload_jobs WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT 1`,
		UploadProcessing,
	).Scan(&job.ID, &job.Filename, &job.Status, &job.TotalRows, &job.FailedRows, &job.Error, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next upload job: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := tx.Exec(`UPDATE upload_jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		UploadEmbedding, now, job.ID, UploadProcessing)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	job.Status = UploadEmbedding
	if job.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", job.ID, err)
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339, now); err != nil {
		return nil, fmt.Errorf("parsing updated_at for job %s: %w", job.ID, err)
	}
	return &job, nil
}

// CompleteUploadJob marks a job completed and records its row counts.
// Per-row failures are counted here, never escalated to job failure.
func (s *Store) CompleteUploadJob(id string, totalRows, failedRows int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE upload_jobs SET status = ?, total_rows = ?, failed_rows = ?, updated_at = ?
		WHERE id = ?`,
		UploadCompleted, totalRows, failedRows, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailUploadJob marks a job failed with an error message. Reserved for
// unrecoverable job-level errors.
func (s *Store) FailUploadJob(id, errMsg string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE upload_jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		UploadFailed, errMsg, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
