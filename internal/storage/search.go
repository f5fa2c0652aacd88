package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// InsertSearchResults writes a search log and its per-result explanation
// rows in a single transaction, so a query is either fully logged or not at all.
func (s *Store) InsertSearchResults(log SearchLog, explanations []Explanation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning search log transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := log.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var queryVector []byte
	if log.QueryVector != nil {
		queryVector = encodeFloat32s(log.QueryVector)
	}
	filters := log.Filters
	if filters == "" {
		filters = "{}"
	}

	if _, err := tx.Exec(`
		INSERT INTO search_logs (id, session_id, query, query_vector, result_count, latency_ms, filters, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.SessionID, log.Query, queryVector, log.ResultCount, log.LatencyMs,
		filters, createdAt.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting search log: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO search_explanations (log_id, product_id, position, final_score,
			semantic_score, rating_score, price_score, stock_score, recency_score,
			matched_terms, explanation, was_clicked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`)
	if err != nil {
		return fmt.Errorf("preparing explanation insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range explanations {
		matched := e.MatchedTerms
		if matched == "" {
			matched = "[]"
		}
		if _, err := stmt.Exec(log.ID, e.ProductID, e.Position, e.FinalScore,
			e.Semantic, e.Rating, e.Price, e.Stock, e.Recency,
			matched, e.Explanation,
		); err != nil {
			return fmt.Errorf("inserting explanation for %s: %w", e.ProductID, err)
		}
	}

	return tx.Commit()
}

// GetSearchLog returns one search log by ID.
func (s *Store) GetSearchLog(id string) (SearchLog, error) {
	row := s.db.QueryRow(`
		SELECT id, session_id, query, query_vector, result_count, latency_ms, filters, created_at
		FROM search_logs WHERE id = ?`, id)
	log, err := scanSearchLog(row)
	if err == sql.ErrNoRows {
		return SearchLog{}, ErrNotFound
	}
	return log, err
}

// ListSearchLogs returns logs newest first. limit <= 0 returns all, which
// the evaluation engine uses for full-history runs.
func (s *Store) ListSearchLogs(limit int) ([]SearchLog, error) {
	query := `SELECT id, session_id, query, query_vector, result_count, latency_ms, filters, created_at
		FROM search_logs ORDER BY created_at DESC, id ASC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(query+` LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("querying search logs: %w", err)
	}
	defer rows.Close()

	var logs []SearchLog
	for rows.Next() {
		log, err := scanSearchLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func scanSearchLog(row rowScanner) (SearchLog, error) {
	var log SearchLog
	var queryVector []byte
	var createdAt string
	err := row.Scan(&log.ID, &log.SessionID, &log.Query, &queryVector,
		&log.ResultCount, &log.LatencyMs, &log.Filters, &createdAt)
	if err != nil {
		return SearchLog{}, err
	}
	if len(queryVector) > 0 {
		if log.QueryVector, err = decodeFloat32s(queryVector); err != nil {
			return SearchLog{}, fmt.Errorf("decoding query vector for %s: %w", log.ID, err)
		}
	}
	if log.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return SearchLog{}, fmt.Errorf("parsing created_at for %s: %w", log.ID, err)
	}
	return log, nil
}

// GetExplanations returns the explanation rows for a log, ordered by rank.
func (s *Store) GetExplanations(logID string) ([]Explanation, error) {
	rows, err := s.db.Query(`
		SELECT log_id, product_id, position, final_score,
			semantic_score, rating_score, price_score, stock_score, recency_score,
			matched_terms, explanation, was_clicked
		FROM search_explanations WHERE log_id = ? ORDER BY position ASC`, logID)
	if err != nil {
		return nil, fmt.Errorf("querying explanations: %w", err)
	}
	defer rows.Close()

	var results []Explanation
	for rows.Next() {
		var e Explanation
		var wasClicked int
		if err := rows.Scan(&e.LogID, &e.ProductID, &e.Position, &e.FinalScore,
			&e.Semantic, &e.Rating, &e.Price, &e.Stock, &e.Recency,
			&e.MatchedTerms, &e.Explanation, &wasClicked); err != nil {
			return nil, err
		}
		e.WasClicked = wasClicked != 0
		results = append(results, e)
	}
	return results, rows.Err()
}

// MarkExplanationClicked flips was_clicked on the explanation row for the
// most recent log matching (session, query). The most-recent log wins when
// the same session repeated the query. Returns ErrNotFound when no
// explanation row matches, which callers treat as benign (the interaction
// may predate logging or reference an unranked product).
func (s *Store) MarkExplanationClicked(sessionID, query, productID string) error {
	res, err := s.db.Exec(`
		UPDATE search_explanations SET was_clicked = 1
		WHERE product_id = ? AND log_id = (
			SELECT id FROM search_logs
			WHERE session_id = ? AND query = ?
			ORDER BY created_at DESC, id DESC LIMIT 1
		)`, productID, sessionID, query)
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

// InsertInteraction appends a client-observed interaction event.
func (s *Store) InsertInteraction(i Interaction) error {
	createdAt := i.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO interactions (id, session_id, product_id, kind, query, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.SessionID, i.ProductID, i.Kind, i.Query, i.Position,
		createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListInteractionsByKinds returns all interactions whose kind is in kinds,
// oldest first. The evaluation engine passes the click-like kinds.
func (s *Store) ListInteractionsByKinds(kinds []string) ([]Interaction, error) {
	if len(kinds) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat(",?", len(kinds)-1)
	query := `SELECT id, session_id, product_id, kind, query, position, created_at
		FROM interactions WHERE kind IN (?` + placeholders + `)
		ORDER BY created_at ASC, id ASC`

	args := make([]any, len(kinds))
	for i, k := range kinds {
		args[i] = k
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying interactions: %w", err)
	}
	defer rows.Close()

	var results []Interaction
	for rows.Next() {
		var ix Interaction
		var createdAt string
		if err := rows.Scan(&ix.ID, &ix.SessionID, &ix.ProductID, &ix.Kind, &ix.Query, &ix.Position, &createdAt); err != nil {
			return nil, err
		}
		if ix.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for interaction %s: %w", ix.ID, err)
		}
		results = append(results, ix)
	}
	return results, rows.Err()
}

// InsertEvaluationMetric appends one metric snapshot. Prior rows are never
// touched; each run adds new rows so history is preserved for trends.
func (s *Store) InsertEvaluationMetric(m EvaluationMetric) error {
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO evaluation_metrics (id, kind, value, query_count, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Kind, m.Value, m.QueryCount, m.Notes,
		createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListEvaluationMetrics returns metric rows newest first.
func (s *Store) ListEvaluationMetrics(limit int) ([]EvaluationMetric, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, kind, value, query_count, notes, created_at
		FROM evaluation_metrics ORDER BY created_at DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying evaluation metrics: %w", err)
	}
	defer rows.Close()

	var results []EvaluationMetric
	for rows.Next() {
		var m EvaluationMetric
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Kind, &m.Value, &m.QueryCount, &m.Notes, &createdAt); err != nil {
			return nil, err
		}
		if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for metric %s: %w", m.ID, err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}
