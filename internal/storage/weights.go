package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const weightsColumns = `id, name, version, semantic, rating, price, stock, recency, is_active, created_at`

// InsertWeights adds a new (inactive) weights configuration.
// Use ActivateWeights to make it the one live configuration.
func (s *Store) InsertWeights(w RankingWeights) error {
	createdAt := w.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	version := w.Version
	if version == 0 {
		version = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO ranking_weights (`+weightsColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		w.ID, w.Name, version, w.Semantic, w.Rating, w.Price, w.Stock, w.Recency,
		createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetWeights returns a weights configuration by ID.
func (s *Store) GetWeights(id string) (RankingWeights, error) {
	row := s.db.QueryRow(`SELECT `+weightsColumns+` FROM ranking_weights WHERE id = ?`, id)
	w, err := scanWeights(row)
	if err == sql.ErrNoRows {
		return RankingWeights{}, ErrNotFound
	}
	return w, err
}

// GetActiveWeights returns the single active configuration, or ErrNotFound
// when no row is active. Callers read this once per query so one search is
// never scored under two different configurations.
func (s *Store) GetActiveWeights() (RankingWeights, error) {
	row := s.db.QueryRow(`SELECT ` + weightsColumns + ` FROM ranking_weights WHERE is_active = 1 LIMIT 1`)
	w, err := scanWeights(row)
	if err == sql.ErrNoRows {
		return RankingWeights{}, ErrNotFound
	}
	return w, err
}

// ListWeights returns all configurations, newest first.
func (s *Store) ListWeights() ([]RankingWeights, error) {
	rows, err := s.db.Query(`SELECT ` + weightsColumns + ` FROM ranking_weights ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying ranking weights: %w", err)
	}
	defer rows.Close()

	var results []RankingWeights
	for rows.Next() {
		w, err := scanWeights(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, w)
	}
	return results, rows.Err()
}

// ActivateWeights makes the given configuration the only active one.
// The deactivate-then-activate pair runs in a single transaction, so
// concurrent readers never observe two active rows.
func (s *Store) ActivateWeights(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning activate transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM ranking_weights WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(`UPDATE ranking_weights SET is_active = 0 WHERE is_active = 1`); err != nil {
		return fmt.Errorf("deactivating weights: %w", err)
	}
	if _, err := tx.Exec(`UPDATE ranking_weights SET is_active = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("activating weights %s: %w", id, err)
	}

	return tx.Commit()
}

func scanWeights(row rowScanner) (RankingWeights, error) {
	var w RankingWeights
	var isActive int
	var createdAt string
	err := row.Scan(&w.ID, &w.Name, &w.Version, &w.Semantic, &w.Rating, &w.Price,
		&w.Stock, &w.Recency, &isActive, &createdAt)
	if err != nil {
		return RankingWeights{}, err
	}
	w.IsActive = isActive != 0
	if w.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return RankingWeights{}, fmt.Errorf("parsing created_at for weights %s: %w", w.ID, err)
	}
	return w, nil
}
