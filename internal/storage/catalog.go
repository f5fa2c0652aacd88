package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kalambet/shoprank/internal/catalog"
)

const productColumns = `id, title, description, category, subcategory, brand,
	price, original_price, currency, rating, review_count, availability,
	stock_quantity, features, is_featured, created_at, updated_at`

// UpsertProduct inserts or replaces a product row keyed on its ID.
// Re-ingestion overwrites every field including updated_at.
func (s *Store) UpsertProduct(p catalog.Product) error {
	features, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("marshalling features for %s: %w", p.ID, err)
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	_, err = s.db.Exec(`
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			category = excluded.category,
			subcategory = excluded.subcategory,
			brand = excluded.brand,
			price = excluded.price,
			original_price = excluded.original_price,
			currency = excluded.currency,
			rating = excluded.rating,
			review_count = excluded.review_count,
			availability = excluded.availability,
			stock_quantity = excluded.stock_quantity,
			features = excluded.features,
			is_featured = excluded.is_featured,
			updated_at = excluded.updated_at`,
		p.ID, p.Title, p.Description, p.Category, p.Subcategory, p.Brand,
		p.Price.String(), p.OriginalPrice.String(), p.Currency, p.Rating, p.ReviewCount,
		string(p.Availability), p.StockQuantity, string(features), boolToInt(p.IsFeatured),
		createdAt.UTC().Format(time.RFC3339), updatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetProduct returns a single product by ID.
func (s *Store) GetProduct(id string) (catalog.Product, error) {
	row := s.db.QueryRow(`SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return catalog.Product{}, ErrNotFound
	}
	return p, err
}

// ListProducts returns all products ordered by ID, so repeated reads over
// unchanged data are stable.
func (s *Store) ListProducts() ([]catalog.Product, error) {
	rows, err := s.db.Query(`SELECT ` + productColumns + ` FROM products ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	var products []catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// CountProducts returns the number of catalog rows.
func (s *Store) CountProducts() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM products").Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (catalog.Product, error) {
	var p catalog.Product
	var price, originalPrice, availability, features, createdAt, updatedAt string
	var isFeatured int
	err := row.Scan(
		&p.ID, &p.Title, &p.Description, &p.Category, &p.Subcategory, &p.Brand,
		&price, &originalPrice, &p.Currency, &p.Rating, &p.ReviewCount,
		&availability, &p.StockQuantity, &features, &isFeatured, &createdAt, &updatedAt,
	)
	if err != nil {
		return catalog.Product{}, err
	}

	if p.Price, err = decimal.NewFromString(price); err != nil {
		return catalog.Product{}, fmt.Errorf("parsing price for %s: %w", p.ID, err)
	}
	if p.OriginalPrice, err = decimal.NewFromString(originalPrice); err != nil {
		return catalog.Product{}, fmt.Errorf("parsing original_price for %s: %w", p.ID, err)
	}
	p.Availability = catalog.Availability(availability)
	if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
		return catalog.Product{}, fmt.Errorf("parsing features for %s: %w", p.ID, err)
	}
	p.IsFeatured = isFeatured != 0
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return catalog.Product{}, fmt.Errorf("parsing created_at for %s: %w", p.ID, err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return catalog.Product{}, fmt.Errorf("parsing updated_at for %s: %w", p.ID, err)
	}
	return p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// UpsertEmbedding inserts or replaces the embedding for a product.
// Keyed on product_id, so re-running a refresh is idempotent.
func (s *Store) UpsertEmbedding(e Embedding) error {
	updatedAt := e.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	dim := e.Dim
	if dim == 0 {
		dim = len(e.Vector)
	}
	_, err := s.db.Exec(`
		INSERT INTO embeddings (product_id, vector, dim, model, text_used, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET
			vector = excluded.vector,
			dim = excluded.dim,
			model = excluded.model,
			text_used = excluded.text_used,
			updated_at = excluded.updated_at`,
		e.ProductID, encodeFloat32s(e.Vector), dim, e.Model, e.TextUsed,
		updatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetEmbedding returns the embedding for a product, or ErrNotFound.
func (s *Store) GetEmbedding(productID string) (Embedding, error) {
	var e Embedding
	var blob []byte
	var updatedAt string
	err := s.db.QueryRow(`
		SELECT product_id, vector, dim, model, text_used, updated_at
		FROM embeddings WHERE product_id = ?`, productID,
	).Scan(&e.ProductID, &blob, &e.Dim, &e.Model, &e.TextUsed, &updatedAt)
	if err == sql.ErrNoRows {
		return Embedding{}, ErrNotFound
	}
	if err != nil {
		return Embedding{}, err
	}
	if e.Vector, err = decodeFloat32s(blob); err != nil {
		return Embedding{}, fmt.Errorf("decoding vector for %s: %w", productID, err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Embedding{}, fmt.Errorf("parsing updated_at for %s: %w", productID, err)
	}
	return e, nil
}

// ListEmbeddings returns all embeddings ordered by product ID.
func (s *Store) ListEmbeddings() ([]Embedding, error) {
	rows, err := s.db.Query(`
		SELECT product_id, vector, dim, model, text_used, updated_at
		FROM embeddings ORDER BY product_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []Embedding
	for rows.Next() {
		var e Embedding
		var blob []byte
		var updatedAt string
		if err := rows.Scan(&e.ProductID, &blob, &e.Dim, &e.Model, &e.TextUsed, &updatedAt); err != nil {
			return nil, err
		}
		if e.Vector, err = decodeFloat32s(blob); err != nil {
			return nil, fmt.Errorf("decoding vector for %s: %w", e.ProductID, err)
		}
		if e.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at for %s: %w", e.ProductID, err)
		}
		embeddings = append(embeddings, e)
	}
	return embeddings, rows.Err()
}

// CountEmbeddings returns the number of stored embeddings.
func (s *Store) CountEmbeddings() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM embeddings").Scan(&count)
	return count, err
}
