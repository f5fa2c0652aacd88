package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kalambet/shoprank/internal/catalog"
)

// catalogHeader is the required CSV column order for catalog uploads.
var catalogHeader = []string{
	"id", "title", "description", "category", "subcategory", "brand",
	"price", "original_price", "currency", "rating", "review_count",
	"availability", "stock_quantity", "features", "is_featured",
}

// Row is one raw catalog record as read from an uploaded CSV. Fields stay
// strings until Product() validates them, so a bad row can be stored,
// counted and surfaced without losing its original content.
type Row struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	Subcategory   string `json:"subcategory"`
	Brand         string `json:"brand"`
	Price         string `json:"price"`
	OriginalPrice string `json:"original_price"`
	Currency      string `json:"currency"`
	Rating        string `json:"rating"`
	ReviewCount   string `json:"review_count"`
	Availability  string `json:"availability"`
	StockQuantity string `json:"stock_quantity"`
	Features      string `json:"features"`
	IsFeatured    string `json:"is_featured"`
}

// ParseCatalogCSV reads an uploaded catalog file. The header row must match
// catalogHeader exactly; malformed CSV framing is a parse error because the
// whole file is suspect, while per-field problems are deferred to Product().
func ParseCatalogCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(catalogHeader)

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty upload: missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i, want := range catalogHeader {
		if strings.TrimSpace(strings.ToLower(header[i])) != want {
			return nil, fmt.Errorf("unexpected header column %d: got %q, want %q", i+1, header[i], want)
		}
	}

	var out []Row
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", len(out)+2, err)
		}
		out = append(out, Row{
			ID:            strings.TrimSpace(rec[0]),
			Title:         strings.TrimSpace(rec[1]),
			Description:   strings.TrimSpace(rec[2]),
			Category:      strings.TrimSpace(rec[3]),
			Subcategory:   strings.TrimSpace(rec[4]),
			Brand:         strings.TrimSpace(rec[5]),
			Price:         strings.TrimSpace(rec[6]),
			OriginalPrice: strings.TrimSpace(rec[7]),
			Currency:      strings.TrimSpace(rec[8]),
			Rating:        strings.TrimSpace(rec[9]),
			ReviewCount:   strings.TrimSpace(rec[10]),
			Availability:  strings.TrimSpace(rec[11]),
			StockQuantity: strings.TrimSpace(rec[12]),
			Features:      strings.TrimSpace(rec[13]),
			IsFeatured:    strings.TrimSpace(rec[14]),
		})
	}
	return out, nil
}

// Product validates and converts a raw row. Features are pipe-separated
// inside their CSV cell ("usb-c|fast charge"). Empty optional fields fall
// back to zero values; id and title are required.
func (r Row) Product() (catalog.Product, error) {
	if r.ID == "" {
		return catalog.Product{}, fmt.Errorf("missing product id")
	}
	if r.Title == "" {
		return catalog.Product{}, fmt.Errorf("product %s: missing title", r.ID)
	}

	price, err := parseDecimal(r.Price, "price")
	if err != nil {
		return catalog.Product{}, fmt.Errorf("product %s: %w", r.ID, err)
	}
	originalPrice, err := parseDecimal(r.OriginalPrice, "original_price")
	if err != nil {
		return catalog.Product{}, fmt.Errorf("product %s: %w", r.ID, err)
	}

	rating, err := parseFloat(r.Rating, "rating")
	if err != nil {
		return catalog.Product{}, fmt.Errorf("product %s: %w", r.ID, err)
	}
	if rating < 0 || rating > 5 {
		return catalog.Product{}, fmt.Errorf("product %s: rating %v outside [0,5]", r.ID, rating)
	}

	reviewCount, err := parseInt(r.ReviewCount, "review_count")
	if err != nil {
		return catalog.Product{}, fmt.Errorf("product %s: %w", r.ID, err)
	}
	stockQuantity, err := parseInt(r.StockQuantity, "stock_quantity")
	if err != nil {
		return catalog.Product{}, fmt.Errorf("product %s: %w", r.ID, err)
	}

	availability, err := catalog.ParseAvailability(r.Availability)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("product %s: %w", r.ID, err)
	}

	var features []string
	for _, f := range strings.Split(r.Features, "|") {
		if f = strings.TrimSpace(f); f != "" {
			features = append(features, f)
		}
	}

	isFeatured := false
	if r.IsFeatured != "" {
		isFeatured, err = strconv.ParseBool(r.IsFeatured)
		if err != nil {
			return catalog.Product{}, fmt.Errorf("product %s: invalid is_featured %q", r.ID, r.IsFeatured)
		}
	}

	return catalog.Product{
		ID:            r.ID,
		Title:         r.Title,
		Description:   r.Description,
		Category:      r.Category,
		Subcategory:   r.Subcategory,
		Brand:         r.Brand,
		Price:         price,
		OriginalPrice: originalPrice,
		Currency:      r.Currency,
		Rating:        rating,
		ReviewCount:   reviewCount,
		Availability:  availability,
		StockQuantity: stockQuantity,
		Features:      features,
		IsFeatured:    isFeatured,
	}, nil
}

func parseDecimal(s, field string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q", field, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative %s %q", field, s)
	}
	return d, nil
}

func parseFloat(s, field string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", field, s)
	}
	return v, nil
}

func parseInt(s, field string) (int, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", field, s)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative %s %q", field, s)
	}
	return v, nil
}
