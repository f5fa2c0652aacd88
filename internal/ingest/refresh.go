package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/shoprank/internal/catalog"
	"github.com/kalambet/shoprank/internal/embedding"
	"github.com/kalambet/shoprank/internal/storage"
)

const refreshConcurrency = 4

// RefreshStore is the slice of storage the catalog refresher needs.
type RefreshStore interface {
	ListProducts() ([]catalog.Product, error)
	UpsertEmbedding(e storage.Embedding) error
}

// RefreshResult summarizes one catalog-wide re-embedding pass.
type RefreshResult struct {
	Total  int `json:"total"`
	Failed int `json:"failed"`
}

// Refresher recomputes every product embedding, typically after switching
// embedding backends or models. Upserts are keyed on product ID, so a rerun
// converges to the same state.
type Refresher struct {
	store    RefreshStore
	embedder embedding.Embedder
	index    Invalidator
	logger   *slog.Logger
}

// NewRefresher creates a Refresher with the given dependencies.
func NewRefresher(store RefreshStore, embedder embedding.Embedder, index Invalidator) *Refresher {
	return &Refresher{
		store:    store,
		embedder: embedder,
		index:    index,
		logger:   slog.Default(),
	}
}

// Run re-embeds the whole catalog with bounded parallelism. Individual
// product failures are counted and logged, never fatal; only a failure to
// list the catalog aborts the pass.
func (r *Refresher) Run(ctx context.Context) (RefreshResult, error) {
	products, err := r.store.ListProducts()
	if err != nil {
		return RefreshResult{}, fmt.Errorf("listing products: %w", err)
	}

	var failed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)

	for _, p := range products {
		g.Go(func() error {
			if err := r.embedProduct(ctx, p); err != nil {
				failed.Add(1)
				r.logger.Warn("re-embedding skipped", "product_id", p.ID, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RefreshResult{}, err
	}

	if r.index != nil {
		r.index.Invalidate()
	}

	result := RefreshResult{Total: len(products), Failed: int(failed.Load())}
	r.logger.Info("catalog re-embedding completed", "total", result.Total, "failed", result.Failed)
	return result, nil
}

func (r *Refresher) embedProduct(ctx context.Context, p catalog.Product) error {
	text := embedding.ProductText(p)
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	return r.store.UpsertEmbedding(storage.Embedding{
		ProductID: p.ID,
		Vector:    vec,
		Dim:       r.embedder.Dimension(),
		Model:     r.embedder.Model(),
		TextUsed:  text,
	})
}
