// Package index maintains an in-memory candidate snapshot of the catalog
// joined with its embeddings. Snapshots are immutable once built and
// published by an atomic pointer swap, so live queries never observe a
// half-built index.
package index

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kalambet/shoprank/internal/catalog"
	"github.com/kalambet/shoprank/internal/ranking"
	"github.com/kalambet/shoprank/internal/storage"
)

// Source supplies the catalog rows a snapshot is built from.
type Source interface {
	ListProducts() ([]catalog.Product, error)
	ListEmbeddings() ([]storage.Embedding, error)
}

// Snapshot is a read-only view of the embeddable catalog, ordered by
// product ID.
type Snapshot struct {
	candidates []ranking.Candidate
	builtAt    time.Time
}

// Candidates returns the snapshot entries that pass the filters. The
// returned slice shares the snapshot's backing candidates, which are
// read-only between refreshes.
func (s *Snapshot) Candidates(filters catalog.Filters) []ranking.Candidate {
	if filters.IsZero() {
		return s.candidates
	}
	var out []ranking.Candidate
	for _, c := range s.candidates {
		if filters.Match(c.Product) {
			out = append(out, c)
		}
	}
	return out
}

// Size returns the number of candidates in the snapshot.
func (s *Snapshot) Size() int { return len(s.candidates) }

// BuiltAt returns when the snapshot was constructed.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Index builds and serves catalog snapshots. A snapshot is served until it
// ages past maxAge or Invalidate is called; the first read after that
// rebuilds synchronously (rebuilds are serialized on rebuildMu), while reads
// of a current snapshot stay lock-free on the atomic pointer.
type Index struct {
	source Source
	dim    int
	maxAge time.Duration
	logger *slog.Logger

	snap      atomic.Pointer[Snapshot]
	rebuildMu sync.Mutex
}

// New creates an Index over the given source. dim is the expected embedding
// dimension; candidates with any other dimension are excluded at build time.
func New(source Source, dim int, maxAge time.Duration) *Index {
	return &Index{
		source: source,
		dim:    dim,
		maxAge: maxAge,
		logger: slog.Default(),
	}
}

// Candidates returns the filtered candidate set from the current snapshot,
// rebuilding first if none exists or the current one is stale.
func (ix *Index) Candidates(filters catalog.Filters) ([]ranking.Candidate, error) {
	snap := ix.snap.Load()
	if snap == nil || (ix.maxAge > 0 && time.Since(snap.builtAt) > ix.maxAge) {
		var err error
		if snap, err = ix.Refresh(); err != nil {
			return nil, err
		}
	}
	return snap.Candidates(filters), nil
}

// Refresh builds a new snapshot from the source and publishes it. Products
// without an embedding, or with an embedding of the wrong dimension, are
// excluded and logged; they are never silently truncated into the index.
func (ix *Index) Refresh() (*Snapshot, error) {
	ix.rebuildMu.Lock()
	defer ix.rebuildMu.Unlock()

	products, err := ix.source.ListProducts()
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	embeddings, err := ix.source.ListEmbeddings()
	if err != nil {
		return nil, fmt.Errorf("listing embeddings: %w", err)
	}

	byProduct := make(map[string][]float32, len(embeddings))
	for _, e := range embeddings {
		byProduct[e.ProductID] = e.Vector
	}

	// ListProducts is ordered by ID, so the snapshot inherits a stable order.
	candidates := make([]ranking.Candidate, 0, len(products))
	for _, p := range products {
		vec, ok := byProduct[p.ID]
		if !ok {
			ix.logger.Warn("excluding product without embedding from index", "product_id", p.ID)
			continue
		}
		if len(vec) != ix.dim {
			ix.logger.Warn("excluding product with mismatched embedding dimension from index",
				"product_id", p.ID, "got_dim", len(vec), "want_dim", ix.dim)
			continue
		}
		candidates = append(candidates, ranking.Candidate{Product: p, Vector: vec})
	}

	snap := &Snapshot{candidates: candidates, builtAt: time.Now()}
	ix.snap.Store(snap)
	ix.logger.Debug("published index snapshot", "candidates", len(candidates))
	return snap, nil
}

// Invalidate drops the current snapshot so the next read rebuilds. Called
// after ingest or an embedding refresh completes.
func (ix *Index) Invalidate() {
	ix.snap.Store(nil)
}
