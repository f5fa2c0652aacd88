package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/shoprank/internal/embedding"
	"github.com/kalambet/shoprank/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) Invalidate() { c.calls++ }

func TestWorkerProcessesUpload(t *testing.T) {
	s := openTestStore(t)
	embedder := embedding.NewHashEmbedder(64)
	inv := &countingInvalidator{}
	w := NewWorker(s, embedder, inv, time.Millisecond)

	jobID, rowCount, err := EnqueueUpload(s, "catalog.csv", strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("EnqueueUpload: %v", err)
	}
	if rowCount != 2 {
		t.Fatalf("rowCount = %d, want 2", rowCount)
	}

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("RunOnce should have claimed the enqueued job")
	}

	job, err := s.GetUploadJob(jobID)
	if err != nil {
		t.Fatalf("GetUploadJob: %v", err)
	}
	if job.Status != storage.UploadCompleted {
		t.Errorf("job status = %s, want completed", job.Status)
	}
	if job.TotalRows != 2 || job.FailedRows != 0 {
		t.Errorf("job counts = %d/%d, want 2/0", job.TotalRows, job.FailedRows)
	}

	p, err := s.GetProduct("p1")
	if err != nil {
		t.Fatalf("GetProduct(p1): %v", err)
	}
	if p.Title != "Red Leather Wallet" {
		t.Errorf("product title = %q", p.Title)
	}

	emb, err := s.GetEmbedding("p1")
	if err != nil {
		t.Fatalf("GetEmbedding(p1): %v", err)
	}
	if emb.Dim != 64 || len(emb.Vector) != 64 {
		t.Errorf("embedding dim = %d/%d, want 64", emb.Dim, len(emb.Vector))
	}
	if emb.Model != embedder.Model() {
		t.Errorf("embedding model = %q, want %q", emb.Model, embedder.Model())
	}

	if inv.calls != 1 {
		t.Errorf("snapshot invalidated %d times, want 1", inv.calls)
	}
}

func TestWorkerCountsBadRowsWithoutFailingJob(t *testing.T) {
	s := openTestStore(t)
	w := NewWorker(s, embedding.NewHashEmbedder(32), nil, 0)

	csv := `id,title,description,category,subcategory,brand,price,original_price,currency,rating,review_count,availability,stock_quantity,features,is_featured
p1,Wallet,,accessories,,,10.00,,USD,4.0,1,in_stock,5,,false
,No ID Row,,accessories,,,10.00,,USD,4.0,1,in_stock,5,,false
p3,Mug,,kitchen,,,8.00,,USD,9.9,1,in_stock,5,,false
`
	jobID, _, err := EnqueueUpload(s, "mixed.csv", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("EnqueueUpload: %v", err)
	}

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	job, err := s.GetUploadJob(jobID)
	if err != nil {
		t.Fatalf("GetUploadJob: %v", err)
	}
	if job.Status != storage.UploadCompleted {
		t.Errorf("job status = %s, want completed despite bad rows", job.Status)
	}
	if job.TotalRows != 3 || job.FailedRows != 2 {
		t.Errorf("job counts = %d/%d, want 3/2", job.TotalRows, job.FailedRows)
	}

	if _, err := s.GetProduct("p1"); err != nil {
		t.Errorf("good row p1 should be ingested: %v", err)
	}
	if _, err := s.GetProduct("p3"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("bad-rating row p3 should be skipped, got %v", err)
	}
}

func TestWorkerIdleWhenQueueEmpty(t *testing.T) {
	s := openTestStore(t)
	w := NewWorker(s, embedding.NewHashEmbedder(32), nil, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if done {
		t.Error("RunOnce reported work on an empty queue")
	}
}

func TestWorkerReingestIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	w := NewWorker(s, embedding.NewHashEmbedder(32), nil, 0)

	for i := 0; i < 2; i++ {
		if _, _, err := EnqueueUpload(s, "catalog.csv", strings.NewReader(sampleCSV)); err != nil {
			t.Fatalf("EnqueueUpload #%d: %v", i+1, err)
		}
		if _, err := w.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce #%d: %v", i+1, err)
		}
	}

	n, err := s.CountProducts()
	if err != nil {
		t.Fatalf("CountProducts: %v", err)
	}
	if n != 2 {
		t.Errorf("products after re-ingest = %d, want 2", n)
	}
	m, err := s.CountEmbeddings()
	if err != nil {
		t.Fatalf("CountEmbeddings: %v", err)
	}
	if m != 2 {
		t.Errorf("embeddings after re-ingest = %d, want 2", m)
	}
}

func TestEnqueueUploadRejectsBadCSV(t *testing.T) {
	s := openTestStore(t)
	if _, _, err := EnqueueUpload(s, "bad.csv", strings.NewReader("not,a,catalog\n")); err == nil {
		t.Fatal("expected error for wrong header")
	}
}

func TestRefresherReembedsCatalog(t *testing.T) {
	s := openTestStore(t)
	w := NewWorker(s, embedding.NewHashEmbedder(32), nil, 0)
	if _, _, err := EnqueueUpload(s, "catalog.csv", strings.NewReader(sampleCSV)); err != nil {
		t.Fatalf("EnqueueUpload: %v", err)
	}
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	// Switch to a wider embedder and refresh everything.
	inv := &countingInvalidator{}
	refresher := NewRefresher(s, embedding.NewHashEmbedder(128), inv)
	result, err := refresher.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Total != 2 || result.Failed != 0 {
		t.Errorf("result = %+v, want 2 total, 0 failed", result)
	}

	emb, err := s.GetEmbedding("p1")
	if err != nil {
		t.Fatalf("GetEmbedding: %v", err)
	}
	if emb.Dim != 128 {
		t.Errorf("refreshed dim = %d, want 128", emb.Dim)
	}
	if inv.calls != 1 {
		t.Errorf("snapshot invalidated %d times, want 1", inv.calls)
	}
}

type failingEmbedder struct {
	*embedding.HashEmbedder
	failID string
}

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, f.failID) {
		return nil, errors.New("model unavailable")
	}
	return f.HashEmbedder.Embed(ctx, text)
}

func TestRefresherCountsFailures(t *testing.T) {
	s := openTestStore(t)
	w := NewWorker(s, embedding.NewHashEmbedder(32), nil, 0)
	if _, _, err := EnqueueUpload(s, "catalog.csv", strings.NewReader(sampleCSV)); err != nil {
		t.Fatalf("EnqueueUpload: %v", err)
	}
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	refresher := NewRefresher(s, &failingEmbedder{
		HashEmbedder: embedding.NewHashEmbedder(32),
		failID:       "sneakers",
	}, nil)
	result, err := refresher.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Total != 2 || result.Failed != 1 {
		t.Errorf("result = %+v, want 2 total, 1 failed", result)
	}
}
