package storage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kalambet/shoprank/internal/catalog"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testProduct(id string) catalog.Product {
	now := time.Now().UTC().Truncate(time.Second)
	return catalog.Product{
		ID:            id,
		Title:         "Red Leather Wallet",
		Description:   "A slim wallet.",
		Category:      "accessories",
		Subcategory:   "wallets",
		Brand:         "Acme",
		Price:         decimal.NewFromFloat(19.99),
		OriginalPrice: decimal.NewFromFloat(24.99),
		Currency:      "USD",
		Rating:        4.8,
		ReviewCount:   321,
		Availability:  catalog.InStock,
		StockQuantity: 42,
		Features:      []string{"RFID blocking", "leather"},
		IsFeatured:    true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestProductRoundTrip(t *testing.T) {
	s := openTestStore(t)

	want := testProduct("p1")
	if err := s.UpsertProduct(want); err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}

	got, err := s.GetProduct("p1")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got.Title != want.Title || got.Brand != want.Brand || got.Rating != want.Rating {
		t.Errorf("round-trip mismatch: got %+v", got)
	}
	if !got.Price.Equal(want.Price) {
		t.Errorf("price = %s, want %s", got.Price, want.Price)
	}
	if got.Availability != catalog.InStock {
		t.Errorf("availability = %s, want in_stock", got.Availability)
	}
	if len(got.Features) != 2 || got.Features[0] != "RFID blocking" {
		t.Errorf("features = %v", got.Features)
	}
	if !got.IsFeatured {
		t.Error("is_featured lost in round-trip")
	}
}

func TestUpsertProductOverwrites(t *testing.T) {
	s := openTestStore(t)

	p := testProduct("p1")
	if err := s.UpsertProduct(p); err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}
	p.Title = "Blue Leather Wallet"
	p.Rating = 3.2
	if err := s.UpsertProduct(p); err != nil {
		t.Fatalf("second UpsertProduct: %v", err)
	}

	got, err := s.GetProduct("p1")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got.Title != "Blue Leather Wallet" || got.Rating != 3.2 {
		t.Errorf("upsert did not overwrite: %+v", got)
	}

	count, err := s.CountProducts()
	if err != nil {
		t.Fatalf("CountProducts: %v", err)
	}
	if count != 1 {
		t.Errorf("product count = %d, want 1", count)
	}
}

func TestGetProductNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetProduct("missing"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListProductsOrderedByID(t *testing.T) {
	s := openTestStore(t)
	for _, id := range []string{"c", "a", "b"} {
		if err := s.UpsertProduct(testProduct(id)); err != nil {
			t.Fatalf("UpsertProduct(%s): %v", id, err)
		}
	}
	products, err := s.ListProducts()
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(products) != 3 {
		t.Fatalf("got %d products, want 3", len(products))
	}
	for i, want := range []string{"a", "b", "c"} {
		if products[i].ID != want {
			t.Errorf("products[%d].ID = %s, want %s", i, products[i].ID, want)
		}
	}
}

func TestEmbeddingRoundTripAndUpsert(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertProduct(testProduct("p1")); err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}

	e := Embedding{
		ProductID: "p1",
		Vector:    []float32{0.1, -0.2, 0.3},
		Model:     "feature-hash-v1",
		TextUsed:  "red leather wallet a slim wallet",
	}
	if err := s.UpsertEmbedding(e); err != nil {
		t.Fatalf("UpsertEmbedding: %v", err)
	}

	got, err := s.GetEmbedding("p1")
	if err != nil {
		t.Fatalf("GetEmbedding: %v", err)
	}
	if len(got.Vector) != 3 || got.Vector[1] != -0.2 {
		t.Errorf("vector round-trip mismatch: %v", got.Vector)
	}
	if got.Dim != 3 {
		t.Errorf("dim = %d, want 3 (derived from vector)", got.Dim)
	}
	if got.TextUsed != e.TextUsed {
		t.Errorf("text_used = %q", got.TextUsed)
	}

	// Re-embedding overwrites only this product's row.
	e.Vector = []float32{1, 1, 1}
	e.TextUsed = "updated text"
	if err := s.UpsertEmbedding(e); err != nil {
		t.Fatalf("second UpsertEmbedding: %v", err)
	}
	got, err = s.GetEmbedding("p1")
	if err != nil {
		t.Fatalf("GetEmbedding after upsert: %v", err)
	}
	if got.Vector[0] != 1 || got.TextUsed != "updated text" {
		t.Errorf("upsert did not overwrite embedding: %+v", got)
	}

	count, err := s.CountEmbeddings()
	if err != nil {
		t.Fatalf("CountEmbeddings: %v", err)
	}
	if count != 1 {
		t.Errorf("embedding count = %d, want 1", count)
	}
}

func TestDefaultWeightsSeeded(t *testing.T) {
	s := openTestStore(t)

	w, err := s.GetActiveWeights()
	if err != nil {
		t.Fatalf("GetActiveWeights: %v", err)
	}
	if w.ID != "default" || !w.IsActive {
		t.Errorf("seeded weights = %+v", w)
	}
	sum := w.Semantic + w.Rating + w.Price + w.Stock + w.Recency
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("seeded weights sum = %v, want 1.0", sum)
	}
}

func TestActivateWeightsSingleActive(t *testing.T) {
	s := openTestStore(t)

	w := RankingWeights{ID: "w2", Name: "semantic-heavy", Semantic: 0.8, Rating: 0.1, Price: 0.05, Stock: 0.03, Recency: 0.02}
	if err := s.InsertWeights(w); err != nil {
		t.Fatalf("InsertWeights: %v", err)
	}
	if err := s.ActivateWeights("w2"); err != nil {
		t.Fatalf("ActivateWeights: %v", err)
	}

	active, err := s.GetActiveWeights()
	if err != nil {
		t.Fatalf("GetActiveWeights: %v", err)
	}
	if active.ID != "w2" {
		t.Errorf("active = %s, want w2", active.ID)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ranking_weights WHERE is_active = 1`).Scan(&count); err != nil {
		t.Fatalf("counting active rows: %v", err)
	}
	if count != 1 {
		t.Errorf("active row count = %d, want exactly 1", count)
	}
}

func TestActivateWeightsNotFound(t *testing.T) {
	s := openTestStore(t)
	if err := s.ActivateWeights("missing"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestInsertSearchResultsAtomic(t *testing.T) {
	s := openTestStore(t)

	log := SearchLog{
		ID:          "log1",
		SessionID:   "sess1",
		Query:       "red wallet",
		QueryVector: []float32{0.5, 0.5},
		ResultCount: 2,
		LatencyMs:   12,
		Filters:     `{"category":"accessories"}`,
	}
	exps := []Explanation{
		{ProductID: "p1", Position: 1, FinalScore: 0.9, Semantic: 0.95, MatchedTerms: `["red","wallet"]`, Explanation: "matched"},
		{ProductID: "p2", Position: 2, FinalScore: 0.4, Semantic: 0.3},
	}
	if err := s.InsertSearchResults(log, exps); err != nil {
		t.Fatalf("InsertSearchResults: %v", err)
	}

	gotLog, err := s.GetSearchLog("log1")
	if err != nil {
		t.Fatalf("GetSearchLog: %v", err)
	}
	if gotLog.Query != "red wallet" || gotLog.ResultCount != 2 {
		t.Errorf("log mismatch: %+v", gotLog)
	}
	if len(gotLog.QueryVector) != 2 {
		t.Errorf("query vector lost: %v", gotLog.QueryVector)
	}

	gotExps, err := s.GetExplanations("log1")
	if err != nil {
		t.Fatalf("GetExplanations: %v", err)
	}
	if len(gotExps) != 2 {
		t.Fatalf("got %d explanations, want 2", len(gotExps))
	}
	if gotExps[0].Position != 1 || gotExps[0].ProductID != "p1" {
		t.Errorf("explanations not ordered by position: %+v", gotExps[0])
	}
	if gotExps[0].WasClicked {
		t.Error("was_clicked should default to false")
	}
}

func TestMarkExplanationClickedMostRecentLogWins(t *testing.T) {
	s := openTestStore(t)

	older := SearchLog{ID: "log1", SessionID: "s1", Query: "wallet", CreatedAt: time.Now().UTC().Add(-time.Hour)}
	newer := SearchLog{ID: "log2", SessionID: "s1", Query: "wallet", CreatedAt: time.Now().UTC()}
	for _, log := range []SearchLog{older, newer} {
		if err := s.InsertSearchResults(log, []Explanation{{ProductID: "p1", Position: 1, FinalScore: 0.5}}); err != nil {
			t.Fatalf("InsertSearchResults(%s): %v", log.ID, err)
		}
	}

	if err := s.MarkExplanationClicked("s1", "wallet", "p1"); err != nil {
		t.Fatalf("MarkExplanationClicked: %v", err)
	}

	newerExps, _ := s.GetExplanations("log2")
	if !newerExps[0].WasClicked {
		t.Error("most recent log's explanation should be marked clicked")
	}
	olderExps, _ := s.GetExplanations("log1")
	if olderExps[0].WasClicked {
		t.Error("older log's explanation must stay unclicked")
	}
}

func TestMarkExplanationClickedNotFound(t *testing.T) {
	s := openTestStore(t)
	if err := s.MarkExplanationClicked("s1", "nothing", "p1"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListInteractionsByKinds(t *testing.T) {
	s := openTestStore(t)

	events := []Interaction{
		{ID: "i1", SessionID: "s1", ProductID: "p1", Kind: "view", Query: "wallet"},
		{ID: "i2", SessionID: "s1", ProductID: "p1", Kind: "click", Query: "wallet", Position: 1},
		{ID: "i3", SessionID: "s1", ProductID: "p2", Kind: "purchase", Query: "wallet", Position: 2},
	}
	for _, ix := range events {
		if err := s.InsertInteraction(ix); err != nil {
			t.Fatalf("InsertInteraction(%s): %v", ix.ID, err)
		}
	}

	got, err := s.ListInteractionsByKinds([]string{"click", "search_click", "add_to_cart", "purchase"})
	if err != nil {
		t.Fatalf("ListInteractionsByKinds: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d interactions, want 2 (views excluded)", len(got))
	}
	for _, ix := range got {
		if ix.Kind == "view" {
			t.Errorf("view interaction leaked through kind filter")
		}
	}
}

func TestEvaluationMetricsAppendOnly(t *testing.T) {
	s := openTestStore(t)

	for i, id := range []string{"m1", "m2"} {
		m := EvaluationMetric{ID: id, Kind: "ndcg@10", Value: 0.5 + float64(i)*0.1, QueryCount: 10}
		if err := s.InsertEvaluationMetric(m); err != nil {
			t.Fatalf("InsertEvaluationMetric(%s): %v", id, err)
		}
	}

	got, err := s.ListEvaluationMetrics(10)
	if err != nil {
		t.Fatalf("ListEvaluationMetrics: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d metric rows, want 2 (history preserved)", len(got))
	}
}

func TestUploadJobStateMachine(t *testing.T) {
	s := openTestStore(t)

	job := UploadJob{ID: "j1", Filename: "catalog.csv"}
	if err := s.CreateUploadJob(job); err != nil {
		t.Fatalf("CreateUploadJob: %v", err)
	}
	if err := s.InsertUploadRows("j1", []string{`{"id":"p1"}`, `{"id":"p2"}`}); err != nil {
		t.Fatalf("InsertUploadRows: %v", err)
	}

	// Nothing claimable while pending.
	claimed, err := s.ClaimUploadJob()
	if err != nil {
		t.Fatalf("ClaimUploadJob: %v", err)
	}
	if claimed != nil {
		t.Fatal("pending job must not be claimable")
	}

	if err := s.AdvanceUploadJob("j1", UploadPending, UploadProcessing); err != nil {
		t.Fatalf("AdvanceUploadJob: %v", err)
	}

	claimed, err = s.ClaimUploadJob()
	if err != nil {
		t.Fatalf("ClaimUploadJob: %v", err)
	}
	if claimed == nil || claimed.ID != "j1" || claimed.Status != UploadEmbedding {
		t.Fatalf("claimed = %+v, want j1 in embedding", claimed)
	}

	// Second claim finds nothing.
	again, err := s.ClaimUploadJob()
	if err != nil {
		t.Fatalf("second ClaimUploadJob: %v", err)
	}
	if again != nil {
		t.Error("job claimed twice")
	}

	rows, err := s.ListUploadRows("j1")
	if err != nil {
		t.Fatalf("ListUploadRows: %v", err)
	}
	if len(rows) != 2 || rows[0].RowNum != 1 {
		t.Errorf("rows = %+v", rows)
	}

	if err := s.CompleteUploadJob("j1", 2, 1); err != nil {
		t.Fatalf("CompleteUploadJob: %v", err)
	}
	got, err := s.GetUploadJob("j1")
	if err != nil {
		t.Fatalf("GetUploadJob: %v", err)
	}
	if got.Status != UploadCompleted || got.TotalRows != 2 || got.FailedRows != 1 {
		t.Errorf("completed job = %+v", got)
	}
}

func TestFailUploadJob(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateUploadJob(UploadJob{ID: "j1", Filename: "bad.csv"}); err != nil {
		t.Fatalf("CreateUploadJob: %v", err)
	}
	if err := s.FailUploadJob("j1", "header mismatch"); err != nil {
		t.Fatalf("FailUploadJob: %v", err)
	}
	got, err := s.GetUploadJob("j1")
	if err != nil {
		t.Fatalf("GetUploadJob: %v", err)
	}
	if got.Status != UploadFailed || got.Error != "header mismatch" {
		t.Errorf("failed job = %+v", got)
	}
}

func TestAdvanceUploadJobWrongState(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateUploadJob(UploadJob{ID: "j1", Filename: "x.csv"}); err != nil {
		t.Fatalf("CreateUploadJob: %v", err)
	}
	if err := s.AdvanceUploadJob("j1", UploadEmbedding, UploadCompleted); err != ErrNotFound {
		t.Errorf("advancing from wrong state: err = %v, want ErrNotFound", err)
	}
}
