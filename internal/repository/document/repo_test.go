package document

import (
	"context"
	"errors"
	"testing"

	dbmemory "github.com/phapluat-cloud/lexdex/internal/db/memory"
	"github.com/phapluat-cloud/lexdex/internal/domain"
)

func testDoc() domain.Document {
	return domain.Document{
		Type:        domain.TypeLaw,
		Number:      "31/2024/QH15",
		Title:       "Luật Đất đai 2024",
		Status:      domain.StatusActive,
		SourceURL:   "https://example.com/luat-dat-dai.html",
		Fingerprint: "fp-1",
		CategoryID:  "cat-1",
	}
}

func TestUpsertCreatesThenUpdates(t *testing.T) {
	repo := New(dbmemory.NewStore())
	ctx := context.Background()

	id, created, err := repo.Upsert(ctx, testDoc())
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !created || id == "" {
		t.Fatalf("created=%v id=%q, want new row", created, id)
	}

	// Same identity, new content: same row, not created.
	doc := testDoc()
	doc.Fingerprint = "fp-2"
	id2, created2, err := repo.Upsert(ctx, doc)
	if err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if created2 {
		t.Error("re-upsert of the same document reported created")
	}
	if id2 != id {
		t.Errorf("identity not stable: %s -> %s", id, id2)
	}

	// The old fingerprint index is gone, the new one resolves.
	if _, err := repo.GetByFingerprint(ctx, "fp-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("stale fingerprint still resolves: %v", err)
	}
	got, err := repo.GetByFingerprint(ctx, "fp-2")
	if err != nil {
		t.Fatalf("GetByFingerprint: %v", err)
	}
	if got.ID != id {
		t.Errorf("fingerprint resolves to %s, want %s", got.ID, id)
	}
}

func TestUpsertIdentityFallsBackToTitle(t *testing.T) {
	repo := New(dbmemory.NewStore())
	ctx := context.Background()

	doc := testDoc()
	doc.Number = ""
	id, _, err := repo.Upsert(ctx, doc)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// Same title, noisy whitespace: still the same row.
	doc.Title = "  Luật   Đất đai 2024 "
	doc.Fingerprint = "fp-other"
	id2, created, err := repo.Upsert(ctx, doc)
	if err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if created || id2 != id {
		t.Errorf("title identity not stable: created=%v %s -> %s", created, id, id2)
	}
}

func TestUpsertChunksIdempotent(t *testing.T) {
	repo := New(dbmemory.NewStore())
	ctx := context.Background()

	chunks := []domain.Article{
		{ID: "a-1", DocumentID: "doc-1", ArticleNumber: 1, ChunkIndex: 0,
			Content: "Nội dung điều 1", Embedding: []float32{0.1}},
		{ID: "a-2", DocumentID: "doc-1", ArticleNumber: 2, ChunkIndex: 0,
			Content: "Nội dung điều 2", Embedding: []float32{0.2}},
	}
	n, err := repo.UpsertChunks(ctx, chunks)
	if err != nil {
		t.Fatalf("UpsertChunks: %v", err)
	}
	if n != 2 {
		t.Errorf("stored %d chunks, want 2", n)
	}

	// Re-storing the same chunks overwrites in place.
	if _, err := repo.UpsertChunks(ctx, chunks); err != nil {
		t.Fatalf("second UpsertChunks: %v", err)
	}

	doc := testDoc()
	doc.ID = "doc-1"
	if _, _, err := repo.Upsert(ctx, doc); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	docs, articles, err := repo.CountByCategory(ctx, "cat-1")
	if err != nil {
		t.Fatalf("CountByCategory: %v", err)
	}
	if docs != 1 || articles != 2 {
		t.Errorf("counts = %d/%d, want 1/2", docs, articles)
	}
}

func TestUpsertChunksEmpty(t *testing.T) {
	repo := New(dbmemory.NewStore())
	n, err := repo.UpsertChunks(context.Background(), nil)
	if err != nil || n != 0 {
		t.Errorf("got (%d, %v), want (0, nil)", n, err)
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	repo := New(dbmemory.NewStore())
	ctx := context.Background()

	urls := []struct {
		url      string
		priority int
	}{
		{"https://example.com/b.html", 1},
		{"https://example.com/a.html", 0},
		{"https://example.com/c.html", 2},
	}
	for _, u := range urls {
		err := repo.UpsertRegistry(ctx, domain.RegistryEntry{
			CategoryID:   "cat-1",
			CategoryName: "dat_dai",
			URL:          u.url,
			Priority:     u.priority,
		})
		if err != nil {
			t.Fatalf("UpsertRegistry: %v", err)
		}
	}

	entries, err := repo.ListRegistry(ctx, "dat_dai")
	if err != nil {
		t.Fatalf("ListRegistry: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i, e := range entries {
		if e.Priority != i {
			t.Errorf("entry %d has priority %d, not sorted", i, e.Priority)
		}
	}

	// Other categories see nothing.
	other, err := repo.ListRegistry(ctx, "lao_dong")
	if err != nil {
		t.Fatalf("ListRegistry other: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("got %d entries for an unrelated category", len(other))
	}
}

func TestTouchRegistry(t *testing.T) {
	repo := New(dbmemory.NewStore())
	ctx := context.Background()

	url := "https://example.com/a.html"
	err := repo.UpsertRegistry(ctx, domain.RegistryEntry{
		CategoryID: "cat-1", CategoryName: "dat_dai", URL: url,
	})
	if err != nil {
		t.Fatalf("UpsertRegistry: %v", err)
	}
	if err := repo.TouchRegistry(ctx, "dat_dai", url, "hash-1"); err != nil {
		t.Fatalf("TouchRegistry: %v", err)
	}

	entries, err := repo.ListRegistry(ctx, "dat_dai")
	if err != nil {
		t.Fatalf("ListRegistry: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].LastContentHash != "hash-1" {
		t.Errorf("last content hash = %q", entries[0].LastContentHash)
	}
	if entries[0].CheckedAt.IsZero() {
		t.Error("checked_at not recorded")
	}
}
