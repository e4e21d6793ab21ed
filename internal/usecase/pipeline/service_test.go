package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	dbmemory "github.com/phapluat-cloud/lexdex/internal/db/memory"
	"github.com/phapluat-cloud/lexdex/internal/domain"
	categoryrepo "github.com/phapluat-cloud/lexdex/internal/repository/category"
	documentrepo "github.com/phapluat-cloud/lexdex/internal/repository/document"
	runrepo "github.com/phapluat-cloud/lexdex/internal/repository/run"
)

const lawPage = `<html>
<head><title>Luật Đất đai</title></head>
<body>
<h1>Luật Đất đai 2024</h1>
<div class="content1">
<p>Quốc hội ban hành Luật Đất đai.</p>
<p>Chương I: QUY ĐỊNH CHUNG</p>
<p>Điều 1. Phạm vi điều chỉnh</p>
<p>Luật này quy định về chế độ sở hữu đất đai, quyền hạn và trách nhiệm của Nhà nước đại diện chủ sở hữu toàn dân về đất đai.</p>
<p>Điều 2. Đối tượng áp dụng</p>
<p>Cơ quan nhà nước thực hiện quyền hạn và trách nhiệm đại diện chủ sở hữu toàn dân về đất đai, người sử dụng đất.</p>
</div>
</body>
</html>`

// longLawPage builds a page with one short article and one whose four
// numbered clauses exceed the default chunk size, so it splits in two.
func longLawPage() []byte {
	clause := strings.Repeat("quyền và nghĩa vụ của người sử dụng đất ", 4)
	var sb strings.Builder
	sb.WriteString(`<html>
<head><title>Luật Đất đai</title></head>
<body>
<h1>Luật Đất đai 2024</h1>
<div class="content1">
<p>Quốc hội ban hành Luật Đất đai.</p>
<p>Điều 1. Phạm vi điều chỉnh</p>
<p>Luật này quy định về chế độ sở hữu đất đai, quyền hạn và trách nhiệm của Nhà nước đại diện chủ sở hữu toàn dân về đất đai.</p>
<p>Điều 2. Quyền chung của người sử dụng đất</p>
`)
	for i := 1; i <= 4; i++ {
		fmt.Fprintf(&sb, "<p>%d. %s</p>\n", i, clause)
	}
	sb.WriteString("</div>\n</body>\n</html>")
	return []byte(sb.String())
}

// emptyLawPage parses but yields no articles long enough to index.
const emptyLawPage = `<html>
<body>
<h1>Luật Trống</h1>
<div class="content1">
<p>Văn bản đang được cập nhật.</p>
</div>
</body>
</html>`

type fakeFetcher struct {
	pages map[string][]byte
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls++
	page, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s: status 404: %w", url, domain.ErrFetch)
	}
	return page, nil
}

type fakeEmbedder struct {
	batches int
	fail    bool
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.batches++
	if f.fail {
		return nil, fmt.Errorf("provider down: %w", domain.ErrEmbeddingProvider)
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

type stubResolver struct{ id string }

func (s stubResolver) CategoryFromTitle(context.Context, string) (string, error) {
	return s.id, nil
}

type fixture struct {
	svc      *Service
	cats     *categoryrepo.Repo
	docs     *documentrepo.Repo
	runs     *runrepo.Repo
	fetcher  *fakeFetcher
	embedder *fakeEmbedder
	catID    string
}

func newFixture(t *testing.T, url string, page []byte) *fixture {
	t.Helper()
	store := dbmemory.NewStore()
	cats := categoryrepo.New(store)
	docs := documentrepo.New(store)
	runs := runrepo.New(store)

	ctx := context.Background()
	catID, err := cats.Upsert(ctx, domain.Category{
		Name:        "dat_dai",
		DisplayName: "Đất đai",
		Active:      true,
	})
	if err != nil {
		t.Fatalf("seed category: %v", err)
	}
	err = docs.UpsertRegistry(ctx, domain.RegistryEntry{
		CategoryID:   catID,
		CategoryName: "dat_dai",
		URL:          url,
		Priority:     0,
	})
	if err != nil {
		t.Fatalf("seed registry: %v", err)
	}

	f := &fixture{
		cats:     cats,
		docs:     docs,
		runs:     runs,
		fetcher:  &fakeFetcher{pages: map[string][]byte{}},
		embedder: &fakeEmbedder{},
		catID:    catID,
	}
	if page != nil {
		f.fetcher.pages[url] = page
	}
	f.svc = New(cats, docs, runs, f.fetcher, stubResolver{}, f.embedder, 0, zap.NewNop())
	return f
}

func TestRunIngestsNewDocument(t *testing.T) {
	url := "https://example.com/dat-dai/luat-dat-dai-2024.html"
	f := newFixture(t, url, []byte(lawPage))

	run, err := f.svc.Run(context.Background(), "dat_dai", Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if run.Status != domain.RunCompleted {
		t.Errorf("status = %q, want completed", run.Status)
	}
	if run.DocumentsFound != 1 || run.DocumentsNew != 1 {
		t.Errorf("found=%d new=%d, want 1/1", run.DocumentsFound, run.DocumentsNew)
	}
	if run.ArticlesIndexed != 2 {
		t.Errorf("articles indexed = %d, want 2", run.ArticlesIndexed)
	}
	if len(run.Errors) != 0 {
		t.Errorf("unexpected errors: %v", run.Errors)
	}
	if run.CompletedAt.IsZero() {
		t.Error("run was not finalized")
	}

	stored, err := f.runs.Get(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("load run record: %v", err)
	}
	if stored.Status != domain.RunCompleted || stored.ArticlesIndexed != 2 {
		t.Errorf("persisted run diverges: %+v", stored)
	}

	cat, err := f.cats.GetByName(context.Background(), "dat_dai")
	if err != nil {
		t.Fatalf("load category: %v", err)
	}
	if cat.DocumentCount != 1 || cat.ArticleCount != 2 {
		t.Errorf("cached counts = %d/%d, want 1/2", cat.DocumentCount, cat.ArticleCount)
	}
}

func TestRunSplitsLongArticle(t *testing.T) {
	url := "https://example.com/dat-dai/luat-dat-dai-2024.html"
	f := newFixture(t, url, longLawPage())
	ctx := context.Background()

	run, err := f.svc.Run(ctx, "dat_dai", Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != domain.RunCompleted {
		t.Errorf("status = %q, want completed", run.Status)
	}
	if run.DocumentsNew != 1 {
		t.Errorf("documents new = %d, want 1", run.DocumentsNew)
	}
	if run.ArticlesIndexed != 3 {
		t.Errorf("articles indexed = %d, want 3 (one short article plus two chunks)",
			run.ArticlesIndexed)
	}

	cat, err := f.cats.GetByName(ctx, "dat_dai")
	if err != nil {
		t.Fatalf("load category: %v", err)
	}
	if cat.DocumentCount != 1 || cat.ArticleCount != 3 {
		t.Errorf("cached counts = %d/%d, want 1/3", cat.DocumentCount, cat.ArticleCount)
	}

	// A byte-identical re-crawl must skip the document entirely.
	rerun, err := f.svc.Run(ctx, "dat_dai", Options{})
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if rerun.DocumentsSkipped != 1 || rerun.DocumentsNew != 0 || rerun.ArticlesIndexed != 0 {
		t.Errorf("rerun skipped=%d new=%d indexed=%d, want 1/0/0",
			rerun.DocumentsSkipped, rerun.DocumentsNew, rerun.ArticlesIndexed)
	}
}

func TestRunSkipsUnchangedDocument(t *testing.T) {
	url := "https://example.com/dat-dai/luat-dat-dai-2024.html"
	f := newFixture(t, url, []byte(lawPage))
	ctx := context.Background()

	if _, err := f.svc.Run(ctx, "dat_dai", Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	embedsAfterFirst := f.embedder.batches

	run, err := f.svc.Run(ctx, "dat_dai", Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if run.Status != domain.RunCompleted {
		t.Errorf("status = %q, want completed", run.Status)
	}
	if run.DocumentsSkipped != 1 || run.DocumentsNew != 0 {
		t.Errorf("skipped=%d new=%d, want 1/0", run.DocumentsSkipped, run.DocumentsNew)
	}
	if run.ArticlesIndexed != 0 {
		t.Errorf("articles indexed = %d, want 0 on an unchanged rerun", run.ArticlesIndexed)
	}
	if f.embedder.batches != embedsAfterFirst {
		t.Error("unchanged document was re-embedded")
	}
}

func TestRunForceReprocesses(t *testing.T) {
	url := "https://example.com/dat-dai/luat-dat-dai-2024.html"
	f := newFixture(t, url, []byte(lawPage))
	ctx := context.Background()

	if _, err := f.svc.Run(ctx, "dat_dai", Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	run, err := f.svc.Run(ctx, "dat_dai", Options{Force: true, Trigger: domain.TriggerForced})
	if err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if run.DocumentsUpdated != 1 || run.DocumentsNew != 0 {
		t.Errorf("updated=%d new=%d, want 1/0 on force", run.DocumentsUpdated, run.DocumentsNew)
	}
	if run.ArticlesIndexed != 2 {
		t.Errorf("articles indexed = %d, want 2 on force", run.ArticlesIndexed)
	}
	if run.Trigger != domain.TriggerForced {
		t.Errorf("trigger = %q", run.Trigger)
	}
}

func TestRunUnknownCategory(t *testing.T) {
	f := newFixture(t, "https://example.com/x", []byte(lawPage))

	_, err := f.svc.Run(context.Background(), "khong_ton_tai", Options{})
	if !errors.Is(err, domain.ErrUnknownCategory) {
		t.Fatalf("error = %v, want ErrUnknownCategory", err)
	}
}

func TestRunFetchFailureIsPerDocument(t *testing.T) {
	url := "https://example.com/dat-dai/missing.html"
	f := newFixture(t, url, nil) // no page registered, fetch 404s

	run, err := f.svc.Run(context.Background(), "dat_dai", Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != domain.RunCompleted {
		t.Errorf("status = %q, a fetch failure must not fail the whole run", run.Status)
	}
	if len(run.Errors) != 1 {
		t.Fatalf("got %d errors, want 1", len(run.Errors))
	}
	if run.DocumentsNew != 0 || run.DocumentsSkipped != 0 {
		t.Errorf("new=%d skipped=%d, want 0/0", run.DocumentsNew, run.DocumentsSkipped)
	}
}

func TestRunFailsWhenNewDocumentsYieldNothing(t *testing.T) {
	url := "https://example.com/dat-dai/trong.html"
	f := newFixture(t, url, []byte(emptyLawPage))

	run, err := f.svc.Run(context.Background(), "dat_dai", Options{})
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if run.Status != domain.RunFailed {
		t.Errorf("status = %q, want failed", run.Status)
	}

	stored, getErr := f.runs.Get(context.Background(), run.ID)
	if getErr != nil {
		t.Fatalf("load run record: %v", getErr)
	}
	if stored.Status != domain.RunFailed {
		t.Errorf("persisted status = %q, want failed", stored.Status)
	}
}

func TestRunEmbedderFailure(t *testing.T) {
	url := "https://example.com/dat-dai/luat-dat-dai-2024.html"
	f := newFixture(t, url, []byte(lawPage))
	f.embedder.fail = true

	run, err := f.svc.Run(context.Background(), "dat_dai", Options{})
	if err == nil {
		t.Fatal("expected failure when nothing could be embedded")
	}
	if run.Status != domain.RunFailed {
		t.Errorf("status = %q, want failed", run.Status)
	}
	if len(run.Errors) != 1 {
		t.Errorf("got %d errors, want 1", len(run.Errors))
	}
}

func TestRunLimit(t *testing.T) {
	url := "https://example.com/dat-dai/luat-dat-dai-2024.html"
	f := newFixture(t, url, []byte(lawPage))
	ctx := context.Background()

	second := "https://example.com/dat-dai/nghi-dinh-huong-dan.html"
	err := f.docs.UpsertRegistry(ctx, domain.RegistryEntry{
		CategoryID:   f.catID,
		CategoryName: "dat_dai",
		URL:          second,
		Priority:     1,
	})
	if err != nil {
		t.Fatalf("seed second registry entry: %v", err)
	}
	f.fetcher.pages[second] = []byte(lawPage)

	run, err := f.svc.Run(ctx, "dat_dai", Options{Limit: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.DocumentsFound != 1 {
		t.Errorf("found = %d, want 1 with limit", run.DocumentsFound)
	}
	if f.fetcher.calls != 1 {
		t.Errorf("fetcher called %d times, want 1", f.fetcher.calls)
	}
}
