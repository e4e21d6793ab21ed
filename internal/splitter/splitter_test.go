package splitter

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/phapluat-cloud/lexdex/internal/domain"
)

func longArticle() domain.Article {
	var sb strings.Builder
	sb.WriteString("Điều 9. Quyền chung của người sử dụng đất")
	for i := 1; i <= 8; i++ {
		sb.WriteString(fmt.Sprintf("\n%d. ", i))
		sb.WriteString(strings.Repeat("quyền và nghĩa vụ ", 8))
		sb.WriteString("theo quy định.")
	}
	return domain.Article{
		ID:            domain.ArticleID("doc-1", 9),
		DocumentID:    "doc-1",
		ArticleNumber: 9,
		Title:         "Quyền chung của người sử dụng đất",
		Content:       sb.String(),
	}
}

func TestSplitShortContentSingleChunk(t *testing.T) {
	a := domain.Article{
		ID:            domain.ArticleID("doc-1", 1),
		ArticleNumber: 1,
		Content:       "Điều 1. Phạm vi điều chỉnh\nLuật này quy định về đất đai.",
	}
	chunks := Split(a, DefaultMaxChars)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].ChunkIndex != 0 {
		t.Errorf("chunk index = %d, want 0", chunks[0].ChunkIndex)
	}
	if chunks[0].ID != a.ID {
		t.Errorf("single chunk must keep the article ID, got %s", chunks[0].ID)
	}
	if chunks[0].Content != a.Content {
		t.Error("single chunk must keep the content unchanged")
	}
}

func TestSplitLongContent(t *testing.T) {
	a := longArticle()
	chunks := Split(a, DefaultMaxChars)

	if len(chunks) < 3 {
		t.Fatalf("got %d chunks, want at least 3 for %d runes",
			len(chunks), utf8.RuneCountInString(a.Content))
	}

	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, c.ChunkIndex)
		}
		if c.ArticleNumber != a.ArticleNumber || c.DocumentID != a.DocumentID {
			t.Errorf("chunk %d lost article identity", i)
		}
	}

	if chunks[0].ID != a.ID {
		t.Errorf("chunk 0 ID = %s, want article ID %s", chunks[0].ID, a.ID)
	}
	seen := map[string]bool{}
	for _, c := range chunks {
		if seen[c.ID] {
			t.Errorf("duplicate chunk ID %s", c.ID)
		}
		seen[c.ID] = true
	}
}

func TestSplitHeaderPrefix(t *testing.T) {
	chunks := Split(longArticle(), DefaultMaxChars)
	if len(chunks) < 2 {
		t.Fatal("need at least 2 chunks")
	}
	header := "Điều 9. Quyền chung của người sử dụng đất"
	for i, c := range chunks[1:] {
		if !strings.HasPrefix(c.Content, header) {
			t.Errorf("chunk %d does not start with the article header: %q", i+1, firstLine(c.Content))
		}
	}
}

func TestSplitNoContentLost(t *testing.T) {
	a := longArticle()
	chunks := Split(a, DefaultMaxChars)

	var joined strings.Builder
	for _, c := range chunks {
		joined.WriteString(c.Content)
		joined.WriteString("\n")
	}
	for i := 1; i <= 8; i++ {
		marker := fmt.Sprintf("%d. quyền", i)
		if !strings.Contains(joined.String(), marker) {
			t.Errorf("clause %d missing from chunks", i)
		}
	}
}

func TestSplitDeterministic(t *testing.T) {
	a := longArticle()
	first := Split(a, DefaultMaxChars)
	second := Split(a, DefaultMaxChars)
	if !reflect.DeepEqual(first, second) {
		t.Error("split of identical input produced different chunks")
	}
}

func TestSplitOversizedClauseEmittedWhole(t *testing.T) {
	clause := "1. " + strings.Repeat("nội dung rất dài ", 40)
	a := domain.Article{
		ID:            domain.ArticleID("doc-2", 3),
		ArticleNumber: 3,
		Content:       "Điều 3. Giải thích từ ngữ\n" + clause + "\n2. Khoản ngắn.",
	}
	chunks := Split(a, 100)
	found := false
	for _, c := range chunks {
		if strings.Contains(c.Content, strings.TrimSpace(clause)) {
			found = true
		}
	}
	if !found {
		t.Error("oversized clause was truncated or dropped instead of emitted whole")
	}
}

func TestSplitZeroMaxCharsUsesDefault(t *testing.T) {
	a := domain.Article{ID: "x", Content: "ngắn"}
	chunks := Split(a, 0)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
