// Package splitter bounds article content to the embedding model's
// input size without breaking legal structure: long articles are split
// on clause boundaries and every chunk after the first is prefixed with
// the article header so it stays citable on its own.
package splitter

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/phapluat-cloud/lexdex/internal/domain"
)

// DefaultMaxChars approximates the embedding model's token limit for
// Vietnamese legal prose.
const DefaultMaxChars = 380

var (
	headerRe = regexp.MustCompile(`(?i)^(Điều\s+\d+\.?[^\n]*)`)
	clauseRe = regexp.MustCompile(`\n\s*\d+\.\s`)
)

// Split returns the ordered chunks of an article, each at most maxChars
// runes unless a single clause alone exceeds the limit — such a clause
// is emitted whole rather than dropped or truncated. Content at or
// under the limit comes back as the article itself with chunk index 0.
// The split is deterministic: chunk IDs derive from the article ID and
// emission order.
func Split(a domain.Article, maxChars int) []domain.Article {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if utf8.RuneCountInString(a.Content) <= maxChars {
		a.ChunkIndex = 0
		return []domain.Article{a}
	}

	header := ""
	if m := headerRe.FindStringSubmatch(a.Content); m != nil {
		header = m[1]
	}

	var chunks []domain.Article
	var buf strings.Builder
	index := 0

	flush := func() {
		chunks = append(chunks, makeChunk(a, buf.String(), index))
		index++
		buf.Reset()
	}

	for _, clause := range splitClauses(a.Content) {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		if buf.Len() > 0 && utf8.RuneCountInString(buf.String())+1+utf8.RuneCountInString(clause) > maxChars {
			flush()
			if header != "" {
				buf.WriteString(header)
				buf.WriteString("\n")
			}
		} else if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(clause)
	}
	if buf.Len() > 0 {
		flush()
	}

	if len(chunks) == 0 {
		a.ChunkIndex = 0
		return []domain.Article{a}
	}
	return chunks
}

// splitClauses cuts content at clause boundaries: newlines followed by
// a numbered-item marker ("\n1. "). The marker stays with its clause.
func splitClauses(content string) []string {
	locs := clauseRe.FindAllStringIndex(content, -1)
	if len(locs) == 0 {
		return []string{content}
	}
	var parts []string
	prev := 0
	for _, loc := range locs {
		if loc[0] > prev {
			parts = append(parts, content[prev:loc[0]])
		}
		prev = loc[0]
	}
	parts = append(parts, content[prev:])
	return parts
}

func makeChunk(a domain.Article, content string, index int) domain.Article {
	chunk := a
	chunk.Content = content
	chunk.ChunkIndex = index
	chunk.ID = domain.ChunkID(a.ID, index)
	return chunk
}
