// Package vntext holds Vietnamese text helpers shared by the parser,
// splitter, and category resolver: diacritics stripping, Unicode
// normalization, and category-name canonicalization.
package vntext

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripper decomposes to NFD, drops combining marks, recomposes to NFC.
// đ/Đ do not decompose, so they are mapped separately.
var stripper = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	runes.Map(func(r rune) rune {
		switch r {
		case 'đ':
			return 'd'
		case 'Đ':
			return 'D'
		}
		return r
	}),
	norm.NFC,
)

// RemoveDiacritics converts "hợp đồng" to "hop dong" for comparison.
func RemoveDiacritics(s string) string {
	out, _, err := transform.String(stripper, s)
	if err != nil {
		return s
	}
	return out
}

// CleanText collapses runs of whitespace to single spaces and trims.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CleanLines collapses whitespace within each line and drops blank
// lines, keeping the line breaks. Clause boundaries like "\n1. "
// survive, which CleanText would destroy.
func CleanLines(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = CleanText(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// NormalizeForEmbedding prepares text for the embedding model: NFC
// composition and whitespace collapse. Diacritics and case are kept —
// the model was trained on composed Vietnamese text.
func NormalizeForEmbedding(s string) string {
	return CleanText(norm.NFC.String(s))
}

// knownWords are common Vietnamese legal words (diacritics stripped),
// used to re-split concatenated category names like "vaytien".
var knownWords = []string{
	"mua", "ban", "thue", "cho", "vay", "muon",
	"dat", "nha", "xe", "may", "oto", "phong",
	"lao", "dong", "dich", "vu", "dau", "tu",
	"dan", "su", "hinh", "thuong", "mai",
	"hop", "uy", "quyen", "bao", "hiem",
	"tien", "tai", "san", "kinh", "doanh",
}

var knownWordSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(knownWords))
	for _, w := range knownWords {
		m[w] = struct{}{}
	}
	return m
}()

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeCategoryName canonicalizes an arbitrary label into a
// category name: lowercase, diacritics stripped, non-alphanumerics
// collapsed to underscores, concatenated known words re-split.
//
//	"vay tiền"  → "vay_tien"
//	"Vay Tiền"  → "vay_tien"
//	"vaytien"   → "vay_tien"
//	"  Mua Bán" → "mua_ban"
func NormalizeCategoryName(s string) string {
	s = strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
	s = RemoveDiacritics(s)
	s = nonAlnumRe.ReplaceAllString(s, "_")

	var expanded []string
	for _, part := range strings.Split(s, "_") {
		if part == "" {
			continue
		}
		if _, ok := knownWordSet[part]; ok || len(part) <= 3 {
			expanded = append(expanded, part)
			continue
		}
		expanded = append(expanded, splitKnownWords(part)...)
	}

	out := strings.Trim(strings.Join(expanded, "_"), "_")
	if out == "" {
		return "other"
	}
	return out
}

// splitKnownWords greedily splits a run of letters into known words,
// longest match first. The unmatched tail is kept as-is.
func splitKnownWords(part string) []string {
	var parts []string
	remaining := part
	for remaining != "" {
		matched := false
		maxLen := len(remaining)
		if maxLen > 6 {
			maxLen = 6
		}
		for length := maxLen; length >= 2; length-- {
			if _, ok := knownWordSet[remaining[:length]]; ok {
				parts = append(parts, remaining[:length])
				remaining = remaining[length:]
				matched = true
				break
			}
		}
		if !matched {
			parts = append(parts, remaining)
			break
		}
	}
	return parts
}
