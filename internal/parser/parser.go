// Package parser turns raw HTML of a legal document into structured
// metadata and articles, and computes the content fingerprint used for
// change detection.
package parser

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/phapluat-cloud/lexdex/internal/domain"
	"github.com/phapluat-cloud/lexdex/internal/vntext"
)

// minArticleChars filters out heading fragments that match the article
// pattern but carry no body.
const minArticleChars = 50

// ParsedDocument is the structured result of parsing one source page.
type ParsedDocument struct {
	Document domain.Document
	Articles []domain.Article
}

var (
	articleRe = regexp.MustCompile(`(?i)(Điều\s+(\d+)\.?\s*([^\n]*))\n`)
	chapterRe = regexp.MustCompile(`(?i)Chương\s+[IVXLCDM]+[:.\s][^\n]*`)

	docNumberURLRe  = regexp.MustCompile(`(\d+/\d+/[A-Z]+\d*)`)
	docNumberTextRe = regexp.MustCompile(`Số:\s*(\d+/\d+/[A-Z-]+\d*)|(\d+/\d+/QH\d+)`)

	effectiveDateRe = regexp.MustCompile(`(?i)có hiệu lực.*?(\d{1,2}/\d{1,2}/\d{4})`)
	signedDateRe    = regexp.MustCompile(`(?i)ngày\s+(\d{1,2})\s+tháng\s+(\d{1,2})\s+năm\s+(\d{4})`)
)

// Parse extracts document metadata and articles from raw HTML. The
// returned articles carry no document ID yet; the pipeline assigns IDs
// once the document row exists. Fails with domain.ErrParse when no
// usable text can be extracted.
func Parse(sourceURL string, rawHTML []byte) (ParsedDocument, error) {
	root, err := html.Parse(bytes.NewReader(rawHTML))
	if err != nil {
		return ParsedDocument{}, fmt.Errorf("parse html: %w", domain.ErrParse)
	}

	text := mergeWrappedLines(extractText(contentRoot(root)))
	if strings.TrimSpace(text) == "" {
		return ParsedDocument{}, fmt.Errorf("no text content in %s: %w", sourceURL, domain.ErrParse)
	}

	title := documentTitle(root)
	doc := domain.Document{
		Type:             documentType(title, sourceURL),
		Number:           documentNumber(sourceURL, text),
		Title:            title,
		EffectiveDate:    effectiveDate(text),
		IssuingAuthority: issuingAuthority(text),
		Status:           domain.StatusActive,
		SourceURL:        sourceURL,
	}

	return ParsedDocument{
		Document: doc,
		Articles: ParseArticles(text),
	}, nil
}

// ParseArticles splits flattened document text into articles on
// "Điều N." boundaries, tracking the enclosing chapter. Duplicate
// article numbers keep the longest content.
func ParseArticles(text string) []domain.Article {
	var articles []domain.Article

	chapters := chapterRe.FindAllStringIndex(text, -1)
	chapterAt := func(pos int) string {
		label := ""
		for _, c := range chapters {
			if c[0] > pos {
				break
			}
			label = vntext.CleanText(text[c[0]:c[1]])
		}
		return label
	}

	locs := articleRe.FindAllStringSubmatchIndex(text, -1)
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		number, err := strconv.Atoi(text[loc[4]:loc[5]])
		if err != nil {
			continue
		}
		// CleanLines, not CleanText: the splitter cuts long articles at
		// "\nN. " clause boundaries, which must survive parsing.
		content := vntext.CleanLines(text[loc[0]:end])
		if utf8.RuneCountInString(content) <= minArticleChars {
			continue
		}
		title := ""
		if loc[6] >= 0 {
			title = vntext.CleanText(text[loc[6]:loc[7]])
		}
		articles = append(articles, domain.Article{
			ArticleNumber: number,
			Title:         title,
			Content:       content,
			Chapter:       chapterAt(loc[0]),
		})
	}

	return dedupeByNumber(articles)
}

// dedupeByNumber keeps the longest content per article number,
// preserving first-seen order.
func dedupeByNumber(articles []domain.Article) []domain.Article {
	best := make(map[int]int, len(articles))
	var out []domain.Article
	for _, a := range articles {
		if i, ok := best[a.ArticleNumber]; ok {
			if len(a.Content) > len(out[i].Content) {
				out[i] = a
			}
			continue
		}
		best[a.ArticleNumber] = len(out)
		out = append(out, a)
	}
	return out
}

// Fingerprint hashes the whitespace-collapsed text of the main content
// block, so markup churn and reformatting do not register as changes.
// Unparseable input falls back to hashing the raw bytes.
func Fingerprint(rawHTML []byte) string {
	root, err := html.Parse(bytes.NewReader(rawHTML))
	if err == nil {
		text := vntext.CleanText(extractText(contentRoot(root)))
		if text != "" {
			sum := sha256.Sum256([]byte(text))
			return hex.EncodeToString(sum[:])
		}
	}
	sum := sha256.Sum256(rawHTML)
	return hex.EncodeToString(sum[:])
}

// contentRoot prefers the site's main-content containers over the full
// page, falling back to the document root.
func contentRoot(root *html.Node) *html.Node {
	if n := findNode(root, func(n *html.Node) bool {
		return n.Data == "div" && (hasClass(n, "content1") || hasClass(n, "toanvancontent"))
	}); n != nil {
		return n
	}
	if n := findNode(root, func(n *html.Node) bool { return n.Data == "article" }); n != nil {
		return n
	}
	return root
}

var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "iframe": true,
}

// extractText flattens a subtree to text, one line per element, with
// <br> treated as a space inside a line.
func extractText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
		case html.ElementNode:
			if skipTags[n.Data] {
				return
			}
			if n.Data == "br" {
				sb.WriteString(" ")
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && n.Data != "span" && n.Data != "a" &&
			n.Data != "b" && n.Data != "i" && n.Data != "em" && n.Data != "strong" {
			sb.WriteString("\n")
		}
	}
	walk(n)
	return sb.String()
}

// mergeWrappedLines joins single-newline word wraps with spaces and
// keeps blank lines as paragraph breaks, then collapses horizontal
// whitespace. Source pages word-wrap inside paragraphs.
func mergeWrappedLines(text string) string {
	var merged []string
	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			if len(merged) > 0 && merged[len(merged)-1] != "" {
				merged = append(merged, "")
			}
			continue
		}
		if len(merged) > 0 && merged[len(merged)-1] != "" {
			merged[len(merged)-1] += " " + stripped
		} else {
			merged = append(merged, stripped)
		}
	}
	var out []string
	for _, line := range merged {
		if line != "" {
			out = append(out, vntext.CleanText(line))
		}
	}
	return strings.Join(out, "\n")
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" {
			for _, c := range strings.Fields(attr.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func documentTitle(root *html.Node) string {
	if n := findNode(root, func(n *html.Node) bool { return n.Data == "h1" }); n != nil {
		return vntext.CleanText(nodeText(n))
	}
	if n := findNode(root, func(n *html.Node) bool { return n.Data == "title" }); n != nil {
		return vntext.CleanText(nodeText(n))
	}
	return "Unknown"
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func documentNumber(sourceURL, text string) string {
	if m := docNumberURLRe.FindStringSubmatch(sourceURL); m != nil {
		return m[1]
	}
	if m := docNumberTextRe.FindStringSubmatch(text); m != nil {
		if m[1] != "" {
			return m[1]
		}
		return m[2]
	}
	return ""
}

func documentType(title, sourceURL string) domain.DocumentType {
	t := strings.ToLower(vntext.RemoveDiacritics(title))
	u := strings.ToLower(sourceURL)
	switch {
	case strings.Contains(u, "bo-luat") || strings.Contains(t, "bo luat"):
		return domain.TypeCode
	case strings.Contains(u, "nghi-dinh") || strings.Contains(t, "nghi dinh"):
		return domain.TypeDecree
	case strings.Contains(u, "thong-tu") || strings.Contains(t, "thong tu"):
		return domain.TypeCircular
	default:
		return domain.TypeLaw
	}
}

func effectiveDate(text string) string {
	if m := effectiveDateRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := signedDateRe.FindStringSubmatch(text); m != nil {
		return fmt.Sprintf("%s/%s/%s", m[1], m[2], m[3])
	}
	return ""
}

var authorities = []string{"Quốc hội", "Chính phủ", "Thủ tướng", "Bộ"}

func issuingAuthority(text string) string {
	for _, a := range authorities {
		if strings.Contains(text, a) {
			return a
		}
	}
	return ""
}
