// Package resolver maps arbitrary category labels to canonical
// category identifiers through an ordered cascade of matching
// strategies, auto-creating validated categories as a last step.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/phapluat-cloud/lexdex/internal/domain"
	"github.com/phapluat-cloud/lexdex/internal/vntext"
)

// transactionVerbs are stripped when comparing category subjects:
// "thue_xe" and "mua_xe" are different transactions over the same
// legal subject and must collapse to one category.
var transactionVerbs = map[string]struct{}{
	"mua": {}, "ban": {}, "thue": {}, "cho": {}, "vay": {},
	"muon": {}, "chuyen": {}, "nhuong": {}, "gop": {},
}

// legalKeywords gate auto-creation: a name with none of these goes to
// the oracle instead of straight to creation. Diacritics stripped.
var legalKeywords = map[string]struct{}{
	// transaction verbs
	"mua": {}, "ban": {}, "thue": {}, "cho": {}, "vay": {},
	"muon": {}, "chuyen": {}, "nhuong": {}, "gop": {},
	// assets / objects
	"dat": {}, "nha": {}, "xe": {}, "may": {}, "phong": {},
	"can": {}, "ho": {}, "oto": {},
	// legal domains
	"lao": {}, "dong": {}, "dan": {}, "su": {}, "hinh": {},
	"thuong": {}, "mai": {}, "doanh": {}, "nghiep": {},
	"dau": {}, "tu": {}, "tai": {}, "chinh": {},
	// contract-related
	"hop": {}, "dich": {}, "vu": {}, "uy": {}, "quyen": {},
	"bao": {}, "hiem": {},
	// property / finance
	"bat": {}, "san": {}, "tien": {}, "von": {},
	// family / inheritance
	"hon": {}, "nhan": {}, "gia": {}, "dinh": {}, "thua": {}, "ke": {},
	// general legal
	"luat": {}, "phap": {}, "nghia": {}, "kinh": {},
}

// maxFuzzyDistance tolerates typos and transliteration drift from
// crawlers and users.
const maxFuzzyDistance = 2

// Store is the category lookup and creation surface the resolver needs.
type Store interface {
	GetByName(ctx context.Context, name string) (domain.Category, error)
	Upsert(ctx context.Context, cat domain.Category) (string, error)
	ListAll(ctx context.Context) ([]domain.Category, error)
}

// strategy attempts one match. ok=false means fall through to the next.
type strategy struct {
	name string
	fn   func(ctx context.Context, name string) (string, bool, error)
}

// Resolver resolves raw labels to category IDs. Safe for concurrent use.
type Resolver struct {
	store      Store
	oracle     domain.Oracle
	cache      *nameCache
	strategies []strategy
	logger     *zap.Logger
}

// New creates a resolver. oracle may be nil, in which case the oracle
// step reports every unknown label as invalid.
func New(store Store, oracle domain.Oracle, logger *zap.Logger) *Resolver {
	r := &Resolver{
		store:  store,
		oracle: oracle,
		cache:  newNameCache(),
		logger: logger,
	}
	r.strategies = []strategy{
		{"exact", r.matchExact},
		{"fuzzy", r.matchFuzzy},
		{"subject", r.matchSubject},
	}
	return r
}

// Resolve maps a raw label to a category ID, creating the category
// when the label names a genuine legal domain that is not yet known.
// Fails with a domain.InvalidCategoryError (listing the known
// categories) when every strategy and the oracle reject the label.
func (r *Resolver) Resolve(ctx context.Context, rawLabel, displayName string) (string, error) {
	name := vntext.NormalizeCategoryName(rawLabel)

	id, ok, err := r.runStrategies(ctx, name)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}

	if !hasLegalKeyword(name) {
		suggested, valid := r.askOracle(ctx, rawLabel)
		if !valid {
			known, listErr := r.knownNames(ctx)
			if listErr != nil {
				r.logger.Warn("failed to list categories for error message", zap.Error(listErr))
			}
			return "", domain.NewInvalidCategory(rawLabel, known)
		}
		// One re-entry with the oracle's canonical form, no recursion.
		name = suggested
		id, ok, err = r.runStrategies(ctx, name)
		if err != nil {
			return "", err
		}
		if ok {
			return id, nil
		}
	}

	return r.autoCreate(ctx, rawLabel, name, displayName)
}

// CategoryFromTitle resolves a category from a law document's title by
// extracting the legal-domain phrase ("Bộ luật Dân sự 2015" → dan_su).
// Returns "" when no domain can be extracted or the extracted phrase is
// rejected; the caller decides whether that is tolerable.
func (r *Resolver) CategoryFromTitle(ctx context.Context, title string) (string, error) {
	phrase := extractDomainFromTitle(title)
	if phrase == "" {
		r.logger.Debug("no legal domain in title", zap.String("title", title))
		return "", nil
	}
	id, err := r.Resolve(ctx, phrase, "")
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCategory) {
			r.logger.Warn("title yielded invalid category",
				zap.String("title", title), zap.String("phrase", phrase))
			return "", nil
		}
		return "", err
	}
	return id, nil
}

func (r *Resolver) runStrategies(ctx context.Context, name string) (string, bool, error) {
	for _, s := range r.strategies {
		id, ok, err := s.fn(ctx, name)
		if err != nil {
			return "", false, fmt.Errorf("%s match: %w", s.name, err)
		}
		if ok {
			return id, true, nil
		}
	}
	return "", false, nil
}

// matchExact checks the cache, then the store, caching on hit.
func (r *Resolver) matchExact(ctx context.Context, name string) (string, bool, error) {
	if id, ok := r.cache.get(name); ok {
		return id, true, nil
	}
	cat, err := r.store.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	r.cache.put(name, cat.ID)
	return cat.ID, true, nil
}

// matchFuzzy accepts the closest known category within edit distance 2.
// The raw typo is cached too, so repeat lookups are O(1).
func (r *Resolver) matchFuzzy(ctx context.Context, name string) (string, bool, error) {
	cats, err := r.store.ListAll(ctx)
	if err != nil {
		return "", false, err
	}
	bestDist := maxFuzzyDistance + 1
	var best domain.Category
	for _, cat := range cats {
		if d := levenshtein.ComputeDistance(name, cat.Name); d < bestDist {
			bestDist = d
			best = cat
		}
	}
	if bestDist > maxFuzzyDistance {
		return "", false, nil
	}
	r.cache.put(best.Name, best.ID)
	r.cache.put(name, best.ID)
	r.logger.Info("fuzzy matched category",
		zap.String("input", name),
		zap.String("matched", best.Name),
		zap.Int("distance", bestDist),
	)
	return best.ID, true, nil
}

// matchSubject strips transaction verbs from both sides and matches on
// any shared remaining token.
func (r *Resolver) matchSubject(ctx context.Context, name string) (string, bool, error) {
	subject := subjectTokens(name)
	if len(subject) == 0 {
		return "", false, nil
	}
	cats, err := r.store.ListAll(ctx)
	if err != nil {
		return "", false, err
	}
	for _, cat := range cats {
		catSubject := subjectTokens(cat.Name)
		for tok := range subject {
			if _, ok := catSubject[tok]; ok {
				r.cache.put(cat.Name, cat.ID)
				r.cache.put(name, cat.ID)
				r.logger.Info("subject matched category",
					zap.String("input", name),
					zap.String("matched", cat.Name),
					zap.String("shared", tok),
				)
				return cat.ID, true, nil
			}
		}
	}
	return "", false, nil
}

// askOracle consults the text-classification fallback. An unavailable
// or failing oracle counts as a negative verdict.
func (r *Resolver) askOracle(ctx context.Context, rawLabel string) (string, bool) {
	if r.oracle == nil {
		return "", false
	}
	verdict, err := r.oracle.ValidateDomain(ctx, rawLabel)
	if err != nil {
		r.logger.Warn("oracle validation failed", zap.String("label", rawLabel), zap.Error(err))
		return "", false
	}
	if !verdict.Valid || verdict.CanonicalName == "" {
		return "", false
	}
	return vntext.NormalizeCategoryName(verdict.CanonicalName), true
}

func (r *Resolver) autoCreate(ctx context.Context, rawLabel, name, displayName string) (string, error) {
	if displayName == "" {
		displayName = deriveDisplayName(name)
	}
	id, err := r.store.Upsert(ctx, domain.Category{
		Name:        name,
		DisplayName: displayName,
		Description: "Auto-created from: " + rawLabel,
		Active:      true,
	})
	if err != nil {
		return "", fmt.Errorf("auto-create category %s: %w", name, err)
	}
	r.cache.put(name, id)
	r.logger.Info("auto-created category", zap.String("name", name), zap.String("id", id))
	return id, nil
}

func (r *Resolver) knownNames(ctx context.Context) ([]string, error) {
	cats, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cats))
	for _, c := range cats {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names, nil
}

func subjectTokens(name string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Split(name, "_") {
		if tok == "" {
			continue
		}
		if _, verb := transactionVerbs[tok]; !verb {
			out[tok] = struct{}{}
		}
	}
	return out
}

func hasLegalKeyword(name string) bool {
	for _, tok := range strings.Split(name, "_") {
		if _, ok := legalKeywords[tok]; ok {
			return true
		}
	}
	return false
}

func deriveDisplayName(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Title patterns for domain extraction, applied to the
// diacritics-stripped lowercase title in order.
var titlePatterns = []*regexp.Regexp{
	// "bo luat dan su 2015" → "dan su"
	regexp.MustCompile(`bo luat\s+(.+?)(?:\s+\d{4}|$)`),
	// "luat dat dai 2024" → "dat dai"
	regexp.MustCompile(`(?:^|\s)luat\s+(.+?)(?:\s+\d{4}|$)`),
	// "nghi dinh ... ve dang ky kinh doanh"
	regexp.MustCompile(`(?:nghi dinh|thong tu).*?\bve\s+(.+?)(?:\s+\d{4}|$)`),
}

var (
	soNoiseRe  = regexp.MustCompile(`\s+so\s+.*$`)
	numNoiseRe = regexp.MustCompile(`\s*\d+/\d+.*$`)
)

func extractDomainFromTitle(title string) string {
	norm := strings.ToLower(strings.TrimSpace(vntext.RemoveDiacritics(title)))
	for _, p := range titlePatterns {
		m := p.FindStringSubmatch(norm)
		if m == nil {
			continue
		}
		phrase := strings.TrimSpace(m[1])
		phrase = soNoiseRe.ReplaceAllString(phrase, "")
		phrase = numNoiseRe.ReplaceAllString(phrase, "")
		if phrase != "" {
			return phrase
		}
	}
	return ""
}
