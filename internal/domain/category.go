package domain

// Worker status values persisted on a category for observability.
const (
	WorkerStatusSuccess = "success"
	WorkerStatusPartial = "partial"
	WorkerStatusFailed  = "failed"
)

// Category is a canonical legal-domain bucket. Name is the normalized
// form (lowercase ASCII, underscore-separated, diacritics stripped) and
// is unique across the corpus. Categories are deactivated, never deleted.
type Category struct {
	ID            string
	Name          string
	DisplayName   string
	Description   string
	Active        bool
	DocumentCount int
	ArticleCount  int
	WorkerStatus  string
}
