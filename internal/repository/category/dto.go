package category

import (
	"strconv"

	"github.com/phapluat-cloud/lexdex/internal/domain"
)

// categoryToHash converts a domain Category to a map for HSET.
func categoryToHash(cat domain.Category) map[string]string {
	return map[string]string{
		"id":           cat.ID,
		"name":         cat.Name,
		"display_name": cat.DisplayName,
		"description":  cat.Description,
		"active":       strconv.FormatBool(cat.Active),
	}
}

// categoryFromHash hydrates a domain Category from an HGETALL result map.
func categoryFromHash(m map[string]string) domain.Category {
	active, _ := strconv.ParseBool(m["active"])
	return domain.Category{
		ID:            m["id"],
		Name:          m["name"],
		DisplayName:   m["display_name"],
		Description:   m["description"],
		Active:        active,
		DocumentCount: atoi(m["document_count"]),
		ArticleCount:  atoi(m["article_count"]),
		WorkerStatus:  m["worker_status"],
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
