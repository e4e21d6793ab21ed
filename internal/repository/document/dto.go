package document

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/phapluat-cloud/lexdex/internal/domain"
)

// documentToHash converts a domain Document to a map for HSET.
func documentToHash(doc domain.Document) map[string]string {
	return map[string]string{
		"id":                doc.ID,
		"type":              string(doc.Type),
		"number":            doc.Number,
		"title":             doc.Title,
		"effective_date":    doc.EffectiveDate,
		"issuing_authority": doc.IssuingAuthority,
		"status":            string(doc.Status),
		"source_url":        doc.SourceURL,
		"fingerprint":       doc.Fingerprint,
		"category_id":       doc.CategoryID,
	}
}

// documentFromHash hydrates a domain Document from an HGETALL result map.
func documentFromHash(m map[string]string) domain.Document {
	return domain.Document{
		ID:               m["id"],
		Type:             domain.DocumentType(m["type"]),
		Number:           m["number"],
		Title:            m["title"],
		EffectiveDate:    m["effective_date"],
		IssuingAuthority: m["issuing_authority"],
		Status:           domain.DocumentStatus(m["status"]),
		SourceURL:        m["source_url"],
		Fingerprint:      m["fingerprint"],
		CategoryID:       m["category_id"],
	}
}

// articleToHash converts an article chunk for HSET. The embedding is
// stored as a JSON float array.
func articleToHash(a domain.Article) (map[string]string, error) {
	vec, err := json.Marshal(a.Embedding)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding: %w", err)
	}
	return map[string]string{
		"id":             a.ID,
		"document_id":    a.DocumentID,
		"article_number": strconv.Itoa(a.ArticleNumber),
		"title":          a.Title,
		"content":        a.Content,
		"chapter":        a.Chapter,
		"chunk_index":    strconv.Itoa(a.ChunkIndex),
		"embedding":      string(vec),
	}, nil
}

// registryToHash converts a registry entry for HSET.
func registryToHash(e domain.RegistryEntry) map[string]string {
	fields := map[string]string{
		"id":                e.ID,
		"category_id":       e.CategoryID,
		"category_name":     e.CategoryName,
		"url":               e.URL,
		"title":             e.Title,
		"role":              e.Role,
		"priority":          strconv.Itoa(e.Priority),
		"last_content_hash": e.LastContentHash,
	}
	if !e.CheckedAt.IsZero() {
		fields["checked_at"] = e.CheckedAt.UTC().Format(time.RFC3339)
	}
	return fields
}

// registryFromHash hydrates a registry entry from an HGETALL result map.
func registryFromHash(m map[string]string) domain.RegistryEntry {
	priority, _ := strconv.Atoi(m["priority"])
	checkedAt, _ := time.Parse(time.RFC3339, m["checked_at"])
	return domain.RegistryEntry{
		ID:              m["id"],
		CategoryID:      m["category_id"],
		CategoryName:    m["category_name"],
		URL:             m["url"],
		Title:           m["title"],
		Role:            m["role"],
		Priority:        priority,
		LastContentHash: m["last_content_hash"],
		CheckedAt:       checkedAt,
	}
}
