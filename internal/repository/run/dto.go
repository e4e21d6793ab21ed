package run

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/phapluat-cloud/lexdex/internal/domain"
)

func runToHash(run domain.PipelineRun) (map[string]string, error) {
	errorsJSON, err := json.Marshal(run.Errors)
	if err != nil {
		return nil, fmt.Errorf("marshal run errors: %w", err)
	}
	fields := map[string]string{
		"id":                   run.ID,
		"category_id":          run.CategoryID,
		"category_name":        run.CategoryName,
		"status":               string(run.Status),
		"trigger":              string(run.Trigger),
		"documents_found":      strconv.Itoa(run.DocumentsFound),
		"documents_new":        strconv.Itoa(run.DocumentsNew),
		"documents_updated":    strconv.Itoa(run.DocumentsUpdated),
		"documents_skipped":    strconv.Itoa(run.DocumentsSkipped),
		"articles_indexed":     strconv.Itoa(run.ArticlesIndexed),
		"embeddings_generated": strconv.Itoa(run.EmbeddingsGenerated),
		"error_message":        run.ErrorMessage,
		"errors_json":          string(errorsJSON),
		"started_at":           run.StartedAt.UTC().Format(time.RFC3339Nano),
	}
	if !run.CompletedAt.IsZero() {
		fields["completed_at"] = run.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	return fields, nil
}

func runFromHash(m map[string]string) (domain.PipelineRun, error) {
	startedAt, err := time.Parse(time.RFC3339Nano, m["started_at"])
	if err != nil {
		return domain.PipelineRun{}, fmt.Errorf("invalid started_at: %w", err)
	}
	var completedAt time.Time
	if s := m["completed_at"]; s != "" {
		completedAt, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return domain.PipelineRun{}, fmt.Errorf("invalid completed_at: %w", err)
		}
	}
	var runErrors []string
	if s := m["errors_json"]; s != "" {
		if err := json.Unmarshal([]byte(s), &runErrors); err != nil {
			return domain.PipelineRun{}, fmt.Errorf("unmarshal run errors: %w", err)
		}
	}
	return domain.PipelineRun{
		ID:                  m["id"],
		CategoryID:          m["category_id"],
		CategoryName:        m["category_name"],
		Status:              domain.RunStatus(m["status"]),
		Trigger:             domain.TriggerType(m["trigger"]),
		DocumentsFound:      atoi(m["documents_found"]),
		DocumentsNew:        atoi(m["documents_new"]),
		DocumentsUpdated:    atoi(m["documents_updated"]),
		DocumentsSkipped:    atoi(m["documents_skipped"]),
		ArticlesIndexed:     atoi(m["articles_indexed"]),
		EmbeddingsGenerated: atoi(m["embeddings_generated"]),
		ErrorMessage:        m["error_message"],
		Errors:              runErrors,
		StartedAt:           startedAt,
		CompletedAt:         completedAt,
	}, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
