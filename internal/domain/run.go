package domain

import "time"

// RunStatus is the lifecycle state of a pipeline run.
// running → completed | failed, terminal once set.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// TriggerType records what started a pipeline run.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
	TriggerForced    TriggerType = "forced"
)

// PipelineRun is the audit record of one pipeline execution for one
// category. Finalized exactly once; immutable afterwards.
type PipelineRun struct {
	ID                  string
	CategoryID          string
	CategoryName        string
	Status              RunStatus
	Trigger             TriggerType
	DocumentsFound      int
	DocumentsNew        int
	DocumentsUpdated    int
	DocumentsSkipped    int
	ArticlesIndexed     int
	EmbeddingsGenerated int
	ErrorMessage        string
	Errors              []string
	StartedAt           time.Time
	CompletedAt         time.Time
}

// Duration reports how long the run took. Zero until finalized.
func (r PipelineRun) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
