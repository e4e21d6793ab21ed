package run

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	dbmemory "github.com/phapluat-cloud/lexdex/internal/db/memory"
	"github.com/phapluat-cloud/lexdex/internal/domain"
)

func TestCreateAndGet(t *testing.T) {
	repo := New(dbmemory.NewStore())
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	run := domain.PipelineRun{
		ID:           "01HRUN",
		CategoryID:   "cat-1",
		CategoryName: "dat_dai",
		Status:       domain.RunRunning,
		Trigger:      domain.TriggerScheduled,
		StartedAt:    started,
	}
	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.Get(ctx, "01HRUN")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.RunRunning || !got.StartedAt.Equal(started) {
		t.Errorf("unexpected run: %+v", got)
	}
	if !got.CompletedAt.IsZero() {
		t.Error("completed_at set on a running record")
	}
}

func TestFinalizeRoundTrip(t *testing.T) {
	repo := New(dbmemory.NewStore())
	ctx := context.Background()

	run := domain.PipelineRun{
		ID:                  "01HRUN",
		CategoryID:          "cat-1",
		CategoryName:        "dat_dai",
		Status:              domain.RunCompleted,
		Trigger:             domain.TriggerManual,
		DocumentsFound:      3,
		DocumentsNew:        1,
		DocumentsUpdated:    1,
		DocumentsSkipped:    1,
		ArticlesIndexed:     25,
		EmbeddingsGenerated: 25,
		Errors:              []string{"https://example.com/x: timeout"},
		StartedAt:           time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC),
		CompletedAt:         time.Date(2026, 3, 1, 2, 4, 30, 0, time.UTC),
	}
	if err := repo.Finalize(ctx, run); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	got, err := repo.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(got, run) {
		t.Errorf("round trip diverged:\ngot  %+v\nwant %+v", got, run)
	}
	if got.Duration() != 4*time.Minute+30*time.Second {
		t.Errorf("duration = %v", got.Duration())
	}
}

func TestGetMissing(t *testing.T) {
	repo := New(dbmemory.NewStore())
	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
