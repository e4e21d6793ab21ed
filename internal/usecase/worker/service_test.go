package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/phapluat-cloud/lexdex/internal/domain"
	"github.com/phapluat-cloud/lexdex/internal/usecase/pipeline"
)

// fakePipeline fails a configured number of attempts before succeeding.
type fakePipeline struct {
	failFirst int
	attempts  int
	runErrors []string
}

func (p *fakePipeline) Run(_ context.Context, category string, _ pipeline.Options) (domain.PipelineRun, error) {
	p.attempts++
	if p.attempts <= p.failFirst {
		return domain.PipelineRun{}, errors.New("transient failure")
	}
	return domain.PipelineRun{
		ID:           "run-1",
		CategoryID:   "cat-1",
		CategoryName: category,
		Status:       domain.RunCompleted,
		Errors:       p.runErrors,
	}, nil
}

type fakeCategoryStore struct {
	statuses map[string]string
}

func (s *fakeCategoryStore) GetByName(_ context.Context, name string) (domain.Category, error) {
	return domain.Category{ID: "cat-1", Name: name}, nil
}

func (s *fakeCategoryStore) UpdateWorkerStatus(_ context.Context, id, status string) error {
	if s.statuses == nil {
		s.statuses = map[string]string{}
	}
	s.statuses[id] = status
	return nil
}

func newTestService(p Pipeline, cats CategoryStore) (*Service, *[]time.Duration) {
	svc := New(p, cats, Config{MaxRetries: 3, RetryBackoff: 10 * time.Second}, zap.NewNop())
	var waits []time.Duration
	svc.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return svc, &waits
}

func TestRunCategorySucceedsAfterRetry(t *testing.T) {
	p := &fakePipeline{failFirst: 1}
	cats := &fakeCategoryStore{}
	svc, waits := newTestService(p, cats)

	run := svc.RunCategory(context.Background(), "dat_dai", pipeline.Options{})

	if p.attempts != 2 {
		t.Errorf("attempts = %d, want 2", p.attempts)
	}
	if len(*waits) != 1 || (*waits)[0] != 10*time.Second {
		t.Errorf("waits = %v, want one 10s backoff", *waits)
	}
	if run.Status != domain.RunCompleted {
		t.Errorf("status = %q", run.Status)
	}
	if cats.statuses["cat-1"] != domain.WorkerStatusSuccess {
		t.Errorf("worker status = %q, want success", cats.statuses["cat-1"])
	}
}

func TestRunCategoryExhaustsRetries(t *testing.T) {
	p := &fakePipeline{failFirst: 10}
	cats := &fakeCategoryStore{}
	svc, waits := newTestService(p, cats)

	svc.RunCategory(context.Background(), "dat_dai", pipeline.Options{})

	if p.attempts != 3 {
		t.Errorf("attempts = %d, want exactly max retries", p.attempts)
	}
	want := []time.Duration{10 * time.Second, 20 * time.Second}
	if len(*waits) != len(want) {
		t.Fatalf("waits = %v, want %v", *waits, want)
	}
	for i, w := range want {
		if (*waits)[i] != w {
			t.Errorf("wait %d = %v, want %v", i, (*waits)[i], w)
		}
	}
	for i := 1; i < len(*waits); i++ {
		if (*waits)[i] <= (*waits)[i-1] {
			t.Error("backoff is not strictly increasing")
		}
	}
	if cats.statuses["cat-1"] != domain.WorkerStatusFailed {
		t.Errorf("worker status = %q, want failed", cats.statuses["cat-1"])
	}
}

func TestRunCategoryPartial(t *testing.T) {
	p := &fakePipeline{runErrors: []string{"https://example.com/x: fetch failed"}}
	cats := &fakeCategoryStore{}
	svc, _ := newTestService(p, cats)

	svc.RunCategory(context.Background(), "dat_dai", pipeline.Options{})

	if p.attempts != 1 {
		t.Errorf("attempts = %d, a completed run with errors must not retry", p.attempts)
	}
	if cats.statuses["cat-1"] != domain.WorkerStatusPartial {
		t.Errorf("worker status = %q, want partial", cats.statuses["cat-1"])
	}
}

func TestCronSpec(t *testing.T) {
	cases := []struct {
		cadence string
		at      string
		stagger int
		want    string
	}{
		{"daily", "02:00", 0, "0 2 * * *"},
		{"daily", "02:00", 7, "7 2 * * *"},
		{"weekly", "02:30", 0, "30 2 * * 0"},
		{"monthly", "04:15", 0, "15 4 1 * *"},
		{"daily", "23:58", 7, "5 0 * * *"},
		{"", "", 0, "0 2 * * *"},
	}
	for _, tc := range cases {
		got, err := cronSpec(tc.cadence, tc.at, tc.stagger)
		if err != nil {
			t.Fatalf("cronSpec(%q, %q, %d): %v", tc.cadence, tc.at, tc.stagger, err)
		}
		if got != tc.want {
			t.Errorf("cronSpec(%q, %q, %d) = %q, want %q", tc.cadence, tc.at, tc.stagger, got, tc.want)
		}
	}
}

func TestCronSpecInvalid(t *testing.T) {
	if _, err := cronSpec("hourly", "02:00", 0); err == nil {
		t.Error("expected error for unknown cadence")
	}
	if _, err := cronSpec("daily", "25:00", 0); err == nil {
		t.Error("expected error for invalid hour")
	}
	if _, err := cronSpec("daily", "0200", 0); err == nil {
		t.Error("expected error for missing colon")
	}
}

func TestRegisterStaggersSharedSlots(t *testing.T) {
	p := &fakePipeline{}
	cats := &fakeCategoryStore{}
	svc, _ := newTestService(p, cats)

	schedules := []Schedule{
		{Category: "dat_dai", Cadence: "daily", At: "02:00"},
		{Category: "lao_dong", Cadence: "daily", At: "02:00"},
		{Category: "dan_su", Cadence: "daily", At: "02:00"},
	}
	if err := svc.Register(schedules); err != nil {
		t.Fatalf("Register: %v", err)
	}

	status := svc.Status()
	if len(status) != 3 {
		t.Fatalf("got %d jobs, want 3", len(status))
	}
	specs := map[string]bool{}
	for _, js := range status {
		if specs[js.Spec] {
			t.Errorf("two categories share cron spec %q", js.Spec)
		}
		specs[js.Spec] = true
	}
}
