package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Reelforge/internal/domain"
	"github.com/shaiso/Reelforge/internal/repo"
)

// fakeSubmitter записывает сабмиты и дедуплицирует по ключу
// идемпотентности, как настоящий планировщик.
type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []*domain.Pipeline
	byKey     map[string]uuid.UUID
	err       error
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{byKey: make(map[string]uuid.UUID)}
}

func (f *fakeSubmitter) Submit(_ context.Context, p *domain.Pipeline) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return uuid.Nil, f.err
	}
	if p.IdempotencyKey != "" {
		if id, ok := f.byKey[p.IdempotencyKey]; ok {
			return id, nil
		}
	}
	id := uuid.New()
	p.ID = id
	f.submitted = append(f.submitted, p)
	if p.IdempotencyKey != "" {
		f.byKey[p.IdempotencyKey] = id
	}
	return id, nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

func testTemplate(t *testing.T) json.RawMessage {
	t.Helper()
	spec := domain.PipelineSpec{
		Name: "nightly-render",
		Tasks: []domain.TaskSpec{
			{ID: "keyframe", Type: "keyframe_generation"},
			{ID: "video", Type: "video_generation", DependsOn: []string{"keyframe"}},
		},
	}
	raw, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("marshal template: %v", err)
	}
	return raw
}

func dueSchedule(t *testing.T, intervalSec int) *domain.Schedule {
	t.Helper()
	now := time.Now()
	due := now.Add(-time.Second)
	return &domain.Schedule{
		ID:          uuid.New(),
		Name:        "nightly",
		Template:    testTemplate(t),
		IntervalSec: intervalSec,
		Timezone:    "UTC",
		Enabled:     true,
		NextDueAt:   &due,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestTick_FiresDueSchedule(t *testing.T) {
	store := repo.NewMemoryStore()
	submitter := newFakeSubmitter()
	runner := New(Config{Schedules: store, Submitter: submitter, Logger: slog.Default()})

	sched := dueSchedule(t, 3600)
	if err := store.CreateSchedule(context.Background(), sched); err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	if err := runner.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if submitter.count() != 1 {
		t.Fatalf("submitted = %d, want 1", submitter.count())
	}
	p := submitter.submitted[0]
	if p.Name != "nightly-render" {
		t.Errorf("pipeline name = %q, want nightly-render", p.Name)
	}
	if len(p.Tasks) != 2 {
		t.Errorf("tasks = %d, want 2", len(p.Tasks))
	}
	wantKey := fmt.Sprintf("%s_%d", sched.ID, sched.NextDueAt.Unix())
	if p.IdempotencyKey != wantKey {
		t.Errorf("idempotency key = %q, want %q", p.IdempotencyKey, wantKey)
	}

	// Расписание продвинулось вперёд
	updated, err := store.GetSchedule(context.Background(), sched.ID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if updated.LastPipelineID == nil || *updated.LastPipelineID != p.ID {
		t.Error("last_pipeline_id not recorded")
	}
	if updated.NextDueAt == nil || !updated.NextDueAt.After(time.Now()) {
		t.Error("next_due_at not advanced into the future")
	}
}

func TestTick_NotDueIsSkipped(t *testing.T) {
	store := repo.NewMemoryStore()
	submitter := newFakeSubmitter()
	runner := New(Config{Schedules: store, Submitter: submitter})

	sched := dueSchedule(t, 3600)
	future := time.Now().Add(time.Hour)
	sched.NextDueAt = &future
	if err := store.CreateSchedule(context.Background(), sched); err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	if err := runner.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if submitter.count() != 0 {
		t.Fatalf("submitted = %d, want 0", submitter.count())
	}
}

func TestTick_DisabledIsSkipped(t *testing.T) {
	store := repo.NewMemoryStore()
	submitter := newFakeSubmitter()
	runner := New(Config{Schedules: store, Submitter: submitter})

	sched := dueSchedule(t, 3600)
	sched.Enabled = false
	if err := store.CreateSchedule(context.Background(), sched); err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	if err := runner.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if submitter.count() != 0 {
		t.Fatalf("submitted = %d, want 0", submitter.count())
	}
}

func TestTick_IdempotentAcrossDuplicateTicks(t *testing.T) {
	store := repo.NewMemoryStore()
	submitter := newFakeSubmitter()
	runner := New(Config{Schedules: store, Submitter: submitter})

	sched := dueSchedule(t, 3600)
	if err := store.CreateSchedule(context.Background(), sched); err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	if err := runner.Tick(context.Background()); err != nil {
		t.Fatalf("first tick: %v", err)
	}

	// Имитируем повтор после рестарта: возвращаем next_due_at назад,
	// на то же самое срабатывание
	stored, err := store.GetSchedule(context.Background(), sched.ID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	stored.NextDueAt = sched.NextDueAt
	if err := store.UpdateSchedule(context.Background(), stored); err != nil {
		t.Fatalf("update schedule: %v", err)
	}

	if err := runner.Tick(context.Background()); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if submitter.count() != 1 {
		t.Fatalf("submitted = %d, want 1 (duplicate fire must dedupe)", submitter.count())
	}
}

func TestTick_InvalidTemplateDisablesSchedule(t *testing.T) {
	store := repo.NewMemoryStore()
	submitter := newFakeSubmitter()
	runner := New(Config{Schedules: store, Submitter: submitter})

	sched := dueSchedule(t, 3600)
	sched.Template = json.RawMessage(`{not json`)
	if err := store.CreateSchedule(context.Background(), sched); err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	if err := runner.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if submitter.count() != 0 {
		t.Fatalf("submitted = %d, want 0", submitter.count())
	}

	updated, err := store.GetSchedule(context.Background(), sched.ID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if updated.Enabled {
		t.Error("schedule with invalid template must be disabled")
	}
}

func TestTick_SubmitErrorKeepsSchedule(t *testing.T) {
	store := repo.NewMemoryStore()
	submitter := newFakeSubmitter()
	submitter.err = errors.New("store unavailable")
	runner := New(Config{Schedules: store, Submitter: submitter})

	sched := dueSchedule(t, 3600)
	if err := store.CreateSchedule(context.Background(), sched); err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	if err := runner.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	// next_due_at не сдвинулся — следующий тик повторит попытку
	updated, err := store.GetSchedule(context.Background(), sched.ID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if !updated.NextDueAt.Equal(*sched.NextDueAt) {
		t.Error("next_due_at must not advance when submit fails")
	}

	submitter.err = nil
	if err := runner.Tick(context.Background()); err != nil {
		t.Fatalf("retry tick: %v", err)
	}
	if submitter.count() != 1 {
		t.Fatalf("submitted = %d after retry, want 1", submitter.count())
	}
}

func TestNextDue_Interval(t *testing.T) {
	sched := &domain.Schedule{IntervalSec: 600, Timezone: "UTC"}
	from := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	next, err := NextDue(sched, from)
	if err != nil {
		t.Fatalf("NextDue: %v", err)
	}
	want := from.Add(10 * time.Minute)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestNextDue_Cron(t *testing.T) {
	// Каждый день в 03:00
	sched := &domain.Schedule{CronExpr: "0 3 * * *", Timezone: "UTC"}
	from := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	next, err := NextDue(sched, from)
	if err != nil {
		t.Fatalf("NextDue: %v", err)
	}
	want := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestNextDue_CronPrecedesInterval(t *testing.T) {
	sched := &domain.Schedule{CronExpr: "0 3 * * *", IntervalSec: 60, Timezone: "UTC"}
	from := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	next, err := NextDue(sched, from)
	if err != nil {
		t.Fatalf("NextDue: %v", err)
	}
	if next.Equal(from.Add(time.Minute)) {
		t.Error("cron_expr must take precedence over interval_sec")
	}
}

func TestNextDue_InvalidTimezoneFallsBackToUTC(t *testing.T) {
	sched := &domain.Schedule{IntervalSec: 60, Timezone: "Mars/Olympus"}
	from := time.Now()

	next, err := NextDue(sched, from)
	if err != nil {
		t.Fatalf("NextDue: %v", err)
	}
	if next.Before(from) {
		t.Error("next must be after from")
	}
}

func TestNextDue_EmptySchedule(t *testing.T) {
	sched := &domain.Schedule{Timezone: "UTC"}
	if _, err := NextDue(sched, time.Now()); err == nil {
		t.Fatal("expected error for schedule with neither cron nor interval")
	}
}

func TestValidateCronExpr(t *testing.T) {
	if err := ValidateCronExpr("*/5 * * * *"); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := ValidateCronExpr("not a cron"); err == nil {
		t.Error("invalid expression accepted")
	}
}
