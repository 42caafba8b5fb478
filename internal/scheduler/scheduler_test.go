package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Reelforge/internal/domain"
	"github.com/shaiso/Reelforge/internal/engine"
	"github.com/shaiso/Reelforge/internal/executor"
	"github.com/shaiso/Reelforge/internal/queue"
	"github.com/shaiso/Reelforge/internal/repo"
	"github.com/shaiso/Reelforge/internal/tracker"
)

// scriptedExecutor — сценарный executor для тестов планировщика.
// Поведение задаётся per-task: сколько первых сабмитов падает, падает
// ли фатально, держится ли задача до закрытия канала.
type scriptedExecutor struct {
	mu      sync.Mutex
	calls   map[string]int
	failN   map[string]int
	fatal   map[string]bool
	blocked map[string]chan struct{}

	running atomic.Int64
	peak    atomic.Int64
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		calls:   make(map[string]int),
		failN:   make(map[string]int),
		fatal:   make(map[string]bool),
		blocked: make(map[string]chan struct{}),
	}
}

func (e *scriptedExecutor) failFirst(taskID string, n int) { e.failN[taskID] = n }

func (e *scriptedExecutor) failFatal(taskID string) {
	e.failN[taskID] = 1 << 20
	e.fatal[taskID] = true
}

func (e *scriptedExecutor) block(taskID string) chan struct{} {
	ch := make(chan struct{})
	e.blocked[taskID] = ch
	return ch
}

func (e *scriptedExecutor) submitCount(taskID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[taskID]
}

func (e *scriptedExecutor) Submit(ctx context.Context, task *domain.Task) (executor.JobHandle, error) {
	e.mu.Lock()
	e.calls[task.ID]++
	n := e.calls[task.ID]
	failN := e.failN[task.ID]
	fatal := e.fatal[task.ID]
	e.mu.Unlock()

	if n <= failN {
		err := errors.New("backend unavailable")
		if fatal {
			return executor.JobHandle{}, executor.Fatal(err)
		}
		return executor.JobHandle{}, err
	}

	cur := e.running.Add(1)
	for {
		p := e.peak.Load()
		if cur <= p || e.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	return executor.JobHandle{ID: task.ID}, nil
}

func (e *scriptedExecutor) PollStatus(ctx context.Context, handle executor.JobHandle) (executor.Status, error) {
	e.mu.Lock()
	ch := e.blocked[handle.ID]
	e.mu.Unlock()

	if ch != nil {
		select {
		case <-ch:
		default:
			return executor.Pending(), nil
		}
	}

	e.running.Add(-1)
	return executor.Success(json.RawMessage(`{"job_id": "` + handle.ID + `"}`)), nil
}

type testEnv struct {
	store *repo.MemoryStore
	exec  *scriptedExecutor
	sched *Scheduler
}

func newTestEnv(t *testing.T, heavyCap int64) *testEnv {
	t.Helper()

	store := repo.NewMemoryStore()
	exec := newScriptedExecutor()

	reg := executor.NewRegistry()
	for _, typ := range []string{"keyframe", "video", "upscale", "interpolate", "qa"} {
		reg.Register(typ, exec)
	}

	q, err := queue.New(map[domain.ResourceClass]int64{
		domain.ClassHeavy: heavyCap,
		domain.ClassLight: 8,
	})
	if err != nil {
		t.Fatal(err)
	}

	tr, err := tracker.New(tracker.Config{
		PollInterval:    5 * time.Millisecond,
		AttemptDeadline: 2 * time.Second,
		GraceWindow:     5 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	sched := New(Config{
		Store:             store,
		Queue:             q,
		Tracker:           tr,
		Registry:          reg,
		Backoff:           Backoff{Mode: BackoffFixed, InitialDelay: 10 * time.Millisecond},
		GateCheckInterval: 5 * time.Millisecond,
	})
	if err := sched.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(sched.Stop)

	return &testEnv{store: store, exec: exec, sched: sched}
}

func pipelineDoc(tasks ...*domain.Task) *domain.Pipeline {
	return &domain.Pipeline{Name: "scene-001", Tasks: tasks}
}

func task(id, typ string, required bool, budget int, deps ...string) *domain.Task {
	return &domain.Task{
		ID:          id,
		Type:        typ,
		DependsOn:   deps,
		Required:    required,
		RetryBudget: budget,
		Payload:     json.RawMessage(`{"workflow": {}}`),
	}
}

// waitForStatus ждёт перехода pipeline в ожидаемый статус.
func waitForStatus(t *testing.T, store *repo.MemoryStore, id uuid.UUID, want domain.PipelineStatus) *domain.Pipeline {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p, err := store.GetPipeline(context.Background(), id)
		if err != nil {
			t.Fatalf("get pipeline: %v", err)
		}
		if p.Status == want {
			return p
		}
		time.Sleep(5 * time.Millisecond)
	}
	p, _ := store.GetPipeline(context.Background(), id)
	t.Fatalf("pipeline never reached %s, stuck at %s (%+v)", want, p.Status, p.Stats())
	return nil
}

func TestBackoff_Fixed(t *testing.T) {
	b := Backoff{Mode: BackoffFixed, InitialDelay: 2 * time.Second}
	for _, attempt := range []int{1, 2, 5} {
		if got := b.Delay(attempt); got != 2*time.Second {
			t.Errorf("attempt %d: expected 2s, got %v", attempt, got)
		}
	}
}

func TestBackoff_Exponential(t *testing.T) {
	b := Backoff{Mode: BackoffExponential, InitialDelay: time.Second, MaxDelay: 10 * time.Second}

	want := map[int]time.Duration{
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		4: 8 * time.Second,
		5: 10 * time.Second, // cap
		9: 10 * time.Second,
	}
	for attempt, expected := range want {
		if got := b.Delay(attempt); got != expected {
			t.Errorf("attempt %d: expected %v, got %v", attempt, expected, got)
		}
	}
}

func TestBackoff_Defaults(t *testing.T) {
	var b Backoff
	if got := b.Delay(1); got != defaultInitialDelay {
		t.Errorf("expected default delay, got %v", got)
	}
}

func TestSubmit_InvalidGraph(t *testing.T) {
	env := newTestEnv(t, 2)

	p := pipelineDoc(
		task("a", "keyframe", true, 0, "b"),
		task("b", "video", true, 0, "a"),
	)
	_, err := env.sched.Submit(context.Background(), p)
	if !errors.Is(err, ErrInvalidPipeline) {
		t.Fatalf("expected ErrInvalidPipeline, got %v", err)
	}
	// Причина валидации доступна через цепочку ошибок
	if !errors.Is(err, engine.ErrCyclicDependency) {
		t.Errorf("expected ErrCyclicDependency in the chain, got %v", err)
	}
}

func TestSubmit_HappyPathChain(t *testing.T) {
	env := newTestEnv(t, 2)

	p := pipelineDoc(
		task("keyframe", "keyframe", true, 0),
		task("video", "video", true, 0, "keyframe"),
		task("upscale", "upscale", true, 0, "video"),
	)
	id, err := env.sched.Submit(context.Background(), p)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	done := waitForStatus(t, env.store, id, domain.PipelineStatusCompleted)

	for _, taskID := range []string{"keyframe", "video", "upscale"} {
		tk := done.Task(taskID)
		if tk.State != domain.TaskStateSucceeded {
			t.Errorf("task %s: expected SUCCEEDED, got %s", taskID, tk.State)
		}
		if len(tk.Output) == 0 {
			t.Errorf("task %s: output must be persisted", taskID)
		}
		if env.exec.submitCount(taskID) != 1 {
			t.Errorf("task %s: expected 1 submit, got %d", taskID, env.exec.submitCount(taskID))
		}
	}
	if done.FinishedAt == nil {
		t.Error("finished pipeline must carry FinishedAt")
	}
}

func TestRetry_BudgetAndRecovery(t *testing.T) {
	env := newTestEnv(t, 2)
	env.exec.failFirst("video", 2)

	p := pipelineDoc(task("video", "video", true, 3))
	id, err := env.sched.Submit(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}

	done := waitForStatus(t, env.store, id, domain.PipelineStatusCompleted)

	tk := done.Task("video")
	if tk.State != domain.TaskStateSucceeded {
		t.Fatalf("expected SUCCEEDED after retries, got %s", tk.State)
	}
	if tk.RetryCount != 2 {
		t.Errorf("expected 2 retries, got %d", tk.RetryCount)
	}

	// Каждая попытка записана в журнал
	attempts, err := env.store.ListAttempts(context.Background(), id, "video")
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(attempts))
	}
	for i, a := range attempts {
		if a.Attempt != i+1 {
			t.Errorf("attempt numbering broken: %d at position %d", a.Attempt, i)
		}
	}
	if attempts[2].Outcome != domain.OutcomeSuccess {
		t.Errorf("last attempt must be SUCCESS, got %s", attempts[2].Outcome)
	}
}

func TestRetry_ExhaustedCascadesSkip(t *testing.T) {
	env := newTestEnv(t, 2)
	env.exec.failFirst("video", 100)

	// Упавшая ветка: video → upscale; независимый сиблинг qa доезжает
	p := pipelineDoc(
		task("keyframe", "keyframe", true, 0),
		task("video", "video", true, 1, "keyframe"),
		task("upscale", "upscale", true, 0, "video"),
		task("qa", "qa", false, 0, "keyframe"),
	)
	id, err := env.sched.Submit(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}

	done := waitForStatus(t, env.store, id, domain.PipelineStatusFailed)

	if got := done.Task("video").State; got != domain.TaskStateFailed {
		t.Errorf("video: expected FAILED, got %s", got)
	}
	if got := done.Task("upscale").State; got != domain.TaskStateSkipped {
		t.Errorf("upscale: expected SKIPPED, got %s", got)
	}
	if env.exec.submitCount("upscale") != 0 {
		t.Error("skipped task must never reach the backend")
	}
	// Сиблинг не пострадал
	if got := done.Task("qa").State; got != domain.TaskStateSucceeded {
		t.Errorf("qa: sibling branch must complete, got %s", got)
	}
	// 1 попытка + 1 retry
	if got := env.exec.submitCount("video"); got != 2 {
		t.Errorf("video: expected 2 submits (budget 1), got %d", got)
	}
}

func TestRetry_FatalSkipsBudget(t *testing.T) {
	env := newTestEnv(t, 2)
	env.exec.failFatal("video")

	p := pipelineDoc(task("video", "video", true, 5))
	id, err := env.sched.Submit(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}

	waitForStatus(t, env.store, id, domain.PipelineStatusFailed)

	// Фатальная ошибка не ретраится, бюджет не важен
	if got := env.exec.submitCount("video"); got != 1 {
		t.Errorf("fatal error must not be retried, got %d submits", got)
	}
}

func TestOptionalTaskFailureDoesNotFailPipeline(t *testing.T) {
	env := newTestEnv(t, 2)
	env.exec.failFirst("qa", 100)

	p := pipelineDoc(
		task("keyframe", "keyframe", true, 0),
		task("qa", "qa", false, 0, "keyframe"),
	)
	id, err := env.sched.Submit(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}

	done := waitForStatus(t, env.store, id, domain.PipelineStatusCompleted)

	if got := done.Task("qa").State; got != domain.TaskStateFailed {
		t.Errorf("qa: expected FAILED, got %s", got)
	}
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t, 2)
	release := env.exec.block("video")
	defer close(release)

	p := pipelineDoc(
		task("video", "video", true, 0),
		task("upscale", "upscale", true, 0, "video"),
	)
	id, err := env.sched.Submit(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}

	// Дожидаемся, пока video реально стартует
	deadline := time.Now().Add(2 * time.Second)
	for env.exec.submitCount("video") == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	if err := env.sched.Cancel(context.Background(), id); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	done := waitForStatus(t, env.store, id, domain.PipelineStatusCancelled)

	if got := done.Task("upscale").State; got != domain.TaskStateSkipped {
		t.Errorf("pending task after cancel: expected SKIPPED, got %s", got)
	}
	if got := done.Task("video").State; got != domain.TaskStateFailed {
		t.Errorf("running task after cancel: expected FAILED, got %s", got)
	}

	// Повторная отмена — ошибка
	if err := env.sched.Cancel(context.Background(), id); !errors.Is(err, ErrPipelineFinished) && !errors.Is(err, ErrPipelineNotFound) {
		t.Errorf("expected terminal-pipeline error, got %v", err)
	}
}

func TestPauseResume(t *testing.T) {
	env := newTestEnv(t, 2)
	release := env.exec.block("keyframe")

	p := pipelineDoc(
		task("keyframe", "keyframe", true, 0),
		task("video", "video", true, 0, "keyframe"),
	)
	id, err := env.sched.Submit(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.exec.submitCount("keyframe") == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	if err := env.sched.Pause(context.Background(), id); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// Выполняющаяся задача доезжает, зависимая не стартует
	close(release)
	time.Sleep(100 * time.Millisecond)

	if got := env.exec.submitCount("video"); got != 0 {
		t.Fatalf("paused pipeline must not dispatch, video submitted %d times", got)
	}
	paused, _ := env.store.GetPipeline(context.Background(), id)
	if paused.Task("keyframe").State != domain.TaskStateSucceeded {
		t.Error("in-flight task must finish its attempt under pause")
	}

	if err := env.sched.Resume(context.Background(), id); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitForStatus(t, env.store, id, domain.PipelineStatusCompleted)

	// Resume не из PAUSED — ошибка
	if err := env.sched.Resume(context.Background(), id); err == nil {
		t.Error("resume of a finished pipeline must fail")
	}
}

func TestRestartRecovery(t *testing.T) {
	// Документ после "падения" процесса: keyframe завершён,
	// video застрял в RUNNING
	store := repo.NewMemoryStore()
	now := time.Now()

	p := &domain.Pipeline{
		ID:        uuid.New(),
		Status:    domain.PipelineStatusActive,
		CreatedAt: now,
		Tasks: []*domain.Task{
			{ID: "keyframe", Type: "keyframe", State: domain.TaskStateSucceeded, Required: true,
				Output: json.RawMessage(`{"job_id": "old"}`), Class: domain.ClassHeavy},
			{ID: "video", Type: "video", State: domain.TaskStateRunning, Required: true,
				DependsOn: []string{"keyframe"}, Payload: json.RawMessage(`{"workflow": {}}`), Class: domain.ClassHeavy},
		},
	}
	if err := store.CreatePipeline(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	exec := newScriptedExecutor()
	reg := executor.NewRegistry()
	reg.Register("keyframe", exec)
	reg.Register("video", exec)

	q, _ := queue.New(map[domain.ResourceClass]int64{domain.ClassHeavy: 2, domain.ClassLight: 8})
	tr, _ := tracker.New(tracker.Config{
		PollInterval:    5 * time.Millisecond,
		AttemptDeadline: 2 * time.Second,
		GraceWindow:     5 * time.Millisecond,
	}, nil)

	sched := New(Config{
		Store: store, Queue: q, Tracker: tr, Registry: reg,
		Backoff:           Backoff{Mode: BackoffFixed, InitialDelay: 10 * time.Millisecond},
		GateCheckInterval: 5 * time.Millisecond,
	})
	if err := sched.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	done := waitForStatus(t, store, p.ID, domain.PipelineStatusCompleted)

	// Завершённая задача не перевыполняется, прерванная — повторяется
	if got := exec.submitCount("keyframe"); got != 0 {
		t.Errorf("succeeded task must not be re-executed, got %d submits", got)
	}
	if got := exec.submitCount("video"); got != 1 {
		t.Errorf("interrupted task must be re-attempted once, got %d submits", got)
	}
	if string(done.Task("keyframe").Output) != `{"job_id": "old"}` {
		t.Error("persisted output must survive restart untouched")
	}
}

func TestIdempotencyKey_SingleRun(t *testing.T) {
	env := newTestEnv(t, 2)

	first := pipelineDoc(task("keyframe", "keyframe", true, 0))
	first.IdempotencyKey = "sched-1_1756300000"
	id1, err := env.sched.Submit(context.Background(), first)
	if err != nil {
		t.Fatal(err)
	}

	second := pipelineDoc(task("keyframe", "keyframe", true, 0))
	second.IdempotencyKey = "sched-1_1756300000"
	id2, err := env.sched.Submit(context.Background(), second)
	if err != nil {
		t.Fatal(err)
	}

	if id1 != id2 {
		t.Errorf("same idempotency key must yield the same pipeline: %s vs %s", id1, id2)
	}
}

func TestAdmissionBound_AcrossPipelines(t *testing.T) {
	env := newTestEnv(t, 2)

	// 3 pipeline по 2 heavy-задачи: одновременно на backend'е не больше 2
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		p := pipelineDoc(
			task("keyframe", "keyframe", true, 0),
			task("video", "video", true, 0),
		)
		id, err := env.sched.Submit(context.Background(), p)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	for _, id := range ids {
		waitForStatus(t, env.store, id, domain.PipelineStatusCompleted)
	}

	if peak := env.exec.peak.Load(); peak > 2 {
		t.Errorf("admission bound violated: %d concurrent heavy tasks", peak)
	}
}
