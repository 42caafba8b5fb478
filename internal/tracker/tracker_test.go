package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Reelforge/internal/backend"
	"github.com/shaiso/Reelforge/internal/domain"
	"github.com/shaiso/Reelforge/internal/executor"
)

// fakeExecutor — сценарный executor: отдаёт заданную последовательность
// статусов, последний повторяется.
type fakeExecutor struct {
	submitErr error
	handle    executor.JobHandle
	statuses  []executor.Status
	pollErr   error
	polls     atomic.Int64
}

func (f *fakeExecutor) Submit(ctx context.Context, task *domain.Task) (executor.JobHandle, error) {
	if f.submitErr != nil {
		return executor.JobHandle{}, f.submitErr
	}
	if f.handle.ID == "" {
		f.handle.ID = "job-1"
	}
	return f.handle, nil
}

func (f *fakeExecutor) PollStatus(ctx context.Context, handle executor.JobHandle) (executor.Status, error) {
	n := int(f.polls.Add(1)) - 1
	if f.pollErr != nil {
		return executor.Status{}, f.pollErr
	}
	if len(f.statuses) == 0 {
		return executor.Pending(), nil
	}
	if n >= len(f.statuses) {
		n = len(f.statuses) - 1
	}
	return f.statuses[n], nil
}

func fastConfig() Config {
	return Config{
		PollInterval:    10 * time.Millisecond,
		AttemptDeadline: 300 * time.Millisecond,
		GraceWindow:     10 * time.Millisecond,
	}
}

func newTestTracker(t *testing.T, cfg Config, opts ...Option) *Tracker {
	t.Helper()
	tr, err := New(cfg, nil, opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tr
}

func testTask() *domain.Task {
	return &domain.Task{
		ID:      "video",
		Type:    "video",
		State:   domain.TaskStateRunning,
		Payload: json.RawMessage(`{"workflow": {}}`),
	}
}

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PollInterval != DefaultPollInterval {
		t.Errorf("expected default poll interval, got %v", cfg.PollInterval)
	}
	if cfg.AttemptDeadline != DefaultAttemptDeadline {
		t.Errorf("expected default deadline, got %v", cfg.AttemptDeadline)
	}
	if cfg.MaxPollAttempts != 0 {
		t.Errorf("poll attempts must default to unbounded, got %d", cfg.MaxPollAttempts)
	}
}

func TestConfig_Invalid(t *testing.T) {
	for name, cfg := range map[string]Config{
		"negative interval": {PollInterval: -time.Second},
		"negative deadline": {AttemptDeadline: -time.Second},
		"negative attempts": {MaxPollAttempts: -1},
	} {
		c := cfg
		if err := c.Validate(); !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("%s: expected ErrInvalidConfiguration, got %v", name, err)
		}
	}
}

func TestTrack_SuccessViaStatusHistory(t *testing.T) {
	exec := &fakeExecutor{
		statuses: []executor.Status{
			executor.Pending(),
			executor.Success(json.RawMessage(`{"job_id": "job-1"}`)),
		},
	}

	tr := newTestTracker(t, fastConfig())
	res := tr.Track(context.Background(), uuid.New(), testTask(), exec)

	if res.Attempt.Outcome != domain.OutcomeSuccess {
		t.Fatalf("expected SUCCESS, got %s (%s)", res.Attempt.Outcome, res.Attempt.Error)
	}
	if res.Attempt.Strategy != StrategyStatusHistory {
		t.Errorf("expected %s, got %q", StrategyStatusHistory, res.Attempt.Strategy)
	}
	if len(res.Output) == 0 {
		t.Error("success must carry output")
	}
	if res.Attempt.Telemetry.PollAttempts < 2 {
		t.Errorf("expected at least 2 polls, got %d", res.Attempt.Telemetry.PollAttempts)
	}
}

func TestTrack_SilentAPIResolvedBySentinel(t *testing.T) {
	// Статусный API молчит, но workflow записал done-маркер
	dir := t.TempDir()
	if err := backend.WriteDoneMarker(dir, "clip", backend.DoneMarker{FrameCount: 49}); err != nil {
		t.Fatal(err)
	}

	exec := &fakeExecutor{
		handle: executor.JobHandle{ID: "job-1", OutputDir: dir, OutputPrefix: "clip", MinArtifacts: 10},
	}

	tr := newTestTracker(t, fastConfig())
	res := tr.Track(context.Background(), uuid.New(), testTask(), exec)

	if res.Attempt.Outcome != domain.OutcomeSuccess {
		t.Fatalf("expected SUCCESS, got %s (%s)", res.Attempt.Outcome, res.Attempt.Error)
	}
	if res.Attempt.Strategy != StrategySentinel {
		t.Errorf("expected %s, got %q", StrategySentinel, res.Attempt.Strategy)
	}
}

func TestTrack_StrategyPriority(t *testing.T) {
	// И API отвечает, и маркер лежит: выигрывает статусный API
	dir := t.TempDir()
	if err := backend.WriteDoneMarker(dir, "clip", backend.DoneMarker{}); err != nil {
		t.Fatal(err)
	}

	exec := &fakeExecutor{
		handle:   executor.JobHandle{ID: "job-1", OutputDir: dir, OutputPrefix: "clip"},
		statuses: []executor.Status{executor.Success(json.RawMessage(`{}`))},
	}

	tr := newTestTracker(t, fastConfig())
	res := tr.Track(context.Background(), uuid.New(), testTask(), exec)

	if res.Attempt.Strategy != StrategyStatusHistory {
		t.Errorf("status_history must win over sentinel, got %q", res.Attempt.Strategy)
	}
}

func TestTrack_ArtifactFallback(t *testing.T) {
	// API молчит, маркера нет, но кадры на диске уже есть
	dir := t.TempDir()
	for _, name := range []string{"clip_00001.png", "clip_00002.png"} {
		if err := writeEmptyFile(dir, name); err != nil {
			t.Fatal(err)
		}
	}

	exec := &fakeExecutor{
		handle: executor.JobHandle{ID: "job-1", OutputDir: dir, OutputPrefix: "clip", MinArtifacts: 2},
	}

	tr := newTestTracker(t, fastConfig())
	res := tr.Track(context.Background(), uuid.New(), testTask(), exec)

	if res.Attempt.Outcome != domain.OutcomeSuccess {
		t.Fatalf("expected SUCCESS, got %s", res.Attempt.Outcome)
	}
	if res.Attempt.Strategy != StrategyArtifact {
		t.Errorf("expected %s, got %q", StrategyArtifact, res.Attempt.Strategy)
	}
}

func TestTrack_Timeout(t *testing.T) {
	exec := &fakeExecutor{} // вечный pending

	cfg := fastConfig()
	cfg.AttemptDeadline = 50 * time.Millisecond

	tr := newTestTracker(t, cfg)
	res := tr.Track(context.Background(), uuid.New(), testTask(), exec)

	if res.Attempt.Outcome != domain.OutcomeTimeout {
		t.Fatalf("expected TIMEOUT, got %s", res.Attempt.Outcome)
	}
	if res.Fatal {
		t.Error("timeout must be retryable")
	}
	if res.Attempt.Strategy != "" {
		t.Errorf("unresolved attempt must not record a strategy, got %q", res.Attempt.Strategy)
	}
}

func TestTrack_GraceWindowResolves(t *testing.T) {
	// Ни один опрос до дедлайна не успел, но к финальному проходу
	// маркер уже записан.
	dir := t.TempDir()
	exec := &fakeExecutor{
		handle: executor.JobHandle{ID: "job-1", OutputDir: dir, OutputPrefix: "clip"},
	}

	cfg := fastConfig()
	cfg.AttemptDeadline = 60 * time.Millisecond
	cfg.GraceWindow = 40 * time.Millisecond

	go func() {
		time.Sleep(80 * time.Millisecond)
		_ = backend.WriteDoneMarker(dir, "clip", backend.DoneMarker{FrameCount: 1})
	}()

	tr := newTestTracker(t, cfg)
	res := tr.Track(context.Background(), uuid.New(), testTask(), exec)

	if res.Attempt.Outcome != domain.OutcomeSuccess {
		t.Fatalf("grace window check must catch the marker, got %s", res.Attempt.Outcome)
	}
	if res.Attempt.Strategy != StrategySentinel {
		t.Errorf("expected %s, got %q", StrategySentinel, res.Attempt.Strategy)
	}
}

func TestTrack_SuccessHeldForGraceWindow(t *testing.T) {
	// Успех обнаружен первым же опросом, но объявляется только после
	// GraceWindow: выходы job'а могут ещё дописываться.
	exec := &fakeExecutor{
		statuses: []executor.Status{executor.Success(json.RawMessage(`{}`))},
	}

	cfg := fastConfig()
	cfg.GraceWindow = 80 * time.Millisecond

	tr := newTestTracker(t, cfg)

	start := time.Now()
	res := tr.Track(context.Background(), uuid.New(), testTask(), exec)

	if res.Attempt.Outcome != domain.OutcomeSuccess {
		t.Fatalf("expected SUCCESS, got %s", res.Attempt.Outcome)
	}
	if elapsed := time.Since(start); elapsed < cfg.GraceWindow {
		t.Errorf("success declared %v after submit, before the %v grace window elapsed", elapsed, cfg.GraceWindow)
	}
}

func TestTrack_MaxPollAttempts(t *testing.T) {
	exec := &fakeExecutor{}

	cfg := fastConfig()
	cfg.MaxPollAttempts = 3
	cfg.AttemptDeadline = 10 * time.Second

	tr := newTestTracker(t, cfg)

	start := time.Now()
	res := tr.Track(context.Background(), uuid.New(), testTask(), exec)

	if res.Attempt.Outcome != domain.OutcomeTimeout {
		t.Fatalf("expected TIMEOUT, got %s", res.Attempt.Outcome)
	}
	if res.Attempt.Telemetry.PollAttempts != 3 {
		t.Errorf("expected exactly 3 polls, got %d", res.Attempt.Telemetry.PollAttempts)
	}
	if time.Since(start) > time.Second {
		t.Error("poll budget must cut the attempt short of the deadline")
	}
}

func TestTrack_BackendError(t *testing.T) {
	exec := &fakeExecutor{
		statuses: []executor.Status{executor.Failed("CUDA out of memory", false)},
	}

	tr := newTestTracker(t, fastConfig())
	res := tr.Track(context.Background(), uuid.New(), testTask(), exec)

	if res.Attempt.Outcome != domain.OutcomeBackendError {
		t.Fatalf("expected BACKEND_ERROR, got %s", res.Attempt.Outcome)
	}
	if res.Fatal {
		t.Error("non-fatal backend error must stay retryable")
	}
	if res.Attempt.Strategy != StrategyStatusHistory {
		t.Errorf("failure verdict must record the resolving strategy, got %q", res.Attempt.Strategy)
	}
}

func TestTrack_FatalBackendError(t *testing.T) {
	exec := &fakeExecutor{
		statuses: []executor.Status{executor.Failed("workflow graph is invalid", true)},
	}

	tr := newTestTracker(t, fastConfig())
	res := tr.Track(context.Background(), uuid.New(), testTask(), exec)

	if res.Attempt.Outcome != domain.OutcomeBackendError {
		t.Fatalf("expected BACKEND_ERROR, got %s", res.Attempt.Outcome)
	}
	if !res.Fatal {
		t.Error("fatal verdict must be carried through")
	}
}

func TestTrack_SubmitFailure(t *testing.T) {
	exec := &fakeExecutor{submitErr: errors.New("connection refused")}

	tr := newTestTracker(t, fastConfig())
	res := tr.Track(context.Background(), uuid.New(), testTask(), exec)

	if res.Attempt.Outcome != domain.OutcomeBackendError {
		t.Fatalf("expected BACKEND_ERROR, got %s", res.Attempt.Outcome)
	}
	if res.Fatal {
		t.Error("transport-level submit failure must be retryable")
	}
}

func TestTrack_FatalSubmitFailure(t *testing.T) {
	exec := &fakeExecutor{submitErr: executor.Fatal(executor.ErrInvalidPayload)}

	tr := newTestTracker(t, fastConfig())
	res := tr.Track(context.Background(), uuid.New(), testTask(), exec)

	if !res.Fatal {
		t.Error("invalid payload must not be retried")
	}
}

type fakeInterrupter struct {
	called atomic.Bool
}

func (f *fakeInterrupter) Interrupt(ctx context.Context) error {
	f.called.Store(true)
	return nil
}

func TestTrack_Cancellation(t *testing.T) {
	exec := &fakeExecutor{} // вечный pending
	intr := &fakeInterrupter{}

	cfg := fastConfig()
	cfg.AttemptDeadline = 10 * time.Second

	tr := newTestTracker(t, cfg, WithInterrupter(intr))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res := tr.Track(ctx, uuid.New(), testTask(), exec)

	if res.Attempt.Outcome != domain.OutcomeCancelled {
		t.Fatalf("expected CANCELLED, got %s", res.Attempt.Outcome)
	}
	// Отмена замечается в пределах одного интервала опроса
	if time.Since(start) > 500*time.Millisecond {
		t.Error("cancellation must be observed promptly")
	}
	if !intr.called.Load() {
		t.Error("cancellation must trigger a best-effort backend interrupt")
	}
	if res.Fatal {
		t.Error("cancellation is not a fatal error, it is terminal by outcome")
	}
}

func TestTrack_StrategyErrorContinuesChain(t *testing.T) {
	// Статусный API недоступен (ошибка, не вердикт), маркер лежит:
	// цепочка должна дойти до sentinel
	dir := t.TempDir()
	if err := backend.WriteDoneMarker(dir, "clip", backend.DoneMarker{}); err != nil {
		t.Fatal(err)
	}

	exec := &fakeExecutor{
		handle:  executor.JobHandle{ID: "job-1", OutputDir: dir, OutputPrefix: "clip"},
		pollErr: errors.New("connection reset"),
	}

	tr := newTestTracker(t, fastConfig())
	res := tr.Track(context.Background(), uuid.New(), testTask(), exec)

	if res.Attempt.Outcome != domain.OutcomeSuccess {
		t.Fatalf("expected SUCCESS via fallback, got %s", res.Attempt.Outcome)
	}
	if res.Attempt.Strategy != StrategySentinel {
		t.Errorf("expected %s, got %q", StrategySentinel, res.Attempt.Strategy)
	}
}

// stubStrategy — стратегия с фиксированным вердиктом.
type stubStrategy struct {
	name string
	res  Resolution
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Check(ctx context.Context, handle executor.JobHandle) (Resolution, error) {
	return s.res, nil
}

func TestTrack_CustomStrategyChain(t *testing.T) {
	// Подставленная цепочка замещает стандартную целиком: попытку
	// разрешает её стратегия, а не status_history.
	exec := &fakeExecutor{
		statuses: []executor.Status{executor.Success(json.RawMessage(`{}`))},
	}

	custom := func(executor.Executor) []Strategy {
		return []Strategy{&stubStrategy{
			name: "external_ledger",
			res:  Resolution{Resolved: true, Success: true, Output: json.RawMessage(`{"frames": 1}`)},
		}}
	}

	tr := newTestTracker(t, fastConfig(), WithStrategies(custom))
	res := tr.Track(context.Background(), uuid.New(), testTask(), exec)

	if res.Attempt.Outcome != domain.OutcomeSuccess {
		t.Fatalf("expected SUCCESS, got %s", res.Attempt.Outcome)
	}
	if res.Attempt.Strategy != "external_ledger" {
		t.Errorf("custom chain must resolve the attempt, got %q", res.Attempt.Strategy)
	}
}

func writeEmptyFile(dir, name string) error {
	return os.WriteFile(filepath.Join(dir, name), nil, 0o644)
}

func TestTrack_AttemptNumbering(t *testing.T) {
	exec := &fakeExecutor{
		statuses: []executor.Status{executor.Success(json.RawMessage(`{}`))},
	}

	task := testTask()
	task.RetryCount = 2

	tr := newTestTracker(t, fastConfig())
	res := tr.Track(context.Background(), uuid.New(), task, exec)

	if res.Attempt.Attempt != 3 {
		t.Errorf("expected attempt number 3, got %d", res.Attempt.Attempt)
	}
}
