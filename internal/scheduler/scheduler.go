package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Reelforge/internal/domain"
	"github.com/shaiso/Reelforge/internal/engine"
	"github.com/shaiso/Reelforge/internal/executor"
	"github.com/shaiso/Reelforge/internal/queue"
	"github.com/shaiso/Reelforge/internal/repo"
	"github.com/shaiso/Reelforge/internal/telemetry"
	"github.com/shaiso/Reelforge/internal/tracker"
)

// defaultGateCheckInterval — период проверки backoff-ворот, когда нет
// других событий.
const defaultGateCheckInterval = time.Second

// Store — хранилище, нужное планировщику.
type Store interface {
	repo.PipelineStore
	repo.AttemptStore
}

// Scheduler управляет выполнением pipelines.
//
// Scheduler — центральный компонент системы, который:
//   - Принимает pipeline-документы и валидирует граф задач
//   - Продвигает задачи PENDING → READY по готовности зависимостей
//   - Диспетчеризует READY-задачи через admission queue
//   - Доверяет каждую попытку Execution Tracker'у
//   - Применяет retry-политику и каскад пропусков
//   - Финализирует pipeline и восстанавливает работу после рестарта
//
// Каждому незавершённому pipeline соответствует одна управляющая
// горутина; задачи выполняются в собственных горутинах, переходы
// состояний сериализуются per-pipeline мьютексом.
type Scheduler struct {
	store    Store
	queue    *queue.AdmissionQueue
	tracker  *tracker.Tracker
	registry *executor.Registry
	backoff  Backoff
	events   Events

	gateInterval time.Duration

	// Активные pipelines (pipelineID → run)
	runs map[uuid.UUID]*pipelineRun
	mu   sync.RWMutex

	// Lifecycle
	logger     *slog.Logger
	baseCtx    context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Scheduler.
type Config struct {
	Store    Store
	Queue    *queue.AdmissionQueue
	Tracker  *tracker.Tracker
	Registry *executor.Registry

	// Backoff — политика задержек между попытками.
	Backoff Backoff

	// GateCheckInterval — период проверки backoff-ворот (default: 1s).
	GateCheckInterval time.Duration

	// Events — подписчик на переходы состояний (опционально).
	Events Events

	Logger *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	gateInterval := cfg.GateCheckInterval
	if gateInterval <= 0 {
		gateInterval = defaultGateCheckInterval
	}

	events := cfg.Events
	if events == nil {
		events = noopEvents{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		store:        cfg.Store,
		queue:        cfg.Queue,
		tracker:      cfg.Tracker,
		registry:     cfg.Registry,
		backoff:      cfg.Backoff,
		events:       events,
		gateInterval: gateInterval,
		runs:         make(map[uuid.UUID]*pipelineRun),
		logger:       logger,
	}
}

// Start запускает планировщик и возобновляет незавершённые pipelines
// из хранилища.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.baseCtx = ctx
	s.cancelFunc = cancel

	pipelines, err := s.store.ListUnfinishedPipelines(ctx)
	if err != nil {
		return fmt.Errorf("list unfinished pipelines: %w", err)
	}

	for _, p := range pipelines {
		if err := s.resume(ctx, p); err != nil {
			s.logger.Error("failed to resume pipeline",
				"pipeline_id", p.ID,
				"error", err,
			)
		}
	}

	s.logger.Info("scheduler started", "resumed_pipelines", len(pipelines))
	return nil
}

// Stop останавливает планировщик. Выполняющиеся попытки отменяются;
// их задачи возвращаются в READY и переживают рестарт.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler...")

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()

	s.logger.Info("scheduler stopped")
}

// resume восстанавливает pipeline после рестарта: задачи, застрявшие
// в RUNNING, возвращаются в READY (семантика at-least-once, попытка
// будет повторена). Backoff-ворота персистентны и продолжают действовать.
func (s *Scheduler) resume(ctx context.Context, p *domain.Pipeline) error {
	reset := 0
	for _, t := range p.Tasks {
		if t.State == domain.TaskStateRunning {
			t.MarkReady()
			reset++
		}
	}

	graph, err := engine.Build(p.Tasks)
	if err != nil {
		// Документ не собирается в граф — дальше ехать некуда
		p.MarkFailed()
		if saveErr := s.store.SavePipeline(ctx, p); saveErr != nil {
			s.logger.Error("failed to persist broken pipeline", "pipeline_id", p.ID, "error", saveErr)
		}
		return fmt.Errorf("%w: %v", ErrInvalidPipeline, err)
	}

	if reset > 0 {
		if err := s.store.SavePipeline(ctx, p); err != nil {
			return fmt.Errorf("persist resumed pipeline: %w", err)
		}
		s.logger.Info("reset interrupted tasks", "pipeline_id", p.ID, "count", reset)
	}

	s.launch(p, graph)
	return nil
}

// Submit принимает новый pipeline: валидирует граф, сохраняет документ
// и запускает выполнение. Возвращает ID pipeline.
//
// Если задан IdempotencyKey и pipeline с таким ключом уже существует,
// возвращается его ID без создания нового.
func (s *Scheduler) Submit(ctx context.Context, p *domain.Pipeline) (uuid.UUID, error) {
	if s.baseCtx == nil {
		return uuid.Nil, ErrNotStarted
	}

	if p.IdempotencyKey != "" {
		existing, err := s.store.GetPipelineByIdempotencyKey(ctx, p.IdempotencyKey)
		if err == nil {
			return existing.ID, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return uuid.Nil, fmt.Errorf("check idempotency key: %w", err)
		}
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.Status = domain.PipelineStatusActive

	for _, t := range p.Tasks {
		t.State = domain.TaskStatePending
		t.Class = domain.ParseResourceClass(string(t.Class))
	}

	graph, err := engine.Build(p.Tasks)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidPipeline, err)
	}

	if err := s.store.CreatePipeline(ctx, p); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) && p.IdempotencyKey != "" {
			// Гонка по ключу идемпотентности: отдаём победителя
			existing, getErr := s.store.GetPipelineByIdempotencyKey(ctx, p.IdempotencyKey)
			if getErr == nil {
				return existing.ID, nil
			}
		}
		return uuid.Nil, fmt.Errorf("create pipeline: %w", err)
	}

	s.events.PipelineSubmitted(ctx, p)
	s.launch(p, graph)

	s.logger.Info("pipeline submitted",
		"pipeline_id", p.ID,
		"name", p.Name,
		"tasks", len(p.Tasks),
	)
	return p.ID, nil
}

// launch регистрирует run и запускает его управляющую горутину.
func (s *Scheduler) launch(p *domain.Pipeline, graph *engine.Graph) {
	run := newPipelineRun(p, graph)

	ctx, cancel := context.WithCancel(s.baseCtx)
	run.cancel = cancel

	s.mu.Lock()
	s.runs[p.ID] = run
	telemetry.ActivePipelines.Set(float64(len(s.runs)))
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runLoop(ctx, run)
}

// Pause приостанавливает pipeline: новые задачи не диспетчеризуются,
// уже выполняющиеся доезжают до конца своей попытки.
func (s *Scheduler) Pause(ctx context.Context, id uuid.UUID) error {
	run, err := s.getRun(id)
	if err != nil {
		return err
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	if run.pipeline.IsFinished() {
		return ErrPipelineFinished
	}
	if run.pipeline.Status == domain.PipelineStatusPaused {
		return nil
	}

	run.pipeline.Status = domain.PipelineStatusPaused
	if err := s.store.SavePipeline(ctx, run.pipeline); err != nil {
		run.pipeline.Status = domain.PipelineStatusActive
		return fmt.Errorf("persist pause: %w", err)
	}

	s.logger.Info("pipeline paused", "pipeline_id", id)
	return nil
}

// Resume возобновляет приостановленный pipeline.
func (s *Scheduler) Resume(ctx context.Context, id uuid.UUID) error {
	run, err := s.getRun(id)
	if err != nil {
		return err
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	if run.pipeline.IsFinished() {
		return ErrPipelineFinished
	}
	if run.pipeline.Status != domain.PipelineStatusPaused {
		return ErrNotPaused
	}

	run.pipeline.Status = domain.PipelineStatusActive
	if err := s.store.SavePipeline(ctx, run.pipeline); err != nil {
		run.pipeline.Status = domain.PipelineStatusPaused
		return fmt.Errorf("persist resume: %w", err)
	}

	run.notify()
	s.logger.Info("pipeline resumed", "pipeline_id", id)
	return nil
}

// Cancel кооперативно отменяет pipeline: контексты выполняющихся
// попыток отменяются, невыполненные задачи пропускаются.
func (s *Scheduler) Cancel(ctx context.Context, id uuid.UUID) error {
	run, err := s.getRun(id)
	if err != nil {
		return err
	}

	run.mu.Lock()
	if run.pipeline.IsFinished() {
		run.mu.Unlock()
		return ErrPipelineFinished
	}

	run.pipeline.MarkCancelled()
	for _, t := range run.pipeline.Tasks {
		if t.State == domain.TaskStatePending || t.State == domain.TaskStateReady {
			t.MarkSkipped("pipeline cancelled")
		}
	}
	s.persistLocked(ctx, run)
	run.mu.Unlock()

	// Отменяем контексты выполняющихся попыток
	if run.cancel != nil {
		run.cancel()
	}
	run.notify()

	s.logger.Info("pipeline cancelled", "pipeline_id", id)
	return nil
}

// getRun возвращает зарегистрированный run.
func (s *Scheduler) getRun(id uuid.UUID) (*pipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrPipelineNotFound
	}
	return run, nil
}

// ActivePipelinesCount возвращает количество pipelines в работе.
func (s *Scheduler) ActivePipelinesCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// runLoop — управляющий цикл одного pipeline: продвигает готовые
// задачи, запускает диспетчеризацию, ждёт переходов состояний или
// открытия backoff-ворот.
func (s *Scheduler) runLoop(ctx context.Context, run *pipelineRun) {
	defer s.wg.Done()

	log := telemetry.WithPipelineID(s.logger, run.pipeline.ID.String())

	for {
		nextGate, done := s.dispatch(ctx, run, log)
		if done {
			return
		}

		wait := s.gateInterval
		if nextGate > 0 && nextGate < wait {
			wait = nextGate
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			// Дожидаемся inflight-попыток. При остановке планировщика
			// они вернут задачи в READY; при отмене pipeline — доведут
			// его до терминального статуса.
			s.drain(run)
			run.mu.Lock()
			if run.pipeline.IsFinished() {
				s.finish(run, log)
			}
			run.mu.Unlock()
			return
		case <-run.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// dispatch выполняет один цикл диспетчеризации.
// Возвращает время до ближайших backoff-ворот и признак завершения.
func (s *Scheduler) dispatch(ctx context.Context, run *pipelineRun, log *slog.Logger) (time.Duration, bool) {
	run.mu.Lock()
	defer run.mu.Unlock()

	p := run.pipeline

	if p.IsFinished() {
		if len(run.inflight) > 0 {
			// Дожидаемся уже запущенных попыток
			return 0, false
		}
		s.finish(run, log)
		return 0, true
	}

	// 1. Продвигаем PENDING → READY
	promoted := false
	for _, id := range run.graph.ReadySet(run.stateFn()) {
		p.Task(id).MarkReady()
		promoted = true
	}
	if promoted {
		s.persistLocked(ctx, run)
	}

	// 2. PAUSED: продвижение состояний продолжается, запуск — нет
	if p.Status == domain.PipelineStatusPaused {
		return 0, false
	}

	// 3. Запускаем READY-задачи с открытыми воротами,
	//    в порядке объявления
	now := time.Now()
	var nextGate time.Duration
	for _, id := range run.graph.Order() {
		t := p.Task(id)
		if t.State != domain.TaskStateReady || run.inflight[id] {
			continue
		}
		if t.IsGated(now) {
			if d := t.NotBefore.Sub(now); nextGate == 0 || d < nextGate {
				nextGate = d
			}
			continue
		}

		run.inflight[id] = true
		s.wg.Add(1)
		go s.runTask(ctx, run, id)
	}

	return nextGate, false
}

// finish снимает завершённый pipeline с учёта. Вызывается под run.mu.
func (s *Scheduler) finish(run *pipelineRun, log *slog.Logger) {
	s.mu.Lock()
	delete(s.runs, run.pipeline.ID)
	telemetry.ActivePipelines.Set(float64(len(s.runs)))
	s.mu.Unlock()

	stats := run.pipeline.Stats()
	log.Info("pipeline finished",
		"status", run.pipeline.Status,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
	)

	s.events.PipelineFinished(context.Background(), run.pipeline)
}

// drain дожидается inflight-попыток после отмены контекста pipeline.
func (s *Scheduler) drain(run *pipelineRun) {
	for {
		run.mu.Lock()
		n := len(run.inflight)
		run.mu.Unlock()
		if n == 0 {
			return
		}
		select {
		case <-run.wake:
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// runTask — горутина одной задачи: слот, переход в RUNNING, попытка
// через tracker, применение исхода.
func (s *Scheduler) runTask(ctx context.Context, run *pipelineRun, taskID string) {
	defer s.wg.Done()
	defer run.notify()
	defer func() {
		run.mu.Lock()
		delete(run.inflight, taskID)
		run.mu.Unlock()
	}()

	p := run.pipeline
	log := telemetry.WithTaskID(telemetry.WithPipelineID(s.logger, p.ID.String()), taskID)

	run.mu.Lock()
	class := p.Task(taskID).Class
	run.mu.Unlock()

	// Ожидание слота ничего не держит: задача остаётся READY
	waitStart := time.Now()
	slot, err := s.queue.Acquire(ctx, class)
	if err != nil {
		// Контекст отменён во время ожидания — задача не стартовала
		return
	}
	defer slot.Release()
	telemetry.AdmissionWait.WithLabelValues(string(class)).Observe(time.Since(waitStart).Seconds())

	// READY → RUNNING: состояние могло измениться, пока ждали слот
	// (отмена, пауза, каскад пропусков)
	run.mu.Lock()
	t := p.Task(taskID)
	if p.IsFinished() || p.Status == domain.PipelineStatusPaused || t.State != domain.TaskStateReady {
		run.mu.Unlock()
		return
	}
	t.MarkRunning()
	taskCopy := *t
	s.persistLocked(ctx, run)
	run.mu.Unlock()

	exec, err := s.registry.Get(taskCopy.Type)
	if err != nil {
		// Неизвестный тип — терминальная ошибка конфигурации
		log.Error("no executor for task type", "task_type", taskCopy.Type)
		s.applyFailure(run, taskID, err.Error(), true, log)
		return
	}

	res := s.tracker.Track(ctx, p.ID, &taskCopy, exec)

	// Журнал попыток insert-only; ошибка записи не меняет исход
	if err := s.store.CreateAttempt(context.Background(), &res.Attempt); err != nil {
		log.Error("failed to record attempt", "error", err)
	}
	telemetry.AttemptsResolved.WithLabelValues(string(res.Attempt.Outcome), res.Attempt.Strategy).Inc()

	s.applyOutcome(run, taskID, res, log)
}

// applyOutcome применяет исход попытки к задаче и pipeline.
func (s *Scheduler) applyOutcome(run *pipelineRun, taskID string, res *tracker.Result, log *slog.Logger) {
	run.mu.Lock()
	defer run.mu.Unlock()

	p := run.pipeline
	t := p.Task(taskID)

	switch res.Attempt.Outcome {
	case domain.OutcomeSuccess:
		t.MarkSucceeded(res.Output)
		telemetry.TasksFinished.WithLabelValues(string(t.State)).Inc()

	case domain.OutcomeCancelled:
		if p.Status == domain.PipelineStatusCancelled {
			t.MarkFailed("cancelled")
			telemetry.TasksFinished.WithLabelValues(string(t.State)).Inc()
		} else {
			// Остановка планировщика: попытка прервана, задача вернётся
			// в работу после рестарта без расхода retry-бюджета
			t.MarkReady()
		}

	default: // TIMEOUT, BACKEND_ERROR
		if res.Fatal || !t.CanRetry() {
			t.MarkFailed(res.Attempt.Error)
			telemetry.TasksFinished.WithLabelValues(string(t.State)).Inc()
			s.cascadeSkipLocked(run, taskID)
			log.Warn("task failed terminally",
				"outcome", res.Attempt.Outcome,
				"retries", t.RetryCount,
				"fatal", res.Fatal,
			)
		} else {
			notBefore := time.Now().Add(s.backoff.Delay(t.RetryCount + 1))
			t.ScheduleRetry(res.Attempt.Error, notBefore)
			log.Info("task scheduled for retry",
				"attempt", t.RetryCount,
				"budget", t.RetryBudget,
				"not_before", notBefore,
			)
		}
	}

	p.RecomputeStatus()
	s.persistLocked(context.Background(), run)

	if t.IsFinished() {
		s.events.TaskFinished(context.Background(), p, t)
	}
}

// applyFailure терминально проваливает задачу вне tracker-попытки
// (ошибки конфигурации).
func (s *Scheduler) applyFailure(run *pipelineRun, taskID, errMsg string, cascade bool, log *slog.Logger) {
	run.mu.Lock()
	defer run.mu.Unlock()

	t := run.pipeline.Task(taskID)
	t.MarkFailed(errMsg)
	telemetry.TasksFinished.WithLabelValues(string(t.State)).Inc()
	if cascade {
		s.cascadeSkipLocked(run, taskID)
	}

	run.pipeline.RecomputeStatus()
	s.persistLocked(context.Background(), run)
	s.events.TaskFinished(context.Background(), run.pipeline, t)
}

// cascadeSkipLocked пропускает все транзитивно зависимые задачи упавшей.
// Сиблинги не затрагиваются. Вызывается под run.mu.
func (s *Scheduler) cascadeSkipLocked(run *pipelineRun, failedID string) {
	for _, id := range run.graph.CascadeTargets(failedID) {
		t := run.pipeline.Task(id)
		if t.State == domain.TaskStatePending || t.State == domain.TaskStateReady {
			t.MarkSkipped(fmt.Sprintf("%s: %s", ErrDependencyFailed, failedID))
			telemetry.TasksFinished.WithLabelValues(string(t.State)).Inc()
		}
	}
}

// persistLocked атомарно персистит документ pipeline. Вызывается под
// run.mu — это и есть сериализация записей одного pipeline.
func (s *Scheduler) persistLocked(ctx context.Context, run *pipelineRun) {
	if err := s.store.SavePipeline(ctx, run.pipeline); err != nil {
		s.logger.Error("failed to persist pipeline",
			"pipeline_id", run.pipeline.ID,
			"error", err,
		)
	}
}
