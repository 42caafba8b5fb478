package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Reelforge/internal/domain"
	"github.com/shaiso/Reelforge/internal/executor"
)

// StatsProvider — источник телеметрии ресурсов backend'а.
// Ошибка означает "телеметрия недоступна" и никогда не влияет на исход
// попытки.
type StatsProvider interface {
	VRAMFree(ctx context.Context) (int64, error)
}

// Interrupter — best-effort прерывание текущего job'а на backend'е.
type Interrupter interface {
	Interrupt(ctx context.Context) error
}

// Result — итог одной отслеженной попытки.
type Result struct {
	// Attempt — запись попытки для журнала (write-once).
	Attempt domain.ExecutionAttempt

	// Output — результат задачи. Заполнен только при OutcomeSuccess.
	Output []byte

	// Fatal — ошибка попытки не ретраится. Осмыслен только при
	// неуспешных исходах.
	Fatal bool
}

// Tracker — Execution Tracker: доводит одну попытку задачи от сабмита
// до определённого исхода.
//
// Жизненный цикл попытки: Submitted → Polling → Finalizing. В фазе
// Polling цепочка стратегий опрашивается каждый PollInterval; первая
// стратегия, давшая определённый ответ, финализирует попытку. Успех
// объявляется не сразу: обнаруженный job держится в GraceWindow, чтобы
// его выходы успели осесть до запуска зависимых задач. Если до дедлайна
// ответа нет — после той же паузы делается финальный проход, и лишь
// затем попытка закрывается как TIMEOUT.
//
// Tracker не принимает решений о retry: он только доводит попытку до
// исхода и отдаёт его планировщику.
type Tracker struct {
	cfg        Config
	strategies func(executor.Executor) []Strategy
	stats      StatsProvider
	interrupt  Interrupter
	logger     *slog.Logger
}

// Option — опциональная зависимость Tracker'а.
type Option func(*Tracker)

// WithStatsProvider подключает источник VRAM-телеметрии.
func WithStatsProvider(p StatsProvider) Option {
	return func(t *Tracker) { t.stats = p }
}

// WithInterrupter подключает best-effort прерывание job'ов при отмене.
func WithInterrupter(i Interrupter) Option {
	return func(t *Tracker) { t.interrupt = i }
}

// WithStrategies замещает стандартную цепочку стратегий.
func WithStrategies(f func(executor.Executor) []Strategy) Option {
	return func(t *Tracker) { t.strategies = f }
}

// New создаёт Tracker.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tracker{
		cfg:        cfg,
		strategies: DefaultStrategies,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Track выполняет одну попытку задачи: сабмит, опрос до определённого
// исхода, финализация. Никогда не возвращает ошибку — любой сбой
// сворачивается в Outcome записи попытки.
func (t *Tracker) Track(ctx context.Context, pipelineID uuid.UUID, task *domain.Task, exec executor.Executor) *Result {
	attempt := domain.ExecutionAttempt{
		ID:         uuid.New(),
		PipelineID: pipelineID,
		TaskID:     task.ID,
		Attempt:    task.RetryCount + 1,
		StartedAt:  time.Now(),
	}

	log := t.logger.With(
		"pipeline_id", pipelineID,
		"task_id", task.ID,
		"attempt", attempt.Attempt,
	)

	if free, err := t.sampleVRAM(ctx); err == nil {
		attempt.Telemetry.VRAMFreeBefore = free
	}

	// 1. Submitted: сабмит задачи на backend
	handle, err := exec.Submit(ctx, task)
	if err != nil {
		if ctx.Err() != nil {
			return t.finalize(&attempt, domain.OutcomeCancelled, nil, ErrCancelled.Error(), false, log)
		}
		msg := fmt.Errorf("%w: %v", ErrSubmitFailed, err).Error()
		return t.finalize(&attempt, domain.OutcomeBackendError, nil, msg, executor.IsFatal(err), log)
	}
	log.Info("job submitted", "job_id", handle.ID)

	// 2. Polling: цепочка стратегий каждый PollInterval
	strategies := t.strategies(exec)

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(t.cfg.AttemptDeadline)
	defer deadline.Stop()

	polls := 0
	for {
		select {
		case <-ctx.Done():
			attempt.Telemetry.PollAttempts = polls
			t.interruptJob(log)
			return t.finalize(&attempt, domain.OutcomeCancelled, nil, ErrCancelled.Error(), false, log)

		case <-deadline.C:
			// 3. Grace window: последний шанс fallback-стратегиям
			// увидеть дописанные артефакты.
			if t.cfg.GraceWindow > 0 {
				select {
				case <-time.After(t.cfg.GraceWindow):
				case <-ctx.Done():
					attempt.Telemetry.PollAttempts = polls
					t.interruptJob(log)
					return t.finalize(&attempt, domain.OutcomeCancelled, nil, ErrCancelled.Error(), false, log)
				}
			}
			polls++
			attempt.Telemetry.PollAttempts = polls
			if res, name, ok := t.check(ctx, strategies, handle, log); ok {
				return t.resolve(ctx, &attempt, res, name, log)
			}
			return t.finalize(&attempt, domain.OutcomeTimeout, nil, ErrTimeout.Error(), false, log)

		case <-ticker.C:
			polls++
			if res, name, ok := t.check(ctx, strategies, handle, log); ok {
				attempt.Telemetry.PollAttempts = polls
				return t.resolve(ctx, &attempt, res, name, log)
			}
			if t.cfg.MaxPollAttempts > 0 && polls >= t.cfg.MaxPollAttempts {
				attempt.Telemetry.PollAttempts = polls
				return t.finalize(&attempt, domain.OutcomeTimeout, nil, ErrTimeout.Error(), false, log)
			}
		}
	}
}

// check прогоняет цепочку стратегий; первая, давшая определённый ответ,
// выигрывает. Ошибка стратегии — не вердикт: логируем и идём дальше.
func (t *Tracker) check(ctx context.Context, strategies []Strategy, handle executor.JobHandle, log *slog.Logger) (Resolution, string, bool) {
	for _, s := range strategies {
		res, err := s.Check(ctx, handle)
		if err != nil {
			log.Debug("strategy check failed", "strategy", s.Name(), "error", err)
			continue
		}
		if res.Resolved {
			return res, s.Name(), true
		}
	}
	return Resolution{}, "", false
}

// resolve превращает вердикт стратегии в финализированную попытку.
func (t *Tracker) resolve(ctx context.Context, attempt *domain.ExecutionAttempt, res Resolution, strategy string, log *slog.Logger) *Result {
	attempt.Strategy = strategy

	if res.Success {
		// Выходы могли ещё дописываться в момент обнаружения: держим
		// успех в GraceWindow, прежде чем открыть зависимые задачи.
		t.settle(ctx)
		return t.finalize(attempt, domain.OutcomeSuccess, res.Output, "", false, log)
	}

	msg := fmt.Errorf("%w: %s", ErrBackendFailure, res.Reason).Error()
	return t.finalize(attempt, domain.OutcomeBackendError, nil, msg, res.Fatal, log)
}

// finalize закрывает попытку: исход, телеметрия, лог.
func (t *Tracker) finalize(attempt *domain.ExecutionAttempt, outcome domain.AttemptOutcome, output []byte, errMsg string, fatal bool, log *slog.Logger) *Result {
	attempt.Outcome = outcome
	attempt.Error = errMsg
	attempt.FinishedAt = time.Now()
	attempt.Telemetry.DurationMs = attempt.Duration().Milliseconds()

	if free, err := t.sampleVRAM(context.Background()); err == nil {
		attempt.Telemetry.VRAMFreeAfter = free
	}

	if outcome == domain.OutcomeSuccess {
		log.Info("attempt succeeded",
			"strategy", attempt.Strategy,
			"duration_ms", attempt.Telemetry.DurationMs,
			"polls", attempt.Telemetry.PollAttempts,
		)
		return &Result{Attempt: *attempt, Output: output}
	}

	log.Warn("attempt finished without success",
		"outcome", outcome,
		"error", errMsg,
		"fatal", fatal,
		"duration_ms", attempt.Telemetry.DurationMs,
		"polls", attempt.Telemetry.PollAttempts,
	)
	return &Result{Attempt: *attempt, Fatal: fatal}
}

// settle пережидает GraceWindow перед объявлением успеха: медленно
// сбрасываемые выходы успевают осесть на диске.
func (t *Tracker) settle(ctx context.Context) {
	if t.cfg.GraceWindow <= 0 {
		return
	}
	timer := time.NewTimer(t.cfg.GraceWindow)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// interruptJob best-effort прерывает job при отмене попытки.
func (t *Tracker) interruptJob(log *slog.Logger) {
	if t.interrupt == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := t.interrupt.Interrupt(ctx); err != nil {
		log.Debug("backend interrupt failed", "error", err)
	}
}

func (t *Tracker) sampleVRAM(ctx context.Context) (int64, error) {
	if t.stats == nil {
		return 0, fmt.Errorf("no stats provider")
	}
	return t.stats.VRAMFree(ctx)
}
