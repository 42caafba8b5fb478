package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Reelforge/internal/domain"
	"github.com/shaiso/Reelforge/internal/repo"
	"github.com/shaiso/Reelforge/internal/telemetry"
)

// DefaultTickInterval — период проверки расписаний.
const DefaultTickInterval = 1 * time.Second

// Submitter принимает материализованный pipeline на выполнение.
// Реализуется планировщиком; сабмит с уже виденным ключом
// идемпотентности возвращает ID существующего прогона.
type Submitter interface {
	Submit(ctx context.Context, p *domain.Pipeline) (uuid.UUID, error)
}

// Runner запускает pipeline по расписаниям.
type Runner struct {
	schedules    repo.ScheduleStore
	submitter    Submitter
	logger       *slog.Logger
	tickInterval time.Duration
}

// Config — конфигурация Runner.
type Config struct {
	Schedules repo.ScheduleStore
	Submitter Submitter
	Logger    *slog.Logger

	// TickInterval — период проверки (default: 1s).
	TickInterval time.Duration
}

// New создаёт новый Runner.
func New(cfg Config) *Runner {
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		schedules:    cfg.Schedules,
		submitter:    cfg.Submitter,
		logger:       logger,
		tickInterval: tick,
	}
}

// Run крутит тики до отмены контекста.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("schedule runner stopped")
			return
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				r.logger.Error("schedule tick failed", "error", err)
			}
		}
	}
}

// Tick выполняет один проход по расписаниям.
//
// 1. Находит due расписания (enabled=true, next_due_at <= now)
// 2. Для каждого материализует шаблон в pipeline и сабмитит
// 3. Обновляет next_due_at
//
// Ошибки одного расписания не блокируют обработку остальных.
func (r *Runner) Tick(ctx context.Context) error {
	now := time.Now()

	due, err := r.schedules.ListDueSchedules(ctx, now)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	r.logger.Debug("found due schedules", "count", len(due))

	var fired int
	for _, sched := range due {
		if err := r.processSchedule(ctx, sched, now); err != nil {
			r.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
			// Продолжаем обработку остальных
			continue
		}
		fired++
	}

	r.logger.Info("schedule tick completed", "due", len(due), "fired", fired)
	return nil
}

// processSchedule материализует и сабмитит один pipeline.
func (r *Runner) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) error {
	log := telemetry.WithScheduleID(r.logger, sched.ID.String())

	// 1. Разбираем шаблон
	var spec domain.PipelineSpec
	if err := json.Unmarshal(sched.Template, &spec); err != nil {
		// Шаблон битый — отключаем, чтобы не молотить каждый тик
		log.Error("invalid schedule template, disabling", "error", err)
		sched.Enabled = false
		sched.UpdatedAt = now
		if uerr := r.schedules.UpdateSchedule(ctx, sched); uerr != nil {
			return fmt.Errorf("disable schedule: %w", uerr)
		}
		return nil
	}

	// 2. Материализуем pipeline. Ключ идемпотентности привязан к
	// конкретному срабатыванию: "{schedule_id}_{next_due_unix}" —
	// повторный тик или рестарт не создаст дубликат.
	pipeline := spec.Pipeline()
	if pipeline.Name == "" {
		pipeline.Name = sched.Name
	}
	pipeline.IdempotencyKey = fmt.Sprintf("%s_%d", sched.ID, sched.NextDueAt.Unix())

	// 3. Сабмитим
	pipelineID, err := r.submitter.Submit(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("submit pipeline: %w", err)
	}

	log.Info("pipeline created from schedule",
		"pipeline_id", pipelineID,
		"schedule_name", sched.Name,
	)
	telemetry.SchedulesFired.Inc()

	// 4. Вычисляем следующее время срабатывания
	nextDue, err := NextDue(sched, now)
	if err != nil {
		// Расписание некорректное — отключаем вместо бесконечных ретраев
		log.Error("failed to calculate next due, disabling schedule", "error", err)
		sched.Enabled = false
		sched.UpdatedAt = now
		return r.schedules.UpdateSchedule(ctx, sched)
	}

	// 5. Обновляем расписание
	sched.RecordRun(pipelineID, nextDue)
	if err := r.schedules.UpdateSchedule(ctx, sched); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}
