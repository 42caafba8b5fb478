package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Reelforge/internal/domain"
)

// PipelineStore — хранилище pipeline-документов.
//
// Pipeline персистится целиком при каждом переходе состояния задачи:
// атомарная замена документа и есть транзакционная граница. Сериализацию
// записей одного pipeline обеспечивает планировщик.
type PipelineStore interface {
	// CreatePipeline сохраняет новый pipeline.
	// ErrAlreadyExists при конфликте ID или idempotency key.
	CreatePipeline(ctx context.Context, p *domain.Pipeline) error

	// SavePipeline атомарно замещает документ существующего pipeline.
	SavePipeline(ctx context.Context, p *domain.Pipeline) error

	// GetPipeline возвращает pipeline по ID.
	GetPipeline(ctx context.Context, id uuid.UUID) (*domain.Pipeline, error)

	// GetPipelineByIdempotencyKey возвращает pipeline по ключу идемпотентности.
	GetPipelineByIdempotencyKey(ctx context.Context, key string) (*domain.Pipeline, error)

	// ListPipelines возвращает pipelines, новые первыми.
	// Пустой status — без фильтра. limit <= 0 — без ограничения.
	ListPipelines(ctx context.Context, status domain.PipelineStatus, limit int) ([]*domain.Pipeline, error)

	// ListUnfinishedPipelines возвращает pipelines в нетерминальных
	// статусах — кандидатов на resume после рестарта.
	ListUnfinishedPipelines(ctx context.Context) ([]*domain.Pipeline, error)
}

// AttemptStore — журнал попыток выполнения. Insert-only.
type AttemptStore interface {
	// CreateAttempt сохраняет запись попытки.
	CreateAttempt(ctx context.Context, a *domain.ExecutionAttempt) error

	// ListAttempts возвращает попытки задачи в порядке номеров.
	ListAttempts(ctx context.Context, pipelineID uuid.UUID, taskID string) ([]*domain.ExecutionAttempt, error)

	// ListPipelineAttempts возвращает все попытки pipeline.
	ListPipelineAttempts(ctx context.Context, pipelineID uuid.UUID) ([]*domain.ExecutionAttempt, error)
}

// ScheduleStore — хранилище расписаний.
type ScheduleStore interface {
	CreateSchedule(ctx context.Context, s *domain.Schedule) error
	UpdateSchedule(ctx context.Context, s *domain.Schedule) error
	DeleteSchedule(ctx context.Context, id uuid.UUID) error
	GetSchedule(ctx context.Context, id uuid.UUID) (*domain.Schedule, error)
	ListSchedules(ctx context.Context) ([]*domain.Schedule, error)

	// ListDueSchedules возвращает включённые расписания с next_due_at <= now.
	ListDueSchedules(ctx context.Context, now time.Time) ([]*domain.Schedule, error)
}

// Store — полное хранилище оркестратора.
type Store interface {
	PipelineStore
	AttemptStore
	ScheduleStore
}
