package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Reelforge/internal/domain"
)

// Pipeline DTOs

// PipelineResponse — ответ с pipeline.
type PipelineResponse struct {
	ID             uuid.UUID            `json:"id"`
	Name           string               `json:"name,omitempty"`
	Status         string               `json:"status"`
	Stats          domain.PipelineStats `json:"stats"`
	IdempotencyKey string               `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	FinishedAt     *time.Time           `json:"finished_at,omitempty"`
}

// PipelineFromDomain конвертирует domain.Pipeline в PipelineResponse.
func PipelineFromDomain(p *domain.Pipeline) PipelineResponse {
	return PipelineResponse{
		ID:             p.ID,
		Name:           p.Name,
		Status:         string(p.Status),
		Stats:          p.Stats(),
		IdempotencyKey: p.IdempotencyKey,
		CreatedAt:      p.CreatedAt,
		FinishedAt:     p.FinishedAt,
	}
}

// Task DTOs

// TaskResponse — ответ с задачей pipeline.
type TaskResponse struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	DependsOn   []string        `json:"depends_on,omitempty"`
	State       string          `json:"state"`
	Class       string          `json:"class"`
	Required    bool            `json:"required"`
	Output      json.RawMessage `json:"output,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	RetryCount  int             `json:"retry_count"`
	RetryBudget int             `json:"retry_budget"`
	NotBefore   *time.Time      `json:"not_before,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

// TaskFromDomain конвертирует domain.Task в TaskResponse.
func TaskFromDomain(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Type:        t.Type,
		DependsOn:   t.DependsOn,
		State:       string(t.State),
		Class:       string(t.Class),
		Required:    t.Required,
		Output:      t.Output,
		LastError:   t.LastError,
		RetryCount:  t.RetryCount,
		RetryBudget: t.RetryBudget,
		NotBefore:   t.NotBefore,
		StartedAt:   t.StartedAt,
		FinishedAt:  t.FinishedAt,
	}
}

// Attempt DTOs

// AttemptResponse — ответ с записью попытки выполнения.
type AttemptResponse struct {
	ID         uuid.UUID              `json:"id"`
	PipelineID uuid.UUID              `json:"pipeline_id"`
	TaskID     string                 `json:"task_id"`
	Attempt    int                    `json:"attempt"`
	Outcome    string                 `json:"outcome"`
	Strategy   string                 `json:"strategy,omitempty"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Telemetry  domain.TelemetrySample `json:"telemetry"`
}

// AttemptFromDomain конвертирует domain.ExecutionAttempt в AttemptResponse.
func AttemptFromDomain(a *domain.ExecutionAttempt) AttemptResponse {
	return AttemptResponse{
		ID:         a.ID,
		PipelineID: a.PipelineID,
		TaskID:     a.TaskID,
		Attempt:    a.Attempt,
		Outcome:    string(a.Outcome),
		Strategy:   a.Strategy,
		Error:      a.Error,
		StartedAt:  a.StartedAt,
		FinishedAt: a.FinishedAt,
		Telemetry:  a.Telemetry,
	}
}

// Schedule DTOs

// CreateScheduleRequest — запрос на создание расписания.
type CreateScheduleRequest struct {
	Name        string          `json:"name"`
	Template    json.RawMessage `json:"template"`
	CronExpr    string          `json:"cron_expr,omitempty"`
	IntervalSec int             `json:"interval_sec,omitempty"`
	Timezone    string          `json:"timezone,omitempty"`
	Enabled     bool            `json:"enabled"`
}

// UpdateScheduleRequest — запрос на обновление расписания.
type UpdateScheduleRequest struct {
	Name        *string          `json:"name,omitempty"`
	Template    *json.RawMessage `json:"template,omitempty"`
	CronExpr    *string          `json:"cron_expr,omitempty"`
	IntervalSec *int             `json:"interval_sec,omitempty"`
	Timezone    *string          `json:"timezone,omitempty"`
}

// SetEnabledRequest — запрос на включение/выключение расписания.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// ScheduleResponse — ответ с расписанием.
type ScheduleResponse struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Template       json.RawMessage `json:"template"`
	CronExpr       string          `json:"cron_expr,omitempty"`
	IntervalSec    int             `json:"interval_sec,omitempty"`
	Timezone       string          `json:"timezone"`
	Enabled        bool            `json:"enabled"`
	NextDueAt      *time.Time      `json:"next_due_at,omitempty"`
	LastRunAt      *time.Time      `json:"last_run_at,omitempty"`
	LastPipelineID *uuid.UUID      `json:"last_pipeline_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
func ScheduleFromDomain(s *domain.Schedule) ScheduleResponse {
	if s == nil {
		return ScheduleResponse{}
	}
	return ScheduleResponse{
		ID:             s.ID,
		Name:           s.Name,
		Template:       s.Template,
		CronExpr:       s.CronExpr,
		IntervalSec:    s.IntervalSec,
		Timezone:       s.Timezone,
		Enabled:        s.Enabled,
		NextDueAt:      s.NextDueAt,
		LastRunAt:      s.LastRunAt,
		LastPipelineID: s.LastPipelineID,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}
