package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionAttempt — одна попытка выполнения задачи на backend'е.
//
// Attempt принадлежит Execution Tracker'у и после завершения не мутирует
// (write-once): в Task обратно сворачивается только исход.
type ExecutionAttempt struct {
	// ID — уникальный идентификатор попытки.
	ID uuid.UUID `json:"id"`

	// PipelineID — ссылка на pipeline.
	PipelineID uuid.UUID `json:"pipeline_id"`

	// TaskID — ID задачи внутри pipeline.
	TaskID string `json:"task_id"`

	// Attempt — номер попытки (начиная с 1).
	Attempt int `json:"attempt"`

	// Outcome — исход попытки.
	Outcome AttemptOutcome `json:"outcome"`

	// Strategy — имя стратегии, разрешившей попытку
	// (пусто, если попытка не была разрешена стратегией: timeout, отмена,
	// ошибка сабмита).
	Strategy string `json:"strategy,omitempty"`

	// Error — описание ошибки при неуспешном исходе.
	Error string `json:"error,omitempty"`

	// StartedAt — время сабмита задачи на backend.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время финализации попытки.
	FinishedAt time.Time `json:"finished_at"`

	// Telemetry — телеметрия попытки. Снимается при любом исходе.
	Telemetry TelemetrySample `json:"telemetry"`
}

// Duration возвращает продолжительность попытки.
func (a *ExecutionAttempt) Duration() time.Duration {
	return a.FinishedAt.Sub(a.StartedAt)
}

// TelemetrySample — телеметрия одной попытки.
//
// VRAM-показатели опциональны: backend может не отдавать /system_stats.
type TelemetrySample struct {
	// DurationMs — длительность попытки в миллисекундах.
	DurationMs int64 `json:"duration_ms"`

	// PollAttempts — сколько циклов опроса сделал tracker.
	PollAttempts int `json:"poll_attempts"`

	// VRAMFreeBefore — свободная память устройства перед сабмитом, байт.
	VRAMFreeBefore int64 `json:"vram_free_before,omitempty"`

	// VRAMFreeAfter — свободная память устройства после финализации, байт.
	VRAMFreeAfter int64 `json:"vram_free_after,omitempty"`

	// Notes — свободные диагностические заметки.
	Notes string `json:"notes,omitempty"`
}
