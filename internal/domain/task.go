package domain

import (
	"encoding/json"
	"time"
)

// DefaultRetryBudget — retry-бюджет задачи, если документ его не задаёт.
// Backend ненадёжен: одиночная ошибка — ещё не вердикт.
const DefaultRetryBudget = 2

// Task — отдельный шаг generation-pipeline (keyframe, video, upscale, ...).
//
// Task создаётся вместе с pipeline и живёт в его документе.
// Ядро никогда не заглядывает в Payload/Output — их формат знает только
// executor, зарегистрированный для данного Type.
type Task struct {
	// ID — идентификатор задачи, уникальный в рамках pipeline.
	ID string `json:"id"`

	// Type — тип задачи. Opaque-тег, по которому Registry находит executor.
	Type string `json:"type"`

	// DependsOn — список ID задач, от которых зависит эта задача.
	// Задача становится READY только когда все зависимости SUCCEEDED.
	DependsOn []string `json:"depends_on,omitempty"`

	// State — текущее состояние задачи.
	State TaskState `json:"state"`

	// Class — класс ресурсов для admission queue.
	Class ResourceClass `json:"class,omitempty"`

	// Required — обязательность задачи для успеха pipeline.
	// Пропуск необязательной задачи не мешает pipeline стать COMPLETED.
	Required bool `json:"required"`

	// Payload — входные данные задачи. Формат знает только executor.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Output — результат выполнения. Присутствует только в SUCCEEDED.
	Output json.RawMessage `json:"output,omitempty"`

	// LastError — описание последней ошибки (для диагностики).
	LastError string `json:"last_error,omitempty"`

	// RetryCount — количество уже сделанных повторных попыток.
	RetryCount int `json:"retry_count"`

	// RetryBudget — максимум повторных попыток до терминального FAILED.
	RetryBudget int `json:"retry_budget"`

	// NotBefore — backoff-ворота: до этого времени задача не
	// диспетчеризуется, даже будучи READY. Персистится, чтобы backoff
	// переживал рестарт.
	NotBefore *time.Time `json:"not_before,omitempty"`

	// StartedAt — время последнего перехода в RUNNING.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время перехода в терминальное состояние.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// IsFinished возвращает true, если задача в терминальном состоянии.
func (t *Task) IsFinished() bool {
	return t.State.IsTerminal()
}

// IsGated возвращает true, если backoff-ворота ещё не открылись.
func (t *Task) IsGated(now time.Time) bool {
	return t.NotBefore != nil && now.Before(*t.NotBefore)
}

// MarkReady переводит задачу в READY.
func (t *Task) MarkReady() {
	t.State = TaskStateReady
}

// MarkRunning переводит задачу в RUNNING.
func (t *Task) MarkRunning() {
	now := time.Now()
	t.State = TaskStateRunning
	t.StartedAt = &now
	t.NotBefore = nil
}

// MarkSucceeded переводит задачу в SUCCEEDED с результатом.
func (t *Task) MarkSucceeded(output json.RawMessage) {
	now := time.Now()
	t.State = TaskStateSucceeded
	t.FinishedAt = &now
	t.Output = output
	t.LastError = ""
}

// MarkFailed переводит задачу в терминальный FAILED.
func (t *Task) MarkFailed(errMsg string) {
	now := time.Now()
	t.State = TaskStateFailed
	t.FinishedAt = &now
	t.LastError = errMsg
}

// MarkSkipped переводит задачу в SKIPPED с указанием причины
// (какая зависимость подвела).
func (t *Task) MarkSkipped(reason string) {
	now := time.Now()
	t.State = TaskStateSkipped
	t.FinishedAt = &now
	t.LastError = reason
}

// CanRetry проверяет, остался ли retry-бюджет.
func (t *Task) CanRetry() bool {
	return t.RetryCount < t.RetryBudget
}

// ScheduleRetry возвращает задачу в READY для повторной попытки:
// инкрементирует RetryCount и выставляет backoff-ворота.
func (t *Task) ScheduleRetry(errMsg string, notBefore time.Time) {
	t.RetryCount++
	t.State = TaskStateReady
	t.LastError = errMsg
	t.NotBefore = &notBefore
	t.StartedAt = nil
	t.FinishedAt = nil
}
