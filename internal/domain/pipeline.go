package domain

import (
	"time"

	"github.com/google/uuid"
)

// Pipeline — один прогон многошаговой генерации.
//
// Pipeline создаётся когда:
//   - Пользователь сабмитит документ через API/CLI
//   - Schedule создаёт прогон по расписанию
//
// Tasks хранятся в порядке объявления: этот порядок определяет
// детерминированную очерёдность диспетчеризации при равной готовности.
type Pipeline struct {
	// ID — уникальный идентификатор pipeline.
	ID uuid.UUID `json:"id"`

	// Name — человекочитаемое имя (например, "scene-001-night-render").
	Name string `json:"name,omitempty"`

	// Status — текущий статус pipeline.
	Status PipelineStatus `json:"status"`

	// Tasks — задачи в порядке объявления. ID задач уникальны.
	Tasks []*Task `json:"tasks"`

	// IdempotencyKey — ключ идемпотентности (для scheduled-прогонов:
	// "{schedule_id}_{due_at}").
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// CreatedAt — время создания pipeline.
	CreatedAt time.Time `json:"created_at"`

	// FinishedAt — время перехода в терминальный статус.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Task возвращает задачу по ID (nil, если не найдена).
func (p *Pipeline) Task(id string) *Task {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// IsFinished возвращает true, если pipeline в терминальном статусе.
func (p *Pipeline) IsFinished() bool {
	return p.Status.IsTerminal()
}

// MarkCompleted переводит pipeline в COMPLETED.
func (p *Pipeline) MarkCompleted() {
	now := time.Now()
	p.Status = PipelineStatusCompleted
	p.FinishedAt = &now
}

// MarkFailed переводит pipeline в FAILED.
func (p *Pipeline) MarkFailed() {
	now := time.Now()
	p.Status = PipelineStatusFailed
	p.FinishedAt = &now
}

// MarkCancelled переводит pipeline в CANCELLED.
func (p *Pipeline) MarkCancelled() {
	now := time.Now()
	p.Status = PipelineStatusCancelled
	p.FinishedAt = &now
}

// RecomputeStatus пересчитывает терминальный статус по состояниям задач.
//
// Правила:
//   - FAILED: хотя бы одна обязательная задача терминально FAILED
//     или SKIPPED.
//   - COMPLETED: все задачи терминальны, обязательные — SUCCEEDED.
//   - Иначе статус не меняется (остаётся ACTIVE/PAUSED).
//
// Вызывается планировщиком после каждого перехода состояния задачи.
// Не трогает уже терминальные статусы (в т.ч. CANCELLED).
func (p *Pipeline) RecomputeStatus() {
	if p.Status.IsTerminal() {
		return
	}

	allTerminal := true
	requiredBroken := false

	for _, t := range p.Tasks {
		if !t.State.IsTerminal() {
			allTerminal = false
		}
		if t.Required && (t.State == TaskStateFailed || t.State == TaskStateSkipped) {
			requiredBroken = true
		}
	}

	// Даже если обязательная задача уже подвела, сиблинги доезжают до
	// конца: финализируем только когда все задачи терминальны.
	if !allTerminal {
		return
	}

	if requiredBroken {
		p.MarkFailed()
	} else {
		p.MarkCompleted()
	}
}

// Stats возвращает агрегированную статистику по состояниям задач.
func (p *Pipeline) Stats() PipelineStats {
	var st PipelineStats
	st.Total = len(p.Tasks)
	for _, t := range p.Tasks {
		switch t.State {
		case TaskStatePending:
			st.Pending++
		case TaskStateReady:
			st.Ready++
		case TaskStateRunning:
			st.Running++
		case TaskStateSucceeded:
			st.Succeeded++
		case TaskStateFailed:
			st.Failed++
		case TaskStateSkipped:
			st.Skipped++
		}
	}
	return st
}

// PipelineStats — срез состояний задач pipeline.
type PipelineStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Ready     int `json:"ready"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}
