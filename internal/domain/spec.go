package domain

import (
	"encoding/json"
)

// PipelineSpec — входной документ pipeline (API, CLI, очередь ingest,
// шаблоны расписаний). Материализуется в Pipeline с дефолтами.
type PipelineSpec struct {
	// Name — имя прогона.
	Name string `json:"name,omitempty"`

	// IdempotencyKey — ключ идемпотентности сабмита.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// Tasks — задачи в порядке объявления.
	Tasks []TaskSpec `json:"tasks"`
}

// TaskSpec — описание одной задачи в документе.
type TaskSpec struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	DependsOn []string `json:"depends_on,omitempty"`

	// Class — класс ресурсов ("heavy"/"light", default heavy).
	Class string `json:"class,omitempty"`

	// Required — обязательность для успеха pipeline.
	// Отсутствие поля означает true: необязательность задачи — явное
	// решение автора документа.
	Required *bool `json:"required,omitempty"`

	// RetryBudget — максимум повторных попыток. Отсутствие поля
	// означает DefaultRetryBudget; явный 0 запрещает повторы.
	RetryBudget *int `json:"retry_budget,omitempty"`

	// Payload — входные данные executor'а.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Pipeline материализует документ в Pipeline.
// Валидацию графа выполняет планировщик при сабмите.
func (s *PipelineSpec) Pipeline() *Pipeline {
	p := &Pipeline{
		Name:           s.Name,
		Status:         PipelineStatusActive,
		IdempotencyKey: s.IdempotencyKey,
		Tasks:          make([]*Task, 0, len(s.Tasks)),
	}

	for _, ts := range s.Tasks {
		required := true
		if ts.Required != nil {
			required = *ts.Required
		}

		budget := DefaultRetryBudget
		if ts.RetryBudget != nil {
			budget = *ts.RetryBudget
		}

		p.Tasks = append(p.Tasks, &Task{
			ID:          ts.ID,
			Type:        ts.Type,
			DependsOn:   ts.DependsOn,
			State:       TaskStatePending,
			Class:       ParseResourceClass(ts.Class),
			Required:    required,
			RetryBudget: budget,
			Payload:     ts.Payload,
		})
	}
	return p
}
