package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Schedule — расписание регулярного создания pipeline из шаблона.
//
// Типичный сценарий: ночной batch-рендер сцен. Schedule хранит документ
// pipeline (без ID и статусов), который при каждом срабатывании
// материализуется в новый прогон.
type Schedule struct {
	// ID — уникальный идентификатор schedule.
	ID uuid.UUID `json:"id"`

	// Name — имя расписания.
	Name string `json:"name"`

	// Template — шаблон pipeline-документа (tasks с payload'ами).
	// Формат совпадает с документом сабмита через API.
	Template json.RawMessage `json:"template"`

	// CronExpr — cron-выражение ("минуты часы дни месяцы дни_недели").
	// Если задано, IntervalSec игнорируется.
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec — интервал в секундах между запусками.
	// Используется если CronExpr не задан.
	IntervalSec int `json:"interval_sec,omitempty"`

	// Timezone — часовой пояс для вычисления времени. По умолчанию UTC.
	Timezone string `json:"timezone"`

	// Enabled — флаг активности. Выключенные расписания игнорируются.
	Enabled bool `json:"enabled"`

	// NextDueAt — время следующего срабатывания.
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// LastRunAt — время последнего срабатывания.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// LastPipelineID — ID последнего созданного pipeline.
	LastPipelineID *uuid.UUID `json:"last_pipeline_id,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCron возвращает true, если расписание использует cron-выражение.
func (s *Schedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval возвращает true, если расписание использует интервал.
func (s *Schedule) IsInterval() bool {
	return s.CronExpr == "" && s.IntervalSec > 0
}

// IsDue проверяет, пора ли создавать прогон.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled || s.NextDueAt == nil {
		return false
	}
	return !now.Before(*s.NextDueAt)
}

// RecordRun записывает информацию о срабатывании.
func (s *Schedule) RecordRun(pipelineID uuid.UUID, nextDue time.Time) {
	now := time.Now()
	s.LastRunAt = &now
	s.LastPipelineID = &pipelineID
	s.NextDueAt = &nextDue
	s.UpdatedAt = now
}
