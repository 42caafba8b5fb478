package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Reelforge/internal/domain"
	"github.com/shaiso/Reelforge/internal/schedule"
)

// ListSchedules возвращает все расписания.
// GET /api/v1/schedules
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.store.ListSchedules(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ScheduleResponse, len(schedules))
	for i, s := range schedules {
		result[i] = ScheduleFromDomain(s)
	}
	List(w, result, len(result))
}

// CreateSchedule создаёт новое расписание.
// POST /api/v1/schedules
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}
	if err := validateScheduleSpec(req.CronExpr, req.IntervalSec); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if err := validateTemplate(req.Template); err != nil {
		BadRequest(w, err.Error())
		return
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	now := time.Now()
	sched := &domain.Schedule{
		ID:          uuid.New(),
		Name:        req.Name,
		Template:    req.Template,
		CronExpr:    req.CronExpr,
		IntervalSec: req.IntervalSec,
		Timezone:    timezone,
		Enabled:     req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	nextDue, err := schedule.InitialNextDue(sched)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	sched.NextDueAt = &nextDue

	if err := h.store.CreateSchedule(r.Context(), sched); err != nil {
		HandleRepoError(w, h.logger, err, "")
		return
	}

	Created(w, ScheduleFromDomain(sched))
}

// GetSchedule возвращает расписание по ID.
// GET /api/v1/schedules/{id}
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	sched, err := h.store.GetSchedule(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	Success(w, ScheduleFromDomain(sched))
}

// UpdateSchedule обновляет расписание.
// PUT /api/v1/schedules/{id}
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	var req UpdateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	sched, err := h.store.GetSchedule(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	timingChanged := false
	if req.Name != nil {
		sched.Name = *req.Name
	}
	if req.Template != nil {
		if err := validateTemplate(*req.Template); err != nil {
			BadRequest(w, err.Error())
			return
		}
		sched.Template = *req.Template
	}
	if req.CronExpr != nil {
		sched.CronExpr = *req.CronExpr
		timingChanged = true
	}
	if req.IntervalSec != nil {
		sched.IntervalSec = *req.IntervalSec
		timingChanged = true
	}
	if req.Timezone != nil {
		sched.Timezone = *req.Timezone
		timingChanged = true
	}

	if err := validateScheduleSpec(sched.CronExpr, sched.IntervalSec); err != nil {
		BadRequest(w, err.Error())
		return
	}

	// Смена cron/interval/timezone пересчитывает следующее срабатывание
	if timingChanged {
		nextDue, err := schedule.NextDue(sched, time.Now())
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		sched.NextDueAt = &nextDue
	}
	sched.UpdatedAt = time.Now()

	if err := h.store.UpdateSchedule(r.Context(), sched); err != nil {
		HandleRepoError(w, h.logger, err, "schedule not found")
		return
	}

	Success(w, ScheduleFromDomain(sched))
}

// DeleteSchedule удаляет расписание.
// DELETE /api/v1/schedules/{id}
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	if err := h.store.DeleteSchedule(r.Context(), id); err != nil {
		HandleRepoError(w, h.logger, err, "schedule not found")
		return
	}

	NoContent(w)
}

// SetScheduleEnabled включает/выключает расписание.
// PUT /api/v1/schedules/{id}/enabled
func (h *Handler) SetScheduleEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	var req SetEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	sched, err := h.store.GetSchedule(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	// При включении пересчитываем next_due_at: прошлое время сработало бы
	// немедленно пачкой пропущенных запусков
	if req.Enabled && !sched.Enabled {
		nextDue, err := schedule.NextDue(sched, time.Now())
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		sched.NextDueAt = &nextDue
	}
	sched.Enabled = req.Enabled
	sched.UpdatedAt = time.Now()

	if err := h.store.UpdateSchedule(r.Context(), sched); err != nil {
		HandleRepoError(w, h.logger, err, "schedule not found")
		return
	}

	Success(w, ScheduleFromDomain(sched))
}

// validateScheduleSpec проверяет, что задан ровно корректный способ
// планирования: валидный cron или положительный интервал.
func validateScheduleSpec(cronExpr string, intervalSec int) error {
	if cronExpr != "" {
		return schedule.ValidateCronExpr(cronExpr)
	}
	if intervalSec <= 0 {
		return errNoTiming
	}
	return nil
}

// validateTemplate проверяет, что шаблон — валидный pipeline-документ
// хотя бы с одной задачей.
func validateTemplate(raw json.RawMessage) error {
	var spec domain.PipelineSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return errBadTemplate
	}
	if len(spec.Tasks) == 0 {
		return errEmptyTemplate
	}
	return nil
}
