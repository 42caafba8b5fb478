package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/Reelforge/internal/domain"
)

// ListPipelines возвращает список pipeline с фильтрацией.
// GET /api/v1/pipelines?status=...&limit=...
func (h *Handler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	var status domain.PipelineStatus
	if s := r.URL.Query().Get("status"); s != "" {
		status = domain.PipelineStatus(s)
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	pipelines, err := h.store.ListPipelines(r.Context(), status, limit)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]PipelineResponse, len(pipelines))
	for i, p := range pipelines {
		result[i] = PipelineFromDomain(p)
	}
	List(w, result, len(result))
}

// SubmitPipeline принимает pipeline-документ на выполнение.
// POST /api/v1/pipelines
//
// Повторный сабмит с тем же idempotency_key возвращает существующий
// pipeline (201 в обоих случаях: создание идемпотентно).
func (h *Handler) SubmitPipeline(w http.ResponseWriter, r *http.Request) {
	var spec domain.PipelineSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	id, err := h.control.Submit(r.Context(), spec.Pipeline())
	if HandleControlError(w, h.logger, err) {
		return
	}

	pipeline, err := h.store.GetPipeline(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	Created(w, PipelineFromDomain(pipeline))
}

// GetPipeline возвращает pipeline по ID.
// GET /api/v1/pipelines/{id}
func (h *Handler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	pipeline, err := h.store.GetPipeline(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	Success(w, PipelineFromDomain(pipeline))
}

// CancelPipeline отменяет pipeline.
// POST /api/v1/pipelines/{id}/cancel
func (h *Handler) CancelPipeline(w http.ResponseWriter, r *http.Request) {
	h.controlAction(w, r, h.control.Cancel)
}

// PausePipeline приостанавливает pipeline.
// POST /api/v1/pipelines/{id}/pause
func (h *Handler) PausePipeline(w http.ResponseWriter, r *http.Request) {
	h.controlAction(w, r, h.control.Pause)
}

// ResumePipeline возобновляет приостановленный pipeline.
// POST /api/v1/pipelines/{id}/resume
func (h *Handler) ResumePipeline(w http.ResponseWriter, r *http.Request) {
	h.controlAction(w, r, h.control.Resume)
}

// controlAction — общий каркас cancel/pause/resume: выполняет операцию
// планировщика и возвращает свежий документ.
func (h *Handler) controlAction(w http.ResponseWriter, r *http.Request, action func(context.Context, uuid.UUID) error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	if err := action(r.Context(), id); HandleControlError(w, h.logger, err) {
		return
	}

	pipeline, err := h.store.GetPipeline(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	Success(w, PipelineFromDomain(pipeline))
}

// ListPipelineTasks возвращает задачи pipeline в порядке объявления.
// GET /api/v1/pipelines/{id}/tasks
func (h *Handler) ListPipelineTasks(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	pipeline, err := h.store.GetPipeline(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	result := make([]TaskResponse, len(pipeline.Tasks))
	for i, t := range pipeline.Tasks {
		result[i] = TaskFromDomain(t)
	}
	List(w, result, len(result))
}

// ListPipelineAttempts возвращает журнал попыток pipeline.
// GET /api/v1/pipelines/{id}/attempts
func (h *Handler) ListPipelineAttempts(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	// Проверяем, что pipeline существует
	if _, err := h.store.GetPipeline(r.Context(), id); HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	attempts, err := h.store.ListPipelineAttempts(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]AttemptResponse, len(attempts))
	for i, a := range attempts {
		result[i] = AttemptFromDomain(a)
	}
	List(w, result, len(result))
}

// ListTaskAttempts возвращает попытки одной задачи в порядке номеров.
// GET /api/v1/pipelines/{id}/tasks/{task_id}/attempts
func (h *Handler) ListTaskAttempts(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}
	taskID := r.PathValue("task_id")

	pipeline, err := h.store.GetPipeline(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}
	if pipeline.Task(taskID) == nil {
		NotFound(w, "task not found")
		return
	}

	attempts, err := h.store.ListAttempts(r.Context(), id, taskID)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]AttemptResponse, len(attempts))
	for i, a := range attempts {
		result[i] = AttemptFromDomain(a)
	}
	List(w, result, len(result))
}
