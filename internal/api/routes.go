package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Pipelines
	mux.Handle("GET /api/v1/pipelines", chain(http.HandlerFunc(h.ListPipelines)))
	mux.Handle("POST /api/v1/pipelines", chain(http.HandlerFunc(h.SubmitPipeline)))
	mux.Handle("GET /api/v1/pipelines/{id}", chain(http.HandlerFunc(h.GetPipeline)))
	mux.Handle("POST /api/v1/pipelines/{id}/cancel", chain(http.HandlerFunc(h.CancelPipeline)))
	mux.Handle("POST /api/v1/pipelines/{id}/pause", chain(http.HandlerFunc(h.PausePipeline)))
	mux.Handle("POST /api/v1/pipelines/{id}/resume", chain(http.HandlerFunc(h.ResumePipeline)))
	mux.Handle("GET /api/v1/pipelines/{id}/tasks", chain(http.HandlerFunc(h.ListPipelineTasks)))
	mux.Handle("GET /api/v1/pipelines/{id}/attempts", chain(http.HandlerFunc(h.ListPipelineAttempts)))
	mux.Handle("GET /api/v1/pipelines/{id}/tasks/{task_id}/attempts", chain(http.HandlerFunc(h.ListTaskAttempts)))

	// Schedules
	mux.Handle("GET /api/v1/schedules", chain(http.HandlerFunc(h.ListSchedules)))
	mux.Handle("POST /api/v1/schedules", chain(http.HandlerFunc(h.CreateSchedule)))
	mux.Handle("GET /api/v1/schedules/{id}", chain(http.HandlerFunc(h.GetSchedule)))
	mux.Handle("PUT /api/v1/schedules/{id}", chain(http.HandlerFunc(h.UpdateSchedule)))
	mux.Handle("DELETE /api/v1/schedules/{id}", chain(http.HandlerFunc(h.DeleteSchedule)))
	mux.Handle("PUT /api/v1/schedules/{id}/enabled", chain(http.HandlerFunc(h.SetScheduleEnabled)))
}
