package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики оркестратора. Экспортируются через /metrics (promhttp).
var (
	// TasksFinished — терминальные переходы задач по итоговому состоянию.
	TasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelforge_tasks_finished_total",
		Help: "Terminal task transitions by final state.",
	}, []string{"state"})

	// AttemptsResolved — попытки по исходу и разрешившей стратегии.
	// strategy пуст для попыток, закрытых без вердикта (timeout, отмена).
	AttemptsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelforge_attempts_resolved_total",
		Help: "Execution attempts by outcome and resolving strategy.",
	}, []string{"outcome", "strategy"})

	// AdmissionWait — время ожидания слота admission queue.
	AdmissionWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reelforge_admission_wait_seconds",
		Help:    "Time tasks spend waiting for an admission slot.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"class"})

	// ActivePipelines — количество pipeline в работе.
	ActivePipelines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reelforge_active_pipelines",
		Help: "Pipelines currently tracked by the scheduler.",
	})

	// SchedulesFired — срабатывания расписаний.
	SchedulesFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelforge_schedules_fired_total",
		Help: "Pipelines materialized from schedules.",
	})
)
