package domain

// PipelineStatus — статус выполнения pipeline.
//
// Жизненный цикл:
//
//	ACTIVE → COMPLETED
//	       ↘ FAILED
//	       ⇄ PAUSED (приостановка/возобновление)
//	       → CANCELLED (кооперативная отмена)
type PipelineStatus string

const (
	// PipelineStatusActive — pipeline выполняется (или готов к выполнению).
	PipelineStatusActive PipelineStatus = "ACTIVE"

	// PipelineStatusCompleted — все обязательные задачи успешно завершены.
	PipelineStatusCompleted PipelineStatus = "COMPLETED"

	// PipelineStatusFailed — обязательная задача окончательно упала или пропущена.
	PipelineStatusFailed PipelineStatus = "FAILED"

	// PipelineStatusPaused — новые задачи не диспетчеризуются,
	// уже запущенные довыполняются.
	PipelineStatusPaused PipelineStatus = "PAUSED"

	// PipelineStatusCancelled — pipeline отменён пользователем.
	PipelineStatusCancelled PipelineStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный.
func (s PipelineStatus) IsTerminal() bool {
	switch s {
	case PipelineStatusCompleted, PipelineStatusFailed, PipelineStatusCancelled:
		return true
	default:
		return false
	}
}

// TaskState — состояние задачи внутри pipeline.
//
// Жизненный цикл:
//
//	PENDING → READY → RUNNING → SUCCEEDED
//	                          ↘ FAILED (при остатке retry-бюджета → обратно в READY)
//	PENDING/READY → SKIPPED (каскад от упавшей/пропущенной зависимости)
type TaskState string

const (
	// TaskStatePending — зависимости ещё не выполнены.
	TaskStatePending TaskState = "PENDING"

	// TaskStateReady — все зависимости SUCCEEDED, задача ждёт слот.
	TaskStateReady TaskState = "READY"

	// TaskStateRunning — задача выполняется на backend'е.
	TaskStateRunning TaskState = "RUNNING"

	// TaskStateSucceeded — задача успешно завершена, Output заполнен.
	TaskStateSucceeded TaskState = "SUCCEEDED"

	// TaskStateFailed — задача окончательно упала (бюджет retry исчерпан
	// или ошибка фатальная).
	TaskStateFailed TaskState = "FAILED"

	// TaskStateSkipped — задача пропущена: её зависимость упала или была
	// пропущена. Никогда не переходит в RUNNING.
	TaskStateSkipped TaskState = "SKIPPED"
)

// IsTerminal возвращает true, если состояние финальное.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateSucceeded, TaskStateFailed, TaskStateSkipped:
		return true
	default:
		return false
	}
}

// AttemptOutcome — исход одной попытки выполнения задачи.
type AttemptOutcome string

const (
	// OutcomeSuccess — завершение обнаружено одной из стратегий.
	OutcomeSuccess AttemptOutcome = "SUCCESS"

	// OutcomeTimeout — дедлайн попытки истёк, ни одна стратегия не дала
	// определённого ответа. Retryable.
	OutcomeTimeout AttemptOutcome = "TIMEOUT"

	// OutcomeBackendError — backend явно сообщил об ошибке (или не принял
	// задачу). Retryable, если executor не пометил ошибку фатальной.
	OutcomeBackendError AttemptOutcome = "BACKEND_ERROR"

	// OutcomeCancelled — попытка отменена кооперативно. Не ретраится.
	OutcomeCancelled AttemptOutcome = "CANCELLED"
)

// ResourceClass — класс ресурсов для admission queue.
type ResourceClass string

const (
	// ClassHeavy — тяжёлые generation-задачи, занимающие GPU backend'а.
	ClassHeavy ResourceClass = "heavy"

	// ClassLight — лёгкие задачи (проверки качества, метаданные).
	ClassLight ResourceClass = "light"
)

// ParseResourceClass парсит строку в ResourceClass.
// Пустое значение и неизвестные классы считаются heavy — безопасный default
// для backend'а с ограниченной GPU-памятью.
func ParseResourceClass(s string) ResourceClass {
	if s == string(ClassLight) {
		return ClassLight
	}
	return ClassHeavy
}
