package tracker

import "errors"

// Ошибки Execution Tracker'а.
var (
	// ErrInvalidConfiguration — невалидные параметры tracker'а.
	ErrInvalidConfiguration = errors.New("invalid tracker configuration")

	// ErrSubmitFailed — backend не принял задачу.
	ErrSubmitFailed = errors.New("backend rejected submission")

	// ErrTimeout — дедлайн попытки истёк, ни одна стратегия не дала
	// определённого ответа о судьбе job'а.
	ErrTimeout = errors.New("attempt deadline exceeded")

	// ErrBackendFailure — backend явно сообщил об ошибке job'а.
	ErrBackendFailure = errors.New("backend reported job failure")

	// ErrCancelled — попытка прервана кооперативной отменой.
	ErrCancelled = errors.New("attempt cancelled")
)
