package scheduler

import "errors"

// Ошибки планировщика.
var (
	// ErrNotStarted — планировщик ещё не запущен.
	ErrNotStarted = errors.New("scheduler not started")

	// ErrPipelineNotFound — pipeline не зарегистрирован у планировщика.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrPipelineFinished — операция невозможна над терминальным pipeline.
	ErrPipelineFinished = errors.New("pipeline already finished")

	// ErrNotPaused — возобновление возможно только из PAUSED.
	ErrNotPaused = errors.New("pipeline is not paused")

	// ErrInvalidPipeline — документ pipeline не прошёл валидацию графа.
	ErrInvalidPipeline = errors.New("invalid pipeline")

	// ErrDependencyFailed — причина пропуска задачи каскадом.
	// Записывается в LastError пропущенных задач.
	ErrDependencyFailed = errors.New("dependency failed")
)
