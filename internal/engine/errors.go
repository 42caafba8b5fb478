package engine

import (
	"errors"
	"strings"
)

// Структурные ошибки графа задач. Обнаруживаются при сабмите pipeline,
// фатальны для его создания.
var (
	// ErrEmptyGraph — pipeline не содержит задач.
	ErrEmptyGraph = errors.New("pipeline has no tasks")

	// ErrEmptyTaskID — задача без ID.
	ErrEmptyTaskID = errors.New("task has empty ID")

	// ErrDuplicateTaskID — несколько задач с одинаковым ID.
	ErrDuplicateTaskID = errors.New("duplicate task ID")

	// ErrSelfDependency — задача зависит от самой себя.
	ErrSelfDependency = errors.New("task depends on itself")

	// ErrUnknownDependency — задача зависит от необъявленной задачи.
	ErrUnknownDependency = errors.New("task depends on unknown task")

	// ErrCyclicDependency — в графе зависимостей есть цикл.
	ErrCyclicDependency = errors.New("cyclic dependency detected")
)

// CycleError — ошибка цикла с конкретным путём (a → b → c → a).
type CycleError struct {
	// Path — задачи цикла в порядке обхода; последняя замыкает на первую.
	Path []string
}

// Error реализует интерфейс error.
func (e *CycleError) Error() string {
	return "cyclic dependency: " + strings.Join(e.Path, " -> ") + " -> " + e.Path[0]
}

// Unwrap возвращает базовую ошибку для errors.Is.
func (e *CycleError) Unwrap() error {
	return ErrCyclicDependency
}

// DependencyError — ошибка ссылки на зависимость с контекстом.
type DependencyError struct {
	TaskID string // задача, объявившая зависимость
	DepID  string // проблемная зависимость
	Err    error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *DependencyError) Error() string {
	return "task " + e.TaskID + ": " + e.Err.Error() + ": " + e.DepID
}

// Unwrap возвращает базовую ошибку.
func (e *DependencyError) Unwrap() error {
	return e.Err
}
