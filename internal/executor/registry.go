package executor

import (
	"fmt"
	"sync"
)

// Registry — реестр executor'ов по типу задачи.
//
// Заполняется при старте процесса и далее только читается; мьютекс
// оставлен для тестов, регистрирующих executor'ы параллельно.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register регистрирует executor для типа задачи.
// Повторная регистрация того же типа замещает предыдущий executor.
func (r *Registry) Register(taskType string, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[taskType] = exec
}

// Get возвращает executor для типа задачи.
func (r *Registry) Get(taskType string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exec, ok := r.executors[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTaskType, taskType)
	}
	return exec, nil
}

// Types возвращает список зарегистрированных типов задач.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	return types
}
