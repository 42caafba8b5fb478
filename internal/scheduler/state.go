package scheduler

import (
	"context"
	"sync"

	"github.com/shaiso/Reelforge/internal/domain"
	"github.com/shaiso/Reelforge/internal/engine"
)

// pipelineRun — рантайм-состояние одного pipeline в работе.
//
// mu сериализует ВСЕ мутации и записи документа pipeline: переходы
// состояний задач из параллельных task-горутин применяются и персистятся
// строго по одному.
type pipelineRun struct {
	mu       sync.Mutex
	pipeline *domain.Pipeline
	graph    *engine.Graph

	// inflight — задачи, на которые уже запущена task-горутина
	// (включая ожидание слота).
	inflight map[string]bool

	// wake будит цикл диспетчеризации после перехода состояния.
	wake chan struct{}

	// cancel отменяет контекст задач этого pipeline.
	cancel context.CancelFunc
}

func newPipelineRun(p *domain.Pipeline, g *engine.Graph) *pipelineRun {
	return &pipelineRun{
		pipeline: p,
		graph:    g,
		inflight: make(map[string]bool),
		wake:     make(chan struct{}, 1),
	}
}

// notify будит цикл диспетчеризации (не блокируется).
func (r *pipelineRun) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// stateFn возвращает снимок состояний для engine.ReadySet.
// Вызывается под r.mu.
func (r *pipelineRun) stateFn() engine.StateFn {
	return func(id string) domain.TaskState {
		if t := r.pipeline.Task(id); t != nil {
			return t.State
		}
		return domain.TaskStatePending
	}
}
