package scheduler

import (
	"context"

	"github.com/shaiso/Reelforge/internal/domain"
)

// Events — уведомления о переходах состояний для внешних подписчиков
// (публикуются в message broker). Все методы best-effort: доставка
// событий не участвует в транзакционной границе pipeline.
type Events interface {
	// PipelineSubmitted — pipeline принят и зарегистрирован.
	PipelineSubmitted(ctx context.Context, p *domain.Pipeline)

	// TaskFinished — задача перешла в терминальное состояние.
	TaskFinished(ctx context.Context, p *domain.Pipeline, t *domain.Task)

	// PipelineFinished — pipeline перешёл в терминальный статус.
	PipelineFinished(ctx context.Context, p *domain.Pipeline)
}

// noopEvents — заглушка для работы без брокера.
type noopEvents struct{}

func (noopEvents) PipelineSubmitted(context.Context, *domain.Pipeline)            {}
func (noopEvents) TaskFinished(context.Context, *domain.Pipeline, *domain.Task)   {}
func (noopEvents) PipelineFinished(context.Context, *domain.Pipeline)             {}
