package mq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Reelforge/internal/domain"
)

// Submitter принимает pipeline на выполнение.
// Реализуется планировщиком.
type Submitter interface {
	Submit(ctx context.Context, p *domain.Pipeline) (uuid.UUID, error)
}

// NewIngestConsumer создаёт consumer очереди pipelines.ingest:
// внешние системы кладут туда pipeline-документы, оркестратор сабмитит
// их как обычные прогоны. Невалидные документы не ретраятся (nack без
// requeue, уходят в DLQ).
func NewIngestConsumer(conn *Connection, submitter Submitter, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}

	handler := func(ctx context.Context, d *Delivery) error {
		spec, err := ParsePayload[domain.PipelineSpec](&d.Message)
		if err != nil {
			logger.Error("invalid ingest document",
				"message_id", d.Message.ID,
				"error", err,
			)
			// Повторная доставка не поможет — в DLQ
			d.Nack(false)
			return nil
		}

		id, err := submitter.Submit(ctx, spec.Pipeline())
		if err != nil {
			return fmt.Errorf("submit ingested pipeline: %w", err)
		}

		logger.Info("pipeline ingested from queue",
			"pipeline_id", id,
			"message_id", d.Message.ID,
		)
		return nil
	}

	return NewConsumer(conn, logger, ConsumerConfig{
		Queue:    string(QueuePipelinesIngest),
		Handler:  handler,
		Prefetch: 10,
	})
}
