package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Reelforge/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypePipelineSubmitted MessageType = "pipeline.submitted"
	MessageTypePipelineFinished  MessageType = "pipeline.finished"
	MessageTypeTaskFinished      MessageType = "task.finished"
	MessageTypePipelineIngest    MessageType = "pipeline.ingest"
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// PipelineSubmittedPayload — pipeline принят оркестратором.
type PipelineSubmittedPayload struct {
	PipelineID uuid.UUID `json:"pipeline_id"`
	Name       string    `json:"name,omitempty"`
	Tasks      int       `json:"tasks"`
}

// TaskFinishedPayload — задача в терминальном состоянии.
type TaskFinishedPayload struct {
	PipelineID uuid.UUID        `json:"pipeline_id"`
	TaskID     string           `json:"task_id"`
	State      domain.TaskState `json:"state"`
	Error      string           `json:"error,omitempty"`
	Retries    int              `json:"retries"`
}

// PipelineFinishedPayload — pipeline финализирован.
type PipelineFinishedPayload struct {
	PipelineID uuid.UUID             `json:"pipeline_id"`
	Name       string                `json:"name,omitempty"`
	Status     domain.PipelineStatus `json:"status"`
	Stats      domain.PipelineStats  `json:"stats"`
}

// Publisher публикует события жизненного цикла в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

func (p *Publisher) publishEvent(ctx context.Context, exchange Exchange, key RoutingKey, msgType MessageType, payload any) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	return p.Publish(ctx, exchange, key, msg)
}

// Events-адаптер для планировщика: доставка best-effort, ошибки
// публикации только логируются.

// PipelineSubmitted публикует событие приёма pipeline.
func (p *Publisher) PipelineSubmitted(ctx context.Context, pl *domain.Pipeline) {
	err := p.publishEvent(ctx, ExchangePipelines, RoutingKeySubmitted, MessageTypePipelineSubmitted,
		PipelineSubmittedPayload{
			PipelineID: pl.ID,
			Name:       pl.Name,
			Tasks:      len(pl.Tasks),
		})
	if err != nil {
		p.logger.Warn("failed to publish pipeline.submitted", "pipeline_id", pl.ID, "error", err)
	}
}

// TaskFinished публикует терминальный переход задачи.
func (p *Publisher) TaskFinished(ctx context.Context, pl *domain.Pipeline, t *domain.Task) {
	err := p.publishEvent(ctx, ExchangeTasks, RoutingKeyFinished, MessageTypeTaskFinished,
		TaskFinishedPayload{
			PipelineID: pl.ID,
			TaskID:     t.ID,
			State:      t.State,
			Error:      t.LastError,
			Retries:    t.RetryCount,
		})
	if err != nil {
		p.logger.Warn("failed to publish task.finished",
			"pipeline_id", pl.ID, "task_id", t.ID, "error", err)
	}
}

// PipelineFinished публикует финализацию pipeline.
func (p *Publisher) PipelineFinished(ctx context.Context, pl *domain.Pipeline) {
	err := p.publishEvent(ctx, ExchangePipelines, RoutingKeyFinished, MessageTypePipelineFinished,
		PipelineFinishedPayload{
			PipelineID: pl.ID,
			Name:       pl.Name,
			Status:     pl.Status,
			Stats:      pl.Stats(),
		})
	if err != nil {
		p.logger.Warn("failed to publish pipeline.finished", "pipeline_id", pl.ID, "error", err)
	}
}
