package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangePipelines Exchange = "reelforge.pipelines"
	ExchangeTasks     Exchange = "reelforge.tasks"
	ExchangeDLQ       Exchange = "reelforge.dlq"
)

// Queues — имена очередей.
const (
	// QueuePipelinesIngest — внешние сабмиты pipeline-документов.
	// Потребитель: оркестратор.
	QueuePipelinesIngest Queue = "pipelines.ingest"

	// QueuePipelinesFinished — события финализации pipeline.
	// Потребители: внешние интеграции.
	QueuePipelinesFinished Queue = "pipelines.finished"

	// QueueTasksFinished — терминальные переходы задач.
	QueueTasksFinished Queue = "tasks.finished"

	// QueueDLQIngest — неразбираемые/необработанные сабмиты.
	QueueDLQIngest Queue = "dlq.ingest"
)

// Routing keys.
const (
	RoutingKeyIngest    RoutingKey = "ingest"
	RoutingKeySubmitted RoutingKey = "submitted"
	RoutingKeyFinished  RoutingKey = "finished"
	RoutingKeyDLQIngest RoutingKey = "ingest"
)

// SetupTopology объявляет обменники, очереди и привязки.
// Идемпотентно: повторный вызов на существующей топологии безопасен.
func SetupTopology(conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangePipelines, "direct"},
		{ExchangeTasks, "direct"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}
	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	// Неразбираемые сабмиты уходят в DLQ для ручного разбора
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQIngest),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueuePipelinesIngest, dlqArgs},
		{QueuePipelinesFinished, nil},
		{QueueTasksFinished, nil},
		{QueueDLQIngest, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueuePipelinesIngest, RoutingKeyIngest, ExchangePipelines},
		{QueuePipelinesFinished, RoutingKeyFinished, ExchangePipelines},
		{QueueTasksFinished, RoutingKeyFinished, ExchangeTasks},
		{QueueDLQIngest, RoutingKeyDLQIngest, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}
