package event

import (
	"context"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	apperrors "slacknotes/internal/errors"
	"slacknotes/pkg/logger"
)

// RabbitMQQueueConfig carries the AMQP settings for the rabbitmq driver.
type RabbitMQQueueConfig struct {
	URL        string
	Queue      string
	Prefetch   int
	Durable    bool
	AutoDelete bool
}

// RabbitMQQueue backs the pipeline with a RabbitMQ queue in manual-ack
// mode. Delivery retries are the processor's job, so every message is acked
// once the handler returns.
type RabbitMQQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewRabbitMQQueue dials the broker and declares the queue.
func NewRabbitMQQueue(cfg RabbitMQQueueConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "rabbitmq url is required")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "slacknotes.events"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeQueueFailure, err, "connect to rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, apperrors.Wrap(apperrors.CodeQueueFailure, err, "open rabbitmq channel")
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return nil, apperrors.Wrap(apperrors.CodeQueueFailure, err, "set rabbitmq qos")
		}
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, apperrors.Wrap(apperrors.CodeQueueFailure, err, "declare rabbitmq queue")
	}
	return &RabbitMQQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Publish sends the encoded envelope to the queue.
func (q *RabbitMQQueue) Publish(ctx context.Context, env Envelope) error {
	if q == nil || q.ch == nil {
		return apperrors.New(apperrors.CodeInitializationFailure, "rabbitmq queue is not initialized")
	}
	data, err := env.Encode()
	if err != nil {
		return err
	}
	if err := q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        data,
	}); err != nil {
		return apperrors.Wrap(apperrors.CodeQueueFailure, err, "publish envelope to rabbitmq")
	}
	return nil
}

// Consume subscribes with manual acks and fans deliveries out to
// workerCount goroutines.
func (q *RabbitMQQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if q == nil || q.ch == nil {
		return apperrors.New(apperrors.CodeInitializationFailure, "rabbitmq queue is not initialized")
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	msgs, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeQueueFailure, err, "subscribe to rabbitmq queue")
	}

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						return
					}
					env, decodeErr := Decode(msg.Body)
					if decodeErr != nil {
						logger.L().Warn("dropping undecodable envelope",
							slog.Any("error", decodeErr),
							slog.Int("payload_bytes", len(msg.Body)))
						_ = msg.Ack(false)
						continue
					}
					_ = handler(ctx, env)
					_ = msg.Ack(false)
				}
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close tears down the channel and connection.
func (q *RabbitMQQueue) Close() error {
	if q == nil {
		return nil
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
