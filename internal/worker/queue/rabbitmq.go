package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cuongbtq/hls-transcoder/internal/worker/domain"
	"github.com/cuongbtq/hls-transcoder/shared/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQ consumes the job queue with manual acknowledgment and publishes
// dead letters to a durable side queue.
type RabbitMQ struct {
	client      *rabbitmq.Client
	codec       Codec
	consumerTag string
	prefetch    int
	logger      *slog.Logger

	consumeOnce sync.Once
	deliveries  <-chan amqp.Delivery
	consumeErr  error
}

// NewRabbitMQ creates a RabbitMQ transport. prefetch bounds the unacknowledged
// deliveries held by this consumer and should match the pool size.
func NewRabbitMQ(client *rabbitmq.Client, codec Codec, consumerTag string, prefetch int, logger *slog.Logger) *RabbitMQ {
	return &RabbitMQ{
		client:      client,
		codec:       codec,
		consumerTag: consumerTag,
		prefetch:    prefetch,
		logger:      logger,
	}
}

func (r *RabbitMQ) Enqueue(ctx context.Context, job domain.VideoJob) error {
	data, err := r.codec.Encode(job)
	if err != nil {
		return err
	}
	return r.client.PublishWithRetry(ctx, data, r.codec.ContentType())
}

func (r *RabbitMQ) startConsumer() error {
	r.consumeOnce.Do(func() {
		if r.prefetch > 0 {
			if err := r.client.SetPrefetch(r.prefetch); err != nil {
				r.consumeErr = err
				return
			}
		}
		r.deliveries, r.consumeErr = r.client.Consume(r.consumerTag)
	})
	return r.consumeErr
}

func (r *RabbitMQ) Dequeue(ctx context.Context) (*Delivery, error) {
	if err := r.startConsumer(); err != nil {
		if errors.Is(err, ErrQueueClosed) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to start consumer: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-r.deliveries:
		if !ok {
			return nil, ErrQueueClosed
		}
		return newDelivery(r.codec, msg.Body, msg), nil
	}
}

func (r *RabbitMQ) Ack(ctx context.Context, d *Delivery) error {
	msg, ok := d.receipt.(amqp.Delivery)
	if !ok {
		return fmt.Errorf("delivery was not produced by the rabbitmq queue")
	}
	if !d.claimAck() {
		return ErrAlreadyAcknowledged
	}
	if err := msg.Ack(false); err != nil {
		return fmt.Errorf("failed to ack delivery %d: %w", msg.DeliveryTag, err)
	}
	return nil
}

func (r *RabbitMQ) DeadLetter(ctx context.Context, dl domain.DeadLetter) error {
	data, err := encodeDeadLetter(dl)
	if err != nil {
		return err
	}
	if err := r.client.PublishDeadLetter(ctx, data, "application/json"); err != nil {
		return fmt.Errorf("failed to publish dead letter for %s: %w", dl.Job.JobID, err)
	}
	return nil
}

// Close cancels the consumer; the connection is owned by the caller. It waits
// for a consumer that is still starting and keeps later Dequeues from
// starting one.
func (r *RabbitMQ) Close() error {
	r.consumeOnce.Do(func() {
		r.consumeErr = ErrQueueClosed
	})
	if r.deliveries == nil {
		return nil
	}
	if err := r.client.CancelConsumer(r.consumerTag); err != nil {
		r.logger.Warn("Failed to cancel RabbitMQ consumer",
			slog.String("consumer_tag", r.consumerTag),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}
