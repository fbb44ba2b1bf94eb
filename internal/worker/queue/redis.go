package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/hls-transcoder/internal/worker/domain"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the list-backed transport
type RedisConfig struct {
	Key           string // producers LPUSH here
	DeadLetterKey string
	ConsumerID    string // names this consumer's processing list
	PollTimeout   time.Duration
}

// Redis is a best-effort list queue. Producers LPUSH onto Key; each consumer
// atomically moves a message into its own processing list and removes it on
// acknowledgment, so only messages in flight at a crash are at risk.
type Redis struct {
	client redis.Cmdable
	codec  Codec
	config RedisConfig
	logger *slog.Logger
	closed atomic.Bool
}

// NewRedis creates a Redis list transport
func NewRedis(client redis.Cmdable, codec Codec, config RedisConfig, logger *slog.Logger) *Redis {
	if config.Key == "" {
		config.Key = "job-queue"
	}
	if config.DeadLetterKey == "" {
		config.DeadLetterKey = config.Key + ":dead-letter"
	}
	if config.ConsumerID == "" {
		config.ConsumerID = "default"
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = 2 * time.Second
	}
	return &Redis{
		client: client,
		codec:  codec,
		config: config,
		logger: logger,
	}
}

// ProcessingKey returns the list holding this consumer's in-flight messages
func (r *Redis) ProcessingKey() string {
	return r.config.Key + ":processing:" + r.config.ConsumerID
}

func (r *Redis) Enqueue(ctx context.Context, job domain.VideoJob) error {
	data, err := r.codec.Encode(job)
	if err != nil {
		return err
	}
	if err := r.client.LPush(ctx, r.config.Key, data).Err(); err != nil {
		return fmt.Errorf("failed to push job %s: %w", job.JobID, err)
	}
	return nil
}

func (r *Redis) Dequeue(ctx context.Context) (*Delivery, error) {
	for {
		if r.closed.Load() {
			return nil, ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := r.client.BLMove(ctx, r.config.Key, r.ProcessingKey(), "RIGHT", "LEFT", r.config.PollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to pop job: %w", err)
		}

		return newDelivery(r.codec, []byte(raw), raw), nil
	}
}

func (r *Redis) Ack(ctx context.Context, d *Delivery) error {
	raw, ok := d.receipt.(string)
	if !ok {
		return fmt.Errorf("delivery was not produced by the redis queue")
	}
	if !d.claimAck() {
		return ErrAlreadyAcknowledged
	}
	if err := r.client.LRem(ctx, r.ProcessingKey(), 1, raw).Err(); err != nil {
		return fmt.Errorf("failed to remove acknowledged job: %w", err)
	}
	return nil
}

func (r *Redis) DeadLetter(ctx context.Context, dl domain.DeadLetter) error {
	data, err := encodeDeadLetter(dl)
	if err != nil {
		return err
	}
	if err := r.client.LPush(ctx, r.config.DeadLetterKey, data).Err(); err != nil {
		return fmt.Errorf("failed to push dead letter for %s: %w", dl.Job.JobID, err)
	}
	return nil
}

// Recover moves messages left in this consumer's processing list back onto
// the queue. It must run before the consumer starts dequeuing.
func (r *Redis) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := r.client.LMove(ctx, r.ProcessingKey(), r.config.Key, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return moved, fmt.Errorf("failed to recover in-flight jobs: %w", err)
		}
		moved++
	}

	if moved > 0 {
		r.logger.Warn("Recovered in-flight jobs from previous run",
			slog.Int("count", moved),
			slog.String("processing_key", r.ProcessingKey()),
		)
	}
	return moved, nil
}

func (r *Redis) Close() error {
	r.closed.Store(true)
	return nil
}
