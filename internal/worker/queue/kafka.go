package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/cuongbtq/hls-transcoder/internal/worker/domain"
	sharedkafka "github.com/cuongbtq/hls-transcoder/shared/kafka"
	"github.com/segmentio/kafka-go"
)

// messageCommitter is the part of the consumer group reader Ack uses
type messageCommitter interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Kafka is the durable consumer-group transport. Offsets are committed only
// once every earlier message of the partition has been acknowledged, which
// keeps at-least-once delivery with a pool of concurrent consumers.
type Kafka struct {
	config    *sharedkafka.Config
	codec     Codec
	logger    *slog.Logger
	writer    *kafka.Writer
	dltWriter *kafka.Writer

	readerOnce sync.Once
	reader     *kafka.Reader
	committer  messageCommitter // defaults to reader
	tracker    *offsetTracker
	commitMu   sync.Mutex
}

// NewKafka creates a Kafka transport. The consumer group reader is created
// on the first Dequeue so producers never join the group.
func NewKafka(config *sharedkafka.Config, codec Codec, logger *slog.Logger) *Kafka {
	k := &Kafka{
		config:  config,
		codec:   codec,
		logger:  logger,
		writer:  sharedkafka.NewWriter(config, config.Topic),
		tracker: newOffsetTracker(),
	}
	if config.DeadLetterTopic != "" {
		k.dltWriter = sharedkafka.NewWriter(config, config.DeadLetterTopic)
	}
	return k
}

func (k *Kafka) getReader() *kafka.Reader {
	k.readerOnce.Do(func() {
		k.reader = sharedkafka.NewReader(k.config, k.logger)
	})
	return k.reader
}

func (k *Kafka) getCommitter() messageCommitter {
	if k.committer != nil {
		return k.committer
	}
	return k.getReader()
}

func (k *Kafka) Enqueue(ctx context.Context, job domain.VideoJob) error {
	data, err := k.codec.Encode(job)
	if err != nil {
		return err
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(job.JobID),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("failed to produce job %s: %w", job.JobID, err)
	}
	return nil
}

func (k *Kafka) Dequeue(ctx context.Context) (*Delivery, error) {
	msg, err := k.getReader().FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrQueueClosed
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}

	k.tracker.fetched(msg.Partition, msg.Offset)
	return newDelivery(k.codec, msg.Value, msg), nil
}

func (k *Kafka) Ack(ctx context.Context, d *Delivery) error {
	msg, ok := d.receipt.(kafka.Message)
	if !ok {
		return fmt.Errorf("delivery was not produced by the kafka queue")
	}
	if !d.claimAck() {
		return ErrAlreadyAcknowledged
	}

	// Serialized so a lower commit can never land after a higher one.
	k.commitMu.Lock()
	defer k.commitMu.Unlock()

	offset, ok := k.tracker.acked(msg.Partition, msg.Offset)
	if !ok {
		return nil
	}

	commit := msg
	commit.Offset = offset
	if err := k.getCommitter().CommitMessages(ctx, commit); err != nil {
		return fmt.Errorf("failed to commit offset %d on partition %d: %w", offset, msg.Partition, err)
	}

	k.logger.Debug("Kafka offset committed",
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", offset),
	)
	return nil
}

func (k *Kafka) DeadLetter(ctx context.Context, dl domain.DeadLetter) error {
	if k.dltWriter == nil {
		return fmt.Errorf("dead-letter topic is not configured")
	}

	data, err := encodeDeadLetter(dl)
	if err != nil {
		return err
	}

	err = k.dltWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(dl.Job.JobID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "reason", Value: []byte(dl.Reason)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to produce dead letter for %s: %w", dl.Job.JobID, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	var errs []error
	if k.reader != nil {
		errs = append(errs, k.reader.Close())
	}
	errs = append(errs, k.writer.Close())
	if k.dltWriter != nil {
		errs = append(errs, k.dltWriter.Close())
	}
	return errors.Join(errs...)
}
