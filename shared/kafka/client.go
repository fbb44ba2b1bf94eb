package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// Config holds Kafka connection and consumer group configuration
type Config struct {
	Brokers           []string
	Topic             string
	GroupID           string
	DeadLetterTopic   string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	StartOffset       string // first, last
	WriteTimeout      time.Duration
	DialTimeout       time.Duration
	Partitions        int
	ReplicationFactor int
}

// NewReader creates a consumer group reader with explicit commits
func NewReader(config *Config, logger *slog.Logger) *kafka.Reader {
	startOffset := kafka.FirstOffset
	if config.StartOffset == "last" {
		startOffset = kafka.LastOffset
	}

	logger.Info("Creating Kafka reader",
		slog.Any("brokers", config.Brokers),
		slog.String("topic", config.Topic),
		slog.String("group_id", config.GroupID),
	)

	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		GroupID:        config.GroupID,
		Topic:          config.Topic,
		MinBytes:       config.MinBytes,
		MaxBytes:       config.MaxBytes,
		MaxWait:        config.MaxWait,
		StartOffset:    startOffset,
		CommitInterval: 0, // commit synchronously on CommitMessages
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: 5 * time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.Error("Kafka reader error", slog.String("detail", fmt.Sprintf(msg, args...)))
		}),
	})
}

// NewWriter creates a writer for topic that partitions by message key
func NewWriter(config *Config, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           config.WriteTimeout,
		AllowAutoTopicCreation: true,
	}
}

// EnsureTopics creates the job and dead-letter topics on the cluster controller
func EnsureTopics(ctx context.Context, config *Config, logger *slog.Logger) error {
	if len(config.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are empty")
	}

	dialer := &kafka.Dialer{Timeout: config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", config.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to find Kafka controller: %w", err)
	}

	controllerConn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka controller: %w", err)
	}
	defer controllerConn.Close()

	partitions := config.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	replication := config.ReplicationFactor
	if replication <= 0 {
		replication = 1
	}

	topics := []kafka.TopicConfig{
		{Topic: config.Topic, NumPartitions: partitions, ReplicationFactor: replication},
	}
	if config.DeadLetterTopic != "" {
		topics = append(topics, kafka.TopicConfig{Topic: config.DeadLetterTopic, NumPartitions: 1, ReplicationFactor: replication})
	}

	if err := controllerConn.CreateTopics(topics...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("failed to create Kafka topics: %w", err)
	}

	logger.Info("Kafka topics ready",
		slog.String("topic", config.Topic),
		slog.String("dead_letter_topic", config.DeadLetterTopic),
	)
	return nil
}
