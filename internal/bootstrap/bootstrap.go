// Package bootstrap builds the clients shared by the service entrypoints
// from the loaded configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/hls-transcoder/internal/config"
	"github.com/cuongbtq/hls-transcoder/internal/status"
	"github.com/cuongbtq/hls-transcoder/internal/worker/queue"
	sharedkafka "github.com/cuongbtq/hls-transcoder/shared/kafka"
	"github.com/cuongbtq/hls-transcoder/shared/logger"
	"github.com/cuongbtq/hls-transcoder/shared/objectstore"
	"github.com/cuongbtq/hls-transcoder/shared/postgresql"
	"github.com/cuongbtq/hls-transcoder/shared/rabbitmq"
	"github.com/cuongbtq/hls-transcoder/shared/redis"
)

// Resources holds the connections opened for one process
type Resources struct {
	Redis  *redis.Client      // nil unless a component needs it
	DB     *postgresql.Client // nil when the database is disabled
	Rabbit *rabbitmq.Client   // nil unless the rabbitmq transport is selected
	Queue  queue.JobQueue
	Store  objectstore.Store
}

// Close releases every connection, the queue first
func (r *Resources) Close() error {
	var errs []error
	if r.Queue != nil {
		errs = append(errs, r.Queue.Close())
	}
	if r.Rabbit != nil {
		errs = append(errs, r.Rabbit.Close())
	}
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	if r.DB != nil {
		errs = append(errs, r.DB.Close())
	}
	return errors.Join(errs...)
}

// HealthChecks returns a probe per connected component
func (r *Resources) HealthChecks() map[string]func(ctx context.Context) error {
	checks := make(map[string]func(ctx context.Context) error)
	if r.Redis != nil {
		checks["redis"] = r.Redis.HealthCheck
	}
	if r.DB != nil {
		checks["database"] = r.DB.HealthCheck
	}
	if r.Rabbit != nil {
		rabbit := r.Rabbit
		checks["rabbitmq"] = func(ctx context.Context) error {
			if !rabbit.IsConnected() {
				return fmt.Errorf("rabbitmq is not connected")
			}
			return nil
		}
	}
	return checks
}

// Tracker returns the redis status tracker, or nil when tracking is disabled
func (r *Resources) Tracker(cfg *config.StatusConfig) status.Tracker {
	if !cfg.Enabled || r.Redis == nil {
		return nil
	}
	return status.NewRedisTracker(r.Redis.GetClient(), cfg.TTL, cfg.QueuedTTL)
}

// Options selects which resources Open builds
type Options struct {
	ConsumerID  string // names the consumer for transports that track one
	Prefetch    int
	ObjectStore bool
}

// Open connects every component the configuration enables. On error the
// connections opened so far are closed.
func Open(ctx context.Context, cfg *config.Config, opts Options, logger *slog.Logger) (res *Resources, err error) {
	res = &Resources{}
	defer func() {
		if err != nil {
			_ = res.Close()
			res = nil
		}
	}()

	needRedis := cfg.Queue.Transport == config.TransportRedis || cfg.Status.Enabled
	if needRedis {
		res.Redis, err = InitRedis(&cfg.Redis, logger)
		if err != nil {
			return res, fmt.Errorf("failed to initialize Redis: %w", err)
		}
	}

	if cfg.Database.Enabled {
		res.DB, err = InitPostgreSQL(&cfg.Database, logger)
		if err != nil {
			return res, fmt.Errorf("failed to initialize database: %w", err)
		}
		logger.Info("Database connection established")
	}

	res.Queue, err = InitQueue(ctx, cfg, res, opts, logger)
	if err != nil {
		return res, fmt.Errorf("failed to initialize queue: %w", err)
	}

	if opts.ObjectStore {
		res.Store, err = InitObjectStore(ctx, &cfg.Storage, logger)
		if err != nil {
			return res, fmt.Errorf("failed to initialize object store: %w", err)
		}
	}

	return res, nil
}

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// InitPostgreSQL initializes the PostgreSQL database client
func InitPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		RetryAttempts:   cfg.RetryAttempts,
		RetryInterval:   cfg.RetryInterval,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// InitRedis initializes the Redis client
func InitRedis(cfg *config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	redisConfig := &redis.Config{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return redis.NewClient(redisConfig, logger)
}

// InitRabbitMQ initializes the RabbitMQ client
func InitRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:                 cfg.Host,
		Port:                 cfg.Port,
		User:                 cfg.User,
		Password:             cfg.Password,
		VHost:                cfg.VHost,
		ExchangeName:         cfg.Exchange.Name,
		ExchangeType:         cfg.Exchange.Type,
		ExchangeDurable:      cfg.Exchange.Durable,
		QueueName:            cfg.Queue.Name,
		QueueDurable:         cfg.Queue.Durable,
		RoutingKey:           cfg.RoutingKey,
		DeadLetterQueue:      cfg.DeadLetterQueue.Name,
		DeadLetterRoutingKey: cfg.DeadLetterQueue.RoutingKey,
		RetryAttempts:        cfg.Connection.RetryAttempts,
		RetryInterval:        cfg.Connection.RetryInterval,
		Heartbeat:            cfg.Connection.Heartbeat,
		PublishRetries:       cfg.Publish.RetryAttempts,
		PublishRetryDelay:    cfg.Publish.RetryInterval,
		PublishBackoffMult:   cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// KafkaConfig maps the kafka section onto the shared client configuration
func KafkaConfig(cfg *config.KafkaConfig) *sharedkafka.Config {
	return &sharedkafka.Config{
		Brokers:           cfg.Brokers,
		Topic:             cfg.Topic,
		GroupID:           cfg.GroupID,
		DeadLetterTopic:   cfg.DeadLetterTopic,
		MinBytes:          cfg.MinBytes,
		MaxBytes:          cfg.MaxBytes,
		MaxWait:           cfg.MaxWait,
		StartOffset:       cfg.StartOffset,
		WriteTimeout:      cfg.WriteTimeout,
		DialTimeout:       cfg.DialTimeout,
		Partitions:        cfg.Partitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}
}

// InitQueue builds the configured transport. The rabbitmq connection it
// opens is stored on res so that Close releases it.
func InitQueue(ctx context.Context, cfg *config.Config, res *Resources, opts Options, logger *slog.Logger) (queue.JobQueue, error) {
	codec, err := queue.CodecByName(cfg.Queue.Codec)
	if err != nil {
		return nil, err
	}

	logger.Info("Initializing job queue",
		slog.String("transport", cfg.Queue.Transport),
		slog.String("codec", codec.Name()),
	)

	switch cfg.Queue.Transport {
	case config.TransportKafka:
		kafkaConfig := KafkaConfig(&cfg.Queue.Kafka)
		if cfg.Queue.Kafka.CreateTopics {
			if err := sharedkafka.EnsureTopics(ctx, kafkaConfig, logger); err != nil {
				return nil, err
			}
		}
		return queue.NewKafka(kafkaConfig, codec, logger), nil

	case config.TransportRedis:
		if res.Redis == nil {
			return nil, fmt.Errorf("redis transport requires a redis connection")
		}
		return queue.NewRedis(res.Redis.GetClient(), codec, queue.RedisConfig{
			Key:           cfg.Queue.Redis.Key,
			DeadLetterKey: cfg.Queue.Redis.DeadLetterKey,
			ConsumerID:    opts.ConsumerID,
			PollTimeout:   cfg.Queue.Redis.PollTimeout,
		}, logger), nil

	case config.TransportRabbitMQ:
		rabbitClient, err := InitRabbitMQ(&cfg.Queue.RabbitMQ, logger)
		if err != nil {
			return nil, err
		}
		res.Rabbit = rabbitClient
		logger.Info("RabbitMQ connection established")

		prefetch := cfg.Queue.RabbitMQ.Consumer.PrefetchCount
		if prefetch <= 0 {
			prefetch = opts.Prefetch
		}
		tag := cfg.Queue.RabbitMQ.Consumer.Tag
		if tag == "" {
			tag = opts.ConsumerID
		}
		return queue.NewRabbitMQ(rabbitClient, codec, tag, prefetch, logger), nil

	case config.TransportMemory:
		return queue.NewMemory(cfg.Queue.Memory.Capacity), nil

	default:
		return nil, fmt.Errorf("unsupported queue transport: %s", cfg.Queue.Transport)
	}
}

// InitObjectStore connects to the bucket and creates it when asked to
func InitObjectStore(ctx context.Context, cfg *config.StorageConfig, logger *slog.Logger) (objectstore.Store, error) {
	store, err := objectstore.New(ctx, &objectstore.Config{
		Provider:     cfg.Provider,
		Endpoint:     cfg.Endpoint,
		Region:       cfg.Region,
		AccessKey:    cfg.AccessKey,
		SecretKey:    cfg.SecretKey,
		Bucket:       cfg.Bucket,
		UseSSL:       cfg.UseSSL,
		UsePathStyle: cfg.UsePathStyle,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.CreateBucket {
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure bucket %s: %w", cfg.Bucket, err)
		}
	}
	return store, nil
}
