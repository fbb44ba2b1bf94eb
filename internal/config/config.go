package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Queue transports
const (
	TransportKafka    = "kafka"
	TransportRedis    = "redis"
	TransportRabbitMQ = "rabbitmq"
	TransportMemory   = "memory"
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Logging  LoggingConfig  `yaml:"logging"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Queue    QueueConfig    `yaml:"queue"`
	Storage  StorageConfig  `yaml:"storage"`
	Status   StatusConfig   `yaml:"status"`
	Worker   WorkerConfig   `yaml:"worker"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Proxy    ProxyConfig    `yaml:"proxy"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration for the dead-letter ledger
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryInterval   time.Duration `yaml:"retry_interval"`
}

// RedisConfig holds the Redis connection shared by the status tracker and the redis transport
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// QueueConfig selects the job transport
type QueueConfig struct {
	Transport string            `yaml:"transport"` // kafka, redis, rabbitmq, memory
	Codec     string            `yaml:"codec"`     // json, gob; empty picks the transport default
	Kafka     KafkaConfig       `yaml:"kafka"`
	Redis     RedisQueueConfig  `yaml:"redis"`
	RabbitMQ  RabbitMQConfig    `yaml:"rabbitmq"`
	Memory    MemoryQueueConfig `yaml:"memory"`
}

// KafkaConfig holds the durable log transport settings
type KafkaConfig struct {
	Brokers           []string      `yaml:"brokers"`
	Topic             string        `yaml:"topic"`
	GroupID           string        `yaml:"group_id"`
	DeadLetterTopic   string        `yaml:"dead_letter_topic"`
	MinBytes          int           `yaml:"min_bytes"`
	MaxBytes          int           `yaml:"max_bytes"`
	MaxWait           time.Duration `yaml:"max_wait"`
	StartOffset       string        `yaml:"start_offset"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	CreateTopics      bool          `yaml:"create_topics"`
	Partitions        int           `yaml:"partitions"`
	ReplicationFactor int           `yaml:"replication_factor"`
}

// RedisQueueConfig holds the list transport settings
type RedisQueueConfig struct {
	Key           string        `yaml:"key"`
	DeadLetterKey string        `yaml:"dead_letter_key"`
	PollTimeout   time.Duration `yaml:"poll_timeout"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host            string           `yaml:"host"`
	Port            int              `yaml:"port"`
	User            string           `yaml:"user"`
	Password        string           `yaml:"password"`
	VHost           string           `yaml:"vhost"`
	Exchange        ExchangeConfig   `yaml:"exchange"`
	Queue           QueueDeclConfig  `yaml:"queue"`
	RoutingKey      string           `yaml:"routing_key"`
	DeadLetterQueue DeadLetterConfig `yaml:"dead_letter_queue"`
	Connection      ConnectionConfig `yaml:"connection"`
	Publish         PublishConfig    `yaml:"publish"`
	Consumer        ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Durable bool   `yaml:"durable"`
}

// QueueDeclConfig holds RabbitMQ queue declaration settings
type QueueDeclConfig struct {
	Name    string `yaml:"name"`
	Durable bool   `yaml:"durable"`
}

// DeadLetterConfig names the dead-letter queue and its binding
type DeadLetterConfig struct {
	Name       string `yaml:"name"`
	RoutingKey string `yaml:"routing_key"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	Tag           string `yaml:"tag"`
	PrefetchCount int    `yaml:"prefetch_count"` // 0 uses the worker concurrency
}

// MemoryQueueConfig holds the in-process transport settings
type MemoryQueueConfig struct {
	Capacity int `yaml:"capacity"`
}

// StorageConfig holds object store configuration
type StorageConfig struct {
	Provider      string        `yaml:"provider"` // minio, s3, memory
	Endpoint      string        `yaml:"endpoint"`
	Region        string        `yaml:"region"`
	AccessKey     string        `yaml:"access_key"`
	SecretKey     string        `yaml:"secret_key"`
	UseSSL        bool          `yaml:"use_ssl"`
	UsePathStyle  bool          `yaml:"use_path_style"`
	Bucket        string        `yaml:"bucket"`
	CreateBucket  bool          `yaml:"create_bucket"`
	PresignExpiry time.Duration `yaml:"presign_expiry"`
}

// StatusConfig holds the job status tracker settings
type StatusConfig struct {
	Enabled   bool          `yaml:"enabled"`
	TTL       time.Duration `yaml:"ttl"`
	QueuedTTL time.Duration `yaml:"queued_ttl"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	ID              string        `yaml:"id"`
	Concurrency     int           `yaml:"concurrency"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	PurgeOrphans    bool          `yaml:"purge_orphans"`
	LeaseTTL        time.Duration `yaml:"lease_ttl"` // per-job lease guarding the purge
	AckTimeout      time.Duration `yaml:"ack_timeout"`
	DequeueBackoff  time.Duration `yaml:"dequeue_backoff"`
}

// PipelineConfig holds the fetch and encode process settings
type PipelineConfig struct {
	FetchBinary      string        `yaml:"fetch_binary"`
	EncodeBinary     string        `yaml:"encode_binary"`
	WorkDir          string        `yaml:"work_dir"`
	CookiesFile      string        `yaml:"cookies_file"`
	MaxHeight        int           `yaml:"max_height"`
	SegmentSeconds   int           `yaml:"segment_seconds"`
	GOPSize          int           `yaml:"gop_size"`
	CRF              int           `yaml:"crf"`
	Preset           string        `yaml:"preset"`
	AudioBitrate     string        `yaml:"audio_bitrate"`
	Timeout          time.Duration `yaml:"timeout"`
	KillGrace        time.Duration `yaml:"kill_grace"`
	StderrLimit      int           `yaml:"stderr_limit"`
	UploadRetries    int           `yaml:"upload_retries"`
	UploadRetryDelay time.Duration `yaml:"upload_retry_delay"`
}

// ProxyConfig holds the delivery proxy settings
type ProxyConfig struct {
	UserAgent             string        `yaml:"user_agent"`
	ProbeTimeout          time.Duration `yaml:"probe_timeout"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills the settings every deployment shares
func (c *Config) ApplyDefaults() {
	if c.Queue.Transport == "" {
		c.Queue.Transport = TransportRedis
	}
	if c.Queue.Codec == "" {
		switch c.Queue.Transport {
		case TransportRedis:
			c.Queue.Codec = "gob"
		default:
			c.Queue.Codec = "json"
		}
	}
	if c.Queue.Kafka.Topic == "" {
		c.Queue.Kafka.Topic = "video-jobs"
	}
	if c.Queue.Kafka.DeadLetterTopic == "" {
		c.Queue.Kafka.DeadLetterTopic = c.Queue.Kafka.Topic + "-dlt"
	}
	if c.Queue.Kafka.GroupID == "" {
		c.Queue.Kafka.GroupID = "video-workers"
	}
	if c.Queue.Redis.Key == "" {
		c.Queue.Redis.Key = "job-queue"
	}
	if c.Queue.RabbitMQ.Exchange.Type == "" {
		c.Queue.RabbitMQ.Exchange.Type = "direct"
	}

	if c.Storage.Provider == "" {
		c.Storage.Provider = "minio"
	}
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = "videos"
	}
	if c.Storage.PresignExpiry <= 0 {
		c.Storage.PresignExpiry = 24 * time.Hour
	}

	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 1
	}
	if c.Worker.ShutdownTimeout <= 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
	if c.Worker.LeaseTTL <= 0 {
		c.Worker.LeaseTTL = 2 * time.Minute
	}
	if c.Worker.ID == "" {
		if host, err := os.Hostname(); err == nil {
			c.Worker.ID = host
		}
	}

	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
}

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateQueue(); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if c.Status.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when status tracking is enabled")
	}

	if c.Database.Enabled {
		if err := c.validateDatabase(); err != nil {
			return err
		}
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Worker.PurgeOrphans && !c.Status.Enabled {
		return fmt.Errorf("worker purge_orphans requires status tracking for the job lease")
	}

	if c.Pipeline.Timeout < 0 {
		return fmt.Errorf("pipeline timeout must not be negative")
	}

	if c.Pipeline.MaxHeight < 0 {
		return fmt.Errorf("pipeline max_height must not be negative")
	}

	if c.Pipeline.UploadRetries < 0 {
		return fmt.Errorf("pipeline upload_retries must not be negative")
	}

	if c.Pipeline.CookiesFile != "" {
		if _, err := os.Stat(c.Pipeline.CookiesFile); err != nil {
			return fmt.Errorf("pipeline cookies_file: %w", err)
		}
	}

	if err := c.validateQueue(); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if c.Status.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when status tracking is enabled")
	}

	if c.Database.Enabled {
		if err := c.validateDatabase(); err != nil {
			return err
		}
	}

	return nil
}

// ValidateReplayConfig checks the settings the replay tool needs
func (c *Config) ValidateReplayConfig() error {
	if !c.Database.Enabled {
		return fmt.Errorf("database must be enabled to replay dead letters")
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	return c.validateQueue()
}

func (c *Config) validateQueue() error {
	switch c.Queue.Transport {
	case TransportKafka:
		if len(c.Queue.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required")
		}
	case TransportRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required for the redis transport")
		}
	case TransportRabbitMQ:
		rmq := c.Queue.RabbitMQ
		if rmq.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}
		if rmq.Port < MinPort || rmq.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", rmq.Port, MinPort, MaxPort)
		}
		if rmq.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}
		if rmq.Queue.Name == "" {
			return fmt.Errorf("rabbitmq queue name is required")
		}
		if rmq.DeadLetterQueue.Name == "" {
			return fmt.Errorf("rabbitmq dead_letter_queue name is required")
		}
	case TransportMemory:
	default:
		return fmt.Errorf("unsupported queue transport: %q", c.Queue.Transport)
	}

	if c.Queue.Codec != "json" && c.Queue.Codec != "gob" {
		return fmt.Errorf("unsupported queue codec: %q", c.Queue.Codec)
	}

	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Provider {
	case "minio", "s3":
		if c.Storage.Endpoint == "" && c.Storage.Provider == "minio" {
			return fmt.Errorf("storage endpoint is required for minio")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported storage provider: %q", c.Storage.Provider)
	}

	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}
