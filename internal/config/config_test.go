package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "hls-worker-service", cfg.App.Name)
				assert.Equal(t, "transcoder_db", cfg.Database.Database)
				assert.Equal(t, TransportRedis, cfg.Queue.Transport)
				assert.Equal(t, 2*time.Second, cfg.Queue.Redis.PollTimeout)
				assert.Equal(t, "videos", cfg.Storage.Bucket)
				assert.Equal(t, 4, cfg.Worker.Concurrency)
				assert.False(t, cfg.Worker.PurgeOrphans)
				assert.Equal(t, 30*time.Minute, cfg.Pipeline.Timeout)
				assert.Equal(t, 720, cfg.Pipeline.MaxHeight)
			}
		})
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load("testdata/minimal.yaml")
	require.NoError(t, err)

	assert.Equal(t, TransportKafka, cfg.Queue.Transport)
	assert.Equal(t, "json", cfg.Queue.Codec)
	assert.Equal(t, "video-jobs", cfg.Queue.Kafka.Topic)
	assert.Equal(t, "video-jobs-dlt", cfg.Queue.Kafka.DeadLetterTopic)
	assert.Equal(t, "video-workers", cfg.Queue.Kafka.GroupID)
	assert.Equal(t, "minio", cfg.Storage.Provider)
	assert.Equal(t, "videos", cfg.Storage.Bucket)
	assert.Equal(t, 24*time.Hour, cfg.Storage.PresignExpiry)
	assert.Equal(t, 1, cfg.Worker.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Worker.ShutdownTimeout)
	assert.False(t, cfg.Worker.PurgeOrphans)
	assert.Equal(t, 2*time.Minute, cfg.Worker.LeaseTTL)
}

func TestApplyDefaults_CodecFollowsTransport(t *testing.T) {
	tests := []struct {
		transport string
		want      string
	}{
		{TransportRedis, "gob"},
		{TransportKafka, "json"},
		{TransportRabbitMQ, "json"},
		{TransportMemory, "json"},
		{"", "gob"},
	}

	for _, tt := range tests {
		t.Run(tt.transport, func(t *testing.T) {
			cfg := &Config{Queue: QueueConfig{Transport: tt.transport}}
			cfg.ApplyDefaults()
			assert.Equal(t, tt.want, cfg.Queue.Codec)
		})
	}
}

func validConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{Port: 8080},
		Redis:  RedisConfig{Addr: "localhost:6379"},
		Queue:  QueueConfig{Transport: TransportRedis},
		Storage: StorageConfig{
			Provider: "minio",
			Endpoint: "localhost:9000",
		},
		Status: StatusConfig{Enabled: true},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "unknown transport",
			mutate:    func(c *Config) { c.Queue.Transport = "sqs" },
			wantErr:   true,
			errString: "unsupported queue transport",
		},
		{
			name: "kafka without brokers",
			mutate: func(c *Config) {
				c.Queue.Transport = TransportKafka
			},
			wantErr:   true,
			errString: "kafka brokers are required",
		},
		{
			name: "rabbitmq without dead letter queue",
			mutate: func(c *Config) {
				c.Queue.Transport = TransportRabbitMQ
				c.Queue.RabbitMQ = RabbitMQConfig{
					Host:     "localhost",
					Port:     5672,
					Exchange: ExchangeConfig{Name: "jobs_exchange"},
					Queue:    QueueDeclConfig{Name: "jobs_queue"},
				}
			},
			wantErr:   true,
			errString: "dead_letter_queue",
		},
		{
			name:      "unknown codec",
			mutate:    func(c *Config) { c.Queue.Codec = "xml" },
			wantErr:   true,
			errString: "unsupported queue codec",
		},
		{
			name:      "minio without endpoint",
			mutate:    func(c *Config) { c.Storage.Endpoint = "" },
			wantErr:   true,
			errString: "storage endpoint is required",
		},
		{
			name: "s3 without endpoint",
			mutate: func(c *Config) {
				c.Storage.Provider = "s3"
				c.Storage.Endpoint = ""
			},
		},
		{
			name:      "unknown storage provider",
			mutate:    func(c *Config) { c.Storage.Provider = "gcs" },
			wantErr:   true,
			errString: "unsupported storage provider",
		},
		{
			name: "status tracking without redis",
			mutate: func(c *Config) {
				c.Queue.Transport = TransportMemory
				c.Redis.Addr = ""
			},
			wantErr:   true,
			errString: "redis addr is required",
		},
		{
			name: "database enabled without host",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{Enabled: true, Port: 5432, Database: "transcoder_db"}
			},
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name: "database disabled is not checked",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{Enabled: false}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) { c.Server.Port = 0 },
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			wantErr:   true,
			errString: "worker concurrency",
		},
		{
			name: "purge without status tracking",
			mutate: func(c *Config) {
				c.Worker.PurgeOrphans = true
				c.Status.Enabled = false
			},
			wantErr:   true,
			errString: "purge_orphans",
		},
		{
			name:   "purge with status tracking",
			mutate: func(c *Config) { c.Worker.PurgeOrphans = true },
		},
		{
			name:      "negative pipeline timeout",
			mutate:    func(c *Config) { c.Pipeline.Timeout = -time.Second },
			wantErr:   true,
			errString: "pipeline timeout",
		},
		{
			name:      "negative max height",
			mutate:    func(c *Config) { c.Pipeline.MaxHeight = -1 },
			wantErr:   true,
			errString: "max_height",
		},
		{
			name:      "missing cookies file",
			mutate:    func(c *Config) { c.Pipeline.CookiesFile = "testdata/no-such-cookies.txt" },
			wantErr:   true,
			errString: "cookies_file",
		},
		{
			name:   "existing cookies file",
			mutate: func(c *Config) { c.Pipeline.CookiesFile = "testdata/valid_config.yaml" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateReplayConfig(t *testing.T) {
	cfg := validConfig()
	err := cfg.ValidateReplayConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database must be enabled")

	cfg.Database = DatabaseConfig{Enabled: true, Host: "localhost", Port: 5432, Database: "transcoder_db"}
	assert.NoError(t, cfg.ValidateReplayConfig())
}
