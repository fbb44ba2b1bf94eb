package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cuongbtq/hls-transcoder/internal/config"
	"github.com/cuongbtq/hls-transcoder/internal/worker/domain"
	"github.com/cuongbtq/hls-transcoder/internal/worker/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpen_MemoryStack(t *testing.T) {
	cfg := &config.Config{
		Queue:   config.QueueConfig{Transport: config.TransportMemory, Memory: config.MemoryQueueConfig{Capacity: 2}},
		Storage: config.StorageConfig{Provider: "memory"},
	}
	cfg.ApplyDefaults()

	res, err := Open(context.Background(), cfg, Options{ObjectStore: true}, discardLogger())
	require.NoError(t, err)
	defer res.Close()

	assert.Nil(t, res.Redis)
	assert.Nil(t, res.DB)
	assert.Empty(t, res.HealthChecks())
	assert.Nil(t, res.Tracker(&cfg.Status))

	require.IsType(t, &queue.Memory{}, res.Queue)
	require.NoError(t, res.Queue.Enqueue(context.Background(), domain.VideoJob{JobID: "abc123", SourceURL: "https://youtu.be/abc123"}))

	exists, err := res.Store.Exists(context.Background(), domain.MarkerKey("abc123"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInitQueue_RejectsUnknownCodec(t *testing.T) {
	cfg := &config.Config{Queue: config.QueueConfig{Transport: config.TransportMemory, Codec: "xml"}}

	_, err := InitQueue(context.Background(), cfg, &Resources{}, Options{}, discardLogger())
	assert.Error(t, err)
}

func TestInitQueue_RedisNeedsConnection(t *testing.T) {
	cfg := &config.Config{Queue: config.QueueConfig{Transport: config.TransportRedis}}
	cfg.ApplyDefaults()

	_, err := InitQueue(context.Background(), cfg, &Resources{}, Options{}, discardLogger())
	assert.ErrorContains(t, err, "requires a redis connection")
}

func TestKafkaConfig(t *testing.T) {
	got := KafkaConfig(&config.KafkaConfig{
		Brokers:         []string{"kafka:9092"},
		Topic:           "video-jobs",
		GroupID:         "video-workers",
		DeadLetterTopic: "video-jobs-dlt",
		MaxWait:         500 * time.Millisecond,
		StartOffset:     "first",
		Partitions:      6,
	})

	assert.Equal(t, []string{"kafka:9092"}, got.Brokers)
	assert.Equal(t, "video-jobs-dlt", got.DeadLetterTopic)
	assert.Equal(t, "video-workers", got.GroupID)
	assert.Equal(t, 500*time.Millisecond, got.MaxWait)
	assert.Equal(t, 6, got.Partitions)
}

func TestResources_CloseWithNothingOpen(t *testing.T) {
	assert.NoError(t, (&Resources{}).Close())
}
