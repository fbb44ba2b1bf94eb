package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	sharedkafka "github.com/cuongbtq/hls-transcoder/shared/kafka"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCommitter struct {
	mu      sync.Mutex
	commits []kafka.Message
	err     error
}

func (c *recordingCommitter) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.commits = append(c.commits, msgs...)
	return nil
}

func (c *recordingCommitter) offsets() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, 0, len(c.commits))
	for _, m := range c.commits {
		out = append(out, m.Offset)
	}
	return out
}

func newTestKafka(t *testing.T, committer messageCommitter) *Kafka {
	t.Helper()
	k := NewKafka(&sharedkafka.Config{
		Brokers: []string{"localhost:9092"},
		Topic:   "video-jobs",
		GroupID: "video-workers",
	}, JSONCodec{}, discardLogger())
	k.committer = committer
	t.Cleanup(func() { _ = k.Close() })
	return k
}

// fetch hands out a message the way Dequeue does.
func fetch(k *Kafka, partition int, offset int64) *Delivery {
	msg := kafka.Message{
		Topic:     "video-jobs",
		Partition: partition,
		Offset:    offset,
		Value:     []byte(`{"jobId":"abc123","sourceUrl":"https://example.com/v"}`),
	}
	k.tracker.fetched(msg.Partition, msg.Offset)
	return newDelivery(k.codec, msg.Value, msg)
}

func TestKafka_AckCommitsContiguousPrefix(t *testing.T) {
	ctx := context.Background()
	committer := &recordingCommitter{}
	k := newTestKafka(t, committer)

	d10 := fetch(k, 0, 10)
	d11 := fetch(k, 0, 11)
	d12 := fetch(k, 0, 12)

	require.NoError(t, k.Ack(ctx, d12))
	require.NoError(t, k.Ack(ctx, d11))
	assert.Empty(t, committer.offsets(), "offset 10 is still running")

	require.NoError(t, k.Ack(ctx, d10))
	assert.Equal(t, []int64{12}, committer.offsets())

	committer.mu.Lock()
	commit := committer.commits[0]
	committer.mu.Unlock()
	assert.Equal(t, "video-jobs", commit.Topic)
	assert.Equal(t, 0, commit.Partition)

	assert.ErrorIs(t, k.Ack(ctx, d10), ErrAlreadyAcknowledged)
	assert.Equal(t, []int64{12}, committer.offsets())
}

func TestKafka_AckTracksPartitionsIndependently(t *testing.T) {
	ctx := context.Background()
	committer := &recordingCommitter{}
	k := newTestKafka(t, committer)

	p0 := fetch(k, 0, 3)
	p1 := fetch(k, 1, 7)

	require.NoError(t, k.Ack(ctx, p1))
	require.NoError(t, k.Ack(ctx, p0))

	assert.Equal(t, []int64{7, 3}, committer.offsets())
}

func TestKafka_AckReportsCommitFailure(t *testing.T) {
	committer := &recordingCommitter{err: errors.New("coordinator not available")}
	k := newTestKafka(t, committer)

	d := fetch(k, 0, 1)
	err := k.Ack(context.Background(), d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offset 1 on partition 0")
	assert.True(t, d.Acked(), "a delivery is never acknowledged twice, even after a failed commit")
}

func TestKafka_AckRejectsForeignDelivery(t *testing.T) {
	k := newTestKafka(t, &recordingCommitter{})
	d := newDelivery(JSONCodec{}, []byte(`{"jobId":"abc123","sourceUrl":"https://example.com/v"}`), "receipt")

	assert.Error(t, k.Ack(context.Background(), d))
	assert.False(t, d.Acked())
}
