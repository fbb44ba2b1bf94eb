package status

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTracker stores status in plain string keys with a TTL
type RedisTracker struct {
	client    redis.Cmdable
	ttl       time.Duration
	queuedTTL time.Duration
}

// NewRedisTracker creates a tracker; zero TTLs take the defaults
func NewRedisTracker(client redis.Cmdable, ttl, queuedTTL time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if queuedTTL <= 0 {
		queuedTTL = DefaultQueuedTTL
	}
	return &RedisTracker{
		client:    client,
		ttl:       ttl,
		queuedTTL: queuedTTL,
	}
}

func (r *RedisTracker) SetStatus(ctx context.Context, jobID, status string) error {
	if err := r.client.Set(ctx, StatusKey(jobID), status, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set status of %s: %w", jobID, err)
	}
	return nil
}

func (r *RedisTracker) SetProgress(ctx context.Context, jobID string, progress float64) error {
	value := strconv.FormatFloat(clamp(progress), 'f', 4, 64)
	if err := r.client.Set(ctx, ProgressKey(jobID), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set progress of %s: %w", jobID, err)
	}
	return nil
}

func (r *RedisTracker) Get(ctx context.Context, jobID string) (Snapshot, error) {
	values, err := r.client.MGet(ctx, StatusKey(jobID), ProgressKey(jobID)).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read status of %s: %w", jobID, err)
	}
	return parseSnapshot(values), nil
}

func (r *RedisTracker) MarkQueued(ctx context.Context, jobID string) (bool, error) {
	ok, err := r.client.SetNX(ctx, QueuedKey(jobID), "1", r.queuedTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark %s queued: %w", jobID, err)
	}
	return ok, nil
}

func (r *RedisTracker) Clear(ctx context.Context, jobID string) error {
	if err := r.client.Del(ctx, StatusKey(jobID), ProgressKey(jobID), QueuedKey(jobID)).Err(); err != nil {
		return fmt.Errorf("failed to clear %s: %w", jobID, err)
	}
	return nil
}

// Compare-and-act scripts so a holder never touches a lease it lost.
var (
	refreshLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

func (r *RedisTracker) AcquireLease(ctx context.Context, jobID, holder string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, LeaseKey(jobID), holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease on %s: %w", jobID, err)
	}
	return ok, nil
}

func (r *RedisTracker) RefreshLease(ctx context.Context, jobID, holder string, ttl time.Duration) (bool, error) {
	n, err := refreshLeaseScript.Run(ctx, r.client, []string{LeaseKey(jobID)}, holder, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to refresh lease on %s: %w", jobID, err)
	}
	return n == 1, nil
}

func (r *RedisTracker) ReleaseLease(ctx context.Context, jobID, holder string) error {
	if err := releaseLeaseScript.Run(ctx, r.client, []string{LeaseKey(jobID)}, holder).Err(); err != nil {
		return fmt.Errorf("failed to release lease on %s: %w", jobID, err)
	}
	return nil
}

// parseSnapshot reads an MGET reply of status and progress. Missing keys come
// back as nil and unparsable progress is dropped.
func parseSnapshot(values []interface{}) Snapshot {
	var snap Snapshot
	if len(values) > 0 {
		if s, ok := values[0].(string); ok {
			snap.Status = s
		}
	}
	if len(values) > 1 {
		if s, ok := values[1].(string); ok {
			if p, err := strconv.ParseFloat(s, 64); err == nil {
				snap.Progress = &p
			}
		}
	}
	return snap
}
