package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"
)

// ErrNotFound is returned when the requested key does not exist
var ErrNotFound = errors.New("object not found")

// Store is a single-bucket object store
type Store interface {
	// EnsureBucket creates the bucket when it is missing
	EnsureBucket(ctx context.Context) error
	Exists(ctx context.Context, key string) (bool, error)
	// PutFile uploads a local file. Writing the same key twice is harmless.
	PutFile(ctx context.Context, key, path, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// Config holds object store connection configuration
type Config struct {
	Provider     string // minio, s3, memory
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	UseSSL       bool
	UsePathStyle bool
}

// New creates the store selected by Provider
func New(ctx context.Context, config *Config, logger *slog.Logger) (Store, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}

	logger.Info("Connecting to object store",
		slog.String("provider", config.Provider),
		slog.String("endpoint", config.Endpoint),
		slog.String("bucket", config.Bucket),
	)

	switch config.Provider {
	case "minio", "":
		return NewMinio(config, logger)
	case "s3":
		return NewS3(ctx, config, logger)
	case "memory":
		return NewMemory(config.Bucket), nil
	default:
		return nil, fmt.Errorf("unsupported object store provider: %s", config.Provider)
	}
}

// DeletePrefix removes every object under prefix except the keys in keep and
// returns how many were deleted.
func DeletePrefix(ctx context.Context, store Store, prefix string, keep ...string) (int, error) {
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", prefix, err)
	}

	deleted := 0
	for _, key := range keys {
		if slices.Contains(keep, key) {
			continue
		}
		if err := store.Delete(ctx, key); err != nil {
			return deleted, fmt.Errorf("failed to delete %s: %w", key, err)
		}
		deleted++
	}
	return deleted, nil
}
