package objectstore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory("videos")

	path := filepath.Join(t.TempDir(), "segment0.ts")
	require.NoError(t, os.WriteFile(path, []byte("ts-data"), 0o644))

	exists, err := store.Exists(ctx, "abc/segment0.ts")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.PutFile(ctx, "abc/segment0.ts", path, "video/mp2t"))
	require.NoError(t, store.PutFile(ctx, "abc/segment0.ts", path, "video/mp2t"))

	exists, err = store.Exists(ctx, "abc/segment0.ts")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "video/mp2t", store.ContentType("abc/segment0.ts"))

	body, err := store.Get(ctx, "abc/segment0.ts")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "ts-data", string(data))

	_, err = store.Get(ctx, "abc/missing.ts")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeletePrefix(t *testing.T) {
	ctx := context.Background()
	store := NewMemory("videos")
	store.Put("abc/segment0.ts", []byte("a"), "video/mp2t")
	store.Put("abc/segment1.ts", []byte("b"), "video/mp2t")
	store.Put("abcd/segment0.ts", []byte("c"), "video/mp2t")

	deleted, err := DeletePrefix(ctx, store, "abc/")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	keys, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"abcd/segment0.ts"}, keys)
}

func TestDeletePrefix_KeepsListedKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemory("videos")
	store.Put("abc/playlist.m3u8", []byte("#EXTM3U\n"), "application/vnd.apple.mpegurl")
	store.Put("abc/segment0.ts", []byte("a"), "video/mp2t")

	deleted, err := DeletePrefix(ctx, store, "abc/", "abc/playlist.m3u8")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	keys, err := store.List(ctx, "abc/")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc/playlist.m3u8"}, keys)
}

func TestMemory_PresignGet(t *testing.T) {
	store := NewMemory("videos")
	u, err := store.PresignGet(context.Background(), "abc/segment0.ts", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, u, "memory://videos/abc/segment0.ts")
}

func TestNew(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := New(context.Background(), &Config{Provider: "memory", Bucket: "videos"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, store)

	_, err = New(context.Background(), &Config{Provider: "gcs", Bucket: "videos"}, logger)
	assert.ErrorContains(t, err, "unsupported object store provider")

	_, err = New(context.Background(), &Config{Provider: "memory"}, logger)
	assert.ErrorContains(t, err, "bucket is required")
}

func TestS3Endpoint(t *testing.T) {
	assert.Equal(t, "", s3Endpoint("", true))
	assert.Equal(t, "http://localhost:9000", s3Endpoint("localhost:9000", false))
	assert.Equal(t, "https://s3.example.com", s3Endpoint("s3.example.com", true))
	assert.Equal(t, "http://minio:9000", s3Endpoint("http://minio:9000", true))
}
