package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{
			name: "failure error",
			err:  NewFailure(ReasonSourceUnavailable, errors.New("exit status 1")),
			want: ReasonSourceUnavailable,
		},
		{
			name: "wrapped failure error",
			err:  fmt.Errorf("publish: %w", Failuref(ReasonPublishPartialFailure, "1 of 5 segments failed")),
			want: ReasonPublishPartialFailure,
		},
		{
			name: "bare sentinel",
			err:  fmt.Errorf("decode: %w", ErrInvalidJob),
			want: ReasonInvalidJob,
		},
		{
			name: "unknown error",
			err:  errors.New("disk full"),
			want: ReasonPipelineInfrastructureFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestFailureError_Is(t *testing.T) {
	err := Failuref(ReasonSourceUnavailable, "yt-dlp exited with %d", 1)

	assert.True(t, errors.Is(err, ErrSourceUnavailable))
	assert.False(t, errors.Is(err, ErrPipelineInfrastructure))
	assert.Equal(t, "SourceUnavailable: yt-dlp exited with 1", err.Error())
}

func TestReason_Permanent(t *testing.T) {
	assert.True(t, ReasonSourceUnavailable.Permanent())
	assert.True(t, ReasonInvalidJob.Permanent())
	assert.False(t, ReasonPipelineInfrastructureFailure.Permanent())
	assert.False(t, ReasonPublishPartialFailure.Permanent())
}

func TestVideoJob_Validate(t *testing.T) {
	tests := []struct {
		name    string
		job     VideoJob
		wantErr bool
	}{
		{name: "valid", job: VideoJob{JobID: "abc123", SourceURL: "https://www.youtube.com/watch?v=abc123"}},
		{name: "empty job id", job: VideoJob{SourceURL: "https://example.com"}, wantErr: true},
		{name: "blank job id", job: VideoJob{JobID: "  ", SourceURL: "https://example.com"}, wantErr: true},
		{name: "path separator", job: VideoJob{JobID: "a/b", SourceURL: "https://example.com"}, wantErr: true},
		{name: "parent reference", job: VideoJob{JobID: "..", SourceURL: "https://example.com"}, wantErr: true},
		{name: "empty source", job: VideoJob{JobID: "abc123"}, wantErr: true},
		{name: "negative height", job: VideoJob{JobID: "abc123", SourceURL: "https://example.com", MaxHeight: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidJob)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestArtifactKeys(t *testing.T) {
	assert.Equal(t, "abc123/playlist.m3u8", MarkerKey("abc123"))
	assert.Equal(t, "abc123/", JobPrefix("abc123"))

	seg := Artifact{JobID: "abc123", RelativeName: "segment3.ts", Kind: ArtifactSegment}
	assert.Equal(t, "abc123/segment3.ts", seg.Key())
	assert.Equal(t, SegmentContentType, seg.ContentType())

	pl := Artifact{JobID: "abc123", RelativeName: PlaylistName, Kind: ArtifactPlaylist}
	assert.Equal(t, PlaylistContentType, pl.ContentType())
}
