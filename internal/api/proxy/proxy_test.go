package proxy

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var media = bytes.Repeat([]byte("0123456789"), 100)

func newTestProxy() *Proxy {
	return New(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func relay(t *testing.T, p *Proxy, upstream string, rangeHeader string) *httptest.ResponseRecorder {
	t.Helper()
	u, err := ValidateUpstream(upstream)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stream", nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	rec := httptest.NewRecorder()
	_ = p.Stream(rec, req, u)
	return rec
}

func TestStream_FullBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		http.ServeContent(w, r, "media.mp4", time.Time{}, bytes.NewReader(media))
	}))
	defer upstream.Close()

	rec := relay(t, newTestProxy(), upstream.URL+"/media.mp4", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, media, rec.Body.Bytes())
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "1000", rec.Header().Get("Content-Length"))
	assert.Empty(t, rec.Header().Get("Content-Range"))
}

func TestStream_RangeIsForwarded(t *testing.T) {
	userAgents := make(chan string, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			userAgents <- r.UserAgent()
		}
		w.Header().Set("Content-Type", "video/mp4")
		http.ServeContent(w, r, "media.mp4", time.Time{}, bytes.NewReader(media))
	}))
	defer upstream.Close()

	rec := relay(t, newTestProxy(), upstream.URL+"/media.mp4", "bytes=10-19")

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, media[10:20], rec.Body.Bytes())
	assert.Equal(t, "bytes 10-19/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, "10", rec.Header().Get("Content-Length"))
	assert.True(t, strings.HasPrefix(<-userAgents, "Mozilla/5.0"))
}

func TestStream_ContentTypeFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		headType string
		want     string
	}{
		{"from probe", "audio/webm", "audio/webm"},
		{"default", "", fallbackContentType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodHead {
					if tt.headType != "" {
						w.Header().Set("Content-Type", tt.headType)
					} else {
						w.Header()["Content-Type"] = nil
					}
					w.Header().Set("Content-Length", "4")
					return
				}
				w.Header()["Content-Type"] = nil
				_, _ = w.Write([]byte("data"))
			}))
			defer upstream.Close()

			rec := relay(t, newTestProxy(), upstream.URL, "")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("Content-Type"))
			assert.Equal(t, "data", rec.Body.String())
		})
	}
}

func TestStream_UpstreamErrorIsBadGateway(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer upstream.Close()

	rec := relay(t, newTestProxy(), upstream.URL, "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestStream_UnreachableUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	addr := upstream.URL
	upstream.Close()

	rec := relay(t, newTestProxy(), addr, "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestValidateUpstream(t *testing.T) {
	for _, raw := range []string{"https://cdn.example.com/a.mp4", "http://10.0.0.1:8080/x"} {
		_, err := ValidateUpstream(raw)
		assert.NoError(t, err, raw)
	}
	for _, raw := range []string{"", "ftp://example.com/a", "/relative/path", "file:///etc/passwd", "https://"} {
		_, err := ValidateUpstream(raw)
		assert.ErrorIs(t, err, ErrUnsupportedUpstream, raw)
	}
}
