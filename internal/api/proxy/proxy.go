// Package proxy relays a remote media URL to the client, byte ranges
// included, for playback that bypasses the transcode queue.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const fallbackContentType = "audio/mp4"

// ErrUnsupportedUpstream is returned for upstream URLs that are not absolute http(s)
var ErrUnsupportedUpstream = errors.New("unsupported upstream url")

type Config struct {
	UserAgent             string
	ProbeTimeout          time.Duration
	ResponseHeaderTimeout time.Duration
}

type Proxy struct {
	client       *http.Client
	userAgent    string
	probeTimeout time.Duration
	logger       *slog.Logger
}

func New(config Config, logger *slog.Logger) *Proxy {
	if config.UserAgent == "" {
		config.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = 5 * time.Second
	}
	if config.ResponseHeaderTimeout <= 0 {
		config.ResponseHeaderTimeout = 15 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = config.ResponseHeaderTimeout
	// The body is relayed as is, never decoded.
	transport.DisableCompression = true

	return &Proxy{
		// No client timeout: bodies stream for as long as the player reads.
		client:       &http.Client{Transport: transport},
		userAgent:    config.UserAgent,
		probeTimeout: config.ProbeTimeout,
		logger:       logger,
	}
}

// ValidateUpstream parses raw and accepts only absolute http and https URLs
func ValidateUpstream(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrUnsupportedUpstream)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedUpstream, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedUpstream, raw)
	}
	return u, nil
}

type probeResult struct {
	contentType   string
	contentLength int64
}

// probe asks upstream for the content type and length. Failures only mean
// the GET response has to stand on its own.
func (p *Proxy) probe(ctx context.Context, upstream string) probeResult {
	result := probeResult{contentLength: -1}

	ctx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, upstream, nil)
	if err != nil {
		return result
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("Upstream probe failed", slog.String("error", err.Error()))
		return result
	}
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.contentType = resp.Header.Get("Content-Type")
		result.contentLength = resp.ContentLength
	}
	return result
}

// Stream relays upstream to w, forwarding the Range header of r. The error
// is for logging only; a response has always been written.
func (p *Proxy) Stream(w http.ResponseWriter, r *http.Request, upstream *url.URL) error {
	target := upstream.String()
	rangeHeader := r.Header.Get("Range")

	head := p.probe(r.Context(), target)

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		http.Error(w, "invalid upstream request", http.StatusBadGateway)
		return fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		http.Error(w, "upstream returned "+resp.Status, http.StatusBadGateway)
		return fmt.Errorf("upstream returned %s", resp.Status)
	}

	contentRange := resp.Header.Get("Content-Range")
	partial := resp.StatusCode == http.StatusPartialContent || (rangeHeader != "" && contentRange != "")

	headers := w.Header()
	headers.Set("Content-Type", firstNonEmpty(resp.Header.Get("Content-Type"), head.contentType, fallbackContentType))
	headers.Set("Accept-Ranges", "bytes")
	headers.Set("Cache-Control", "no-store")
	if length := resp.Header.Get("Content-Length"); length != "" {
		headers.Set("Content-Length", length)
	} else if !partial && head.contentLength >= 0 {
		headers.Set("Content-Length", strconv.FormatInt(head.contentLength, 10))
	}
	if contentRange != "" {
		headers.Set("Content-Range", contentRange)
	}

	status := http.StatusOK
	if partial {
		status = http.StatusPartialContent
	}
	w.WriteHeader(status)

	written, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("relay interrupted after %d bytes: %w", written, err)
	}

	p.logger.Debug("Upstream relayed",
		slog.Int("status", status),
		slog.Int64("bytes", written),
		slog.Bool("partial", partial),
	)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
