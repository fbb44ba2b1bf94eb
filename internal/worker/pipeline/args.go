package pipeline

import (
	"fmt"
	"strconv"

	"github.com/cuongbtq/hls-transcoder/internal/worker/domain"
)

// formatSelector prefers a combined stream under the height ceiling, then a
// merged best video and audio under the ceiling, then anything.
func formatSelector(maxHeight int, audioOnly bool) string {
	if audioOnly {
		return "ba/b"
	}
	if maxHeight <= 0 {
		return "b/bv*+ba"
	}
	return fmt.Sprintf("b[height<=%d]/bv*[height<=%d]+ba/b", maxHeight, maxHeight)
}

func (p *Pipeline) fetchArgs(req Request, cookiesPath string) []string {
	maxHeight := req.MaxHeight
	if maxHeight <= 0 {
		maxHeight = p.config.MaxHeight
	}

	args := []string{
		"--no-playlist",
		"--no-progress",
		"--no-part",
	}
	if cookiesPath != "" {
		args = append(args, "--cookies", cookiesPath)
	}
	args = append(args,
		"-f", formatSelector(maxHeight, req.AudioOnly),
		"-o", "-",
		"--", req.SourceURL,
	)
	return args
}

func (p *Pipeline) encodeArgs(req Request) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", "pipe:0",
	}

	if req.AudioOnly {
		args = append(args, "-vn")
	} else {
		gop := strconv.Itoa(p.config.GOPSize)
		args = append(args,
			"-c:v", "libx264",
			"-preset", p.config.Preset,
			"-crf", strconv.Itoa(p.config.CRF),
			"-g", gop,
			"-keyint_min", gop,
			"-sc_threshold", "0",
		)
	}

	args = append(args,
		"-c:a", "aac",
		"-b:a", p.config.AudioBitrate,
		"-ac", "2",
		"-ar", "44100",
		"-af", "aresample=async=1",
		"-f", "hls",
		"-hls_time", strconv.Itoa(p.config.SegmentSeconds),
		"-hls_list_size", "0",
		"-hls_flags", "independent_segments",
		"-start_number", "0",
		"-hls_segment_filename", domain.SegmentTemplate,
		domain.PlaylistName,
	)
	return args
}
