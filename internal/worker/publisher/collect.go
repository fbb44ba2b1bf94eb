package publisher

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cuongbtq/hls-transcoder/internal/worker/domain"
)

var segmentPattern = regexp.MustCompile(`^segment(\d+)\.ts$`)

// Collect enumerates the artifacts of a finished run. Segments come back in
// ascending numeric order. Numbering must be contiguous from zero and every
// entry of the playlist must exist locally.
func Collect(jobID, dir string) ([]domain.Artifact, domain.Artifact, error) {
	var playlist domain.Artifact

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, playlist, domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "failed to read %s: %w", dir, err)
	}

	var segments []domain.Artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := segmentPattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		seq, err := strconv.Atoi(match[1])
		if err != nil {
			return nil, playlist, domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "bad segment name %s: %w", entry.Name(), err)
		}
		segments = append(segments, domain.Artifact{
			JobID:          jobID,
			RelativeName:   entry.Name(),
			Kind:           domain.ArtifactSegment,
			SourcePath:     filepath.Join(dir, entry.Name()),
			SequenceNumber: seq,
		})
	}

	if len(segments) == 0 {
		return nil, playlist, domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "no segments in %s", dir)
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].SequenceNumber < segments[j].SequenceNumber
	})
	for i, seg := range segments {
		if seg.SequenceNumber != i {
			return nil, playlist, domain.Failuref(domain.ReasonPipelineInfrastructureFailure,
				"segment numbering has a gap: expected segment%d.ts, found %s", i, seg.RelativeName)
		}
	}

	playlist = domain.Artifact{
		JobID:        jobID,
		RelativeName: domain.PlaylistName,
		Kind:         domain.ArtifactPlaylist,
		SourcePath:   filepath.Join(dir, domain.PlaylistName),
	}

	refs, err := PlaylistEntries(playlist.SourcePath)
	if err != nil {
		return nil, playlist, domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "failed to read playlist: %w", err)
	}

	present := make(map[string]struct{}, len(segments))
	for _, seg := range segments {
		present[seg.RelativeName] = struct{}{}
	}
	for _, ref := range refs {
		if _, ok := present[ref]; !ok {
			return nil, playlist, domain.Failuref(domain.ReasonPipelineInfrastructureFailure, "playlist references missing segment %s", ref)
		}
	}

	return segments, playlist, nil
}

// PlaylistEntries returns the URI lines of a media playlist in order
func PlaylistEntries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var refs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		refs = append(refs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", path, err)
	}
	return refs, nil
}
