// Package status tracks job state for clients polling the API.
//
// Status is advisory. The playlist object remains the only authoritative
// completion signal, so every tracker error is safe to log and ignore.
package status

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultTTL       = 24 * time.Hour
	DefaultQueuedTTL = time.Hour
)

// Snapshot is the tracked state of one job
type Snapshot struct {
	Status   string
	Progress *float64
}

// Tracker stores job status and progress
type Tracker interface {
	SetStatus(ctx context.Context, jobID, status string) error
	SetProgress(ctx context.Context, jobID string, progress float64) error
	// Get returns an empty Status for jobs that are not tracked
	Get(ctx context.Context, jobID string) (Snapshot, error)
	// MarkQueued records a submission, returning false if one was already recorded
	MarkQueued(ctx context.Context, jobID string) (bool, error)
	Clear(ctx context.Context, jobID string) error
}

func StatusKey(jobID string) string {
	return "job:" + jobID + ":status"
}

func ProgressKey(jobID string) string {
	return "job:" + jobID + ":progress"
}

func QueuedKey(jobID string) string {
	return "job:" + jobID + ":queued"
}

// Noop discards every update
type Noop struct{}

func (Noop) SetStatus(context.Context, string, string) error    { return nil }
func (Noop) SetProgress(context.Context, string, float64) error { return nil }
func (Noop) Get(context.Context, string) (Snapshot, error)      { return Snapshot{}, nil }
func (Noop) MarkQueued(context.Context, string) (bool, error)   { return true, nil }
func (Noop) Clear(context.Context, string) error                { return nil }

// Memory keeps state in process, for local runs and tests. Only leases expire.
type Memory struct {
	mu       sync.Mutex
	statuses map[string]string
	progress map[string]float64
	queued   map[string]struct{}
	leases   map[string]lease
}

func NewMemory() *Memory {
	return &Memory{
		statuses: make(map[string]string),
		progress: make(map[string]float64),
		queued:   make(map[string]struct{}),
		leases:   make(map[string]lease),
	}
}

func (m *Memory) SetStatus(ctx context.Context, jobID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[jobID] = status
	return nil
}

func (m *Memory) SetProgress(ctx context.Context, jobID string, progress float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[jobID] = clamp(progress)
	return nil
}

func (m *Memory) Get(ctx context.Context, jobID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{Status: m.statuses[jobID]}
	if p, ok := m.progress[jobID]; ok {
		snap.Progress = &p
	}
	return snap, nil
}

func (m *Memory) MarkQueued(ctx context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queued[jobID]; ok {
		return false, nil
	}
	m.queued[jobID] = struct{}{}
	return true, nil
}

func (m *Memory) Clear(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, jobID)
	delete(m.progress, jobID)
	delete(m.queued, jobID)
	return nil
}

func clamp(progress float64) float64 {
	switch {
	case progress < 0:
		return 0
	case progress > 1:
		return 1
	default:
		return progress
	}
}
