package status

import (
	"context"
	"time"
)

// Leaser hands a job to one attempt at a time. A lease expires after its TTL
// unless the holder refreshes it, so a crashed holder blocks others for at
// most one TTL.
type Leaser interface {
	// AcquireLease returns false while another holder owns the job
	AcquireLease(ctx context.Context, jobID, holder string, ttl time.Duration) (bool, error)
	// RefreshLease extends the lease, returning false if holder lost it
	RefreshLease(ctx context.Context, jobID, holder string, ttl time.Duration) (bool, error)
	// ReleaseLease drops the lease if holder still owns it
	ReleaseLease(ctx context.Context, jobID, holder string) error
}

func LeaseKey(jobID string) string {
	return "job:" + jobID + ":lease"
}

type lease struct {
	holder  string
	expires time.Time
}

func (m *Memory) AcquireLease(ctx context.Context, jobID, holder string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if l, ok := m.leases[jobID]; ok && l.holder != holder && now.Before(l.expires) {
		return false, nil
	}
	m.leases[jobID] = lease{holder: holder, expires: now.Add(ttl)}
	return true, nil
}

func (m *Memory) RefreshLease(ctx context.Context, jobID, holder string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	l, ok := m.leases[jobID]
	if !ok || l.holder != holder || !now.Before(l.expires) {
		return false, nil
	}
	m.leases[jobID] = lease{holder: holder, expires: now.Add(ttl)}
	return true, nil
}

func (m *Memory) ReleaseLease(ctx context.Context, jobID, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.leases[jobID]; ok && l.holder == holder {
		delete(m.leases, jobID)
	}
	return nil
}
