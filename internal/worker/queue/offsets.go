package queue

import "sync"

// offsetTracker decides which offset may be committed per partition when
// messages are acknowledged out of order by concurrent slots. Only the
// contiguous prefix of acknowledged offsets is ever committed.
type offsetTracker struct {
	mu         sync.Mutex
	partitions map[int]*partitionOffsets
}

type partitionOffsets struct {
	inFlight []int64 // fetch order, ascending
	done     map[int64]bool
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{partitions: make(map[int]*partitionOffsets)}
}

// fetched records a message handed to a consumer slot.
func (t *offsetTracker) fetched(partition int, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.partitions[partition]
	if !ok {
		p = &partitionOffsets{done: make(map[int64]bool)}
		t.partitions[partition] = p
	}

	// A rebalance rewinds the partition to the last committed offset;
	// anything tracked from before is delivered again.
	if n := len(p.inFlight); n > 0 && offset <= p.inFlight[n-1] {
		p.inFlight = p.inFlight[:0]
		p.done = make(map[int64]bool)
	}
	p.inFlight = append(p.inFlight, offset)
}

// acked marks offset done and returns the highest offset that can now be
// committed, if the commit point moved.
func (t *offsetTracker) acked(partition int, offset int64) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.partitions[partition]
	if !ok || !p.tracks(offset) {
		return 0, false
	}
	p.done[offset] = true

	var (
		commit int64
		moved  bool
	)
	for len(p.inFlight) > 0 && p.done[p.inFlight[0]] {
		commit = p.inFlight[0]
		delete(p.done, commit)
		p.inFlight = p.inFlight[1:]
		moved = true
	}
	return commit, moved
}

func (p *partitionOffsets) tracks(offset int64) bool {
	for _, o := range p.inFlight {
		if o == offset {
			return true
		}
	}
	return false
}
