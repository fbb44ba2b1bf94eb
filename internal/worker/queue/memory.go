package queue

import (
	"context"
	"sync"

	"github.com/cuongbtq/hls-transcoder/internal/worker/domain"
)

// Memory is a channel-backed queue for local runs and tests. Nothing
// survives a restart.
type Memory struct {
	codec     Codec
	messages  chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	acked       []*Delivery
	deadLetters []domain.DeadLetter
}

// NewMemory creates a queue buffering up to capacity messages
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 64
	}
	return &Memory{
		codec:    JSONCodec{},
		messages: make(chan []byte, capacity),
		closed:   make(chan struct{}),
	}
}

func (m *Memory) Enqueue(ctx context.Context, job domain.VideoJob) error {
	data, err := m.codec.Encode(job)
	if err != nil {
		return err
	}
	return m.EnqueueRaw(ctx, data)
}

// EnqueueRaw pushes an already encoded payload
func (m *Memory) EnqueueRaw(ctx context.Context, data []byte) error {
	select {
	case <-m.closed:
		return ErrQueueClosed
	default:
	}

	select {
	case m.messages <- data:
		return nil
	case <-m.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Dequeue(ctx context.Context) (*Delivery, error) {
	select {
	case data := <-m.messages:
		return newDelivery(m.codec, data, nil), nil
	case <-m.closed:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Memory) Ack(ctx context.Context, d *Delivery) error {
	if !d.claimAck() {
		return ErrAlreadyAcknowledged
	}
	m.mu.Lock()
	m.acked = append(m.acked, d)
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeadLetter(ctx context.Context, dl domain.DeadLetter) error {
	m.mu.Lock()
	m.deadLetters = append(m.deadLetters, dl)
	m.mu.Unlock()
	return nil
}

// Acked returns the acknowledged deliveries in acknowledgment order
func (m *Memory) Acked() []*Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Delivery(nil), m.acked...)
}

// DeadLetters returns the recorded dead letters
func (m *Memory) DeadLetters() []domain.DeadLetter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DeadLetter(nil), m.deadLetters...)
}

// Len returns the number of messages waiting to be dequeued
func (m *Memory) Len() int {
	return len(m.messages)
}

func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}
