// Package queue implements the job transports consumed by the worker pool.
//
// Every transport hands out deliveries that must be acknowledged exactly once.
// Undecodable or invalid payloads are still delivered, with Err set, so that
// the consumer can acknowledge and drop them.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cuongbtq/hls-transcoder/internal/worker/domain"
)

var (
	// ErrQueueClosed is returned by Dequeue after Close
	ErrQueueClosed = errors.New("queue closed")

	// ErrAlreadyAcknowledged is returned when a delivery is acknowledged twice
	ErrAlreadyAcknowledged = errors.New("delivery already acknowledged")
)

// JobQueue is the transport abstraction shared by producers and the worker pool
type JobQueue interface {
	Enqueue(ctx context.Context, job domain.VideoJob) error
	// Dequeue blocks until a delivery is available, ctx is done or the queue is closed
	Dequeue(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	DeadLetter(ctx context.Context, dl domain.DeadLetter) error
	Close() error
}

// Recoverer is implemented by transports that can return messages left
// in flight by a previous run of the same consumer.
type Recoverer interface {
	Recover(ctx context.Context) (int, error)
}

// Delivery is one dequeued message and its receipt
type Delivery struct {
	Job domain.VideoJob
	// Err is set when the payload could not be decoded or failed validation
	Err error
	Raw []byte

	receipt any
	acked   atomic.Bool
}

// Acked reports whether the delivery has been acknowledged
func (d *Delivery) Acked() bool {
	return d.acked.Load()
}

// claimAck flips the delivery to acknowledged, returning false if it already was.
func (d *Delivery) claimAck() bool {
	return d.acked.CompareAndSwap(false, true)
}

func newDelivery(codec Codec, raw []byte, receipt any) *Delivery {
	d := &Delivery{Raw: raw, receipt: receipt}

	job, err := codec.Decode(raw)
	if err != nil {
		d.Err = fmt.Errorf("%w: %v", domain.ErrInvalidJob, err)
		return d
	}
	d.Job = job
	d.Err = job.Validate()
	return d
}
