package bus

import (
	"context"
	"sync"
)

// MemorySubscription is an in-process Subscription backed by a channel.
// Tests publish into it directly; redelivery on Reject is immediate.
type MemorySubscription struct {
	events chan TransferEvent

	mu       sync.Mutex
	acked    []TransferEvent
	rejected []TransferEvent
	closed   bool
}

// NewMemorySubscription creates a buffered in-memory subscription.
func NewMemorySubscription(buffer int) *MemorySubscription {
	if buffer <= 0 {
		buffer = 16
	}
	return &MemorySubscription{events: make(chan TransferEvent, buffer)}
}

// Publish enqueues an event for delivery.
func (s *MemorySubscription) Publish(event TransferEvent) {
	s.events <- event
}

// Next implements Subscription.
func (s *MemorySubscription) Next(ctx context.Context) (Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case event, ok := <-s.events:
		if !ok {
			return nil, context.Canceled
		}
		return &memoryDelivery{sub: s, event: event}, nil
	}
}

// Close implements Subscription.
func (s *MemorySubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// Acked returns every acknowledged event, in order.
func (s *MemorySubscription) Acked() []TransferEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TransferEvent, len(s.acked))
	copy(out, s.acked)
	return out
}

// Rejected returns every rejected event, in order.
func (s *MemorySubscription) Rejected() []TransferEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TransferEvent, len(s.rejected))
	copy(out, s.rejected)
	return out
}

type memoryDelivery struct {
	sub   *MemorySubscription
	event TransferEvent
}

func (d *memoryDelivery) Event() TransferEvent { return d.event }

func (d *memoryDelivery) Ack(ctx context.Context) error {
	d.sub.mu.Lock()
	defer d.sub.mu.Unlock()
	d.sub.acked = append(d.sub.acked, d.event)
	return nil
}

func (d *memoryDelivery) Reject(ctx context.Context) error {
	d.sub.mu.Lock()
	d.sub.rejected = append(d.sub.rejected, d.event)
	closed := d.sub.closed
	d.sub.mu.Unlock()
	if !closed {
		d.sub.events <- d.event
	}
	return nil
}
