// Package bus carries transfer lifecycle notifications from the data-movement
// subsystem into the orchestrator. Delivery is at-least-once: consumers must
// be idempotent and ack only after folding a message in.
package bus

import "context"

// TransferEvent is one notification about a remote transfer's progress.
type TransferEvent struct {
	// UUID identifies the transfer on the emitting side. It is never used
	// to correlate state here; resolution goes through the source URI.
	UUID     string
	Type     string
	Source   string
	Dest     string
	Owner    string
	TenantID string
}

// Delivery is a single received event plus its acknowledgment handles.
type Delivery interface {
	Event() TransferEvent
	// Ack marks the event as consumed. Safe to call once per delivery.
	Ack(ctx context.Context) error
	// Reject returns the event to the stream for redelivery. Used only for
	// infrastructure failures, never for business-level discards.
	Reject(ctx context.Context) error
}

// Subscription is a consumer's view of the event stream.
type Subscription interface {
	// Next blocks until an event arrives or ctx is done.
	Next(ctx context.Context) (Delivery, error)
	Close() error
}
