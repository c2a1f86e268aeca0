package bus

import "context"

// Adapter is the contract every transport must satisfy to back a Bus.
// It owns the actual wire: dispatching incoming events to the
// RawHandler the Bus registered, publishing outgoing ones, and
// producing Queue/Topic handles scoped to its own transport.
//
// Run must block, processing incoming traffic, until ctx is canceled
// or Close is called; Close must make a blocked Run return promptly.
// Both must be safe to call from a different goroutine than the one
// driving Run.
type Adapter interface {
	// Run drives the adapter's receive loop. It returns when ctx is
	// canceled or Close is called.
	Run(ctx context.Context) error

	// Close releases the adapter's resources. Idempotent.
	Close() error

	// Publish delivers event (already codec-encoded by the caller) on
	// channel. The returned recipients count must reflect exactly how
	// many subscribers received it; an adapter that cannot count its
	// recipients must return a nil pointer rather than guess, since
	// the RPC stub treats an unknowable count as a hard error.
	Publish(ctx context.Context, event any, channel string) (recipients *int, err error)

	// Subscribe registers callback for channel. When pattern is true,
	// channel is a transport-defined glob/wildcard rather than a
	// literal name.
	Subscribe(ctx context.Context, callback RawHandler, channel string, pattern bool) error

	// Unsubscribe removes a previously registered callback. Adapters
	// that track external subscription state (e.g. a pubsub
	// connection) must only actually unsubscribe from the transport
	// once the last local callback for (channel,pattern) is gone.
	Unsubscribe(ctx context.Context, callback RawHandler, channel string, pattern bool) error

	// Queue returns the named FIFO queue handle.
	Queue(ctx context.Context, name string) (Queue, error)

	// Topic returns a lazy Topic handle; constructing one must not by
	// itself touch the transport.
	Topic(name string, pattern bool) Topic
}
