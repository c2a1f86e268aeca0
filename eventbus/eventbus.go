// Package eventbus is the process-wide facade over bus.Bus: a single
// global instance plus package-level init/publish/subscribe/queue/
// stub/expose/shutdown functions, mirroring pymq.core's module-level
// API for callers who are fine with a singleton. Library consumers
// who want an isolated instance should use bus.New/bus.Start directly
// instead of this package.
package eventbus

import (
	"context"
	"sync"

	"github.com/jeeves-cluster-organization/eventbus/bus"
)

var (
	globalMu sync.Mutex
	global   = bus.New()
)

// AdapterFactory builds the transport adapter Init binds the global
// bus to. Kept as a factory rather than a bare value so callers can
// defer constructing the broker connection until Init actually runs.
type AdapterFactory func() (bus.Adapter, error)

// InitOptions configures the global bus before Init binds it.
type InitOptions struct {
	Workers int
	Logger  bus.Logger
	Metrics bus.DispatchMetrics
}

type InitOption func(*InitOptions)

func WithWorkers(n int) InitOption          { return func(o *InitOptions) { o.Workers = n } }
func WithLogger(l bus.Logger) InitOption    { return func(o *InitOptions) { o.Logger = l } }
func WithMetrics(m bus.DispatchMetrics) InitOption { return func(o *InitOptions) { o.Metrics = m } }

// Init builds an adapter via factory and starts the global bus on it.
// Any Subscribe/Expose calls made before Init are replayed in
// registration order once the adapter is bound.
func Init(ctx context.Context, factory AdapterFactory, opts ...InitOption) error {
	o := InitOptions{Workers: 1}
	for _, apply := range opts {
		apply(&o)
	}

	globalMu.Lock()
	busOpts := []bus.Option{bus.WithWorkers(o.Workers)}
	if o.Logger != nil {
		busOpts = append(busOpts, bus.WithLogger(o.Logger))
	}
	if o.Metrics != nil {
		busOpts = append(busOpts, bus.WithMetrics(o.Metrics))
	}
	global = bus.New(busOpts...)
	b := global
	globalMu.Unlock()

	adapter, err := factory()
	if err != nil {
		return err
	}
	return b.Start(ctx, adapter)
}

// Shutdown stops the global bus. Idempotent.
func Shutdown(ctx context.Context) error {
	return current().Shutdown(ctx)
}

func current() *bus.Bus {
	globalMu.Lock()
	defer globalMu.Unlock()
	return global
}

// Publish encodes event and hands it to the global bus's adapter.
func Publish(ctx context.Context, event any, channel string) (*int, error) {
	return current().Publish(ctx, event, channel)
}

// Subscribe registers handler on channel against the global bus. Safe
// to call before Init — the subscription is buffered and replayed
// when Init binds an adapter. The returned func unsubscribes.
func Subscribe(channel string, pattern bool, handler bus.Handler) (func() error, error) {
	return current().Subscribe(channel, pattern, handler)
}

// SubscribeTyped derives the channel from T's registered codec name
// and decodes every delivered payload into T before calling handler.
func SubscribeTyped[T any](handler func(context.Context, T) error) (func() error, error) {
	return bus.SubscribeTyped(current(), handler)
}

// Topic returns a lazy pub/sub handle on the global bus.
func Topic(name string, pattern bool) bus.Topic {
	return current().Topic(name, pattern)
}

// Queue returns the named FIFO from the global bus. Requires Init to
// have already bound an adapter.
func Queue(ctx context.Context, name string) (bus.Queue, error) {
	return current().Queue(ctx, name)
}

// Stub builds an RPC client handle bound to channel on the global bus.
func Stub(channel string, opts ...bus.StubOption) (bus.Stub, error) {
	return bus.NewStub(current(), channel, opts...)
}

// StubForType derives the channel from T's registered codec name.
func StubForType[T any](opts ...bus.StubOption) (bus.Stub, error) {
	return bus.NewStubForType[T](current(), opts...)
}

// Expose registers fn as remote-callable on channel against the
// global bus. The returned func unexposes it.
func Expose(fn any, channel string) (func() error, error) {
	return current().Expose(fn, channel)
}
