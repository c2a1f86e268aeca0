package bus

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/jeeves-cluster-organization/eventbus/codec"
	"github.com/jeeves-cluster-organization/eventbus/errs"
	"github.com/jeeves-cluster-organization/eventbus/observability"
)

type lifecycleState int32

const (
	stateUnbound lifecycleState = iota
	stateRunning
	stateClosed
)

// deferredAction is an action recorded while the bus is unbound, to be
// replayed in order once Start binds a real adapter — the same
// buffering behavior as pymq.core's module-level
// _uninitialized_subscribers/_uninitialized_remote_fns.
type deferredAction func(b *Bus) error

// Options configures a Bus at construction time.
type Options struct {
	Workers int
	Logger  Logger
	Metrics DispatchMetrics
}

type Option func(*Options)

func WithWorkers(n int) Option       { return func(o *Options) { o.Workers = n } }
func WithLogger(l Logger) Option     { return func(o *Options) { o.Logger = l } }
func WithMetrics(m DispatchMetrics) Option { return func(o *Options) { o.Metrics = m } }

// Bus is a single bound-or-unbound event bus instance. The package
// also exposes a process-wide singleton (see the eventbus facade
// package) built on top of this type, for callers who are fine with
// global state; library consumers who aren't can construct their own
// with New.
type Bus struct {
	mu       sync.Mutex
	state    int32 // lifecycleState, guarded via atomic for reads
	adapter  Adapter
	registry *registry
	dispatch *dispatcher
	deferred []deferredAction
	exposed  map[string]struct{}
	logger   Logger
	cancel   context.CancelFunc
	runDone  chan struct{}
	workers  int
	metrics  DispatchMetrics
}

// New constructs an unbound Bus. Call Start to bind it to an adapter.
func New(opts ...Option) *Bus {
	o := Options{Workers: 1}
	for _, apply := range opts {
		apply(&o)
	}
	if o.Logger == nil {
		o.Logger = NewStdLogger()
	}
	return &Bus{
		state:    int32(stateUnbound),
		registry: newRegistry(),
		exposed:  make(map[string]struct{}),
		logger:   o.Logger,
		workers:  o.Workers,
		metrics:  o.Metrics,
	}
}

func (b *Bus) currentState() lifecycleState {
	return lifecycleState(atomic.LoadInt32(&b.state))
}

// Start binds the bus to adapter and launches its receive loop. It is
// a programmer error to call Start on an already-running bus.
func (b *Bus) Start(ctx context.Context, adapter Adapter) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.currentState() == stateRunning {
		return errs.ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.adapter = adapter
	b.cancel = cancel
	b.dispatch = newDispatcher(b.workers, b.logger, b.metrics)
	b.runDone = make(chan struct{})
	atomic.StoreInt32(&b.state, int32(stateRunning))

	deferred := b.deferred
	b.deferred = nil

	go func() {
		defer close(b.runDone)
		if err := adapter.Run(runCtx); err != nil {
			b.logger.Error("adapter_run_failed", "error", err.Error())
		}
	}()

	for _, action := range deferred {
		if err := action(b); err != nil {
			b.logger.Error("deferred_action_failed", "error", err.Error())
		}
	}
	return nil
}

// Shutdown stops the bus: it signals the adapter to close, waits for
// its run loop to return (bounded by ctx), and clears all local state.
// Idempotent — calling it again is a no-op.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.currentState() != stateRunning {
		b.mu.Unlock()
		return nil
	}
	atomic.StoreInt32(&b.state, int32(stateClosed))
	adapter := b.adapter
	cancel := b.cancel
	runDone := b.runDone
	dispatch := b.dispatch
	b.mu.Unlock()

	var closeErr error
	if adapter != nil {
		closeErr = adapter.Close()
	}
	if cancel != nil {
		cancel()
	}
	if runDone != nil {
		select {
		case <-runDone:
		case <-ctx.Done():
		}
	}
	if dispatch != nil {
		dispatch.close()
	}

	b.mu.Lock()
	b.registry.clear()
	b.deferred = nil
	b.exposed = make(map[string]struct{})
	b.mu.Unlock()

	return closeErr
}

// Publish encodes event and hands it to the adapter. While unbound it
// returns ErrBusNotSet.
func (b *Bus) Publish(ctx context.Context, event any, channel string) (*int, error) {
	ctx, span := observability.StartSpan(ctx, "eventbus.publish", channel)
	defer span.End()

	if b.currentState() != stateRunning {
		return nil, errs.ErrBusNotSet
	}
	doc, err := codec.Encode(event)
	if err != nil {
		return nil, err
	}
	n, err := b.adapter.Publish(ctx, doc, channel)
	observability.ObservePublish(channel, n, err)
	return n, err
}

// Subscribe registers handler on channel, deriving the dynamic
// (map/slice) decode path. It works before Start: the registration is
// buffered and replayed when Start binds an adapter.
func (b *Bus) Subscribe(channel string, pattern bool, handler Handler) (func() error, error) {
	raw := func(ctx context.Context, doc any) error {
		payload, err := codec.Decode(doc, nil)
		if err != nil {
			return err
		}
		return handler(ctx, payload)
	}
	return b.subscribeRaw(channel, pattern, raw)
}

// subscribeTypedRaw is used by the package-level generic SubscribeTyped
// helper, which already knows how to decode into its concrete type.
func (b *Bus) subscribeTypedRaw(channel string, pattern bool, raw RawHandler) (func() error, error) {
	return b.subscribeRaw(channel, pattern, raw)
}

// subscribeRaw wires raw into the bus's worker pool rather than handing
// it straight to the adapter: the deliver closure the adapter actually
// invokes only submits a dispatch task and returns, so a slow or
// panicking subscriber can never block the adapter's own receive loop.
func (b *Bus) subscribeRaw(channel string, pattern bool, raw RawHandler) (func() error, error) {
	var sub *subscription
	var deliver RawHandler
	var cancelled bool
	action := func(bb *Bus) error {
		if cancelled {
			return nil
		}
		sub = bb.registry.add(channel, pattern, raw)
		deliver = func(ctx context.Context, doc any) error {
			bb.dispatch.submit([]*subscription{sub}, doc)
			return nil
		}
		return bb.adapter.Subscribe(context.Background(), deliver, channel, pattern)
	}

	// unsub cancels a still-buffered registration, or removes a replayed
	// or live one from the registry and the adapter.
	unsub := func() error {
		b.mu.Lock()
		if sub == nil {
			cancelled = true
			b.mu.Unlock()
			return nil
		}
		b.mu.Unlock()
		b.registry.remove(sub)
		return b.adapter.Unsubscribe(context.Background(), deliver, channel, pattern)
	}

	b.mu.Lock()
	running := b.currentState() == stateRunning
	if !running {
		b.deferred = append(b.deferred, action)
		b.mu.Unlock()
		return unsub, nil
	}
	b.mu.Unlock()

	if err := action(b); err != nil {
		return nil, err
	}
	return unsub, nil
}

// SubscribeTyped derives the channel from T's registered codec name
// and decodes every delivered payload into T before calling handler.
func SubscribeTyped[T any](b *Bus, handler func(context.Context, T) error) (func() error, error) {
	channel, ok := codec.ChannelOfValue(*new(T))
	if !ok {
		return nil, errs.NewInvalidListenerError(fmt.Sprintf("type %T was never registered with codec.Register", *new(T)))
	}
	targetType := reflect.TypeOf(*new(T))
	raw := func(ctx context.Context, doc any) error {
		v, err := codec.Decode(doc, targetType)
		if err != nil {
			return err
		}
		typed, ok := v.(T)
		if !ok {
			return errs.NewUnknownGenericError(targetType.String())
		}
		return handler(ctx, typed)
	}
	return b.subscribeTypedRaw(channel, false, raw)
}

// Topic returns a lazy pub/sub handle. Safe to call before Start:
// publishing through it while the bus is unbound is a no-op that
// reports 0 recipients.
func (b *Bus) Topic(name string, pattern bool) Topic {
	return &lazyTopic{bus: b, name: name, pattern: pattern}
}

type lazyTopic struct {
	bus     *Bus
	name    string
	pattern bool
}

func (t *lazyTopic) Name() string    { return t.name }
func (t *lazyTopic) Pattern() bool   { return t.pattern }
func (t *lazyTopic) Publish(ctx context.Context, event any) (int, error) {
	if t.bus.currentState() != stateRunning {
		return 0, nil
	}
	n, err := t.bus.Publish(ctx, event, t.name)
	if err != nil {
		return 0, err
	}
	if n == nil {
		return 0, nil
	}
	return *n, nil
}

// Queue returns the named FIFO. Requires a running bus.
func (b *Bus) Queue(ctx context.Context, name string) (Queue, error) {
	if b.currentState() != stateRunning {
		return nil, errs.ErrBusNotSet
	}
	q, err := b.adapter.Queue(ctx, name)
	if err != nil {
		return nil, err
	}
	return &observedQueue{Queue: q, name: name}, nil
}

// observedQueue decorates an adapter's Queue with depth sampling so
// eventbus_queue_depth reflects reality without every adapter having to
// report it itself.
type observedQueue struct {
	Queue
	name string
}

func (q *observedQueue) Put(ctx context.Context, item any, opts ...PutOption) error {
	err := q.Queue.Put(ctx, item, opts...)
	q.sample(ctx)
	return err
}

func (q *observedQueue) Get(ctx context.Context, opts ...GetOption) (any, error) {
	v, err := q.Queue.Get(ctx, opts...)
	q.sample(ctx)
	return v, err
}

func (q *observedQueue) sample(ctx context.Context) {
	if n, err := q.Queue.Size(ctx); err == nil {
		observability.ObserveQueueDepth(q.name, n)
	}
}
