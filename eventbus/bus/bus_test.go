package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter is a minimal in-process Adapter double for exercising
// Bus without pulling in eventbus/transport/inproc.
type fakeAdapter struct {
	mu      sync.Mutex
	subs    map[string][]RawHandler
	queues  map[string]*memQueue
	closed  bool
	running chan struct{}
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		subs:    make(map[string][]RawHandler),
		queues:  make(map[string]*memQueue),
		running: make(chan struct{}),
	}
}

func (a *fakeAdapter) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-a.running:
	}
	return nil
}

func (a *fakeAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		close(a.running)
	}
	return nil
}

func (a *fakeAdapter) Publish(ctx context.Context, event any, channel string) (*int, error) {
	a.mu.Lock()
	handlers := append([]RawHandler(nil), a.subs[channel]...)
	a.mu.Unlock()
	for _, h := range handlers {
		_ = h(ctx, event)
	}
	n := len(handlers)
	return &n, nil
}

func (a *fakeAdapter) Subscribe(ctx context.Context, callback RawHandler, channel string, pattern bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subs[channel] = append(a.subs[channel], callback)
	return nil
}

func (a *fakeAdapter) Unsubscribe(ctx context.Context, callback RawHandler, channel string, pattern bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	entries := a.subs[channel]
	if len(entries) > 0 {
		a.subs[channel] = entries[:len(entries)-1]
	}
	return nil
}

func (a *fakeAdapter) Queue(ctx context.Context, name string) (Queue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	q, ok := a.queues[name]
	if !ok {
		q = &memQueue{notify: make(chan struct{})}
		a.queues[name] = q
	}
	return q, nil
}

func (a *fakeAdapter) Topic(name string, pattern bool) Topic {
	return &lazyTopic{name: name, pattern: pattern}
}

var _ Adapter = (*fakeAdapter)(nil)

// memQueue is a tiny blocking FIFO good enough for tests.
type memQueue struct {
	mu     sync.Mutex
	items  []any
	notify chan struct{}
}

func (q *memQueue) Put(ctx context.Context, item any, opts ...PutOption) error {
	q.mu.Lock()
	q.items = append(q.items, item)
	old := q.notify
	q.notify = make(chan struct{})
	q.mu.Unlock()
	close(old)
	return nil
}

func (q *memQueue) Get(ctx context.Context, opts ...GetOption) (any, error) {
	o := defaultGetOptions(opts)
	deadline := time.Now().Add(2 * time.Second)
	if o.Timeout != nil {
		deadline = time.Now().Add(*o.Timeout)
	}
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return v, nil
		}
		notify := q.notify
		q.mu.Unlock()

		if !o.Block {
			return nil, errors.New("empty")
		}
		select {
		case <-notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Until(deadline)):
			return nil, errors.New("timeout")
		}
	}
}

func (q *memQueue) Size(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

func (q *memQueue) Empty(ctx context.Context) (bool, error) {
	n, err := q.Size(ctx)
	return n == 0, err
}

func (q *memQueue) Free(ctx context.Context) error {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
	return nil
}

func TestBusStartPublishSubscribe(t *testing.T) {
	b := New(WithWorkers(2))
	adapter := newFakeAdapter()
	ctx := context.Background()

	require.NoError(t, b.Start(ctx, adapter))
	defer b.Shutdown(ctx)

	var received int32
	done := make(chan struct{})
	unsub, err := b.Subscribe("orders.created", false, func(ctx context.Context, payload any) error {
		atomic.AddInt32(&received, 1)
		close(done)
		return nil
	})
	require.NoError(t, err)
	defer unsub()

	n, err := b.Publish(ctx, map[string]any{"id": "1"}, "orders.created")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, 1, *n)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&received))
}

func TestBusPublishBeforeStartReturnsBusNotSet(t *testing.T) {
	b := New()
	_, err := b.Publish(context.Background(), "x", "some.channel")
	assert.Error(t, err)
}

func TestBusSubscribeBeforeStartIsDeferredAndReplayed(t *testing.T) {
	b := New()
	adapter := newFakeAdapter()

	var called int32
	_, err := b.Subscribe("deferred.channel", false, func(ctx context.Context, payload any) error {
		atomic.AddInt32(&called, 1)
		return nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Start(ctx, adapter))
	defer b.Shutdown(ctx)

	_, err = b.Publish(ctx, "hello", "deferred.channel")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&called) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestBusShutdownIsIdempotent(t *testing.T) {
	b := New()
	adapter := newFakeAdapter()
	ctx := context.Background()
	require.NoError(t, b.Start(ctx, adapter))

	require.NoError(t, b.Shutdown(ctx))
	require.NoError(t, b.Shutdown(ctx))
}

func TestBusStartTwiceReturnsAlreadyRunning(t *testing.T) {
	b := New()
	ctx := context.Background()
	require.NoError(t, b.Start(ctx, newFakeAdapter()))
	defer b.Shutdown(ctx)

	err := b.Start(ctx, newFakeAdapter())
	assert.Error(t, err)
}

func TestDispatcherIsolatesPanickingSubscriber(t *testing.T) {
	b := New(WithWorkers(1))
	adapter := newFakeAdapter()
	ctx := context.Background()
	require.NoError(t, b.Start(ctx, adapter))
	defer b.Shutdown(ctx)

	var goodCalled int32
	_, err := b.Subscribe("panics", false, func(ctx context.Context, payload any) error {
		panic("boom")
	})
	require.NoError(t, err)

	_, err = b.Subscribe("panics", false, func(ctx context.Context, payload any) error {
		atomic.AddInt32(&goodCalled, 1)
		return nil
	})
	require.NoError(t, err)

	_, err = b.Publish(ctx, "x", "panics")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&goodCalled) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestTopicPublishBeforeStartThenAfter(t *testing.T) {
	b := New()
	topic := b.Topic("lazy.topic", false)
	assert.Equal(t, "lazy.topic", topic.Name())
	assert.False(t, topic.Pattern())

	ctx := context.Background()
	n, err := topic.Publish(ctx, "payload")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, b.Start(ctx, newFakeAdapter()))
	defer b.Shutdown(ctx)

	n, err = topic.Publish(ctx, "payload")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
