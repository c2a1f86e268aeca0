package inproc

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/jeeves-cluster-organization/eventbus/bus"
	"github.com/jeeves-cluster-organization/eventbus/errs"
)

// Queue is a blocking, unbounded, in-memory FIFO. Waiters are woken by
// closing and replacing a notify channel on every Put, the standard
// Go substitute for a condition variable that also composes with
// context cancellation and select-based timeouts.
type Queue struct {
	mu     sync.Mutex
	items  *list.List
	notify chan struct{}
}

func newQueue() *Queue {
	return &Queue{items: list.New(), notify: make(chan struct{})}
}

func (q *Queue) Put(ctx context.Context, item any, opts ...bus.PutOption) error {
	q.mu.Lock()
	q.items.PushBack(item)
	old := q.notify
	q.notify = make(chan struct{})
	q.mu.Unlock()
	close(old)
	return nil
}

func (q *Queue) tryPop() (any, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.items.Front()
	if front == nil {
		return nil, false
	}
	q.items.Remove(front)
	return front.Value, true
}

func (q *Queue) waitChan() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.notify
}

// Get honors block/timeout exactly as eventbus/bus.GetOptions
// specifies: non-blocking probe, indefinite wait bounded only by ctx,
// or a bounded wait.
func (q *Queue) Get(ctx context.Context, opts ...bus.GetOption) (any, error) {
	o := bus.GetOptions{Block: true}
	for _, apply := range opts {
		apply(&o)
	}

	if !o.Block {
		v, ok := q.tryPop()
		if !ok {
			return nil, errs.ErrEmpty
		}
		return v, nil
	}

	var timeoutCh <-chan time.Time
	if o.Timeout != nil {
		timer := time.NewTimer(*o.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		if v, ok := q.tryPop(); ok {
			return v, nil
		}
		notify := q.waitChan()
		select {
		case <-notify:
			continue
		case <-ctx.Done():
			return nil, errs.ErrEmpty
		case <-timeoutCh:
			return nil, errs.ErrEmpty
		}
	}
}

func (q *Queue) Size(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len(), nil
}

func (q *Queue) Empty(ctx context.Context) (bool, error) {
	n, err := q.Size(ctx)
	return n == 0, err
}

func (q *Queue) Free(ctx context.Context) error {
	q.mu.Lock()
	q.items.Init()
	q.mu.Unlock()
	return nil
}

var _ bus.Queue = (*Queue)(nil)
