package inproc

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/eventbus/bus"
	"github.com/jeeves-cluster-organization/eventbus/errs"
)

func TestAdapterPublishSubscribeExact(t *testing.T) {
	a := New()
	ctx := context.Background()

	var got any
	var wg sync.WaitGroup
	wg.Add(1)
	err := a.Subscribe(ctx, func(ctx context.Context, raw any) error {
		got = raw
		wg.Done()
		return nil
	}, "orders.created", false)
	require.NoError(t, err)

	n, err := a.Publish(ctx, "payload", "orders.created")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, 1, *n)

	wg.Wait()
	assert.Equal(t, "payload", got)
}

func TestAdapterPublishMatchesPattern(t *testing.T) {
	a := New()
	ctx := context.Background()

	var matched int32
	var wg sync.WaitGroup
	wg.Add(1)
	err := a.Subscribe(ctx, func(ctx context.Context, raw any) error {
		atomic.AddInt32(&matched, 1)
		wg.Done()
		return nil
	}, "orders.*", true)
	require.NoError(t, err)

	n, err := a.Publish(ctx, "payload", "orders.created")
	require.NoError(t, err)
	assert.Equal(t, 1, *n)

	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&matched))
}

func TestAdapterPublishNoSubscribersReturnsZero(t *testing.T) {
	a := New()
	n, err := a.Publish(context.Background(), "payload", "nothing.listens")
	require.NoError(t, err)
	assert.Equal(t, 0, *n)
}

func TestAdapterUnsubscribeStopsDelivery(t *testing.T) {
	a := New()
	ctx := context.Background()

	var calls int32
	h := func(ctx context.Context, raw any) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	require.NoError(t, a.Subscribe(ctx, h, "ch", false))
	require.NoError(t, a.Unsubscribe(ctx, h, "ch", false))

	_, err := a.Publish(ctx, "x", "ch")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestQueuePutGetFIFO(t *testing.T) {
	a := New()
	ctx := context.Background()
	q, err := a.Queue(ctx, "jobs")
	require.NoError(t, err)

	require.NoError(t, q.Put(ctx, "first"))
	require.NoError(t, q.Put(ctx, "second"))

	v, err := q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	v, err = q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", v)
}

func TestQueueGetNonBlockingReturnsErrEmpty(t *testing.T) {
	a := New()
	ctx := context.Background()
	q, err := a.Queue(ctx, "empty")
	require.NoError(t, err)

	_, err = q.Get(ctx, bus.WithGetBlock(false))
	assert.ErrorIs(t, err, errs.ErrEmpty)
}

func TestQueueGetBlocksUntilPut(t *testing.T) {
	a := New()
	ctx := context.Background()
	q, err := a.Queue(ctx, "blocked")
	require.NoError(t, err)

	resultCh := make(chan any, 1)
	go func() {
		v, err := q.Get(ctx)
		require.NoError(t, err)
		resultCh <- v
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Put(ctx, "arrived"))

	select {
	case v := <-resultCh:
		assert.Equal(t, "arrived", v)
	case <-time.After(time.Second):
		t.Fatal("Get never returned after Put")
	}
}

func TestQueueGetTimesOut(t *testing.T) {
	a := New()
	ctx := context.Background()
	q, err := a.Queue(ctx, "timeout")
	require.NoError(t, err)

	_, err = q.Get(ctx, bus.WithGetTimeout(30*time.Millisecond))
	assert.ErrorIs(t, err, errs.ErrEmpty)
}

func TestAdapterSameQueueNameReturnsSameQueue(t *testing.T) {
	a := New()
	ctx := context.Background()
	q1, err := a.Queue(ctx, "shared")
	require.NoError(t, err)
	q2, err := a.Queue(ctx, "shared")
	require.NoError(t, err)

	require.NoError(t, q1.Put(ctx, "x"))
	v, err := q2.Get(ctx, bus.WithGetTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}
