package eventbus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/eventbus/bus"
	"github.com/jeeves-cluster-organization/eventbus/transport/inproc"
)

func TestInitPublishSubscribeShutdown(t *testing.T) {
	ctx := context.Background()
	err := Init(ctx, func() (bus.Adapter, error) { return inproc.New(), nil })
	require.NoError(t, err)
	defer Shutdown(ctx)

	var received int32
	done := make(chan struct{})
	unsub, err := Subscribe("facade.channel", false, func(ctx context.Context, payload any) error {
		atomic.AddInt32(&received, 1)
		close(done)
		return nil
	})
	require.NoError(t, err)
	defer unsub()

	_, err = Publish(ctx, "hello", "facade.channel")
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscriber was never invoked")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&received))
}

func TestExposeAndStubRoundTrip(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, Init(ctx, func() (bus.Adapter, error) { return inproc.New(), nil }))
	defer Shutdown(ctx)

	unexpose, err := Expose(func(a, b int) int { return a + b }, "facade.add")
	require.NoError(t, err)
	defer unexpose()

	stub, err := Stub("facade.add")
	require.NoError(t, err)

	result, err := stub.Call(ctx)
	_ = result
	assert.Error(t, err) // wrong arity: 0 args given, 2 expected

	result, err = stub.Call(ctx, 2, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 5, result)
}
