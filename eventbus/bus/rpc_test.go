package bus_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/eventbus/bus"
	"github.com/jeeves-cluster-organization/eventbus/transport/inproc"
)

func newRunningBus(t *testing.T) *bus.Bus {
	t.Helper()
	b := bus.New(bus.WithWorkers(2))
	require.NoError(t, b.Start(context.Background(), inproc.New()))
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })
	return b
}

func voidFunction() {}

func TestRPCArityMismatchProducesTypeError(t *testing.T) {
	b := newRunningBus(t)

	_, err := b.Expose(voidFunction, "void_function")
	require.NoError(t, err)

	stub, err := bus.NewStub(b, "void_function")
	require.NoError(t, err)

	_, err = stub.Call(context.Background(), 1, 2, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "void_function takes 0 positional arguments but 3 were given")
}

func TestRPCSimpleFunction(t *testing.T) {
	b := newRunningBus(t)
	add := func(a, c int) int { return a + c }
	_, err := b.Expose(add, "add")
	require.NoError(t, err)

	stub, err := bus.NewStub(b, "add")
	require.NoError(t, err)

	result, err := stub.Call(context.Background(), 2, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 5, result)
}

func TestRPCMultiParamFunction(t *testing.T) {
	b := newRunningBus(t)
	join := func(sep string, parts []any) string {
		out := ""
		for i, p := range parts {
			if i > 0 {
				out += sep
			}
			out += fmt.Sprintf("%v", p)
		}
		return out
	}
	_, err := b.Expose(join, "join")
	require.NoError(t, err)

	stub, err := bus.NewStub(b, "join")
	require.NoError(t, err)

	result, err := stub.Call(context.Background(), "-", []any{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, "a-b-c", result)
}

func TestRPCListParamFunction(t *testing.T) {
	b := newRunningBus(t)
	sum := func(nums []int) int {
		total := 0
		for _, n := range nums {
			total += n
		}
		return total
	}
	_, err := b.Expose(sum, "sum")
	require.NoError(t, err)

	stub, err := bus.NewStub(b, "sum")
	require.NoError(t, err)

	result, err := stub.Call(context.Background(), []int{1, 2, 3, 4})
	require.NoError(t, err)
	assert.EqualValues(t, 10, result)
}

func TestRPCEchoRoundTrip(t *testing.T) {
	b := newRunningBus(t)
	echo := func(msg string) string { return msg }
	_, err := b.Expose(echo, "echo")
	require.NoError(t, err)

	stub, err := bus.NewStub(b, "echo")
	require.NoError(t, err)

	result, err := stub.Call(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "ping", result)
}

func TestRPCRemoteErrorIsReturnedAsError(t *testing.T) {
	b := newRunningBus(t)
	failing := func() error { return errors.New("boom") }
	_, err := b.Expose(failing, "failing")
	require.NoError(t, err)

	stub, err := bus.NewStub(b, "failing")
	require.NoError(t, err)

	_, err = stub.Call(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRPCNoRemoteReturnsNoSuchRemoteError(t *testing.T) {
	b := newRunningBus(t)
	stub, err := bus.NewStub(b, "nobody.listens")
	require.NoError(t, err)

	_, err = stub.Call(context.Background())
	require.Error(t, err)
}

func TestRPCTimeoutProducesTimeoutResultType(t *testing.T) {
	b := newRunningBus(t)
	slow := func() string {
		time.Sleep(200 * time.Millisecond)
		return "late"
	}
	_, err := b.Expose(slow, "slow")
	require.NoError(t, err)

	stub, err := bus.NewStub(b, "slow", bus.WithStubTimeout(20*time.Millisecond))
	require.NoError(t, err)

	responses, err := stub.RPC(context.Background())
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.True(t, responses[0].Error)
	assert.Equal(t, "TimeoutError", responses[0].ResultType)
}

func TestRPCContextLeadingParam(t *testing.T) {
	b := newRunningBus(t)
	withCtx := func(ctx context.Context, name string) string { return "hello " + name }
	_, err := b.Expose(withCtx, "withCtx")
	require.NoError(t, err)

	stub, err := bus.NewStub(b, "withCtx")
	require.NoError(t, err)

	result, err := stub.Call(context.Background(), "world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", result)
}

func TestExposeTwiceOnSameChannelConflicts(t *testing.T) {
	b := newRunningBus(t)
	fn := func() {}
	_, err := b.Expose(fn, "dup")
	require.NoError(t, err)

	_, err = b.Expose(fn, "dup")
	assert.Error(t, err)
}

func TestStubRefusesPatternChannel(t *testing.T) {
	b := newRunningBus(t)
	_, err := b.Subscribe("patterned.*", true, func(ctx context.Context, payload any) error { return nil })
	require.NoError(t, err)

	_, err = bus.NewStub(b, "patterned.*")
	assert.Error(t, err)
}
