// Package bus implements the broker-agnostic event bus engine: the
// subscriber registry, dispatcher, RPC stub/skeleton, and the Adapter
// contract that lets any transport plug into all three.
package bus

import (
	"context"
	"time"
)

// Handler processes a payload already decoded into its declared Go
// type (or into the dynamic map/slice shape when no type was
// registered for the channel).
type Handler func(ctx context.Context, payload any) error

// RawHandler is what the registry actually stores and what adapters
// invoke: the dispatcher sits between RawHandler and Handler so decode
// failures and panics are isolated per subscriber instead of taking
// down the dispatch loop.
type RawHandler func(ctx context.Context, raw any) error

// Topic is the lazy pub/sub primitive: constructing one never touches
// the adapter, only publishing through it does. It has no Subscribe
// method; subscriptions go through Bus.Subscribe.
type Topic interface {
	Name() string
	Pattern() bool
	Publish(ctx context.Context, event any) (int, error)
}

// PutOptions controls how Queue.Put behaves when the backing queue
// has bounded capacity (most transports don't bound it, but the
// option exists for the ones that do).
type PutOptions struct {
	Block   bool
	Timeout *time.Duration
}

type PutOption func(*PutOptions)

func WithPutBlock(block bool) PutOption { return func(o *PutOptions) { o.Block = block } }
func WithPutTimeout(d time.Duration) PutOption {
	return func(o *PutOptions) { o.Timeout = &d }
}

// GetOptions controls Queue.Get's blocking behavior. Block=true with a
// nil Timeout waits indefinitely (bounded only by ctx); Block=false
// performs a single non-blocking probe regardless of Timeout.
type GetOptions struct {
	Block   bool
	Timeout *time.Duration
}

type GetOption func(*GetOptions)

func WithGetBlock(block bool) GetOption { return func(o *GetOptions) { o.Block = block } }
func WithGetTimeout(d time.Duration) GetOption {
	return func(o *GetOptions) { o.Timeout = &d }
}

func defaultGetOptions(opts []GetOption) GetOptions {
	o := GetOptions{Block: true}
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

func defaultPutOptions(opts []PutOption) PutOptions {
	o := PutOptions{Block: true}
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

// Queue is a named FIFO. Two calls to Bus.Queue with the same name
// address the same backing queue.
type Queue interface {
	Put(ctx context.Context, item any, opts ...PutOption) error
	Get(ctx context.Context, opts ...GetOption) (any, error)
	Size(ctx context.Context) (int, error)
	Empty(ctx context.Context) (bool, error)
	Free(ctx context.Context) error
}

// RPCRequest is the envelope published on an RPC channel.
type RPCRequest struct {
	Fn         string `codec:"fn"`
	ReplyQueue string `codec:"callback_queue"`
	Args       []any  `codec:"args"`
}

// RPCResponse is the envelope a skeleton publishes back to the stub's
// reply queue.
type RPCResponse struct {
	Fn         string `codec:"fn"`
	Result     any    `codec:"result"`
	ResultType string `codec:"result_type"`
	Error      bool   `codec:"error"`
}

// Logger is the structured logging seam every bus component accepts,
// so callers can plug in their own logging library without the core
// depending on one.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}
