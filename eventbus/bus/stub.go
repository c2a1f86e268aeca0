package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jeeves-cluster-organization/eventbus/codec"
	"github.com/jeeves-cluster-organization/eventbus/errs"
	"github.com/jeeves-cluster-organization/eventbus/observability"
)

// Stub is a handle for invoking an exposed remote function. Call is
// the single-result form (returns the first response or an error);
// RPC is the raw multi-result form used for fan-out calls.
type Stub interface {
	Call(ctx context.Context, args ...any) (any, error)
	RPC(ctx context.Context, args ...any) ([]RPCResponse, error)
}

// StubOptions configures a Stub's wait behavior.
type StubOptions struct {
	Timeout time.Duration
	Multi   bool
}

type StubOption func(*StubOptions)

// WithStubTimeout bounds how long the stub waits for each individual
// response (not the call as a whole — with n recipients, the worst
// case is n*timeout, matching the original DefaultStubMethod).
func WithStubTimeout(d time.Duration) StubOption { return func(o *StubOptions) { o.Timeout = d } }

// WithStubMulti collects every recipient's response instead of
// returning after the first.
func WithStubMulti(multi bool) StubOption { return func(o *StubOptions) { o.Multi = multi } }

type stub struct {
	bus     *Bus
	channel string
	opts    StubOptions
}

// NewStub builds a Stub bound to channel. Pattern-subscribed channels
// are refused: a pattern match makes the recipient count, and
// therefore how many responses to wait for, ambiguous.
func NewStub(b *Bus, channel string, opts ...StubOption) (Stub, error) {
	if b.registry.hasPattern(channel) {
		return nil, errs.NewPatternChannelForRPCError(channel)
	}
	o := StubOptions{Timeout: 30 * time.Second}
	for _, apply := range opts {
		apply(&o)
	}
	return &stub{bus: b, channel: channel, opts: o}, nil
}

// NewStubForType derives the channel from T's registered codec name,
// the same way SubscribeTyped does for subscribers.
func NewStubForType[T any](b *Bus, opts ...StubOption) (Stub, error) {
	channel, ok := codec.ChannelOfValue(*new(T))
	if !ok {
		return nil, errs.NewInvalidListenerError(fmt.Sprintf("type %T was never registered with codec.Register", *new(T)))
	}
	return NewStub(b, channel, opts...)
}

func (s *stub) RPC(ctx context.Context, args ...any) ([]RPCResponse, error) {
	ctx, span := observability.StartSpan(ctx, "eventbus.rpc_call", s.channel)
	defer span.End()
	start := time.Now()
	outcome := "ok"
	defer func() {
		observability.ObserveRPC(s.channel, outcome, time.Since(start).Seconds())
	}()

	replyQueue := "__rpc_" + uuid.NewString()
	q, err := s.bus.Queue(ctx, replyQueue)
	if err != nil {
		outcome = "error"
		return nil, err
	}
	defer func() { _ = q.Free(context.Background()) }()

	req := RPCRequest{Fn: s.channel, ReplyQueue: replyQueue, Args: args}
	n, err := s.bus.Publish(ctx, req, s.channel)
	if err != nil {
		outcome = "error"
		return nil, err
	}
	if n == nil {
		outcome = "error"
		return nil, errs.NewRecipientCountUnavailableError(s.channel)
	}
	count := *n
	if count == 0 {
		outcome = "no_remote"
		return nil, errs.NewNoSuchRemoteError(s.channel)
	}

	responses := make([]RPCResponse, 0, count)
	for i := 0; i < count; i++ {
		item, getErr := q.Get(ctx, WithGetTimeout(s.opts.Timeout))
		if getErr != nil {
			outcome = "timeout"
			responses = append(responses, RPCResponse{
				Fn:         s.channel,
				Result:     fmt.Sprintf("Gave up waiting after %s", s.opts.Timeout),
				ResultType: "TimeoutError",
				Error:      true,
			})
			if !s.opts.Multi {
				break
			}
			continue
		}

		resp, ok := item.(RPCResponse)
		if !ok {
			decoded, decErr := codec.DecodeAs[RPCResponse](item)
			if decErr != nil {
				outcome = "error"
				return nil, decErr
			}
			resp = decoded
		}
		if resp.Error && outcome == "ok" {
			outcome = "remote_error"
		}
		responses = append(responses, resp)
		if !s.opts.Multi {
			break
		}
	}
	return responses, nil
}

func (s *stub) Call(ctx context.Context, args ...any) (any, error) {
	responses, err := s.RPC(ctx, args...)
	if err != nil {
		return nil, err
	}
	if len(responses) == 0 {
		return nil, errs.NewNoSuchRemoteError(s.channel)
	}
	resp := responses[0]
	if resp.Error {
		return nil, errs.NewRemoteInvocationError(s.channel, resp.ResultType, []any{resp.Result})
	}
	return decodeResult(resp)
}

// decodeResult resolves an RPCResponse's result through the codec using
// the result_type it was tagged with. On a serializing transport
// resp.Result is still a generic document (the hub adapter round-trips
// replies through JSON), so the concrete type has to be recovered here
// rather than assumed from resp.Result's runtime type.
func decodeResult(resp RPCResponse) (any, error) {
	if resp.ResultType == "" {
		return resp.Result, nil
	}
	if t, ok := codec.TypeOf(resp.ResultType); ok {
		return codec.Decode(resp.Result, t)
	}
	return codec.Decode(resp.Result, nil)
}
