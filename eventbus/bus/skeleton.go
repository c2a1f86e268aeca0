package bus

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jeeves-cluster-organization/eventbus/codec"
	"github.com/jeeves-cluster-organization/eventbus/errs"
)

var errType = reflect.TypeOf((*error)(nil)).Elem()
var ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()

// Expose registers fn as a remote-callable function on channel. fn may
// optionally take a context.Context as its first parameter, and may
// optionally return (result, error) or just error or nothing. Calling
// Expose twice for the same channel, or exposing a channel that
// already carries pattern subscribers, returns ChannelConflictError /
// PatternChannelForRPCError respectively.
func (b *Bus) Expose(fn any, channel string) (func() error, error) {
	fnVal := reflect.ValueOf(fn)
	fnType := fnVal.Type()
	if fnType.Kind() != reflect.Func {
		return nil, errs.NewInvalidListenerError("Expose requires a function value")
	}

	b.mu.Lock()
	if _, exists := b.exposed[channel]; exists {
		b.mu.Unlock()
		return nil, errs.NewChannelConflictError(channel)
	}
	if b.registry.hasPattern(channel) {
		b.mu.Unlock()
		return nil, errs.NewPatternChannelForRPCError(channel)
	}
	b.exposed[channel] = struct{}{}
	b.mu.Unlock()

	raw := func(ctx context.Context, doc any) error {
		req, err := codec.DecodeAs[RPCRequest](doc)
		if err != nil {
			return err
		}
		resp := invokeExposed(ctx, fnVal, fnType, req)
		return b.replyTo(ctx, req.ReplyQueue, resp)
	}

	unsub, err := b.subscribeRaw(channel, false, raw)
	if err != nil {
		b.mu.Lock()
		delete(b.exposed, channel)
		b.mu.Unlock()
		return nil, err
	}

	unexpose := func() error {
		b.mu.Lock()
		delete(b.exposed, channel)
		b.mu.Unlock()
		return unsub()
	}
	return unexpose, nil
}

func (b *Bus) replyTo(ctx context.Context, replyQueue string, resp RPCResponse) error {
	q, err := b.Queue(ctx, replyQueue)
	if err != nil {
		b.logger.Warn("rpc_reply_queue_unavailable", "queue", replyQueue, "error", err.Error())
		return nil
	}
	if err := q.Put(ctx, resp); err != nil {
		b.logger.Warn("rpc_reply_publish_failed", "queue", replyQueue, "error", err.Error())
	}
	return nil
}

func invokeExposed(ctx context.Context, fnVal reflect.Value, fnType reflect.Type, req RPCRequest) (resp RPCResponse) {
	resp.Fn = req.Fn
	defer func() {
		if r := recover(); r != nil {
			resp.Error = true
			resp.ResultType = "RuntimeError"
			resp.Result = fmt.Sprintf("%v", r)
		}
	}()

	numIn := fnType.NumIn()
	hasCtx := numIn > 0 && fnType.In(0) == ctxType
	paramStart := 0
	if hasCtx {
		paramStart = 1
	}
	expected := numIn - paramStart

	if !fnType.IsVariadic() && len(req.Args) != expected {
		resp.Error = true
		resp.ResultType = "TypeError"
		resp.Result = fmt.Sprintf("%s takes %d positional arguments but %d were given", req.Fn, expected, len(req.Args))
		return resp
	}

	in := make([]reflect.Value, 0, numIn)
	if hasCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, arg := range req.Args {
		var paramType reflect.Type
		if fnType.IsVariadic() && paramStart+i >= numIn-1 {
			paramType = fnType.In(numIn - 1).Elem()
		} else {
			paramType = fnType.In(paramStart + i)
		}
		v, err := codec.Decode(arg, paramType)
		if err != nil {
			resp.Error = true
			resp.ResultType = "TypeError"
			resp.Result = err.Error()
			return resp
		}
		in = append(in, reflect.ValueOf(v))
	}

	out := fnVal.Call(in)
	return buildResponse(req.Fn, fnType, out)
}

func buildResponse(fn string, fnType reflect.Type, out []reflect.Value) RPCResponse {
	resp := RPCResponse{Fn: fn}
	numOut := fnType.NumOut()
	if numOut == 0 {
		return resp
	}

	lastIsErr := fnType.Out(numOut - 1).Implements(errType)
	if lastIsErr && !out[numOut-1].IsNil() {
		err := out[numOut-1].Interface().(error)
		resp.Error = true
		if name, ok := codec.NameOf(err); ok {
			resp.ResultType = name
		} else {
			resp.ResultType = "RuntimeError"
		}
		resp.Result = err.Error()
		return resp
	}
	if lastIsErr && numOut == 1 {
		return resp
	}

	result := out[0].Interface()
	resp.Result = result
	if name, ok := codec.NameOf(result); ok {
		resp.ResultType = name
	} else {
		resp.ResultType = fmt.Sprintf("%T", result)
	}
	return resp
}
