// Package middleware provides cross-cutting Publish interceptors —
// logging and circuit breaking — adapted from the teacher's CommBus
// middleware chain (keyed there by message type, here by channel).
package middleware

import (
	"context"

	"github.com/jeeves-cluster-organization/eventbus/bus"
)

// Middleware intercepts a Publish call: Before runs before the
// adapter is reached and may veto the publish by returning a nil
// event; After runs once the adapter has responded (or failed) and
// may translate the error or recipient count for the caller.
type Middleware interface {
	Before(ctx context.Context, channel string, event any) (any, error)
	After(ctx context.Context, channel string, event any, recipients *int, err error) (*int, error)
}

// Wrap decorates adapter with a middleware chain applied around
// Publish. Subscriber dispatch already isolates per-callback failures
// in the dispatcher, so middleware's cross-cutting concerns belong at
// the publish boundary, not the delivery boundary.
func Wrap(adapter bus.Adapter, chain ...Middleware) bus.Adapter {
	if len(chain) == 0 {
		return adapter
	}
	return &wrapped{Adapter: adapter, chain: chain}
}

type wrapped struct {
	bus.Adapter
	chain []Middleware
}

func (w *wrapped) Publish(ctx context.Context, event any, channel string) (*int, error) {
	current := event
	for _, mw := range w.chain {
		next, err := mw.Before(ctx, channel, current)
		if err != nil {
			return nil, err
		}
		if next == nil {
			blocked := 0
			return &blocked, nil
		}
		current = next
	}

	recipients, err := w.Adapter.Publish(ctx, current, channel)

	for i := len(w.chain) - 1; i >= 0; i-- {
		recipients, err = w.chain[i].After(ctx, channel, current, recipients, err)
	}
	return recipients, err
}

var _ bus.Adapter = (*wrapped)(nil)
