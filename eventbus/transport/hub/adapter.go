// Package hub implements a Redis-backed eventbus.bus.Adapter: pub/sub
// channels plus list-backed queues on a shared Redis instance, the Go
// analogue of pymq's RedisEventBus/RedisQueue provider and the pack's
// common choice of broker client (github.com/redis/go-redis/v9).
package hub

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/jeeves-cluster-organization/eventbus/bus"
	"github.com/jeeves-cluster-organization/eventbus/codec"
)

const defaultRPCExpire = 5 * time.Minute

type subKey struct {
	channel string
	pattern bool
}

// Adapter backs a Bus with a Redis pub/sub connection and list-backed
// queues, all namespaced under a shared channel prefix so multiple
// independent buses can share one Redis instance.
type Adapter struct {
	client        *redis.Client
	namespace     string
	channelPrefix string
	rpcExpire     time.Duration
	logger        bus.Logger

	mu          sync.Mutex
	subscribers map[subKey][]bus.RawHandler
	pubsub      *redis.PubSub
}

type options struct {
	namespace string
	rpcExpire time.Duration
	logger    bus.Logger
}

type Option func(*options)

func WithNamespace(ns string) Option       { return func(o *options) { o.namespace = ns } }
func WithRPCExpire(d time.Duration) Option { return func(o *options) { o.rpcExpire = d } }
func WithLogger(l bus.Logger) Option       { return func(o *options) { o.logger = l } }

// New builds an Adapter over an already-configured *redis.Client; the
// caller owns the client's lifecycle (dial options, TLS, auth).
func New(client *redis.Client, opts ...Option) *Adapter {
	o := options{namespace: "global", rpcExpire: defaultRPCExpire, logger: bus.NoopLogger()}
	for _, apply := range opts {
		apply(&o)
	}
	return &Adapter{
		client:        client,
		namespace:     o.namespace,
		channelPrefix: "__eventbus:" + o.namespace + ":",
		rpcExpire:     o.rpcExpire,
		logger:        o.logger,
		subscribers:   make(map[subKey][]bus.RawHandler),
	}
}

// Run opens the Redis pub/sub connection, resubscribes to whatever
// was registered before Run started, and listens until ctx is
// canceled or Close is called. A receive error triggers an exponential backoff retry
// rather than tearing down the adapter, since a transient Redis
// hiccup shouldn't take the whole bus down.
func (a *Adapter) Run(ctx context.Context) error {
	a.mu.Lock()
	a.pubsub = a.client.PubSub()
	a.resubscribeLocked(ctx)
	a.mu.Unlock()

	bo := backoff.NewExponentialBackOff()

	for {
		a.mu.Lock()
		ps := a.pubsub
		a.mu.Unlock()
		if ps == nil {
			return nil
		}
		msg, err := ps.Receive(ctx)
		if err != nil {
			a.mu.Lock()
			closed := a.pubsub == nil
			a.mu.Unlock()
			if ctx.Err() != nil || closed {
				return nil
			}
			wait := bo.NextBackOff()
			a.logger.Warn("hub_receive_error", "error", err.Error(), "retry_in", wait.String())
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		bo.Reset()

		switch m := msg.(type) {
		case *redis.Message:
			a.deliver(ctx, m.Channel, "", m.Payload)
		case *redis.PMessage:
			a.deliver(ctx, m.Channel, m.Pattern, m.Payload)
		}
	}
}

func (a *Adapter) deliver(ctx context.Context, redisChannel, redisPattern, payload string) {
	pattern := redisPattern != ""
	key := redisChannel
	if pattern {
		key = redisPattern
	}
	channel := strings.TrimPrefix(key, a.channelPrefix)

	a.mu.Lock()
	handlers := append([]bus.RawHandler(nil), a.subscribers[subKey{channel, pattern}]...)
	a.mu.Unlock()

	if len(handlers) == 0 {
		a.logger.Warn("hub_inconsistent_state_no_listeners", "channel", channel)
		return
	}

	var doc any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		a.logger.Error("hub_decode_failed", "channel", channel, "error", err.Error())
		return
	}

	for _, h := range handlers {
		go func(handler bus.RawHandler) {
			if err := handler(ctx, doc); err != nil {
				a.logger.Warn("hub_subscriber_failed", "channel", channel, "error", err.Error())
			}
		}(h)
	}
}

// Close unsubscribes from everything and tears down the pub/sub
// connection. Idempotent.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pubsub == nil {
		return nil
	}
	_ = a.pubsub.PUnsubscribe(context.Background())
	_ = a.pubsub.Unsubscribe(context.Background())
	err := a.pubsub.Close()
	a.pubsub = nil
	return err
}

// Publish returns Redis PUBLISH's own recipient count, which is exact
// and lets the RPC stub use this adapter without any extra
// bookkeeping.
func (a *Adapter) Publish(ctx context.Context, event any, channel string) (*int, error) {
	if err := codec.ValidateTopicName(channel); err != nil {
		return nil, err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	n, err := a.client.Publish(ctx, a.channelPrefix+channel, data).Result()
	if err != nil {
		return nil, err
	}
	recipients := int(n)
	return &recipients, nil
}

// Subscribe only actually subscribes on Redis at the true first local
// registration for (channel,pattern); every subsequent local
// subscriber piggybacks on the existing Redis subscription. This is
// the external-subscription state machine the Adapter contract
// requires of hub-like transports.
func (a *Adapter) Subscribe(ctx context.Context, callback bus.RawHandler, channel string, pattern bool) error {
	if !pattern {
		if err := codec.ValidateTopicName(channel); err != nil {
			return err
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	key := subKey{channel, pattern}
	first := len(a.subscribers[key]) == 0
	a.subscribers[key] = append(a.subscribers[key], callback)

	if !first || a.pubsub == nil {
		return nil
	}

	redisChannel := a.channelPrefix + channel
	if pattern {
		return a.pubsub.PSubscribe(ctx, redisChannel)
	}
	return a.pubsub.Subscribe(ctx, redisChannel)
}

// Unsubscribe only actually unsubscribes from Redis once the last
// local callback for (channel,pattern) is removed.
func (a *Adapter) Unsubscribe(ctx context.Context, callback bus.RawHandler, channel string, pattern bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := subKey{channel, pattern}
	entries := a.subscribers[key]
	if len(entries) > 0 {
		entries = entries[:len(entries)-1]
	}
	if len(entries) == 0 {
		delete(a.subscribers, key)
	} else {
		a.subscribers[key] = entries
		return nil
	}

	if a.pubsub == nil {
		return nil
	}

	redisChannel := a.channelPrefix + channel
	if pattern {
		return a.pubsub.PUnsubscribe(ctx, redisChannel)
	}
	return a.pubsub.Unsubscribe(ctx, redisChannel)
}

func (a *Adapter) resubscribeLocked(ctx context.Context) {
	var channels, patterns []string
	for key := range a.subscribers {
		redisChannel := a.channelPrefix + key.channel
		if key.pattern {
			patterns = append(patterns, redisChannel)
		} else {
			channels = append(channels, redisChannel)
		}
	}
	if len(channels) > 0 {
		_ = a.pubsub.Subscribe(ctx, channels...)
	}
	if len(patterns) > 0 {
		_ = a.pubsub.PSubscribe(ctx, patterns...)
	}
}

// Queue returns a Redis list-backed FIFO namespaced under this
// adapter's channel prefix.
func (a *Adapter) Queue(ctx context.Context, name string) (bus.Queue, error) {
	if err := codec.ValidateTopicName(name); err != nil {
		return nil, err
	}
	return &Queue{client: a.client, name: name, key: a.channelPrefix + name, rpcExpire: a.rpcExpire}, nil
}

// Topic returns a thin adapter-level Topic for callers talking to the
// adapter directly instead of through a Bus.
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
