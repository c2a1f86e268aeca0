package hub

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jeeves-cluster-organization/eventbus/bus"
	"github.com/jeeves-cluster-organization/eventbus/codec"
	"github.com/jeeves-cluster-organization/eventbus/errs"
)

// Queue is a Redis list backed FIFO: LPUSH to enqueue, BRPOP/RPOP to
// dequeue, mirroring RedisQueue in the original provider it's
// grounded on.
type Queue struct {
	client    *redis.Client
	name      string
	key       string
	rpcExpire time.Duration
}

// Put serializes item through the same codec wire format Publish
// uses. Ephemeral RPC reply queues (named with the "__rpc_" prefix the
// stub allocates them with) get a TTL applied after every push, so a
// stub that gave up waiting still lets the key expire instead of
// leaking it forever — the hub equivalent of RedisSkeletonMethod's
// response-channel expiry.
func (q *Queue) Put(ctx context.Context, item any, opts ...bus.PutOption) error {
	o := bus.PutOptions{Block: true}
	for _, apply := range opts {
		apply(&o)
	}

	doc, err := codec.Encode(item)
	if err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return err
	}
	if strings.HasPrefix(q.name, "__rpc_") {
		q.client.Expire(ctx, q.key, q.rpcExpire)
	}
	return nil
}

func (q *Queue) Get(ctx context.Context, opts ...bus.GetOption) (any, error) {
	o := bus.GetOptions{Block: true}
	for _, apply := range opts {
		apply(&o)
	}

	var raw []string
	var err error
	if !o.Block || (o.Timeout != nil && *o.Timeout <= 0) {
		var v string
		v, err = q.client.RPop(ctx, q.key).Result()
		raw = []string{q.key, v}
	} else {
		timeout := time.Duration(0)
		if o.Timeout != nil {
			timeout = *o.Timeout
		}
		raw, err = q.client.BRPop(ctx, timeout, q.key).Result()
	}

	if err == redis.Nil {
		return nil, errs.ErrEmpty
	}
	if err != nil {
		return nil, err
	}
	if len(raw) < 2 {
		return nil, errs.ErrEmpty
	}

	var doc any
	if err := json.Unmarshal([]byte(raw[len(raw)-1]), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (q *Queue) Size(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	return int(n), err
}

func (q *Queue) Empty(ctx context.Context) (bool, error) {
	n, err := q.Size(ctx)
	return n == 0, err
}

func (q *Queue) Free(ctx context.Context) error {
	return q.client.Del(ctx, q.key).Err()
}

var _ bus.Queue = (*Queue)(nil)
