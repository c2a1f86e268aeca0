package bus

import (
	"context"
	"fmt"
	"time"
)

type dispatchTask struct {
	sub *subscription
	raw any
}

// dispatcher runs a fixed-size worker pool that invokes subscriber
// callbacks off the adapter's own receive goroutine, so one slow or
// misbehaving subscriber never blocks delivery to the others or stalls
// the adapter's Run loop. Each callback is isolated: a panic or
// returned error is logged and the worker moves on to its next task.
type dispatcher struct {
	tasks   chan dispatchTask
	done    chan struct{}
	logger  Logger
	metrics DispatchMetrics
}

// DispatchMetrics is the instrumentation seam the dispatcher reports
// through; eventbus/observability supplies the Prometheus-backed
// implementation, tests can pass a no-op.
type DispatchMetrics interface {
	ObserveDispatch(channel string, err error, seconds float64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveDispatch(string, error, float64) {}

func newDispatcher(workers int, logger Logger, metrics DispatchMetrics) *dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = NoopLogger()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	d := &dispatcher{
		tasks:   make(chan dispatchTask, workers*64),
		done:    make(chan struct{}),
		logger:  logger,
		metrics: metrics,
	}
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

func (d *dispatcher) worker() {
	for task := range d.tasks {
		d.invoke(task)
	}
}

func (d *dispatcher) invoke(task dispatchTask) {
	start := time.Now()
	err := d.safeCall(task.sub.handler, task.raw)
	d.metrics.ObserveDispatch(task.sub.channel, err, time.Since(start).Seconds())
	if err != nil {
		d.logger.Warn("subscriber_failed", "channel", task.sub.channel, "error", err.Error())
	}
}

func (d *dispatcher) safeCall(h RawHandler, raw any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("eventbus: subscriber panicked: %v", r)
		}
	}()
	return h(context.Background(), raw)
}

// submit enqueues a task for every matched subscriber. It never blocks
// the adapter indefinitely: the channel is generously buffered, and a
// full buffer means the caller is publishing faster than the pool can
// drain — submit then falls back to a direct synchronous call so
// delivery is never silently dropped.
func (d *dispatcher) submit(subs []*subscription, raw any) {
	for _, s := range subs {
		task := dispatchTask{sub: s, raw: raw}
		select {
		case d.tasks <- task:
		default:
			d.invoke(task)
		}
	}
}

func (d *dispatcher) close() {
	close(d.tasks)
}
