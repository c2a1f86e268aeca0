package middleware

import (
	"context"

	"github.com/jeeves-cluster-organization/eventbus/bus"
)

// LoggingMiddleware logs every publish attempt and its outcome,
// adapted from the teacher's LoggingMiddleware which logged around
// CommBus dispatch instead of around a transport adapter.
type LoggingMiddleware struct {
	logger bus.Logger
}

func NewLoggingMiddleware(logger bus.Logger) *LoggingMiddleware {
	if logger == nil {
		logger = bus.NewStdLogger()
	}
	return &LoggingMiddleware{logger: logger}
}

func (m *LoggingMiddleware) Before(ctx context.Context, channel string, event any) (any, error) {
	m.logger.Debug("eventbus_publish_start", "channel", channel)
	return event, nil
}

func (m *LoggingMiddleware) After(ctx context.Context, channel string, event any, recipients *int, err error) (*int, error) {
	if err != nil {
		m.logger.Warn("eventbus_publish_failed", "channel", channel, "error", err.Error())
		return recipients, err
	}
	n := 0
	if recipients != nil {
		n = *recipients
	}
	m.logger.Info("eventbus_publish_done", "channel", channel, "recipients", n)
	return recipients, err
}

var _ Middleware = (*LoggingMiddleware)(nil)
