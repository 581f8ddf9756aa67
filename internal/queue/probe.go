package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Options selects the backend to probe.
type Options struct {
	Backend  string // redis, nats, amqp or none
	URL      string
	Name     string
	Timeout  time.Duration
	Prefetch int           // amqp consumer prefetch
	AckWait  time.Duration // nats redelivery delay for unacknowledged messages
}

// Dial connects to the configured backend.
func Dial(ctx context.Context, opts Options) (Broker, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	switch opts.Backend {
	case "redis":
		return DialRedis(ctx, opts.URL, opts.Name, opts.Timeout)
	case "nats":
		return DialNATS(ctx, opts.URL, opts.Name, opts.Timeout, opts.AckWait)
	case "amqp":
		return DialAMQP(opts.URL, opts.Name, opts.Timeout, opts.Prefetch)
	case "none", "":
		return nil, fmt.Errorf("queue backend disabled")
	default:
		return nil, fmt.Errorf("unsupported queue backend %q", opts.Backend)
	}
}

// Probe tries once to reach the configured backend. It never returns an
// error: an unreachable or disabled backend is logged and reported as false.
func Probe(ctx context.Context, opts Options, logger *slog.Logger) (Broker, bool) {
	broker, err := Dial(ctx, opts)
	if err != nil {
		logger.Warn("queue backend unavailable, running jobs inline",
			"backend", opts.Backend,
			"error", err,
		)
		return nil, false
	}
	logger.Info("queue backend connected", "backend", broker.Name(), "queue", opts.Name)
	return broker, true
}
