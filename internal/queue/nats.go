package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	natsDurable    = "analyzer-workers"
	defaultAckWait = 10 * time.Minute
)

// NATSBroker stores messages in a JetStream work-queue stream, so a message
// published before any worker subscribes is kept until one acknowledges it.
// All workers share one durable pull consumer. An unacknowledged message is
// redelivered after AckWait.
type NATSBroker struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	stream  string
	subject string
	ackWait time.Duration
	poll    time.Duration

	mu   sync.Mutex
	cons jetstream.Consumer
}

// DialNATS connects to url and declares the stream for name.
func DialNATS(ctx context.Context, url, name string, timeout, ackWait time.Duration) (*NATSBroker, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(timeout),
		nats.RetryOnFailedConnect(false),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	if ackWait <= 0 {
		ackWait = defaultAckWait
	}

	b := &NATSBroker{
		nc:      nc,
		js:      js,
		stream:  "analyzer-" + name,
		subject: "analyzer." + name,
		ackWait: ackWait,
		poll:    time.Second,
	}

	declareCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(declareCtx, jetstream.StreamConfig{
		Name:      b.stream,
		Subjects:  []string{b.subject},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to declare stream %s: %w", b.stream, err)
	}
	return b, nil
}

func (b *NATSBroker) Name() string { return "nats" }

func (b *NATSBroker) Publish(ctx context.Context, m Message) error {
	body, err := Encode(m)
	if err != nil {
		return err
	}
	if _, err := b.js.Publish(ctx, b.subject, body); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (b *NATSBroker) consumer(ctx context.Context) (jetstream.Consumer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cons != nil {
		return b.cons, nil
	}
	cons, err := b.js.CreateOrUpdateConsumer(ctx, b.stream, jetstream.ConsumerConfig{
		Durable:   natsDurable,
		AckPolicy: jetstream.AckExplicitPolicy,
		AckWait:   b.ackWait,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}
	b.cons = cons
	return cons, nil
}

func (b *NATSBroker) closed() bool {
	return b.nc.IsClosed() || b.nc.IsDraining()
}

func (b *NATSBroker) Receive(ctx context.Context) (*Delivery, error) {
	if b.closed() {
		return nil, ErrClosed
	}
	cons, err := b.consumer(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if b.closed() {
			return nil, ErrClosed
		}

		batch, err := cons.Fetch(1, jetstream.FetchMaxWait(b.poll))
		if err != nil {
			if b.closed() || errors.Is(err, nats.ErrConnectionClosed) {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("nats receive: %w", err)
		}

		for msg := range batch.Messages() {
			return NewDelivery(msg.Data(),
				func(context.Context) error { return msg.Ack() },
				func(context.Context) error { return msg.Nak() },
			), nil
		}
		if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) && !errors.Is(err, jetstream.ErrNoMessages) {
			if b.closed() {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("nats receive: %w", err)
		}
	}
}

func (b *NATSBroker) Close() error {
	return b.nc.Drain()
}
