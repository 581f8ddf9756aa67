package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPBroker uses a durable RabbitMQ queue with manual acknowledgements.
type AMQPBroker struct {
	conn     *amqp.Connection
	queue    string
	prefetch int

	mu         sync.Mutex // guards pub and deliveries
	pub        *amqp.Channel
	consume    *amqp.Channel
	deliveries <-chan amqp.Delivery
}

// DialAMQP connects to url and declares the queue.
func DialAMQP(url, name string, timeout time.Duration, prefetch int) (*AMQPBroker, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Dial: amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		name,  // queue name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	return &AMQPBroker{conn: conn, queue: name, prefetch: prefetch, pub: ch}, nil
}

func (b *AMQPBroker) Name() string { return "amqp" }

func (b *AMQPBroker) Publish(ctx context.Context, m Message) error {
	body, err := Encode(m)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	err = b.pub.PublishWithContext(ctx,
		"",      // default exchange
		b.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/msgpack",
			DeliveryMode: amqp.Persistent,
			Timestamp:    m.EnqueuedAt,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (b *AMQPBroker) consumer() (<-chan amqp.Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deliveries != nil {
		return b.deliveries, nil
	}

	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.Qos(b.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}
	msgs, err := ch.Consume(
		b.queue, // queue
		"",      // consumer
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}
	b.consume = ch
	b.deliveries = msgs
	return msgs, nil
}

func (b *AMQPBroker) Receive(ctx context.Context) (*Delivery, error) {
	msgs, err := b.consumer()
	if err != nil {
		if errors.Is(err, amqp.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-msgs:
		if !ok {
			return nil, ErrClosed
		}
		return NewDelivery(d.Body,
			func(context.Context) error { return d.Ack(false) },
			func(context.Context) error { return d.Nack(false, true) },
		), nil
	}
}

func (b *AMQPBroker) Close() error {
	return b.conn.Close()
}
