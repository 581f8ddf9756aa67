// Package queue carries job messages from the API process to workers.
// Redis, NATS and RabbitMQ backends share the Broker contract; which one
// is used, if any, is decided once at startup by Probe.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrClosed is returned by Receive after the broker has been closed.
	ErrClosed = errors.New("queue closed")
	// ErrMalformed is returned when a message body cannot be decoded.
	ErrMalformed = errors.New("malformed queue message")
)

// Message is the unit of work published for a queued job.
type Message struct {
	JobID         string    `msgpack:"job_id"`
	Query         string    `msgpack:"query"`
	FileReference string    `msgpack:"file_path"`
	EnqueuedAt    time.Time `msgpack:"enqueued_at"`
}

// Encode serializes m with msgpack.
func Encode(m Message) ([]byte, error) {
	b, err := msgpack.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return b, nil
}

// Decode parses a message body. A body without a job id is malformed.
func Decode(body []byte) (Message, error) {
	var m Message
	if err := msgpack.Unmarshal(body, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if m.JobID == "" {
		return Message{}, fmt.Errorf("%w: missing job_id", ErrMalformed)
	}
	return m, nil
}

// Publisher enqueues messages.
type Publisher interface {
	Publish(ctx context.Context, m Message) error
}

// Consumer hands out deliveries one at a time. Receive blocks until a
// message is available, ctx is done or the consumer is closed.
type Consumer interface {
	Receive(ctx context.Context) (*Delivery, error)
}

// Broker is a connected queue backend.
type Broker interface {
	Publisher
	Consumer
	Name() string
	Close() error
}

// Delivery is one received message body. Exactly one of Ack or Nack should
// be called; Nack makes the message available for redelivery.
type Delivery struct {
	Body []byte
	ack  func(ctx context.Context) error
	nack func(ctx context.Context) error
}

// NewDelivery builds a Delivery from backend specific acknowledgement funcs.
func NewDelivery(body []byte, ack, nack func(ctx context.Context) error) *Delivery {
	return &Delivery{Body: body, ack: ack, nack: nack}
}

func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

func (d *Delivery) Nack(ctx context.Context) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(ctx)
}
