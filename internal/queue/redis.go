package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
)

// RedisBroker keeps pending messages in a Redis list. Receive moves a message
// to a per-queue processing list. Ack removes it from there and Nack puts it
// back on the queue. The first Receive of a broker requeues whatever a crashed
// consumer left in the processing list, so workers sharing a queue must start
// while no other worker has a job in flight, or accept that such a job runs
// twice.
type RedisBroker struct {
	client     *redis.Client
	key        string
	processing string
	poll       time.Duration

	mu        sync.Mutex
	recovered bool
}

// DialRedis connects to url (redis://host:port/db) and pings it.
func DialRedis(ctx context.Context, url, name string, timeout time.Duration) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	opts.DialTimeout = timeout
	opts.MaintNotificationsConfig = &maintnotifications.Config{
		Mode: maintnotifications.ModeDisabled,
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connect error: %w", err)
	}
	return NewRedisBroker(client, name), nil
}

// NewRedisBroker wraps an existing client.
func NewRedisBroker(client *redis.Client, name string) *RedisBroker {
	key := "analyzer:queue:" + name
	return &RedisBroker{
		client:     client,
		key:        key,
		processing: key + ":processing",
		poll:       time.Second,
	}
}

func (b *RedisBroker) Name() string { return "redis" }

func (b *RedisBroker) Publish(ctx context.Context, m Message) error {
	body, err := Encode(m)
	if err != nil {
		return err
	}
	if err := b.client.LPush(ctx, b.key, body).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Recover moves every entry of the processing list back onto the queue,
// oldest first, and reports how many it moved.
func (b *RedisBroker) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := b.client.LMove(ctx, b.processing, b.key, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("redis recover: %w", err)
		}
		moved++
	}
}

func (b *RedisBroker) recoverOnce(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.recovered {
		return nil
	}
	if _, err := b.Recover(ctx); err != nil {
		return err
	}
	b.recovered = true
	return nil
}

func (b *RedisBroker) Receive(ctx context.Context) (*Delivery, error) {
	if err := b.recoverOnce(ctx); err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return nil, ErrClosed
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		val, err := b.client.BLMove(ctx, b.key, b.processing, "RIGHT", "LEFT", b.poll).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if errors.Is(err, redis.ErrClosed) {
			return nil, ErrClosed
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("redis receive: %w", err)
		}

		body := []byte(val)
		return NewDelivery(body,
			func(ctx context.Context) error {
				return b.client.LRem(ctx, b.processing, 1, val).Err()
			},
			func(ctx context.Context) error {
				_, err := b.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
					p.LRem(ctx, b.processing, 1, val)
					p.RPush(ctx, b.key, val)
					return nil
				})
				return err
			},
		), nil
	}
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
