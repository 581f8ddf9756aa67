package queue

import (
	"context"
	"testing"
	"time"

	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startNATS(t *testing.T) string {
	t.Helper()
	opts := natstest.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	srv := natstest.RunServer(&opts)
	t.Cleanup(srv.Shutdown)
	return srv.ClientURL()
}

func dialTestNATS(t *testing.T, url string, ackWait time.Duration) *NATSBroker {
	t.Helper()
	b, err := DialNATS(context.Background(), url, "financial", 2*time.Second, ackWait)
	require.NoError(t, err)
	b.poll = 100 * time.Millisecond
	return b
}

func receiveJobID(t *testing.T, ctx context.Context, c Consumer) (*Delivery, string) {
	t.Helper()
	d, err := c.Receive(ctx)
	require.NoError(t, err)
	m, err := Decode(d.Body)
	require.NoError(t, err)
	return d, m.JobID
}

func TestNATSBroker_PublishBeforeConsumerIsKept(t *testing.T) {
	url := startNATS(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	publisher := dialTestNATS(t, url, 0)
	defer publisher.Close()
	require.NoError(t, publisher.Publish(ctx, Message{JobID: "one", Query: "q", FileReference: "a.pdf"}))

	consumer := dialTestNATS(t, url, 0)
	defer consumer.Close()
	d, id := receiveJobID(t, ctx, consumer)
	assert.Equal(t, "one", id)
	require.NoError(t, d.Ack(ctx))

	idle, stop := context.WithTimeout(ctx, 500*time.Millisecond)
	defer stop()
	_, err := consumer.Receive(idle)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "acked message is not redelivered")
}

func TestNATSBroker_NackRedelivers(t *testing.T) {
	url := startNATS(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b := dialTestNATS(t, url, 0)
	defer b.Close()
	require.NoError(t, b.Publish(ctx, Message{JobID: "one", Query: "q", FileReference: "a.pdf"}))

	d, id := receiveJobID(t, ctx, b)
	assert.Equal(t, "one", id)
	require.NoError(t, d.Nack(ctx))

	d, id = receiveJobID(t, ctx, b)
	assert.Equal(t, "one", id)
	require.NoError(t, d.Ack(ctx))
}

func TestNATSBroker_UnackedMessageIsRedeliveredToAnotherWorker(t *testing.T) {
	url := startNATS(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	crashed := dialTestNATS(t, url, 500*time.Millisecond)
	require.NoError(t, crashed.Publish(ctx, Message{JobID: "one", Query: "q", FileReference: "a.pdf"}))
	_, id := receiveJobID(t, ctx, crashed)
	assert.Equal(t, "one", id)
	require.NoError(t, crashed.Close())

	survivor := dialTestNATS(t, url, 500*time.Millisecond)
	defer survivor.Close()
	d, id := receiveJobID(t, ctx, survivor)
	assert.Equal(t, "one", id)
	require.NoError(t, d.Ack(ctx))
}

func TestNATSBroker_ReceiveHonoursCancel(t *testing.T) {
	b := dialTestNATS(t, startNATS(t), 0)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err := b.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNATSBroker_ReceiveAfterClose(t *testing.T) {
	b := dialTestNATS(t, startNATS(t), 0)
	require.NoError(t, b.Close())

	_, err := b.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
