package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeBroker routes publishes to in-memory queues shared by executor and consumer.
type fakeBroker struct {
	mu         sync.Mutex
	queues     map[string]chan amqp.Delivery
	closed     bool
	publishErr error
	qos        int
	nextTag    uint64
	acker      *fakeAcker
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{queues: make(map[string]chan amqp.Delivery), acker: &fakeAcker{}}
}

func (b *fakeBroker) queue(name string) chan amqp.Delivery {
	q, ok := b.queues[name]
	if !ok {
		q = make(chan amqp.Delivery, 64)
		b.queues[name] = q
	}
	return q
}

func (b *fakeBroker) Qos(prefetchCount, _ int, _ bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.qos = prefetchCount
	return nil
}

func (b *fakeBroker) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if name == "" {
		name = fmt.Sprintf("amq.gen-%d", len(b.queues))
	}
	b.queue(name)
	return amqp.Queue{Name: name}, nil
}

func (b *fakeBroker) Consume(name, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue(name), nil
}

func (b *fakeBroker) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	if b.closed {
		return amqp.ErrClosed
	}
	b.nextTag++
	b.queue(key) <- amqp.Delivery{
		Acknowledger:  b.acker,
		DeliveryTag:   b.nextTag,
		CorrelationId: msg.CorrelationId,
		ReplyTo:       msg.ReplyTo,
		Headers:       msg.Headers,
		Body:          msg.Body,
	}
	return nil
}

func (b *fakeBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, q := range b.queues {
		close(q)
	}
	return nil
}

type fakeAcker struct {
	mu       sync.Mutex
	acked    []uint64
	rejected []uint64
}

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcker) Nack(tag uint64, _ bool, _ bool) error { return nil }

func (a *fakeAcker) Reject(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejected = append(a.rejected, tag)
	return nil
}

func (a *fakeAcker) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acked), len(a.rejected)
}

func startConsumer(t *testing.T, broker *fakeBroker, handler HandlerFunc) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	c := newConsumer(broker, "tasks", 8, handler, zap.NewNop())
	go func() { _ = c.Run(ctx) }()
	return cancel
}

func TestAMQP_RoundTrip(t *testing.T) {
	broker := newFakeBroker()
	cancel := startConsumer(t, broker, func(_ context.Context, task Task) (Result, error) {
		return Result{ItemID: task.ItemID, Processed: task.ItemID != "held"}, nil
	})
	defer cancel()

	exec, err := newAMQPExecutor(nil, broker, "tasks", zap.NewNop())
	require.NoError(t, err)

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()

	ids := []string{"a", "held", "c"}
	handles := make([]Handle, 0, len(ids))
	for _, id := range ids {
		h, err := exec.Submit(ctx, Task{ItemID: id, HolderID: "u"})
		require.NoError(t, err)
		handles = append(handles, h)
	}

	var got []Result
	for _, h := range handles {
		res, err := h.Await(ctx)
		require.NoError(t, err)
		got = append(got, res)
	}

	assert.Equal(t, []Result{
		{ItemID: "a", Processed: true},
		{ItemID: "held", Processed: false},
		{ItemID: "c", Processed: true},
	}, got)

	acked, rejected := broker.acker.counts()
	assert.Equal(t, 3, acked)
	assert.Zero(t, rejected)
	assert.Equal(t, 8, broker.qos)

	require.NoError(t, exec.Close())
}

func TestAMQP_HandlerErrorBecomesRemoteError(t *testing.T) {
	broker := newFakeBroker()
	cancel := startConsumer(t, broker, func(context.Context, Task) (Result, error) {
		return Result{}, errors.New("store unavailable")
	})
	defer cancel()

	exec, err := newAMQPExecutor(nil, broker, "tasks", zap.NewNop())
	require.NoError(t, err)
	defer exec.Close()

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()

	h, err := exec.Submit(ctx, Task{ItemID: "a"})
	require.NoError(t, err)

	_, err = h.Await(ctx)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "a", remote.ItemID)
	assert.Contains(t, remote.Message, "store unavailable")
}

func TestAMQP_UndecodableTaskIsRejected(t *testing.T) {
	broker := newFakeBroker()
	cancel := startConsumer(t, broker, echoHandler)
	defer cancel()

	_, err := broker.QueueDeclare("tasks", true, false, false, false, nil)
	require.NoError(t, err)
	require.NoError(t, broker.PublishWithContext(context.Background(), "", "tasks", false, false, amqp.Publishing{Body: []byte("{not json")}))

	assert.Eventually(t, func() bool {
		_, rejected := broker.acker.counts()
		return rejected == 1
	}, time.Second, 5*time.Millisecond)
}

func TestAMQP_PublishFailure(t *testing.T) {
	broker := newFakeBroker()
	exec, err := newAMQPExecutor(nil, broker, "tasks", zap.NewNop())
	require.NoError(t, err)
	defer exec.Close()

	broker.mu.Lock()
	broker.publishErr = errors.New("channel closed")
	broker.mu.Unlock()

	_, err = exec.Submit(context.Background(), Task{ItemID: "a"})
	assert.ErrorContains(t, err, "failed to publish task a")

	exec.mu.Lock()
	defer exec.mu.Unlock()
	assert.Empty(t, exec.pending)
}

func TestAMQP_CloseFailsPending(t *testing.T) {
	broker := newFakeBroker()
	exec, err := newAMQPExecutor(nil, broker, "tasks", zap.NewNop())
	require.NoError(t, err)

	h, err := exec.Submit(context.Background(), Task{ItemID: "a"})
	require.NoError(t, err)

	require.NoError(t, exec.Close())

	_, err = h.Await(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	_, err = exec.Submit(context.Background(), Task{ItemID: "b"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestAMQP_TaskIsPublishedAsJSON(t *testing.T) {
	broker := newFakeBroker()
	exec, err := newAMQPExecutor(nil, broker, "tasks", zap.NewNop())
	require.NoError(t, err)
	defer exec.Close()

	_, err = exec.Submit(context.Background(), Task{ItemID: "a", HolderID: "u"})
	require.NoError(t, err)

	broker.mu.Lock()
	tasks := broker.queues["tasks"]
	broker.mu.Unlock()

	d := <-tasks
	var task Task
	require.NoError(t, json.Unmarshal(d.Body, &task))
	assert.Equal(t, Task{ItemID: "a", HolderID: "u"}, task)
	assert.NotEmpty(t, d.CorrelationId)
	assert.Equal(t, exec.replyTo, d.ReplyTo)
}

func TestConsumer_HandlesUpToPrefetchConcurrently(t *testing.T) {
	broker := newFakeBroker()
	release := make(chan struct{})
	var inFlight, peak atomic.Int32
	c := newConsumer(broker, "tasks", 3, func(_ context.Context, task Task) (Result, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return Result{ItemID: task.ItemID, Processed: true}, nil
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	for i := 0; i < 5; i++ {
		body, err := json.Marshal(Task{ItemID: fmt.Sprintf("b%d", i)})
		require.NoError(t, err)
		require.NoError(t, broker.PublishWithContext(context.Background(), "", "tasks", false, false, amqp.Publishing{Body: body}))
	}

	assert.Eventually(t, func() bool { return inFlight.Load() == 3 }, time.Second, 5*time.Millisecond)
	acked, _ := broker.acker.counts()
	assert.Zero(t, acked)

	close(release)
	assert.Eventually(t, func() bool {
		acked, _ := broker.acker.counts()
		return acked == 5
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), peak.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestConsumer_ReplyEncodeFailureStillAcks(t *testing.T) {
	encodeReply = func(any) ([]byte, error) { return nil, errors.New("unsupported value") }
	t.Cleanup(func() { encodeReply = json.Marshal })

	broker := newFakeBroker()
	cancel := startConsumer(t, broker, echoHandler)
	defer cancel()

	body, err := json.Marshal(Task{ItemID: "a"})
	require.NoError(t, err)
	require.NoError(t, broker.PublishWithContext(context.Background(), "", "tasks", false, false, amqp.Publishing{
		Body:          body,
		ReplyTo:       "replies",
		CorrelationId: "1",
	}))

	assert.Eventually(t, func() bool {
		acked, _ := broker.acker.counts()
		return acked == 1
	}, time.Second, 5*time.Millisecond)

	broker.mu.Lock()
	defer broker.mu.Unlock()
	assert.Empty(t, broker.queues["replies"])
}

func TestTableCarrier(t *testing.T) {
	c := tableCarrier(amqp.Table{})
	c.Set("traceparent", "00-abc-def-01")
	assert.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	assert.Equal(t, "", c.Get("missing"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())
}
