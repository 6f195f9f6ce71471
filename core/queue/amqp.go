package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// amqpChannel is the subset of *amqp.Channel used by the executor and consumer.
type amqpChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// reply is the body a worker publishes back to the submitter.
type reply struct {
	Result Result `json:"result"`
	Error  string `json:"error,omitempty"`
}

// AMQPExecutor publishes tasks to a broker queue and correlates replies.
type AMQPExecutor struct {
	conn    io.Closer
	ch      amqpChannel
	queue   string
	replyTo string
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]*future
	closed  bool
	done    chan struct{}
}

// DialExecutor connects to cfg.URL and prepares the task and reply queues.
func DialExecutor(cfg Config, logger *zap.Logger) (*AMQPExecutor, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	exec, err := newAMQPExecutor(conn, ch, cfg.Name, logger)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return exec, nil
}

func newAMQPExecutor(conn io.Closer, ch amqpChannel, queueName string, logger *zap.Logger) (*AMQPExecutor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}
	replyQueue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to declare reply queue: %w", err)
	}
	replies, err := ch.Consume(replyQueue.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume reply queue: %w", err)
	}

	e := &AMQPExecutor{
		conn:    conn,
		ch:      ch,
		queue:   queueName,
		replyTo: replyQueue.Name,
		logger:  logger,
		pending: make(map[string]*future),
		done:    make(chan struct{}),
	}
	go e.listen(replies)
	return e, nil
}

// Submit publishes task and returns a handle resolved by the matching reply.
func (e *AMQPExecutor) Submit(ctx context.Context, task Task) (Handle, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task: %w", err)
	}

	corrID := uuid.NewString()
	f := newFuture()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	e.pending[corrID] = f
	e.mu.Unlock()

	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, tableCarrier(headers))

	err = e.ch.PublishWithContext(ctx, "", e.queue, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: corrID,
		ReplyTo:       e.replyTo,
		Headers:       headers,
		Body:          body,
	})
	if err != nil {
		e.mu.Lock()
		delete(e.pending, corrID)
		e.mu.Unlock()
		return nil, fmt.Errorf("failed to publish task %s: %w", task.ItemID, err)
	}
	return f, nil
}

func (e *AMQPExecutor) listen(replies <-chan amqp.Delivery) {
	defer close(e.done)
	for d := range replies {
		e.mu.Lock()
		f, ok := e.pending[d.CorrelationId]
		delete(e.pending, d.CorrelationId)
		e.mu.Unlock()
		if !ok {
			e.logger.Warn("Dropping reply with unknown correlation id", zap.String("correlation_id", d.CorrelationId))
			continue
		}

		var r reply
		if err := json.Unmarshal(d.Body, &r); err != nil {
			f.resolve(Result{}, fmt.Errorf("failed to decode reply: %w", err))
			continue
		}
		if r.Error != "" {
			f.resolve(Result{}, &RemoteError{ItemID: r.Result.ItemID, Message: r.Error})
			continue
		}
		f.resolve(r.Result, nil)
	}
	e.failPending()
}

func (e *AMQPExecutor) failPending() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, f := range e.pending {
		f.resolve(Result{}, ErrClosed)
		delete(e.pending, id)
	}
}

// Close closes the channel and connection; pending handles fail with ErrClosed.
func (e *AMQPExecutor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	err := e.ch.Close()
	if e.conn != nil {
		if cerr := e.conn.Close(); err == nil {
			err = cerr
		}
	}
	<-e.done
	return err
}
