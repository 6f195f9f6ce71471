package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var encodeReply = json.Marshal

// Consumer runs a HandlerFunc for every task delivered on the task queue
// and replies to the submitter.
type Consumer struct {
	conn     io.Closer
	ch       amqpChannel
	queue    string
	prefetch int
	handler  HandlerFunc
	logger   *zap.Logger
}

// DialConsumer connects to cfg.URL for the worker side of the queue.
func DialConsumer(cfg Config, handler HandlerFunc, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	c := newConsumer(ch, cfg.Name, cfg.Prefetch, handler, logger)
	c.conn = conn
	return c, nil
}

func newConsumer(ch amqpChannel, queueName string, prefetch int, handler HandlerFunc, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	return &Consumer{
		ch:       ch,
		queue:    queueName,
		prefetch: prefetch,
		handler:  handler,
		logger:   logger,
	}
}

// Run consumes tasks until ctx ends or the delivery channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}
	if _, err := c.ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", c.queue, err)
	}
	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %s: %w", c.queue, err)
	}

	c.logger.Info("Worker consuming", zap.String("queue", c.queue), zap.Int("prefetch", c.prefetch))

	// At most prefetch deliveries are in flight, matching the broker's unacked window.
	var g errgroup.Group
	g.SetLimit(c.prefetch)
	defer func() { _ = g.Wait() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrClosed
			}
			g.Go(func() error {
				c.handle(ctx, d)
				return nil
			})
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var task Task
	if err := json.Unmarshal(d.Body, &task); err != nil {
		c.logger.Error("Rejecting undecodable task", zap.Error(err))
		if rerr := d.Reject(false); rerr != nil {
			c.logger.Error("Reject failed", zap.Error(rerr))
		}
		return
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, tableCarrier(d.Headers))
	res, err := safeRun(ctx, c.handler, task, c.logger)

	out := reply{Result: res}
	if res.ItemID == "" {
		out.Result.ItemID = task.ItemID
	}
	if err != nil {
		c.logger.Error("Task failed", zap.String("item_id", task.ItemID), zap.Error(err))
		out.Error = err.Error()
	}

	if d.ReplyTo != "" {
		c.reply(ctx, d, task.ItemID, out)
	}

	if err := d.Ack(false); err != nil {
		c.logger.Error("Ack failed", zap.String("item_id", task.ItemID), zap.Error(err))
	}
}

func (c *Consumer) reply(ctx context.Context, d amqp.Delivery, itemID string, out reply) {
	body, err := encodeReply(out)
	if err != nil {
		c.logger.Error("Reply encode failed", zap.String("item_id", itemID), zap.Error(err))
		return
	}
	err = c.ch.PublishWithContext(ctx, "", d.ReplyTo, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: d.CorrelationId,
		Body:          body,
	})
	if err != nil {
		c.logger.Error("Reply failed", zap.String("item_id", itemID), zap.Error(err))
	}
}

// Close closes the channel and connection.
func (c *Consumer) Close() error {
	err := c.ch.Close()
	if c.conn != nil {
		err = errors.Join(err, c.conn.Close())
	}
	return err
}
