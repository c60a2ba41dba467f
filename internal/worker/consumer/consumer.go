package consumer

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tedymoisa/micro-link-shortener/internal/rabbitmq"
	"github.com/tedymoisa/micro-link-shortener/internal/worker/service"
)

const (
	retryHeader = "x-retry-count"
	retryWait   = 5 * time.Second
)

type qrService interface {
	GenerateQRCode(ctx context.Context, body []byte) error
}

type queueClient interface {
	Consume(queue string, handler func(amqp.Delivery)) error
	PublishWithHeaders(ctx context.Context, queue string, body []byte, headers amqp.Table) bool
}

type Consumer struct {
	l          *slog.Logger
	client     queueClient
	svc        qrService
	queue      string
	maxRetries int
}

func New(l *slog.Logger, client queueClient, svc qrService, queue string, maxRetries int) *Consumer {
	return &Consumer{
		l:          l,
		client:     client,
		svc:        svc,
		queue:      queue,
		maxRetries: maxRetries,
	}
}

// Run consumes until ctx is canceled. Consume blocks while the delivery
// stream is live; when it ends (connection loss) or cannot be set up yet
// (broker still booting), Run waits and registers again.
func (c *Consumer) Run(ctx context.Context) {
	for {
		err := c.client.Consume(c.queue, func(d amqp.Delivery) {
			c.handle(ctx, d)
		})
		switch {
		case errors.Is(err, rabbitmq.ErrNotConnected):
			c.l.Warn("queue channel not available, waiting", slog.String("queue", c.queue))
		case err != nil:
			c.l.Error("consumer setup failed", slog.String("queue", c.queue), slog.Any("error", err))
		default:
			c.l.Warn("delivery stream ended, re-registering consumer", slog.String("queue", c.queue))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(retryWait):
		}
	}
}

// handle applies the acknowledgment policy: success is acked; a malformed
// payload is poison and discarded for good; a transient connection-class
// failure goes through the bounded retry path; anything else (store
// failures included) is discarded to avoid reprocessing loops on unknown
// error classes.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	err := c.svc.GenerateQRCode(ctx, d.Body)

	switch {
	case err == nil:
		if err := d.Ack(false); err != nil {
			c.l.Error("failed to ack message", slog.Any("error", err))
		}
	case errors.Is(err, service.ErrMalformedMessage):
		c.l.Error("discarding poison message", slog.Any("error", err))
		c.nack(d, false)
	case isTransient(err):
		c.retry(ctx, d)
	default:
		c.nack(d, false)
	}
}

func (c *Consumer) nack(d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		c.l.Error("failed to nack message", slog.Any("error", err))
	}
}

// retry republishes the message with an incremented retry counter, moving
// it to the dead-letter queue once the counter exceeds the cap. The
// original delivery is acked after a successful republish so the broker
// never redelivers it blindly; if the republish itself fails the message
// goes back to the broker instead.
func (c *Consumer) retry(ctx context.Context, d amqp.Delivery) {
	count := retryCount(d.Headers) + 1

	target := c.queue
	if count > c.maxRetries {
		target = c.queue + ".dlq"
		c.l.Error("retry budget exhausted, dead-lettering message",
			slog.String("queue", target), slog.Int("retries", count-1))
	} else {
		c.l.Warn("transient failure, requeueing message",
			slog.Int("attempt", count), slog.Int("max_retries", c.maxRetries))
	}

	if !c.client.PublishWithHeaders(ctx, target, d.Body, amqp.Table{retryHeader: int32(count)}) {
		c.nack(d, true)
		return
	}
	if err := d.Ack(false); err != nil {
		c.l.Error("failed to ack retried message", slog.Any("error", err))
	}
}

func retryCount(headers amqp.Table) int {
	switch v := headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// isTransient reports whether err is a connection-class failure worth
// retrying, as opposed to a processing error that would fail the same way
// again.
func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
