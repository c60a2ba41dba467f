// Package rabbitmq owns the broker connection lifecycle shared by the
// gateway (publisher) and the worker (consumer): bounded initial retry,
// a persistent background reconnect loop, topology assertion, best-effort
// publish and manual-ack consume.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected is returned (or implied by a false result) when no
// channel is available. Callers decide whether that is fatal.
var ErrNotConnected = errors.New("rabbitmq: channel not available")

var errClosed = errors.New("rabbitmq: client is closed")

const (
	defaultInitialAttempts   = 5
	defaultInitialRetryDelay = 2 * time.Second
	defaultReconnectInterval = 10 * time.Second
)

// Client is a single-connection, single-channel broker client. One instance
// is constructed per process and passed by reference; there is no package
// level state.
type Client struct {
	url string
	l   *slog.Logger

	initialAttempts   int
	initialRetryDelay time.Duration
	reconnectInterval time.Duration

	mu        sync.Mutex
	conn      *amqp.Connection
	ch        *amqp.Channel
	retryStop chan struct{} // non-nil exactly while the reconnect loop runs
	closed    bool
}

type Option func(*Client)

// WithInitialRetry overrides the bounded first-connect retry policy.
func WithInitialRetry(attempts int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.initialAttempts = attempts
		c.initialRetryDelay = baseDelay
	}
}

// WithReconnectInterval overrides the persistent background retry interval.
func WithReconnectInterval(d time.Duration) Option {
	return func(c *Client) {
		c.reconnectInterval = d
	}
}

func New(url string, l *slog.Logger, opts ...Option) *Client {
	c := &Client{
		url:               url,
		l:                 l,
		initialAttempts:   defaultInitialAttempts,
		initialRetryDelay: defaultInitialRetryDelay,
		reconnectInterval: defaultReconnectInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the connection and channel. Calling it while already
// connected is a no-op. It tries a bounded number of times with linearly
// increasing delay; if all attempts fail it arms the background reconnect
// loop and returns the last error, so the caller can log and carry on
// instead of crash-looping while the broker boots.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		c.l.Info("rabbitmq already connected")
		return nil
	}
	c.stopRetryLocked()
	c.mu.Unlock()

	var lastErr error
	for i := 1; i <= c.initialAttempts; i++ {
		if err := c.attempt(); err != nil {
			lastErr = err
			c.l.Warn("initial rabbitmq connection attempt failed",
				slog.Int("attempt", i),
				slog.Int("max_attempts", c.initialAttempts),
				slog.Any("error", err),
			)
			if i < c.initialAttempts {
				select {
				case <-time.After(c.initialRetryDelay * time.Duration(i)):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			continue
		}
		return nil
	}

	c.l.Error("failed to connect to rabbitmq, falling back to background retry",
		slog.Int("attempts", c.initialAttempts),
		slog.Any("error", lastErr),
	)
	c.startRetry()

	return lastErr
}

// attempt performs one dial + channel open and installs the result.
func (c *Client) attempt() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	if !c.install(conn, ch) {
		_ = ch.Close()
		_ = conn.Close()

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return errClosed
		}
		// Another attempt won the race; its connection is the live one.
		return nil
	}

	go c.watchClose(conn)
	go c.watchChannelClose(conn, ch)
	go c.watchFlow(ch)

	c.l.Info("connected to rabbitmq")
	return nil
}

// install makes a freshly dialed pair current. It reports false when the
// client is closed or another attempt already holds a live connection; the
// caller owns closing the surplus pair in that case.
func (c *Client) install(conn *amqp.Connection, ch *amqp.Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn != nil {
		return false
	}
	c.conn = conn
	c.ch = ch
	c.stopRetryLocked()
	return true
}

// watchClose observes connection closure. Closure is a distinct event from
// a connection-level error: errors are logged by the broker client itself,
// only closure clears state and arms the reconnect loop.
func (c *Client) watchClose(conn *amqp.Connection) {
	err := <-conn.NotifyClose(make(chan *amqp.Error, 1))

	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.ch = nil
	c.mu.Unlock()

	if err != nil {
		c.l.Error("rabbitmq connection closed with error", slog.Any("error", err))
	} else {
		c.l.Warn("rabbitmq connection closed gracefully")
	}

	c.startRetry()
}

// watchChannelClose observes a broker-initiated channel close while the
// connection stays up. The channel is reopened on the live connection;
// failing that, the connection is dropped so watchClose arms the
// reconnect loop.
func (c *Client) watchChannelClose(conn *amqp.Connection, ch *amqp.Channel) {
	err := <-ch.NotifyClose(make(chan *amqp.Error, 1))

	if !c.dropChannel(conn, ch) {
		return
	}
	if err != nil {
		c.l.Error("rabbitmq channel closed with error", slog.Any("error", err))
	} else {
		c.l.Warn("rabbitmq channel closed")
	}

	nch, cerr := conn.Channel()
	if cerr != nil {
		c.l.Error("failed to reopen rabbitmq channel, dropping connection", slog.Any("error", cerr))
		_ = conn.Close()
		return
	}
	if !c.adoptChannel(conn, nch) {
		_ = nch.Close()
		return
	}

	go c.watchChannelClose(conn, nch)
	go c.watchFlow(nch)

	c.l.Info("rabbitmq channel reopened")
}

// dropChannel clears ch if it is still the current channel on conn,
// reporting whether the caller should rebuild it.
func (c *Client) dropChannel(conn *amqp.Connection, ch *amqp.Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn != conn || c.ch != ch {
		return false
	}
	c.ch = nil
	return true
}

// adoptChannel installs a reopened channel unless the connection changed
// underneath it.
func (c *Client) adoptChannel(conn *amqp.Connection, ch *amqp.Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn != conn {
		return false
	}
	c.ch = ch
	return true
}

// watchFlow logs broker pushback. A paused outbound flow is a warning, not
// an error: messages are still considered sent and drain once the broker
// lifts the pause.
func (c *Client) watchFlow(ch *amqp.Channel) {
	for active := range ch.NotifyFlow(make(chan bool, 1)) {
		if !active {
			c.l.Warn("rabbitmq flow control active, outbound messages may be delayed")
		} else {
			c.l.Info("rabbitmq flow control lifted")
		}
	}
}

// startRetry arms the persistent background reconnect loop. At most one
// loop is ever active; arming an armed client is a no-op.
func (c *Client) startRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.retryStop != nil {
		return
	}
	stop := make(chan struct{})
	c.retryStop = stop

	c.l.Info("starting persistent rabbitmq reconnect loop",
		slog.Duration("interval", c.reconnectInterval))

	go func() {
		t := time.NewTicker(c.reconnectInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if err := c.attempt(); err != nil {
					c.l.Warn("persistent rabbitmq reconnect attempt failed",
						slog.Any("error", err))
				}
			}
		}
	}()
}

// stopRetryLocked cancels the reconnect loop. Caller must hold c.mu.
func (c *Client) stopRetryLocked() {
	if c.retryStop != nil {
		close(c.retryStop)
		c.retryStop = nil
	}
}

// Channel returns the current channel, or false when not connected.
// It never blocks.
func (c *Client) Channel() (*amqp.Channel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch == nil {
		return nil, false
	}
	return c.ch, true
}

// AssertQueue idempotently declares a durable queue.
func (c *Client) AssertQueue(name string) error {
	ch, ok := c.Channel()
	if !ok {
		return ErrNotConnected
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %q: %w", name, err)
	}
	return nil
}

// Publish sends body to queue with persistent delivery, asserting the queue
// first. It is best-effort: any failure is logged and reported as false,
// never raised.
func (c *Client) Publish(ctx context.Context, queue string, body []byte) bool {
	return c.PublishWithHeaders(ctx, queue, body, nil)
}

// PublishWithHeaders is Publish with explicit message headers, used by the
// worker to carry the retry counter.
func (c *Client) PublishWithHeaders(ctx context.Context, queue string, body []byte, headers amqp.Table) bool {
	ch, ok := c.Channel()
	if !ok {
		c.l.Warn("cannot publish: rabbitmq channel not available", slog.String("queue", queue))
		return false
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		c.l.Error("failed to declare queue before publish",
			slog.String("queue", queue), slog.Any("error", err))
		return false
	}

	err := ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		c.l.Error("failed to publish message",
			slog.String("queue", queue), slog.Any("error", err))
		return false
	}

	return true
}

// Consume asserts the queue and dispatches deliveries to handler one at a
// time with manual acknowledgment; ack/nack policy belongs to the handler.
// It blocks until the delivery stream ends (connection loss or Close), so
// callers re-invoke it to survive reconnects. An absent channel is a setup
// error for this consumer, distinct from transient connection errors.
func (c *Client) Consume(queue string, handler func(amqp.Delivery)) error {
	ch, ok := c.Channel()
	if !ok {
		c.l.Error("cannot start consuming: rabbitmq channel not available",
			slog.String("queue", queue))
		return ErrNotConnected
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %q: %w", queue, err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume from %q: %w", queue, err)
	}

	c.l.Info("started consuming", slog.String("queue", queue))

	for d := range deliveries {
		handler(d)
	}

	return nil
}

// Close shuts the client down for good: the reconnect loop is canceled and
// the channel, then the connection, are closed. Errors during close are
// logged, never returned, and Close is safe to call repeatedly.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopRetryLocked()
	ch, conn := c.ch, c.conn
	c.ch = nil
	c.conn = nil
	c.mu.Unlock()

	if ch != nil {
		if err := ch.Close(); err != nil {
			c.l.Error("error closing rabbitmq channel", slog.Any("error", err))
		} else {
			c.l.Info("rabbitmq channel closed")
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			c.l.Error("error closing rabbitmq connection", slog.Any("error", err))
		} else {
			c.l.Info("rabbitmq connection closed")
		}
	}
}
