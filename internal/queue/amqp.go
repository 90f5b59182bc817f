// Package queue wraps the AMQP broker connection used to hand transactions
// from the payment publisher to the saga worker.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// retriesHeader carries the republish count. The broker's own x-death
// header only tracks dead-letter cycles, which a manual republish never
// goes through, so retries are counted explicitly.
const retriesHeader = "x-retries"

// Session owns one connection and one channel to the broker, bound to a
// single durable queue.
type Session struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// Dial connects to the broker at url and declares the durable queue.
func Dial(ctx context.Context, url, queueName string) (*Session, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}

	return &Session{conn: conn, channel: channel, queue: queueName}, nil
}

// DialWithRetry keeps dialing until it succeeds or ctx is cancelled. The
// worker starts before the broker in most deployments, so a failed first
// dial is normal.
func DialWithRetry(ctx context.Context, url, queueName string, delay time.Duration, logf func(format string, args ...any)) (*Session, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	for {
		session, err := Dial(ctx, url, queueName)
		if err == nil {
			return session, nil
		}
		logf("queue: connect failed, retrying in %s: %v", delay, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Publish enqueues body as a persistent JSON message.
func (s *Session) Publish(ctx context.Context, body []byte) error {
	return s.publish(ctx, body, nil)
}

// Republish enqueues body again, recording how many retries it has seen.
func (s *Session) Republish(ctx context.Context, body []byte, retries int) error {
	return s.publish(ctx, body, amqp.Table{retriesHeader: int32(retries)})
}

func (s *Session) publish(ctx context.Context, body []byte, headers amqp.Table) error {
	return s.channel.PublishWithContext(ctx,
		"",      // default exchange
		s.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      headers,
			Body:         body,
		},
	)
}

// Consume sets prefetch to one unacknowledged message and returns the
// delivery stream. Messages must be acked or rejected explicitly.
func (s *Session) Consume(ctx context.Context) (<-chan Delivery, error) {
	if err := s.channel.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	raw, err := s.channel.ConsumeWithContext(ctx,
		s.queue,
		"",    // consumer tag
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", s.queue, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for d := range raw {
			select {
			case out <- Delivery{d: d, retries: RetryCount(d.Headers)}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close releases the channel and connection.
func (s *Session) Close() error {
	var errs []error
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Delivery is one message taken off the queue.
type Delivery struct {
	d       amqp.Delivery
	retries int
}

// Body returns the message payload.
func (d Delivery) Body() []byte { return d.d.Body }

// Retries returns how many times this message has been republished.
func (d Delivery) Retries() int { return d.retries }

// Ack confirms the message was handled.
func (d Delivery) Ack() error { return d.d.Ack(false) }

// Reject drops the message without requeueing it.
func (d Delivery) Reject() error { return d.d.Reject(false) }

// RetryCount reads the republish count from message headers. It prefers the
// explicit retries header and falls back to the broker's x-death count; a
// first delivery has neither and counts as zero.
func RetryCount(headers amqp.Table) int {
	if headers == nil {
		return 0
	}
	if v, ok := headers[retriesHeader]; ok {
		if n, ok := asInt(v); ok {
			return n
		}
	}
	if deaths, ok := headers["x-death"].([]interface{}); ok && len(deaths) > 0 {
		if first, ok := deaths[0].(amqp.Table); ok {
			if n, ok := asInt(first["count"]); ok {
				return n
			}
		}
	}
	return 0
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	}
	return 0, false
}
