package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"scribe-console/internal/realtime"

	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrDeliveriesClosed = errors.New("amqp delivery channel closed")

// Dialer connects the realtime channel to the events exchange. Every
// connection gets its own exclusive, auto-deleted queue.
type Dialer struct {
	URL      string
	Exchange string
}

func NewDialer(url, exchange string) *Dialer {
	return &Dialer{URL: url, Exchange: exchange}
}

func (d *Dialer) Dial(ctx context.Context) (realtime.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rmq, err := NewRabbitMQ(d.URL, d.Exchange)
	if err != nil {
		return nil, err
	}

	deliveries, err := rmq.consume()
	if err != nil {
		rmq.Close()
		return nil, err
	}

	return &amqpConn{rmq: rmq, deliveries: deliveries}, nil
}

func (r *RabbitMQ) consume() (<-chan amqp.Delivery, error) {
	queue, err := r.channel.QueueDeclare(
		"",    // auto-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := r.channel.QueueBind(
		queue.Name, // queue name
		"",         // routing key
		r.exchange, // exchange
		false,
		nil,
	); err != nil {
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := r.channel.Consume(
		queue.Name, // queue
		"",         // consumer
		true,       // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming console events",
		slog.String("queue", queue.Name),
		slog.String("exchange", r.exchange))
	return msgs, nil
}

type amqpConn struct {
	rmq        *RabbitMQ
	deliveries <-chan amqp.Delivery
	closeOnce  sync.Once
	closeErr   error
}

func (c *amqpConn) Receive(ctx context.Context) (realtime.Event, error) {
	for {
		select {
		case <-ctx.Done():
			return realtime.Event{}, ctx.Err()
		case msg, ok := <-c.deliveries:
			if !ok {
				return realtime.Event{}, ErrDeliveriesClosed
			}
			ev, err := decodeDelivery(msg)
			if err != nil {
				slog.Warn("ignoring malformed event message",
					slog.String("error", err.Error()),
					slog.Int("body_size", len(msg.Body)))
				continue
			}
			return ev, nil
		}
	}
}

func (c *amqpConn) Send(ctx context.Context, ev realtime.Event) error {
	return c.rmq.Publish(ctx, ev)
}

func (c *amqpConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.rmq.Close()
	})
	return c.closeErr
}

// decodeDelivery reads the event name from the JSON body, falling back to the
// message type when the body carries none.
func decodeDelivery(msg amqp.Delivery) (realtime.Event, error) {
	var body eventBody
	if len(msg.Body) > 0 {
		if err := json.Unmarshal(msg.Body, &body); err != nil {
			return realtime.Event{}, fmt.Errorf("invalid event body: %w", err)
		}
	}

	name := body.Event
	if name == "" {
		name = msg.Type
	}
	if name == "" {
		return realtime.Event{}, errors.New("event message without a name")
	}
	return realtime.Event{Name: name, Data: body.Data}, nil
}
