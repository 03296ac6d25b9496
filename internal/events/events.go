// Package events fans recorded clicks out to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/roniherschmann/linkpulse/internal/store"
)

// PublishTimeout bounds how long a redirect waits on the broker.
const PublishTimeout = 2 * time.Second

type Publisher interface {
	PublishClick(ctx context.Context, ev store.ClickEvent) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) PublishClick(context.Context, store.ClickEvent) error { return nil }
func (Nop) Close() error                                         { return nil }

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes each click as JSON to a fanout exchange, routed by slug.
type AMQP struct {
	mu       sync.Mutex // amqp channels are not safe for concurrent publishes
	conn     *amqp.Connection
	ch       channel
	exchange string
}

func DialAMQP(url, exchange string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeFanout,
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}
	return &AMQP{conn: conn, ch: ch, exchange: exchange}, nil
}

func (a *AMQP) PublishClick(ctx context.Context, ev store.ClickEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode click: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ch.PublishWithContext(ctx, a.exchange, ev.Slug, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.Timestamp,
		Type:         "click.recorded",
		Body:         body,
	})
}

func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.ch.Close()
	if a.conn != nil {
		if cerr := a.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
