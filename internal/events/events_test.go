package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roniherschmann/linkpulse/internal/store"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	sent   []published
	err    error
	closed bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange, key, msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPPublishClick(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQP{ch: ch, exchange: "clicks"}
	ev := store.ClickEvent{ID: "e1", Slug: "abc", Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), IsBot: true, BotName: "Google Bot"}

	require.NoError(t, p.PublishClick(context.Background(), ev))
	require.Len(t, ch.sent, 1)
	got := ch.sent[0]
	assert.Equal(t, "clicks", got.exchange)
	assert.Equal(t, "abc", got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, "e1", got.msg.MessageId)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)

	var decoded store.ClickEvent
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	assert.Equal(t, ev, decoded)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestAMQPPublishError(t *testing.T) {
	boom := errors.New("channel closed")
	p := &AMQP{ch: &fakeChannel{err: boom}, exchange: "clicks"}
	assert.ErrorIs(t, p.PublishClick(context.Background(), store.ClickEvent{Slug: "abc"}), boom)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.PublishClick(context.Background(), store.ClickEvent{}))
	assert.NoError(t, p.Close())
}
