// Package amqp implements eventbus.Bus against a RabbitMQ stream queue, per
// §6.1: a single durable stream named "revolt.events", topic-tagged via the
// x-stream-filter-value publish header, consumed with broker-side Bloom-
// filter x-stream-filter consumer args and resumable x-stream-offset.
// Grounded on original_source/crates/bonfire/src/client/subscriber.rs's
// consumer-rebuild loop, ported from lapin to
// github.com/rabbitmq/amqp091-go.
package amqp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rabbitmq/amqp091-go"

	"github.com/nextlevelbuilder/embergate/internal/eventbus"
)

const (
	streamName        = "revolt.events"
	headerFilterValue = "x-stream-filter-value"
	headerStreamOffset = "x-stream-offset"
	argStreamFilter   = "x-stream-filter"
	argStreamOffset   = "x-stream-offset"
)

// Bus publishes to and consumes from the shared RabbitMQ stream. A Bus owns
// one publisher channel; each Consume call opens its own consumer channel
// so that per-subscription teardown (basic_cancel) never disturbs others.
type Bus struct {
	conn   *amqp091.Connection
	pubCh  *amqp091.Channel
	mu     sync.Mutex
}

// Dial connects to url and declares the stream queue per §6.1's arguments.
func Dial(url string) (*Bus, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.Qos(100, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp qos: %w", err)
	}

	_, err = ch.QueueDeclare(streamName, true, false, false, false, amqp091.Table{
		"x-queue-type":                "stream",
		"x-max-length-bytes":          int64(5_000_000_000),
		"x-stream-filter-size-bytes":  int32(26),
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp declare stream: %w", err)
	}

	return &Bus{conn: conn, pubCh: ch}, nil
}

func (b *Bus) Close() error { return b.conn.Close() }

func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pubCh.PublishWithContext(ctx, "", streamName, false, false, amqp091.Publishing{
		Headers:     amqp091.Table{headerFilterValue: topic},
		ContentType: "application/msgpack",
		Body:        payload,
	})
}

func (b *Bus) Consume(ctx context.Context, topics []string, fromOffset *int64) (eventbus.Consumer, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp consumer channel: %w", err)
	}
	if err := ch.Qos(100, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("amqp qos: %w", err)
	}

	args := amqp091.Table{argStreamFilter: topicsToArray(topics)}
	if fromOffset != nil {
		args[argStreamOffset] = *fromOffset
	}

	tag := randomTag()
	deliveries, err := ch.Consume(streamName, tag, false, false, false, false, args)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("amqp basic_consume: %w", err)
	}

	c := &consumer{ch: ch, tag: tag, out: make(chan eventbus.Delivery, 256), raw: deliveries, done: make(chan struct{})}
	go c.pump()
	return c, nil
}

func topicsToArray(topics []string) []interface{} {
	arr := make([]interface{}, len(topics))
	for i, t := range topics {
		arr[i] = t
	}
	return arr
}

func randomTag() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

type consumer struct {
	ch   *amqp091.Channel
	tag  string
	out  chan eventbus.Delivery
	raw  <-chan amqp091.Delivery
	done chan struct{}
	once sync.Once
}

func (c *consumer) Deliveries() <-chan eventbus.Delivery { return c.out }

func (c *consumer) pump() {
	defer close(c.out)
	for {
		select {
		case d, ok := <-c.raw:
			if !ok {
				return
			}
			topic, _ := d.Headers[headerFilterValue].(string)
			offset, _ := d.Headers[headerStreamOffset].(int64)
			delivery := d
			select {
			case c.out <- eventbus.Delivery{
				Topic:   topic,
				Offset:  offset,
				Payload: delivery.Body,
				Ack:     func() { _ = delivery.Ack(false) },
			}:
			case <-c.done:
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close tears the consumer down: basic_cancel, then drains and acks any
// remaining pre-buffered deliveries, matching the "ack before close" drain
// semantics of §4.4/§4.2 to avoid a redelivery storm on rebind.
func (c *consumer) Close(ctx context.Context) error {
	var err error
	c.once.Do(func() {
		if cancelErr := c.ch.Cancel(c.tag, false); cancelErr != nil {
			slog.Warn("eventbus.amqp.consumer.cancel_failed", "error", cancelErr)
		}
		close(c.done)
	drain:
		for {
			select {
			case d, ok := <-c.raw:
				if !ok {
					break drain
				}
				_ = d.Ack(false)
			case <-ctx.Done():
				break drain
			default:
				break drain
			}
		}
		err = c.ch.Close()
	})
	return err
}
