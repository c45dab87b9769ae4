// Package memory is an in-memory eventbus.Bus: a single shared, offset-
// tracked, byte-bounded ring buffer standing in for the RabbitMQ stream
// queue of §6.1. It is the source of truth for semantic tests per design
// note §9, and backs internal/store/reference in standalone/dev mode.
package memory

import (
	"context"
	"sync"

	"github.com/nextlevelbuilder/embergate/internal/eventbus"
)

type record struct {
	topic   string
	offset  int64
	payload []byte
}

// Bus is a single-stream in-memory broker. All topics share one append-only
// log with per-record topic tags, matching the real stream's single named
// queue ("revolt.events") with broker-side topic filtering.
type Bus struct {
	mu        sync.Mutex
	records   []record
	nextOff   int64
	maxBytes  int64
	curBytes  int64
	consumers map[*consumer]struct{}
}

// New constructs a Bus bounded to maxBytes total retained payload size
// (oldest records are dropped once exceeded, mirroring x-max-length-bytes).
func New(maxBytes int64) *Bus {
	if maxBytes <= 0 {
		maxBytes = 5_000_000_000
	}
	return &Bus{maxBytes: maxBytes, consumers: make(map[*consumer]struct{})}
}

func (b *Bus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := record{topic: topic, offset: b.nextOff, payload: payload}
	b.nextOff++
	b.records = append(b.records, rec)
	b.curBytes += int64(len(payload))

	for b.curBytes > b.maxBytes && len(b.records) > 0 {
		b.curBytes -= int64(len(b.records[0].payload))
		b.records = b.records[1:]
	}

	for c := range b.consumers {
		c.deliver(rec)
	}
	return nil
}

func (b *Bus) Consume(_ context.Context, topics []string, fromOffset *int64) (eventbus.Consumer, error) {
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}

	c := &consumer{
		bus:  b,
		set:  set,
		ch:   make(chan eventbus.Delivery, 256),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	var backlog []record
	if fromOffset != nil {
		for _, r := range b.records {
			if r.offset >= *fromOffset {
				backlog = append(backlog, r)
			}
		}
	}
	b.consumers[c] = struct{}{}
	b.mu.Unlock()

	for _, r := range backlog {
		c.deliver(r)
	}

	return c, nil
}

// oldestOffset reports the lowest offset still retained, for callers that
// need to detect "offset fell out of retention" per §4.2's reconnection
// rule.
func (b *Bus) oldestOffset() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) == 0 {
		return b.nextOff
	}
	return b.records[0].offset
}

// OutOfRetention reports whether offset has fallen out of the retained
// window, per §4.2's "consumer MUST treat the state as lost" rule.
func (b *Bus) OutOfRetention(offset int64) bool {
	return offset < b.oldestOffset()
}

type consumer struct {
	bus  *Bus
	set  map[string]struct{}
	ch   chan eventbus.Delivery
	done chan struct{}
	once sync.Once
}

func (c *consumer) deliver(r record) {
	if _, ok := c.set[r.topic]; !ok {
		return
	}
	select {
	case c.ch <- eventbus.Delivery{Topic: r.topic, Offset: r.offset, Payload: r.payload, Ack: func() {}}:
	case <-c.done:
	}
}

func (c *consumer) Deliveries() <-chan eventbus.Delivery { return c.ch }

func (c *consumer) Close(_ context.Context) error {
	c.once.Do(func() {
		c.bus.mu.Lock()
		delete(c.bus.consumers, c)
		c.bus.mu.Unlock()
		close(c.done)
	})
	return nil
}
