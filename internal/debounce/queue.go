// Package debounce implements the bounded multi-producer single-consumer
// coalescing queue described in §4.6, grounded line-for-line on
// original_source/crates/core/database/src/tasks/ack.rs's worker loop: a
// keyed map of delayed tasks, a 1s ticker scanning for should_run(), and
// per-kind coalescing rules (replace-and-reset for acks, append-and-maybe-
// reset for mention processing).
package debounce

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Kind distinguishes coalescing rules so ack events and mention-process
// events for the same (user, channel) never merge.
type Kind uint8

const (
	KindAck Kind = iota
	KindProcessMessage
)

// Key is the composite (optional user, channel, kind) debounce key.
type Key struct {
	UserID    string // empty means "no user", matching Option<user-id>
	ChannelID string
	Kind      Kind
}

// Item is the payload enqueued under a Key. Exactly one of AckMessageID /
// ProcessMessages is populated, matching Key.Kind.
type Item struct {
	AckMessageID    string
	ProcessMessages []ProcessEntry
}

// ProcessEntry is one coalesced message pending mention/push processing.
type ProcessEntry struct {
	MessageID  string
	Recipients []string
	Silenced   bool
}

// Handler processes a flushed (key, item) pair. Handler errors are logged
// and the task is dropped — no retry in the core path, per §4.6.
type Handler func(ctx context.Context, key Key, item Item) error

type task struct {
	item      Item
	deadline  time.Time
}

// Queue is a single worker's debounce state, safe for concurrent Enqueue
// calls from many producers; Run must be driven by exactly one goroutine.
type Queue struct {
	debounce    time.Duration
	processCap  int
	handler     Handler

	mu      sync.Mutex
	pending chan keyedItem
	tasks   map[Key]*task
}

type keyedItem struct {
	key  Key
	item Item
}

// Config controls queue capacity and coalescing behaviour.
type Config struct {
	// Debounce is how long a task waits after its last reset before it is
	// eligible to flush. Default 5s (matches gateway.debounce_interval_ms).
	Debounce time.Duration
	// QueueCapacity bounds the producer-to-worker channel; Enqueue drops
	// with a warning log when full, per §4.6's failure mode.
	QueueCapacity int
	// ProcessCap bounds how many messages may coalesce into one
	// ProcessMessage task before the timer is allowed to fire anyway.
	ProcessCap int
}

// New constructs a Queue that invokes handler on every flushed task.
func New(cfg Config, handler Handler) *Queue {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 5 * time.Second
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 10_000
	}
	if cfg.ProcessCap <= 0 {
		cfg.ProcessCap = 200
	}
	return &Queue{
		debounce:   cfg.Debounce,
		processCap: cfg.ProcessCap,
		handler:    handler,
		pending:    make(chan keyedItem, cfg.QueueCapacity),
		tasks:      make(map[Key]*task),
	}
}

// EnqueueAck queues (or replaces-and-resets) an ack task for key.
func (q *Queue) EnqueueAck(key Key, messageID string) {
	q.enqueue(keyedItem{key: key, item: Item{AckMessageID: messageID}})
}

// EnqueueProcessMessage queues (or coalesces into) a mention-processing
// task for key.
func (q *Queue) EnqueueProcessMessage(key Key, entries ...ProcessEntry) {
	q.enqueue(keyedItem{key: key, item: Item{ProcessMessages: entries}})
}

func (q *Queue) enqueue(ki keyedItem) {
	select {
	case q.pending <- ki:
	default:
		slog.Warn("debounce.queue_full", "channel", ki.key.ChannelID, "kind", ki.key.Kind)
	}
}

// Run drives the 1s scan-flush-drain loop until ctx is cancelled. Call it
// from exactly one goroutine per Queue.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.tick(ctx)
		}
	}
}

func (q *Queue) tick(ctx context.Context) {
	q.drainIncoming()

	now := time.Now()
	var due []Key
	for key, t := range q.tasks {
		if !now.Before(t.deadline) {
			due = append(due, key)
		}
	}
	for _, key := range due {
		t := q.tasks[key]
		delete(q.tasks, key)
		if err := q.handler(ctx, key, t.item); err != nil {
			slog.Error("debounce.handler_failed", "channel", key.ChannelID, "user", key.UserID, "kind", key.Kind, "error", err)
		}
	}
}

func (q *Queue) drainIncoming() {
	for {
		select {
		case ki := <-q.pending:
			q.coalesce(ki)
		default:
			return
		}
	}
}

func (q *Queue) coalesce(ki keyedItem) {
	existing, ok := q.tasks[ki.key]
	if !ok {
		q.tasks[ki.key] = &task{item: ki.item, deadline: time.Now().Add(q.debounce)}
		return
	}

	switch ki.key.Kind {
	case KindAck:
		// Replace with the latest id; reset the debounce timer.
		existing.item.AckMessageID = ki.item.AckMessageID
		existing.deadline = time.Now().Add(q.debounce)
	case KindProcessMessage:
		// Append the new messages; reset the timer only if still under cap.
		existing.item.ProcessMessages = append(existing.item.ProcessMessages, ki.item.ProcessMessages...)
		if len(existing.item.ProcessMessages) < q.processCap {
			existing.deadline = time.Now().Add(q.debounce)
		}
	}
}
