package debounce

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flushRecorder records every flushed (key, item) pair handed to Handler.
type flushRecorder struct {
	mu     sync.Mutex
	flushes []struct {
		key  Key
		item Item
	}
}

func (r *flushRecorder) handle(_ context.Context, key Key, item Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes = append(r.flushes, struct {
		key  Key
		item Item
	}{key, item})
	return nil
}

func (r *flushRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flushes)
}

// TestEnqueueAck_CoalescesToLastID is the §8 testable property: "two
// AckMessage{id=A} and AckMessage{id=B} on the same key within the
// debounce window flush exactly once with id=B".
func TestEnqueueAck_CoalescesToLastID(t *testing.T) {
	rec := &flushRecorder{}
	q := New(Config{Debounce: 10 * time.Millisecond}, rec.handle)

	key := Key{UserID: "u1", ChannelID: "c1", Kind: KindAck}
	q.EnqueueAck(key, "A")
	q.drainIncoming()
	q.EnqueueAck(key, "B")
	q.drainIncoming()

	require.Len(t, q.tasks, 1)
	assert.Equal(t, "B", q.tasks[key].item.AckMessageID)

	time.Sleep(15 * time.Millisecond)
	q.tick(context.Background())

	require.Equal(t, 1, rec.count())
	assert.Equal(t, "B", rec.flushes[0].item.AckMessageID)
}

// TestEnqueueProcessMessage_AppendsAcrossBursts checks §9's "Coalescing of
// structurally similar events" design note: accumulated ProcessMessage
// entries form a sequence (order preserved), not a deduplicated set.
func TestEnqueueProcessMessage_AppendsAcrossBursts(t *testing.T) {
	rec := &flushRecorder{}
	q := New(Config{Debounce: 10 * time.Millisecond, ProcessCap: 10}, rec.handle)

	key := Key{ChannelID: "c1", Kind: KindProcessMessage}
	q.EnqueueProcessMessage(key, ProcessEntry{MessageID: "m1", Recipients: []string{"u1"}})
	q.drainIncoming()
	q.EnqueueProcessMessage(key, ProcessEntry{MessageID: "m2", Recipients: []string{"u2"}})
	q.drainIncoming()

	require.Len(t, q.tasks, 1)
	entries := q.tasks[key].item.ProcessMessages
	require.Len(t, entries, 2)
	assert.Equal(t, "m1", entries[0].MessageID)
	assert.Equal(t, "m2", entries[1].MessageID)

	time.Sleep(15 * time.Millisecond)
	q.tick(context.Background())

	require.Equal(t, 1, rec.count())
	assert.Len(t, rec.flushes[0].item.ProcessMessages, 2)
}

// TestEnqueueProcessMessage_CapStopsResettingDeadline checks that once a
// coalesced task reaches ProcessCap, further enqueues still append but no
// longer push the flush deadline out, so a sustained burst still flushes.
func TestEnqueueProcessMessage_CapStopsResettingDeadline(t *testing.T) {
	rec := &flushRecorder{}
	q := New(Config{Debounce: 50 * time.Millisecond, ProcessCap: 2}, rec.handle)

	key := Key{ChannelID: "c1", Kind: KindProcessMessage}
	q.EnqueueProcessMessage(key, ProcessEntry{MessageID: "m1"})
	q.drainIncoming()
	firstDeadline := q.tasks[key].deadline

	q.EnqueueProcessMessage(key, ProcessEntry{MessageID: "m2"})
	q.drainIncoming()
	// At cap: deadline must not have been pushed out further.
	assert.Equal(t, firstDeadline, q.tasks[key].deadline)

	q.EnqueueProcessMessage(key, ProcessEntry{MessageID: "m3"})
	q.drainIncoming()
	assert.Equal(t, firstDeadline, q.tasks[key].deadline)
	assert.Len(t, q.tasks[key].item.ProcessMessages, 3)
}

// TestEnqueue_DropsWhenFull checks the §4.6 failure mode: a full queue
// drops the enqueue (logged) rather than blocking the producer.
func TestEnqueue_DropsWhenFull(t *testing.T) {
	rec := &flushRecorder{}
	q := New(Config{Debounce: time.Second, QueueCapacity: 1}, rec.handle)

	key1 := Key{ChannelID: "c1", Kind: KindAck}
	key2 := Key{ChannelID: "c2", Kind: KindAck}

	done := make(chan struct{})
	go func() {
		q.EnqueueAck(key1, "A")
		q.EnqueueAck(key2, "B") // queue capacity 1 and nothing draining: must not block
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("EnqueueAck blocked on a full queue")
	}
}

// TestRun_FlushesAfterDebounce exercises the real Run loop end to end.
func TestRun_FlushesAfterDebounce(t *testing.T) {
	rec := &flushRecorder{}
	q := New(Config{Debounce: 10 * time.Millisecond}, rec.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()

	key := Key{ChannelID: "c1", Kind: KindAck}
	q.EnqueueAck(key, "A")

	require.Eventually(t, func() bool { return rec.count() == 1 }, 3*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}
