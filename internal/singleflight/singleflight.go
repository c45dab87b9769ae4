// Package singleflight deduplicates concurrent identical work by key,
// generalizing golang.org/x/sync/singleflight's single-in-flight-call shape
// with an optional bounded LRU result cache and an optional fair FIFO queue,
// matching the "coalescion service" algorithm described in §4.1.
package singleflight

import (
	"container/list"
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Failure modes per §4.1.
var (
	ErrMaxConcurrent = errors.New("singleflight: max concurrent in-flight calls reached")
	ErrMaxQueue       = errors.New("singleflight: queue depth exceeded")
	ErrRecv           = errors.New("singleflight: result channel dropped before publication")
)

type call[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Config controls the optional concurrency limit, queue and cache.
type Config struct {
	// MaxConcurrent caps the number of producers running at once per Group.
	// Zero means unlimited.
	MaxConcurrent int
	// MaxQueue caps the FIFO queue depth when MaxConcurrent is exceeded.
	// Zero (with MaxConcurrent set) rejects immediately with ErrMaxConcurrent
	// instead of queueing.
	MaxQueue int
	// CacheSize, if > 0, enables a bounded LRU result cache shared across
	// keys; successful results are cached, failures are not.
	CacheSize int
}

// Group coalesces calls to Execute by key, parameterised over key type K
// (comparable) and result type V.
type Group[K comparable, V any] struct {
	mu      sync.Mutex
	inflight map[K]*call[V]
	queue   map[K]*list.List // FIFO of waiter channels, ordered by arrival
	running int
	cache   *lru.Cache[K, V]
	cfg     Config
}

// New constructs a Group. cfg may be the zero value for unlimited
// concurrency and no cache.
func New[K comparable, V any](cfg Config) *Group[K, V] {
	g := &Group[K, V]{
		inflight: make(map[K]*call[V]),
		queue:   make(map[K]*list.List),
		cfg:     cfg,
	}
	if cfg.CacheSize > 0 {
		c, err := lru.New[K, V](cfg.CacheSize)
		if err == nil {
			g.cache = c
		}
	}
	return g
}

// Execute runs fn for key, or returns the in-flight/cached result if one
// already exists. At most one concurrent execution of fn per key is ever
// running (shared ownership of the result across concurrent callers).
func (g *Group[K, V]) Execute(key K, fn func() (V, error)) (V, error) {
	g.mu.Lock()

	if g.cache != nil {
		if v, ok := g.cache.Get(key); ok {
			g.mu.Unlock()
			return v, nil
		}
	}

	if c, ok := g.inflight[key]; ok {
		g.mu.Unlock()
		<-c.done
		return c.val, c.err
	}

	if g.cfg.MaxConcurrent > 0 && g.running >= g.cfg.MaxConcurrent {
		if g.cfg.MaxQueue <= 0 {
			g.mu.Unlock()
			var zero V
			return zero, ErrMaxConcurrent
		}
		return g.enqueueAndWait(key, fn)
	}

	return g.runLocked(key, fn)
}

// runLocked must be called with g.mu held; it registers key as in-flight,
// releases the lock, runs fn, then publishes and (on success) caches the
// result.
func (g *Group[K, V]) runLocked(key K, fn func() (V, error)) (V, error) {
	c := &call[V]{done: make(chan struct{})}
	g.inflight[key] = c
	g.running++
	g.mu.Unlock()

	c.val, c.err = fn()
	close(c.done)

	g.mu.Lock()
	delete(g.inflight, key)
	g.running--
	if c.err == nil && g.cache != nil {
		g.cache.Add(key, c.val)
	}
	g.promoteQueueLocked()
	g.mu.Unlock()

	return c.val, c.err
}

// enqueueAndWait admits the caller to the FIFO queue for key and blocks
// until it becomes the queue head and a concurrency slot frees up, then
// runs fn. Queue head is determined strictly by insertion order.
func (g *Group[K, V]) enqueueAndWait(key K, fn func() (V, error)) (V, error) {
	q, ok := g.queue[key]
	if !ok {
		q = list.New()
		g.queue[key] = q
	}
	if g.cfg.MaxQueue > 0 && q.Len() >= g.cfg.MaxQueue {
		g.mu.Unlock()
		var zero V
		return zero, ErrMaxQueue
	}

	wake := make(chan struct{})
	q.PushBack(wake)
	g.mu.Unlock()

	<-wake

	// promoteQueueLocked only wakes one waiter once a concurrency slot is
	// free, and reserved that slot for us by incrementing g.running; hand
	// the reservation back under the lock, since runLocked counts it again.
	g.mu.Lock()
	g.running--
	return g.runLocked(key, fn)
}

// promoteQueueLocked must be called with g.mu held and does not release it.
// It wakes the head of one key's queue, if any, once a concurrency slot is
// available, and reserves that slot for the woken waiter.
func (g *Group[K, V]) promoteQueueLocked() {
	if g.cfg.MaxConcurrent == 0 || g.running >= g.cfg.MaxConcurrent {
		return
	}
	for key, q := range g.queue {
		if q.Len() == 0 {
			delete(g.queue, key)
			continue
		}
		front := q.Front()
		q.Remove(front)
		if q.Len() == 0 {
			delete(g.queue, key)
		}
		wake := front.Value.(chan struct{})
		g.running++
		close(wake)
		return
	}
}

// InFlight reports the number of keys currently executing.
func (g *Group[K, V]) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inflight)
}

// QueueLen reports the queued caller count for key.
func (g *Group[K, V]) QueueLen(key K) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if q, ok := g.queue[key]; ok {
		return q.Len()
	}
	return 0
}
