package mutate

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nextlevelbuilder/embergate/internal/apierr"
	"github.com/nextlevelbuilder/embergate/internal/debounce"
	"github.com/nextlevelbuilder/embergate/internal/eventbus"
	"github.com/nextlevelbuilder/embergate/internal/store"
	"github.com/nextlevelbuilder/embergate/pkg/protocol"
)

// Mutator groups the storage, broker and debounce collaborators every
// domain mutator needs: the *store.Stores capability set, an eventbus.Bus
// and the debounce queue.
type Mutator struct {
	Stores   *store.Stores
	Bus      eventbus.Bus
	Debounce *debounce.Queue

	nonces *lru.Cache[string, struct{}]
}

// New constructs a Mutator. debounceQueue may be nil in tests that don't
// exercise SendMessage's mention-processing enqueue.
func New(stores *store.Stores, bus eventbus.Bus, debounceQueue *debounce.Queue) *Mutator {
	nonces, _ := lru.New[string, struct{}](nonceCacheSize)
	return &Mutator{Stores: stores, Bus: bus, Debounce: debounceQueue, nonces: nonces}
}

// publish encodes and publishes event on topic, wrapping encode failures as
// an internal error since a malformed EventV1 is a programmer bug, not an
// operational one.
func (m *Mutator) publish(ctx context.Context, topic string, event protocol.EventV1) error {
	data, err := protocol.Encode(event)
	if err != nil {
		return apierr.Internal(err)
	}
	if err := m.Bus.Publish(ctx, topic, data); err != nil {
		return apierr.Database("publish", topic, err)
	}
	return nil
}

// consumeNonce reports whether nonce was already seen (and so the caller
// must fail with DuplicateNonce), recording it if not. Per §4.5's
// "consumes an idempotency key" contract — scoped to process memory since
// the core has no separate nonce-ledger storage capability.
func (m *Mutator) consumeNonce(nonce string) bool {
	if nonce == "" || m.nonces == nil {
		return false
	}
	if _, seen := m.nonces.Get(nonce); seen {
		return true
	}
	m.nonces.Add(nonce, struct{}{})
	return false
}
