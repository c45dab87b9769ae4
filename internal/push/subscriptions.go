package push

import (
	"context"
	"sync"
)

// MemorySubscriptionStore is the in-memory SubscriptionStore used by the
// reference storage backend and by tests. The core has no dedicated
// session-subscription capability in §6.6 (push-subscription storage is
// authifier's concern in the original, out of scope per §1's Non-goals),
// so this is the only implementation; a real deployment backing sessions
// with Postgres would add a Postgres-backed SubscriptionStore alongside
// this one once that capability is added to internal/store.
type MemorySubscriptionStore struct {
	mu   sync.RWMutex
	subs map[string][]Subscription // keyed by user id
}

// NewMemorySubscriptionStore constructs an empty store.
func NewMemorySubscriptionStore() *MemorySubscriptionStore {
	return &MemorySubscriptionStore{subs: make(map[string][]Subscription)}
}

// Put registers or replaces a session's subscription.
func (s *MemorySubscriptionStore) Put(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.subs[sub.UserID]
	for i, e := range existing {
		if e.SessionID == sub.SessionID {
			existing[i] = sub
			return
		}
	}
	s.subs[sub.UserID] = append(existing, sub)
}

func (s *MemorySubscriptionStore) SubscriptionsFor(_ context.Context, userIDs []string) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Subscription
	for _, id := range userIDs {
		out = append(out, s.subs[id]...)
	}
	return out, nil
}

func (s *MemorySubscriptionStore) RemoveSubscription(_ context.Context, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.subs[userID]
	for i, e := range existing {
		if e.SessionID == sessionID {
			s.subs[userID] = append(existing[:i], existing[i+1:]...)
			return nil
		}
	}
	return nil
}
