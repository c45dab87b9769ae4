// Package session implements SubscriberSession: per-connection WebSocket
// state described in §4.4 — the live subscription set, the pending
// subscription diff, the active-servers TTL-LRU, and the seen-events LRU
// used for idempotency across reconnects. Grounded on
// original_source/crates/bonfire/src/events/state.rs, generalizing the
// teacher's RWMutex-protected session-state pattern
// (internal/sessions/manager.go) to this connection-scoped shape.
package session

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	expirable "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/nextlevelbuilder/embergate/internal/eventbus"
)

const (
	activeServersCap = 5
	activeServersTTL = 15 * time.Minute
	seenEventsCap    = 20
)

// ChangeKind tags the pending subscription diff per §4.4's
// pending: enum{None, Reset, Change{add,remove}}.
type ChangeKind int

const (
	ChangeNone ChangeKind = iota
	ChangeReset
	ChangeDelta
)

// PendingChange is the accumulated diff to apply at the next consumer
// rebuild.
type PendingChange struct {
	Kind   ChangeKind
	Add    []string
	Remove []string
}

// Session is one connection's subscriber state.
type Session struct {
	UserID       string
	SessionID    string
	IsBot        bool
	PrivateTopic string

	mu         sync.RWMutex
	subscribed map[string]struct{}
	pending    PendingChange

	activeServers *expirable.LRU[string, struct{}]
	seenEvents    *lru.Cache[string, struct{}]

	// onServerExpire is invoked (outside any lock) when a server drops out
	// of activeServers, so the caller can unsubscribe its "<server-id>u"
	// topic — mirroring state.rs's expiry-driven unsubscribe.
	onServerExpire func(serverID string)
}

// New constructs a Session authenticated for userID/sessionID.
func New(userID, sessionID string, isBot bool, onServerExpire func(string)) *Session {
	s := &Session{
		UserID:         userID,
		SessionID:      sessionID,
		IsBot:          isBot,
		PrivateTopic:   eventbus.PrivateTopic(userID),
		subscribed:     make(map[string]struct{}),
		onServerExpire: onServerExpire,
	}
	s.seenEvents, _ = lru.New[string, struct{}](seenEventsCap)
	s.activeServers = expirable.NewLRU[string, struct{}](activeServersCap, func(serverID string, _ struct{}) {
		if s.onServerExpire != nil {
			s.onServerExpire(serverID)
		}
	}, activeServersTTL)

	s.subscribed[s.PrivateTopic] = struct{}{}
	s.subscribed[eventbus.UserTopic(userID)] = struct{}{}
	return s
}

// Snapshot returns the current subscription set as a slice, for building a
// new broker consumer's filter args.
func (s *Session) Snapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.subscribed))
	for t := range s.subscribed {
		out = append(out, t)
	}
	return out
}

// IsSubscribed reports whether topic is currently in the live filter.
func (s *Session) IsSubscribed(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subscribed[topic]
	return ok
}

// Subscribe adds topics to the pending diff, to be applied on next rebuild.
// The write guard is held only across the diff-apply, then released before
// any reload signal is sent, per §5's shared-resource policy.
func (s *Session) Subscribe(topics ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.Kind == ChangeNone {
		s.pending.Kind = ChangeDelta
	}
	s.pending.Add = append(s.pending.Add, topics...)
}

// Unsubscribe removes topics from the pending diff.
func (s *Session) Unsubscribe(topics ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.Kind == ChangeNone {
		s.pending.Kind = ChangeDelta
	}
	s.pending.Remove = append(s.pending.Remove, topics...)
}

// Reset marks the whole subscription set dirty (full re-hydration), used
// when a resumed offset has fallen out of broker retention (§4.2).
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = PendingChange{Kind: ChangeReset}
}

// TouchServer marks serverID as recently interacted with, subscribing its
// member-fanout topic if not already active.
func (s *Session) TouchServer(serverID string) {
	_, existed := s.activeServers.Get(serverID)
	s.activeServers.Add(serverID, struct{}{})
	if !existed {
		s.Subscribe(eventbus.ServerTopic(serverID))
	}
}

// SeenEvent reports whether eventID has already been delivered to this
// session (idempotency across reconnect replay, §4.4 step 3) and records it
// if not.
func (s *Session) SeenEvent(eventID string) bool {
	if eventID == "" {
		return false
	}
	if _, ok := s.seenEvents.Get(eventID); ok {
		return true
	}
	s.seenEvents.Add(eventID, struct{}{})
	return false
}

// ApplyPending applies the accumulated diff to subscribed and clears it,
// returning the resulting ChangeKind (None if nothing was pending). Per the
// "Subscription diff apply" testable property (§8): after applying,
// subscribed equals previous plus Add minus Remove exactly, and pending
// becomes None.
func (s *Session) ApplyPending() ChangeKind {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := s.pending.Kind
	switch kind {
	case ChangeNone:
		return ChangeNone
	case ChangeReset:
		// Reset leaves the topic set as-is (the caller re-hydrates state
		// from storage); only the consumer needs rebuilding.
	case ChangeDelta:
		for _, t := range s.pending.Add {
			s.subscribed[t] = struct{}{}
		}
		for _, t := range s.pending.Remove {
			delete(s.subscribed, t)
		}
	}
	s.pending = PendingChange{Kind: ChangeNone}
	return kind
}
