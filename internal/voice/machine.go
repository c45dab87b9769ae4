// Package voice implements VoiceSessionMachine (§4.8): the webhook-driven
// state machine tracking who is connected to which voice channel and what
// they are currently publishing. Grounded on
// original_source/crates/core/voice/src/lib.rs for the presence-store
// transitions, with the join/leave/move coalescing logic described in
// spec.md §4.8 layered on top (the Rust crate only exposes the raw
// pipeline operations; the race-window coalescing lives in the bonfire
// webhook handler, not reproduced verbatim here since it wasn't part of
// the retrieved pack).
package voice

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/embergate/internal/eventbus"
	"github.com/nextlevelbuilder/embergate/internal/model"
	"github.com/nextlevelbuilder/embergate/internal/store"
	"github.com/nextlevelbuilder/embergate/pkg/protocol"
)

// moveWindow bounds how long a Left->Joined pair from the same user is
// coalesced into a single Move event.
const moveWindow = 3 * time.Second

// WebhookEvent is one normalized notification from the external media
// server.
type WebhookEvent struct {
	Kind      string // "participant_joined", "participant_left", "track_published", "track_unpublished"
	ChannelID string
	UserID    string
	ServerID  string // empty for DM/group channels
	Track     model.TrackSource
	CreatedAt int64
}

// MediaServer is the external collaborator capable of forcibly evicting a
// participant. Machine stores the one it is given but never calls it: track
// events are not checked against any per-user limit.
type MediaServer interface {
	RemoveUser(ctx context.Context, channelID, userID string) error
}

// pendingLeave is a Left transition not yet known to be a plain leave or
// the first half of a Move. Its Leave event is held back until moveWindow
// elapses with no matching Joined, so a C1->C2 move never lets the Leave
// reach subscribers (spec scenario 6: "no leave event emitted").
type pendingLeave struct {
	ev WebhookEvent
}

// Machine is the VoiceSessionMachine.
type Machine struct {
	voice  store.VoiceStates
	bus    eventbus.Bus
	stores *store.Stores
	media  MediaServer

	mu      sync.Mutex
	pending map[string]*pendingLeave // userID -> not-yet-fired Left
}

// New constructs a Machine.
func New(voice store.VoiceStates, bus eventbus.Bus, stores *store.Stores, media MediaServer) *Machine {
	return &Machine{
		voice:   voice,
		bus:     bus,
		stores:  stores,
		media:   media,
		pending: make(map[string]*pendingLeave),
	}
}

// Handle dispatches a webhook event to the appropriate transition. Unknown
// channel/user ids are logged and treated as success, since the media
// server must never retry a webhook (§4.8 Failure).
func (m *Machine) Handle(ctx context.Context, ev WebhookEvent) error {
	switch ev.Kind {
	case "participant_joined":
		return m.joined(ctx, ev)
	case "participant_left":
		return m.left(ctx, ev)
	case "track_published":
		return m.track(ctx, ev, true)
	case "track_unpublished":
		return m.track(ctx, ev, false)
	default:
		slog.Warn("voice.unknown_event", "kind", ev.Kind)
		return nil
	}
}

func (m *Machine) joined(ctx context.Context, ev WebhookEvent) error {
	vs := &model.VoiceState{
		ChannelID:    ev.ChannelID,
		UserID:       ev.UserID,
		JoinedAtUnix: ev.CreatedAt,
		CanReceive:   true,
	}

	existingMembers, err := m.voice.MembersOf(ctx, ev.ChannelID)
	if err != nil {
		slog.Error("voice.members_lookup_failed", "channel", ev.ChannelID, "error", err)
	}
	wasEmpty := len(existingMembers) == 0

	if err := m.voice.Set(ctx, vs); err != nil {
		return err
	}

	if from, moved := m.consumeRecentLeave(ev.UserID); moved {
		m.publish(ctx, eventbus.ChannelTopic(from), protocol.EventV1{
			Type:        protocol.EventVoiceChannelMove,
			UserID:      ev.UserID,
			FromChannel: from,
			ToChannel:   ev.ChannelID,
		})
		m.publish(ctx, eventbus.ChannelTopic(ev.ChannelID), protocol.EventV1{
			Type:        protocol.EventVoiceChannelMove,
			UserID:      ev.UserID,
			FromChannel: from,
			ToChannel:   ev.ChannelID,
		})
		if wasEmpty {
			m.notifyCallStarted(ctx, ev)
		}
		return nil
	}

	m.publish(ctx, eventbus.ChannelTopic(ev.ChannelID), protocol.EventV1{
		Type:      protocol.EventVoiceChannelJoin,
		ChannelID: ev.ChannelID,
		UserID:    ev.UserID,
	})

	if wasEmpty {
		m.notifyCallStarted(ctx, ev)
	}
	return nil
}

// left tears down voice state immediately but holds the Leave event back
// for moveWindow: if a Joined for the same user arrives within the window,
// joined() consumes the pending entry and coalesces the pair into a Move
// instead, and the Leave below never fires.
func (m *Machine) left(ctx context.Context, ev WebhookEvent) error {
	if err := m.voice.Delete(ctx, ev.ChannelID, ev.UserID); err != nil {
		slog.Error("voice.delete_failed", "channel", ev.ChannelID, "user", ev.UserID, "error", err)
	}

	pl := &pendingLeave{ev: ev}
	m.mu.Lock()
	m.pending[ev.UserID] = pl
	m.mu.Unlock()

	time.AfterFunc(moveWindow, func() { m.fireDeferredLeave(ev.UserID, pl) })
	return nil
}

// fireDeferredLeave publishes the Leave event and runs the call-ended check
// for a pending Left that no Joined consumed within moveWindow. If the
// entry was already consumed (coalesced into a Move) or replaced by a
// newer Left for the same user, it no-ops.
func (m *Machine) fireDeferredLeave(userID string, pl *pendingLeave) {
	m.mu.Lock()
	cur, ok := m.pending[userID]
	if !ok || cur != pl {
		m.mu.Unlock()
		return
	}
	delete(m.pending, userID)
	m.mu.Unlock()

	ctx := context.Background()
	ev := pl.ev

	m.publish(ctx, eventbus.ChannelTopic(ev.ChannelID), protocol.EventV1{
		Type:      protocol.EventVoiceChannelLeave,
		ChannelID: ev.ChannelID,
		UserID:    ev.UserID,
	})

	members, err := m.voice.MembersOf(ctx, ev.ChannelID)
	if err != nil {
		slog.Error("voice.members_lookup_failed", "channel", ev.ChannelID, "error", err)
	}
	if len(members) == 0 {
		m.notifyCallEnded(ctx, ev)
	}
}

func (m *Machine) track(ctx context.Context, ev WebhookEvent, published bool) error {
	vs, err := m.voice.Get(ctx, ev.ChannelID, ev.UserID)
	if err != nil {
		slog.Error("voice.track_lookup_failed", "channel", ev.ChannelID, "user", ev.UserID, "error", err)
		return nil
	}
	if vs == nil {
		slog.Warn("voice.track_unknown_participant", "channel", ev.ChannelID, "user", ev.UserID)
		return nil
	}

	vs.ApplyTrack(ev.Track, published)
	if err := m.voice.Set(ctx, vs); err != nil {
		return err
	}

	m.publish(ctx, eventbus.ChannelTopic(ev.ChannelID), protocol.EventV1{
		Type:       protocol.EventUserVoiceStateUpdate,
		ID:         ev.UserID,
		ChannelID:  ev.ChannelID,
		VoiceState: vs,
	})
	return nil
}

// consumeRecentLeave looks for a not-yet-fired Left from userID and, if
// found, claims it: the caller is about to coalesce it into a Move, and
// the deferred Leave publish in fireDeferredLeave must not also fire.
func (m *Machine) consumeRecentLeave(userID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pl, ok := m.pending[userID]
	if !ok {
		return "", false
	}
	delete(m.pending, userID)
	return pl.ev.ChannelID, true
}

func (m *Machine) notifyCallStarted(ctx context.Context, ev WebhookEvent) {
	if m.stores != nil {
		_ = m.stores.Messages.Insert(ctx, &model.Message{
			ID:        model.NewID(),
			ChannelID: ev.ChannelID,
			System:    &model.SystemMessage{Kind: "CallStarted", ByUserID: ev.UserID},
		})
	}
	m.publish(ctx, eventbus.ChannelTopic(ev.ChannelID), protocol.EventV1{
		Type:      protocol.EventChannelCreate,
		ChannelID: ev.ChannelID,
		Reason:    "CallStarted",
	})
}

func (m *Machine) notifyCallEnded(ctx context.Context, ev WebhookEvent) {
	m.publish(ctx, eventbus.ChannelTopic(ev.ChannelID), protocol.EventV1{
		Type:      protocol.EventChannelUpdate,
		ChannelID: ev.ChannelID,
		Reason:    "CallEnded",
	})
}

func (m *Machine) publish(ctx context.Context, topic string, event protocol.EventV1) {
	data, err := protocol.Encode(event)
	if err != nil {
		slog.Error("voice.encode_failed", "error", err)
		return
	}
	if err := m.bus.Publish(ctx, topic, data); err != nil {
		slog.Error("voice.publish_failed", "topic", topic, "error", err)
	}
}
