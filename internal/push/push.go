// Package push implements the PushDispatcher of §4.7: every job goes
// through the single Dispatch entry point (there is no separate job-stream
// per payload kind) and is routed per-session to the subscription's stored
// transport (apn/fcm/web-push), with a chunked mass-mention fan-out
// grounded on
// original_source/crates/daemons/pushd/src/consumers/inbound/mass_mention.rs.
package push

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nextlevelbuilder/embergate/internal/apierr"
	"github.com/nextlevelbuilder/embergate/internal/model"
	"github.com/nextlevelbuilder/embergate/internal/permissions"
	"github.com/nextlevelbuilder/embergate/internal/presence"
	"github.com/nextlevelbuilder/embergate/internal/store"
)

// Kind tags the payload shape, per §4.7's job-stream enumeration.
type Kind string

const (
	KindGeneric              Kind = "generic"
	KindFriendRequestReceived Kind = "friend_request_received"
	KindFriendRequestAccepted Kind = "friend_request_accepted"
	KindMessage              Kind = "message"
	KindMassMention          Kind = "mass_mention"
	KindDMCallUpdated        Kind = "dm_call_updated"
	KindAckBadgeUpdate       Kind = "ack_badge_update"
)

// Endpoint names a transport, matching the session subscription's stored
// endpoint tag.
type Endpoint string

const (
	EndpointAPN     Endpoint = "apn"
	EndpointFCM     Endpoint = "fcm"
	EndpointWebPush Endpoint = "web-push"
)

// ErrUnregistered is returned by a Transport when the remote endpoint
// reports the subscription as dead (APN 410, FCM auth error, web-push 401),
// signalling the Dispatcher to prune it.
var ErrUnregistered = errors.New("push: subscription unregistered")

// Notification is the transport-agnostic payload; BadgeCount is only
// meaningful to apn/web-push, FCM rejects a bare badge update per §4.7.
type Notification struct {
	Kind       Kind
	Title      string
	Body       string
	BadgeCount *int
	Data       map[string]string
}

// Subscription is a session's stored push registration.
type Subscription struct {
	UserID    string
	SessionID string
	Endpoint  Endpoint
	Token     string // APN device token / FCM registration token
	P256DH    string // web-push only
	Auth      string // web-push only
}

// Transport sends one Notification to one Subscription.
type Transport interface {
	Send(ctx context.Context, sub Subscription, n Notification) error
}

// SubscriptionStore looks up and prunes session push subscriptions. The
// core has no dedicated session-subscription capability in §6.6's store
// interfaces (sessions are authifier's concern in the original, out of
// scope per §1's Non-goals), so callers supply their own collaborator.
type SubscriptionStore interface {
	SubscriptionsFor(ctx context.Context, userIDs []string) ([]Subscription, error)
	RemoveSubscription(ctx context.Context, userID, sessionID string) error
}

// Dispatcher routes jobs to the transport for their subscription's
// endpoint tag, per §4.7.
type Dispatcher struct {
	Transports map[Endpoint]Transport
	Subs       SubscriptionStore
	Presence   presence.Presence
	Stores     *store.Stores
	ChunkSize  int
}

// Job is one inbound push task.
type Job struct {
	UserID       string
	Notification Notification
}

// Dispatch sends n to every subscription of job.UserID, pruning dead
// subscriptions reported via ErrUnregistered.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) error {
	subs, err := d.Subs.SubscriptionsFor(ctx, []string{job.UserID})
	if err != nil {
		return apierr.Internal(err)
	}
	for _, sub := range subs {
		d.send(ctx, sub, job.Notification)
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, sub Subscription, n Notification) {
	if n.Kind == KindAckBadgeUpdate && sub.Endpoint == EndpointFCM {
		// FCM cannot represent a bare badge update, per §4.7.
		return
	}
	transport, ok := d.Transports[sub.Endpoint]
	if !ok {
		return
	}
	if err := transport.Send(ctx, sub, n); err != nil {
		if errors.Is(err, ErrUnregistered) {
			if rmErr := d.Subs.RemoveSubscription(ctx, sub.UserID, sub.SessionID); rmErr != nil {
				slog.Error("push.remove_subscription_failed", "user_id", sub.UserID, "error", rmErr)
			}
			return
		}
		slog.Warn("push.send_failed", "user_id", sub.UserID, "endpoint", sub.Endpoint, "error", err)
	}
}

// chunkSize returns d.ChunkSize or a 1000-record default, honouring the
// "no single query may return more than the configured chunk size"
// invariant of §4.7/§6.5.
func (d *Dispatcher) chunkSize() int {
	if d.ChunkSize > 0 {
		return d.ChunkSize
	}
	return 1000
}

// DispatchEveryoneMention streams every member of serverID in bounded
// chunks, subtracts users already individually mentioned and users
// currently online, and dispatches n to the rest — the @everyone branch of
// mass_mention.rs's consume_event.
func (d *Dispatcher) DispatchEveryoneMention(ctx context.Context, serverID, channelID string, alreadyMentioned map[string]bool, n Notification) error {
	it, err := d.Stores.Members.AllChunked(ctx, serverID, d.chunkSize())
	if err != nil {
		return err
	}
	return d.fanOutChunks(ctx, it, alreadyMentioned, n)
}

// DispatchRoleMention streams members holding any of roleIDs in bounded
// chunks, applies the channel-view permission check to each member (one
// permissions.Channel call per member, against the server and channel
// fetched once), subtracts already-mentioned and online users, and
// dispatches.
func (d *Dispatcher) DispatchRoleMention(ctx context.Context, serverID, channelID string, roleIDs []string, alreadyMentioned map[string]bool, n Notification) error {
	it, err := d.Stores.Members.WithRolesChunked(ctx, serverID, roleIDs, d.chunkSize())
	if err != nil {
		return err
	}

	srv, err := d.Stores.Servers.Fetch(ctx, serverID)
	if err != nil {
		return err
	}
	ch, err := d.Stores.Channels.Fetch(ctx, channelID)
	if err != nil {
		return err
	}

	return d.fanOutChunksFiltered(ctx, it, alreadyMentioned, n, func(userID string, roles []string) bool {
		member := &model.Member{UserID: userID, Roles: roles}
		perms := permissions.Channel(permissions.Query{
			Perspective: permissions.Perspective{UserID: userID},
			Channel:     ch,
			Server:      &permissions.ServerContext{Server: srv, Member: member},
		})
		return permissions.Has(perms, permissions.ViewChannel)
	})
}

func (d *Dispatcher) fanOutChunks(ctx context.Context, it store.MemberIterator, alreadyMentioned map[string]bool, n Notification) error {
	return d.fanOutChunksFiltered(ctx, it, alreadyMentioned, n, nil)
}

func (d *Dispatcher) fanOutChunksFiltered(ctx context.Context, it store.MemberIterator, alreadyMentioned map[string]bool, n Notification, viewFilter func(userID string, roles []string) bool) error {
	for {
		members, done, err := it.Next(ctx)
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(members))
		for _, mem := range members {
			if alreadyMentioned[mem.UserID] {
				continue
			}
			if viewFilter != nil && !viewFilter(mem.UserID, mem.Roles) {
				continue
			}
			ids = append(ids, mem.UserID)
		}

		online, err := d.Presence.FilterOnline(ctx, ids)
		if err != nil {
			return apierr.Internal(err)
		}
		onlineSet := make(map[string]bool, len(online))
		for _, id := range online {
			onlineSet[id] = true
		}

		for _, id := range ids {
			if onlineSet[id] {
				continue
			}
			subs, err := d.Subs.SubscriptionsFor(ctx, []string{id})
			if err != nil {
				slog.Error("push.mass_mention_lookup_failed", "user_id", id, "error", err)
				continue
			}
			for _, sub := range subs {
				d.send(ctx, sub, n)
			}
		}

		if done {
			return nil
		}
	}
}
