// Package store defines the persistence capability interfaces named in
// §6.6, generalizing the teacher's internal/store.Stores aggregator
// (internal/store/stores.go) from an agent-bridge capability bag to the
// chat-platform collections this core depends on. The core depends only on
// these capabilities, never on a concrete backend, per design note §9.
package store

import (
	"context"

	"github.com/nextlevelbuilder/embergate/internal/model"
)

// MessageFilter narrows a Messages.Query call.
type MessageFilter struct {
	Channel string
	Author  string
	Query   string
	Pinned  *bool
	Limit   int
}

// Users is the user-collection capability.
type Users interface {
	Fetch(ctx context.Context, id string) (*model.User, error)
	FetchByUsername(ctx context.Context, username, discriminator string) (*model.User, error)
	Insert(ctx context.Context, u *model.User) error
	Update(ctx context.Context, u *model.User) error
}

// Channels is the channel-collection capability.
type Channels interface {
	Fetch(ctx context.Context, id string) (*model.Channel, error)
	Insert(ctx context.Context, c *model.Channel) error
	Update(ctx context.Context, c *model.Channel) error
	Delete(ctx context.Context, id string) error
}

// Messages is the message-collection capability.
type Messages interface {
	Insert(ctx context.Context, m *model.Message) error
	Fetch(ctx context.Context, id string) (*model.Message, error)
	Query(ctx context.Context, filter MessageFilter) ([]model.Message, error)
	Update(ctx context.Context, id string, partial *model.PartialMessage) error
	Append(ctx context.Context, id string, append *model.AppendMessage) error
	Delete(ctx context.Context, id string) error
	DeleteByChannel(ctx context.Context, channel string, ids []string) error
	AddReaction(ctx context.Context, id, emoji, userID string) error
	RemoveReaction(ctx context.Context, id, emoji, userID string) error
	ClearReaction(ctx context.Context, id, emoji string) error
}

// Servers is the server-collection capability.
type Servers interface {
	Fetch(ctx context.Context, id string) (*model.Server, error)
	Insert(ctx context.Context, s *model.Server) error
	Update(ctx context.Context, s *model.Server) error
	Delete(ctx context.Context, id string) error
}

// MemberIterator is a restartable, chunked snapshot of members, per §6.5:
// "returns a restartable streaming iterator yielding chunks of at most
// pushd.mass_mention_chunk_size records."
type MemberIterator interface {
	Next(ctx context.Context) ([]model.Member, bool, error)
}

// Members is the server_members-collection capability.
type Members interface {
	Fetch(ctx context.Context, serverID, userID string) (*model.Member, error)
	Insert(ctx context.Context, m *model.Member) error
	Update(ctx context.Context, m *model.Member) error
	Delete(ctx context.Context, serverID, userID string) error

	// AllChunked streams all members of a server in bounded chunks, per
	// §6.5/§4.7's chunking invariant (no single call may return more than
	// chunkSize records).
	AllChunked(ctx context.Context, serverID string, chunkSize int) (MemberIterator, error)
	// WithRolesChunked streams members holding any of roleIDs, same
	// chunking contract.
	WithRolesChunked(ctx context.Context, serverID string, roleIDs []string, chunkSize int) (MemberIterator, error)

	// RemoveRoleFromAll strips roleID from every member of serverID, the
	// cascade step of DeleteRole (§4.5/§8).
	RemoveRoleFromAll(ctx context.Context, serverID, roleID string) error
}

// VoiceStates is the voice-state capability (backed by the presence store
// in practice, §6.8).
type VoiceStates interface {
	Get(ctx context.Context, channelID, userID string) (*model.VoiceState, error)
	Set(ctx context.Context, v *model.VoiceState) error
	Delete(ctx context.Context, channelID, userID string) error
	MembersOf(ctx context.Context, channelID string) ([]string, error)
}

// Stores aggregates every storage capability the core depends on. Unlike
// the teacher's agent-bridge Stores (where managed-only fields are nil in
// standalone mode), every field here is required: every concrete backend
// (reference, postgres, sqlite) populates all of them.
type Stores struct {
	Users       Users
	Channels    Channels
	Messages    Messages
	Servers     Servers
	Members     Members
	VoiceStates VoiceStates
}
