package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nextlevelbuilder/embergate/internal/model"
)

func TestChannel_ServerOwnerIsAllSafe(t *testing.T) {
	srv := &model.Server{ID: "s1", OwnerID: "owner"}
	ch := &model.Channel{ID: "c1", Type: model.ChannelText, ServerID: "s1"}

	v := Channel(Query{
		Perspective: Perspective{UserID: "owner"},
		Channel:     ch,
		Server:      &ServerContext{Server: srv},
	})
	assert.Equal(t, GrantAllSafe, v)
}

// Scenario 3 from §8.
func TestChannel_RolePrecedence(t *testing.T) {
	srv := &model.Server{
		ID:                 "s1",
		OwnerID:             "owner",
		DefaultPermissions: ViewChannel | SendMessage | ReadMessageHistory,
		Roles: map[string]model.Role{
			"r1": {ID: "r1", Rank: 10, Permissions: model.Override{Allow: UploadFiles | React, Deny: ReadMessageHistory}},
		},
	}
	ch := &model.Channel{
		ID: "c1", Type: model.ChannelText, ServerID: "s1",
		DefaultPermission: &model.Override{Deny: SendMessage},
		RolePermissions:   map[string]model.Override{"r1": {Deny: React}},
	}
	member := &model.Member{ServerID: "s1", UserID: "u1", Roles: []string{"r1"}}

	v := Channel(Query{
		Perspective: Perspective{UserID: "u1"},
		Channel:     ch,
		Server:      &ServerContext{Server: srv, Member: member},
	})
	assert.Equal(t, ViewChannel|UploadFiles, v)
}

// Scenario 4 from §8.
func TestChannel_Timeout(t *testing.T) {
	srv := &model.Server{
		ID: "s1", OwnerID: "owner",
		DefaultPermissions: ViewChannel | SendMessage | ReadMessageHistory,
		Roles: map[string]model.Role{
			"r1": {ID: "r1", Rank: 10, Permissions: model.Override{Allow: UploadFiles | React, Deny: ReadMessageHistory}},
		},
	}
	ch := &model.Channel{
		ID: "c1", Type: model.ChannelText, ServerID: "s1",
		DefaultPermission: &model.Override{Deny: SendMessage},
		RolePermissions:   map[string]model.Override{"r1": {Deny: React}},
	}
	member := &model.Member{ServerID: "s1", UserID: "u1", Roles: []string{"r1"}, TimeoutUnix: 9999999999}

	v := Channel(Query{
		Perspective: Perspective{UserID: "u1"},
		Channel:     ch,
		Server:      &ServerContext{Server: srv, Member: member, NowUnix: 1000},
	})
	assert.Equal(t, ViewChannel, v)
	assert.Zero(t, v&^ALLOWInTimeout)
}

func TestChannel_DMDefaultAndBlocked(t *testing.T) {
	ch := &model.Channel{ID: "d1", Type: model.ChannelDirectMessage, Recipients: []string{"u1", "u2"}}

	v := Channel(Query{Perspective: Perspective{UserID: "u1"}, Channel: ch, OtherRecipientPermission: SendMessage})
	assert.Equal(t, DMDefault, v)

	v = Channel(Query{Perspective: Perspective{UserID: "u1"}, Channel: ch, OtherRecipientPermission: 0})
	assert.Equal(t, ViewOnly, v)
}

func TestChannel_RoleRankMonotonicity(t *testing.T) {
	srv := &model.Server{
		ID: "s1", OwnerID: "owner",
		Roles: map[string]model.Role{
			"low":  {ID: "low", Rank: 1, Permissions: model.Override{Allow: SendMessage}},
			"high": {ID: "high", Rank: 10, Permissions: model.Override{Deny: SendMessage}},
		},
	}
	member := &model.Member{ServerID: "s1", UserID: "u1", Roles: []string{"low", "high"}}
	ch := &model.Channel{ID: "c1", Type: model.ChannelText, ServerID: "s1"}

	v := Channel(Query{Perspective: Perspective{UserID: "u1"}, Channel: ch, Server: &ServerContext{Server: srv, Member: member}})
	assert.True(t, Has(v, SendMessage), "lowest-rank role must be applied last and win")
}

func TestBulkQuery_MatchesSingleAlgorithm(t *testing.T) {
	srv := &model.Server{
		ID: "s1", OwnerID: "owner",
		DefaultPermissions: ViewChannel,
		Roles: map[string]model.Role{
			"r1": {ID: "r1", Rank: 5, Permissions: model.Override{Allow: SendMessage}},
		},
	}
	ch := &model.Channel{ID: "c1", Type: model.ChannelText, ServerID: "s1"}
	members := []model.Member{
		{ServerID: "s1", UserID: "u1", Roles: []string{"r1"}},
		{ServerID: "s1", UserID: "u2"},
	}

	bulk := BulkQuery{Server: srv, Channel: ch}.ForMembers(members)

	single1 := Channel(Query{Perspective: Perspective{UserID: "u1"}, Channel: ch, Server: &ServerContext{Server: srv, Member: &members[0]}})
	single2 := Channel(Query{Perspective: Perspective{UserID: "u2"}, Channel: ch, Server: &ServerContext{Server: srv, Member: &members[1]}})

	assert.Equal(t, single1, bulk["u1"])
	assert.Equal(t, single2, bulk["u2"])
}
