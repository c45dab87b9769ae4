package voice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/embergate/internal/eventbus"
	busmemory "github.com/nextlevelbuilder/embergate/internal/eventbus/memory"
	"github.com/nextlevelbuilder/embergate/internal/presence"
	"github.com/nextlevelbuilder/embergate/pkg/protocol"
)

// drain reads every delivery already buffered on c without blocking.
func drain(t *testing.T, c eventbus.Consumer) []protocol.EventV1 {
	t.Helper()
	var out []protocol.EventV1
	for {
		select {
		case d := <-c.Deliveries():
			ev, err := protocol.Decode(d.Payload)
			require.NoError(t, err)
			out = append(out, ev)
		case <-time.After(20 * time.Millisecond):
			return out
		}
	}
}

func newTestMachine(t *testing.T) (*Machine, *busmemory.Bus) {
	t.Helper()
	bus := busmemory.New(0)
	m := New(presence.NewMemoryStore(), bus, nil, nil)
	return m, bus
}

// TestVoiceMove_NoLeaveEmitted is the §8 testable property ("Voice move")
// and spec scenario 6: joined(U,C1) then, within the move window, left(U,C1)
// and joined(U,C2) must produce Join(C1), the CallStarted notification, then
// Move(C1->C2) on topic C1 — never a Leave.
func TestVoiceMove_NoLeaveEmitted(t *testing.T) {
	m, bus := newTestMachine(t)
	ctx := context.Background()

	c1, err := bus.Consume(ctx, []string{eventbus.ChannelTopic("c1")}, nil)
	require.NoError(t, err)
	defer c1.Close(ctx)
	c2, err := bus.Consume(ctx, []string{eventbus.ChannelTopic("c2")}, nil)
	require.NoError(t, err)
	defer c2.Close(ctx)

	require.NoError(t, m.Handle(ctx, WebhookEvent{Kind: "participant_joined", ChannelID: "c1", UserID: "u1", CreatedAt: 1}))
	require.NoError(t, m.Handle(ctx, WebhookEvent{Kind: "participant_left", ChannelID: "c1", UserID: "u1", CreatedAt: 2}))
	require.NoError(t, m.Handle(ctx, WebhookEvent{Kind: "participant_joined", ChannelID: "c2", UserID: "u1", CreatedAt: 2}))

	c1Events := drain(t, c1)
	c2Events := drain(t, c2)

	// c1 also sees a CallStarted ChannelCreate from the initial join (§4.8
	// "first user" notification); the point under test is that no Leave
	// variant ever appears among them.
	require.Len(t, c1Events, 3)
	assert.Equal(t, protocol.EventVoiceChannelJoin, c1Events[0].Type)
	assert.Equal(t, protocol.EventVoiceChannelMove, c1Events[2].Type)
	for _, ev := range c1Events {
		assert.NotEqual(t, protocol.EventVoiceChannelLeave, ev.Type, "no leave event must be emitted on a move")
	}

	// c2 also sees its own CallStarted notification, since it had no prior
	// members at the time of the move.
	require.Len(t, c2Events, 2)
	assert.Equal(t, protocol.EventVoiceChannelMove, c2Events[0].Type)
	assert.Equal(t, "c1", c2Events[0].FromChannel)
	assert.Equal(t, "c2", c2Events[0].ToChannel)

	// The deferred leave timer must not fire late either.
	time.Sleep(moveWindow + 50*time.Millisecond)
	late := drain(t, c1)
	assert.Empty(t, late)
}

// TestVoiceLeave_NoFollowingJoin_EmitsLeave checks the non-move path: a
// plain leave with no matching joined() within the window still reaches
// subscribers once the deferred timer fires.
func TestVoiceLeave_NoFollowingJoin_EmitsLeave(t *testing.T) {
	m, bus := newTestMachine(t)
	ctx := context.Background()

	c1, err := bus.Consume(ctx, []string{eventbus.ChannelTopic("c1")}, nil)
	require.NoError(t, err)
	defer c1.Close(ctx)

	require.NoError(t, m.Handle(ctx, WebhookEvent{Kind: "participant_joined", ChannelID: "c1", UserID: "u1", CreatedAt: 1}))
	require.NoError(t, m.Handle(ctx, WebhookEvent{Kind: "participant_left", ChannelID: "c1", UserID: "u1", CreatedAt: 2}))

	// Immediately after Left, the Leave must not have published yet: only
	// the join-side events (Join + CallStarted) are visible so far.
	immediate := drain(t, c1)
	for _, ev := range immediate {
		assert.NotEqual(t, protocol.EventVoiceChannelLeave, ev.Type)
	}

	time.Sleep(moveWindow + 50*time.Millisecond)
	later := drain(t, c1)
	require.NotEmpty(t, later)
	assert.Equal(t, protocol.EventVoiceChannelLeave, later[0].Type)
}

// TestVoiceTrack_PublishesStateUpdate exercises track_published/
// track_unpublished against an already-joined participant.
func TestVoiceTrack_PublishesStateUpdate(t *testing.T) {
	m, bus := newTestMachine(t)
	ctx := context.Background()

	c1, err := bus.Consume(ctx, []string{eventbus.ChannelTopic("c1")}, nil)
	require.NoError(t, err)
	defer c1.Close(ctx)

	require.NoError(t, m.Handle(ctx, WebhookEvent{Kind: "participant_joined", ChannelID: "c1", UserID: "u1", CreatedAt: 1}))
	drain(t, c1)

	require.NoError(t, m.Handle(ctx, WebhookEvent{
		Kind: "track_published", ChannelID: "c1", UserID: "u1",
		Track: 2, // TrackMicrophone
	}))

	events := drain(t, c1)
	require.Len(t, events, 1)
	assert.Equal(t, protocol.EventUserVoiceStateUpdate, events[0].Type)
	require.NotNil(t, events[0].VoiceState)
	assert.True(t, events[0].VoiceState.CanPublish)
}

// TestVoiceTrack_UnknownParticipant_IsANoop checks the §4.8 Failure
// contract: an event referring to an unknown channel/user logs and
// succeeds rather than erroring, so the media server never retries it.
func TestVoiceTrack_UnknownParticipant_IsANoop(t *testing.T) {
	m, _ := newTestMachine(t)
	err := m.Handle(context.Background(), WebhookEvent{Kind: "track_published", ChannelID: "ghost", UserID: "nobody"})
	assert.NoError(t, err)
}
