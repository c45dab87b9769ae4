package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyPending_AddMinusRemove(t *testing.T) {
	s := New("u1", "sess1", false, nil)
	before := s.Snapshot()

	s.Subscribe("c1", "c2")
	s.Unsubscribe(s.PrivateTopic)
	kind := s.ApplyPending()
	assert.Equal(t, ChangeDelta, kind)

	after := s.Snapshot()
	assert.Contains(t, after, "c1")
	assert.Contains(t, after, "c2")
	assert.NotContains(t, after, s.PrivateTopic)
	assert.NotEqual(t, before, after)

	assert.Equal(t, ChangeNone, s.ApplyPending())
}

func TestSeenEvent_Idempotent(t *testing.T) {
	s := New("u1", "sess1", false, nil)
	assert.False(t, s.SeenEvent("e1"))
	assert.True(t, s.SeenEvent("e1"))
}

func TestIsSubscribed_TopicFiltering(t *testing.T) {
	s := New("u1", "sess1", false, nil)
	s.Subscribe("c1")
	s.ApplyPending()

	assert.True(t, s.IsSubscribed("c1"))
	assert.False(t, s.IsSubscribed("c2"))
}

func TestTouchServer_SubscribesOnce(t *testing.T) {
	s := New("u1", "sess1", false, nil)
	s.TouchServer("srv1")
	s.TouchServer("srv1")
	assert.Len(t, s.pending.Add, 1)
	s.ApplyPending()
	assert.True(t, s.IsSubscribed("srv1u"))
}
