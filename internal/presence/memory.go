package presence

import (
	"context"
	"sync"

	"github.com/nextlevelbuilder/embergate/internal/model"
	"github.com/nextlevelbuilder/embergate/internal/store"
)

// MemoryStore is the in-memory reference implementation of both Presence
// and store.VoiceStates, used by tests and by the "memory" presence backend
// (the default).
type MemoryStore struct {
	mu      sync.RWMutex
	online  map[string]struct{}
	voice   map[string]*model.VoiceState // key: channelID + "/" + userID
	members map[string]map[string]struct{} // channelID -> set of userID
}

// NewMemoryStore constructs an empty in-memory presence/voice store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		online:  make(map[string]struct{}),
		voice:   make(map[string]*model.VoiceState),
		members: make(map[string]map[string]struct{}),
	}
}

func (m *MemoryStore) SetOnline(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online[userID] = struct{}{}
	return nil
}

func (m *MemoryStore) SetOffline(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.online, userID)
	return nil
}

func (m *MemoryStore) IsOnline(_ context.Context, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.online[userID]
	return ok, nil
}

func (m *MemoryStore) FilterOnline(_ context.Context, userIDs []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := m.online[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func vKey(channelID, userID string) string { return channelID + "/" + userID }

func (m *MemoryStore) Get(_ context.Context, channelID, userID string) (*model.VoiceState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.voice[vKey(channelID, userID)]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (m *MemoryStore) Set(_ context.Context, v *model.VoiceState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.voice[vKey(v.ChannelID, v.UserID)] = &cp
	if m.members[v.ChannelID] == nil {
		m.members[v.ChannelID] = make(map[string]struct{})
	}
	m.members[v.ChannelID][v.UserID] = struct{}{}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, channelID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.voice, vKey(channelID, userID))
	if set, ok := m.members[channelID]; ok {
		delete(set, userID)
	}
	return nil
}

func (m *MemoryStore) MembersOf(_ context.Context, channelID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.members[channelID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out, nil
}

var _ store.VoiceStates = (*MemoryStore)(nil)
var _ Presence = (*MemoryStore)(nil)
