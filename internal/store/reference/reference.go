// Package reference is the in-memory reference storage backend of §6.7,
// selected by storage.backend "memory" (the default). Generalizes the teacher's map-backed
// store patterns (internal/store/file) to the chat-platform capability
// interfaces in internal/store.
package reference

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/embergate/internal/apierr"
	"github.com/nextlevelbuilder/embergate/internal/model"
	"github.com/nextlevelbuilder/embergate/internal/store"
)

// Store implements every capability interface in internal/store over plain
// maps guarded by a single RWMutex — the teacher's file-store pattern
// generalized from per-record files to per-record map entries, since the
// reference backend need not survive a process restart.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*model.User
	channels map[string]*model.Channel
	messages map[string]*model.Message
	servers  map[string]*model.Server
	members  map[string]*model.Member // key: serverID + "/" + userID
	voice    map[string]*model.VoiceState // key: channelID + "/" + userID
}

// New constructs an empty reference store.
func New() *Store {
	return &Store{
		users:    make(map[string]*model.User),
		channels: make(map[string]*model.Channel),
		messages: make(map[string]*model.Message),
		servers:  make(map[string]*model.Server),
		members:  make(map[string]*model.Member),
		voice:    make(map[string]*model.VoiceState),
	}
}

// Stores wraps Store's collections into a *store.Stores aggregate.
func (s *Store) Stores() *store.Stores {
	return &store.Stores{
		Users:       (*userCollection)(s),
		Channels:    (*channelCollection)(s),
		Messages:    (*messageCollection)(s),
		Servers:     (*serverCollection)(s),
		Members:     (*memberCollection)(s),
		VoiceStates: (*voiceCollection)(s),
	}
}

func memberKey(serverID, userID string) string { return serverID + "/" + userID }
func voiceKey(channelID, userID string) string  { return channelID + "/" + userID }

// --- Users ---

type userCollection Store

func (u *userCollection) s() *Store { return (*Store)(u) }

func (u *userCollection) Fetch(_ context.Context, id string) (*model.User, error) {
	s := u.s()
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.users[id]
	if !ok {
		return nil, apierr.NotFound()
	}
	cp := *v
	return &cp, nil
}

func (u *userCollection) FetchByUsername(_ context.Context, username, discriminator string) (*model.User, error) {
	s := u.s()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.users {
		if v.Username == username && v.Discriminator == discriminator {
			cp := *v
			return &cp, nil
		}
	}
	return nil, apierr.NotFound()
}

func (u *userCollection) Insert(_ context.Context, user *model.User) error {
	s := u.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (u *userCollection) Update(_ context.Context, user *model.User) error {
	s := u.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return apierr.NotFound()
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

// --- Channels ---

type channelCollection Store

func (ch *channelCollection) s() *Store { return (*Store)(ch) }

func (ch *channelCollection) Fetch(_ context.Context, id string) (*model.Channel, error) {
	s := ch.s()
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.channels[id]
	if !ok {
		return nil, apierr.NotFound()
	}
	cp := *v
	return &cp, nil
}

func (ch *channelCollection) Insert(_ context.Context, c *model.Channel) error {
	s := ch.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.channels[c.ID] = &cp
	return nil
}

func (ch *channelCollection) Update(_ context.Context, c *model.Channel) error {
	s := ch.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[c.ID]; !ok {
		return apierr.NotFound()
	}
	cp := *c
	s.channels[c.ID] = &cp
	return nil
}

func (ch *channelCollection) Delete(_ context.Context, id string) error {
	s := ch.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, id)
	return nil
}

// --- Messages ---

type messageCollection Store

func (m *messageCollection) s() *Store { return (*Store)(m) }

func (m *messageCollection) Insert(_ context.Context, msg *model.Message) error {
	s := m.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *msg
	s.messages[msg.ID] = &cp
	return nil
}

func (m *messageCollection) Fetch(_ context.Context, id string) (*model.Message, error) {
	s := m.s()
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.messages[id]
	if !ok {
		return nil, apierr.NotFound()
	}
	cp := *v
	return &cp, nil
}

func (m *messageCollection) Query(_ context.Context, filter store.MessageFilter) ([]model.Message, error) {
	s := m.s()
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Message, 0)
	for _, v := range s.messages {
		if filter.Channel != "" && v.ChannelID != filter.Channel {
			continue
		}
		if filter.Author != "" && v.AuthorID != filter.Author {
			continue
		}
		if filter.Pinned != nil && v.Pinned != *filter.Pinned {
			continue
		}
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *messageCollection) Update(_ context.Context, id string, partial *model.PartialMessage) error {
	s := m.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.messages[id]
	if !ok {
		return apierr.NotFound()
	}
	if partial.Content != nil {
		v.Content = *partial.Content
	}
	if partial.Embeds != nil {
		v.Embeds = *partial.Embeds
	}
	if partial.Pinned != nil {
		v.Pinned = *partial.Pinned
	}
	v.EditedAtUnix = time.Now().Unix()
	return nil
}

func (m *messageCollection) Append(_ context.Context, id string, a *model.AppendMessage) error {
	s := m.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.messages[id]
	if !ok {
		return apierr.NotFound()
	}
	v.Embeds = append(v.Embeds, a.Embeds...)
	return nil
}

func (m *messageCollection) Delete(_ context.Context, id string) error {
	s := m.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, id)
	return nil
}

func (m *messageCollection) DeleteByChannel(_ context.Context, channel string, ids []string) error {
	s := m.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for id, v := range s.messages {
		if v.ChannelID != channel {
			continue
		}
		if len(set) == 0 {
			delete(s.messages, id)
			continue
		}
		if _, ok := set[id]; ok {
			delete(s.messages, id)
		}
	}
	return nil
}

func (m *messageCollection) AddReaction(_ context.Context, id, emoji, userID string) error {
	s := m.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.messages[id]
	if !ok {
		return apierr.NotFound()
	}
	if !v.ReactionAllowed(emoji) {
		return apierr.New(apierr.KindInvalidOperation)
	}
	v.AddReaction(emoji, userID)
	return nil
}

func (m *messageCollection) RemoveReaction(_ context.Context, id, emoji, userID string) error {
	s := m.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.messages[id]
	if !ok {
		return apierr.NotFound()
	}
	v.RemoveReaction(emoji, userID)
	return nil
}

func (m *messageCollection) ClearReaction(_ context.Context, id, emoji string) error {
	s := m.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.messages[id]
	if !ok {
		return apierr.NotFound()
	}
	delete(v.Reactions, emoji)
	return nil
}

// --- Servers ---

type serverCollection Store

func (sv *serverCollection) s() *Store { return (*Store)(sv) }

func (sv *serverCollection) Fetch(_ context.Context, id string) (*model.Server, error) {
	s := sv.s()
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.servers[id]
	if !ok {
		return nil, apierr.NotFound()
	}
	cp := *v
	return &cp, nil
}

func (sv *serverCollection) Insert(_ context.Context, srv *model.Server) error {
	s := sv.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *srv
	s.servers[srv.ID] = &cp
	return nil
}

func (sv *serverCollection) Update(_ context.Context, srv *model.Server) error {
	s := sv.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.servers[srv.ID]; !ok {
		return apierr.NotFound()
	}
	cp := *srv
	s.servers[srv.ID] = &cp
	return nil
}

func (sv *serverCollection) Delete(_ context.Context, id string) error {
	s := sv.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.servers, id)
	return nil
}

// --- Members ---

type memberCollection Store

func (mc *memberCollection) s() *Store { return (*Store)(mc) }

func (mc *memberCollection) Fetch(_ context.Context, serverID, userID string) (*model.Member, error) {
	s := mc.s()
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.members[memberKey(serverID, userID)]
	if !ok {
		return nil, apierr.NotFound()
	}
	cp := *v
	return &cp, nil
}

func (mc *memberCollection) Insert(_ context.Context, m *model.Member) error {
	s := mc.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.members[memberKey(m.ServerID, m.UserID)] = &cp
	return nil
}

func (mc *memberCollection) Update(_ context.Context, m *model.Member) error {
	s := mc.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey(m.ServerID, m.UserID)
	if _, ok := s.members[key]; !ok {
		return apierr.NotFound()
	}
	cp := *m
	s.members[key] = &cp
	return nil
}

func (mc *memberCollection) Delete(_ context.Context, serverID, userID string) error {
	s := mc.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, memberKey(serverID, userID))
	return nil
}

func (mc *memberCollection) allOf(serverID string) []model.Member {
	s := mc.s()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Member, 0)
	for _, v := range s.members {
		if v.ServerID == serverID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (mc *memberCollection) AllChunked(_ context.Context, serverID string, chunkSize int) (store.MemberIterator, error) {
	return newSliceIterator(mc.allOf(serverID), chunkSize), nil
}

func (mc *memberCollection) WithRolesChunked(_ context.Context, serverID string, roleIDs []string, chunkSize int) (store.MemberIterator, error) {
	want := make(map[string]struct{}, len(roleIDs))
	for _, r := range roleIDs {
		want[r] = struct{}{}
	}
	all := mc.allOf(serverID)
	filtered := make([]model.Member, 0, len(all))
	for _, m := range all {
		for _, r := range m.Roles {
			if _, ok := want[r]; ok {
				filtered = append(filtered, m)
				break
			}
		}
	}
	return newSliceIterator(filtered, chunkSize), nil
}

func (mc *memberCollection) RemoveRoleFromAll(_ context.Context, serverID, roleID string) error {
	s := mc.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.members {
		if v.ServerID != serverID {
			continue
		}
		out := v.Roles[:0]
		for _, r := range v.Roles {
			if r != roleID {
				out = append(out, r)
			}
		}
		v.Roles = out
	}
	return nil
}

// sliceIterator implements store.MemberIterator over an in-memory snapshot,
// per §6.5's "restartable streaming iterator yielding chunks" contract — the
// snapshot itself is taken once up front since the reference backend has no
// cursor concept, but callers see it delivered in bounded pages regardless.
type sliceIterator struct {
	mu        sync.Mutex
	remaining []model.Member
	chunkSize int
}

func newSliceIterator(members []model.Member, chunkSize int) *sliceIterator {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	return &sliceIterator{remaining: members, chunkSize: chunkSize}
}

func (it *sliceIterator) Next(_ context.Context) ([]model.Member, bool, error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if len(it.remaining) == 0 {
		return nil, true, nil
	}
	n := it.chunkSize
	if n > len(it.remaining) {
		n = len(it.remaining)
	}
	chunk := it.remaining[:n]
	it.remaining = it.remaining[n:]
	return chunk, len(it.remaining) == 0, nil
}

// --- VoiceStates ---

type voiceCollection Store

func (vc *voiceCollection) s() *Store { return (*Store)(vc) }

func (vc *voiceCollection) Get(_ context.Context, channelID, userID string) (*model.VoiceState, error) {
	s := vc.s()
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.voice[voiceKey(channelID, userID)]
	if !ok {
		return nil, apierr.NotFound()
	}
	cp := *v
	return &cp, nil
}

func (vc *voiceCollection) Set(_ context.Context, v *model.VoiceState) error {
	s := vc.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.voice[voiceKey(v.ChannelID, v.UserID)] = &cp
	return nil
}

func (vc *voiceCollection) Delete(_ context.Context, channelID, userID string) error {
	s := vc.s()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.voice, voiceKey(channelID, userID))
	return nil
}

func (vc *voiceCollection) MembersOf(_ context.Context, channelID string) ([]string, error) {
	s := vc.s()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for _, v := range s.voice {
		if v.ChannelID == channelID {
			out = append(out, v.UserID)
		}
	}
	sort.Strings(out)
	return out, nil
}
