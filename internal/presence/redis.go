package presence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/embergate/internal/model"
	"github.com/nextlevelbuilder/embergate/internal/store"
)

// RedisStore is the Redis-pipelined implementation of Presence and
// store.VoiceStates, keyed exactly as
// original_source/crates/core/voice/src/lib.rs keys them.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func onlineKey(userID string) string { return "online-" + userID }

func (r *RedisStore) SetOnline(ctx context.Context, userID string) error {
	return r.client.Set(ctx, onlineKey(userID), "1", 0).Err()
}

func (r *RedisStore) SetOffline(ctx context.Context, userID string) error {
	return r.client.Del(ctx, onlineKey(userID)).Err()
}

func (r *RedisStore) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.Exists(ctx, onlineKey(userID)).Result()
	return n > 0, err
}

func (r *RedisStore) FilterOnline(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	pipe := r.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.Exists(ctx, onlineKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}
	out := make([]string, 0, len(userIDs))
	for i, cmd := range cmds {
		if cmd.Val() > 0 {
			out = append(out, userIDs[i])
		}
	}
	return out, nil
}

func voiceMembersKey(channelID string) string { return fmt.Sprintf("vc-members-%s", channelID) }
func voiceChannelsKey(userID string) string   { return fmt.Sprintf("vc-%s", userID) }
func uniqueKey(channelID, userID string) string {
	return fmt.Sprintf("%s-%s", userID, channelID)
}
func canPublishKey(channelID, userID string) string {
	return "can_publish-" + uniqueKey(channelID, userID)
}
func canReceiveKey(channelID, userID string) string {
	return "can_receive-" + uniqueKey(channelID, userID)
}
func screensharingKey(channelID, userID string) string {
	return "screensharing-" + uniqueKey(channelID, userID)
}
func cameraKey(channelID, userID string) string {
	return "camera-" + uniqueKey(channelID, userID)
}

// Set writes a voice state with a single pipelined round trip, matching
// create_voice_state/update_voice_state's Pipeline usage.
func (r *RedisStore) Set(ctx context.Context, v *model.VoiceState) error {
	pipe := r.client.Pipeline()
	pipe.SAdd(ctx, voiceMembersKey(v.ChannelID), v.UserID)
	pipe.SAdd(ctx, voiceChannelsKey(v.UserID), v.ChannelID)
	pipe.Set(ctx, canPublishKey(v.ChannelID, v.UserID), v.CanPublish, 0)
	pipe.Set(ctx, canReceiveKey(v.ChannelID, v.UserID), v.CanReceive, 0)
	pipe.Set(ctx, screensharingKey(v.ChannelID, v.UserID), v.Screensharing, 0)
	pipe.Set(ctx, cameraKey(v.ChannelID, v.UserID), v.Camera, 0)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Delete(ctx context.Context, channelID, userID string) error {
	pipe := r.client.Pipeline()
	pipe.SRem(ctx, voiceMembersKey(channelID), userID)
	pipe.SRem(ctx, voiceChannelsKey(userID), channelID)
	pipe.Del(ctx,
		canPublishKey(channelID, userID),
		canReceiveKey(channelID, userID),
		screensharingKey(channelID, userID),
		cameraKey(channelID, userID),
	)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Get(ctx context.Context, channelID, userID string) (*model.VoiceState, error) {
	pipe := r.client.Pipeline()
	publish := pipe.Get(ctx, canPublishKey(channelID, userID))
	receive := pipe.Get(ctx, canReceiveKey(channelID, userID))
	screen := pipe.Get(ctx, screensharingKey(channelID, userID))
	camera := pipe.Get(ctx, cameraKey(channelID, userID))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	if publish.Err() == redis.Nil {
		return nil, nil
	}

	return &model.VoiceState{
		ChannelID:     channelID,
		UserID:        userID,
		CanPublish:    publish.Val() == "1",
		CanReceive:    receive.Val() == "1",
		Screensharing: screen.Val() == "1",
		Camera:        camera.Val() == "1",
	}, nil
}

func (r *RedisStore) MembersOf(ctx context.Context, channelID string) ([]string, error) {
	return r.client.SMembers(ctx, voiceMembersKey(channelID)).Result()
}

var _ store.VoiceStates = (*RedisStore)(nil)
var _ Presence = (*RedisStore)(nil)
