package sqlite

import (
	"context"
	"database/sql"

	"github.com/nextlevelbuilder/embergate/internal/apierr"
	"github.com/nextlevelbuilder/embergate/internal/model"
)

// VoiceStore implements store.VoiceStates backed by SQLite. Self-host
// deployments without Redis (§6.7) use this in place of internal/presence's
// Redis-backed voice state store.
type VoiceStore struct {
	db *sql.DB
}

func (s *VoiceStore) Get(ctx context.Context, channelID, userID string) (*model.VoiceState, error) {
	var v model.VoiceState
	var canReceive, canPublish, screensharing, camera int64
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_id, user_id, joined_at, can_receive, can_publish, screensharing, camera
		 FROM voice_states WHERE channel_id = ? AND user_id = ?`,
		channelID, userID,
	).Scan(&v.ChannelID, &v.UserID, &v.JoinedAtUnix, &canReceive, &canPublish, &screensharing, &camera)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound()
	}
	if err != nil {
		return nil, apierr.Database("fetch", "voice_states", err)
	}
	v.CanReceive = canReceive != 0
	v.CanPublish = canPublish != 0
	v.Screensharing = screensharing != 0
	v.Camera = camera != 0
	return &v, nil
}

func (s *VoiceStore) Set(ctx context.Context, v *model.VoiceState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO voice_states (channel_id, user_id, joined_at, can_receive, can_publish, screensharing, camera)
		 VALUES (?,?,?,?,?,?,?)
		 ON CONFLICT (channel_id, user_id) DO UPDATE SET
		   joined_at = excluded.joined_at, can_receive = excluded.can_receive,
		   can_publish = excluded.can_publish, screensharing = excluded.screensharing, camera = excluded.camera`,
		v.ChannelID, v.UserID, v.JoinedAtUnix, boolInt(v.CanReceive), boolInt(v.CanPublish),
		boolInt(v.Screensharing), boolInt(v.Camera),
	)
	if err != nil {
		return apierr.Database("upsert", "voice_states", err)
	}
	return nil
}

func (s *VoiceStore) Delete(ctx context.Context, channelID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM voice_states WHERE channel_id = ? AND user_id = ?`, channelID, userID)
	if err != nil {
		return apierr.Database("delete", "voice_states", err)
	}
	return nil
}

func (s *VoiceStore) MembersOf(ctx context.Context, channelID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM voice_states WHERE channel_id = ?`, channelID)
	if err != nil {
		return nil, apierr.Database("members_of", "voice_states", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apierr.Database("members_of", "voice_states", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
