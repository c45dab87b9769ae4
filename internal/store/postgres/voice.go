package postgres

import (
	"context"
	"database/sql"

	"github.com/nextlevelbuilder/embergate/internal/apierr"
	"github.com/nextlevelbuilder/embergate/internal/model"
)

// VoiceStore implements store.VoiceStates backed by Postgres. Production
// deployments back this capability with internal/presence's Redis store
// instead (§6.8); this table-backed implementation exists so a
// Postgres-only deployment with no Redis still has a working voice-state
// capability.
type VoiceStore struct {
	db *sql.DB
}

func (s *VoiceStore) Get(ctx context.Context, channelID, userID string) (*model.VoiceState, error) {
	var v model.VoiceState
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_id, user_id, joined_at, can_receive, can_publish, screensharing, camera
		 FROM voice_states WHERE channel_id = $1 AND user_id = $2`,
		channelID, userID,
	).Scan(&v.ChannelID, &v.UserID, &v.JoinedAtUnix, &v.CanReceive, &v.CanPublish, &v.Screensharing, &v.Camera)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound()
	}
	if err != nil {
		return nil, apierr.Database("fetch", "voice_states", err)
	}
	return &v, nil
}

func (s *VoiceStore) Set(ctx context.Context, v *model.VoiceState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO voice_states (channel_id, user_id, joined_at, can_receive, can_publish, screensharing, camera)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (channel_id, user_id) DO UPDATE SET
		   joined_at = EXCLUDED.joined_at, can_receive = EXCLUDED.can_receive,
		   can_publish = EXCLUDED.can_publish, screensharing = EXCLUDED.screensharing, camera = EXCLUDED.camera`,
		v.ChannelID, v.UserID, v.JoinedAtUnix, v.CanReceive, v.CanPublish, v.Screensharing, v.Camera,
	)
	if err != nil {
		return apierr.Database("upsert", "voice_states", err)
	}
	return nil
}

func (s *VoiceStore) Delete(ctx context.Context, channelID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM voice_states WHERE channel_id = $1 AND user_id = $2`, channelID, userID)
	if err != nil {
		return apierr.Database("delete", "voice_states", err)
	}
	return nil
}

func (s *VoiceStore) MembersOf(ctx context.Context, channelID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM voice_states WHERE channel_id = $1`, channelID)
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
