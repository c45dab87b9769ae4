package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/nextlevelbuilder/embergate/internal/apierr"
	"github.com/nextlevelbuilder/embergate/internal/model"
)

// ChannelStore implements store.Channels backed by SQLite.
type ChannelStore struct {
	db *sql.DB
}

const channelSelectCols = `id, channel_type, last_message_id, nsfw, user_id, recipients, active,
	owner_id, name, description, icon_hash, group_permissions, server_id, default_permission, role_permissions`

func (s *ChannelStore) Fetch(ctx context.Context, id string) (*model.Channel, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+channelSelectCols+` FROM channels WHERE id = ?`, id)
	c, err := scanChannel(row)
	if err == sql.ErrNoRows {
		return nil, apierr.New(apierr.KindUnknownChannel)
	}
	if err != nil {
		return nil, apierr.Database("fetch", "channels", err)
	}
	return c, nil
}

func (s *ChannelStore) Insert(ctx context.Context, c *model.Channel) error {
	recipients, defaultPerm, rolePerms, err := marshalChannelJSON(c)
	if err != nil {
		return apierr.Internal(err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO channels (id, channel_type, last_message_id, nsfw, user_id, recipients, active,
		 owner_id, name, description, icon_hash, group_permissions, server_id, default_permission, role_permissions)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Type, c.LastMessageID, boolInt(c.NSFW), c.UserID, recipients, boolInt(c.Active),
		c.OwnerID, c.Name, c.Description, c.IconHash, groupPermissionsArg(c), c.ServerID, defaultPerm, rolePerms,
	)
	if err != nil {
		return apierr.Database("insert", "channels", err)
	}
	return nil
}

func groupPermissionsArg(c *model.Channel) interface{} {
	if c.GroupPermissions == nil {
		return nil
	}
	return int64(*c.GroupPermissions)
}

func (s *ChannelStore) Update(ctx context.Context, c *model.Channel) error {
	recipients, defaultPerm, rolePerms, err := marshalChannelJSON(c)
	if err != nil {
		return apierr.Internal(err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE channels SET channel_type=?, last_message_id=?, nsfw=?, user_id=?, recipients=?, active=?,
		 owner_id=?, name=?, description=?, icon_hash=?, group_permissions=?, server_id=?,
		 default_permission=?, role_permissions=?
		 WHERE id = ?`,
		c.Type, c.LastMessageID, boolInt(c.NSFW), c.UserID, recipients, boolInt(c.Active),
		c.OwnerID, c.Name, c.Description, c.IconHash, groupPermissionsArg(c), c.ServerID, defaultPerm, rolePerms,
		c.ID,
	)
	if err != nil {
		return apierr.Database("update", "channels", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierr.New(apierr.KindUnknownChannel)
	}
	return nil
}

func (s *ChannelStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id)
	if err != nil {
		return apierr.Database("delete", "channels", err)
	}
	return nil
}

func marshalChannelJSON(c *model.Channel) (recipients, defaultPerm, rolePerms []byte, err error) {
	if recipients, err = json.Marshal(c.Recipients); err != nil {
		return
	}
	if c.DefaultPermission != nil {
		if defaultPerm, err = json.Marshal(c.DefaultPermission); err != nil {
			return
		}
	}
	if rolePerms, err = json.Marshal(c.RolePermissions); err != nil {
		return
	}
	return
}

func scanChannel(row *sql.Row) (*model.Channel, error) {
	var c model.Channel
	var recipients, defaultPerm, rolePerms []byte
	var groupPerms sql.NullInt64
	var nsfw, active int64
	if err := row.Scan(
		&c.ID, &c.Type, &c.LastMessageID, &nsfw, &c.UserID, &recipients, &active,
		&c.OwnerID, &c.Name, &c.Description, &c.IconHash, &groupPerms, &c.ServerID,
		&defaultPerm, &rolePerms,
	); err != nil {
		return nil, err
	}
	c.NSFW = nsfw != 0
	c.Active = active != 0
	if groupPerms.Valid {
		v := uint64(groupPerms.Int64)
		c.GroupPermissions = &v
	}
	if len(recipients) > 0 {
		if err := json.Unmarshal(recipients, &c.Recipients); err != nil {
			return nil, err
		}
	}
	if len(defaultPerm) > 0 {
		if err := json.Unmarshal(defaultPerm, &c.DefaultPermission); err != nil {
			return nil, err
		}
	}
	if len(rolePerms) > 0 {
		if err := json.Unmarshal(rolePerms, &c.RolePermissions); err != nil {
			return nil, err
		}
	}
	return &c, nil
}
