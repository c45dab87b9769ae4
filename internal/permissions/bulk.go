package permissions

import "github.com/nextlevelbuilder/embergate/internal/model"

// BulkQuery computes the channel permission for many members at once,
// sharing the server-defaults and channel-defaults computation instead of
// repeating the per-member algorithm's common prefix, per §4.3/§5: it must
// not issue one storage fetch per member (the caller is responsible for
// having pre-fetched Server, Channel and Members in at most two calls).
type BulkQuery struct {
	Server  *model.Server
	Channel *model.Channel
	NowUnix int64
}

// ForMembers returns user-id -> permission value for every member given,
// grounded on original_source's BulkDatabasePermissionQuery.members_can_see_channel.
func (b BulkQuery) ForMembers(members []model.Member) map[string]uint64 {
	out := make(map[string]uint64, len(members))
	for i := range members {
		m := &members[i]
		if b.Server != nil && m.ServerID != "" && m.ServerID != b.Server.ID {
			continue
		}
		out[m.UserID] = b.forMember(m)
	}
	return out
}

func (b BulkQuery) forMember(m *model.Member) uint64 {
	if b.Server == nil {
		return 0
	}
	if b.Server.OwnerID == m.UserID {
		return GrantAllSafe
	}

	value := b.Server.DefaultPermissions
	ranked := b.Server.RankedRoles(m.Roles)
	for _, role := range ranked {
		value = role.Permissions.Apply(value)
	}

	if b.Channel != nil && b.Channel.DefaultPermission != nil {
		value = b.Channel.DefaultPermission.Apply(value)
	}
	if b.Channel != nil && len(b.Channel.RolePermissions) > 0 {
		for _, role := range ranked {
			if ov, ok := b.Channel.RolePermissions[role.ID]; ok {
				value = ov.Apply(value)
			}
		}
	}

	if m.InTimeout(b.NowUnix) {
		value &= ALLOWInTimeout
	}
	return value
}

// MembersCanSeeChannel filters permissionByUser down to the user ids that
// hold ViewChannel, matching members_can_see_channel()'s boolean-map shape
// used by mass-mention role fan-out (§4.7).
func MembersCanSeeChannel(permissionByUser map[string]uint64) map[string]bool {
	out := make(map[string]bool, len(permissionByUser))
	for uid, v := range permissionByUser {
		out[uid] = Has(v, ViewChannel)
	}
	return out
}
