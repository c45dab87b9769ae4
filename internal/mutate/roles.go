package mutate

import (
	"context"

	"github.com/nextlevelbuilder/embergate/internal/apierr"
	"github.com/nextlevelbuilder/embergate/internal/eventbus"
	"github.com/nextlevelbuilder/embergate/internal/model"
	"github.com/nextlevelbuilder/embergate/pkg/protocol"
)

const maxRolesPerServer = 100

// CreateRole assigns the new role an id and publishes ServerRoleUpdate.
func (m *Mutator) CreateRole(ctx context.Context, serverID, name string) (*model.Role, error) {
	srv, err := m.Stores.Servers.Fetch(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if len(srv.Roles) >= maxRolesPerServer {
		return nil, apierr.TooMany(apierr.KindTooManyRoles, maxRolesPerServer)
	}

	role := model.Role{ID: model.NewID(), Name: name, Rank: len(srv.Roles)}
	if srv.Roles == nil {
		srv.Roles = make(map[string]model.Role)
	}
	srv.Roles[role.ID] = role

	if err := m.Stores.Servers.Update(ctx, srv); err != nil {
		return nil, err
	}

	if err := m.publish(ctx, eventbus.ServerTopic(serverID), protocol.EventV1{
		Type:     protocol.EventServerRoleUpdate,
		ServerID: serverID,
		RoleID:   role.ID,
		Role:     &role,
	}); err != nil {
		return nil, err
	}
	return &role, nil
}

// DeleteRole removes roleID from the server, cascades its removal from
// every member and every per-channel override keyed by it, then publishes
// ServerRoleDelete.
func (m *Mutator) DeleteRole(ctx context.Context, serverID, roleID string) error {
	srv, err := m.Stores.Servers.Fetch(ctx, serverID)
	if err != nil {
		return err
	}
	if _, ok := srv.Roles[roleID]; !ok {
		return apierr.New(apierr.KindInvalidRole)
	}
	delete(srv.Roles, roleID)

	for _, channelID := range srv.Channels {
		ch, err := m.Stores.Channels.Fetch(ctx, channelID)
		if err != nil {
			continue
		}
		if _, ok := ch.RolePermissions[roleID]; ok {
			delete(ch.RolePermissions, roleID)
			_ = m.Stores.Channels.Update(ctx, ch)
		}
	}

	if err := m.Stores.Servers.Update(ctx, srv); err != nil {
		return err
	}
	if err := m.Stores.Members.RemoveRoleFromAll(ctx, serverID, roleID); err != nil {
		return err
	}

	return m.publish(ctx, eventbus.ServerTopic(serverID), protocol.EventV1{
		Type:     protocol.EventServerRoleDelete,
		ServerID: serverID,
		RoleID:   roleID,
	})
}
