package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/nextlevelbuilder/embergate/internal/apierr"
	"github.com/nextlevelbuilder/embergate/internal/model"
)

// ServerStore implements store.Servers backed by SQLite.
type ServerStore struct {
	db *sql.DB
}

const serverSelectCols = `id, owner_id, name, description, channels, categories, system_messages, roles, default_permissions, flags`

func (s *ServerStore) Fetch(ctx context.Context, id string) (*model.Server, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+serverSelectCols+` FROM servers WHERE id = ?`, id)
	srv, err := scanServer(row)
	if err == sql.ErrNoRows {
		return nil, apierr.New(apierr.KindUnknownServer)
	}
	if err != nil {
		return nil, apierr.Database("fetch", "servers", err)
	}
	return srv, nil
}

func (s *ServerStore) Insert(ctx context.Context, srv *model.Server) error {
	channels, categories, sysMsgs, roles, err := marshalServerJSON(srv)
	if err != nil {
		return apierr.Internal(err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO servers (id, owner_id, name, description, channels, categories, system_messages, roles, default_permissions, flags)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		srv.ID, srv.OwnerID, srv.Name, srv.Description, channels, categories, sysMsgs, roles,
		srv.DefaultPermissions, srv.Flags,
	)
	if err != nil {
		return apierr.Database("insert", "servers", err)
	}
	return nil
}

func (s *ServerStore) Update(ctx context.Context, srv *model.Server) error {
	channels, categories, sysMsgs, roles, err := marshalServerJSON(srv)
	if err != nil {
		return apierr.Internal(err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE servers SET owner_id=?, name=?, description=?, channels=?, categories=?,
		 system_messages=?, roles=?, default_permissions=?, flags=?
		 WHERE id = ?`,
		srv.OwnerID, srv.Name, srv.Description, channels, categories, sysMsgs, roles,
		srv.DefaultPermissions, srv.Flags, srv.ID,
	)
	if err != nil {
		return apierr.Database("update", "servers", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierr.New(apierr.KindUnknownServer)
	}
	return nil
}

func (s *ServerStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM servers WHERE id = ?`, id)
	if err != nil {
		return apierr.Database("delete", "servers", err)
	}
	return nil
}

func marshalServerJSON(srv *model.Server) (channels, categories, sysMsgs, roles []byte, err error) {
	if channels, err = json.Marshal(srv.Channels); err != nil {
		return
	}
	if categories, err = json.Marshal(srv.Categories); err != nil {
		return
	}
	if sysMsgs, err = json.Marshal(srv.SystemMessages); err != nil {
		return
	}
	if roles, err = json.Marshal(srv.Roles); err != nil {
		return
	}
	return
}

func scanServer(row *sql.Row) (*model.Server, error) {
	var srv model.Server
	var channels, categories, sysMsgs, roles []byte
	if err := row.Scan(
		&srv.ID, &srv.OwnerID, &srv.Name, &srv.Description, &channels, &categories,
		&sysMsgs, &roles, &srv.DefaultPermissions, &srv.Flags,
	); err != nil {
		return nil, err
	}
	if len(channels) > 0 {
		if err := json.Unmarshal(channels, &srv.Channels); err != nil {
			return nil, err
		}
	}
	if len(categories) > 0 {
		if err := json.Unmarshal(categories, &srv.Categories); err != nil {
			return nil, err
		}
	}
	if len(sysMsgs) > 0 {
		if err := json.Unmarshal(sysMsgs, &srv.SystemMessages); err != nil {
			return nil, err
		}
	}
	if len(roles) > 0 {
		if err := json.Unmarshal(roles, &srv.Roles); err != nil {
			return nil, err
		}
	}
	return &srv, nil
}
