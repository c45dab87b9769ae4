package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"

	"github.com/nextlevelbuilder/embergate/internal/apierr"
	"github.com/nextlevelbuilder/embergate/internal/model"
	"github.com/nextlevelbuilder/embergate/internal/store"
)

// MemberStore implements store.Members backed by Postgres.
type MemberStore struct {
	db *sql.DB
}

const memberSelectCols = `server_id, user_id, joined_at, nickname, avatar_hash, roles, timeout_unix`

func (s *MemberStore) Fetch(ctx context.Context, serverID, userID string) (*model.Member, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memberSelectCols+` FROM server_members WHERE server_id = $1 AND user_id = $2`,
		serverID, userID)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound()
	}
	if err != nil {
		return nil, apierr.Database("fetch", "server_members", err)
	}
	return m, nil
}

func (s *MemberStore) Insert(ctx context.Context, m *model.Member) error {
	roles, err := json.Marshal(m.Roles)
	if err != nil {
		return apierr.Internal(err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO server_members (server_id, user_id, joined_at, nickname, avatar_hash, roles, timeout_unix)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.ServerID, m.UserID, m.JoinedAt, m.Nickname, m.AvatarHash, roles, m.TimeoutUnix,
	)
	if err != nil {
		return apierr.Database("insert", "server_members", err)
	}
	return nil
}

func (s *MemberStore) Update(ctx context.Context, m *model.Member) error {
	roles, err := json.Marshal(m.Roles)
	if err != nil {
		return apierr.Internal(err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE server_members SET nickname = $3, avatar_hash = $4, roles = $5, timeout_unix = $6
		 WHERE server_id = $1 AND user_id = $2`,
		m.ServerID, m.UserID, m.Nickname, m.AvatarHash, roles, m.TimeoutUnix,
	)
	if err != nil {
		return apierr.Database("update", "server_members", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierr.NotFound()
	}
	return nil
}

func (s *MemberStore) Delete(ctx context.Context, serverID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM server_members WHERE server_id = $1 AND user_id = $2`, serverID, userID)
	if err != nil {
		return apierr.Database("delete", "server_members", err)
	}
	return nil
}

// AllChunked streams all members of serverID in bounded pages using
// keyset pagination over user_id, so no single query materializes more
// than chunkSize rows (§6.5).
func (s *MemberStore) AllChunked(_ context.Context, serverID string, chunkSize int) (store.MemberIterator, error) {
	return newMemberCursor(s.db, serverID, nil, chunkSize), nil
}

func (s *MemberStore) WithRolesChunked(_ context.Context, serverID string, roleIDs []string, chunkSize int) (store.MemberIterator, error) {
	return newMemberCursor(s.db, serverID, roleIDs, chunkSize), nil
}

func (s *MemberStore) RemoveRoleFromAll(ctx context.Context, serverID, roleID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE server_members SET roles = roles - $2 WHERE server_id = $1 AND roles ? $2`,
		serverID, roleID)
	if err != nil {
		return apierr.Database("remove_role_from_all", "server_members", err)
	}
	return nil
}

// memberCursor is the Postgres-backed store.MemberIterator: a true
// keyset-paginated cursor (unlike the reference backend's upfront
// snapshot), re-querying WHERE user_id > lastSeen each Next call.
type memberCursor struct {
	db        *sql.DB
	serverID  string
	roleIDs   []string
	chunkSize int
	lastSeen  string
	done      bool
}

func newMemberCursor(db *sql.DB, serverID string, roleIDs []string, chunkSize int) *memberCursor {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	return &memberCursor{db: db, serverID: serverID, roleIDs: roleIDs, chunkSize: chunkSize}
}

func (c *memberCursor) Next(ctx context.Context) ([]model.Member, bool, error) {
	if c.done {
		return nil, true, nil
	}

	query := `SELECT ` + memberSelectCols + ` FROM server_members WHERE server_id = $1 AND user_id > $2`
	args := []interface{}{c.serverID, c.lastSeen}
	if len(c.roleIDs) > 0 {
		query += ` AND roles ?| $3::text[]`
		args = append(args, textArray(c.roleIDs))
	}
	query += ` ORDER BY user_id LIMIT ` + strconv.Itoa(c.chunkSize)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, apierr.Database("chunked_scan", "server_members", err)
	}
	defer rows.Close()

	var out []model.Member
	for rows.Next() {
		m, err := scanMemberRows(rows)
		if err != nil {
			return nil, false, apierr.Database("chunked_scan", "server_members", err)
		}
		out = append(out, *m)
		c.lastSeen = m.UserID
	}
	if err := rows.Err(); err != nil {
		return nil, false, apierr.Database("chunked_scan", "server_members", err)
	}

	if len(out) < c.chunkSize {
		c.done = true
	}
	return out, c.done, nil
}

func scanMember(row *sql.Row) (*model.Member, error)     { return scanMemberFrom(row) }
func scanMemberRows(rows *sql.Rows) (*model.Member, error) { return scanMemberFrom(rows) }

func scanMemberFrom(row rowScanner) (*model.Member, error) {
	var m model.Member
	var roles []byte
	if err := row.Scan(
		&m.ServerID, &m.UserID, &m.JoinedAt, &m.Nickname, &m.AvatarHash, &roles, &m.TimeoutUnix,
	); err != nil {
		return nil, err
	}
	if len(roles) > 0 {
		if err := json.Unmarshal(roles, &m.Roles); err != nil {
			return nil, err
		}
	}
	return &m, nil
}
