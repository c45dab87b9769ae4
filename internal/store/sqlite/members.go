package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/nextlevelbuilder/embergate/internal/apierr"
	"github.com/nextlevelbuilder/embergate/internal/model"
	"github.com/nextlevelbuilder/embergate/internal/store"
)

// MemberStore implements store.Members backed by SQLite.
type MemberStore struct {
	db *sql.DB
}

const memberSelectCols = `server_id, user_id, joined_at, nickname, avatar_hash, roles, timeout_unix`

func (s *MemberStore) Fetch(ctx context.Context, serverID, userID string) (*model.Member, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memberSelectCols+` FROM server_members WHERE server_id = ? AND user_id = ?`,
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
		 VALUES (?,?,?,?,?,?,?)`,
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
		`UPDATE server_members SET nickname = ?, avatar_hash = ?, roles = ?, timeout_unix = ?
		 WHERE server_id = ? AND user_id = ?`,
		m.Nickname, m.AvatarHash, roles, m.TimeoutUnix, m.ServerID, m.UserID,
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
		`DELETE FROM server_members WHERE server_id = ? AND user_id = ?`, serverID, userID)
	if err != nil {
		return apierr.Database("delete", "server_members", err)
	}
	return nil
}

// AllChunked streams all members of serverID in bounded pages using
// keyset pagination over user_id, mirroring the Postgres backend's cursor
// (§6.5) even though SQLite deployments are expected to stay small enough
// that this rarely needs more than one page.
func (s *MemberStore) AllChunked(_ context.Context, serverID string, chunkSize int) (store.MemberIterator, error) {
	return newMemberCursor(s.db, serverID, nil, chunkSize), nil
}

// WithRolesChunked filters application-side: SQLite has no jsonb
// containment operator, so each underlying page is decoded and tested
// against roleIDs in Go before being handed back.
func (s *MemberStore) WithRolesChunked(_ context.Context, serverID string, roleIDs []string, chunkSize int) (store.MemberIterator, error) {
	return newMemberCursor(s.db, serverID, roleIDs, chunkSize), nil
}

// RemoveRoleFromAll has no jsonb `roles - $2` equivalent in SQLite, so it
// fetches every member carrying roleID and rewrites their roles column
// individually. Self-host role membership is small enough that this isn't
// a hot path.
func (s *MemberStore) RemoveRoleFromAll(ctx context.Context, serverID, roleID string) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memberSelectCols+` FROM server_members WHERE server_id = ?`, serverID)
	if err != nil {
		return apierr.Database("remove_role_from_all", "server_members", err)
	}
	var affected []model.Member
	for rows.Next() {
		m, err := scanMemberRows(rows)
		if err != nil {
			rows.Close()
			return apierr.Database("remove_role_from_all", "server_members", err)
		}
		if hasRole(m.Roles, roleID) {
			affected = append(affected, *m)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return apierr.Database("remove_role_from_all", "server_members", err)
	}
	rows.Close()

	for i := range affected {
		m := &affected[i]
		m.Roles = removeRole(m.Roles, roleID)
		roles, err := json.Marshal(m.Roles)
		if err != nil {
			return apierr.Internal(err)
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE server_members SET roles = ? WHERE server_id = ? AND user_id = ?`,
			roles, serverID, m.UserID,
		); err != nil {
			return apierr.Database("remove_role_from_all", "server_members", err)
		}
	}
	return nil
}

func hasRole(roles []string, roleID string) bool {
	for _, r := range roles {
		if r == roleID {
			return true
		}
	}
	return false
}

func removeRole(roles []string, roleID string) []string {
	out := roles[:0]
	for _, r := range roles {
		if r != roleID {
			out = append(out, r)
		}
	}
	return out
}

// memberCursor is the SQLite-backed store.MemberIterator. It re-queries
// WHERE user_id > lastSeen each Next call like the Postgres cursor, but
// when roleIDs is non-empty it keeps pulling underlying pages and
// filtering them in Go until chunkSize matching rows accumulate or the
// table is exhausted, since there's no jsonb `?|` operator to push the
// filter into SQL.
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

	var out []model.Member
	for len(out) < c.chunkSize {
		limit := c.chunkSize - len(out)
		rows, err := c.db.QueryContext(ctx,
			`SELECT `+memberSelectCols+` FROM server_members WHERE server_id = ? AND user_id > ?
			 ORDER BY user_id LIMIT ?`,
			c.serverID, c.lastSeen, limit)
		if err != nil {
			return nil, false, apierr.Database("chunked_scan", "server_members", err)
		}

		var page []model.Member
		for rows.Next() {
			m, err := scanMemberRows(rows)
			if err != nil {
				rows.Close()
				return nil, false, apierr.Database("chunked_scan", "server_members", err)
			}
			page = append(page, *m)
			c.lastSeen = m.UserID
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, false, apierr.Database("chunked_scan", "server_members", err)
		}
		rows.Close()

		for _, m := range page {
			if len(c.roleIDs) == 0 || anyRoleMatches(m.Roles, c.roleIDs) {
				out = append(out, m)
			}
		}

		if len(page) < limit {
			c.done = true
			return out, true, nil
		}
	}
	return out, false, nil
}

func anyRoleMatches(roles, want []string) bool {
	for _, w := range want {
		if hasRole(roles, w) {
			return true
		}
	}
	return false
}

func scanMember(row *sql.Row) (*model.Member, error)       { return scanMemberFrom(row) }
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
