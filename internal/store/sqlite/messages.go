package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/nextlevelbuilder/embergate/internal/apierr"
	"github.com/nextlevelbuilder/embergate/internal/model"
	"github.com/nextlevelbuilder/embergate/internal/store"
)

// MessageStore implements store.Messages backed by SQLite.
type MessageStore struct {
	db *sql.DB
}

const messageSelectCols = `id, channel_id, author_id, content, attachments, embeds, replies, mentions,
	role_mentions, reactions, pinned, masquerade, interactions, system, edited_at, nonce`

func (s *MessageStore) Insert(ctx context.Context, m *model.Message) error {
	cols, err := marshalMessageJSON(m)
	if err != nil {
		return apierr.Internal(err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, channel_id, author_id, content, attachments, embeds, replies, mentions,
		 role_mentions, reactions, pinned, masquerade, interactions, system, edited_at, nonce)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.ChannelID, m.AuthorID, m.Content, cols.attachments, cols.embeds, cols.replies, cols.mentions,
		cols.roleMentions, cols.reactions, boolInt(m.Pinned), cols.masquerade, cols.interactions, cols.system,
		m.EditedAtUnix, m.Nonce,
	)
	if err != nil {
		return apierr.Database("insert", "messages", err)
	}
	return nil
}

func (s *MessageStore) Fetch(ctx context.Context, id string) (*model.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageSelectCols+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, apierr.New(apierr.KindUnknownMessage)
	}
	if err != nil {
		return nil, apierr.Database("fetch", "messages", err)
	}
	return m, nil
}

func (s *MessageStore) Query(ctx context.Context, filter store.MessageFilter) ([]model.Message, error) {
	var where []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "?"
	}

	if filter.Channel != "" {
		where = append(where, "channel_id = "+arg(filter.Channel))
	}
	if filter.Author != "" {
		where = append(where, "author_id = "+arg(filter.Author))
	}
	if filter.Query != "" {
		where = append(where, "content LIKE "+arg("%"+filter.Query+"%")+" COLLATE NOCASE")
	}
	if filter.Pinned != nil {
		where = append(where, "pinned = "+arg(boolInt(*filter.Pinned)))
	}

	query := `SELECT ` + messageSelectCols + ` FROM messages`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id DESC`

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierr.Database("query", "messages", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessageRows(rows)
		if err != nil {
			return nil, apierr.Database("query", "messages", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *MessageStore) Update(ctx context.Context, id string, partial *model.PartialMessage) error {
	var sets []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "?"
	}

	if partial.Content != nil {
		sets = append(sets, "content = "+arg(*partial.Content))
	}
	if partial.Embeds != nil {
		data, err := json.Marshal(*partial.Embeds)
		if err != nil {
			return apierr.Internal(err)
		}
		sets = append(sets, "embeds = "+arg(data))
	}
	if partial.Pinned != nil {
		sets = append(sets, "pinned = "+arg(boolInt(*partial.Pinned)))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "edited_at = "+arg(time.Now().Unix()))

	query := `UPDATE messages SET ` + strings.Join(sets, ", ") + ` WHERE id = ` + arg(id)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apierr.Database("update", "messages", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierr.New(apierr.KindUnknownMessage)
	}
	return nil
}

// Append merges extra embeds onto the existing column. SQLite has no
// jsonb concatenation operator, so this fetches, appends in Go, and writes
// the whole column back, same as mutateReactions below.
func (s *MessageStore) Append(ctx context.Context, id string, a *model.AppendMessage) error {
	m, err := s.Fetch(ctx, id)
	if err != nil {
		return err
	}
	m.Embeds = append(m.Embeds, a.Embeds...)
	data, err := json.Marshal(m.Embeds)
	if err != nil {
		return apierr.Internal(err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET embeds = ? WHERE id = ?`, data, id)
	if err != nil {
		return apierr.Database("append", "messages", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierr.New(apierr.KindUnknownMessage)
	}
	return nil
}

func (s *MessageStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return apierr.Database("delete", "messages", err)
	}
	return nil
}

func (s *MessageStore) DeleteByChannel(ctx context.Context, channel string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, channel)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := `DELETE FROM messages WHERE channel_id = ? AND id IN (` + strings.Join(placeholders, ",") + `)`
	_, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apierr.Database("delete_by_channel", "messages", err)
	}
	return nil
}

func (s *MessageStore) AddReaction(ctx context.Context, id, emoji, userID string) error {
	return s.mutateReactions(ctx, id, func(m *model.Message) { m.AddReaction(emoji, userID) })
}

func (s *MessageStore) RemoveReaction(ctx context.Context, id, emoji, userID string) error {
	return s.mutateReactions(ctx, id, func(m *model.Message) { m.RemoveReaction(emoji, userID) })
}

func (s *MessageStore) ClearReaction(ctx context.Context, id, emoji string) error {
	return s.mutateReactions(ctx, id, func(m *model.Message) { delete(m.Reactions, emoji) })
}

// mutateReactions applies fn to the message's in-memory reaction map and
// writes the whole column back. Reaction updates are low-volume and don't
// warrant a jsonb_set expression per call, same rationale as the Postgres
// backend.
func (s *MessageStore) mutateReactions(ctx context.Context, id string, fn func(*model.Message)) error {
	m, err := s.Fetch(ctx, id)
	if err != nil {
		return err
	}
	fn(m)
	data, err := json.Marshal(m.Reactions)
	if err != nil {
		return apierr.Internal(err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE messages SET reactions = ? WHERE id = ?`, data, id)
	if err != nil {
		return apierr.Database("update_reactions", "messages", err)
	}
	return nil
}

type messageJSONCols struct {
	attachments, embeds, replies, mentions, roleMentions, reactions, masquerade, interactions, system []byte
}

func marshalMessageJSON(m *model.Message) (cols messageJSONCols, err error) {
	if cols.attachments, err = json.Marshal(m.Attachments); err != nil {
		return
	}
	if cols.embeds, err = json.Marshal(m.Embeds); err != nil {
		return
	}
	if cols.replies, err = json.Marshal(m.Replies); err != nil {
		return
	}
	if cols.mentions, err = json.Marshal(m.Mentions); err != nil {
		return
	}
	if cols.roleMentions, err = json.Marshal(m.RoleMentions); err != nil {
		return
	}
	if cols.reactions, err = json.Marshal(m.Reactions); err != nil {
		return
	}
	if m.Masquerade != nil {
		if cols.masquerade, err = json.Marshal(m.Masquerade); err != nil {
			return
		}
	}
	if m.Interactions != nil {
		if cols.interactions, err = json.Marshal(m.Interactions); err != nil {
			return
		}
	}
	if m.System != nil {
		if cols.system, err = json.Marshal(m.System); err != nil {
			return
		}
	}
	return
}

// rowScanner abstracts over *sql.Row and *sql.Rows, both of which expose
// Scan with the same signature.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row *sql.Row) (*model.Message, error)      { return scanMessageFrom(row) }
func scanMessageRows(rows *sql.Rows) (*model.Message, error) { return scanMessageFrom(rows) }

func scanMessageFrom(row rowScanner) (*model.Message, error) {
	var m model.Message
	var attachments, embeds, replies, mentions, roleMentions, reactions, masquerade, interactions, system []byte
	var pinned int64
	if err := row.Scan(
		&m.ID, &m.ChannelID, &m.AuthorID, &m.Content, &attachments, &embeds, &replies, &mentions,
		&roleMentions, &reactions, &pinned, &masquerade, &interactions, &system, &m.EditedAtUnix, &m.Nonce,
	); err != nil {
		return nil, err
	}
	m.Pinned = pinned != 0
	for _, u := range []struct {
		data []byte
		dest interface{}
	}{
		{attachments, &m.Attachments},
		{embeds, &m.Embeds},
		{replies, &m.Replies},
		{mentions, &m.Mentions},
		{roleMentions, &m.RoleMentions},
		{reactions, &m.Reactions},
		{masquerade, &m.Masquerade},
		{interactions, &m.Interactions},
		{system, &m.System},
	} {
		if len(u.data) > 0 {
			if err := json.Unmarshal(u.data, u.dest); err != nil {
				return nil, err
			}
		}
	}
	return &m, nil
}
