package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/nextlevelbuilder/embergate/internal/apierr"
	"github.com/nextlevelbuilder/embergate/internal/model"
)

// UserStore implements store.Users backed by Postgres.
type UserStore struct {
	db *sql.DB
}

const userSelectCols = `id, username, discriminator, display_name, avatar_hash, profile, bot, flags, privileged, relations`

func (s *UserStore) Fetch(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userSelectCols+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, apierr.New(apierr.KindUnknownUser)
	}
	if err != nil {
		return nil, apierr.Database("fetch", "users", err)
	}
	return u, nil
}

func (s *UserStore) FetchByUsername(ctx context.Context, username, discriminator string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userSelectCols+` FROM users WHERE username = $1 AND discriminator = $2`,
		username, discriminator)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, apierr.New(apierr.KindUnknownUser)
	}
	if err != nil {
		return nil, apierr.Database("fetch_by_username", "users", err)
	}
	return u, nil
}

func (s *UserStore) Insert(ctx context.Context, u *model.User) error {
	profile, err := json.Marshal(u.Profile)
	if err != nil {
		return apierr.Internal(err)
	}
	bot, err := json.Marshal(u.Bot)
	if err != nil {
		return apierr.Internal(err)
	}
	relations, err := json.Marshal(u.Relations)
	if err != nil {
		return apierr.Internal(err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, discriminator, display_name, avatar_hash, profile, bot, flags, privileged, relations)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Username, u.Discriminator, u.DisplayName, u.AvatarHash,
		nullableJSON(u.Profile, profile), nullableJSON(u.Bot, bot), u.Flags, u.Privileged, relations,
	)
	if err != nil {
		return apierr.Database("insert", "users", err)
	}
	return nil
}

func (s *UserStore) Update(ctx context.Context, u *model.User) error {
	profile, err := json.Marshal(u.Profile)
	if err != nil {
		return apierr.Internal(err)
	}
	bot, err := json.Marshal(u.Bot)
	if err != nil {
		return apierr.Internal(err)
	}
	relations, err := json.Marshal(u.Relations)
	if err != nil {
		return apierr.Internal(err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = $2, discriminator = $3, display_name = $4, avatar_hash = $5,
		 profile = $6, bot = $7, flags = $8, privileged = $9, relations = $10
		 WHERE id = $1`,
		u.ID, u.Username, u.Discriminator, u.DisplayName, u.AvatarHash,
		nullableJSON(u.Profile, profile), nullableJSON(u.Bot, bot), u.Flags, u.Privileged, relations,
	)
	if err != nil {
		return apierr.Database("update", "users", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierr.New(apierr.KindUnknownUser)
	}
	return nil
}

// nullableJSON returns nil when the pointer backing the marshaled JSON was
// nil, so the column stores SQL NULL instead of the literal "null".
func nullableJSON(ptr interface{}, data []byte) interface{} {
	if isNilPointer(ptr) {
		return nil
	}
	return data
}

func isNilPointer(v interface{}) bool {
	switch p := v.(type) {
	case *model.Profile:
		return p == nil
	case *model.Bot:
		return p == nil
	default:
		return false
	}
}

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	var profile, bot, relations []byte
	if err := row.Scan(
		&u.ID, &u.Username, &u.Discriminator, &u.DisplayName, &u.AvatarHash,
		&profile, &bot, &u.Flags, &u.Privileged, &relations,
	); err != nil {
		return nil, err
	}
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &u.Profile); err != nil {
			return nil, err
		}
	}
	if len(bot) > 0 {
		if err := json.Unmarshal(bot, &u.Bot); err != nil {
			return nil, err
		}
	}
	if len(relations) > 0 {
		if err := json.Unmarshal(relations, &u.Relations); err != nil {
			return nil, err
		}
	}
	return &u, nil
}
