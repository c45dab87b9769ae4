// Package postgres implements the §6.6 storage capability interfaces
// against a Postgres backend, using database/sql over the pgx driver the
// same way the teacher's internal/store/pg package does
// (internal/store/pg/teams.go, sessions.go): QueryRowContext/ExecContext,
// column-constant strings, sql.ErrNoRows mapped to a typed not-found error.
package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nextlevelbuilder/embergate/internal/store"
)

// OpenDB opens a connection pool against dsn using the pgx stdlib driver.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewStores wires every capability interface to a single Postgres pool.
func NewStores(db *sql.DB) *store.Stores {
	return &store.Stores{
		Users:       &UserStore{db: db},
		Channels:    &ChannelStore{db: db},
		Messages:    &MessageStore{db: db},
		Servers:     &ServerStore{db: db},
		Members:     &MemberStore{db: db},
		VoiceStates: &VoiceStore{db: db},
	}
}
