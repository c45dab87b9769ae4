// Package sqlite implements the §6.6 storage capability interfaces against
// a single-file SQLite database, using database/sql over
// modernc.org/sqlite (pure Go, no cgo) the same way internal/store/postgres
// uses pgx: QueryRowContext/ExecContext, column-constant strings,
// sql.ErrNoRows mapped to a typed not-found error. Exists for §6.7's self-host deployment
// target, where a single binary with no external Postgres/Redis/RabbitMQ
// is the whole point.
package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/embergate/internal/store"
)

//go:embed migrations/0001_init.up.sql
var initSchema string

// OpenDB opens (creating if absent) a SQLite database file at path and
// applies the embedded schema. Self-host deployments have no separate
// migration step: the schema is small, additive-only so far, and a single
// binary is expected to own its own file.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers internally; a single shared connection
	// avoids SQLITE_BUSY from this process's own pool contending with
	// itself (the embedded media-server/webhook path and the gateway both
	// write concurrently).
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(initSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return db, nil
}

// NewStores wires every capability interface to a single SQLite handle.
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
