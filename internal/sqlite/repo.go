// Package sqlite is the sqlite-backed chat store.
package sqlite

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jdholdren/campusmart/internal/chat"
)

// Ensure Repo implements the chat store
var _ chat.Store = (*Repo)(nil)

type Repo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) Repo {
	return Repo{db: db}
}

// DSN is the data source for the database at path: writes take the lock up
// front, the journal is WAL and a busy database is waited on for 5s.
func DSN(path string) string {
	return fmt.Sprintf("%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
}
