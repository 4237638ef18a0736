package store

import (
	"database/sql"
	"errors"

	"go.uber.org/zap"
)

// ErrNotFound is returned when the referenced row does not exist.
var ErrNotFound = errors.New("not found")

// Store provides message and gap persistence on top of SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}
