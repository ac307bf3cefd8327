// Package badgerdb keeps the registration ledger in an embedded Badger database.
package badgerdb

import (
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

type DB struct {
	db     *badger.DB
	logger *slog.Logger
}

func NewDB(db *badger.DB, logger *slog.Logger) *DB {
	return &DB{
		db:     db,
		logger: logger,
	}
}

// Open opens (or creates) a Badger database in dir. An empty dir keeps everything in memory.
func Open(dir string, logger *slog.Logger) (*DB, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return NewDB(db, logger), nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
