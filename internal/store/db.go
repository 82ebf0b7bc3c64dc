package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/matheus3301/chitchat/internal/fanout"
)

// DB wraps the SQLite database that backs the message and profile collections.
type DB struct {
	*sql.DB
	notifier fanout.Notifier
	logger   *zap.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithNotifier sets where collection changes are announced and watched.
// The default is an in-process notifier private to this DB.
func WithNotifier(n fanout.Notifier) Option {
	return func(db *DB) { db.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(db *DB) { db.logger = l }
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string, opts ...Option) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	db := &DB{DB: sqlDB}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		db.logger = zap.NewNop()
	}
	if db.notifier == nil {
		db.notifier = fanout.NewLocal(nil)
	}
	return db, nil
}

// Notifier returns the change notifier in use.
func (db *DB) Notifier() fanout.Notifier {
	return db.notifier
}

func (db *DB) notify(collection string) {
	if err := db.notifier.Notify(collection); err != nil {
		db.logger.Warn("change notification failed", zap.String("collection", collection), zap.Error(err))
	}
}
