// Package storage persists scouts, the places hierarchy and wizard drafts in
// SQLite. It provides the collaborators the registration wizard depends on:
// a wizard.Submitter, lookup sources and a wizard.DraftStore.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/gabrielmiguelok/tropa/pkg/logging"
	"github.com/gabrielmiguelok/tropa/pkg/retry"
)

// Storage errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateDocument = errors.New("a scout with this document is already registered")
)

// Config configures the database.
type Config struct {
	// Path is the database file. Parent directories are created.
	Path string `mapstructure:"path"`

	// BusyTimeout is how long SQLite waits on a locked database before
	// reporting SQLITE_BUSY.
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// DB is an open database with the retry policy used for writes.
type DB struct {
	SQL    *sql.DB
	retry  retry.Config
	logger logging.Logger
}

// Open opens the SQLite database with foreign keys and WAL on.
func Open(cfg Config, logger logging.Logger) (*DB, error) {
	if cfg.Path == "" {
		return nil, errors.New("storage: empty database path")
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
		cfg.Path, busy.Milliseconds())
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	rc := retry.DefaultConfig()
	rc.Attempts = 4
	rc.RetryIf = isBusy
	rc.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Debug("database busy, retrying", logging.Int("attempt", attempt), logging.Duration("delay", delay))
	}

	return &DB{SQL: conn, retry: rc, logger: logger}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.SQL.Close()
}

// PingContext checks the connection. It satisfies health.Pinger.
func (db *DB) PingContext(ctx context.Context) error {
	return db.SQL.PingContext(ctx)
}

// inTx runs fn in a transaction, retrying the whole transaction while the
// database is busy.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return retry.Do(ctx, db.retry, func(ctx context.Context) error {
		tx, err := db.SQL.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func sqliteCode(err error) (int, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() & 0xff, true
	}
	return 0, false
}

func isBusy(err error) bool {
	code, ok := sqliteCode(err)
	return ok && (code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED)
}

func isUnique(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		(se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE"))
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
