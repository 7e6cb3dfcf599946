package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.trai.ch/zerr"
	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrations string

// SQLiteStore is a Store backed by a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema.
func OpenSQLite(ctx context.Context, path string, busyTimeout time.Duration, logger *slog.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, zerr.New("sqlite path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, zerr.Wrap(err, "create store directory")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, zerr.Wrap(err, "open sqlite")
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if busyTimeout > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(ctx, migrations); err != nil {
		_ = db.Close()
		return nil, zerr.With(zerr.Wrap(err, "migrate store"), "path", path)
	}
	logger.Debug("store opened", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) conn() (*sql.DB, func(), error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, nil, ErrStoreClosed
	}
	return s.db, s.mu.RUnlock, nil
}

func (s *SQLiteStore) Get(ctx context.Context, ns, key string, dst any) (bool, error) {
	if err := checkKey(ns, key); err != nil {
		return false, err
	}
	db, done, err := s.conn()
	if err != nil {
		return false, err
	}
	defer done()
	var raw string
	err = db.QueryRowContext(ctx, `SELECT value FROM kv WHERE ns = ? AND key = ?`, ns, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, zerr.With(zerr.Wrap(err, "store get"), "key", ns+"/"+key)
	}
	return true, decode([]byte(raw), dst)
}

func (s *SQLiteStore) Put(ctx context.Context, ns, key string, v any) error {
	if err := checkKey(ns, key); err != nil {
		return err
	}
	b, err := encode(v)
	if err != nil {
		return err
	}
	db, done, err := s.conn()
	if err != nil {
		return err
	}
	defer done()
	_, err = db.ExecContext(ctx,
		`INSERT INTO kv(ns, key, value, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(ns, key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		ns, key, string(b), time.Now().UnixMilli(),
	)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "store put"), "key", ns+"/"+key)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, ns, key string) error {
	if err := checkKey(ns, key); err != nil {
		return err
	}
	db, done, err := s.conn()
	if err != nil {
		return err
	}
	defer done()
	if _, err := db.ExecContext(ctx, `DELETE FROM kv WHERE ns = ? AND key = ?`, ns, key); err != nil {
		return zerr.With(zerr.Wrap(err, "store remove"), "key", ns+"/"+key)
	}
	return nil
}

func (s *SQLiteStore) Keys(ctx context.Context, ns string) ([]string, error) {
	db, done, err := s.conn()
	if err != nil {
		return nil, err
	}
	defer done()
	rows, err := db.QueryContext(ctx, `SELECT key FROM kv WHERE ns = ? ORDER BY key`, ns)
	if err != nil {
		return nil, zerr.Wrap(err, "store keys")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, zerr.Wrap(err, "store keys")
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// Close releases the database. Further calls return ErrStoreClosed.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
