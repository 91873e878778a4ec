package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const kvSchema = `CREATE TABLE IF NOT EXISTS kv (
  namespace TEXT NOT NULL,
  key TEXT NOT NULL,
  value BLOB NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (namespace, key)
);`

// SQLiteDB is the embedded database backing every local namespace
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the state database at path. An empty path
// opens a private in-memory database.
func OpenSQLite(path string) (*SQLiteDB, error) {
	trimmed := strings.TrimSpace(path)
	inMemory := trimmed == "" || trimmed == ":memory:"
	if trimmed == "" {
		trimmed = ":memory:"
	}

	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// A single connection keeps in-memory databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(kvSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	if !inMemory {
		if _, err := db.Exec(`PRAGMA journal_mode=wal;`); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "set WAL")
		}
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the underlying database
func (d *SQLiteDB) Close() error { return d.db.Close() }

// Namespace returns a storage view whose keys are isolated from other namespaces
func (d *SQLiteDB) Namespace(name string) *SQLiteStorage {
	return &SQLiteStorage{db: d.db, namespace: name}
}

// SQLiteStorage is one namespace of the local key/value table
type SQLiteStorage struct {
	db        *sql.DB
	namespace string
}

var _ StorageInterface = (*SQLiteStorage)(nil)

func (s *SQLiteStorage) Store(ctx context.Context, key string, data []byte) error {
	const q = `INSERT INTO kv (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`
	_, err := s.db.ExecContext(ctx, q, s.namespace, key, data, time.Now().UTC().Format(time.RFC3339Nano))
	return errors.Wrapf(err, "store %s/%s", s.namespace, key)
}

func (s *SQLiteStorage) Retrieve(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE namespace = ? AND key = ?`, s.namespace, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "retrieve %s/%s", s.namespace, key)
	}
	return data, nil
}

func (s *SQLiteStorage) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv WHERE namespace = ? AND substr(key, 1, ?) = ? ORDER BY key`,
		s.namespace, len(prefix), prefix)
	if err != nil {
		return nil, errors.Wrap(err, "list keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.Wrap(err, "scan key")
		}
		keys = append(keys, key)
	}
	return keys, errors.Wrap(rows.Err(), "iterate keys")
}

func (s *SQLiteStorage) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE namespace = ? AND key = ?`, s.namespace, key)
	return errors.Wrapf(err, "delete %s/%s", s.namespace, key)
}
