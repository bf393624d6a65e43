package advisor

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const stateSchema = `
CREATE TABLE IF NOT EXISTS kv_state (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
);
`

type sqliteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (creating if needed) a file-backed StateStore.
func NewSQLiteStore(path string) (StateStore, error) {
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	db, err := sql.Open("sqlite", cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	// SQLite performs best with a single writer.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(stateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init state schema: %w", err)
	}
	return &sqliteStore{db: db, now: time.Now}, nil
}

func (s *sqliteStore) Get(key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt int64
	err := s.db.QueryRow(
		`SELECT value, expires_at FROM kv_state WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query state: %w", err)
	}
	if expiresAt > 0 && s.now().UnixMilli() > expiresAt {
		return nil, false, nil
	}
	return value, true, nil
}

func (s *sqliteStore) Set(key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixMilli()
	}
	_, err := s.db.Exec(
		`INSERT INTO kv_state (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

func (s *sqliteStore) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv_state WHERE key = ?`, key)
	return err
}

func (s *sqliteStore) Keys(prefix string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT key FROM kv_state WHERE key LIKE ? || '%'`, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("query state keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *sqliteStore) Sweep(now time.Time) (int, error) {
	result, err := s.db.Exec(
		`DELETE FROM kv_state WHERE expires_at > 0 AND expires_at < ?`, now.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(affected), nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
