package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLiteStore keeps buckets in a SQLite database so cached assets survive
// restarts of the offline proxy.
type SQLiteStore struct {
	db *sql.DB
}

type sqliteBucket struct {
	db   *sql.DB
	name string
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// Background cache writes race with lookups; one connection serializes them.
	db.SetMaxOpenConns(1)

	if err := createCacheTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func createCacheTables(ctx context.Context, db *sql.DB) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS buckets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL
	);
	CREATE TABLE IF NOT EXISTS entries (
		bucket TEXT NOT NULL,
		key TEXT NOT NULL,
		status INTEGER NOT NULL,
		header BLOB NOT NULL,
		body BLOB NOT NULL,
		stored_at INTEGER NOT NULL,
		PRIMARY KEY (bucket, key)
	);
	`

	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("error creating tables: %w", err)
	}
	return nil
}

// Open returns the named bucket, creating it if needed.
func (s *SQLiteStore) Open(ctx context.Context, name string) (Bucket, error) {
	if _, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO buckets (name) VALUES (?)", name); err != nil {
		return nil, fmt.Errorf("error opening bucket %s: %w", name, err)
	}
	return &sqliteBucket{db: s.db, name: name}, nil
}

// Keys lists bucket names in creation order.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM buckets ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("error listing buckets: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error: %w", err)
	}
	return names, nil
}

// Delete removes a bucket and its entries.
func (s *SQLiteStore) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE bucket = ?", name); err != nil {
		return false, fmt.Errorf("error deleting entries: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM buckets WHERE name = ?", name)
	if err != nil {
		return false, fmt.Errorf("error deleting bucket: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("error committing transaction: %w", err)
	}
	return n > 0, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (b *sqliteBucket) Name() string {
	return b.name
}

func (b *sqliteBucket) Match(ctx context.Context, key string) (*CachedResponse, error) {
	var (
		status   int
		header   []byte
		body     []byte
		storedAt int64
	)

	err := b.db.QueryRowContext(ctx,
		"SELECT status, header, body, stored_at FROM entries WHERE bucket = ? AND key = ?",
		b.name, key,
	).Scan(&status, &header, &body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("error reading entry: %w", err)
	}

	var h http.Header
	if err := json.Unmarshal(header, &h); err != nil {
		return nil, fmt.Errorf("error decoding header: %w", err)
	}

	return &CachedResponse{
		StatusCode: status,
		Header:     h,
		Body:       body,
		StoredAt:   time.Unix(0, storedAt),
	}, nil
}

func (b *sqliteBucket) Put(ctx context.Context, key string, resp *CachedResponse) error {
	header, err := json.Marshal(resp.Header)
	if err != nil {
		return fmt.Errorf("error encoding header: %w", err)
	}

	storedAt := resp.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}

	body := resp.Body
	if body == nil {
		body = []byte{}
	}

	// Writes to a purged bucket are dropped.
	_, err = b.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO entries (bucket, key, status, header, body, stored_at)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM buckets WHERE name = ?)`,
		b.name, key, resp.StatusCode, header, body, storedAt.UnixNano(), b.name,
	)
	if err != nil {
		return fmt.Errorf("error writing entry: %w", err)
	}
	return nil
}
