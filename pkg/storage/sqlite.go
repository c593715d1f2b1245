package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements KeyValue using SQLite for persistence.
// This backend provides durable storage and is suitable for single-instance
// deployments where cache contents and cost snapshots must survive restarts.
//
// SQLiteStore uses a write-ahead log (WAL) for better concurrent performance
// and a single writer connection, which is what SQLite supports.
type SQLiteStore struct {
	db       *sql.DB
	dbPath   string
	maxBytes int64

	closeOnce sync.Once

	// preparedStatements contains pre-compiled SQL statements for the hot path
	getStmt    *sql.Stmt
	setStmt    *sql.Stmt
	removeStmt *sql.Stmt
	keysStmt   *sql.Stmt
}

// SQLiteStoreConfig configures the SQLite store.
type SQLiteStoreConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// MaxBytes is a soft byte quota; writes beyond it fail with
	// QuotaExceededError. Zero means unlimited.
	MaxBytes int64
}

// NewSQLiteStore creates a new SQLite store with default settings.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(SQLiteStoreConfig{DBPath: dbPath})
}

// NewSQLiteStoreWithConfig creates a new SQLite store with custom
// configuration.
func NewSQLiteStoreWithConfig(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:       db,
		dbPath:   cfg.DBPath,
		maxBytes: cfg.MaxBytes,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv_entries (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_kv_updated_at ON kv_entries(updated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.getStmt, err = s.db.Prepare(`SELECT value FROM kv_entries WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}

	s.setStmt, err = s.db.Prepare(`
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare set statement: %w", err)
	}

	s.removeStmt, err = s.db.Prepare(`DELETE FROM kv_entries WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare remove statement: %w", err)
	}

	s.keysStmt, err = s.db.Prepare(`
		SELECT key FROM kv_entries WHERE key LIKE ? ESCAPE '\' ORDER BY updated_at ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare keys statement: %w", err)
	}

	return nil
}

// Get retrieves the value for a key.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.getStmt.QueryRowContext(ctx, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %q: %w", key, err)
	}

	return value, true, nil
}

// Set stores a value under a key.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	if s.maxBytes > 0 {
		inUse, err := s.BytesInUse(ctx)
		if err == nil && inUse+int64(len(key)+len(value)) > s.maxBytes {
			return &QuotaExceededError{Key: key, InUse: inUse, Quota: s.maxBytes}
		}
	}

	_, err := s.setStmt.ExecContext(ctx, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to set key %q: %w", key, err)
	}

	return nil
}

// Remove deletes a key.
func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	if _, err := s.removeStmt.ExecContext(ctx, key); err != nil {
		return fmt.Errorf("failed to remove key %q: %w", key, err)
	}
	return nil
}

// Keys returns all keys with the given prefix, oldest write first.
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.keysStmt.QueryContext(ctx, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// BytesInUse returns the approximate number of bytes stored (keys + values).
func (s *SQLiteStore) BytesInUse(ctx context.Context) (int64, error) {
	var bytes sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(LENGTH(key) + LENGTH(value)) FROM kv_entries`).Scan(&bytes)
	if err != nil {
		return 0, fmt.Errorf("failed to compute bytes in use: %w", err)
	}

	return bytes.Int64, nil
}

// Close releases database resources. Safe to call more than once.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{s.getStmt, s.setStmt, s.removeStmt, s.keysStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		err = s.db.Close()
	})
	return err
}

// escapeLike escapes LIKE wildcards in a literal prefix.
func escapeLike(prefix string) string {
	out := make([]byte, 0, len(prefix))
	for i := 0; i < len(prefix); i++ {
		switch prefix[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, prefix[i])
	}
	return string(out)
}
