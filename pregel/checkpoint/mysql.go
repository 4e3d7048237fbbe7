package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL-backed Store for multi-process deployments where
// several runner instances share one checkpoint history per thread_id.
// Like SQLiteStore it keeps a single checkpoints table, but Put relies on
// MySQL's INSERT ... ON DUPLICATE KEY UPDATE rather than SQLite's ON
// CONFLICT clause.
type MySQLStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewMySQLStore opens a MySQL database using dsn (see
// github.com/go-sql-driver/mysql's DSN format) and ensures the checkpoints
// table exists.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open mysql: %w", err)
	}
	if _, err := db.Exec(schemaMySQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("checkpoint: migrate: %w", err)
	}
	return &MySQLStore{db: db}, nil
}

// newMySQLStoreFromDB wraps an already-open *sql.DB, letting tests inject a
// sqlmock connection without dialing a real server.
func newMySQLStoreFromDB(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

const schemaMySQL = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id       VARCHAR(255) NOT NULL,
	step            INT NOT NULL,
	channel_values  LONGBLOB NOT NULL,
	versions        LONGBLOB NOT NULL,
	idempotency_key VARCHAR(255) NOT NULL,
	created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (thread_id, step)
);
`

// Close releases the underlying database handle.
func (s *MySQLStore) Close() error { return s.db.Close() }

// Put persists cp, upserting on (thread_id, step).
func (s *MySQLStore) Put(ctx context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	valuesBlob, err := sonic.Marshal(cp.ChannelValues)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal channel values: %w", err)
	}
	versionsBlob, err := sonic.Marshal(cp.Versions)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal versions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, step, channel_values, versions, idempotency_key)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			channel_values = VALUES(channel_values),
			versions = VALUES(versions),
			idempotency_key = VALUES(idempotency_key)
	`, cp.ThreadID, cp.Step, valuesBlob, versionsBlob, cp.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("checkpoint: put: %w", err)
	}
	return nil
}

// Get retrieves the latest checkpoint for cfg.ThreadID, or the one at
// cfg.Step if set.
func (s *MySQLStore) Get(ctx context.Context, cfg Config) (Checkpoint, bool, error) {
	var row *sql.Row
	if cfg.Step != nil {
		row = s.db.QueryRowContext(ctx, `
			SELECT thread_id, step, channel_values, versions, idempotency_key, created_at
			FROM checkpoints WHERE thread_id = ? AND step = ?`, cfg.ThreadID, *cfg.Step)
	} else {
		row = s.db.QueryRowContext(ctx, `
			SELECT thread_id, step, channel_values, versions, idempotency_key, created_at
			FROM checkpoints WHERE thread_id = ? ORDER BY step DESC LIMIT 1`, cfg.ThreadID)
	}
	return scanCheckpoint(row)
}
