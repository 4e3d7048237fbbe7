package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed Store, good for local development,
// single-process runs that must survive a restart, and prototyping before
// moving to a shared database. It keeps one table, `checkpoints`, holding
// one row per (thread_id, step) with the channel snapshot encoded as a
// single JSON blob.
//
// SQLiteStore opens the database in WAL mode so reads never block a Put.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at path
// and ensures the checkpoints table exists. Use ":memory:" for an
// ephemeral database useful in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("checkpoint: enable WAL: %w", err)
	}
	if _, err := db.Exec(schemaSQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("checkpoint: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id       TEXT NOT NULL,
	step            INTEGER NOT NULL,
	channel_values  BLOB NOT NULL,
	versions        BLOB NOT NULL,
	idempotency_key TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (thread_id, step)
);
`

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Put persists cp, upserting on (thread_id, step) so a retried Put for the
// same step is a no-op replace rather than a duplicate row.
func (s *SQLiteStore) Put(ctx context.Context, cp Checkpoint) error {
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
		ON CONFLICT(thread_id, step) DO UPDATE SET
			channel_values = excluded.channel_values,
			versions = excluded.versions,
			idempotency_key = excluded.idempotency_key
	`, cp.ThreadID, cp.Step, valuesBlob, versionsBlob, cp.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("checkpoint: put: %w", err)
	}
	return nil
}

// Get retrieves the latest checkpoint for cfg.ThreadID, or the one at
// cfg.Step if set.
func (s *SQLiteStore) Get(ctx context.Context, cfg Config) (Checkpoint, bool, error) {
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

func scanCheckpoint(row *sql.Row) (Checkpoint, bool, error) {
	var cp Checkpoint
	var valuesBlob, versionsBlob []byte
	if err := row.Scan(&cp.ThreadID, &cp.Step, &valuesBlob, &versionsBlob, &cp.IdempotencyKey, &cp.Timestamp); err != nil {
		if err == sql.ErrNoRows {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, fmt.Errorf("checkpoint: scan: %w", err)
	}
	if err := sonic.Unmarshal(valuesBlob, &cp.ChannelValues); err != nil {
		return Checkpoint{}, false, fmt.Errorf("checkpoint: unmarshal channel values: %w", err)
	}
	if err := sonic.Unmarshal(versionsBlob, &cp.Versions); err != nil {
		return Checkpoint{}, false, fmt.Errorf("checkpoint: unmarshal versions: %w", err)
	}
	return cp, true, nil
}
