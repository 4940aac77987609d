package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ankala/maestro/internal/persistence"
	"github.com/ankala/maestro/pkg/api"
)

// SQLiteStore is a Store backed by SQLite. A checkpoint is one row, written
// by a single INSERT, which gives the all-or-nothing save the contract
// requires.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite").
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL,
			level INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			snapshot BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_checkpoints_job_id ON checkpoints(job_id, created_at);
	`)
	return err
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp api.Checkpoint) error {
	snap, err := persistence.EncodeValue(cp.Snapshot)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (id, job_id, level, created_at, snapshot)
		VALUES (?, ?, ?, ?, ?)`,
		cp.ID,
		cp.JobID,
		cp.Level,
		cp.CreatedAt.UnixNano(),
		snap,
	)
	return err
}

func (s *SQLiteStore) GetCheckpoint(ctx context.Context, id string) (api.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_id, level, created_at, snapshot
		FROM checkpoints
		WHERE id = ?`,
		id,
	)

	cp, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.Checkpoint{}, api.ErrCheckpointNotFound
		}
		return api.Checkpoint{}, err
	}
	return cp, nil
}

func (s *SQLiteStore) ListCheckpoints(ctx context.Context, jobID string) ([]api.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, level, created_at, snapshot
		FROM checkpoints
		WHERE job_id = ?
		ORDER BY created_at DESC, rowid DESC`,
		jobID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteCheckpoint(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return api.ErrCheckpointNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (api.Checkpoint, error) {
	var cp api.Checkpoint
	var createdAt int64
	var snap []byte

	if err := row.Scan(&cp.ID, &cp.JobID, &cp.Level, &createdAt, &snap); err != nil {
		return api.Checkpoint{}, err
	}

	cp.CreatedAt = time.Unix(0, createdAt)

	snapshot, err := persistence.DecodeValue[api.Snapshot](snap)
	if err != nil {
		return api.Checkpoint{}, err
	}
	cp.Snapshot = snapshot
	return cp, nil
}
