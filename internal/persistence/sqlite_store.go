package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ankala/maestro/pkg/api"
)

// SQLiteJobStore is a JobStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteJobStore struct {
	db *sql.DB
}

// Ensure SQLiteJobStore implements JobStore.
var _ JobStore = (*SQLiteJobStore)(nil)

// NewSQLiteJobStore initializes the required schema in the given database
// and returns a new SQLiteJobStore.
func NewSQLiteJobStore(db *sql.DB) (*SQLiteJobStore, error) {
	s := &SQLiteJobStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteJobStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			workflow_version TEXT NOT NULL,
			status TEXT NOT NULL,
			current_level INTEGER NOT NULL,
			inputs BLOB,
			outputs BLOB,
			completed BLOB,
			skipped BLOB,
			failed BLOB,
			error TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	)
	return err
}

func (s *SQLiteJobStore) SaveJob(job *api.Job) error {
	cols, err := encodeJob(job)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO jobs (id, workflow_id, workflow_version, status, current_level,
			inputs, outputs, completed, skipped, failed, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.WorkflowID,
		job.WorkflowVersion,
		string(job.Status),
		job.CurrentLevel,
		cols.inputs,
		cols.outputs,
		cols.completed,
		cols.skipped,
		cols.failed,
		cols.errText,
		job.CreatedAt.UnixNano(),
		job.UpdatedAt.UnixNano(),
	)
	return err
}

func (s *SQLiteJobStore) UpdateJob(job *api.Job) error {
	cols, err := encodeJob(job)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE jobs
		SET status = ?, current_level = ?, inputs = ?, outputs = ?,
			completed = ?, skipped = ?, failed = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		string(job.Status),
		job.CurrentLevel,
		cols.inputs,
		cols.outputs,
		cols.completed,
		cols.skipped,
		cols.failed,
		cols.errText,
		job.UpdatedAt.UnixNano(),
		job.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return api.ErrJobNotFound
	}

	return nil
}

func (s *SQLiteJobStore) TransitionJob(id string, from, to api.Status) error {
	res, err := s.db.Exec(`
		UPDATE jobs
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to),
		time.Now().UnixNano(),
		id,
		string(from),
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	// The conditional update missed: either the job does not exist or
	// another claimant got there first.
	var current string
	err = s.db.QueryRow(`SELECT status FROM jobs WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return api.ErrJobNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is %s, not %s", api.ErrInvalidTransition, id, current, from)
}

func (s *SQLiteJobStore) GetJob(id string) (*api.Job, error) {
	row := s.db.QueryRow(`
		SELECT id, workflow_id, workflow_version, status, current_level,
			inputs, outputs, completed, skipped, failed, error, created_at, updated_at
		FROM jobs
		WHERE id = ?`,
		id,
	)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (s *SQLiteJobStore) ListJobs(opts api.JobListOptions) ([]*api.Job, error) {
	query := `
		SELECT id, workflow_id, workflow_version, status, current_level,
			inputs, outputs, completed, skipped, failed, error, created_at, updated_at
		FROM jobs`
	var args []any
	var clauses []string

	if opts.WorkflowID != "" {
		clauses = append(clauses, "workflow_id = ?")
		args = append(args, opts.WorkflowID)
	}
	if opts.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(opts.Status))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*api.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

type jobColumns struct {
	inputs    []byte
	outputs   []byte
	completed []byte
	skipped   []byte
	failed    []byte
	errText   string
}

func encodeJob(job *api.Job) (jobColumns, error) {
	var cols jobColumns
	var err error

	if cols.inputs, err = EncodeValue(job.Inputs); err != nil {
		return cols, err
	}
	if cols.outputs, err = EncodeValue(job.Outputs); err != nil {
		return cols, err
	}
	if cols.completed, err = EncodeValue(job.Completed); err != nil {
		return cols, err
	}
	if cols.skipped, err = EncodeValue(job.Skipped); err != nil {
		return cols, err
	}
	if cols.failed, err = EncodeValue(job.Failed); err != nil {
		return cols, err
	}
	if job.Err != nil {
		cols.errText = job.Err.Error()
	}
	return cols, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*api.Job, error) {
	var job api.Job
	var statusStr string
	var inputs, outputs, completed, skipped, failed []byte
	var errStr sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&job.ID, &job.WorkflowID, &job.WorkflowVersion, &statusStr,
		&job.CurrentLevel, &inputs, &outputs, &completed, &skipped, &failed,
		&errStr, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	job.Status = api.Status(statusStr)
	job.CreatedAt = time.Unix(0, createdAt)
	job.UpdatedAt = time.Unix(0, updatedAt)

	if job.Inputs, err = DecodeValue[map[string]any](inputs); err != nil {
		return nil, err
	}
	if job.Outputs, err = DecodeValue[map[string]any](outputs); err != nil {
		return nil, err
	}
	if job.Completed, err = DecodeValue[map[string]bool](completed); err != nil {
		return nil, err
	}
	if job.Skipped, err = DecodeValue[map[string]bool](skipped); err != nil {
		return nil, err
	}
	if job.Failed, err = DecodeValue[map[string]string](failed); err != nil {
		return nil, err
	}
	if errStr.Valid && errStr.String != "" {
		job.Err = errors.New(errStr.String)
	}

	return &job, nil
}
