package eventbus

import (
	"context"
	"database/sql"
	"time"

	"github.com/ankala/maestro/pkg/api"
)

// SQLiteLog stores published events in SQLite for historical replay.
type SQLiteLog struct {
	db *sql.DB
}

// Ensure SQLiteLog implements Log.
var _ Log = (*SQLiteLog)(nil)

// NewSQLiteLog initializes the required schema and returns a new SQLiteLog.
func NewSQLiteLog(db *sql.DB) (*SQLiteLog, error) {
	l := &SQLiteLog{db: db}
	if err := l.initSchema(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLog) initSchema() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS job_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL,
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			step_id TEXT NOT NULL DEFAULT '',
			level INTEGER NOT NULL DEFAULT -1,
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_job_events_job_id ON job_events(job_id, id);
	`)
	return err
}

func (l *SQLiteLog) Append(ctx context.Context, ev api.Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO job_events (job_id, at, type, step_id, level, detail)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.JobID,
		at.UnixNano(),
		string(ev.Type),
		ev.StepID,
		ev.Level,
		ev.Detail,
	)
	return err
}

func (l *SQLiteLog) List(ctx context.Context, jobID string) ([]api.Event, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT job_id, at, type, step_id, level, detail
		FROM job_events
		WHERE job_id = ?
		ORDER BY id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.Event
	for rows.Next() {
		var (
			id     string
			atN    int64
			typ    string
			stepID string
			level  int
			detail string
		)
		if err := rows.Scan(&id, &atN, &typ, &stepID, &level, &detail); err != nil {
			return nil, err
		}
		out = append(out, api.Event{
			JobID:  id,
			At:     time.Unix(0, atN),
			Type:   api.EventType(typ),
			StepID: stepID,
			Level:  level,
			Detail: detail,
		})
	}
	return out, rows.Err()
}
