package runlog

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pseudomuto/stagekeeper/pkg/consts"
	"github.com/pseudomuto/stagekeeper/pkg/database"
)

const entryColumns = `id, pipeline_name, step_name, step_order, start_time, end_time, status,
  records_processed, error_message, log_file_path`

type (
	// SQLStore keeps the run log in a sqlite or Postgres database.
	//
	// Example usage:
	//
	//	store, err := runlog.Open(ctx, database.Config{
	//		Driver: database.DriverSQLite,
	//		DSN:    "logs/stagekeeper.db",
	//	})
	//	if err != nil {
	//		return err
	//	}
	//	defer store.Close()
	//
	//	id, err := store.StartStep(ctx, "listings", "capture", 1)
	//	...
	//	err = store.EndStep(ctx, id, runlog.Result{Status: runlog.StatusSuccess, RecordsProcessed: 42})
	SQLStore struct {
		db      *sql.DB
		dialect *database.Dialect
		now     func() time.Time
	}

	// Option customizes an SQLStore.
	Option func(*SQLStore)

	scanner interface {
		Scan(...any) error
	}
)

// WithClock overrides the time source used for start and end timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLStore) {
		s.now = now
	}
}

// Open connects to the run log database described by cfg and ensures the
// audit table exists. A sqlite file's parent directory is created as needed.
func Open(ctx context.Context, cfg database.Config, opts ...Option) (*SQLStore, error) {
	if _, ok := schemas[cfg.Driver]; !ok {
		return nil, errors.Errorf("run log does not support driver: %q", cfg.Driver)
	}

	if cfg.Driver == database.DriverSQLite {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1

		if dir := sqliteDir(cfg.DSN); dir != "" {
			if err := os.MkdirAll(dir, consts.ModeDir); err != nil {
				return nil, errors.Wrapf(err, "failed to create run log directory: %s", dir)
			}
		}
	}

	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open run log")
	}

	store, err := New(ctx, db, cfg.Driver, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// New wraps an open database and ensures the audit table exists.
func New(ctx context.Context, db *sql.DB, driver string, opts ...Option) (*SQLStore, error) {
	stmts, ok := schemas[driver]
	if !ok {
		return nil, errors.Errorf("run log does not support driver: %q", driver)
	}

	dialect, err := database.DialectFor(driver)
	if err != nil {
		return nil, err
	}

	s := &SQLStore{
		db:      db,
		dialect: dialect,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, errors.Wrap(err, "failed to initialize run log schema")
		}
	}

	return s, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// StartStep inserts a RUNNING entry stamped with the current time.
func (s *SQLStore) StartStep(ctx context.Context, pipeline, step string, order int) (RunID, error) {
	id := RunID(uuid.NewString())

	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO etl_run_log
  (id, pipeline_name, step_name, step_order, start_time, status, records_processed)
  VALUES (?, ?, ?, ?, ?, ?, ?)`),
		string(id), pipeline, step, order, s.bindTime(s.timestamp()), string(StatusRunning), 0,
	)
	if err != nil {
		return NoRun, errors.Wrapf(err, "failed to start run log entry for step: %s", step)
	}

	return id, nil
}

// EndStep moves a RUNNING entry to its terminal status.
//
// The end time never precedes the start time, even if the clock moved
// backwards. Closing an unknown entry returns ErrRunNotFound and closing one
// twice returns ErrAlreadyClosed; in both cases nothing is written.
func (s *SQLStore) EndStep(ctx context.Context, id RunID, result Result) error {
	if id == NoRun {
		return nil
	}

	if !result.Status.Terminal() {
		return errors.Wrapf(ErrInvalidStatus, "got %q", result.Status)
	}

	var (
		start  timestamp
		status string
	)

	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT start_time, status FROM etl_run_log WHERE id = ?`),
		string(id),
	).Scan(&start, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(ErrRunNotFound, "id: %s", id)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to load run log entry: %s", id)
	}

	if Status(status) != StatusRunning {
		return errors.Wrapf(ErrAlreadyClosed, "id: %s, status: %s", id, status)
	}

	end := s.timestamp()
	if start.Valid && end.Before(start.Time) {
		end = start.Time.UTC()
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE etl_run_log
  SET end_time = ?, status = ?, records_processed = ?, error_message = ?, log_file_path = ?
  WHERE id = ? AND status = ?`),
		s.bindTime(end),
		string(result.Status),
		result.RecordsProcessed,
		nullString(result.ErrorMessage),
		nullString(result.LogFilePath),
		string(id),
		string(StatusRunning),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to end run log entry: %s", id)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(ErrAlreadyClosed, "id: %s", id)
	}

	return nil
}

// Get loads a single entry.
func (s *SQLStore) Get(ctx context.Context, id RunID) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+entryColumns+` FROM etl_run_log WHERE id = ?`),
		string(id),
	)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrRunNotFound, "id: %s", id)
	}

	return entry, err
}

// List returns the most recent limit entries of a pipeline in chronological
// order. A limit <= 0 returns every entry.
func (s *SQLStore) List(ctx context.Context, pipeline string, limit int) ([]*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM etl_run_log
  WHERE pipeline_name = ?
  ORDER BY start_time DESC, step_order DESC`
	args := []any{pipeline}

	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query run log")
	}
	defer func() { _ = rows.Close() }()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read run log")
	}

	// newest first from the query, oldest first for callers
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}

func (s *SQLStore) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// bindTime formats times for sqlite, which has no native timestamp type, so
// stored values sort chronologically and parse back unambiguously.
func (s *SQLStore) bindTime(t time.Time) any {
	if s.dialect.Driver == database.DriverSQLite {
		return t.Format(sqliteTimeLayout)
	}

	return t
}

// rebind rewrites ? markers into the dialect's placeholders.
func (s *SQLStore) rebind(query string) string {
	if s.dialect.Placeholder(1) == "?" {
		return query
	}

	var (
		sb strings.Builder
		n  int
	)

	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString(s.dialect.Placeholder(n))
			continue
		}
		sb.WriteRune(r)
	}

	return sb.String()
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e        Entry
		id       string
		status   string
		start    timestamp
		end      timestamp
		errMsg   sql.NullString
		filePath sql.NullString
	)

	err := row.Scan(
		&id,
		&e.PipelineName,
		&e.StepName,
		&e.StepOrder,
		&start,
		&end,
		&status,
		&e.RecordsProcessed,
		&errMsg,
		&filePath,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan run log entry")
	}

	e.ID = RunID(id)
	e.Status = Status(status)
	e.StartTime = start.Time

	if end.Valid {
		t := end.Time
		e.EndTime = &t
	}

	if errMsg.Valid {
		e.ErrorMessage = &errMsg.String
	}

	if filePath.Valid {
		e.LogFilePath = &filePath.String
	}

	return &e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// sqliteDir returns the directory of a plain sqlite file DSN, or "" for
// in-memory and URI DSNs.
func sqliteDir(dsn string) string {
	if dsn == "" || strings.HasPrefix(dsn, "file:") || strings.Contains(dsn, ":memory:") {
		return ""
	}

	dir := filepath.Dir(dsn)
	if dir == "." {
		return ""
	}

	return dir
}
