package stage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/stagekeeper/pkg/consts"
	"github.com/pseudomuto/stagekeeper/pkg/database"
	"github.com/pseudomuto/stagekeeper/pkg/executor"
	"github.com/pseudomuto/stagekeeper/pkg/script"
)

// SQLTask applies SQL to a single target: scripts first, then a refresh made
// of table truncation and inline statements, then row counts.
//
// Each script and the refresh run in their own transaction on transactional
// targets. ClickHouse runs them directly.
//
// The pipeline doesn't run SQLTask in process. `stagekeeper stage exec`
// applies it in a child process so every stage keeps its own connections.
type SQLTask struct {
	Target database.Config

	// Scripts are applied in order
	Scripts []string

	// Truncate lists tables emptied before Statements run
	Truncate []string

	// Statements are inline SQL, each may hold several statements
	Statements []string

	// Counts lists tables whose row counts add up to the reported records
	Counts []string

	Options script.Options
	Logger  *slog.Logger
}

// Apply runs the task and returns the number of records in the Counts tables.
func (t *SQLTask) Apply(ctx context.Context) (int64, error) {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialect, err := database.DialectFor(t.Target.Driver)
	if err != nil {
		return 0, err
	}

	db, err := database.Open(ctx, t.Target)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()

	exec := executor.New(executor.Config{
		Classifier: dialect.Classifier,
		Logger:     logger,
		Savepoints: dialect.Savepoints,
	})

	for _, path := range t.Scripts {
		stmts, err := script.LoadFile(path, t.Options)
		if err != nil {
			return 0, err
		}

		result, err := exec.ExecuteAtomic(ctx, db, stmts, dialect.Transactional)
		if err != nil {
			return 0, errors.Wrapf(err, "failed to apply %s", path)
		}

		logger.Info("Applied script",
			"script", path,
			"applied", result.StatementsApplied,
			"skipped", result.StatementsSkipped,
			"duration", result.ExecutionTime,
		)
	}

	if refresh := t.refresh(dialect); len(refresh) > 0 {
		if _, err := exec.ExecuteAtomic(ctx, db, refresh, dialect.Transactional); err != nil {
			return 0, errors.Wrap(err, "failed to refresh tables")
		}
	}

	var records int64
	for _, table := range t.Counts {
		var n int64
		if err := db.QueryRowContext(ctx, dialect.CountRows(table)).Scan(&n); err != nil {
			return 0, errors.Wrapf(err, "failed to count rows in %s", table)
		}

		logger.Info("Counted rows", "table", table, "rows", n)
		records += n
	}

	return records, nil
}

func (t *SQLTask) refresh(dialect *database.Dialect) []script.Statement {
	var stmts []script.Statement
	for _, table := range t.Truncate {
		stmts = append(stmts, script.Statement{SQL: dialect.Truncate(table), Delimiter: consts.DefaultDelimiter})
	}

	for _, sql := range t.Statements {
		stmts = append(stmts, script.SplitWithOptions(sql, t.Options)...)
	}

	return stmts
}

// Execute implements Task by applying the task in process. The outcome mimics
// a stage process: the records marker on stdout and the error on stderr.
func (t *SQLTask) Execute(ctx context.Context) Outcome {
	start := time.Now()

	records, err := t.Apply(ctx)
	outcome := Outcome{Records: records, Duration: time.Since(start)}

	if err != nil {
		outcome.ExitCode = 1
		outcome.Stderr = err.Error()
		return outcome
	}

	outcome.Stdout = fmt.Sprintf("%s%d\n", consts.RecordsMarker, records)
	return outcome
}
