package executor

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/pseudomuto/stagekeeper/pkg/consts"
	"github.com/pseudomuto/stagekeeper/pkg/database"
	"github.com/pseudomuto/stagekeeper/pkg/script"
)

type (
	// Session is anything statements can be executed against. *sql.DB, *sql.Tx
	// and *sql.Conn all satisfy it.
	Session interface {
		ExecContext(context.Context, string, ...any) (sql.Result, error)
	}

	// Executor applies split scripts to a database session.
	//
	// Statements run in order. Errors the configured Classifier reports as
	// idempotency violations ("already exists", "duplicate") are skipped so a
	// setup script can be re-applied to an initialized target. Any other error
	// stops execution immediately.
	//
	// The executor never begins, commits or rolls back a transaction. Pass a
	// *sql.Tx as the Session to make a whole script atomic.
	//
	// Example usage:
	//
	//	exec := executor.New(executor.Config{
	//		Classifier: database.PostgresClassifier{},
	//	})
	//
	//	tx, err := db.BeginTx(ctx, nil)
	//	if err != nil {
	//		return err
	//	}
	//
	//	if _, err := exec.Execute(ctx, tx, statements); err != nil {
	//		_ = tx.Rollback()
	//		return err
	//	}
	//
	//	return tx.Commit()
	Executor struct {
		classifier database.Classifier
		logger     *slog.Logger
		savepoints bool
	}

	// Config contains configuration options for creating a new Executor.
	Config struct {
		// Classifier decides which errors are idempotency violations. Defaults to
		// database.TextClassifier.
		Classifier database.Classifier

		// Logger receives a debug line per skipped statement. Defaults to slog.Default().
		Logger *slog.Logger

		// Savepoints wraps each statement of ExecuteAtomic in a savepoint so a
		// skipped error doesn't abort the transaction. Postgres needs this.
		Savepoints bool
	}

	// ExecutionResult summarizes a single Execute call.
	ExecutionResult struct {
		// TotalStatements is the number of statements handed to Execute
		TotalStatements int

		// StatementsApplied counts statements that ran without error
		StatementsApplied int

		// StatementsSkipped counts statements whose error was swallowed
		StatementsSkipped int

		// ExecutionTime records how long the call took
		ExecutionTime time.Duration
	}
)

// New creates an Executor with the provided configuration.
func New(config Config) *Executor {
	if config.Classifier == nil {
		config.Classifier = database.TextClassifier{}
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Executor{
		classifier: config.Classifier,
		logger:     config.Logger,
		savepoints: config.Savepoints,
	}
}

// Execute runs statements against session in order.
//
// The returned result is never nil and reflects the statements processed
// before any failure. A failing statement is reported with its 1-based index
// and a preview of its text; statements after it are not executed.
func (e *Executor) Execute(ctx context.Context, session Session, statements []script.Statement) (*ExecutionResult, error) {
	startTime := time.Now()
	result := &ExecutionResult{TotalStatements: len(statements)}

	for i, stmt := range statements {
		if err := ctx.Err(); err != nil {
			result.ExecutionTime = time.Since(startTime)
			return result, errors.Wrapf(err, "cancelled before statement %d", i+1)
		}

		_, err := session.ExecContext(ctx, stmt.SQL)
		if err == nil {
			result.StatementsApplied++
			continue
		}

		if kind := e.classifier.Classify(err); kind.Idempotent() {
			e.logger.Debug("Skipping statement",
				"index", i+1,
				"kind", kind.String(),
				"err", err,
			)
			result.StatementsSkipped++
			continue
		}

		result.ExecutionTime = time.Since(startTime)
		return result, errors.Wrapf(err, "failed to execute statement %d: %s", i+1, Preview(stmt.SQL))
	}

	result.ExecutionTime = time.Since(startTime)
	return result, nil
}

// Preview truncates sql to the first consts.StatementPreviewLen characters
// for use in diagnostics.
func Preview(sql string) string {
	if utf8.RuneCountInString(sql) <= consts.StatementPreviewLen {
		return sql
	}

	runes := []rune(sql)
	return string(runes[:consts.StatementPreviewLen])
}
