package executor

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/pseudomuto/stagekeeper/pkg/script"
)

// Beginner starts transactions. *sql.DB and *sql.Conn satisfy it.
type Beginner interface {
	Session
	BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error)
}

// ExecuteAtomic runs statements inside a single transaction on db, committing
// on success and rolling back on failure. When transactional is false the
// statements run directly against db, as ClickHouse requires.
func (e *Executor) ExecuteAtomic(ctx context.Context, db Beginner, statements []script.Statement, transactional bool) (*ExecutionResult, error) {
	if !transactional {
		return e.Execute(ctx, db, statements)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &ExecutionResult{TotalStatements: len(statements)}, errors.Wrap(err, "failed to begin transaction")
	}

	var session Session = tx
	if e.savepoints {
		session = &savepointSession{tx: tx}
	}

	result, err := e.Execute(ctx, session, statements)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			e.logger.Warn("Rollback failed", "err", rbErr)
		}
		return result, err
	}

	if err := tx.Commit(); err != nil {
		return result, errors.Wrap(err, "failed to commit transaction")
	}

	return result, nil
}

const savepointName = "stagekeeper_stmt"

// savepointSession runs every statement under a savepoint and rolls back to it
// on error, leaving the transaction usable for the statements that follow.
type savepointSession struct {
	tx *sql.Tx
}

func (s *savepointSession) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if _, err := s.tx.ExecContext(ctx, "SAVEPOINT "+savepointName); err != nil {
		return nil, errors.Wrap(err, "failed to create savepoint")
	}

	res, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		if _, rbErr := s.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); rbErr != nil {
			return nil, errors.Wrap(rbErr, "failed to roll back to savepoint")
		}
		return nil, err
	}

	if _, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
		return nil, errors.Wrap(err, "failed to release savepoint")
	}

	return res, nil
}
