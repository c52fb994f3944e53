// Package executor applies ordered SQL statements to a database session with
// an idempotent re-apply policy.
//
// Errors that signal an object already exists, or that a row or column would
// be duplicated, are skipped. Every other error aborts the call and is
// returned with the failing statement's index and the first 200 characters of
// its text.
//
// # Usage Example
//
//	stmts, err := script.LoadFile("sql/staging/schema.sql", script.Options{})
//	if err != nil {
//		return err
//	}
//
//	exec := executor.New(executor.Config{Classifier: dialect.Classifier})
//	result, err := exec.ExecuteAtomic(ctx, db, stmts, dialect.Transactional)
//	if err != nil {
//		return err
//	}
//
//	slog.Info("Script applied",
//		"applied", result.StatementsApplied,
//		"skipped", result.StatementsSkipped,
//	)
package executor
