// Package runlog records every pipeline step attempt in the etl_run_log
// audit table.
//
// A step attempt is inserted as RUNNING when it starts and receives exactly
// one terminal update (SUCCESS or FAILED) when it ends. Rows are never
// deleted, so the table is the full history of every run. Orphaned RUNNING
// rows left by a crashed controller are not reconciled; the next run simply
// appends new rows.
//
// The log is best effort. StartStep returns NoRun when it can't write, EndStep
// ignores NoRun, and callers report store errors as warnings instead of
// failing the step.
package runlog
