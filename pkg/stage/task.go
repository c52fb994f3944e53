package stage

import (
	"bufio"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pseudomuto/stagekeeper/pkg/consts"
)

type (
	// Task is one isolated unit of work. Execute must honor ctx: when it is
	// cancelled the task stops and returns.
	Task interface {
		Execute(ctx context.Context) Outcome
	}

	// TaskFunc adapts a function to the Task interface.
	TaskFunc func(ctx context.Context) Outcome

	// Outcome is everything the runner observes about a finished task.
	Outcome struct {
		// ExitCode is the process exit status, -1 when the process didn't exit
		// normally (killed, failed to start)
		ExitCode int

		// Stdout and Stderr are the captured output streams
		Stdout string
		Stderr string

		// Err is set for faults other than a non-zero exit, like a binary that
		// can't be started
		Err error

		// Records is the row count the task reported, see ParseRecords
		Records int64

		// Duration is the wall clock time of the task
		Duration time.Duration
	}
)

// Execute implements Task.
func (f TaskFunc) Execute(ctx context.Context) Outcome {
	return f(ctx)
}

// ParseRecords returns N from the last "records_processed=N" line of out, or
// zero when no such line exists.
func ParseRecords(out string) int64 {
	var records int64

	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		value, ok := strings.CutPrefix(line, consts.RecordsMarker)
		if !ok {
			continue
		}

		if n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			records = n
		}
	}

	return records
}
