package runlog

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Status constants form the run log state machine: RUNNING moves to exactly
// one of SUCCESS or FAILED and never changes again.
const (
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"

	// NoRun is returned by StartStep when the entry couldn't be recorded.
	// EndStep ignores it.
	NoRun RunID = ""
)

var (
	// ErrRunNotFound is returned by EndStep when no entry has the given id.
	ErrRunNotFound = errors.New("run log entry not found")

	// ErrAlreadyClosed is returned by EndStep when the entry is no longer RUNNING.
	ErrAlreadyClosed = errors.New("run log entry already closed")

	// ErrInvalidStatus is returned by EndStep for a non-terminal status.
	ErrInvalidStatus = errors.New("end status must be SUCCESS or FAILED")
)

type (
	// RunID identifies a single step attempt in the run log.
	RunID string

	// Status is the lifecycle state of a step attempt.
	Status string

	// Result is the terminal update applied by EndStep.
	Result struct {
		Status           Status
		RecordsProcessed int64
		ErrorMessage     string
		LogFilePath      string
	}

	// Entry is one row of the run log.
	//
	// Entries are append-only history: a step that runs again gets a new entry,
	// and StepOrder together with StartTime tells repeated runs apart.
	Entry struct {
		ID               RunID
		PipelineName     string
		StepName         string
		StepOrder        int
		StartTime        time.Time
		EndTime          *time.Time
		Status           Status
		RecordsProcessed int64
		ErrorMessage     *string
		LogFilePath      *string
	}

	// Store is the durable log of step attempts.
	//
	// Writes are best effort. Callers log a failed StartStep or EndStep as a
	// warning and carry on; the run log never decides whether a step succeeded.
	Store interface {
		// StartStep records a RUNNING entry and returns its id. On failure the
		// returned id is NoRun.
		StartStep(ctx context.Context, pipeline, step string, order int) (RunID, error)

		// EndStep closes a RUNNING entry. It does nothing for NoRun.
		EndStep(ctx context.Context, id RunID, result Result) error
	}

	// Discard is a Store that records nothing. It stands in when the real run
	// log can't be opened.
	Discard struct{}
)

// Terminal reports whether s is SUCCESS or FAILED.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Duration returns how long the entry ran, or zero while RUNNING.
func (e *Entry) Duration() time.Duration {
	if e.EndTime == nil {
		return 0
	}

	return e.EndTime.Sub(e.StartTime)
}

// StartStep records nothing and returns NoRun.
func (Discard) StartStep(context.Context, string, string, int) (RunID, error) {
	return NoRun, nil
}

// EndStep records nothing.
func (Discard) EndStep(context.Context, RunID, Result) error {
	return nil
}
