package stage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/stagekeeper/pkg/consts"
	"github.com/pseudomuto/stagekeeper/pkg/runlog"
)

const (
	noStderr       = "No stderr"
	logFileTSFmt   = "20060102_150405"
	abandonTimeout = 10 * time.Second
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type (
	// Archiver stores a finished step log somewhere durable and returns where.
	Archiver interface {
		Archive(ctx context.Context, path string) (string, error)
	}

	// Step is one entry of a pipeline: a named Task at a position.
	Step struct {
		// Name is recorded in the run log as step_name
		Name string

		// Title is the human readable label used in output, defaults to Name
		Title string

		// Order is the 1-based position within the pipeline
		Order int

		// Timeout overrides the runner's budget when positive
		Timeout time.Duration

		Task Task
	}

	// Report is what a single Run observed and recorded.
	Report struct {
		Step         Step
		RunID        runlog.RunID
		Status       runlog.Status
		Outcome      Outcome
		TimedOut     bool
		ErrorMessage string
		LogFilePath  string
	}

	// Config configures a Runner.
	Config struct {
		// Store receives the start and end of each step, defaults to runlog.Discard
		Store runlog.Store

		// Pipeline is the pipeline_name written to the run log
		Pipeline string

		// Timeout is the default per step budget, defaults to one hour
		Timeout time.Duration

		// LogDir receives per step log files. Empty disables them.
		LogDir string

		// PipelineLog is recorded as the log file of a step when no per step
		// file could be written
		PipelineLog string

		// Archiver optionally uploads per step log files
		Archiver Archiver

		Logger *slog.Logger
	}

	// Runner executes steps one at a time and maps their outcomes to run log
	// entries.
	Runner struct {
		store    runlog.Store
		pipeline string
		timeout  time.Duration
		logDir   string
		fallback string
		archiver Archiver
		logger   *slog.Logger
		now      func() time.Time
	}
)

// Success reports whether the step finished with a zero exit and no fault.
func (r *Report) Success() bool {
	return r.Status == runlog.StatusSuccess
}

// DisplayName returns the title, or the name when no title is set.
func (s Step) DisplayName() string {
	if s.Title != "" {
		return s.Title
	}

	return s.Name
}

// New creates a Runner from cfg.
func New(cfg Config) *Runner {
	r := &Runner{
		store:    cfg.Store,
		pipeline: cfg.Pipeline,
		timeout:  cfg.Timeout,
		logDir:   cfg.LogDir,
		fallback: cfg.PipelineLog,
		archiver: cfg.Archiver,
		logger:   cfg.Logger,
		now:      time.Now,
	}

	if r.store == nil {
		r.store = runlog.Discard{}
	}

	if r.pipeline == "" {
		r.pipeline = consts.DefaultPipelineName
	}

	if r.timeout <= 0 {
		r.timeout = consts.DefaultStepTimeout
	}

	if r.logger == nil {
		r.logger = slog.Default()
	}

	return r
}

// Run executes step and records its outcome.
//
// The step gets a RUNNING entry before it starts and exactly one terminal
// update afterwards:
//   - zero exit is SUCCESS, even if the budget ran out as it finished
//   - exceeding the budget is FAILED with a timeout message
//   - non-zero exit is FAILED with the tail of stderr
//   - any other fault, including a panic in the task, is FAILED with its text
//
// Run log failures are logged as warnings and never change the result.
func (r *Runner) Run(ctx context.Context, step Step) *Report {
	logger := r.logger.With("step", step.Name, "order", step.Order)

	runID, err := r.store.StartStep(ctx, r.pipeline, step.Name, step.Order)
	if err != nil {
		logger.Warn("Failed to record step start", "error", err)
		runID = runlog.NoRun
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}

	logger.Info("Running step", "title", step.DisplayName(), "timeout", timeout)

	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcome := r.execute(taskCtx, step.Task)

	report := &Report{Step: step, RunID: runID, Outcome: outcome}

	// a clean exit wins even when the deadline passed while it was reported
	switch {
	case ctx.Err() == nil && outcome.Err == nil && outcome.ExitCode == 0:
		report.Status = runlog.StatusSuccess
	case ctx.Err() == nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded):
		report.TimedOut = true
		report.Status = runlog.StatusFailed
		report.ErrorMessage = fmt.Sprintf("timeout: exceeded %s", timeout)
	case outcome.Err != nil:
		report.Status = runlog.StatusFailed
		report.ErrorMessage = outcome.Err.Error()
	case ctx.Err() != nil:
		report.Status = runlog.StatusFailed
		report.ErrorMessage = errors.Wrap(ctx.Err(), "step interrupted").Error()
	default:
		report.Status = runlog.StatusFailed
		report.ErrorMessage = StderrTail(outcome.Stderr)
	}

	report.LogFilePath = r.writeLog(context.WithoutCancel(ctx), step, report, logger)

	// the terminal update is written even when ctx is cancelled so no entry
	// is left RUNNING
	if err := r.store.EndStep(context.WithoutCancel(ctx), runID, runlog.Result{
		Status:           report.Status,
		RecordsProcessed: outcome.Records,
		ErrorMessage:     report.ErrorMessage,
		LogFilePath:      report.LogFilePath,
	}); err != nil {
		logger.Warn("Failed to record step end", "run_id", runID, "error", err)
	}

	if report.Success() {
		logger.Info("Step succeeded", "records", outcome.Records, "duration", outcome.Duration)
	} else {
		logger.Error("Step failed", "error", report.ErrorMessage, "duration", outcome.Duration)
	}

	return report
}

// execute runs task in its own goroutine so that a panic becomes a fault and
// a task ignoring ctx can't hold the pipeline past its budget for long.
func (r *Runner) execute(ctx context.Context, task Task) Outcome {
	if task == nil {
		return Outcome{ExitCode: -1, Err: errors.New("step has no task")}
	}

	start := r.now()
	done := make(chan Outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- Outcome{ExitCode: -1, Err: errors.Errorf("step panicked: %v", rec)}
			}
		}()

		done <- task.Execute(ctx)
	}()

	var outcome Outcome
	select {
	case outcome = <-done:
	case <-ctx.Done():
		select {
		case outcome = <-done:
		case <-time.After(abandonTimeout):
			r.logger.Warn("Abandoning step that ignored cancellation")
			outcome = Outcome{ExitCode: -1}
		}
	}

	if outcome.Duration == 0 {
		outcome.Duration = r.now().Sub(start)
	}

	return outcome
}

// writeLog stores the step output under the log dir and archives it when an
// Archiver is set. It returns the recorded location, falling back to the
// pipeline log when per step logging is disabled or fails.
func (r *Runner) writeLog(ctx context.Context, step Step, report *Report, logger *slog.Logger) string {
	if r.logDir == "" {
		return r.fallback
	}

	if err := os.MkdirAll(r.logDir, consts.ModeDir); err != nil {
		logger.Warn("Failed to create log dir", "dir", r.logDir, "error", err)
		return r.fallback
	}

	name := fmt.Sprintf("%s_%d_%s_%s.log",
		safeFileName(r.pipeline),
		step.Order,
		safeFileName(step.Name),
		r.now().Format(logFileTSFmt),
	)
	path := filepath.Join(r.logDir, name)

	var b strings.Builder
	fmt.Fprintf(&b, "step: %s (%s)\n", step.DisplayName(), step.Name)
	fmt.Fprintf(&b, "order: %d\n", step.Order)
	fmt.Fprintf(&b, "status: %s\n", report.Status)
	fmt.Fprintf(&b, "exit_code: %d\n", report.Outcome.ExitCode)
	fmt.Fprintf(&b, "duration: %s\n", report.Outcome.Duration)
	if report.ErrorMessage != "" {
		fmt.Fprintf(&b, "error: %s\n", report.ErrorMessage)
	}
	fmt.Fprintf(&b, "\n--- stdout ---\n%s", report.Outcome.Stdout)
	fmt.Fprintf(&b, "\n--- stderr ---\n%s", report.Outcome.Stderr)

	if err := os.WriteFile(path, []byte(b.String()), consts.ModeFile); err != nil {
		logger.Warn("Failed to write step log", "path", path, "error", err)
		return r.fallback
	}

	if r.archiver == nil {
		return path
	}

	uri, err := r.archiver.Archive(ctx, path)
	if err != nil {
		logger.Warn("Failed to archive step log", "path", path, "error", err)
		return path
	}

	return uri
}

// StderrTail returns the last 2000 characters of stderr, or "No stderr" when
// it is blank.
func StderrTail(stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return noStderr
	}

	runes := []rune(stderr)
	if len(runes) <= consts.StderrTailLen {
		return stderr
	}

	return string(runes[len(runes)-consts.StderrTailLen:])
}

func safeFileName(s string) string {
	return strings.Trim(unsafeFileChars.ReplaceAllString(s, "_"), "_")
}
