package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pseudomuto/stagekeeper/pkg/stage"
)

type (
	// StepRunner runs a single step. *stage.Runner implements it.
	StepRunner interface {
		Run(ctx context.Context, step stage.Step) *stage.Report
	}

	// Controller runs an ordered list of steps.
	//
	// Every step is attempted even after an earlier one failed, so a broken
	// capture still leaves a record of what the later stages would have done.
	// There are no retries within a run.
	Controller struct {
		runner StepRunner
		out    io.Writer
		logger *slog.Logger
	}

	// Config configures a Controller.
	Config struct {
		Runner StepRunner

		// Out receives the human readable summary. Defaults to io.Discard.
		Out io.Writer

		Logger *slog.Logger
	}

	// Result is the outcome of a whole pipeline run.
	Result struct {
		// ID correlates log lines of a single run
		ID string

		Reports  []*stage.Report
		Duration time.Duration
	}
)

// New creates a Controller.
func New(cfg Config) *Controller {
	c := &Controller{
		runner: cfg.Runner,
		out:    cfg.Out,
		logger: cfg.Logger,
	}

	if c.out == nil {
		c.out = io.Discard
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c
}

// Run executes steps strictly in order and returns the aggregated result.
// Step N+1 never starts before step N finished and was recorded.
func (c *Controller) Run(ctx context.Context, steps []stage.Step) *Result {
	result := &Result{ID: uuid.NewString()}
	logger := c.logger.With("run_id", result.ID)
	start := time.Now()

	logger.Info("Starting pipeline", "steps", len(steps))

	for _, step := range steps {
		report := c.runner.Run(ctx, step)
		result.Reports = append(result.Reports, report)

		mark := "✅"
		if !report.Success() {
			mark = "❌"
		}
		fmt.Fprintf(c.out, "%s [%d] %s\n", mark, step.Order, step.DisplayName())
	}

	result.Duration = time.Since(start)

	failed := result.Failed()
	if len(failed) == 0 {
		logger.Info("Pipeline completed successfully", "steps", len(steps), "duration", result.Duration)
		fmt.Fprintf(c.out, "✅ Pipeline completed successfully (%d steps in %s)\n", len(steps), result.Duration.Round(time.Millisecond))
	} else {
		logger.Error("Pipeline completed with failures", "steps", len(steps), "failed", len(failed), "duration", result.Duration)
		fmt.Fprintf(c.out, "❌ Pipeline completed with %d failed step(s) out of %d:\n", len(failed), len(steps))
		for _, r := range failed {
			fmt.Fprintf(c.out, "   - %s: %s\n", r.Step.DisplayName(), firstLine(r.ErrorMessage))
		}
	}

	return result
}

// Success is the logical AND of every step result. An empty run succeeds.
func (r *Result) Success() bool {
	return len(r.Failed()) == 0
}

// Failed returns the reports of failed steps in run order.
func (r *Result) Failed() []*stage.Report {
	var failed []*stage.Report
	for _, report := range r.Reports {
		if !report.Success() {
			failed = append(failed, report)
		}
	}

	return failed
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}

	return s
}
