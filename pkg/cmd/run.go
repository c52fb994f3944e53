package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/stagekeeper/pkg/archive"
	"github.com/pseudomuto/stagekeeper/pkg/config"
	"github.com/pseudomuto/stagekeeper/pkg/consts"
	"github.com/pseudomuto/stagekeeper/pkg/pipeline"
	"github.com/pseudomuto/stagekeeper/pkg/runlog"
	"github.com/pseudomuto/stagekeeper/pkg/stage"
	"github.com/urfave/cli/v3"
)

// executable locates the binary SQL stages are re-run with.
var executable = os.Executable

// runCmd creates the run command, which executes every configured stage.
//
// Each stage runs as its own process: command stages run their argv, SQL
// stages re-run this binary with `stage exec <name>`. All stages are
// attempted even when an earlier one fails; the exit code is 1 if any failed.
//
// Example usage:
//
//	# Run the whole pipeline
//	stagekeeper run
//
//	# Run two stages with an alternate config
//	stagekeeper -c etl.yaml run --only warehouse,mart
func runCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Run the pipeline",
		Before: requireConfig(cfg),
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "only",
				Usage: "run only the named stages (comma separated)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runPipeline(ctx, cmd, cfg)
		},
	}
}

func runPipeline(ctx context.Context, cmd *cli.Command, cfg *config.Config) error {
	stages, err := selectStages(cfg, cmd.StringSlice("only"))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.LogDir, consts.ModeDir); err != nil {
		return errors.Wrapf(err, "failed to create log dir: %s", cfg.LogDir)
	}

	logPath := filepath.Join(cfg.LogDir, fmt.Sprintf("pipeline_%s.log", time.Now().Format("20060102_150405")))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, consts.ModeFile)
	if err != nil {
		return errors.Wrapf(err, "failed to open pipeline log: %s", logPath)
	}
	defer func() { _ = logFile.Close() }()

	logger := slog.New(slog.NewTextHandler(io.MultiWriter(stderr(cmd), logFile), nil)).
		With("pipeline", cfg.Pipeline)

	store := openRunLog(ctx, cfg, logger)
	defer func() {
		if closer, ok := store.(io.Closer); ok {
			_ = closer.Close()
		}
	}()

	steps, err := buildSteps(cfg, stages, logFile)
	if err != nil {
		return err
	}

	runner := stage.New(stage.Config{
		Store:       store,
		Pipeline:    cfg.Pipeline,
		Timeout:     cfg.StepTimeout,
		LogDir:      cfg.LogDir,
		PipelineLog: logPath,
		Archiver:    openArchiver(cfg, logger),
		Logger:      logger,
	})

	result := pipeline.New(pipeline.Config{
		Runner: runner,
		Out:    stdout(cmd),
		Logger: logger,
	}).Run(ctx, steps)

	if !result.Success() {
		return cli.Exit(fmt.Sprintf("%d of %d step(s) failed", len(result.Failed()), len(steps)), 1)
	}

	return nil
}

// openRunLog falls back to a discarding store so an unreachable run log never
// stops the pipeline.
func openRunLog(ctx context.Context, cfg *config.Config, logger *slog.Logger) runlog.Store {
	store, err := runlog.Open(ctx, cfg.RunLogDatabase())
	if err != nil {
		logger.Warn("Run log unavailable, steps will not be recorded", "error", err)
		return runlog.Discard{}
	}

	return store
}

func openArchiver(cfg *config.Config, logger *slog.Logger) stage.Archiver {
	if !cfg.Archive.Enabled() {
		return nil
	}

	a, err := archive.New(*cfg.Archive)
	if err != nil {
		logger.Warn("Archive unavailable, step logs stay local", "error", err)
		return nil
	}

	return a
}

func selectStages(cfg *config.Config, only []string) ([]*config.Stage, error) {
	stages := cfg.OrderedStages()
	if len(only) == 0 {
		return stages, nil
	}

	for _, name := range only {
		if _, err := cfg.Stage(name); err != nil {
			return nil, err
		}
	}

	var selected []*config.Stage
	for _, s := range stages {
		if slices.Contains(only, s.Name) {
			selected = append(selected, s)
		}
	}

	return selected, nil
}

// buildSteps turns stages into runnable steps. Each step's output is also
// streamed to output, when set.
func buildSteps(cfg *config.Config, stages []*config.Stage, output io.Writer) ([]stage.Step, error) {
	var dir string
	if cfg.Path() != "" {
		dir = filepath.Dir(cfg.Path())
	}

	steps := make([]stage.Step, len(stages))
	for i, s := range stages {
		args := s.Command
		if !s.IsCommand() {
			exe, err := executable()
			if err != nil {
				return nil, errors.Wrap(err, "failed to locate stagekeeper binary")
			}

			args = []string{exe, "--config", cfg.Path(), "stage", "exec", s.Name}
		}

		steps[i] = stage.Step{
			Name:    s.Name,
			Title:   s.Title,
			Order:   s.Order,
			Timeout: cfg.TimeoutFor(s),
			Task:    &stage.CommandTask{Args: args, Dir: dir, Output: output},
		}
	}

	return steps, nil
}
