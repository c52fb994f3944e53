package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/pseudomuto/stagekeeper/pkg/config"
	"github.com/pseudomuto/stagekeeper/pkg/consts"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type (
	Params struct {
		fx.In

		Args       []string
		Commands   []*cli.Command `group:"commands"`
		Ctx        context.Context
		Lifecycle  fx.Lifecycle
		Shutdowner fx.Shutdowner
		Version    *Version
	}

	Version struct {
		Version   string
		Commit    string
		Timestamp string
	}
)

// NewApp builds the root stagekeeper command around the given subcommands.
func NewApp(version *Version, commands []*cli.Command) *cli.Command {
	cli.VersionPrinter = func(cmd *cli.Command) {
		fmt.Fprintln(cmd.Writer, "Version:", version.Version)
		fmt.Fprintln(cmd.Writer, "Commit:", version.Commit)
		fmt.Fprintln(cmd.Writer, "Date:", version.Timestamp)
	}

	return &cli.Command{
		Name:  "stagekeeper",
		Usage: "Run staged ETL pipelines and keep a record of every step",
		Description: `stagekeeper runs the stages of an ETL pipeline (capture, staging,
warehouse, mart) one after the other, each in its own process. Every step
attempt is recorded in a run log, and the pipeline keeps going after a failed
step so one run shows the state of every stage.`,
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "the stagekeeper config file",
				Sources: cli.EnvVars(config.EnvConfigFile),
				Value:   consts.DefaultConfigFile,
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
		},
		// exit codes are decided by Run, not by cli calling os.Exit
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Commands:       commands,
	}
}

// Run registers the CLI with the fx lifecycle. The command runs once the app
// has started and the app shuts down with the command's exit code: 0 on
// success, the code of a cli.ExitCoder, or 1 for any other error.
//
// Stopping the app early (SIGINT, SIGTERM) cancels the command's context and
// waits for it to return, so running stages are killed and recorded.
func Run(p Params) {
	app := NewApp(p.Version, p.Commands)
	ctx, cancel := context.WithCancel(p.Ctx)
	done := make(chan struct{})

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// pipelines outlive fx's start timeout, so the command runs on its own
			go func() {
				defer close(done)
				err := app.Run(ctx, p.Args)
				_ = p.Shutdowner.Shutdown(fx.ExitCode(ExitCode(err)))
			}()

			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()

			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return errors.Wrap(stopCtx.Err(), "command did not stop in time")
			}
		},
	})
}

// ExitCode maps a command error to a process exit code, logging it on the way.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		if msg := exitErr.Error(); msg != "" {
			slog.Error(msg)
		}
		return exitErr.ExitCode()
	}

	slog.Error("Error running command", "err", err)
	return 1
}

func requireConfig(cfg *config.Config) func(context.Context, *cli.Command) (context.Context, error) {
	return func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
		if cfg == nil {
			return ctx, errors.Errorf("%s not found", cmd.Root().String("config"))
		}

		return ctx, errors.Wrap(cfg.Validate(), "invalid config")
	}
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}

	return os.Stdout
}

func stderr(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}

	return os.Stderr
}
