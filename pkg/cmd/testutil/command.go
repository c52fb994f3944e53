package testutil

import (
	"bytes"
	"context"
	"testing"

	"github.com/urfave/cli/v3"
)

// CommandResult holds what a command wrote while it ran
type CommandResult struct {
	Stdout bytes.Buffer
	Stderr bytes.Buffer
}

// RunCommand executes command under a test root command. configPath is passed
// as the root --config flag when not empty.
func RunCommand(t *testing.T, command *cli.Command, configPath string, args ...string) (*CommandResult, error) {
	t.Helper()
	return RunCommandWithContext(t.Context(), t, command, configPath, args...)
}

// RunCommandWithContext executes a command with a custom context
func RunCommandWithContext(ctx context.Context, t *testing.T, command *cli.Command, configPath string, args ...string) (*CommandResult, error) {
	t.Helper()

	res := new(CommandResult)
	app := &cli.Command{
		Name:      "stagekeeper",
		Writer:    &res.Stdout,
		ErrWriter: &res.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}},
		},
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Commands:       []*cli.Command{command},
	}

	fullArgs := []string{"stagekeeper"}
	if configPath != "" {
		fullArgs = append(fullArgs, "--config", configPath)
	}
	fullArgs = append(fullArgs, command.Name)
	fullArgs = append(fullArgs, args...)

	return res, app.Run(ctx, fullArgs)
}
