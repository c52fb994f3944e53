package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func TestExitCode(t *testing.T) {
	require.Equal(t, 0, ExitCode(nil))
	require.Equal(t, 1, ExitCode(errors.New("boom")))
	require.Equal(t, 3, ExitCode(cli.Exit("bad", 3)))
	require.Equal(t, 2, ExitCode(errors.Wrap(cli.Exit("", 2), "wrapped")))
}

func TestNewApp(t *testing.T) {
	var buf bytes.Buffer
	version := &Version{Version: "1.2.3", Commit: "abc123", Timestamp: "2025-01-01"}

	app := NewApp(version, []*cli.Command{split()})
	app.Writer = &buf

	require.Equal(t, "stagekeeper", app.Name)
	require.Equal(t, "1.2.3", app.Version)
	require.Len(t, app.Commands, 1)

	require.NoError(t, app.Run(context.Background(), []string{"stagekeeper", "--version"}))
	require.Contains(t, buf.String(), "Commit: abc123")
}
