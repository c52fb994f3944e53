package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/pseudomuto/stagekeeper/pkg/cmd/testutil"
	"github.com/pseudomuto/stagekeeper/pkg/consts"
	"github.com/pseudomuto/stagekeeper/pkg/stage"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

const commandPipeline = `
pipeline: listings
log_dir: logs
stages:
  - name: capture
    title: Capture listings
    command: [/bin/sh, -c, "echo records_processed=3"]
  - name: staging
    title: Load staging
    command: [/bin/sh, -c, "echo bad row >&2; exit 2"]
  - name: mart
    title: Refresh mart
    command: [/bin/sh, -c, "echo records_processed=5"]
`

func TestRunCommand_RequiresConfig(t *testing.T) {
	_, err := testutil.RunCommand(t, runCmd(nil), "missing.yaml")
	require.EqualError(t, err, "missing.yaml not found")
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	fixture := testutil.TestProject(t, "pipeline: empty\n")

	_, err := testutil.RunCommand(t, runCmd(fixture.Config), "")
	require.EqualError(t, err, "invalid config: no stages configured")
}

func TestRunCommand_AttemptsEveryStage(t *testing.T) {
	fixture := testutil.TestProject(t, commandPipeline)

	res, err := testutil.RunCommand(t, runCmd(fixture.Config), "")
	require.Error(t, err)

	var exitErr cli.ExitCoder
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, 1, exitErr.ExitCode())
	require.Equal(t, "1 of 3 step(s) failed", exitErr.Error())

	out := res.Stdout.String()
	require.Contains(t, out, "✅ [1] Capture listings")
	require.Contains(t, out, "❌ [2] Load staging")
	require.Contains(t, out, "✅ [3] Refresh mart")
	require.Contains(t, out, "Load staging: bad row")

	logs, err := filepath.Glob(filepath.Join(fixture.LogDir(), "listings_2_staging_*.log"))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	testutil.RequireFileContains(t, logs[0], "bad row")

	pipelineLogs, err := filepath.Glob(filepath.Join(fixture.LogDir(), "pipeline_*.log"))
	require.NoError(t, err)
	require.Len(t, pipelineLogs, 1)
	testutil.RequireFileContains(t, pipelineLogs[0], "pipeline=listings")
	// stage output is streamed into the pipeline log
	testutil.RequireFileContains(t, pipelineLogs[0], "records_processed=3")

	res, err = testutil.RunCommand(t, history(fixture.Config), "")
	require.NoError(t, err)

	out = res.Stdout.String()
	require.Contains(t, out, "capture")
	require.Contains(t, out, "✅ SUCCESS")
	require.Contains(t, out, "❌ FAILED")
	require.Contains(t, out, "bad row")
}

func TestRunCommand_Only(t *testing.T) {
	fixture := testutil.TestProject(t, commandPipeline)

	res, err := testutil.RunCommand(t, runCmd(fixture.Config), "", "--only", "capture,mart")
	require.NoError(t, err)

	out := res.Stdout.String()
	require.Contains(t, out, "✅ [1] Capture listings")
	require.Contains(t, out, "✅ [3] Refresh mart")
	require.NotContains(t, out, "Load staging")
	require.Contains(t, out, "Pipeline completed successfully (2 steps")
}

func TestRunCommand_OnlyUnknownStage(t *testing.T) {
	fixture := testutil.TestProject(t, commandPipeline)

	_, err := testutil.RunCommand(t, runCmd(fixture.Config), "", "--only", "nope")
	require.EqualError(t, err, "unknown stage: nope")
}

func TestRunCommand_SQLStageRunsStageExec(t *testing.T) {
	fixture := testutil.TestProject(t, `
pipeline: listings
targets:
  warehouse:
    driver: sqlite
    dsn: warehouse.db
stages:
  - name: load
    target: warehouse
    scripts: [sql/load.sql]
`)

	// stand in for the stagekeeper binary, recording how it was invoked
	bin := filepath.Join(fixture.Dir, "stagekeeper")
	fixture.WithFile("stagekeeper", "#!/bin/sh\necho \"$@\" > \"$(dirname \"$0\")/args.txt\"\necho records_processed=7\n")
	require.NoError(t, os.Chmod(bin, 0o755))

	orig := executable
	executable = func() (string, error) { return bin, nil }
	t.Cleanup(func() { executable = orig })

	res, err := testutil.RunCommand(t, runCmd(fixture.Config), "")
	require.NoError(t, err)
	require.Contains(t, res.Stdout.String(), "✅ [1] load")

	testutil.RequireFileContains(t, filepath.Join(fixture.Dir, "args.txt"),
		"--config "+fixture.ConfigPath()+" stage exec load",
	)

	res, err = testutil.RunCommand(t, history(fixture.Config), "")
	require.NoError(t, err)
	require.Regexp(t, `load\s+✅ SUCCESS\s+7`, res.Stdout.String())
}

func TestSelectStages(t *testing.T) {
	fixture := testutil.TestProject(t, commandPipeline)

	stages, err := selectStages(fixture.Config, nil)
	require.NoError(t, err)
	require.Len(t, stages, 3)

	// run order wins over the order of --only
	stages, err = selectStages(fixture.Config, []string{"mart", "capture"})
	require.NoError(t, err)
	require.Equal(t, "capture", stages[0].Name)
	require.Equal(t, "mart", stages[1].Name)
}

func TestBuildSteps(t *testing.T) {
	fixture := testutil.TestProject(t, commandPipeline+"    timeout: 5m\n")

	var out bytes.Buffer
	steps, err := buildSteps(fixture.Config, fixture.Config.OrderedStages(), &out)
	require.NoError(t, err)
	require.Len(t, steps, 3)

	task, ok := steps[0].Task.(*stage.CommandTask)
	require.True(t, ok)
	require.Equal(t, []string{"/bin/sh", "-c", "echo records_processed=3"}, task.Args)
	require.Equal(t, fixture.Dir, task.Dir)
	require.Same(t, &out, task.Output)

	require.Equal(t, "mart", steps[2].Name)
	require.Equal(t, 3, steps[2].Order)
	require.Equal(t, "5m0s", steps[2].Timeout.String())
	require.Equal(t, consts.DefaultStepTimeout, steps[0].Timeout)
}
