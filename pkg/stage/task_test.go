package stage_test

import (
	"context"
	"strings"
	"testing"

	"github.com/pseudomuto/stagekeeper/pkg/stage"
	"github.com/stretchr/testify/require"
)

func TestParseRecords(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		expected int64
	}{
		{name: "no marker", output: "done\n", expected: 0},
		{name: "single marker", output: "records_processed=42\n", expected: 42},
		{name: "last marker wins", output: "records_processed=1\nmore\nrecords_processed=9\n", expected: 9},
		{name: "indented marker", output: "  records_processed= 15  \n", expected: 15},
		{name: "garbage value", output: "records_processed=lots\n", expected: 0},
		{name: "marker mid line is ignored", output: "log: records_processed=3\n", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, stage.ParseRecords(tt.output))
		})
	}
}

func TestStderrTail(t *testing.T) {
	require.Equal(t, "No stderr", stage.StderrTail(""))
	require.Equal(t, "No stderr", stage.StderrTail(" \n\t"))
	require.Equal(t, "boom", stage.StderrTail("boom\n"))

	long := strings.Repeat("a", 10) + strings.Repeat("b", 2000)
	require.Equal(t, strings.Repeat("b", 2000), stage.StderrTail(long))
}

func TestCommandTask_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		outcome := helper("ok").Execute(ctx)
		require.NoError(t, outcome.Err)
		require.Zero(t, outcome.ExitCode)
		require.Contains(t, outcome.Stdout, "loading listings")
		require.EqualValues(t, 7, outcome.Records)
		require.Positive(t, outcome.Duration)
	})

	t.Run("non-zero exit", func(t *testing.T) {
		outcome := helper("fail").Execute(ctx)
		require.NoError(t, outcome.Err)
		require.Equal(t, 3, outcome.ExitCode)
		require.Equal(t, "connection refused\n", outcome.Stderr)
	})

	t.Run("missing binary", func(t *testing.T) {
		task := &stage.CommandTask{Args: []string{"./definitely-not-a-stage-binary"}}
		outcome := task.Execute(ctx)
		require.Error(t, outcome.Err)
		require.Contains(t, outcome.Err.Error(), "failed to run ./definitely-not-a-stage-binary")
		require.Equal(t, -1, outcome.ExitCode)
	})

	t.Run("no args", func(t *testing.T) {
		outcome := (&stage.CommandTask{}).Execute(ctx)
		require.EqualError(t, outcome.Err, "no command given")
	})

	t.Run("tees output", func(t *testing.T) {
		var out strings.Builder
		task := helper("ok")
		task.Output = &out

		outcome := task.Execute(ctx)
		require.Zero(t, outcome.ExitCode)
		require.Contains(t, out.String(), "records_processed=7")
	})
}
