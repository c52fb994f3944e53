//go:build linux

package stage_test

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pseudomuto/stagekeeper/pkg/stage"
	"github.com/stretchr/testify/require"
)

// alive reports whether pid exists and isn't a zombie.
func alive(pid int) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}

	// the state follows the parenthesised command name
	stat := string(data)
	idx := strings.LastIndex(stat, ")")
	if idx < 0 || idx+2 >= len(stat) {
		return false
	}

	return stat[idx+2] != 'Z'
}

func TestRunner_Run_TimeoutKillsProcessGroup(t *testing.T) {
	report := stage.New(stage.Config{}).Run(context.Background(), stage.Step{
		Name:    "spawner",
		Timeout: time.Second,
		Task:    helper("spawn"),
	})

	require.True(t, report.TimedOut)

	pid, err := strconv.Atoi(strings.TrimSpace(report.Outcome.Stdout))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return !alive(pid)
	}, 5*time.Second, 50*time.Millisecond)
}
