package stage

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const defaultWaitDelay = 5 * time.Second

// CommandTask runs a stage as a separate process.
//
// The process gets its own process group. When ctx is done the whole group is
// killed, so helpers the stage spawned die with it.
//
// Example:
//
//	task := &stage.CommandTask{
//		Args: []string{"./bin/scrape", "--out", "data/raw.csv"},
//	}
//
//	outcome := task.Execute(ctx)
type CommandTask struct {
	// Args is the program and its arguments
	Args []string

	// Dir is the working directory, defaults to the current one
	Dir string

	// Env is appended to the current environment
	Env []string

	// Output, when set, also receives stdout and stderr as they are written
	Output io.Writer

	// WaitDelay bounds how long to wait for output pipes after the process is
	// killed. Defaults to 5s.
	WaitDelay time.Duration
}

// Execute implements Task.
func (t *CommandTask) Execute(ctx context.Context) Outcome {
	start := time.Now()

	if len(t.Args) == 0 {
		return Outcome{ExitCode: -1, Err: errors.New("no command given")}
	}

	var (
		stdout, stderr bytes.Buffer
		output         io.Writer
	)

	// stdout and stderr are copied concurrently
	if t.Output != nil {
		output = &lockedWriter{w: t.Output}
	}

	cmd := exec.CommandContext(ctx, t.Args[0], t.Args[1:]...)
	cmd.Dir = t.Dir
	cmd.Env = append(os.Environ(), t.Env...)
	cmd.Stdout = writers(&stdout, output)
	cmd.Stderr = writers(&stderr, output)

	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}

	cmd.WaitDelay = t.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = defaultWaitDelay
	}

	err := cmd.Run()

	outcome := Outcome{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	outcome.Records = ParseRecords(outcome.Stdout)

	if cmd.ProcessState != nil {
		outcome.ExitCode = cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		// reported through ExitCode
	case ctx.Err() != nil:
		// killed on cancellation; the runner labels it
	default:
		outcome.Err = errors.Wrapf(err, "failed to run %s", t.Args[0])
	}

	return outcome
}

func writers(buf *bytes.Buffer, extra io.Writer) io.Writer {
	if extra == nil {
		return buf
	}

	return io.MultiWriter(buf, extra)
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.w.Write(p)
}
