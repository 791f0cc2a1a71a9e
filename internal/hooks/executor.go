package hooks

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Timeouts for hook commands.
const (
	DefaultTimeout = 30 * time.Second
	MaxTimeout     = 300 * time.Second

	// waitDelay caps how long Run waits for output pipes after the
	// process group has been killed.
	waitDelay = 2 * time.Second
)

// Result is the outcome of one hook run.
type Result struct {
	Output   string // trimmed stdout, or stderr when stdout is empty
	ExitCode int    // -1 when the command did not exit normally
	Duration time.Duration
	Err      error
}

func (h Hook) timeout() time.Duration {
	d := time.Duration(h.Timeout) * time.Second
	switch {
	case d <= 0:
		return DefaultTimeout
	case d > MaxTimeout:
		return MaxTimeout
	}
	return d
}

// Run executes the hook's command with "sh -c", adding env to the
// server's environment and feeding payload on stdin.
func (h Hook) Run(ctx context.Context, env map[string]string, payload []byte) Result {
	ctx, cancel := context.WithTimeout(ctx, h.timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", h.Command) //nolint:gosec // commands come from the operator's hooks file
	// The hook runs in its own process group so a timeout kills anything
	// the shell started, not just the shell.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Stdin = bytes.NewReader(payload)
	if h.Dir != "" {
		if info, err := os.Stat(h.Dir); err == nil && info.IsDir() {
			cmd.Dir = h.Dir
		}
	}
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	start := time.Now()
	err := cmd.Run()
	res := Result{Duration: time.Since(start), Err: err}
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case err != nil:
		res.ExitCode = -1
	}
	if ctx.Err() == context.DeadlineExceeded {
		res.Err = ctx.Err()
	}

	res.Output = strings.TrimSpace(stdout.String())
	if res.Output == "" {
		res.Output = strings.TrimSpace(stderr.String())
	}
	return res
}
