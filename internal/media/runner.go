package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"clypse/internal/logging"
	"clypse/internal/metrics"
)

// Runner executes an external tool and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ToolError describes a failed external tool invocation.
type ToolError struct {
	Tool   string
	Args   []string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ", stderr: " + lastLine(stderr)
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// lastLine keeps error strings short; ffmpeg writes the cause last.
func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// ExecRunner runs tools as child processes. Running processes are tracked so
// Cleanup can stop them at shutdown.
type ExecRunner struct {
	mu        sync.Mutex
	processes map[*exec.Cmd]struct{}
}

// NewExecRunner creates an ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{processes: make(map[*exec.Cmd]struct{})}
}

// Run starts name with args and waits for it to exit.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, &ToolError{Tool: name, Args: args, Err: err}
	}

	r.mu.Lock()
	r.processes[cmd] = struct{}{}
	r.mu.Unlock()

	err := cmd.Wait()

	r.mu.Lock()
	delete(r.processes, cmd)
	r.mu.Unlock()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		return stdout.Bytes(), &ToolError{Tool: name, Args: args, Stderr: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}

// Running returns the number of tool processes currently executing.
func (r *ExecRunner) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.processes)
}

// Cleanup kills every running tool process.
func (r *ExecRunner) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for cmd := range r.processes {
		if cmd.Process != nil {
			logging.Info("Stopping %s (pid %d)", cmd.Path, cmd.Process.Pid)
			if err := cmd.Process.Kill(); err != nil {
				logging.Debug("Kill %s: %v", cmd.Path, err)
			}
		}
	}
}

// ToolStatus is the result of looking up one external tool.
type ToolStatus struct {
	Name      string
	Path      string
	Available bool
}

// CheckTools looks up the named tools on PATH.
func CheckTools(names ...string) []ToolStatus {
	statuses := make([]ToolStatus, 0, len(names))
	for _, name := range names {
		path, err := exec.LookPath(name)
		statuses = append(statuses, ToolStatus{Name: name, Path: path, Available: err == nil})
	}
	return statuses
}

// run invokes a tool under timeout and records metrics for operation.
func run(ctx context.Context, runner Runner, timeout time.Duration, operation, name string, args ...string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := runner.Run(ctx, name, args...)
	metrics.ToolDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	status := "success"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = "timeout"
	case err != nil:
		status = "error"
	}
	metrics.ToolInvocationsTotal.WithLabelValues(operation, status).Inc()

	return out, err
}
