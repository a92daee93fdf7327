package gitexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds mutating git operations (add, commit, reset).
	DefaultTimeout = 30 * time.Second

	// QueryTimeout bounds lightweight read-only queries (config, rev-parse).
	QueryTimeout = 10 * time.Second
)

var (
	// ErrGitNotFound indicates the git binary is missing from PATH.
	ErrGitNotFound = errors.New("git command not found")

	// ErrTimeout indicates a git command exceeded its deadline.
	ErrTimeout = errors.New("git command timed out")
)

// Result captures the outcome of one git invocation.
//
// A non-zero exit code is not a Go error: callers inspect ExitCode and
// Stderr to classify failures. Run returns an error only when the process
// could not be spawned or the context deadline expired.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// OK reports whether the command exited successfully.
func (r *Result) OK() bool {
	return r.ExitCode == 0
}

// Output returns stderr if present, otherwise stdout. Git writes most
// failure diagnostics to stderr but some (e.g. "nothing to commit") to stdout.
func (r *Result) Output() string {
	if strings.TrimSpace(r.Stderr) != "" {
		return strings.TrimSpace(r.Stderr)
	}
	return strings.TrimSpace(r.Stdout)
}

// Runner executes git commands in a working directory.
type Runner interface {
	// Run executes "git args..." and returns the captured result.
	// Deadline and cancellation come from ctx.
	Run(ctx context.Context, args ...string) (*Result, error)
}

// CommandRunner runs git as a subprocess.
type CommandRunner struct {
	dir    string
	logger *zap.Logger
}

// NewCommandRunner creates a runner rooted at dir.
func NewCommandRunner(dir string, logger *zap.Logger) *CommandRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandRunner{dir: dir, logger: logger}
}

// Run implements Runner.
func (r *CommandRunner) Run(ctx context.Context, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: git %s after %v", ErrTimeout, strings.Join(args, " "), elapsed)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			r.logger.Debug("git command failed",
				zap.Strings("args", args),
				zap.Int("exit_code", result.ExitCode),
				zap.Duration("elapsed", elapsed))
			return result, nil
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, ErrGitNotFound
		}
		return nil, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}

	r.logger.Debug("git command succeeded",
		zap.Strings("args", args),
		zap.Duration("elapsed", elapsed))
	return result, nil
}
