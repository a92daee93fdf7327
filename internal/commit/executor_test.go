package commit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitd/internal/gitexec"
)

func newTestExecutor(t *testing.T, runner gitexec.Runner, cfg Config) *Executor {
	t.Helper()
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	return &Executor{
		cfg:           cfg,
		runner:        runner,
		gitDir:        filepath.Join(t.TempDir(), ".git"),
		validator:     cfg.validator(),
		logger:        zap.NewNop(),
		sleep:         func(context.Context, time.Duration) error { return nil },
		signingRemedy: func(context.Context) {},
	}
}

func stagedRunner() *gitexec.ScriptRunner {
	// Non-zero exit from diff --cached --quiet means staged changes exist.
	return gitexec.NewScriptRunner().StubFailure("diff --cached --quiet", 1, "")
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name       string
		output     string
		wantReason RetryReason
		retryable  bool
	}{
		{"index lock", "fatal: Unable to create '/repo/.git/index.lock': File exists", ReasonLockConflict, true},
		{"resource busy", "error: resource temporarily unavailable", ReasonLockConflict, true},
		{"gpg signing", "error: gpg failed to sign the data", ReasonSigningFailure, true},
		{"missing secret key", "gpg: signing failed: secret key not available", ReasonSigningFailure, true},
		{"network", "fatal: unable to access repo: Connection refused", ReasonNetworkError, true},
		{"permission", "error: permission denied", ReasonPermissionError, true},
		{"nothing to commit", "nothing to commit, working tree clean", "", false},
		{"bad pathspec", "error: pathspec 'nope' did not match any files", "", false},
		{"unknown defaults retryable", "fatal: something novel happened", ReasonTemporaryFailure, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, retryable := classifyFailure(tt.output)
			assert.Equal(t, tt.retryable, retryable)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestCommitSuccessFirstAttempt(t *testing.T) {
	runner := stagedRunner().
		StubOutput("commit -m", "[main abc1234] feat: Implement retry backoff\n 1 file changed").
		StubOutput("show --format=%G? -s", "N\n")
	e := newTestExecutor(t, runner, DefaultConfig())

	res := e.Commit(context.Background(), "feat: Implement retry backoff", Options{StagedOnly: true})
	require.True(t, res.Success, "unexpected error: %s", res.Err)
	assert.Equal(t, "abc1234", res.CommitHash)
	assert.False(t, res.Signed)
	assert.Empty(t, res.Attempts)
	assert.Equal(t, 1, runner.CallCount("commit -m"))
}

func TestCommitHashFallsBackToRevParse(t *testing.T) {
	runner := stagedRunner().
		StubOutput("commit -m", "no bracket pattern here").
		StubOutput("rev-parse HEAD", "deadbeefcafe0123\n")
	e := newTestExecutor(t, runner, DefaultConfig())

	res := e.Commit(context.Background(), "feat: Implement retry backoff", Options{StagedOnly: true})
	require.True(t, res.Success)
	assert.Equal(t, "deadbeefcafe0123", res.CommitHash)
}

func TestCommitSignedDetection(t *testing.T) {
	runner := stagedRunner().
		StubOutput("commit -m", "[main abc1234] feat: Implement signing\n").
		StubOutput("show --format=%G? -s", "G\n")
	cfg := DefaultConfig()
	cfg.EnableSigning = true
	cfg.SigningKey = "ABCD1234"
	e := newTestExecutor(t, runner, cfg)

	res := e.Commit(context.Background(), "feat: Implement signing support", Options{StagedOnly: true})
	require.True(t, res.Success)
	assert.True(t, res.Signed)

	// The signing key flag must ride along on the commit command.
	var found bool
	for _, call := range runner.Calls() {
		for _, arg := range call {
			if arg == "-SABCD1234" {
				found = true
			}
		}
	}
	assert.True(t, found, "expected -S<key> flag in commit invocation")
}

func TestCommitValidationFailureNoFallback(t *testing.T) {
	runner := stagedRunner()
	cfg := DefaultConfig()
	cfg.FallbackEnabled = false
	e := newTestExecutor(t, runner, cfg)

	res := e.Commit(context.Background(), "short", Options{StagedOnly: true})
	assert.False(t, res.Success)
	assert.Contains(t, res.Err, "validation failed")
	// No git commit may be attempted on a rejected message.
	assert.Zero(t, runner.CallCount("commit -m"))
}

func TestCommitAutoCorrectsOnce(t *testing.T) {
	runner := stagedRunner().
		StubOutput("commit -m", "[main 1234abc] feat: add queue\n")
	e := newTestExecutor(t, runner, DefaultConfig())

	// "add queue" is under the minimum subject length; one auto-correct
	// pass prefixes it and makes it long enough.
	res := e.Commit(context.Background(), "add queue", Options{StagedOnly: true})
	require.True(t, res.Success, "unexpected error: %s", res.Err)
	assert.True(t, res.FallbackUsed)

	var committed string
	for _, call := range runner.Calls() {
		if len(call) >= 3 && call[0] == "commit" {
			committed = call[2]
		}
	}
	assert.Equal(t, "feat: add queue", committed)
}

func TestCommitNoStagedChanges(t *testing.T) {
	// Exit 0 from diff --cached --quiet: nothing staged.
	runner := gitexec.NewScriptRunner().StubOutput("diff --cached --quiet", "")
	e := newTestExecutor(t, runner, DefaultConfig())

	res := e.Commit(context.Background(), "feat: Implement retry backoff", Options{StagedOnly: true})
	assert.False(t, res.Success)
	assert.Contains(t, res.Err, "no staged changes")
	assert.Zero(t, runner.CallCount("commit -m"))
}

func TestCommitAllowEmptySkipsStagedProbe(t *testing.T) {
	runner := gitexec.NewScriptRunner().
		StubOutput("commit -m", "[main fade123] chore: Record checkpoint marker\n")
	e := newTestExecutor(t, runner, DefaultConfig())

	res := e.Commit(context.Background(), "chore: Record checkpoint marker", Options{StagedOnly: true, AllowEmpty: true})
	require.True(t, res.Success)
	assert.Zero(t, runner.CallCount("diff --cached"))

	var sawAllowEmpty bool
	for _, call := range runner.Calls() {
		for _, arg := range call {
			if arg == "--allow-empty" {
				sawAllowEmpty = true
			}
		}
	}
	assert.True(t, sawAllowEmpty)
}

func TestCommitNonRetryableFailsImmediately(t *testing.T) {
	runner := stagedRunner().
		StubFailure("commit -m", 1, "error: pathspec 'missing' did not match any files")
	e := newTestExecutor(t, runner, DefaultConfig())

	res := e.Commit(context.Background(), "feat: Implement retry backoff", Options{StagedOnly: true})
	assert.False(t, res.Success)
	assert.Contains(t, res.Err, "pathspec")
	assert.Empty(t, res.Attempts)
	assert.Equal(t, 1, runner.CallCount("commit -m"))
}

func TestCommitRetriesExhausted(t *testing.T) {
	runner := stagedRunner().
		StubFailure("commit -m", 1, "fatal: Unable to create '.git/index.lock': File exists")
	cfg := DefaultConfig()
	cfg.MaxRetries = 2

	var delays []time.Duration
	e := newTestExecutor(t, runner, cfg)
	e.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	res := e.Commit(context.Background(), "feat: Implement retry backoff", Options{StagedOnly: true})
	assert.False(t, res.Success)
	assert.Equal(t, 3, runner.CallCount("commit -m"))
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, ReasonLockConflict, res.Attempts[0].Reason)
	assert.False(t, res.Attempts[0].Succeeded)

	// Exponential backoff doubles the delay between attempts.
	require.Len(t, delays, 2)
	assert.Equal(t, delays[0]*2, delays[1])
}

func TestCommitCancelledContextStopsRetrying(t *testing.T) {
	runner := stagedRunner().
		StubFailure("commit -m", 1, "fatal: Unable to create '.git/index.lock': File exists")
	cfg := DefaultConfig()
	cfg.MaxRetries = 3

	var slept int
	e := newTestExecutor(t, runner, cfg)
	e.sleep = func(ctx context.Context, _ time.Duration) error {
		slept++
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := e.Commit(ctx, "feat: Implement retry backoff", Options{StagedOnly: true})
	assert.False(t, res.Success)
	assert.Contains(t, res.Err, "cancelled")
	// One attempt, then the cancelled context stops the retry loop cold.
	assert.Equal(t, 1, runner.CallCount("commit -m"))
	assert.Zero(t, slept)
	assert.Empty(t, res.Attempts)
}

func TestSleepContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sleepContext(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCommitRemovesStaleLockOnConflict(t *testing.T) {
	runner := stagedRunner().
		StubFailure("commit -m", 1, "fatal: Unable to create '.git/index.lock': File exists")
	cfg := DefaultConfig()
	cfg.MaxRetries = 1
	e := newTestExecutor(t, runner, cfg)

	require.NoError(t, os.MkdirAll(e.gitDir, 0o755))
	lock := filepath.Join(e.gitDir, "index.lock")
	require.NoError(t, os.WriteFile(lock, nil, 0o644))

	e.Commit(context.Background(), "feat: Implement retry backoff", Options{StagedOnly: true})
	_, err := os.Stat(lock)
	assert.True(t, os.IsNotExist(err), "stale lock should be removed during retry")
}

func TestCommitBackfillsAttemptsOnEventualSuccess(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 3

	// First attempt hits a lock, second succeeds.
	fails := 0
	e := newTestExecutor(t, runnerFunc(func(ctx context.Context, args ...string) (*gitexec.Result, error) {
		switch args[0] {
		case "diff":
			return &gitexec.Result{ExitCode: 1}, nil
		case "commit":
			if fails == 0 {
				fails++
				return &gitexec.Result{ExitCode: 1, Stderr: "index.lock exists"}, nil
			}
			return &gitexec.Result{ExitCode: 0, Stdout: "[main beef001] ok\n"}, nil
		}
		return &gitexec.Result{ExitCode: 0}, nil
	}), cfg)

	res := e.Commit(context.Background(), "feat: Implement retry backoff", Options{StagedOnly: true})
	require.True(t, res.Success)
	require.Len(t, res.Attempts, 1)
	assert.True(t, res.Attempts[0].Succeeded)
}

type runnerFunc func(ctx context.Context, args ...string) (*gitexec.Result, error)

func (f runnerFunc) Run(ctx context.Context, args ...string) (*gitexec.Result, error) {
	return f(ctx, args...)
}

func TestStageAll(t *testing.T) {
	runner := gitexec.NewScriptRunner()
	e := newTestExecutor(t, runner, DefaultConfig())

	require.NoError(t, e.StageAll(context.Background()))
	require.NoError(t, e.StageAll(context.Background(), "a.go", "b.go"))

	calls := runner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"add", "-A"}, calls[0])
	assert.Equal(t, []string{"add", "--", "a.go", "b.go"}, calls[1])
}

func TestValidateRepoState(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		runner := gitexec.NewScriptRunner().
			StubOutput("config user.name", "Dev\n").
			StubOutput("config user.email", "dev@example.com\n").
			StubFailure("diff --cached --quiet", 1, "")
		e := newTestExecutor(t, runner, DefaultConfig())

		state := e.ValidateRepoState(context.Background())
		assert.True(t, state.Ready)
		assert.Empty(t, state.Issues)
	})

	t.Run("missing identity", func(t *testing.T) {
		runner := gitexec.NewScriptRunner().
			StubFailure("config user.name", 1, "").
			StubFailure("config user.email", 1, "").
			StubFailure("diff --cached --quiet", 1, "")
		e := newTestExecutor(t, runner, DefaultConfig())

		state := e.ValidateRepoState(context.Background())
		assert.False(t, state.Ready)
		assert.Len(t, state.Issues, 2)
	})

	t.Run("signing enabled without key warns", func(t *testing.T) {
		runner := gitexec.NewScriptRunner().
			StubOutput("config user.name", "Dev\n").
			StubOutput("config user.email", "dev@example.com\n").
			StubFailure("config user.signingkey", 1, "").
			StubFailure("diff --cached --quiet", 1, "")
		cfg := DefaultConfig()
		cfg.EnableSigning = true
		e := newTestExecutor(t, runner, cfg)

		state := e.ValidateRepoState(context.Background())
		assert.True(t, state.Ready)
		assert.Contains(t, state.Warnings, "signing enabled but no signing key configured")
	})
}

func TestStatsAndHistory(t *testing.T) {
	runner := stagedRunner().
		StubOutput("commit -m", "[main abc1234] ok\n")
	e := newTestExecutor(t, runner, DefaultConfig())

	for i := 0; i < 25; i++ {
		e.Commit(context.Background(), "feat: Implement retry backoff", Options{StagedOnly: true})
	}

	stats := e.Stats()
	assert.Equal(t, 25, stats.TotalCommits)
	assert.Equal(t, historyLimit, stats.RecentCommits)
	assert.InDelta(t, 1.0, stats.RecentSuccessRate, 1e-9)

	recent := e.RecentResults(5)
	assert.Len(t, recent, 5)
}
