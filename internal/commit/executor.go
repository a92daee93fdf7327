package commit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitd/internal/gitexec"
	"github.com/fyrsmithlabs/commitd/internal/message"
)

// historyLimit bounds the in-memory execution history.
const historyLimit = 20

var commitHashRe = regexp.MustCompile(`\[[\w/-]+ ([a-f0-9]{7,40})\]`)

// Executor runs git commits under the retry policy in Config.
type Executor struct {
	cfg       Config
	runner    gitexec.Runner
	gitDir    string
	validator *message.Validator
	logger    *zap.Logger

	// Overridable for tests.
	sleep         func(context.Context, time.Duration) error
	signingRemedy func(context.Context)

	mu           sync.Mutex
	recent       []*ExecutionResult
	totalCommits int
	totalRetries int
}

// NewExecutor builds an Executor over the given repository.
func NewExecutor(repo *gitexec.Repo, cfg Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		cfg:           cfg,
		runner:        repo.Runner(),
		gitDir:        repo.GitDir(),
		validator:     cfg.validator(),
		logger:        logger,
		sleep:         sleepContext,
		signingRemedy: remedySigning,
	}
}

// Commit validates the message and executes git commit with retries.
// The result is always recorded in the execution history.
func (e *Executor) Commit(ctx context.Context, msg string, opts Options) *ExecutionResult {
	start := time.Now()
	res := &ExecutionResult{}
	defer func() {
		res.Elapsed = time.Since(start)
		e.record(res)
	}()

	res.Validation = e.validator.Validate(msg)
	if !res.Validation.IsValid {
		if !e.cfg.FallbackEnabled {
			res.Err = validationError(res.Validation)
			return res
		}
		e.logger.Warn("message validation failed, auto-correcting",
			zap.Strings("errors", res.Validation.Errors))
		msg = e.validator.AutoCorrect(msg)
		res.FallbackUsed = true
		res.Validation = e.validator.Validate(msg)
		if !res.Validation.IsValid {
			res.Err = validationError(res.Validation)
			return res
		}
	}

	if !opts.AllowEmpty {
		staged, err := e.hasStagedChanges(ctx)
		if err != nil {
			res.Err = fmt.Sprintf("checking staged changes: %v", err)
			return res
		}
		if !staged {
			res.Err = "no staged changes to commit"
			return res
		}
	}

	e.runWithRetry(ctx, msg, opts, res)
	return res
}

func validationError(v *message.Validation) string {
	return "message validation failed: " + strings.Join(v.Errors, "; ")
}

func (e *Executor) hasStagedChanges(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, gitexec.QueryTimeout)
	defer cancel()
	result, err := e.runner.Run(ctx, "diff", "--cached", "--quiet")
	if err != nil {
		return false, err
	}
	return result.ExitCode != 0, nil
}

func (e *Executor) runWithRetry(ctx context.Context, msg string, opts Options, res *ExecutionResult) {
	maxAttempts := e.cfg.MaxRetries + 1
	delay := e.cfg.RetryDelay
	args := e.buildArgs(msg, opts)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		e.logger.Debug("commit attempt",
			zap.Int("attempt", attempt), zap.Int("max_attempts", maxAttempts))

		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		result, err := e.runner.Run(attemptCtx, args...)
		cancel()

		var errOutput string
		reason, retryable := ReasonTemporaryFailure, true
		switch {
		case err != nil:
			errOutput = err.Error()
		case result.OK():
			res.Success = true
			res.CommitHash = e.extractHash(ctx, result.Stdout)
			res.Signed = e.isSigned(ctx, res.CommitHash)
			for i := range res.Attempts {
				res.Attempts[i].Succeeded = true
			}
			e.logger.Info("commit succeeded",
				zap.String("hash", res.CommitHash),
				zap.Int("attempt", attempt),
				zap.Bool("signed", res.Signed))
			return
		default:
			errOutput = result.Output()
			reason, retryable = classifyFailure(errOutput)
		}

		if attempt >= maxAttempts || !retryable {
			res.Err = "commit failed: " + errOutput
			e.logger.Error("commit failed",
				zap.Int("attempts", attempt), zap.String("output", errOutput))
			return
		}
		if err := ctx.Err(); err != nil {
			res.Err = "commit cancelled: " + err.Error()
			e.logger.Warn("commit cancelled, not retrying", zap.Int("attempts", attempt))
			return
		}

		res.Attempts = append(res.Attempts, RetryAttempt{
			Number:    attempt,
			Reason:    reason,
			Error:     errOutput,
			Timestamp: time.Now(),
			Delay:     delay,
		})
		e.logger.Warn("commit attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.String("reason", string(reason)),
			zap.Duration("delay", delay))

		if err := e.sleep(ctx, delay); err != nil {
			res.Err = "commit cancelled: " + err.Error()
			return
		}
		delay = time.Duration(float64(delay) * e.cfg.RetryBackoff)

		switch reason {
		case ReasonLockConflict:
			e.removeStaleLocks()
		case ReasonSigningFailure:
			e.signingRemedy(ctx)
		}
	}
}

func (e *Executor) buildArgs(msg string, opts Options) []string {
	args := []string{"commit", "-m", msg}
	if e.cfg.EnableSigning {
		if e.cfg.SigningKey != "" {
			args = append(args, "-S"+e.cfg.SigningKey)
		} else {
			args = append(args, "-S")
		}
	}
	if opts.AllowEmpty {
		args = append(args, "--allow-empty")
	}
	if !opts.StagedOnly {
		args = append(args, "-a")
	}
	return args
}

// extractHash pulls the new hash from "[branch abc1234] ..." output, falling
// back to rev-parse HEAD.
func (e *Executor) extractHash(ctx context.Context, stdout string) string {
	if m := commitHashRe.FindStringSubmatch(stdout); m != nil {
		return m[1]
	}
	ctx, cancel := context.WithTimeout(ctx, gitexec.QueryTimeout)
	defer cancel()
	result, err := e.runner.Run(ctx, "rev-parse", "HEAD")
	if err != nil || !result.OK() {
		e.logger.Warn("could not resolve commit hash after commit")
		return ""
	}
	return strings.TrimSpace(result.Stdout)
}

// isSigned reports whether hash carries a good or untrusted signature.
func (e *Executor) isSigned(ctx context.Context, hash string) bool {
	if hash == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, gitexec.QueryTimeout)
	defer cancel()
	result, err := e.runner.Run(ctx, "show", "--format=%G?", "-s", hash)
	if err != nil || !result.OK() {
		return false
	}
	status := strings.TrimSpace(result.Stdout)
	return status == "G" || status == "U"
}

// removeStaleLocks deletes leftover lock files before the next attempt.
func (e *Executor) removeStaleLocks() {
	locks := []string{
		filepath.Join(e.gitDir, "index.lock"),
		filepath.Join(e.gitDir, "refs", "heads", "main.lock"),
		filepath.Join(e.gitDir, "refs", "heads", "master.lock"),
	}
	for _, lock := range locks {
		if err := os.Remove(lock); err == nil {
			e.logger.Info("removed stale lock file", zap.String("path", lock))
		}
	}
}

// sleepContext waits for d or for ctx cancellation, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// remedySigning restarts the gpg agent when it is unresponsive.
func remedySigning(ctx context.Context) {
	if !gitexec.GPGAgentAlive(ctx) {
		_ = gitexec.RestartGPGAgent(ctx)
	}
}

// StageAll stages the given paths, or every change when none are given.
func (e *Executor) StageAll(ctx context.Context, paths ...string) error {
	args := []string{"add"}
	if len(paths) == 0 {
		args = append(args, "-A")
	} else {
		args = append(args, "--")
		args = append(args, paths...)
	}
	result, err := e.runner.Run(ctx, args...)
	if err != nil {
		return fmt.Errorf("staging changes: %w", err)
	}
	if !result.OK() {
		return fmt.Errorf("staging changes: %s", result.Output())
	}
	return nil
}

// ValidateRepoState reports whether the repository is ready for commits.
func (e *Executor) ValidateRepoState(ctx context.Context) *RepoState {
	state := &RepoState{Ready: true}

	for _, key := range []string{"user.name", "user.email"} {
		result, err := e.runner.Run(ctx, "config", key)
		if err != nil || !result.OK() || strings.TrimSpace(result.Stdout) == "" {
			state.Ready = false
			state.Issues = append(state.Issues, fmt.Sprintf("git %s not configured", key))
		}
	}

	staged, err := e.hasStagedChanges(ctx)
	if err != nil {
		state.Warnings = append(state.Warnings, fmt.Sprintf("could not check staged changes: %v", err))
	} else if !staged {
		state.Warnings = append(state.Warnings, "no staged changes to commit")
	}

	if e.cfg.EnableSigning && e.cfg.SigningKey == "" {
		result, err := e.runner.Run(ctx, "config", "user.signingkey")
		if err != nil || !result.OK() || strings.TrimSpace(result.Stdout) == "" {
			state.Warnings = append(state.Warnings, "signing enabled but no signing key configured")
		}
	}

	return state
}

// record appends res to the bounded execution history.
func (e *Executor) record(res *ExecutionResult) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.recent = append(e.recent, res)
	if len(e.recent) > historyLimit {
		e.recent = e.recent[len(e.recent)-historyLimit:]
	}
	e.totalRetries += len(res.Attempts)
	if res.Success {
		e.totalCommits++
	}
}

// RecentResults returns up to limit most recent execution results.
func (e *Executor) RecentResults(limit int) []*ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	if limit <= 0 || limit > len(e.recent) {
		limit = len(e.recent)
	}
	out := make([]*ExecutionResult, limit)
	copy(out, e.recent[len(e.recent)-limit:])
	return out
}

// Stats summarizes executor activity.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Stats{
		TotalCommits:    e.totalCommits,
		TotalRetries:    e.totalRetries,
		RecentCommits:   len(e.recent),
		SigningEnabled:  e.cfg.EnableSigning,
		ValidationLevel: e.cfg.ValidationLevel,
		FallbackEnabled: e.cfg.FallbackEnabled,
	}
	if len(e.recent) == 0 {
		return stats
	}

	var succeeded int
	var total time.Duration
	for _, r := range e.recent {
		if r.Success {
			succeeded++
		}
		total += r.Elapsed
	}
	stats.RecentSuccessRate = float64(succeeded) / float64(len(e.recent))
	stats.AvgElapsed = total / time.Duration(len(e.recent))
	return stats
}
