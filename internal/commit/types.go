package commit

import (
	"strings"
	"time"

	"github.com/fyrsmithlabs/commitd/internal/message"
)

// Config is the commit policy. Read-only for the lifetime of an Executor.
type Config struct {
	MaxRetries        int           `json:"max_retries" koanf:"max_retries"`
	RetryDelay        time.Duration `json:"retry_delay" koanf:"retry_delay"`
	RetryBackoff      float64       `json:"retry_backoff" koanf:"retry_backoff"`
	EnableSigning     bool          `json:"enable_signing" koanf:"enable_signing"`
	SigningKey        string        `json:"signing_key" koanf:"signing_key"`
	ValidationLevel   message.Level `json:"validation_level" koanf:"validation_level"`
	MinSubjectLength  int           `json:"min_subject_length" koanf:"min_subject_length"`
	MaxSubjectLength  int           `json:"max_subject_length" koanf:"max_subject_length"`
	RequireTypePrefix bool          `json:"require_type_prefix" koanf:"require_type_prefix"`
	AllowedTypes      []string      `json:"allowed_types" koanf:"allowed_types"`
	Timeout           time.Duration `json:"timeout" koanf:"timeout"`
	FallbackEnabled   bool          `json:"fallback_enabled" koanf:"fallback_enabled"`
}

// DefaultConfig returns the standard commit policy.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		RetryDelay:        time.Second,
		RetryBackoff:      2.0,
		EnableSigning:     false,
		ValidationLevel:   message.LevelStandard,
		MinSubjectLength:  message.DefaultMinSubjectLength,
		MaxSubjectLength:  message.DefaultMaxSubjectLength,
		RequireTypePrefix: true,
		AllowedTypes:      message.DefaultAllowedTypes,
		Timeout:           30 * time.Second,
		FallbackEnabled:   true,
	}
}

// validator builds the message validator this policy implies.
func (c Config) validator() *message.Validator {
	return &message.Validator{
		Level:             c.ValidationLevel,
		MinSubjectLength:  c.MinSubjectLength,
		MaxSubjectLength:  c.MaxSubjectLength,
		RequireTypePrefix: c.RequireTypePrefix,
		AllowedTypes:      c.AllowedTypes,
	}
}

// RetryReason classifies why a commit attempt failed.
type RetryReason string

const (
	ReasonLockConflict     RetryReason = "lock_conflict"
	ReasonSigningFailure   RetryReason = "signing_failure"
	ReasonNetworkError     RetryReason = "network_error"
	ReasonPermissionError  RetryReason = "permission_error"
	ReasonTemporaryFailure RetryReason = "temporary_failure"
)

// failureClass binds error-output substrings to a retry reason.
type failureClass struct {
	phrases []string
	reason  RetryReason
}

// failureClasses are checked in order against lowercased error output.
var failureClasses = []failureClass{
	{[]string{"index.lock", "unable to create", "resource temporarily unavailable"}, ReasonLockConflict},
	{[]string{"gpg failed to sign", "signing failed", "secret key not available"}, ReasonSigningFailure},
	{[]string{"connection refused", "network", "timeout", "temporary failure"}, ReasonNetworkError},
	{[]string{"permission denied", "operation not permitted"}, ReasonPermissionError},
}

// nonRetryablePhrases identify failures where retrying cannot help.
var nonRetryablePhrases = []string{
	"nothing to commit", "no changes added", "pathspec", "invalid", "bad revision",
}

// classifyFailure maps commit error output to a retry reason. The second
// return is false for non-retryable failures. Unknown output defaults to a
// retryable temporary failure.
func classifyFailure(errorOutput string) (RetryReason, bool) {
	lower := strings.ToLower(errorOutput)

	for _, class := range failureClasses {
		for _, phrase := range class.phrases {
			if strings.Contains(lower, phrase) {
				return class.reason, true
			}
		}
	}
	for _, phrase := range nonRetryablePhrases {
		if strings.Contains(lower, phrase) {
			return "", false
		}
	}
	return ReasonTemporaryFailure, true
}

// RetryAttempt records one failed attempt. Succeeded is back-filled when a
// later attempt lands the commit.
type RetryAttempt struct {
	Number    int           `json:"number"`
	Reason    RetryReason   `json:"reason"`
	Error     string        `json:"error"`
	Timestamp time.Time     `json:"timestamp"`
	Delay     time.Duration `json:"delay"`
	Succeeded bool          `json:"succeeded"`
}

// ExecutionResult is the full outcome of one Commit call.
type ExecutionResult struct {
	Success      bool                `json:"success"`
	CommitHash   string              `json:"commit_hash,omitempty"`
	Err          string              `json:"error,omitempty"`
	Attempts     []RetryAttempt      `json:"attempts,omitempty"`
	Validation   *message.Validation `json:"validation,omitempty"`
	Elapsed      time.Duration       `json:"elapsed"`
	Signed       bool                `json:"signed"`
	FallbackUsed bool                `json:"fallback_used"`
}

// Options steer a single Commit call.
type Options struct {
	// StagedOnly commits only the index; otherwise -a is passed.
	StagedOnly bool
	// AllowEmpty permits a commit with no staged changes.
	AllowEmpty bool
}

// Stats summarizes executor activity since construction.
type Stats struct {
	TotalCommits      int           `json:"total_commits"`
	TotalRetries      int           `json:"total_retries"`
	RecentCommits     int           `json:"recent_commits"`
	RecentSuccessRate float64       `json:"recent_success_rate"`
	AvgElapsed        time.Duration `json:"avg_elapsed"`
	SigningEnabled    bool          `json:"signing_enabled"`
	ValidationLevel   message.Level `json:"validation_level"`
	FallbackEnabled   bool          `json:"fallback_enabled"`
}

// RepoState is the readiness diagnostic for commits.
type RepoState struct {
	Ready    bool     `json:"ready"`
	Issues   []string `json:"issues,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
