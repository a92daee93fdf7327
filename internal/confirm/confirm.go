// Package confirm handles user consent and per-commit confirmation.
//
// The first run presents an explanation and a four-way choice that is
// persisted to the config store; later runs present a short commit summary.
// CI environments and non-interactive terminals never prompt — automation
// declines safely instead of hanging a pipeline.
package confirm

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitd/internal/config"
)

// Decision is the outcome of a consent check.
type Decision string

const (
	DecisionEnabled           Decision = "enabled"
	DecisionDisabled          Decision = "disabled"
	DecisionCancelled         Decision = "cancelled"
	DecisionError             Decision = "error"
	DecisionSkipCI            Decision = "skip_ci"
	DecisionAlreadyConfigured Decision = "already_configured"
)

// ciEnvVars mark a CI/CD environment where prompting is pointless.
var ciEnvVars = []string{
	"CI", "CONTINUOUS_INTEGRATION", "BUILD_NUMBER", "JENKINS_URL",
	"GITHUB_ACTIONS", "GITLAB_CI", "TRAVIS", "CIRCLECI", "AZURE_PIPELINES",
}

// IsCI reports whether the process runs under a CI system or without a
// terminal on stdin.
func IsCI() bool {
	for _, name := range ciEnvVars {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return !stdinIsTerminal()
}

// swapped in tests
var stdinIsTerminal = realStdinIsTerminal

func realStdinIsTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// CommitSummary is what the user sees before approving a commit.
type CommitSummary struct {
	Message       string
	FilesAdded    int
	FilesModified int
	FilesDeleted  int
}

// ConsentChoice is one option from the first-run menu.
type ConsentChoice string

const (
	ConsentEnable        ConsentChoice = "enable"
	ConsentDisableNow    ConsentChoice = "disable"
	ConsentDisableAlways ConsentChoice = "never"
	ConsentCancel        ConsentChoice = "cancel"
)

// Confirmer is the prompt surface the orchestrator talks to.
type Confirmer interface {
	// ConfirmCommit asks the user to accept or decline one commit.
	ConfirmCommit(ctx context.Context, summary CommitSummary) (bool, error)
	// FirstRunConsent presents the automation explanation and choice menu.
	FirstRunConsent(ctx context.Context) (ConsentChoice, error)
}

// Declining is the non-interactive Confirmer: it declines everything.
type Declining struct{}

func (Declining) ConfirmCommit(context.Context, CommitSummary) (bool, error) {
	return false, nil
}

func (Declining) FirstRunConsent(context.Context) (ConsentChoice, error) {
	return ConsentCancel, nil
}

// EnsureConsent resolves the first-run decision for cfg, prompting when
// needed and persisting the outcome. It is safe to call on every startup.
func EnsureConsent(ctx context.Context, cfg *config.Config, confirmer Confirmer, logger *zap.Logger) Decision {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.Consent.Confirmed {
		// A permanent opt-out is never re-asked; a temporary one is only
		// re-asked through the enable command, not implicitly.
		return DecisionAlreadyConfigured
	}

	if IsCI() {
		logger.Info("ci environment detected, skipping consent prompt")
		return DecisionSkipCI
	}

	choice, err := confirmer.FirstRunConsent(ctx)
	if err != nil {
		logger.Warn("consent prompt failed", zap.Error(err))
		return DecisionError
	}

	switch choice {
	case ConsentEnable:
		recordConsent(cfg, true, false, logger)
		return DecisionEnabled
	case ConsentDisableNow:
		recordConsent(cfg, false, false, logger)
		return DecisionDisabled
	case ConsentDisableAlways:
		recordConsent(cfg, false, true, logger)
		return DecisionDisabled
	default:
		return DecisionCancelled
	}
}

func recordConsent(cfg *config.Config, enabled, permanent bool, logger *zap.Logger) {
	cfg.Enabled = enabled
	cfg.Consent = config.Consent{
		Confirmed:   true,
		Enabled:     enabled,
		Permanent:   permanent,
		ConfirmedAt: time.Now(),
	}
	path := cfg.Path()
	if path == "" {
		if wd, err := os.Getwd(); err == nil {
			path = config.DefaultPath(wd)
		}
	}
	if err := cfg.Save(path); err != nil {
		logger.Warn("could not persist consent decision", zap.Error(err))
	}
}
