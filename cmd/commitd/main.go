// Package main implements the commitd CLI for spec-workflow git automation.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitd/internal/bootstrap"
	"github.com/fyrsmithlabs/commitd/internal/commit"
	"github.com/fyrsmithlabs/commitd/internal/config"
	"github.com/fyrsmithlabs/commitd/internal/confirm"
	"github.com/fyrsmithlabs/commitd/internal/hook"
	"github.com/fyrsmithlabs/commitd/internal/logging"
	"github.com/fyrsmithlabs/commitd/internal/orchestrate"
)

var (
	logLevel  string
	logFormat string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "commitd",
	Short: "Automatic git commits for spec workflow tasks",
	Long: `commitd watches spec workflow task completions and turns them into
conventional git commits: it classifies the changed files, synthesizes a
commit message, asks for confirmation when configured to, and commits with
retry and rollback handling.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (json or console)")

	rootCmd.AddCommand(taskCompleteCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
}

func buildLogger() (*zap.Logger, error) {
	return logging.New(&logging.Config{
		Level:  logLevel,
		Format: logFormat,
		Fields: map[string]string{"service": "commitd"},
	})
}

func startSystem(ctx context.Context, logger *zap.Logger) (*bootstrap.System, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}
	sys := bootstrap.New(cwd, confirm.NewConfirmer(), logger)
	if err := sys.Start(ctx); err != nil {
		return nil, err
	}
	return sys, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

var (
	taskID          string
	taskTitle       string
	taskDescription string
	specName        string
	dryRun          bool
	forceCommit     bool
	noConfirm       bool
)

// taskCompleteCmd runs the full pipeline for one completed task.
var taskCompleteCmd = &cobra.Command{
	Use:   "task-complete",
	Short: "Process a completed spec task and commit its changes",
	Long: `Process a completed spec workflow task: detect changed files, synthesize
a commit message, and create the commit.

Examples:
  # Commit the changes for task 3.2
  commitd task-complete --task-id 3.2 --title "Implement retry logic"

  # Preview without committing
  commitd task-complete --task-id 3.2 --title "Implement retry logic" --dry-run`,
	RunE: runTaskComplete,
}

func init() {
	taskCompleteCmd.Flags().StringVar(&taskID, "task-id", "", "task identifier, e.g. 3.2")
	taskCompleteCmd.Flags().StringVar(&taskTitle, "title", "", "task title")
	taskCompleteCmd.Flags().StringVar(&taskDescription, "description", "", "task description")
	taskCompleteCmd.Flags().StringVar(&specName, "spec", "", "spec name the task belongs to")
	taskCompleteCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be committed without committing")
	taskCompleteCmd.Flags().BoolVar(&forceCommit, "force", false, "skip the confirmation prompt")
	taskCompleteCmd.Flags().BoolVar(&noConfirm, "no-confirm", false, "never prompt for per-commit confirmation")
	_ = taskCompleteCmd.MarkFlagRequired("task-id")
	_ = taskCompleteCmd.MarkFlagRequired("title")
}

func runTaskComplete(cmd *cobra.Command, args []string) error {
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	sys, err := startSystem(ctx, logger)
	if err != nil {
		return err
	}
	defer sys.Shutdown(ctx)

	// First run asks for consent before anything is committed.
	decision := confirm.EnsureConsent(ctx, sys.Config, sys.Confirmer, logger)
	if decision == confirm.DecisionCancelled {
		fmt.Println("Setup cancelled, nothing committed.")
		return nil
	}

	pctx := orchestrate.ProcessContext{
		TaskID:          taskID,
		TaskTitle:       taskTitle,
		TaskDescription: taskDescription,
		SpecName:        specName,
		DryRun:          dryRun,
		ForceCommit:     forceCommit,
	}
	if noConfirm {
		off := false
		pctx.RequireConfirmation = &off
	}

	op := sys.Orch.ProcessTaskCompletion(ctx, pctx)

	switch op.Result {
	case orchestrate.ResultSuccess:
		if dryRun {
			fmt.Printf("DRY RUN: would commit with message: %s\n", op.Message)
		} else {
			fmt.Printf("Committed %s: %s\n", shortHash(op.CommitHash), op.Message)
		}
		return nil
	case orchestrate.ResultNoChanges:
		fmt.Println("No file changes detected, nothing to commit.")
		return nil
	case orchestrate.ResultDisabled:
		fmt.Println("Automation is disabled. Run 'commitd enable' to turn it on.")
		return nil
	case orchestrate.ResultCancelled:
		fmt.Println("Commit declined.")
		return nil
	case orchestrate.ResultRolledBack:
		return fmt.Errorf("commit failed and was rolled back: %s", op.Err)
	default:
		return fmt.Errorf("commit failed: %s", op.Err)
	}
}

var (
	commitMessage string
	stagedOnly    bool
	allowEmpty    bool
)

// commitCmd commits directly through the executor, bypassing synthesis.
var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Create a commit with retry and validation handling",
	Long: `Create a commit through the retry-aware executor. The message is
validated against the configured level before anything runs.

Examples:
  # Stage everything and commit
  commitd commit -m "fix: resolve lock contention in queue"

  # Commit only what is already staged
  commitd commit -m "docs: update README" --staged-only`,
	RunE: runCommit,
}

func init() {
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "commit message")
	commitCmd.Flags().BoolVar(&stagedOnly, "staged-only", false, "commit only staged changes")
	commitCmd.Flags().BoolVar(&allowEmpty, "allow-empty", false, "allow a commit with no changes")
	_ = commitCmd.MarkFlagRequired("message")
}

func runCommit(cmd *cobra.Command, args []string) error {
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	sys, err := startSystem(ctx, logger)
	if err != nil {
		return err
	}
	defer sys.Shutdown(ctx)

	if !stagedOnly {
		if err := sys.Executor.StageAll(ctx); err != nil {
			return fmt.Errorf("staging changes: %w", err)
		}
	}

	result := sys.Executor.Commit(ctx, commitMessage, commit.Options{
		StagedOnly: true,
		AllowEmpty: allowEmpty,
	})
	if !result.Success {
		if result.Validation != nil && !result.Validation.IsValid {
			for _, e := range result.Validation.Errors {
				fmt.Fprintf(os.Stderr, "validation: %s\n", e)
			}
		}
		return fmt.Errorf("commit failed: %s", result.Err)
	}

	fmt.Printf("Committed %s", shortHash(result.CommitHash))
	if result.Signed {
		fmt.Print(" (signed)")
	}
	if len(result.Attempts) > 0 {
		fmt.Printf(" after %d retries", len(result.Attempts))
	}
	fmt.Println()
	return nil
}

// watchCmd tails the events file and commits per the configured frequency.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch for task completion events and commit automatically",
	Long: `Watch the state directory's events file for task completion events
appended by the spec workflow and handle each one according to the
configured commit frequency. Runs until interrupted.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sys, err := startSystem(ctx, logger)
	if err != nil {
		return err
	}
	defer sys.Shutdown(context.Background())

	stateDir := filepath.Join(sys.Repo.Root(), config.StateDirName)
	if p := sys.Config.Path(); p != "" {
		stateDir = filepath.Dir(p)
	}

	watcher, err := hook.NewWatcher(stateDir, sys.Hook, logger.Named("watcher"))
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	fmt.Printf("Watching %s/%s for task completions. Ctrl-C to stop.\n", stateDir, hook.EventsFileName)
	<-ctx.Done()
	fmt.Println("Shutting down.")
	return nil
}

// statusCmd prints repository, hook, and queue state.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show automation status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	sys, err := startSystem(ctx, logger)
	if err != nil {
		return err
	}
	defer sys.Shutdown(ctx)

	return printJSON(struct {
		Repository *orchestrate.RepoStatus           `json:"repository"`
		Hook       hook.Status                       `json:"hook"`
		Health     *bootstrap.Report                 `json:"health"`
		Services   map[string]bootstrap.ServiceState `json:"services"`
	}{
		Repository: sys.Orch.Status(ctx),
		Hook:       sys.Hook.HookStatus(),
		Health:     sys.HealthCheck(ctx),
		Services:   sys.States(),
	})
}

// validateCmd checks the whole setup and exits non-zero when invalid.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and repository setup",
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	sys, err := startSystem(ctx, logger)
	if err != nil {
		return err
	}
	defer sys.Shutdown(ctx)

	report := sys.Orch.ValidateSetup(ctx)
	for _, e := range report.Errors {
		fmt.Printf("error:   %s\n", e)
	}
	for _, w := range report.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	for _, i := range report.Info {
		fmt.Printf("info:    %s\n", i)
	}
	if !report.Valid {
		return fmt.Errorf("setup is not valid")
	}
	fmt.Println("Setup is valid.")
	return nil
}

var consentPermanent bool

// enableCmd turns automation on and records consent.
var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable automatic commits",
	RunE:  runEnable,
}

// disableCmd turns automation off, optionally permanently.
var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable automatic commits",
	RunE:  runDisable,
}

func init() {
	enableCmd.Flags().BoolVar(&consentPermanent, "permanent", false, "record the choice as permanent")
	disableCmd.Flags().BoolVar(&consentPermanent, "permanent", false, "never ask about enabling again")
}

func runEnable(cmd *cobra.Command, args []string) error {
	return setEnabled(true)
}

func runDisable(cmd *cobra.Command, args []string) error {
	return setEnabled(false)
}

func setEnabled(enabled bool) error {
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	cfg := config.Load(cwd, logger)
	cfg.Enabled = enabled
	cfg.Consent = config.Consent{
		Confirmed:   true,
		Enabled:     enabled,
		Permanent:   consentPermanent,
		ConfirmedAt: time.Now(),
	}

	path := cfg.Path()
	if path == "" {
		path = config.DefaultPath(cwd)
	}
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("saving configuration: %w", err)
	}

	if enabled {
		fmt.Printf("Automation enabled (%s).\n", path)
	} else {
		scope := "until re-enabled"
		if consentPermanent {
			scope = "permanently"
		}
		fmt.Printf("Automation disabled %s (%s).\n", scope, path)
	}
	return nil
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
