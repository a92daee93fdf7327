// Package orchestrate runs the task-completion commit pipeline end to end:
// configuration gate, change analysis, message synthesis, confirmation,
// staging and commit, and rollback on late failure.
package orchestrate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitd/internal/classify"
	"github.com/fyrsmithlabs/commitd/internal/commit"
	"github.com/fyrsmithlabs/commitd/internal/config"
	"github.com/fyrsmithlabs/commitd/internal/confirm"
	"github.com/fyrsmithlabs/commitd/internal/gitexec"
	"github.com/fyrsmithlabs/commitd/internal/message"
)

const historyLimit = 50

// analyzer is the change-detection seam.
type analyzer interface {
	Analyze(ctx context.Context, paths ...string) (*classify.ChangeAnalysis, error)
}

// synthesizer is the message-generation seam.
type synthesizer interface {
	Synthesize(task message.TaskContext, analysis *classify.ChangeAnalysis) message.Components
}

// committer is the commit-execution seam.
type committer interface {
	Commit(ctx context.Context, msg string, opts commit.Options) *commit.ExecutionResult
	StageAll(ctx context.Context, paths ...string) error
	ValidateRepoState(ctx context.Context) *commit.RepoState
	Stats() commit.Stats
}

// Orchestrator wires the pipeline components together.
type Orchestrator struct {
	cfg       *config.Config
	repo      *gitexec.Repo
	runner    gitexec.Runner
	analyzer  analyzer
	synth     synthesizer
	committer committer
	confirmer confirm.Confirmer
	logger    *zap.Logger

	mu      sync.Mutex
	history []*Operation
	last    *Operation
}

// New builds an Orchestrator over an open repository.
func New(repo *gitexec.Repo, cfg *config.Config, confirmer confirm.Confirmer, logger *zap.Logger) (*Orchestrator, error) {
	if repo == nil {
		return nil, fmt.Errorf("orchestrate: nil repository")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if confirmer == nil {
		confirmer = confirm.Declining{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	classifier, err := classify.NewClassifier(repo, logger.Named("classify"))
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg:       cfg,
		repo:      repo,
		runner:    repo.Runner(),
		analyzer:  classifier,
		synth:     message.NewSynthesizer(cfg.Automation.MaxMessageLength, logger.Named("message")),
		committer: commit.NewExecutor(repo, cfg.Commit, logger.Named("commit")),
		confirmer: confirmer,
		logger:    logger,
	}, nil
}

// ProcessTaskCompletion runs the full pipeline for one completed task. It
// never returns a nil Operation; failures are reported through the
// operation's Result and Err fields.
func (o *Orchestrator) ProcessTaskCompletion(ctx context.Context, pctx ProcessContext) *Operation {
	op := &Operation{
		ID:        uuid.New(),
		TaskID:    pctx.TaskID,
		TaskTitle: pctx.TaskTitle,
		Timestamp: time.Now(),
	}
	defer o.record(op)

	o.logger.Info("processing task completion",
		zap.String("task_id", pctx.TaskID),
		zap.String("task_title", pctx.TaskTitle),
		zap.Bool("dry_run", pctx.DryRun))

	if !o.gate(op) {
		return op
	}

	analysis, err := o.analyzer.Analyze(ctx)
	if err != nil {
		op.Result = ResultError
		op.Err = fmt.Sprintf("detecting changes: %v", err)
		return op
	}
	if analysis.TotalFiles == 0 {
		op.Result = ResultNoChanges
		o.logger.Info("no file changes detected, skipping commit")
		return op
	}
	o.recordFiles(op, analysis)

	op.Message = o.buildMessage(pctx, analysis)

	if !o.confirmed(ctx, pctx, op) {
		op.Result = ResultCancelled
		o.logger.Info("commit declined by user")
		return op
	}

	if pctx.DryRun {
		op.Result = ResultSuccess
		o.logger.Info("dry run, would commit", zap.String("message", op.Message))
		return op
	}

	o.execute(ctx, op, analysis)
	return op
}

// gate checks configuration validity and the enabled flag.
func (o *Orchestrator) gate(op *Operation) bool {
	validation := o.cfg.Validate()
	if !validation.Valid {
		op.Result = ResultError
		op.Err = "invalid configuration: " + strings.Join(validation.Errors, ", ")
		o.logger.Error("configuration invalid", zap.Strings("errors", validation.Errors))
		return false
	}
	if !o.cfg.Enabled {
		op.Result = ResultDisabled
		o.logger.Info("automation disabled, skipping commit")
		return false
	}
	return true
}

func (o *Orchestrator) recordFiles(op *Operation, analysis *classify.ChangeAnalysis) {
	for _, fc := range analysis.Files {
		switch fc.Status {
		case classify.StatusAdded, classify.StatusUnknown:
			op.FilesAdded = append(op.FilesAdded, fc.Path)
		case classify.StatusDeleted:
			op.FilesDeleted = append(op.FilesDeleted, fc.Path)
		default:
			op.FilesModified = append(op.FilesModified, fc.Path)
		}
	}
}

// buildMessage synthesizes a commit message, falling back to the configured
// template when synthesis produces nothing usable.
func (o *Orchestrator) buildMessage(pctx ProcessContext, analysis *classify.ChangeAnalysis) string {
	if o.cfg.Automation.UseIntelligentMessages {
		components := o.synth.Synthesize(message.TaskContext{
			TaskID:          pctx.TaskID,
			TaskTitle:       pctx.TaskTitle,
			TaskDescription: pctx.TaskDescription,
			SpecName:        pctx.SpecName,
			CompletedAt:     time.Now(),
		}, analysis)
		if components.FormattedMessage != "" {
			o.logger.Info("synthesized commit message",
				zap.String("message", components.FormattedMessage),
				zap.Float64("confidence", components.Confidence))
			return components.FormattedMessage
		}
	}
	return o.fallbackMessage(pctx)
}

func (o *Orchestrator) fallbackMessage(pctx ProcessContext) string {
	template := o.cfg.Automation.FallbackMessageTemplate
	if template == "" {
		template = "feat: Complete task {task_id} - {task_title}"
	}
	msg := strings.ReplaceAll(template, "{task_id}", pctx.TaskID)
	return strings.ReplaceAll(msg, "{task_title}", pctx.TaskTitle)
}

// confirmed resolves whether the commit may proceed, prompting when required.
func (o *Orchestrator) confirmed(ctx context.Context, pctx ProcessContext, op *Operation) bool {
	required := o.cfg.Automation.RequireConfirmation
	if pctx.RequireConfirmation != nil {
		required = *pctx.RequireConfirmation
	}
	if !required || pctx.DryRun || pctx.ForceCommit {
		return true
	}

	ok, err := o.confirmer.ConfirmCommit(ctx, confirm.CommitSummary{
		Message:       op.Message,
		FilesAdded:    len(op.FilesAdded),
		FilesModified: len(op.FilesModified),
		FilesDeleted:  len(op.FilesDeleted),
	})
	if err != nil {
		o.logger.Warn("confirmation prompt failed, declining", zap.Error(err))
		return false
	}
	return ok
}

// execute stages, commits, and rolls back on late failure.
func (o *Orchestrator) execute(ctx context.Context, op *Operation, analysis *classify.ChangeAnalysis) {
	if o.cfg.Automation.AutoAddFiles {
		paths := make([]string, 0, len(analysis.Files))
		for _, fc := range analysis.Files {
			if fc.Status != classify.StatusDeleted {
				paths = append(paths, fc.Path)
			}
		}
		if err := o.committer.StageAll(ctx, paths...); err != nil {
			op.Result = ResultError
			op.Err = fmt.Sprintf("staging files: %v", err)
			return
		}
	}

	result := o.committer.Commit(ctx, op.Message, commit.Options{StagedOnly: true})
	op.Validation = result.Validation
	op.CommitHash = result.CommitHash
	if result.Success {
		op.Result = ResultSuccess
		o.logger.Info("commit created",
			zap.String("hash", shortHash(result.CommitHash)),
			zap.String("task_id", op.TaskID))
		return
	}

	op.Err = result.Err
	if op.CommitHash != "" {
		o.rollback(ctx, op)
		return
	}
	op.Result = ResultError
}

// rollback hard-resets the commit that was created before the failure.
func (o *Orchestrator) rollback(ctx context.Context, op *Operation) {
	info := &RollbackInfo{
		Attempted:      true,
		OriginalCommit: op.CommitHash,
		Timestamp:      time.Now(),
	}
	op.Rollback = info

	o.logger.Info("rolling back commit", zap.String("hash", shortHash(op.CommitHash)))

	res, err := o.runner.Run(ctx, "reset", "--hard", "HEAD~1")
	if err != nil {
		info.Err = err.Error()
		op.Result = ResultError
		return
	}
	if !res.OK() {
		info.Err = res.Stderr
		op.Result = ResultError
		o.logger.Error("rollback failed", zap.String("stderr", res.Stderr))
		return
	}

	info.Success = true
	op.Result = ResultRolledBack
	o.logger.Info("rollback successful")
}

func (o *Orchestrator) record(op *Operation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.last = op
	o.history = append(o.history, op)
	if len(o.history) > historyLimit {
		o.history = o.history[len(o.history)-historyLimit:]
	}
}

// LastOperation returns the most recent operation, or nil.
func (o *Orchestrator) LastOperation() *Operation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// History returns up to limit recent operations, oldest first.
func (o *Orchestrator) History(limit int) []*Operation {
	o.mu.Lock()
	defer o.mu.Unlock()
	if limit <= 0 || limit > len(o.history) {
		limit = len(o.history)
	}
	out := make([]*Operation, limit)
	copy(out, o.history[len(o.history)-limit:])
	return out
}

// ValidateSetup aggregates diagnostics from config, repository, and
// commit-readiness probes.
func (o *Orchestrator) ValidateSetup(ctx context.Context) *SetupReport {
	report := &SetupReport{Valid: true}

	cfgValidation := o.cfg.Validate()
	if !cfgValidation.Valid {
		report.Valid = false
		report.Errors = append(report.Errors, cfgValidation.Errors...)
	}
	report.Warnings = append(report.Warnings, cfgValidation.Warnings...)

	state := o.committer.ValidateRepoState(ctx)
	if !state.Ready {
		report.Valid = false
		report.Errors = append(report.Errors, state.Issues...)
	}
	report.Warnings = append(report.Warnings, state.Warnings...)

	if o.cfg.Enabled {
		report.Info = append(report.Info, "automation is enabled")
	} else {
		report.Warnings = append(report.Warnings, "automation is currently disabled")
	}
	if o.cfg.Consent.Confirmed {
		report.Info = append(report.Info, "first-run consent recorded")
	} else {
		report.Info = append(report.Info, "first-time setup needed")
	}
	if confirm.IsCI() {
		report.Info = append(report.Info, "CI environment detected")
	}

	return report
}

// Status snapshots repository and orchestrator state.
func (o *Orchestrator) Status(ctx context.Context) *RepoStatus {
	status := &RepoStatus{
		Root:              o.repo.Root(),
		EmptyRepo:         o.repo.IsEmpty(),
		AutomationEnabled: o.cfg.Enabled,
		LastOperation:     o.LastOperation(),
		CommitStats:       o.committer.Stats(),
	}
	if branch, err := o.repo.CurrentBranch(); err == nil {
		status.Branch = branch
	}

	o.mu.Lock()
	status.Operations = len(o.history)
	o.mu.Unlock()

	return status
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
