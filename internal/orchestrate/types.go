package orchestrate

import (
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/commitd/internal/commit"
	"github.com/fyrsmithlabs/commitd/internal/message"
)

// Result is the outcome code of one orchestrated operation.
type Result string

const (
	ResultSuccess    Result = "success"
	ResultNoChanges  Result = "no_changes"
	ResultDisabled   Result = "disabled"
	ResultError      Result = "error"
	ResultRolledBack Result = "rolled_back"
	ResultCancelled  Result = "cancelled"
)

// RollbackInfo records a rollback attempt after a failed commit.
type RollbackInfo struct {
	Attempted      bool      `json:"attempted"`
	Success        bool      `json:"success"`
	Err            string    `json:"error,omitempty"`
	OriginalCommit string    `json:"original_commit"`
	Timestamp      time.Time `json:"timestamp"`
}

// Operation is the full record of one orchestrated task-completion commit.
type Operation struct {
	ID            uuid.UUID           `json:"id"`
	TaskID        string              `json:"task_id"`
	TaskTitle     string              `json:"task_title"`
	Message       string              `json:"message"`
	FilesAdded    []string            `json:"files_added,omitempty"`
	FilesModified []string            `json:"files_modified,omitempty"`
	FilesDeleted  []string            `json:"files_deleted,omitempty"`
	CommitHash    string              `json:"commit_hash,omitempty"`
	Timestamp     time.Time           `json:"timestamp"`
	Result        Result              `json:"result"`
	Err           string              `json:"error,omitempty"`
	Rollback      *RollbackInfo       `json:"rollback,omitempty"`
	Validation    *message.Validation `json:"validation,omitempty"`
}

// ProcessContext carries one task-completion request through the pipeline.
type ProcessContext struct {
	TaskID          string
	TaskTitle       string
	TaskDescription string
	SpecName        string
	DryRun          bool
	ForceCommit     bool
	// RequireConfirmation overrides the configured default when non-nil.
	RequireConfirmation *bool
}

// SetupReport aggregates diagnostics across the whole pipeline.
type SetupReport struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Info     []string `json:"info,omitempty"`
}

// RepoStatus is a snapshot of repository and orchestrator state.
type RepoStatus struct {
	Root              string       `json:"root"`
	Branch            string       `json:"branch,omitempty"`
	EmptyRepo         bool         `json:"empty_repo"`
	AutomationEnabled bool         `json:"automation_enabled"`
	LastOperation     *Operation   `json:"last_operation,omitempty"`
	Operations        int          `json:"operations"`
	CommitStats       commit.Stats `json:"commit_stats"`
}
