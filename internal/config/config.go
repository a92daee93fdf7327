// Package config loads, validates, and persists commitd configuration.
//
// Configuration lives in a project-local .commitd directory discovered by
// walking up from the working directory, the same way git finds its own
// metadata. Precedence: COMMITD_* environment variables over the config
// file over hardcoded defaults. A missing or malformed file is not fatal:
// automation simply stays disabled.
package config

import (
	"time"

	"github.com/fyrsmithlabs/commitd/internal/commit"
	"github.com/fyrsmithlabs/commitd/internal/message"
)

// StateDirName is the project-local directory holding config and queue state.
const StateDirName = ".commitd"

// Config file names accepted inside the state directory, in priority order.
const (
	ConfigFileJSON = "config.json"
	ConfigFileYAML = "config.yaml"
)

// Frequency selects when automated commits fire.
type Frequency string

const (
	FrequencyTask  Frequency = "task"
	FrequencyPhase Frequency = "phase"
	FrequencySpec  Frequency = "spec"
)

// Automation holds the workflow policy knobs.
type Automation struct {
	CommitFrequency         Frequency `json:"commit_frequency" koanf:"commit_frequency"`
	AutoAddFiles            bool      `json:"auto_add_files" koanf:"auto_add_files"`
	UseIntelligentMessages  bool      `json:"use_intelligent_messages" koanf:"use_intelligent_messages"`
	AggregateMessages       bool      `json:"aggregate_messages" koanf:"aggregate_messages"`
	IncludeTaskCount        bool      `json:"include_task_count" koanf:"include_task_count"`
	RequireConfirmation     bool      `json:"require_confirmation" koanf:"require_confirmation"`
	FallbackMessageTemplate string    `json:"fallback_message_template" koanf:"fallback_message_template"`
	MaxMessageLength        int       `json:"max_message_length" koanf:"max_message_length"`
	PhaseCompletionModulus  int       `json:"phase_completion_modulus" koanf:"phase_completion_modulus"`
	SpecCompletionKeywords  []string  `json:"spec_completion_keywords" koanf:"spec_completion_keywords"`
}

// Consent records the user's first-run decision.
type Consent struct {
	Confirmed   bool      `json:"confirmed" koanf:"confirmed"`
	Enabled     bool      `json:"enabled" koanf:"enabled"`
	Permanent   bool      `json:"permanent" koanf:"permanent"`
	ConfirmedAt time.Time `json:"confirmed_at,omitempty" koanf:"confirmed_at"`
}

// Config is the full commitd configuration.
type Config struct {
	Enabled    bool          `json:"enabled" koanf:"enabled"`
	Automation Automation    `json:"automation" koanf:"automation"`
	Commit     commit.Config `json:"commit" koanf:"commit"`
	Consent    Consent       `json:"consent" koanf:"consent"`

	// path the config was loaded from; empty when running on defaults.
	path string
	// loadErr captures a malformed-file problem surfaced by Validate.
	loadErr string
}

// Default returns the baseline configuration with automation disabled.
// Enabling is an explicit user decision recorded through Consent.
func Default() *Config {
	return &Config{
		Enabled: false,
		Automation: Automation{
			CommitFrequency:         FrequencyPhase,
			AutoAddFiles:            true,
			UseIntelligentMessages:  true,
			AggregateMessages:       true,
			IncludeTaskCount:        true,
			RequireConfirmation:     true,
			FallbackMessageTemplate: "feat: Complete task {task_id} - {task_title}",
			MaxMessageLength:        message.DefaultMaxSubjectLength,
			PhaseCompletionModulus:  5,
			SpecCompletionKeywords: []string{
				"final", "complete", "finish", "deploy", "integration", "end-to-end",
			},
		},
		Commit: commit.DefaultConfig(),
	}
}

// Path returns the file this configuration was loaded from, if any.
func (c *Config) Path() string {
	return c.path
}
