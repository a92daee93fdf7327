package message

import (
	"time"

	"github.com/fyrsmithlabs/commitd/internal/classify"
)

// TaskContext carries the task information a commit message is derived from.
type TaskContext struct {
	TaskID          string    `json:"task_id"`
	TaskTitle       string    `json:"task_title"`
	TaskDescription string    `json:"task_description,omitempty"`
	SpecName        string    `json:"spec_name,omitempty"`
	CompletedAt     time.Time `json:"completed_at,omitempty"`
}

// Components is the result of message synthesis.
type Components struct {
	CommitType       classify.CommitType `json:"commit_type"`
	Action           string              `json:"action"`
	Description      string              `json:"description"`
	Confidence       float64             `json:"confidence"`
	RawMessage       string              `json:"raw_message"`
	FormattedMessage string              `json:"formatted_message"`
}

// Level is the validation strictness applied to candidate messages.
type Level string

const (
	LevelStrict   Level = "strict"
	LevelStandard Level = "standard"
	LevelLenient  Level = "lenient"
	LevelDisabled Level = "disabled"
)

// ParseLevel maps a configuration string to a Level, defaulting to standard.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelStrict, LevelStandard, LevelLenient, LevelDisabled:
		return Level(s)
	default:
		return LevelStandard
	}
}

// Validation is the outcome of one validation pass.
type Validation struct {
	IsValid     bool     `json:"is_valid"`
	Errors      []string `json:"errors,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Score       float64  `json:"score"`
}

// DefaultAllowedTypes is the closed commit-type vocabulary validation
// accepts without a warning.
var DefaultAllowedTypes = []string{
	"feat", "fix", "docs", "style", "refactor", "test", "chore",
}
