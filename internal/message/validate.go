package message

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Default subject length bounds.
const (
	DefaultMinSubjectLength = 10
	DefaultMaxBodyLineLength = 72
)

var (
	typePrefixRe     = regexp.MustCompile(`^([a-z]+)(\([^)]+\))?: .+`)
	capitalExemptRe  = regexp.MustCompile(`^[a-z]+(\([^)]+\))?: [A-Z]`)
	prefixOnlyRe     = regexp.MustCompile(`(?i)^[a-z]+(\([^)]+\))?: `)
)

// Validator checks candidate commit messages against length, prefix, and
// formatting rules at a configurable strictness level. Validation is a pure
// function of the message and the Validator's fields.
type Validator struct {
	Level             Level
	MinSubjectLength  int
	MaxSubjectLength  int
	RequireTypePrefix bool
	AllowedTypes      []string
}

// NewValidator builds a Validator with standard defaults at the given level.
func NewValidator(level Level) *Validator {
	return &Validator{
		Level:             level,
		MinSubjectLength:  DefaultMinSubjectLength,
		MaxSubjectLength:  DefaultMaxSubjectLength,
		RequireTypePrefix: true,
		AllowedTypes:      DefaultAllowedTypes,
	}
}

// Validate scores message against the configured rules.
func (v *Validator) Validate(msg string) *Validation {
	validation := &Validation{IsValid: true}

	if v.Level == LevelDisabled {
		validation.Score = 1.0
		return validation
	}

	if strings.TrimSpace(msg) == "" {
		validation.IsValid = false
		validation.Errors = append(validation.Errors, "commit message cannot be empty")
		return validation
	}

	msg = strings.TrimSpace(msg)
	lines := strings.Split(msg, "\n")
	subject := lines[0]

	v.checkLength(subject, validation)
	if v.RequireTypePrefix {
		v.checkTypePrefix(subject, validation)
	}
	v.checkFormat(subject, lines, validation)

	validation.Score = v.score(subject, lines, validation)
	v.applyLevel(validation)
	return validation
}

func (v *Validator) checkLength(subject string, validation *Validation) {
	if len(subject) > v.MaxSubjectLength {
		text := fmt.Sprintf("subject line too long: %d > %d characters", len(subject), v.MaxSubjectLength)
		if v.Level == LevelStrict {
			validation.Errors = append(validation.Errors, text)
		} else {
			validation.Warnings = append(validation.Warnings, text)
		}
	}
	if len(subject) < v.MinSubjectLength {
		validation.Errors = append(validation.Errors,
			fmt.Sprintf("subject line too short: %d < %d characters", len(subject), v.MinSubjectLength))
	}
}

func (v *Validator) checkTypePrefix(subject string, validation *Validation) {
	m := typePrefixRe.FindStringSubmatch(strings.ToLower(subject))
	if m == nil {
		if v.Level == LevelStrict {
			validation.Errors = append(validation.Errors,
				"subject must follow format 'type(scope): description' or 'type: description'")
		} else {
			validation.Warnings = append(validation.Warnings,
				"consider using conventional commit format: 'type: description'")
			validation.Suggestions = append(validation.Suggestions,
				fmt.Sprintf("example: 'feat: %s' or 'fix: %s'", subject, subject))
		}
		return
	}

	commitType := m[1]
	for _, allowed := range v.AllowedTypes {
		if commitType == allowed {
			return
		}
	}
	if v.Level == LevelStrict {
		validation.Errors = append(validation.Errors,
			fmt.Sprintf("invalid commit type %q, allowed: %s", commitType, strings.Join(v.AllowedTypes, ", ")))
	} else {
		validation.Warnings = append(validation.Warnings,
			fmt.Sprintf("unusual commit type %q, common types: %s", commitType, strings.Join(v.AllowedTypes, ", ")))
	}
}

func (v *Validator) checkFormat(subject string, lines []string, validation *Validation) {
	if subject != "" && !unicode.IsUpper(rune(subject[0])) && v.Level != LevelLenient {
		// The conventional "type: Description" form is exempt.
		if !capitalExemptRe.MatchString(subject) {
			validation.Warnings = append(validation.Warnings, "subject line should start with a capital letter")
		}
	}

	if strings.HasSuffix(subject, ".") {
		validation.Warnings = append(validation.Warnings, "subject line should not end with a period")
	}

	if len(lines) > 1 && strings.TrimSpace(lines[1]) != "" {
		validation.Warnings = append(validation.Warnings, "include blank line between subject and body")
	}

	for i, line := range lines {
		if i < 2 {
			continue
		}
		if len(line) > DefaultMaxBodyLineLength {
			validation.Warnings = append(validation.Warnings,
				fmt.Sprintf("body line %d is long: %d characters", i+1, len(line)))
		}
	}
}

func (v *Validator) score(subject string, lines []string, validation *Validation) float64 {
	score := 1.0
	score -= float64(len(validation.Errors)) * 0.3
	score -= float64(len(validation.Warnings)) * 0.1

	if prefixOnlyRe.MatchString(subject) {
		score += 0.1
	}
	if len(subject) >= v.MinSubjectLength && len(subject) <= 50 {
		score += 0.1
	}
	for _, line := range lines[min(2, len(lines)):] {
		if strings.TrimSpace(line) != "" {
			score += 0.1
			break
		}
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// applyLevel resolves final validity per the configured strictness.
func (v *Validator) applyLevel(validation *Validation) {
	switch v.Level {
	case LevelLenient:
		var hard []string
		for _, e := range validation.Errors {
			lower := strings.ToLower(e)
			if strings.Contains(lower, "empty") || strings.Contains(lower, "too short") {
				hard = append(hard, e)
			}
		}
		validation.Errors = hard
		validation.IsValid = len(hard) == 0
	case LevelStrict:
		critical := 0
		for _, w := range validation.Warnings {
			lower := strings.ToLower(w)
			if strings.Contains(lower, "too long") || strings.Contains(lower, "invalid") {
				critical++
			}
		}
		validation.IsValid = len(validation.Errors) == 0 && critical == 0
	default:
		validation.IsValid = len(validation.Errors) == 0
	}
}

// AutoCorrect repairs the common validation failures: missing prefix
// (inferred from content), over-length subject, under-length subject, and
// trailing period. It is a single-shot best effort, not a guarantee.
func (v *Validator) AutoCorrect(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "chore: Update files"
	}

	if v.RequireTypePrefix && !prefixOnlyRe.MatchString(msg) {
		lower := strings.ToLower(msg)
		switch {
		case containsAny(lower, "add", "create", "implement", "new"):
			msg = "feat: " + msg
		case containsAny(lower, "fix", "bug", "issue", "error"):
			msg = "fix: " + msg
		case containsAny(lower, "update", "change", "modify"):
			msg = "chore: " + msg
		case containsAny(lower, "test", "spec"):
			msg = "test: " + msg
		case containsAny(lower, "doc", "readme", "comment"):
			msg = "docs: " + msg
		default:
			msg = "chore: " + msg
		}
	}

	if len(msg) > v.MaxSubjectLength {
		msg = msg[:v.MaxSubjectLength-3] + "..."
	}
	if len(msg) < v.MinSubjectLength {
		msg += " - auto-generated fallback message"
	}
	msg = strings.TrimSuffix(msg, ".")
	return msg
}
