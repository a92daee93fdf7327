// Package message synthesizes and validates conventional commit messages.
//
// Synthesis extracts an action/object pair from task text against a fixed
// verb taxonomy and merges it with the change classification; a quality gate
// rejects generic output in favor of a title-derived fallback. Validation is
// a separate, idempotent pass with configurable strictness.
package message
