// Package gitexec provides Git command execution and repository introspection
// for commitd.
//
// Mutating operations (add, commit, reset) run through the real git binary via
// a Runner so that commit signing, hooks and index locking behave exactly as
// they do for a human operator. Read-only introspection (repository discovery,
// HEAD resolution, branch detection) uses go-git to avoid subprocess overhead
// on hot paths.
package gitexec
