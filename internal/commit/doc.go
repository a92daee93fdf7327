// Package commit executes git commits with validation, retry, and signing
// support.
//
// Failures are classified by substring into retry reasons; retryable
// failures back off exponentially and trigger targeted remediation (stale
// lock removal, gpg-agent restart) before the next attempt. Every execution
// is recorded in a bounded in-memory history for statistics.
package commit
