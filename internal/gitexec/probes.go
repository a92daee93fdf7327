package gitexec

import (
	"context"
	"os/exec"
	"strings"
)

// configValue reads a git config key, returning "" when unset.
func (r *Repo) configValue(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	result, err := r.runner.Run(ctx, "config", key)
	if err != nil {
		return "", err
	}
	if !result.OK() {
		// git config exits 1 when the key is unset.
		return "", nil
	}
	return strings.TrimSpace(result.Stdout), nil
}

// UserName returns the configured commit author name, "" when unset.
func (r *Repo) UserName(ctx context.Context) (string, error) {
	return r.configValue(ctx, "user.name")
}

// UserEmail returns the configured commit author email, "" when unset.
func (r *Repo) UserEmail(ctx context.Context) (string, error) {
	return r.configValue(ctx, "user.email")
}

// SigningKey returns the configured signing key, "" when unset.
func (r *Repo) SigningKey(ctx context.Context) (string, error) {
	return r.configValue(ctx, "user.signingkey")
}

// Version returns the git binary version string.
func (r *Repo) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	result, err := r.runner.Run(ctx, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

// GPGAgentAlive pings the GPG agent used for commit signing.
func GPGAgentAlive(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "gpg-connect-agent", "/bye")
	return cmd.Run() == nil
}

// RestartGPGAgent asks the GPG agent to reload. Best effort: a dead or
// missing agent is reported, not fatal.
func RestartGPGAgent(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "gpg-connect-agent", "reloadagent", "/bye")
	return cmd.Run()
}
