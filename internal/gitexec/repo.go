package gitexec

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"
)

var (
	// ErrNotRepository indicates the path is not inside a Git working copy.
	ErrNotRepository = errors.New("not a git repository")

	// ErrDetachedHead indicates HEAD does not point to a branch.
	ErrDetachedHead = errors.New("detached HEAD")
)

// Repo is a Git working copy with a command runner attached.
type Repo struct {
	root   string
	runner Runner
	repo   *git.Repository
	logger *zap.Logger
}

// Open discovers the repository containing path by walking upward, the same
// way git itself resolves a working directory.
func Open(path string, logger *zap.Logger) (*Repo, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, path)
		}
		return nil, fmt.Errorf("opening repository at %s: %w", path, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("resolving worktree for %s: %w", path, err)
	}
	root := wt.Filesystem.Root()

	return &Repo{
		root:   root,
		runner: NewCommandRunner(root, logger),
		repo:   repo,
		logger: logger,
	}, nil
}

// Root returns the absolute path of the working tree root.
func (r *Repo) Root() string {
	return r.root
}

// GitDir returns the repository metadata directory.
func (r *Repo) GitDir() string {
	return filepath.Join(r.root, ".git")
}

// Runner returns the command runner rooted at the working tree.
func (r *Repo) Runner() Runner {
	return r.runner
}

// IsEmpty reports whether the repository has no commits yet.
func (r *Repo) IsEmpty() bool {
	_, err := r.repo.Head()
	return errors.Is(err, plumbing.ErrReferenceNotFound)
}

// Head resolves the current HEAD commit hash.
func (r *Repo) Head() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// CurrentBranch returns the short name of the checked-out branch.
func (r *Repo) CurrentBranch() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	if !ref.Name().IsBranch() {
		return "", ErrDetachedHead
	}
	return ref.Name().Short(), nil
}

// HasStagedChanges reports whether the index differs from HEAD.
//
// Uses "git diff --cached --quiet": exit 0 means no staged changes,
// exit 1 means staged changes exist.
func (r *Repo) HasStagedChanges(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	result, err := r.runner.Run(ctx, "diff", "--cached", "--quiet")
	if err != nil {
		return false, err
	}
	return result.ExitCode != 0, nil
}
