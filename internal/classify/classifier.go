package classify

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitd/internal/gitexec"
	"github.com/fyrsmithlabs/commitd/internal/ignore"
)

// Classifier inspects a repository's working tree and produces a
// ChangeAnalysis used downstream for message synthesis.
type Classifier struct {
	runner  gitexec.Runner
	matcher *ignore.Matcher
	logger  *zap.Logger
}

// NewClassifier builds a Classifier over repo. Ignore patterns are loaded
// from the repository's .gitignore; a missing file yields an empty matcher.
func NewClassifier(repo *gitexec.Repo, logger *zap.Logger) (*Classifier, error) {
	if repo == nil {
		return nil, fmt.Errorf("classify: nil repository")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	matcher, err := ignore.LoadRepo(repo.Root())
	if err != nil {
		return nil, fmt.Errorf("classify: load ignore patterns: %w", err)
	}
	return &Classifier{runner: repo.Runner(), matcher: matcher, logger: logger}, nil
}

// DetectChanges lists every path with staged, unstaged, or untracked status,
// excluding ignored paths. Renames report the new path.
func (c *Classifier) DetectChanges(ctx context.Context) ([]string, error) {
	statuses, err := c.statusMap(ctx)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(statuses.order))
	for _, p := range statuses.order {
		if c.matcher.Ignored(p) {
			continue
		}
		paths = append(paths, p)
	}
	c.logger.Debug("detected changed files", zap.Int("count", len(paths)))
	return paths, nil
}

// Analyze classifies the given paths and aggregates them into a
// ChangeAnalysis. With no paths it analyzes everything DetectChanges finds.
// Zero changed paths is not an error: the result is chore at 0.1 confidence.
func (c *Classifier) Analyze(ctx context.Context, paths ...string) (*ChangeAnalysis, error) {
	statuses, err := c.statusMap(ctx)
	if err != nil {
		return nil, err
	}

	if len(paths) == 0 {
		for _, p := range statuses.order {
			if !c.matcher.Ignored(p) {
				paths = append(paths, p)
			}
		}
	}

	analysis := &ChangeAnalysis{
		PrimaryType:    TypeChore,
		TypeConfidence: 0.1,
		Summary:        "No file changes detected",
	}
	if len(paths) == 0 {
		return analysis, nil
	}

	votes := make(map[CommitType]float64)
	areaSet := make(map[FileType]bool)
	for _, p := range paths {
		status, ok := statuses.byPath[p]
		if !ok {
			// Caller-supplied path the porcelain output does not cover.
			status = StatusModified
		}
		fc := FileChange{
			Path:     p,
			Status:   status,
			FileType: fileTypeFor(p),
		}
		fc.SuggestedType, fc.Confidence = suggestType(fc)

		analysis.Files = append(analysis.Files, fc)
		areaSet[fc.FileType] = true
		votes[fc.SuggestedType] += fc.Confidence
	}
	analysis.AffectedAreas = sortAreas(areaSet)
	analysis.TotalFiles = len(analysis.Files)

	analysis.PrimaryType, analysis.TypeConfidence = tally(votes)
	analysis.Summary = summarize(analysis)
	analysis.HasBreakingChanges = detectBreaking(analysis)

	c.logger.Debug("analyzed changes",
		zap.Int("files", analysis.TotalFiles),
		zap.String("primary_type", string(analysis.PrimaryType)),
		zap.Float64("confidence", analysis.TypeConfidence))
	return analysis, nil
}

// tally picks the commit type with the largest vote mass. Ties break by the
// fixed type ordering so results are deterministic.
func tally(votes map[CommitType]float64) (CommitType, float64) {
	if len(votes) == 0 {
		return TypeChore, 0.1
	}
	var winner CommitType
	var winnerMass, total float64
	for _, ct := range allCommitTypes {
		mass, ok := votes[ct]
		if !ok {
			continue
		}
		total += mass
		if winner == "" || mass > winnerMass {
			winner = ct
			winnerMass = mass
		}
	}
	confidence := winnerMass / total
	if confidence > 1.0 {
		confidence = 1.0
	}
	return winner, confidence
}

// summarize renders a human-readable description of the change set.
func summarize(analysis *ChangeAnalysis) string {
	if len(analysis.Files) == 0 {
		return "No file changes detected"
	}
	if len(analysis.Files) == 1 {
		fc := analysis.Files[0]
		return fmt.Sprintf("Modified %s file: %s", fc.FileType, path.Base(fc.Path))
	}
	if len(analysis.AffectedAreas) == 1 {
		return fmt.Sprintf("Modified %d %s files", len(analysis.Files), analysis.AffectedAreas[0])
	}
	areas := make([]string, 0, 3)
	for i, a := range analysis.AffectedAreas {
		if i == 3 {
			break
		}
		areas = append(areas, string(a))
	}
	joined := strings.Join(areas, ", ")
	if extra := len(analysis.AffectedAreas) - 3; extra > 0 {
		joined += fmt.Sprintf(" and %d other areas", extra)
	}
	return fmt.Sprintf("Modified %d files across %s", len(analysis.Files), joined)
}

// detectBreaking flags likely breaking changes: a breaking keyword anywhere
// in a path, or a deleted frontend/backend file.
func detectBreaking(analysis *ChangeAnalysis) bool {
	for _, fc := range analysis.Files {
		if containsBreakingKeyword(fc.Path) {
			return true
		}
		if fc.Status == StatusDeleted &&
			(fc.FileType == FileTypeFrontend || fc.FileType == FileTypeBackend) {
			return true
		}
	}
	return false
}

// statusSet is one parse of `git status --porcelain`: statuses by path plus
// the order paths appeared in.
type statusSet struct {
	byPath map[string]FileStatus
	order  []string
}

func (c *Classifier) statusMap(ctx context.Context) (*statusSet, error) {
	res, err := c.runner.Run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("classify: git status: %w", err)
	}
	if !res.OK() {
		return nil, fmt.Errorf("classify: git status failed: %s", res.Output())
	}

	set := &statusSet{byPath: make(map[string]FileStatus)}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if len(line) < 4 {
			continue
		}
		code := line[:2]
		p := strings.TrimSpace(line[3:])
		status := statusFromCode(code)
		if status == StatusRenamed {
			// Porcelain renames read "R  old -> new"; track the new path.
			if idx := strings.Index(p, " -> "); idx >= 0 {
				p = p[idx+4:]
			}
		}
		p = strings.Trim(p, `"`)
		if _, seen := set.byPath[p]; !seen {
			set.order = append(set.order, p)
		}
		set.byPath[p] = status
	}
	return set, nil
}

// statusFromCode maps a two-character porcelain code to a FileStatus.
func statusFromCode(code string) FileStatus {
	if code == "??" {
		return StatusUnknown
	}
	for _, ch := range code {
		switch ch {
		case 'A':
			return StatusAdded
		case 'D':
			return StatusDeleted
		case 'R':
			return StatusRenamed
		}
	}
	if strings.ContainsRune(code, 'M') {
		return StatusModified
	}
	return StatusModified
}
