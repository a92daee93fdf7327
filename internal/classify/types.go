package classify

import (
	"sort"
)

// CommitType is a conventional-commit type.
type CommitType string

const (
	TypeFeat     CommitType = "feat"
	TypeFix      CommitType = "fix"
	TypeDocs     CommitType = "docs"
	TypeStyle    CommitType = "style"
	TypeRefactor CommitType = "refactor"
	TypeTest     CommitType = "test"
	TypeChore    CommitType = "chore"
	TypeCI       CommitType = "ci"
	TypePerf     CommitType = "perf"
	TypeBuild    CommitType = "build"
	TypeRevert   CommitType = "revert"
)

// allCommitTypes lists types in a fixed order used for deterministic
// tie-breaking when vote masses are equal.
var allCommitTypes = []CommitType{
	TypeFeat, TypeFix, TypeDocs, TypeStyle, TypeRefactor,
	TypeTest, TypeChore, TypeCI, TypePerf, TypeBuild, TypeRevert,
}

// FileStatus is the change state of a path in the working copy.
type FileStatus string

const (
	StatusAdded    FileStatus = "added"
	StatusModified FileStatus = "modified"
	StatusDeleted  FileStatus = "deleted"
	StatusRenamed  FileStatus = "renamed"
	StatusUnknown  FileStatus = "unknown"
)

// FileType is the derived category of a changed path.
type FileType string

const (
	FileTypeFrontend FileType = "frontend"
	FileTypeBackend  FileType = "backend"
	FileTypeDocs     FileType = "docs"
	FileTypeTest     FileType = "test"
	FileTypeConfig   FileType = "config"
	FileTypeBuild    FileType = "build"
	FileTypeCI       FileType = "ci"
	FileTypeOther    FileType = "other"
)

// FileChange is one changed path with its classification.
// Immutable once built; not persisted.
type FileChange struct {
	Path          string     `json:"path"`
	Status        FileStatus `json:"status"`
	FileType      FileType   `json:"file_type"`
	SuggestedType CommitType `json:"suggested_type"`
	Confidence    float64    `json:"confidence"`
}

// ChangeAnalysis aggregates classifications over a set of changed paths.
//
// Invariants: TotalFiles == len(Files); TypeConfidence is in [0,1] and is
// the winning type's vote mass divided by total vote mass.
type ChangeAnalysis struct {
	Files              []FileChange `json:"files"`
	PrimaryType        CommitType   `json:"primary_type"`
	TypeConfidence     float64      `json:"type_confidence"`
	AffectedAreas      []FileType   `json:"affected_areas"`
	Summary            string       `json:"summary"`
	HasBreakingChanges bool         `json:"has_breaking_changes"`
	TotalFiles         int          `json:"total_files"`
}

// HasArea reports whether the analysis touched the given area.
func (a *ChangeAnalysis) HasArea(ft FileType) bool {
	for _, area := range a.AffectedAreas {
		if area == ft {
			return true
		}
	}
	return false
}

// sortAreas returns the area set in stable sorted order.
func sortAreas(set map[FileType]bool) []FileType {
	areas := make([]FileType, 0, len(set))
	for area := range set {
		areas = append(areas, area)
	}
	sort.Slice(areas, func(i, j int) bool { return areas[i] < areas[j] })
	return areas
}
