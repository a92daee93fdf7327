package classify

import (
	"path"
	"strings"
)

// specialFiles maps exact (lowercased) filenames to a file type, checked
// before any extension or directory rule.
var specialFiles = map[string]FileType{
	"package.json":       FileTypeBuild,
	"package-lock.json":  FileTypeBuild,
	"requirements.txt":   FileTypeBuild,
	"dockerfile":         FileTypeBuild,
	"docker-compose.yml": FileTypeBuild,
	"docker-compose.yaml": FileTypeBuild,
	"go.mod":             FileTypeBuild,
	"go.sum":             FileTypeBuild,
	"makefile":           FileTypeBuild,
	".gitignore":         FileTypeConfig,
	".env":               FileTypeConfig,
	"readme.md":          FileTypeDocs,
}

// testNamePatterns mark test files by naming convention.
var testNamePatterns = []string{".test.", ".spec.", "_test.", "_spec."}

// extensionTypes maps file extensions to areas.
var extensionTypes = map[string]FileType{
	".js":   FileTypeFrontend,
	".jsx":  FileTypeFrontend,
	".ts":   FileTypeFrontend,
	".tsx":  FileTypeFrontend,
	".css":  FileTypeFrontend,
	".scss": FileTypeFrontend,
	".sass": FileTypeFrontend,
	".html": FileTypeFrontend,
	".vue":  FileTypeFrontend,
	".go":   FileTypeBackend,
	".py":   FileTypeBackend,
	".sql":  FileTypeBackend,
	".md":   FileTypeDocs,
	".rst":  FileTypeDocs,
	".txt":  FileTypeDocs,
	".json": FileTypeConfig,
	".yaml": FileTypeConfig,
	".yml":  FileTypeConfig,
	".toml": FileTypeConfig,
	".ini":  FileTypeConfig,
}

// dirRule associates directory substrings with an area.
type dirRule struct {
	patterns []string
	area     FileType
}

// dirRules are checked in order; the first rule whose pattern appears
// anywhere in the path wins.
var dirRules = []dirRule{
	{[]string{"test/", "tests/", "__tests__/", "spec/"}, FileTypeTest},
	{[]string{"docs/", "doc/", "documentation/"}, FileTypeDocs},
	{[]string{".github/", ".gitlab/", ".ci/", "ci/"}, FileTypeCI},
	{[]string{"frontend/", "src/", "app/", "components/", "pages/"}, FileTypeFrontend},
	{[]string{"backend/", "api/", "server/", "services/"}, FileTypeBackend},
	{[]string{"config/", "configs/", "settings/"}, FileTypeConfig},
}

// breakingKeywords in a path hint at breaking changes.
var breakingKeywords = []string{"breaking", "major", "remove", "delete", "deprecate"}

// ciPathHints mark config files that live in CI territory.
var ciPathHints = []string{"ci", ".github", ".gitlab"}

// fileTypeFor resolves the area of a path: special filename, then test
// naming convention, then extension, then directory pattern, then other.
func fileTypeFor(filePath string) FileType {
	name := strings.ToLower(path.Base(filePath))

	for _, pattern := range testNamePatterns {
		if strings.Contains(name, pattern) {
			return FileTypeTest
		}
	}

	if ft, ok := specialFiles[name]; ok {
		return ft
	}

	if ft, ok := extensionTypes[strings.ToLower(path.Ext(filePath))]; ok {
		return ft
	}

	lower := strings.ToLower(filePath)
	for _, rule := range dirRules {
		for _, pattern := range rule.patterns {
			if strings.Contains(lower, pattern) {
				return rule.area
			}
		}
	}

	return FileTypeOther
}

// suggestType applies the priority cascade to one file change and returns
// the suggested commit type with its confidence.
func suggestType(fc FileChange) (CommitType, float64) {
	lower := strings.ToLower(fc.Path)

	// High confidence by area.
	switch fc.FileType {
	case FileTypeTest:
		return TypeTest, 0.9
	case FileTypeDocs:
		return TypeDocs, 0.9
	case FileTypeConfig:
		for _, hint := range ciPathHints {
			if strings.Contains(lower, hint) {
				return TypeCI, 0.9
			}
		}
	case FileTypeBuild:
		return TypeBuild, 0.8
	}

	// Medium confidence by status.
	if fc.Status == StatusDeleted {
		if fc.FileType == FileTypeFrontend || fc.FileType == FileTypeBackend {
			return TypeRefactor, 0.7
		}
		return TypeChore, 0.6
	}
	if fc.Status == StatusAdded || fc.Status == StatusModified {
		if fc.FileType == FileTypeFrontend || fc.FileType == FileTypeBackend {
			return TypeFeat, 0.7
		}
	}

	// Path keyword hints.
	if strings.Contains(lower, "fix") || strings.Contains(lower, "bug") {
		return TypeFix, 0.8
	}
	if strings.Contains(lower, "style") || strings.Contains(lower, "format") {
		return TypeStyle, 0.7
	}
	if strings.Contains(lower, "perf") {
		return TypePerf, 0.8
	}

	// Area defaults.
	switch fc.FileType {
	case FileTypeFrontend, FileTypeBackend:
		return TypeFeat, 0.5
	case FileTypeConfig:
		return TypeChore, 0.6
	default:
		return TypeChore, 0.3
	}
}

// containsBreakingKeyword reports whether the path hints at a breaking change.
func containsBreakingKeyword(filePath string) bool {
	lower := strings.ToLower(filePath)
	for _, kw := range breakingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
