package message

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitd/internal/classify"
)

func featAnalysis() *classify.ChangeAnalysis {
	return &classify.ChangeAnalysis{
		Files: []classify.FileChange{
			{Path: "src/auth.py", Status: classify.StatusAdded, FileType: classify.FileTypeBackend},
		},
		PrimaryType:    classify.TypeFeat,
		TypeConfidence: 1.0,
		AffectedAreas:  []classify.FileType{classify.FileTypeBackend},
		Summary:        "Modified backend file: auth.py",
		TotalFiles:     1,
	}
}

func TestSynthesizeActionAndObject(t *testing.T) {
	s := NewSynthesizer(0, zap.NewNop())
	task := TaskContext{
		TaskID:          "1.3",
		TaskTitle:       "Create user authentication system",
		TaskDescription: "Implement JWT-based authentication with login endpoints",
	}

	out := s.Synthesize(task, featAnalysis())
	assert.Equal(t, "implement", out.Action)
	assert.True(t, strings.HasPrefix(out.FormattedMessage, "feat: "),
		"got %q", out.FormattedMessage)
	assert.Contains(t, strings.ToLower(out.FormattedMessage), "authentication")
	assert.GreaterOrEqual(t, out.Confidence, 0.5)
}

func TestSynthesizeDescriptionOutweighsTitle(t *testing.T) {
	// Description carries weight 1.0, title 0.8, so the description's
	// action should win even when the title also matches a verb.
	info := extractAction("Update settings", "Fix database migration errors")
	assert.Equal(t, "fix", info.action)
	assert.Equal(t, "description", info.source)
}

func TestExtractActionObjectBonus(t *testing.T) {
	info := extractAction("Implement retry logic", "")
	assert.Equal(t, "implement", info.action)
	assert.NotEmpty(t, info.object)
	// 0.9 base * 0.8 title weight + 0.2 object bonus.
	assert.InDelta(t, 0.92, info.confidence, 1e-9)
}

func TestExtractObjectAfterAction(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		action string
		want   string
	}{
		{"simple phrase", "Build commit executor for staging", "implement", "commit executor"},
		{"stopwords stripped", "Remove the legacy adapters", "remove", "legacy adapters"},
		{"too long is rejected", "Implement something extremely verbose wandering phrase here beyond limits", "implement", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractObjectAfterAction(tt.text, tt.action))
		})
	}
}

func TestResolveCommitTypePrecedence(t *testing.T) {
	analysis := featAnalysis()
	tests := []struct {
		name string
		task TaskContext
		want classify.CommitType
	}{
		{
			"task-text override beats analysis",
			TaskContext{TaskTitle: "Improve test coverage for the queue"},
			classify.TypeTest,
		},
		{
			"docs override",
			TaskContext{TaskTitle: "Update readme with usage guide"},
			classify.TypeDocs,
		},
		{
			"analysis primary when no override",
			TaskContext{TaskTitle: "Ship the new widget"},
			classify.TypeFeat,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveCommitType(tt.task, analysis))
		})
	}
}

func TestResolveCommitTypeFallbackKeywords(t *testing.T) {
	empty := &classify.ChangeAnalysis{}
	assert.Equal(t, classify.TypeFix, resolveCommitType(TaskContext{TaskTitle: "Squash that bug"}, empty))
	assert.Equal(t, classify.TypeFeat, resolveCommitType(TaskContext{TaskTitle: "Ship widget"}, empty))
}

func TestImperativeMood(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"adding retry logic", "Add retry logic"},
		{"fixes race condition", "Fix race condition"},
		{"implementing queue drain", "Implement queue drain"},
		{"already imperative", "Already imperative"},
		{"éliminer les doublons", "Éliminer les doublons"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, imperative(tt.in))
		})
	}
}

func TestFormatTruncatesOnWordBoundary(t *testing.T) {
	s := NewSynthesizer(40, zap.NewNop())
	msg := s.format(classify.TypeFeat, "implement a very long description that exceeds the limit")
	assert.Equal(t, "feat: implement a very long...", msg)
	assert.LessOrEqual(t, len(msg), 40)
}

func TestFormatTruncationKeepsValidUTF8(t *testing.T) {
	s := NewSynthesizer(25, zap.NewNop())
	msg := s.format(classify.TypeFeat, "réécriture générale des règles de tri")
	assert.True(t, utf8.ValidString(msg))
	assert.LessOrEqual(t, len(msg), 25)
	assert.True(t, strings.HasSuffix(msg, "..."))
}

func TestFormatShortMessageUntouched(t *testing.T) {
	s := NewSynthesizer(0, zap.NewNop())
	assert.Equal(t, "fix: Handle stale index lock", s.format(classify.TypeFix, "Handle stale index lock"))
}

func TestGenericMessageRejected(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"feat: update", false},
		{"feat: complete task 3", false},
		{"feat: changes", false},
		{"fix: abc", false},
		{"feat: implement task 12 cleanup", false},
		{"feat: Implement authentication system", true},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, isQualityMessage(tt.msg))
		})
	}
}

func TestSynthesizeFallsBackToTitle(t *testing.T) {
	s := NewSynthesizer(0, zap.NewNop())
	// "debug" maps to the fix action with no object, so the built message
	// is just "chore: Fix" and the quality gate rejects it for the title.
	task := TaskContext{TaskID: "2.4", TaskTitle: "2.4 Debug"}
	analysis := &classify.ChangeAnalysis{PrimaryType: classify.TypeChore, TypeConfidence: 0.3}

	out := s.Synthesize(task, analysis)
	assert.InDelta(t, 0.5, out.Confidence, 1e-9)
	assert.Equal(t, "chore: Debug", out.FormattedMessage)
}

func TestSynthesizeNilAnalysis(t *testing.T) {
	s := NewSynthesizer(0, zap.NewNop())
	out := s.Synthesize(TaskContext{TaskTitle: "Implement retry logic"}, nil)
	require.NotEmpty(t, out.FormattedMessage)
	assert.True(t, strings.Contains(out.FormattedMessage, ": "))
}

func TestTitleFallbackStripsTaskPrefix(t *testing.T) {
	s := NewSynthesizer(0, zap.NewNop())
	got := s.titleFallback(TaskContext{TaskTitle: "Task 12. Implement queue persistence"}, classify.TypeFeat)
	assert.Equal(t, "feat: Queue persistence", got)
}
