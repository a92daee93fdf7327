package message

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitd/internal/classify"
)

// DefaultMaxSubjectLength bounds the formatted subject line.
const DefaultMaxSubjectLength = 72

// actionRule couples an action verb with the patterns that indicate it.
type actionRule struct {
	action     string
	patterns   []*regexp.Regexp
	confidence float64
}

// actionRules is checked in order; on equal confidence the earlier action wins.
var actionRules = []actionRule{
	{"implement", compileAll(
		`\b(?:implement|create|add|build|develop|establish)\b`,
		`\b(?:set up|setup)\b`,
		`\b(?:introduce|install)\b`,
	), 0.9},
	{"fix", compileAll(
		`\b(?:fix|resolve|correct|repair|address)\b`,
		`\b(?:solve|debug|troubleshoot)\b`,
		`\b(?:patch|mend)\b`,
	), 0.9},
	{"update", compileAll(
		`\b(?:update|modify|change|improve|enhance)\b`,
		`\b(?:revise|adjust|refine)\b`,
		`\b(?:upgrade|modernize)\b`,
	), 0.8},
	{"refactor", compileAll(
		`\b(?:refactor|restructure|reorganize|simplify)\b`,
		`\b(?:clean up|cleanup|optimize)\b`,
		`\b(?:streamline|consolidate)\b`,
	), 0.9},
	{"remove", compileAll(
		`\b(?:remove|delete|drop|eliminate)\b`,
		`\b(?:disable|deactivate|deprecate)\b`,
		`\b(?:clean|purge)\b`,
	), 0.9},
	{"configure", compileAll(
		`\b(?:configure|config|setup|set up)\b`,
		`\b(?:initialize|init)\b`,
		`\b(?:prepare|provision)\b`,
	), 0.8},
	{"test", compileAll(
		`\b(?:test|testing|spec|verify)\b`,
		`\b(?:validate|check)\b`,
		`\b(?:ensure|confirm)\b`,
	), 0.9},
}

// objectPatterns name the things an action operates on; first match wins.
var objectPatterns = compileAll(
	`\b(?:authentication|auth|login|registration)\b`,
	`\b(?:database|db|migration|schema)\b`,
	`\b(?:api|endpoint|route|service)\b`,
	`\b(?:component|module|class|function)\b`,
	`\b(?:interface|ui|frontend|backend)\b`,
	`\b(?:configuration|config|settings)\b`,
	`\b(?:validation|security|permissions)\b`,
	`\b(?:workflow|process|pipeline)\b`,
	`\b(?:user|client|queue|watcher)\b`,
	`\b(?:retry|signing|classifier|aggregator)\b`,
	`\b(?:calculation|parser|analytics)\b`,
	`\b(?:upload|file|data|report)\b`,
	`\b(?:system|feature|functionality)\b`,
	`\b(?:issue|bug|error|problem)\b`,
	`\b(?:documentation|docs|readme)\b`,
)

// typeOverrides map task-text keywords straight to a commit type, ahead of
// the change analysis.
var typeOverrides = []struct {
	commitType classify.CommitType
	patterns   []*regexp.Regexp
}{
	{classify.TypeDocs, compileAll(
		`\b(?:documentation|docs|readme|guide)\b`,
		`\b(?:comment|annotation|docstring)\b`,
	)},
	{classify.TypeTest, compileAll(
		`\b(?:test|testing|spec|unit test|integration test)\b`,
		`\b(?:coverage|assertion|mock)\b`,
	)},
	{classify.TypeFix, compileAll(
		`\b(?:fix|bug|error|issue|problem)\b`,
		`\b(?:resolve|correct|repair|address)\b`,
	)},
	{classify.TypeRefactor, compileAll(
		`\b(?:refactor|restructure|reorganize|simplify)\b`,
		`\b(?:clean up|cleanup|optimize|streamline)\b`,
	)},
	{classify.TypeStyle, compileAll(
		`\b(?:style|styling|css|design|layout)\b`,
		`\b(?:formatting|prettier|eslint)\b`,
	)},
	{classify.TypeChore, compileAll(
		`\b(?:chore|maintenance|dependency|package)\b`,
		`\b(?:build|deployment|ci|cd)\b`,
	)},
}

// genericPatterns reject messages that say nothing.
var genericPatterns = compileAll(
	`(?i)^\w+:\s*(?:update|modify|change)\s*$`,
	`(?i)^\w+:\s*(?:complete|finish)\s+task\s*\d*\s*$`,
	`(?i)^\w+:\s*(?:work|changes|updates)\s*$`,
	`(?i)^\w+:\s*\w{1,3}\s*$`,
)

// imperativeRules convert a leading present-participle or third-person verb
// to imperative mood.
var imperativeRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)^(?:adding|adds)\s+`), "Add "},
	{regexp.MustCompile(`(?i)^(?:updating|updates)\s+`), "Update "},
	{regexp.MustCompile(`(?i)^(?:fixing|fixes)\s+`), "Fix "},
	{regexp.MustCompile(`(?i)^(?:implementing|implements)\s+`), "Implement "},
	{regexp.MustCompile(`(?i)^(?:creating|creates)\s+`), "Create "},
	{regexp.MustCompile(`(?i)^(?:removing|removes|deleting|deletes)\s+`), "Remove "},
	{regexp.MustCompile(`(?i)^(?:refactoring|refactors)\s+`), "Refactor "},
	{regexp.MustCompile(`(?i)^(?:configuring|configures)\s+`), "Configure "},
	{regexp.MustCompile(`(?i)^(?:testing|tests)\s+`), "Test "},
	{regexp.MustCompile(`(?i)^(?:building|builds)\s+`), "Build "},
	{regexp.MustCompile(`(?i)^(?:installing|installs)\s+`), "Install "},
	{regexp.MustCompile(`(?i)^(?:improving|improves)\s+`), "Improve "},
	{regexp.MustCompile(`(?i)^(?:optimizing|optimizes)\s+`), "Optimize "},
}

var (
	stopwordsRe    = regexp.MustCompile(`(?i)\b(?:the|a|an|and|or|of|in|on|at|to|for|with|by)\b`)
	taskRefRe      = regexp.MustCompile(`(?i)\btask\s*\d+`)
	taskPrefixRe   = regexp.MustCompile(`(?i)^\s*(?:task\s*)?\d+(?:\.\d+)*\.?\s*`)
	leadingVerbRe  = regexp.MustCompile(`(?i)^\s*(?:implement|create|add|build|update|fix)\s+`)
	conventionalRe = regexp.MustCompile(`(?i)^[a-z]+(\([^)]+\))?: `)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile(p)
	}
	return res
}

// Synthesizer turns task context and change analysis into a commit message.
type Synthesizer struct {
	maxSubject int
	logger     *zap.Logger
}

// NewSynthesizer builds a Synthesizer. maxSubject <= 0 uses the default.
func NewSynthesizer(maxSubject int, logger *zap.Logger) *Synthesizer {
	if maxSubject <= 0 {
		maxSubject = DefaultMaxSubjectLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{maxSubject: maxSubject, logger: logger}
}

// actionInfo is the best action/object extraction across task text sources.
type actionInfo struct {
	action     string
	object     string
	confidence float64
	source     string
}

// Synthesize builds commit message components from the task and analysis.
// It never fails: any internal panic degrades to "chore: {title}" at 0.2.
func (s *Synthesizer) Synthesize(task TaskContext, analysis *classify.ChangeAnalysis) (out Components) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("message synthesis failed, using minimal fallback", zap.Any("panic", r))
			out = Components{
				CommitType:       classify.TypeChore,
				Action:           "complete",
				Description:      task.TaskTitle,
				Confidence:       0.2,
				RawMessage:       task.TaskTitle,
				FormattedMessage: s.titleFallback(task, classify.TypeChore),
			}
		}
	}()

	if analysis == nil {
		analysis = &classify.ChangeAnalysis{
			PrimaryType:    classify.TypeChore,
			TypeConfidence: 0.1,
			Summary:        "No file changes detected",
		}
	}

	info := extractAction(task.TaskTitle, task.TaskDescription)
	commitType := resolveCommitType(task, analysis)
	description := s.buildDescription(info, analysis)

	formatted := s.format(commitType, description)
	confidence := scoreConfidence(info, analysis, formatted)

	if !isQualityMessage(formatted) {
		s.logger.Debug("synthesized message too generic, falling back to task title",
			zap.String("rejected", formatted))
		formatted = s.titleFallback(task, commitType)
		confidence = 0.5
	}

	return Components{
		CommitType:       commitType,
		Action:           info.action,
		Description:      description,
		Confidence:       confidence,
		RawMessage:       description,
		FormattedMessage: formatted,
	}
}

// extractAction finds the strongest action/object pair across the task
// description (weight 1.0) and title (weight 0.8).
func extractAction(title, description string) actionInfo {
	type source struct {
		name   string
		text   string
		weight float64
	}
	sources := []source{}
	if description != "" {
		sources = append(sources, source{"description", description, 1.0})
	}
	if title != "" {
		sources = append(sources, source{"title", title, 0.8})
	}

	best := actionInfo{source: "none"}
	for _, src := range sources {
		lower := strings.ToLower(src.text)

		var action string
		var actionConfidence float64
		for _, rule := range actionRules {
			for _, re := range rule.patterns {
				if re.MatchString(lower) && rule.confidence > actionConfidence {
					action = rule.action
					actionConfidence = rule.confidence
				}
			}
		}

		var object string
		for _, re := range objectPatterns {
			if m := re.FindString(lower); m != "" {
				object = m
				break
			}
		}
		if object == "" && action != "" {
			object = extractObjectAfterAction(src.text, action)
		}

		total := actionConfidence * src.weight
		if object != "" {
			total += 0.2
		}
		if total > best.confidence {
			best = actionInfo{action: action, object: object, confidence: total, source: src.name}
		}
	}
	return best
}

// extractObjectAfterAction pulls the 1-4 word phrase following the action
// verb, stripped of stopwords.
func extractObjectAfterAction(text, action string) string {
	var patterns []*regexp.Regexp
	for _, rule := range actionRules {
		if rule.action == action {
			patterns = rule.patterns
			break
		}
	}
	for _, re := range patterns {
		extended := regexp.MustCompile(
			`(?i)` + re.String() + `\s+([a-zA-Z][a-zA-Z\s]{1,30}?)(?:\s+(?:for|with|in|to|from|by)|[.!]|$)`)
		m := extended.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		obj := stopwordsRe.ReplaceAllString(strings.TrimSpace(m[1]), " ")
		obj = strings.Join(strings.Fields(obj), " ")
		if words := strings.Fields(obj); len(words) <= 4 && len(obj) > 2 {
			return obj
		}
	}
	return ""
}

// resolveCommitType applies the precedence: task-text override table, then
// analysis primary type, then task-text fallback keywords, then feat.
func resolveCommitType(task TaskContext, analysis *classify.ChangeAnalysis) classify.CommitType {
	taskText := strings.ToLower(task.TaskTitle + " " + task.TaskDescription)

	for _, override := range typeOverrides {
		for _, re := range override.patterns {
			if re.MatchString(taskText) {
				return override.commitType
			}
		}
	}

	if analysis.PrimaryType != "" {
		return analysis.PrimaryType
	}

	switch {
	case strings.Contains(taskText, "test"):
		return classify.TypeTest
	case containsAny(taskText, "fix", "bug", "error", "issue"):
		return classify.TypeFix
	case containsAny(taskText, "doc", "readme", "comment"):
		return classify.TypeDocs
	case containsAny(taskText, "style", "css", "format"):
		return classify.TypeStyle
	case containsAny(taskText, "refactor", "restructure", "cleanup"):
		return classify.TypeRefactor
	default:
		return classify.TypeFeat
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// buildDescription assembles the description from action/object, augmented
// with the single affected area when it adds information.
func (s *Synthesizer) buildDescription(info actionInfo, analysis *classify.ChangeAnalysis) string {
	var description string
	switch {
	case info.action != "" && info.object != "":
		description = info.action + " " + info.object
	case info.action != "":
		description = info.action
	case info.object != "":
		description = "update " + info.object
	default:
		if analysis.Summary != "" && !strings.HasPrefix(analysis.Summary, "No") {
			return analysis.Summary
		}
		return "update components"
	}

	if len(analysis.AffectedAreas) == 1 {
		area := string(analysis.AffectedAreas[0])
		if !strings.Contains(strings.ToLower(description), area) {
			switch area {
			case "frontend", "backend":
				description += " in " + area
			case "test", "docs":
				description += " (" + area + ")"
			}
		}
	}

	return imperative(description)
}

// imperative converts a leading verb to imperative mood and capitalizes.
func imperative(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return text
	}
	for _, rule := range imperativeRules {
		text = rule.re.ReplaceAllString(text, rule.repl)
	}
	first, size := utf8.DecodeRuneInString(text)
	return string(unicode.ToUpper(first)) + text[size:]
}

// format renders "type: Description", truncating on a word boundary with a
// trailing ellipsis and never splitting the type prefix.
func (s *Synthesizer) format(commitType classify.CommitType, description string) string {
	msg := fmt.Sprintf("%s: %s", commitType, description)
	if len(msg) <= s.maxSubject {
		return msg
	}

	truncateTo := s.maxSubject - 3
	if truncateTo <= len(commitType)+2 {
		return msg
	}
	// Back off to a rune boundary so the cut never splits a multibyte rune.
	for truncateTo > 0 && !utf8.RuneStart(msg[truncateTo]) {
		truncateTo--
	}
	words := strings.Fields(msg[:truncateTo])
	if len(words) > 1 {
		return strings.Join(words[:len(words)-1], " ") + "..."
	}
	return msg[:truncateTo] + "..."
}

// scoreConfidence combines extraction and analysis confidence with length
// adjustments, clamped to [0,1].
func scoreConfidence(info actionInfo, analysis *classify.ChangeAnalysis, formatted string) float64 {
	confidence := info.confidence*0.4 + analysis.TypeConfidence*0.3
	if info.action != "" && info.object != "" {
		confidence += 0.2
	}

	descPart := formatted
	if idx := strings.Index(formatted, ": "); idx >= 0 {
		descPart = formatted[idx+2:]
	}
	switch words := len(strings.Fields(descPart)); {
	case words < 2:
		confidence -= 0.2
	case words >= 4:
		confidence += 0.1
	}

	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// isQualityMessage rejects generic or task-id-referencing messages.
func isQualityMessage(msg string) bool {
	for _, re := range genericPatterns {
		if re.MatchString(msg) {
			return false
		}
	}

	if idx := strings.Index(msg, ": "); idx >= 0 {
		descPart := strings.TrimSpace(msg[idx+2:])
		if len(descPart) < 5 {
			return false
		}
		words := strings.Fields(descPart)
		if len(words) == 1 {
			switch strings.ToLower(words[0]) {
			case "update", "fix", "add", "remove", "change":
				return false
			}
		}
	}

	return !taskRefRe.MatchString(msg)
}

// titleFallback derives a message from the cleaned task title.
func (s *Synthesizer) titleFallback(task TaskContext, commitType classify.CommitType) string {
	title := task.TaskTitle
	if title == "" {
		title = "Complete task"
	}
	title = taskPrefixRe.ReplaceAllString(title, "")
	title = leadingVerbRe.ReplaceAllString(title, "")
	title = imperative(title)

	if len(title) > 60 {
		words := strings.Fields(title[:60])
		if len(words) > 1 {
			title = strings.Join(words[:len(words)-1], " ") + "..."
		} else {
			title = title[:60]
		}
	}
	return fmt.Sprintf("%s: %s", commitType, title)
}
