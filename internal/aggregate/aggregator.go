package aggregate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// PendingFileName is the queue file inside the state directory.
const PendingFileName = "pending_tasks.json"

// DefaultPhaseModulus is the phase-completion heuristic: a phase is assumed
// complete at task numbers that are multiples of this value (and >= it).
const DefaultPhaseModulus = 5

// DefaultSpecKeywords mark a task title as finalizing a spec.
var DefaultSpecKeywords = []string{
	"final", "complete", "finish", "deploy", "integration", "end-to-end",
}

// specDescription maps a spec-name substring to a human phrase for the
// spec-level aggregate message.
var specDescriptions = []struct {
	substring string
	phrase    string
}{
	{"git-workflow", "intelligent Git automation system"},
	{"commit-engine", "commit orchestration engine"},
	{"test-validation", "advanced test validation framework"},
}

// Kind selects the aggregate message format.
type Kind string

const (
	KindPhase Kind = "phase"
	KindSpec  Kind = "spec"
)

// Status is a snapshot of the pending queue.
type Status struct {
	TotalPending int            `json:"total_pending"`
	Phases       map[int][]Task `json:"phases"`
	Specs        []string       `json:"specs"`
}

// Aggregator owns the on-disk pending-task queue. It is the only writer of
// the queue file.
type Aggregator struct {
	path   string
	logger *zap.Logger

	// Heuristic knobs; zero values take the defaults.
	PhaseModulus int
	SpecKeywords []string

	mu    sync.Mutex
	tasks []Task
}

// New opens (or creates) the queue stored under stateDir. Load failures are
// not fatal: the queue starts empty.
func New(stateDir string, logger *zap.Logger) (*Aggregator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", stateDir, err)
	}
	a := &Aggregator{
		path:         filepath.Join(stateDir, PendingFileName),
		logger:       logger,
		PhaseModulus: DefaultPhaseModulus,
		SpecKeywords: DefaultSpecKeywords,
	}
	a.tasks = a.load()
	return a, nil
}

func (a *Aggregator) load() []Task {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return nil
	}
	var tasks []Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		a.logger.Warn("pending-tasks file corrupt, starting with empty queue",
			zap.String("path", a.path), zap.Error(err))
		return nil
	}
	return tasks
}

// persist atomically rewrites the queue file. Failures are swallowed:
// losing the queue degrades aggregation but must not block commits.
func (a *Aggregator) persist() {
	data, err := json.MarshalIndent(a.tasks, "", "  ")
	if err != nil {
		a.logger.Warn("could not encode pending tasks", zap.Error(err))
		return
	}
	tmp, err := os.CreateTemp(filepath.Dir(a.path), PendingFileName+".*")
	if err != nil {
		a.logger.Warn("could not persist pending tasks", zap.Error(err))
		return
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		a.logger.Warn("could not persist pending tasks", zap.Error(err))
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		a.logger.Warn("could not persist pending tasks", zap.Error(err))
		return
	}
	if err := os.Rename(name, a.path); err != nil {
		os.Remove(name)
		a.logger.Warn("could not persist pending tasks", zap.Error(err))
	}
}

// Enqueue appends a completed task and persists the queue.
func (a *Aggregator) Enqueue(task Task) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tasks = append(a.tasks, task)
	a.persist()
}

// Pending returns a copy of the queued tasks.
func (a *Aggregator) Pending() []Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Task, len(a.tasks))
	copy(out, a.tasks)
	return out
}

// PhaseTasks returns queued tasks belonging to the given phase.
func (a *Aggregator) PhaseTasks(phase int) []Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phaseTasksLocked(phase)
}

func (a *Aggregator) phaseTasksLocked(phase int) []Task {
	var out []Task
	for _, t := range a.tasks {
		if t.PhaseNumber == phase {
			out = append(out, t)
		}
	}
	return out
}

// DrainPhase removes and returns all tasks for the given phase.
func (a *Aggregator) DrainPhase(phase int) []Task {
	a.mu.Lock()
	defer a.mu.Unlock()

	drained := a.phaseTasksLocked(phase)
	if len(drained) == 0 {
		return nil
	}
	kept := a.tasks[:0]
	for _, t := range a.tasks {
		if t.PhaseNumber != phase {
			kept = append(kept, t)
		}
	}
	a.tasks = kept
	a.persist()
	return drained
}

// DrainAll removes and returns every queued task.
func (a *Aggregator) DrainAll() []Task {
	a.mu.Lock()
	defer a.mu.Unlock()

	drained := a.tasks
	a.tasks = nil
	a.persist()
	return drained
}

// IsPhaseComplete reports whether task closes its phase. When the next
// task's id is known a phase boundary is exact; otherwise the round-number
// heuristic applies.
func (a *Aggregator) IsPhaseComplete(task Task, nextTaskID string) bool {
	if nextTaskID != "" {
		if nextPhase, err := strconv.Atoi(strings.SplitN(nextTaskID, ".", 2)[0]); err == nil {
			return task.PhaseNumber != nextPhase
		}
	}
	modulus := a.PhaseModulus
	if modulus <= 0 {
		modulus = DefaultPhaseModulus
	}
	return task.TaskNumber >= modulus && task.TaskNumber%modulus == 0
}

// IsSpecComplete reports whether task finishes its spec. With a known total
// the count is exact; otherwise finalization keywords in the title decide.
func (a *Aggregator) IsSpecComplete(task Task, totalTasks int) bool {
	if totalTasks > 0 {
		a.mu.Lock()
		pending := len(a.tasks)
		a.mu.Unlock()
		return pending >= totalTasks
	}
	keywords := a.SpecKeywords
	if len(keywords) == 0 {
		keywords = DefaultSpecKeywords
	}
	title := strings.ToLower(task.TaskTitle)
	for _, kw := range keywords {
		if strings.Contains(title, kw) {
			return true
		}
	}
	return false
}

// AggregateMessage formats one commit message covering tasks.
func (a *Aggregator) AggregateMessage(tasks []Task, kind Kind) string {
	if len(tasks) == 0 {
		return "feat: Complete tasks"
	}
	spec := tasks[0].SpecName
	count := len(tasks)

	switch kind {
	case KindPhase:
		return fmt.Sprintf("feat: Complete %s Phase %d - %s (%d tasks)",
			spec, tasks[0].PhaseNumber, phaseDescription(tasks), count)
	case KindSpec:
		return fmt.Sprintf("feat: Complete %s - %s (%d tasks)",
			spec, specDescription(spec), count)
	default:
		return fmt.Sprintf("feat: Complete %d tasks from %s", count, spec)
	}
}

// phaseDescription buckets task titles into activity categories, deduped in
// first-seen order.
func phaseDescription(tasks []Task) string {
	var actions []string
	seen := make(map[string]bool)
	add := func(action string) {
		if !seen[action] {
			seen[action] = true
			actions = append(actions, action)
		}
	}

	for _, t := range tasks {
		title := strings.ToLower(t.TaskTitle)
		switch {
		case strings.Contains(title, "create") || strings.Contains(title, "implement"):
			add("implementation")
		case strings.Contains(title, "test"):
			add("testing")
		case strings.Contains(title, "config") || strings.Contains(title, "setup"):
			add("configuration")
		case strings.Contains(title, "integration"):
			add("integration")
		case strings.Contains(title, "documentation") || strings.Contains(title, "docs"):
			add("documentation")
		}
	}

	if len(actions) == 0 {
		return "core functionality"
	}
	return strings.Join(actions, " and ")
}

func specDescription(specName string) string {
	readable := strings.ReplaceAll(specName, "-", " ")
	for _, entry := range specDescriptions {
		if strings.Contains(specName, entry.substring) {
			return entry.phrase
		}
	}
	return readable + " system implementation"
}

// Status snapshots the queue grouped by phase.
func (a *Aggregator) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	status := Status{
		TotalPending: len(a.tasks),
		Phases:       make(map[int][]Task),
	}
	seen := make(map[string]bool)
	for _, t := range a.tasks {
		status.Phases[t.PhaseNumber] = append(status.Phases[t.PhaseNumber], t)
		if !seen[t.SpecName] {
			seen[t.SpecName] = true
			status.Specs = append(status.Specs, t.SpecName)
		}
	}
	return status
}
