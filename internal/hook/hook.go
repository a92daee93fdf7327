// Package hook connects the spec workflow to the commit pipeline. A Hook
// receives task-completion events, applies the configured commit frequency
// (immediate, per phase, or per spec), and dispatches registered callbacks.
// A Watcher feeds the hook from an events file on disk.
package hook

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitd/internal/aggregate"
	"github.com/fyrsmithlabs/commitd/internal/commit"
	"github.com/fyrsmithlabs/commitd/internal/config"
	"github.com/fyrsmithlabs/commitd/internal/orchestrate"
)

const historyLimit = 50

// State is the hook lifecycle state.
type State string

const (
	StateUnregistered State = "unregistered"
	StateRegistered   State = "registered"
	StateActive       State = "active"
	StateDisabled     State = "disabled"
	StateError        State = "error"
)

// ErrorPolicy controls dispatch behavior when a callback fails.
type ErrorPolicy string

const (
	PolicyContinue ErrorPolicy = "continue"
	PolicyStop     ErrorPolicy = "stop"
)

// Event is one task-completion notification from the spec workflow.
type Event struct {
	TaskID          string    `json:"task_id"`
	TaskTitle       string    `json:"task_title"`
	TaskDescription string    `json:"task_description,omitempty"`
	SpecName        string    `json:"spec_name,omitempty"`
	NextTaskID      string    `json:"next_task_id,omitempty"`
	TotalTasks      int       `json:"total_tasks,omitempty"`
	FilesChanged    []string  `json:"files_changed,omitempty"`
	CompletedAt     time.Time `json:"completed_at,omitempty"`
}

// Callback is a named handler invoked after each event. Higher priority
// callbacks run first.
type Callback struct {
	Name     string
	Fn       func(ctx context.Context, ev Event) error
	Enabled  bool
	Priority int
	OnError  ErrorPolicy
}

// Outcome summarizes how one event was handled.
type Outcome struct {
	Committed      bool                   `json:"committed"`
	Skipped        bool                   `json:"skipped"`
	Reason         string                 `json:"reason,omitempty"`
	Frequency      config.Frequency       `json:"frequency"`
	TaskCount      int                    `json:"task_count,omitempty"`
	Message        string                 `json:"message,omitempty"`
	Operation      *orchestrate.Operation `json:"operation,omitempty"`
	CallbackErrors map[string]string      `json:"callback_errors,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

// processor runs orchestrated single-task commits.
type processor interface {
	ProcessTaskCompletion(ctx context.Context, pctx orchestrate.ProcessContext) *orchestrate.Operation
}

// committer is the direct executor path used for aggregated commits.
type committer interface {
	StageAll(ctx context.Context, paths ...string) error
	Commit(ctx context.Context, msg string, opts commit.Options) *commit.ExecutionResult
}

// Hook wires the aggregator and orchestrator behind the workflow-facing
// HandleTaskCompletion entry point.
type Hook struct {
	cfg       *config.Config
	orch      processor
	committer committer
	agg       *aggregate.Aggregator
	logger    *zap.Logger

	mu        sync.Mutex
	state     State
	callbacks []Callback
	history   []*Outcome
}

// New builds an unregistered Hook.
func New(cfg *config.Config, orch *orchestrate.Orchestrator, executor *commit.Executor, agg *aggregate.Aggregator, logger *zap.Logger) *Hook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hook{
		cfg:       cfg,
		orch:      orch,
		committer: executor,
		agg:       agg,
		logger:    logger,
		state:     StateUnregistered,
	}
}

// Register validates collaborators and moves the hook to registered.
func (h *Hook) Register() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == StateRegistered || h.state == StateActive {
		return nil
	}
	if h.orch == nil || h.agg == nil {
		h.state = StateError
		return fmt.Errorf("hook: missing orchestrator or aggregator")
	}

	h.state = StateRegistered
	h.logger.Info("workflow hook registered")
	return nil
}

// Unregister clears callbacks and returns to unregistered.
func (h *Hook) Unregister() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks = nil
	h.state = StateUnregistered
}

// Disable suspends event handling without dropping callbacks.
func (h *Hook) Disable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateRegistered || h.state == StateActive {
		h.state = StateDisabled
	}
}

// Enable resumes a disabled hook.
func (h *Hook) Enable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateDisabled {
		h.state = StateRegistered
	}
}

// State returns the current lifecycle state.
func (h *Hook) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// AddCallback registers a named callback. Names must be unique.
func (h *Hook) AddCallback(cb Callback) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, existing := range h.callbacks {
		if existing.Name == cb.Name {
			return fmt.Errorf("hook: callback %q already registered", cb.Name)
		}
	}
	if cb.OnError == "" {
		cb.OnError = PolicyContinue
	}
	h.callbacks = append(h.callbacks, cb)
	sort.SliceStable(h.callbacks, func(i, j int) bool {
		return h.callbacks[i].Priority > h.callbacks[j].Priority
	})
	h.logger.Info("callback registered",
		zap.String("name", cb.Name), zap.Int("priority", cb.Priority))
	return nil
}

// RemoveCallback removes a callback by name.
func (h *Hook) RemoveCallback(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, cb := range h.callbacks {
		if cb.Name == name {
			h.callbacks = append(h.callbacks[:i], h.callbacks[i+1:]...)
			return true
		}
	}
	return false
}

// HandleTaskCompletion is the workflow entry point. It applies the configured
// commit frequency and dispatches callbacks. Handling is synchronous.
func (h *Hook) HandleTaskCompletion(ctx context.Context, ev Event) *Outcome {
	outcome := &Outcome{
		Skipped:   true,
		Frequency: h.cfg.Automation.CommitFrequency,
		Timestamp: time.Now(),
	}

	h.mu.Lock()
	state := h.state
	h.mu.Unlock()
	if state != StateRegistered {
		outcome.Reason = fmt.Sprintf("hook not registered (state %s)", state)
		return outcome
	}

	h.setState(StateActive)
	defer h.setState(StateRegistered)
	defer h.record(outcome)

	h.logger.Info("handling task completion",
		zap.String("task_id", ev.TaskID),
		zap.String("spec", ev.SpecName),
		zap.String("frequency", string(outcome.Frequency)))

	if !h.cfg.Enabled {
		outcome.Reason = "automation disabled"
	} else {
		switch outcome.Frequency {
		case config.FrequencyTask:
			h.commitImmediate(ctx, ev, outcome)
		case config.FrequencyPhase:
			h.commitOnPhase(ctx, ev, outcome)
		case config.FrequencySpec:
			h.commitOnSpec(ctx, ev, outcome)
		default:
			outcome.Reason = fmt.Sprintf("unknown commit frequency %q", outcome.Frequency)
			h.logger.Warn("unknown commit frequency", zap.String("frequency", string(outcome.Frequency)))
		}
	}

	h.dispatch(ctx, ev, outcome)
	return outcome
}

func (h *Hook) commitImmediate(ctx context.Context, ev Event, outcome *Outcome) {
	op := h.orch.ProcessTaskCompletion(ctx, orchestrate.ProcessContext{
		TaskID:          ev.TaskID,
		TaskTitle:       ev.TaskTitle,
		TaskDescription: ev.TaskDescription,
		SpecName:        ev.SpecName,
	})
	outcome.Operation = op
	outcome.Message = op.Message
	outcome.TaskCount = 1
	outcome.Committed = op.Result == orchestrate.ResultSuccess
	outcome.Skipped = !outcome.Committed
	if !outcome.Committed {
		outcome.Reason = string(op.Result)
	}
}

func (h *Hook) commitOnPhase(ctx context.Context, ev Event, outcome *Outcome) {
	task := h.enqueue(ev)
	if !h.agg.IsPhaseComplete(task, ev.NextTaskID) {
		outcome.Reason = "phase not complete, task queued"
		return
	}
	tasks := h.agg.DrainPhase(task.PhaseNumber)
	h.commitAggregated(ctx, tasks, aggregate.KindPhase, outcome)
}

func (h *Hook) commitOnSpec(ctx context.Context, ev Event, outcome *Outcome) {
	task := h.enqueue(ev)
	if !h.agg.IsSpecComplete(task, ev.TotalTasks) {
		outcome.Reason = "spec not complete, task queued"
		return
	}
	tasks := h.agg.DrainAll()
	h.commitAggregated(ctx, tasks, aggregate.KindSpec, outcome)
}

func (h *Hook) enqueue(ev Event) aggregate.Task {
	spec := ev.SpecName
	if spec == "" {
		spec = "unknown-spec"
	}
	task := aggregate.NewTask(ev.TaskID, ev.TaskTitle, spec, ev.FilesChanged)
	h.agg.Enqueue(task)
	return task
}

// commitAggregated commits a drained batch through the executor directly,
// staging the whole tree under the aggregate message.
func (h *Hook) commitAggregated(ctx context.Context, tasks []aggregate.Task, kind aggregate.Kind, outcome *Outcome) {
	if len(tasks) == 0 {
		outcome.Reason = "no tasks to commit"
		return
	}

	msg := h.agg.AggregateMessage(tasks, kind)
	outcome.Message = msg
	outcome.TaskCount = len(tasks)

	if err := h.committer.StageAll(ctx); err != nil {
		outcome.Reason = fmt.Sprintf("staging failed: %v", err)
		h.logger.Error("aggregated staging failed", zap.Error(err))
		return
	}

	result := h.committer.Commit(ctx, msg, commit.Options{StagedOnly: true})
	if !result.Success {
		outcome.Reason = result.Err
		h.logger.Error("aggregated commit failed", zap.String("error", result.Err))
		return
	}

	outcome.Committed = true
	outcome.Skipped = false
	h.logger.Info("aggregated commit created",
		zap.String("hash", result.CommitHash),
		zap.Int("tasks", len(tasks)),
		zap.String("kind", string(kind)))
}

// dispatch runs callbacks in priority order, honoring each error policy.
func (h *Hook) dispatch(ctx context.Context, ev Event, outcome *Outcome) {
	h.mu.Lock()
	callbacks := make([]Callback, len(h.callbacks))
	copy(callbacks, h.callbacks)
	h.mu.Unlock()

	for _, cb := range callbacks {
		if !cb.Enabled {
			continue
		}
		if err := cb.Fn(ctx, ev); err != nil {
			if outcome.CallbackErrors == nil {
				outcome.CallbackErrors = make(map[string]string)
			}
			outcome.CallbackErrors[cb.Name] = err.Error()
			h.logger.Error("callback failed",
				zap.String("name", cb.Name), zap.Error(err))
			if cb.OnError == PolicyStop {
				break
			}
		}
	}
}

func (h *Hook) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *Hook) record(outcome *Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append(h.history, outcome)
	if len(h.history) > historyLimit {
		h.history = h.history[len(h.history)-historyLimit:]
	}
}

// History returns up to limit recent outcomes, oldest first.
func (h *Hook) History(limit int) []*Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > len(h.history) {
		limit = len(h.history)
	}
	out := make([]*Outcome, limit)
	copy(out, h.history[len(h.history)-limit:])
	return out
}

// Status describes the hook for diagnostics.
type Status struct {
	State      State    `json:"state"`
	Callbacks  []string `json:"callbacks"`
	Operations int      `json:"operations"`
	Pending    int      `json:"pending_tasks"`
}

// HookStatus snapshots the hook.
func (h *Hook) HookStatus() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.callbacks))
	for _, cb := range h.callbacks {
		names = append(names, cb.Name)
	}
	return Status{
		State:      h.state,
		Callbacks:  names,
		Operations: len(h.history),
		Pending:    h.agg.Status().TotalPending,
	}
}
