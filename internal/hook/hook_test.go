package hook

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitd/internal/aggregate"
	"github.com/fyrsmithlabs/commitd/internal/commit"
	"github.com/fyrsmithlabs/commitd/internal/config"
	"github.com/fyrsmithlabs/commitd/internal/orchestrate"
)

type fakeProcessor struct {
	result orchestrate.Result
	calls  []orchestrate.ProcessContext
}

func (f *fakeProcessor) ProcessTaskCompletion(ctx context.Context, pctx orchestrate.ProcessContext) *orchestrate.Operation {
	f.calls = append(f.calls, pctx)
	result := f.result
	if result == "" {
		result = orchestrate.ResultSuccess
	}
	return &orchestrate.Operation{
		TaskID:     pctx.TaskID,
		Message:    "feat: implement something",
		Result:     result,
		CommitHash: "abc1234",
	}
}

type fakeExecutor struct {
	stageErr   error
	stageCalls int
	commits    []string
	result     *commit.ExecutionResult
}

func (f *fakeExecutor) StageAll(ctx context.Context, paths ...string) error {
	f.stageCalls++
	return f.stageErr
}

func (f *fakeExecutor) Commit(ctx context.Context, msg string, opts commit.Options) *commit.ExecutionResult {
	f.commits = append(f.commits, msg)
	if f.result != nil {
		return f.result
	}
	return &commit.ExecutionResult{Success: true, CommitHash: "def5678"}
}

func newTestHook(t *testing.T, freq config.Frequency) (*Hook, *fakeProcessor, *fakeExecutor) {
	t.Helper()
	agg, err := aggregate.New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Enabled = true
	cfg.Automation.CommitFrequency = freq

	proc := &fakeProcessor{}
	exec := &fakeExecutor{}
	h := &Hook{
		cfg:       cfg,
		orch:      proc,
		committer: exec,
		agg:       agg,
		logger:    zap.NewNop(),
		state:     StateUnregistered,
	}
	require.NoError(t, h.Register())
	return h, proc, exec
}

func TestRegisterLifecycle(t *testing.T) {
	h, _, _ := newTestHook(t, config.FrequencyTask)
	assert.Equal(t, StateRegistered, h.State())

	// idempotent
	require.NoError(t, h.Register())

	h.Disable()
	assert.Equal(t, StateDisabled, h.State())
	h.Enable()
	assert.Equal(t, StateRegistered, h.State())

	h.Unregister()
	assert.Equal(t, StateUnregistered, h.State())
}

func TestRegisterMissingCollaborators(t *testing.T) {
	h := New(config.Default(), nil, nil, nil, zap.NewNop())
	assert.Error(t, h.Register())
	assert.Equal(t, StateError, h.State())
}

func TestHandleUnregisteredSkips(t *testing.T) {
	h, proc, _ := newTestHook(t, config.FrequencyTask)
	h.Unregister()

	outcome := h.HandleTaskCompletion(context.Background(), Event{TaskID: "1.1", TaskTitle: "Task"})

	assert.True(t, outcome.Skipped)
	assert.Contains(t, outcome.Reason, "not registered")
	assert.Empty(t, proc.calls)
}

func TestHandleDisabledAutomation(t *testing.T) {
	h, proc, _ := newTestHook(t, config.FrequencyTask)
	h.cfg.Enabled = false

	outcome := h.HandleTaskCompletion(context.Background(), Event{TaskID: "1.1", TaskTitle: "Task"})

	assert.True(t, outcome.Skipped)
	assert.Equal(t, "automation disabled", outcome.Reason)
	assert.Empty(t, proc.calls)
}

func TestHandleFrequencyTask(t *testing.T) {
	h, proc, _ := newTestHook(t, config.FrequencyTask)

	outcome := h.HandleTaskCompletion(context.Background(), Event{
		TaskID:    "2.3",
		TaskTitle: "Implement queue",
		SpecName:  "commit-engine",
	})

	assert.True(t, outcome.Committed)
	assert.Equal(t, 1, outcome.TaskCount)
	require.Len(t, proc.calls, 1)
	assert.Equal(t, "2.3", proc.calls[0].TaskID)
	assert.Equal(t, "commit-engine", proc.calls[0].SpecName)
	assert.Equal(t, StateRegistered, h.State())
}

func TestHandleFrequencyPhaseQueuesUntilBoundary(t *testing.T) {
	h, proc, exec := newTestHook(t, config.FrequencyPhase)

	// Tasks 1.1 through 1.4 queue without committing.
	for _, id := range []string{"1.1", "1.2", "1.3", "1.4"} {
		outcome := h.HandleTaskCompletion(context.Background(), Event{
			TaskID: id, TaskTitle: "Task " + id, SpecName: "commit-engine", NextTaskID: "1.9",
		})
		assert.True(t, outcome.Skipped, "task %s should queue", id)
		assert.Contains(t, outcome.Reason, "queued")
	}
	assert.Empty(t, exec.commits)

	// 1.5 hits the default modulus; next task in a new phase confirms it.
	outcome := h.HandleTaskCompletion(context.Background(), Event{
		TaskID: "1.5", TaskTitle: "Finish phase", SpecName: "commit-engine", NextTaskID: "2.1",
	})

	assert.True(t, outcome.Committed)
	assert.Equal(t, 5, outcome.TaskCount)
	assert.Contains(t, outcome.Message, "Phase 1")
	assert.Equal(t, 1, exec.stageCalls)
	require.Len(t, exec.commits, 1)
	assert.Empty(t, proc.calls, "aggregated commits bypass the orchestrator")

	// queue drained
	assert.Zero(t, h.agg.Status().TotalPending)
}

func TestHandleFrequencySpec(t *testing.T) {
	h, _, exec := newTestHook(t, config.FrequencySpec)

	outcome := h.HandleTaskCompletion(context.Background(), Event{
		TaskID: "3.2", TaskTitle: "Add parser", SpecName: "commit-engine",
	})
	assert.True(t, outcome.Skipped)

	outcome = h.HandleTaskCompletion(context.Background(), Event{
		TaskID: "3.3", TaskTitle: "Final integration and deploy", SpecName: "commit-engine",
	})

	assert.True(t, outcome.Committed)
	assert.Equal(t, 2, outcome.TaskCount)
	require.Len(t, exec.commits, 1)
	assert.Contains(t, exec.commits[0], "commit-engine")
}

func TestHandleAggregatedStageFailure(t *testing.T) {
	h, _, exec := newTestHook(t, config.FrequencyPhase)
	exec.stageErr = errors.New("permission denied")

	outcome := h.HandleTaskCompletion(context.Background(), Event{
		TaskID: "1.5", TaskTitle: "Finish phase", SpecName: "commit-engine", NextTaskID: "2.1",
	})

	assert.False(t, outcome.Committed)
	assert.Contains(t, outcome.Reason, "staging failed")
	assert.Empty(t, exec.commits)
}

func TestCallbackDispatchOrderAndPolicy(t *testing.T) {
	h, _, _ := newTestHook(t, config.FrequencyTask)

	var order []string
	require.NoError(t, h.AddCallback(Callback{
		Name: "low", Enabled: true, Priority: 1,
		Fn: func(ctx context.Context, ev Event) error {
			order = append(order, "low")
			return nil
		},
	}))
	require.NoError(t, h.AddCallback(Callback{
		Name: "high", Enabled: true, Priority: 100,
		Fn: func(ctx context.Context, ev Event) error {
			order = append(order, "high")
			return nil
		},
	}))
	require.NoError(t, h.AddCallback(Callback{
		Name: "off", Enabled: false, Priority: 50,
		Fn: func(ctx context.Context, ev Event) error {
			order = append(order, "off")
			return nil
		},
	}))

	h.HandleTaskCompletion(context.Background(), Event{TaskID: "1.1", TaskTitle: "Task"})

	assert.Equal(t, []string{"high", "low"}, order)
}

func TestCallbackStopPolicy(t *testing.T) {
	h, _, _ := newTestHook(t, config.FrequencyTask)

	var ran []string
	require.NoError(t, h.AddCallback(Callback{
		Name: "boom", Enabled: true, Priority: 10, OnError: PolicyStop,
		Fn: func(ctx context.Context, ev Event) error {
			ran = append(ran, "boom")
			return errors.New("callback exploded")
		},
	}))
	require.NoError(t, h.AddCallback(Callback{
		Name: "after", Enabled: true, Priority: 1,
		Fn: func(ctx context.Context, ev Event) error {
			ran = append(ran, "after")
			return nil
		},
	}))

	outcome := h.HandleTaskCompletion(context.Background(), Event{TaskID: "1.1", TaskTitle: "Task"})

	assert.Equal(t, []string{"boom"}, ran)
	assert.Contains(t, outcome.CallbackErrors["boom"], "exploded")
}

func TestCallbackContinuePolicy(t *testing.T) {
	h, _, _ := newTestHook(t, config.FrequencyTask)

	var ran []string
	require.NoError(t, h.AddCallback(Callback{
		Name: "boom", Enabled: true, Priority: 10,
		Fn: func(ctx context.Context, ev Event) error {
			ran = append(ran, "boom")
			return errors.New("callback exploded")
		},
	}))
	require.NoError(t, h.AddCallback(Callback{
		Name: "after", Enabled: true, Priority: 1,
		Fn: func(ctx context.Context, ev Event) error {
			ran = append(ran, "after")
			return nil
		},
	}))

	h.HandleTaskCompletion(context.Background(), Event{TaskID: "1.1", TaskTitle: "Task"})

	assert.Equal(t, []string{"boom", "after"}, ran)
}

func TestAddCallbackRejectsDuplicates(t *testing.T) {
	h, _, _ := newTestHook(t, config.FrequencyTask)

	cb := Callback{Name: "dup", Enabled: true, Fn: func(context.Context, Event) error { return nil }}
	require.NoError(t, h.AddCallback(cb))
	assert.Error(t, h.AddCallback(cb))

	assert.True(t, h.RemoveCallback("dup"))
	assert.False(t, h.RemoveCallback("dup"))
}

func TestHookStatusAndHistory(t *testing.T) {
	h, _, _ := newTestHook(t, config.FrequencyTask)
	require.NoError(t, h.AddCallback(Callback{
		Name: "audit", Enabled: true, Fn: func(context.Context, Event) error { return nil },
	}))

	for i := 0; i < 3; i++ {
		h.HandleTaskCompletion(context.Background(), Event{TaskID: "1.1", TaskTitle: "Task"})
	}

	status := h.HookStatus()
	assert.Equal(t, StateRegistered, status.State)
	assert.Equal(t, []string{"audit"}, status.Callbacks)
	assert.Equal(t, 3, status.Operations)

	assert.Len(t, h.History(2), 2)
	assert.Len(t, h.History(0), 3)
}
