package hook

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/commitd/internal/config"
)

func newTestWatcher(t *testing.T, h *Hook) (*Watcher, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := NewWatcher(dir, h, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(w.Stop)
	return w, filepath.Join(dir, EventsFileName)
}

func appendEvents(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	for _, line := range lines {
		_, err := f.WriteString(line + "\n")
		require.NoError(t, err)
	}
}

func TestDrainDispatchesEvents(t *testing.T) {
	h, proc, _ := newTestHook(t, config.FrequencyTask)
	w, path := newTestWatcher(t, h)

	appendEvents(t, path,
		`{"task_id":"1.1","task_title":"Add parser","spec_name":"commit-engine"}`,
		`{"task_id":"1.2","task_title":"Add store","spec_name":"commit-engine"}`,
	)

	w.drain(context.Background())

	require.Len(t, proc.calls, 2)
	assert.Equal(t, "1.1", proc.calls[0].TaskID)
	assert.Equal(t, "1.2", proc.calls[1].TaskID)
}

func TestDrainResumesFromOffset(t *testing.T) {
	h, proc, _ := newTestHook(t, config.FrequencyTask)
	w, path := newTestWatcher(t, h)

	appendEvents(t, path, `{"task_id":"1.1","task_title":"First"}`)
	w.drain(context.Background())
	require.Len(t, proc.calls, 1)

	appendEvents(t, path, `{"task_id":"1.2","task_title":"Second"}`)
	w.drain(context.Background())

	require.Len(t, proc.calls, 2)
	assert.Equal(t, "1.2", proc.calls[1].TaskID)
}

func TestDrainUnterminatedFinalLineNotReplayed(t *testing.T) {
	h, proc, _ := newTestHook(t, config.FrequencyTask)
	w, path := newTestWatcher(t, h)

	appendEvents(t, path, `{"task_id":"1.1","task_title":"First"}`)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"task_id":"1.2","task_title":"Second"}`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w.drain(context.Background())
	require.Len(t, proc.calls, 2)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), w.offset)

	// No new data: nothing must be re-dispatched.
	w.drain(context.Background())
	require.Len(t, proc.calls, 2)

	appendEvents(t, path, "", `{"task_id":"1.3","task_title":"Third"}`)
	w.drain(context.Background())

	require.Len(t, proc.calls, 3)
	assert.Equal(t, "1.3", proc.calls[2].TaskID)
}

func TestDrainLeavesPartialWriteForNextPass(t *testing.T) {
	h, proc, _ := newTestHook(t, config.FrequencyTask)
	w, path := newTestWatcher(t, h)

	appendEvents(t, path, `{"task_id":"1.1","task_title":"First"}`)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"task_id":"1.2","task_ti`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w.drain(context.Background())
	require.Len(t, proc.calls, 1)

	appendEvents(t, path, `tle":"Second"}`)
	w.drain(context.Background())

	require.Len(t, proc.calls, 2)
	assert.Equal(t, "Second", proc.calls[1].TaskTitle)
}

func TestDrainSkipsMalformedLines(t *testing.T) {
	h, proc, _ := newTestHook(t, config.FrequencyTask)
	w, path := newTestWatcher(t, h)

	appendEvents(t, path,
		`{not json`,
		`{"task_title":"missing id"}`,
		`{"task_id":"1.3","task_title":"Valid"}`,
	)

	w.drain(context.Background())

	require.Len(t, proc.calls, 1)
	assert.Equal(t, "1.3", proc.calls[0].TaskID)
}

func TestDrainMissingFileIsQuiet(t *testing.T) {
	h, proc, _ := newTestHook(t, config.FrequencyTask)
	w, _ := newTestWatcher(t, h)

	w.drain(context.Background())
	assert.Empty(t, proc.calls)
}

func TestDrainRestartsAfterTruncation(t *testing.T) {
	h, proc, _ := newTestHook(t, config.FrequencyTask)
	w, path := newTestWatcher(t, h)

	appendEvents(t, path,
		`{"task_id":"1.1","task_title":"First"}`,
		`{"task_id":"1.2","task_title":"Second"}`,
	)
	w.drain(context.Background())
	require.Len(t, proc.calls, 2)

	require.NoError(t, os.WriteFile(path, []byte(`{"task_id":"2.1","task_title":"Fresh"}`+"\n"), 0o644))
	w.drain(context.Background())

	require.Len(t, proc.calls, 3)
	assert.Equal(t, "2.1", proc.calls[2].TaskID)
}

func TestStartDispatchesBacklog(t *testing.T) {
	h, proc, _ := newTestHook(t, config.FrequencyTask)
	dir := t.TempDir()
	path := filepath.Join(dir, EventsFileName)
	for i := 0; i < 3; i++ {
		appendEvents(t, path, fmt.Sprintf(`{"task_id":"1.%d","task_title":"Task"}`, i+1))
	}

	w, err := NewWatcher(dir, h, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	assert.Len(t, proc.calls, 3)
}

func TestStopIsIdempotent(t *testing.T) {
	h, _, _ := newTestHook(t, config.FrequencyTask)
	w, _ := newTestWatcher(t, h)
	w.Stop()
	w.Stop()
}
