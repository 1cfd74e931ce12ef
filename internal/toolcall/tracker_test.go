package toolcall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/claude-acp-agent/internal/session"
)

func TestTrackerStartThenComplete(t *testing.T) {
	turn := session.NewPromptTurn("turn-1")
	tr := New(turn)

	_, ok := tr.Start("call-1", "Read", map[string]any{"file_path": "/tmp/a.go"})
	require.True(t, ok)

	state, found := tr.Get("call-1")
	require.True(t, found)
	assert.Equal(t, session.ToolCallPending, state.Status)
	assert.Equal(t, "/tmp/a.go", state.Title)

	_, ok = tr.Complete("call-1", "file contents", false)
	require.True(t, ok)

	state, _ = tr.Get("call-1")
	assert.Equal(t, session.ToolCallCompleted, state.Status)
}

func TestTrackerFullLifecycleSequence(t *testing.T) {
	turn := session.NewPromptTurn("turn-1")
	tr := New(turn)

	_, ok := tr.Start("call-1", "Bash", map[string]any{"command": "ls"})
	require.True(t, ok)
	state, _ := tr.Get("call-1")
	require.Equal(t, session.ToolCallPending, state.Status)

	_, ok = tr.MarkInProgress("call-1")
	require.True(t, ok)
	state, _ = tr.Get("call-1")
	require.Equal(t, session.ToolCallInProgress, state.Status)

	_, ok = tr.Complete("call-1", "done", false)
	require.True(t, ok)
	state, _ = tr.Get("call-1")
	assert.Equal(t, session.ToolCallCompleted, state.Status)
}

func TestTrackerMarkInProgressUnknownCallFails(t *testing.T) {
	turn := session.NewPromptTurn("turn-1")
	tr := New(turn)

	_, ok := tr.MarkInProgress("never-started")
	assert.False(t, ok)
}

func TestTrackerCompleteIsNoopOnceTerminal(t *testing.T) {
	turn := session.NewPromptTurn("turn-1")
	tr := New(turn)

	tr.Start("call-1", "Read", map[string]any{"file_path": "/tmp/a.go"})
	_, ok := tr.Complete("call-1", "permission denied", true)
	require.True(t, ok)

	// Claude CLI's own echoed tool_result for the same id must not overwrite
	// a result the driver already reported (denial or client dispatch).
	_, ok = tr.Complete("call-1", "some other result", false)
	assert.False(t, ok, "completing an already-terminal call should be a no-op")

	state, _ := tr.Get("call-1")
	assert.Equal(t, session.ToolCallFailed, state.Status)
	assert.Equal(t, "permission denied", state.RawOutput)
}

func TestTrackerStartTwiceIsNoop(t *testing.T) {
	turn := session.NewPromptTurn("turn-1")
	tr := New(turn)

	_, ok := tr.Start("call-1", "Bash", map[string]any{"command": "ls"})
	require.True(t, ok)

	_, ok = tr.Start("call-1", "Bash", map[string]any{"command": "ls"})
	assert.False(t, ok, "re-starting a known tool call id should be a no-op")
}

func TestTrackerCompleteUnknownCallFails(t *testing.T) {
	turn := session.NewPromptTurn("turn-1")
	tr := New(turn)

	_, ok := tr.Complete("never-started", "result", false)
	assert.False(t, ok)
}

func TestTrackerCancelAllSkipsTerminalCalls(t *testing.T) {
	turn := session.NewPromptTurn("turn-1")
	tr := New(turn)

	tr.Start("call-1", "Read", map[string]any{"file_path": "/tmp/a.go"})
	tr.Start("call-2", "Bash", map[string]any{"command": "sleep 10"})
	tr.Complete("call-1", "done", false)

	updates := tr.CancelAll()
	assert.Len(t, updates, 1, "only the non-terminal call should be cancelled")

	state1, _ := tr.Get("call-1")
	assert.Equal(t, session.ToolCallCompleted, state1.Status)

	state2, _ := tr.Get("call-2")
	assert.Equal(t, session.ToolCallCancelled, state2.Status)
}
