package permission

import (
	"context"
	"testing"

	"github.com/coder/acp-go-sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/claude-acp-agent/internal/session"
)

type fakeRequester struct {
	optionID string
	cancel   bool
	calls    int
}

func (f *fakeRequester) RequestPermission(_ context.Context, _ acp.RequestPermissionRequest) (acp.RequestPermissionResponse, error) {
	f.calls++
	if f.cancel {
		return acp.RequestPermissionResponse{Outcome: acp.RequestPermissionOutcome{Cancelled: &acp.RequestPermissionOutcomeCancelled{}}}, nil
	}
	return acp.RequestPermissionResponse{
		Outcome: acp.RequestPermissionOutcome{
			Selected: &acp.RequestPermissionOutcomeSelected{OptionId: acp.PermissionOptionId(f.optionID)},
		},
	}, nil
}

func TestFingerprintStableAcrossKeyOrder(t *testing.T) {
	a := Fingerprint("Write", map[string]any{"file_path": "/tmp/a", "content": "x"})
	b := Fingerprint("Write", map[string]any{"content": "x", "file_path": "/tmp/a"})
	assert.Equal(t, a, b)
}

func TestSafeToolNeverAsks(t *testing.T) {
	eng := New(ProfileModerate)
	req := &fakeRequester{}
	sess := session.NewSession("sess_1", "/tmp", nil, session.ClientCapabilities{})

	toolCall := ToolCallFor("call-1", "Read /tmp/a", acp.ToolKindRead, map[string]any{"file_path": "/tmp/a"})
	decision, err := eng.Check(context.Background(), req, sess, toolCall, "Read", map[string]any{"file_path": "/tmp/a"})

	require.NoError(t, err)
	assert.True(t, decision.Allow)
	assert.Equal(t, 0, req.calls, "safe tools must never trigger a permission round trip")
}

func TestPermissiveProfileAutoAllowsModerate(t *testing.T) {
	eng := New(ProfilePermissive)
	req := &fakeRequester{}
	sess := session.NewSession("sess_1", "/tmp", nil, session.ClientCapabilities{})

	toolCall := ToolCallFor("call-1", "Write /tmp/a", acp.ToolKindEdit, map[string]any{"file_path": "/tmp/a"})
	decision, err := eng.Check(context.Background(), req, sess, toolCall, "Write", map[string]any{"file_path": "/tmp/a"})

	require.NoError(t, err)
	assert.True(t, decision.Allow)
	assert.Equal(t, 0, req.calls)
}

func TestAllowAlwaysIsMemoized(t *testing.T) {
	eng := New(ProfileModerate)
	req := &fakeRequester{optionID: optionAllowAlways}
	sess := session.NewSession("sess_1", "/tmp", nil, session.ClientCapabilities{})

	input := map[string]any{"file_path": "/tmp/a"}
	toolCall := ToolCallFor("call-1", "Write /tmp/a", acp.ToolKindEdit, input)

	first, err := eng.Check(context.Background(), req, sess, toolCall, "Write", input)
	require.NoError(t, err)
	assert.True(t, first.Allow)
	assert.Equal(t, 1, req.calls)

	second, err := eng.Check(context.Background(), req, sess, toolCall, "Write", input)
	require.NoError(t, err)
	assert.True(t, second.Allow)
	assert.Equal(t, 1, req.calls, "second check with the same fingerprint should hit permission_memory, not ask again")
}

func TestCancelledOutcomeIsReported(t *testing.T) {
	eng := New(ProfileModerate)
	req := &fakeRequester{cancel: true}
	sess := session.NewSession("sess_1", "/tmp", nil, session.ClientCapabilities{})

	input := map[string]any{"command": "rm -rf /tmp/x"}
	toolCall := ToolCallFor("call-1", "rm -rf /tmp/x", acp.ToolKindExecute, input)

	decision, err := eng.Check(context.Background(), req, sess, toolCall, "Bash", input)
	require.NoError(t, err)
	assert.True(t, decision.Cancelled)
	assert.False(t, decision.Allow)
}
