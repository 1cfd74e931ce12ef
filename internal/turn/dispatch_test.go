package turn

import (
	"context"
	"testing"

	"github.com/coder/acp-go-sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/claude-acp-agent/internal/session"
	"github.com/kandev/claude-acp-agent/internal/translate"
)

type fakeExecutor struct {
	readContent   string
	readErr       error
	writeErr      error
	writtenPath   string
	writtenBody   string
	terminalID    string
	createErr     error
	exitCode      *int
	waitErr       error
	output        string
	outputErr     error
	released      bool
}

func (f *fakeExecutor) ReadTextFile(_ context.Context, p acp.ReadTextFileRequest) (acp.ReadTextFileResponse, error) {
	if f.readErr != nil {
		return acp.ReadTextFileResponse{}, f.readErr
	}
	return acp.ReadTextFileResponse{Content: f.readContent}, nil
}

func (f *fakeExecutor) WriteTextFile(_ context.Context, p acp.WriteTextFileRequest) (acp.WriteTextFileResponse, error) {
	f.writtenPath = p.Path
	f.writtenBody = p.Content
	if f.writeErr != nil {
		return acp.WriteTextFileResponse{}, f.writeErr
	}
	return acp.WriteTextFileResponse{}, nil
}

func (f *fakeExecutor) CreateTerminal(_ context.Context, _ acp.CreateTerminalRequest) (acp.CreateTerminalResponse, error) {
	if f.createErr != nil {
		return acp.CreateTerminalResponse{}, f.createErr
	}
	return acp.CreateTerminalResponse{TerminalId: f.terminalID}, nil
}

func (f *fakeExecutor) WaitForTerminalExit(_ context.Context, _ acp.WaitForTerminalExitRequest) (acp.WaitForTerminalExitResponse, error) {
	if f.waitErr != nil {
		return acp.WaitForTerminalExitResponse{}, f.waitErr
	}
	return acp.WaitForTerminalExitResponse{ExitCode: f.exitCode}, nil
}

func (f *fakeExecutor) TerminalOutput(_ context.Context, _ acp.TerminalOutputRequest) (acp.TerminalOutputResponse, error) {
	if f.outputErr != nil {
		return acp.TerminalOutputResponse{}, f.outputErr
	}
	return acp.TerminalOutputResponse{Output: f.output}, nil
}

func (f *fakeExecutor) ReleaseTerminal(_ context.Context, _ acp.ReleaseTerminalRequest) (acp.ReleaseTerminalResponse, error) {
	f.released = true
	return acp.ReleaseTerminalResponse{}, nil
}

func TestDispatchReadReturnsFileContent(t *testing.T) {
	exec := &fakeExecutor{readContent: "package main\n"}
	text, isError, err := dispatchToClient(context.Background(), exec, "sess-1", "Read", map[string]any{"file_path": "/tmp/a.go"})
	require.NoError(t, err)
	assert.False(t, isError)
	assert.Equal(t, "package main\n", text)
}

func TestDispatchReadMissingPathIsError(t *testing.T) {
	exec := &fakeExecutor{}
	_, _, err := dispatchToClient(context.Background(), exec, "sess-1", "Read", map[string]any{})
	assert.Error(t, err)
}

func TestDispatchWriteSendsFullContent(t *testing.T) {
	exec := &fakeExecutor{}
	_, isError, err := dispatchToClient(context.Background(), exec, "sess-1", "Write", map[string]any{
		"file_path": "/tmp/b.go",
		"content":   "new file\n",
	})
	require.NoError(t, err)
	assert.False(t, isError)
	assert.Equal(t, "/tmp/b.go", exec.writtenPath)
	assert.Equal(t, "new file\n", exec.writtenBody)
}

func TestDispatchEditSubstitutesIntoCurrentContent(t *testing.T) {
	exec := &fakeExecutor{readContent: "hello world\n"}
	_, isError, err := dispatchToClient(context.Background(), exec, "sess-1", "Edit", map[string]any{
		"file_path":  "/tmp/c.go",
		"old_string": "world",
		"new_string": "there",
	})
	require.NoError(t, err)
	assert.False(t, isError)
	assert.Equal(t, "hello there\n", exec.writtenBody)
}

func TestDispatchEditOldStringNotFoundIsFailedResult(t *testing.T) {
	exec := &fakeExecutor{readContent: "hello world\n"}
	_, isError, err := dispatchToClient(context.Background(), exec, "sess-1", "Edit", map[string]any{
		"file_path":  "/tmp/c.go",
		"old_string": "nope",
		"new_string": "there",
	})
	require.NoError(t, err)
	assert.True(t, isError, "a missing old_string should fail the tool call, not the dispatch itself")
}

func TestDispatchBashRunsCommandAndReleasesTerminal(t *testing.T) {
	zero := 0
	exec := &fakeExecutor{terminalID: "term-1", exitCode: &zero, output: "ok\n"}
	text, isError, err := dispatchToClient(context.Background(), exec, "sess-1", "Bash", map[string]any{"command": "echo ok"})
	require.NoError(t, err)
	assert.False(t, isError)
	assert.Equal(t, "ok\n", text)
	assert.True(t, exec.released, "the terminal must be released once its output has been read")
}

func TestDispatchBashNonZeroExitIsFailedResult(t *testing.T) {
	one := 1
	exec := &fakeExecutor{terminalID: "term-1", exitCode: &one, output: "boom\n"}
	_, isError, err := dispatchToClient(context.Background(), exec, "sess-1", "Bash", map[string]any{"command": "false"})
	require.NoError(t, err)
	assert.True(t, isError)
}

func TestDispatchUnmappedToolNameErrors(t *testing.T) {
	exec := &fakeExecutor{}
	_, _, err := dispatchToClient(context.Background(), exec, "sess-1", "Glob", map[string]any{"pattern": "*.go"})
	assert.Error(t, err)
}

func TestClientCanChecksNegotiatedCapability(t *testing.T) {
	caps := session.ClientCapabilities{FSReadTextFile: true}
	assert.True(t, clientCan(caps, translate.DispatchFSRead))
	assert.False(t, clientCan(caps, translate.DispatchFSWrite))
	assert.False(t, clientCan(caps, translate.DispatchTerminal))
	assert.False(t, clientCan(caps, translate.DispatchNone))
}
