package turn

import (
	"context"
	"fmt"
	"strings"

	"github.com/coder/acp-go-sdk"

	"github.com/kandev/claude-acp-agent/internal/session"
	"github.com/kandev/claude-acp-agent/internal/translate"
)

// ClientExecutor is the subset of acp.AgentSideConnection the driver uses to
// run a tool call on the client's behalf instead of letting Claude CLI
// execute its own builtin (C10 step 4: "the client owns the workspace; the
// agent only mediates requests"). Narrowed to one interface per RPC family
// so the driver can be tested without a real wire connection. Grounded on
// vvoland-cagent's a.conn.ReadTextFile call and the kandev acp.Client
// implementations, which reveal the real request/response field names.
type ClientExecutor interface {
	ReadTextFile(ctx context.Context, params acp.ReadTextFileRequest) (acp.ReadTextFileResponse, error)
	WriteTextFile(ctx context.Context, params acp.WriteTextFileRequest) (acp.WriteTextFileResponse, error)
	CreateTerminal(ctx context.Context, params acp.CreateTerminalRequest) (acp.CreateTerminalResponse, error)
	WaitForTerminalExit(ctx context.Context, params acp.WaitForTerminalExitRequest) (acp.WaitForTerminalExitResponse, error)
	TerminalOutput(ctx context.Context, params acp.TerminalOutputRequest) (acp.TerminalOutputResponse, error)
	ReleaseTerminal(ctx context.Context, params acp.ReleaseTerminalRequest) (acp.ReleaseTerminalResponse, error)
}

// clientCan reports whether sess's negotiated capabilities (C2) cover the
// RPC family kind needs.
func clientCan(caps session.ClientCapabilities, kind translate.ClientDispatch) bool {
	switch kind {
	case translate.DispatchFSRead:
		return caps.FSReadTextFile
	case translate.DispatchFSWrite:
		return caps.FSWriteTextFile
	case translate.DispatchTerminal:
		return caps.Terminal
	default:
		return false
	}
}

// dispatchToClient runs an approved tool call against the client instead of
// Claude CLI's own sandbox, returning the text to feed back as the tool's
// result and whether the run itself failed.
func dispatchToClient(ctx context.Context, exec ClientExecutor, sessionID, toolName string, input map[string]any) (string, bool, error) {
	switch translate.Dispatch(toolName) {
	case translate.DispatchFSRead:
		return dispatchRead(ctx, exec, sessionID, input)
	case translate.DispatchFSWrite:
		return dispatchWrite(ctx, exec, sessionID, toolName, input)
	case translate.DispatchTerminal:
		return dispatchBash(ctx, exec, sessionID, input)
	default:
		return "", false, fmt.Errorf("turn: %q has no client dispatch mapping", toolName)
	}
}

func dispatchRead(ctx context.Context, exec ClientExecutor, sessionID string, input map[string]any) (string, bool, error) {
	path, _ := input["file_path"].(string)
	if path == "" {
		return "", false, fmt.Errorf("turn: Read call missing file_path")
	}
	req := acp.ReadTextFileRequest{SessionId: acp.SessionId(sessionID), Path: path}
	if offset, ok := input["offset"].(float64); ok {
		line := int(offset)
		req.Line = &line
	}
	if limit, ok := input["limit"].(float64); ok {
		n := int(limit)
		req.Limit = &n
	}
	resp, err := exec.ReadTextFile(ctx, req)
	if err != nil {
		return err.Error(), true, nil
	}
	return resp.Content, false, nil
}

// dispatchWrite handles Write, Edit, and NotebookEdit, all of which reach
// the client as a single fs/write_text_file call. Edit only carries
// old_string/new_string, not the file's full content, so it round-trips
// through a read first.
func dispatchWrite(ctx context.Context, exec ClientExecutor, sessionID, toolName string, input map[string]any) (string, bool, error) {
	path, _ := input["file_path"].(string)
	if path == "" {
		return "", false, fmt.Errorf("turn: %s call missing file_path", toolName)
	}

	content, ok := input["content"].(string)
	if toolName == "Edit" {
		oldStr, _ := input["old_string"].(string)
		newStr, _ := input["new_string"].(string)
		current, err := exec.ReadTextFile(ctx, acp.ReadTextFileRequest{SessionId: acp.SessionId(sessionID), Path: path})
		if err != nil {
			return err.Error(), true, nil
		}
		if oldStr != "" && !strings.Contains(current.Content, oldStr) {
			return fmt.Sprintf("old_string not found in %s", path), true, nil
		}
		content = strings.Replace(current.Content, oldStr, newStr, 1)
		ok = true
	}
	if !ok {
		return "", false, fmt.Errorf("turn: %s call missing content", toolName)
	}

	if _, err := exec.WriteTextFile(ctx, acp.WriteTextFileRequest{SessionId: acp.SessionId(sessionID), Path: path, Content: content}); err != nil {
		return err.Error(), true, nil
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), false, nil
}

// dispatchBash runs Bash's command through terminal/create. Claude's Bash
// tool sends a single shell string, not an argv array, so it's split via
// /bin/sh -c the same way a shell would run it interactively.
func dispatchBash(ctx context.Context, exec ClientExecutor, sessionID string, input map[string]any) (string, bool, error) {
	command, _ := input["command"].(string)
	if command == "" {
		return "", false, fmt.Errorf("turn: Bash call missing command")
	}

	created, err := exec.CreateTerminal(ctx, acp.CreateTerminalRequest{
		SessionId: acp.SessionId(sessionID),
		Command:   "/bin/sh",
		Args:      []string{"-c", command},
	})
	if err != nil {
		return err.Error(), true, nil
	}
	defer func() {
		_, _ = exec.ReleaseTerminal(ctx, acp.ReleaseTerminalRequest{SessionId: acp.SessionId(sessionID), TerminalId: created.TerminalId})
	}()

	waitResp, err := exec.WaitForTerminalExit(ctx, acp.WaitForTerminalExitRequest{SessionId: acp.SessionId(sessionID), TerminalId: created.TerminalId})
	if err != nil {
		return err.Error(), true, nil
	}
	out, err := exec.TerminalOutput(ctx, acp.TerminalOutputRequest{SessionId: acp.SessionId(sessionID), TerminalId: created.TerminalId})
	if err != nil {
		return err.Error(), true, nil
	}

	failed := waitResp.ExitCode != nil && *waitResp.ExitCode != 0
	return out.Output, failed, nil
}
