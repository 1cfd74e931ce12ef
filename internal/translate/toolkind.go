package translate

import (
	"strings"

	"github.com/coder/acp-go-sdk"
)

// Claude CLI's built-in tool names, grounded on pkg/claudecode/types.go's
// Tool* constants (the same constant set Claude Code itself uses on the
// wire inside tool_use content blocks).
const (
	toolBash         = "Bash"
	toolWrite        = "Write"
	toolEdit         = "Edit"
	toolNotebookEdit = "NotebookEdit"
	toolRead         = "Read"
	toolGlob         = "Glob"
	toolGrep         = "Grep"
	toolTask         = "Task"
	toolTodoWrite    = "TodoWrite"
	toolWebFetch     = "WebFetch"
	toolWebSearch    = "WebSearch"
)

// ToolKind classifies a Claude CLI tool_use block's name into the ACP
// ToolKind enum, used for the Kind of session/update tool_call notifications
// and of permission requests; the permission engine's risk policy (C9)
// classifies tool names separately (permission.Classify). Grounded on cagent's
// determineToolKind, rebased from MCP-style snake_case tool names onto
// Claude Code's actual PascalCase builtin set plus an MCP passthrough rule
// for "mcp__server__tool" names.
func ToolKind(name string) acp.ToolKind {
	switch name {
	case toolRead, toolGlob, toolGrep, toolWebSearch:
		return acp.ToolKindRead
	case toolWrite, toolEdit, toolNotebookEdit:
		return acp.ToolKindEdit
	case toolBash:
		return acp.ToolKindExecute
	case toolWebFetch:
		return acp.ToolKindFetch
	case toolTask:
		return acp.ToolKindSwitchMode
	case toolTodoWrite:
		return acp.ToolKindThink
	}
	switch {
	case strings.HasPrefix(name, "mcp__"):
		return acp.ToolKindOther
	case strings.HasPrefix(name, "Task"):
		return acp.ToolKindOther
	}
	return acp.ToolKindOther
}

// ToolTitle produces a human-readable title for a tool call notification.
// Claude CLI doesn't send a separate display title, so this derives one
// from the tool name and (for file tools) the path argument.
func ToolTitle(name string, input map[string]any) string {
	switch name {
	case toolBash:
		if cmd, ok := input["command"].(string); ok && cmd != "" {
			return cmd
		}
	case toolRead, toolWrite, toolEdit, toolNotebookEdit:
		if path, ok := input["file_path"].(string); ok && path != "" {
			return path
		}
	case toolGlob, toolGrep:
		if pattern, ok := input["pattern"].(string); ok && pattern != "" {
			return pattern
		}
	case toolWebFetch:
		if url, ok := input["url"].(string); ok && url != "" {
			return url
		}
	}
	return name
}

// Locations extracts file locations referenced by a tool call's input, for
// the tool_call.locations field ACP clients use to open affected files.
// Grounded on cagent's extractLocations, adjusted to Claude Code's actual
// argument names (file_path, not path/file/filename).
func Locations(input map[string]any) []acp.ToolCallLocation {
	if path, ok := input["file_path"].(string); ok && path != "" {
		loc := acp.ToolCallLocation{Path: path}
		if line, ok := input["line"].(float64); ok {
			lineInt := int(line)
			loc.Line = &lineInt
		}
		return []acp.ToolCallLocation{loc}
	}
	if paths, ok := input["file_paths"].([]any); ok {
		locations := make([]acp.ToolCallLocation, 0, len(paths))
		for _, p := range paths {
			if s, ok := p.(string); ok && s != "" {
				locations = append(locations, acp.ToolCallLocation{Path: s})
			}
		}
		return locations
	}
	return nil
}

// ClientDispatch identifies the client RPC, if any, that can execute a
// Claude CLI builtin tool on the client's behalf instead of inside Claude
// CLI's own sandbox. Grounded on the same fs/read_text_file, fs/write_text_file
// and terminal/* methods the ACP client.go implementations expose.
type ClientDispatch string

const (
	DispatchNone     ClientDispatch = ""
	DispatchFSRead   ClientDispatch = "fs_read"
	DispatchFSWrite  ClientDispatch = "fs_write"
	DispatchTerminal ClientDispatch = "terminal"
)

// Dispatch classifies a tool_use block's name into the client RPC category
// that can run it, or DispatchNone if no ACP client method covers it (Glob,
// Grep, WebSearch, WebFetch, Task, TodoWrite, and mcp__* tools all fall
// through to Claude CLI's own sandboxed execution since ACP exposes no
// client-side equivalent for them).
func Dispatch(name string) ClientDispatch {
	switch name {
	case toolRead:
		return DispatchFSRead
	case toolWrite, toolEdit, toolNotebookEdit:
		return DispatchFSWrite
	case toolBash:
		return DispatchTerminal
	default:
		return DispatchNone
	}
}

// IsFileEditTool reports whether name is one of the tools whose tool_result
// should be rendered as a diff content block instead of plain text.
func IsFileEditTool(name string) bool {
	return name == toolEdit || name == toolWrite
}

// DiffContent builds a tool_call diff content block from an Edit or Write
// tool's recorded input, mirroring what Claude CLI actually changed on
// disk. Returns false if the input doesn't carry enough to build one.
func DiffContent(toolName string, input map[string]any) (acp.ToolCallContent, bool) {
	path, ok := input["file_path"].(string)
	if !ok || path == "" {
		return acp.ToolCallContent{}, false
	}
	switch toolName {
	case toolEdit:
		oldText, _ := input["old_string"].(string)
		newText, _ := input["new_string"].(string)
		return acp.ToolDiffContent(path, newText, oldText), true
	case toolWrite:
		content, _ := input["content"].(string)
		return acp.ToolDiffContent(path, content), true
	}
	return acp.ToolCallContent{}, false
}

// IsTodoTool reports whether name is Claude CLI's plan-tracking tool, whose
// tool_use input feeds an ACP plan update alongside its tool_call.
func IsTodoTool(name string) bool {
	return name == toolTodoWrite
}

// todoItem mirrors one entry of TodoWrite's "todos" input array.
type todoItem struct {
	Content  string `json:"content"`
	Status   string `json:"status"`
	Priority string `json:"priority,omitempty"`
}

// PlanFromTodos converts a TodoWrite tool_use's input into an ACP plan
// update. Returns false if input doesn't carry a recognizable todos array.
func PlanFromTodos(input map[string]any) (acp.SessionUpdate, bool) {
	raw, ok := input["todos"].([]any)
	if !ok || len(raw) == 0 {
		return acp.SessionUpdate{}, false
	}
	entries := make([]acp.PlanEntry, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		content, _ := m["content"].(string)
		status, _ := m["status"].(string)
		entries = append(entries, acp.PlanEntry{
			Content:  content,
			Status:   mapTodoStatus(status),
			Priority: acp.PlanEntryPriorityMedium,
		})
	}
	if len(entries) == 0 {
		return acp.SessionUpdate{}, false
	}
	return acp.UpdatePlan(entries...), true
}

func mapTodoStatus(status string) acp.PlanEntryStatus {
	switch status {
	case "in_progress":
		return acp.PlanEntryStatusInProgress
	case "completed":
		return acp.PlanEntryStatusCompleted
	default:
		return acp.PlanEntryStatusPending
	}
}
