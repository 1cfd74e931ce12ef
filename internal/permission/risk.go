package permission

// Risk classifies a tool's potential impact, per SPEC_FULL.md's risk
// policy: destructive tools always ask, moderate tools ask unless the
// security profile says otherwise, safe tools never ask.
type Risk string

const (
	RiskDestructive Risk = "destructive"
	RiskModerate    Risk = "moderate"
	RiskSafe        Risk = "safe"
)

// Claude CLI builtin tool names, mirrored from internal/translate/toolkind.go
// (kept local rather than imported so the risk table reads standalone next
// to the classification it implements).
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

// Classify maps a tool name to its risk tier. MCP-provided tools
// ("mcp__server__tool") and any unrecognized builtin default to moderate:
// the proxy cannot know their side effects, so it errs toward asking.
func Classify(toolName string) Risk {
	switch toolName {
	case toolBash:
		return RiskDestructive
	case toolWrite, toolEdit, toolNotebookEdit, toolWebFetch, toolTask:
		return RiskModerate
	case toolRead, toolGlob, toolGrep, toolWebSearch, toolTodoWrite:
		return RiskSafe
	default:
		return RiskModerate
	}
}
