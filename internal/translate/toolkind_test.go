package translate

import (
	"testing"

	"github.com/coder/acp-go-sdk"
	"github.com/stretchr/testify/assert"
)

func TestToolKindClassification(t *testing.T) {
	assert.Equal(t, acp.ToolKindRead, ToolKind("Read"))
	assert.Equal(t, acp.ToolKindRead, ToolKind("Grep"))
	assert.Equal(t, acp.ToolKindEdit, ToolKind("Edit"))
	assert.Equal(t, acp.ToolKindExecute, ToolKind("Bash"))
	assert.Equal(t, acp.ToolKindFetch, ToolKind("WebFetch"))
	assert.Equal(t, acp.ToolKindOther, ToolKind("mcp__github__create_issue"))
	assert.Equal(t, acp.ToolKindOther, ToolKind("SomeUnknownTool"))
}

func TestToolTitlePrefersMeaningfulArgument(t *testing.T) {
	assert.Equal(t, "ls -la", ToolTitle("Bash", map[string]any{"command": "ls -la"}))
	assert.Equal(t, "/tmp/a.go", ToolTitle("Read", map[string]any{"file_path": "/tmp/a.go"}))
	assert.Equal(t, "Glob", ToolTitle("Glob", map[string]any{}))
}

func TestLocationsFromSinglePath(t *testing.T) {
	locs := Locations(map[string]any{"file_path": "/tmp/a.go", "line": float64(42)})
	if assert.Len(t, locs, 1) {
		assert.Equal(t, "/tmp/a.go", locs[0].Path)
		if assert.NotNil(t, locs[0].Line) {
			assert.Equal(t, 42, *locs[0].Line)
		}
	}
}

func TestLocationsFromMultiplePaths(t *testing.T) {
	locs := Locations(map[string]any{"file_paths": []any{"/a", "/b"}})
	assert.Len(t, locs, 2)
}

func TestDiffContentForEditRequiresFilePath(t *testing.T) {
	_, ok := DiffContent("Edit", map[string]any{"old_string": "a", "new_string": "b"})
	assert.False(t, ok)

	_, ok = DiffContent("Edit", map[string]any{"file_path": "/tmp/a.go", "old_string": "a", "new_string": "b"})
	assert.True(t, ok)
}

func TestPlanFromTodosMapsStatuses(t *testing.T) {
	_, ok := PlanFromTodos(map[string]any{
		"todos": []any{
			map[string]any{"content": "write tests", "status": "in_progress"},
			map[string]any{"content": "ship it", "status": "completed"},
			map[string]any{"content": "celebrate", "status": "pending"},
		},
	})
	assert.True(t, ok)
}

func TestPlanFromTodosEmptyIsFalse(t *testing.T) {
	_, ok := PlanFromTodos(map[string]any{"todos": []any{}})
	assert.False(t, ok)

	_, ok = PlanFromTodos(map[string]any{})
	assert.False(t, ok)
}

func TestIsFileEditToolAndTodoTool(t *testing.T) {
	assert.True(t, IsFileEditTool("Edit"))
	assert.True(t, IsFileEditTool("Write"))
	assert.False(t, IsFileEditTool("Read"))
	assert.True(t, IsTodoTool("TodoWrite"))
	assert.False(t, IsTodoTool("Bash"))
}
