package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
)

var toolCallCounter int

func nextToolID() string {
	toolCallCounter++
	return fmt.Sprintf("mock_tool_%04d", toolCallCounter)
}

// runScenario emits one simulated Claude CLI turn for prompt, chosen by a
// leading slash command in Claude Code's own convention; anything else gets
// a plain canned response. Trimmed to the tool families the turn driver
// actually distinguishes: Read/Edit/Bash are client-dispatch eligible
// (internal/turn/dispatch.go), Grep and TodoWrite are not.
func runScenario(enc *json.Encoder, scanner *bufio.Scanner, prompt string) {
	emitSystem(enc)
	prompt = strings.TrimSpace(prompt)

	customResult := false
	switch {
	case strings.EqualFold(prompt, "/error"):
		scenarioError(enc)
		customResult = true
	case strings.EqualFold(prompt, "/thinking"):
		scenarioThinking(enc)
	case strings.EqualFold(prompt, "/tool:read"):
		scenarioRead(enc, scanner)
	case strings.EqualFold(prompt, "/tool:edit"):
		scenarioEdit(enc, scanner)
	case strings.EqualFold(prompt, "/tool:exec"):
		scenarioExec(enc, scanner)
	case strings.EqualFold(prompt, "/tool:search"):
		scenarioSearch(enc, scanner)
	case strings.EqualFold(prompt, "/todo"):
		scenarioTodo(enc, scanner)
	case strings.EqualFold(prompt, "/denied"):
		scenarioDenied(enc, scanner)
	case strings.EqualFold(prompt, "/all"):
		scenarioAll(enc, scanner)
	default:
		emitText(enc, fmt.Sprintf("Mock response to: %q", prompt))
	}

	if !customResult {
		emitResult(enc, false, "Mock turn completed successfully.")
	}
}

func scenarioError(enc *json.Encoder) {
	emitText(enc, "Simulating an error condition...")
	emitResult(enc, true, "mock error: something went wrong during processing")
}

func scenarioThinking(enc *json.Encoder) {
	emitThinking(enc, "Let me think through this step by step...")
	emitText(enc, "Here's my answer after reasoning it through.")
}

// scenarioRead emits a Read tool_use against a real workspace file. Whether
// the result came from this process's own canned read or a client dispatch
// is invisible at this layer; resolveToolCall only needs the permission
// outcome to decide which text to echo.
func scenarioRead(enc *json.Encoder, scanner *bufio.Scanner) {
	f := randomFile()
	toolID := nextToolID()
	input := map[string]any{"file_path": f.absPath}
	emitToolUse(enc, toolID, "Read", input)
	resolveToolCall(enc, scanner, "Read", toolID, input, func() (string, bool) {
		return readFileSnippet(f.absPath, 20), false
	})
	emitText(enc, "Read complete.")
}

func scenarioEdit(enc *json.Encoder, scanner *bufio.Scanner) {
	f := randomFile()
	oldStr, newStr := pickEditableFragment(f.absPath)
	toolID := nextToolID()
	input := map[string]any{"file_path": f.absPath, "old_string": oldStr, "new_string": newStr}
	emitToolUse(enc, toolID, "Edit", input)
	_, isError := resolveToolCall(enc, scanner, "Edit", toolID, input, func() (string, bool) {
		return "File edited successfully: " + f.absPath, false
	})
	if isError {
		emitText(enc, "Edit was not permitted.")
	} else {
		emitText(enc, "Edit complete.")
	}
}

func scenarioExec(enc *json.Encoder, scanner *bufio.Scanner) {
	toolID := nextToolID()
	input := map[string]any{"command": "echo mock", "description": "Print a mock message"}
	emitToolUse(enc, toolID, "Bash", input)
	resolveToolCall(enc, scanner, "Bash", toolID, input, func() (string, bool) {
		return "mock\n", false
	})
	emitText(enc, "Command complete.")
}

// scenarioSearch emits a Grep tool_use. Grep has no client dispatch mapping
// (translate.Dispatch), so the driver always allows it to run in Claude
// CLI's own sandbox regardless of negotiated capabilities.
func scenarioSearch(enc *json.Encoder, scanner *bufio.Scanner) {
	f := randomFile()
	toolID := nextToolID()
	input := map[string]any{"pattern": "func ", "path": f.absPath}
	emitToolUse(enc, toolID, "Grep", input)

	paths := randomFilePaths(3)
	var results []string
	for i, p := range paths {
		results = append(results, fmt.Sprintf("%s:%d: func found here", p, (i+1)*10))
	}
	resolveToolCall(enc, scanner, "Grep", toolID, input, func() (string, bool) {
		return strings.Join(results, "\n"), false
	})
	emitText(enc, "Search complete.")
}

// scenarioTodo emits a TodoWrite tool_use, which the driver also turns into
// a plan update (translate.PlanFromTodos) alongside the tool_call itself.
func scenarioTodo(enc *json.Encoder, scanner *bufio.Scanner) {
	toolID := nextToolID()
	input := map[string]any{
		"todos": []map[string]any{
			{"id": "1", "content": "Review code changes", "status": "in_progress"},
			{"id": "2", "content": "Run tests", "status": "pending"},
		},
	}
	emitToolUse(enc, toolID, "TodoWrite", input)
	resolveToolCall(enc, scanner, "TodoWrite", toolID, input, func() (string, bool) {
		return "Todo list updated: 2 items", false
	})
}

// scenarioDenied sends a deliberately high-risk Bash call to exercise the
// permission engine's deny path and confirm the turn continues afterward
// instead of ending (only an actual cancellation should end it).
func scenarioDenied(enc *json.Encoder, scanner *bufio.Scanner) {
	toolID := nextToolID()
	input := map[string]any{"command": "rm -rf /", "description": "intentionally high-risk for permission testing"}
	emitToolUse(enc, toolID, "Bash", input)
	_, isError := resolveToolCall(enc, scanner, "Bash", toolID, input, func() (string, bool) {
		return "ran", false
	})
	if isError {
		emitText(enc, "That command was not permitted, but the turn continues.")
	} else {
		emitText(enc, "Command ran.")
	}
}

func scenarioAll(enc *json.Encoder, scanner *bufio.Scanner) {
	scenarioThinking(enc)
	scenarioRead(enc, scanner)
	scenarioEdit(enc, scanner)
	scenarioExec(enc, scanner)
	scenarioSearch(enc, scanner)
	scenarioTodo(enc, scanner)
	emitText(enc, "All tool types demonstrated.")
}
