package main

import (
	"bufio"
	"encoding/json"
	"fmt"

	"github.com/kandev/claude-acp-agent/internal/claudeproc"
)

// askPermission sends a can_use_tool control request for a tool_use block
// and blocks for the matching control_response, returning the granted
// behavior. This is the exact request turn.Driver.handleControlRequest reads
// off the other end of the pipe and the exact response respondControl
// writes back.
func askPermission(enc *json.Encoder, scanner *bufio.Scanner, toolName, toolUseID string, input map[string]any) string {
	requestID := fmt.Sprintf("mock-perm-%s-%s", toolName, toolUseID)
	writeLine(enc, outboundControlRequest{
		Type:      claudeproc.TypeControlRequest,
		RequestID: requestID,
		Request: claudeproc.ControlRequest{
			Subtype:   claudeproc.SubtypeCanUseTool,
			ToolName:  toolName,
			Input:     input,
			ToolUseID: toolUseID,
		},
	})

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg incomingLine
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		if msg.Type == claudeproc.TypeControlResponse && msg.RequestID == requestID {
			if msg.Response != nil && msg.Response.Result != nil {
				return msg.Response.Result.Behavior
			}
			return claudeproc.BehaviorDeny
		}
	}
	return claudeproc.BehaviorDeny
}

// resolveToolCall asks permission for a tool_use, then always echoes a
// tool_result: selfRun's output on allow, a synthetic denial on deny. It
// never waits on a second result arriving from the client-dispatch path
// (C10 step 4) — see emitToolResult's doc comment for why that's safe.
func resolveToolCall(enc *json.Encoder, scanner *bufio.Scanner, toolName, toolID string, input map[string]any, selfRun func() (string, bool)) (string, bool) {
	if askPermission(enc, scanner, toolName, toolID, input) != claudeproc.BehaviorAllow {
		content := "Permission denied by client."
		emitToolResult(enc, toolID, content, true)
		return content, true
	}
	content, isError := selfRun()
	emitToolResult(enc, toolID, content, isError)
	return content, isError
}
