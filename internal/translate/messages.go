// Package translate implements the protocol translator (C7): pure,
// side-effect-free conversions between Claude CLI's stream-json messages and
// ACP session/update notifications. Grounded on
// transport/streamjson/streamjson_messages.go's per-block handlers, adapted
// from that package's mutable-session style into stateless functions —
// callers (the turn driver, C10) own any state (token counters, tool-call
// tracking) and pass it in explicitly.
package translate

import (
	"fmt"

	"github.com/coder/acp-go-sdk"

	"github.com/kandev/claude-acp-agent/internal/claudeproc"
	"github.com/kandev/claude-acp-agent/internal/validate"
)

// AssistantBlocks converts one assistant message's content blocks into zero
// or more ACP session/update notifications, in wire order. Tool-call starts
// are reported as acp.ToolCallStatusPending; the turn driver moves them to
// in_progress when their can_use_tool ask is approved and to
// completed/failed once the matching tool result arrives.
func AssistantBlocks(msg *claudeproc.Message) []acp.SessionUpdate {
	if msg.Message == nil {
		return nil
	}
	var updates []acp.SessionUpdate
	for _, block := range msg.Message.ContentBlocks() {
		switch block.Type {
		case "text":
			if block.Text != "" {
				updates = append(updates, acp.UpdateAgentMessageText(block.Text))
			}
		case "thinking":
			if block.Thinking != "" {
				updates = append(updates, acp.UpdateAgentThoughtText(block.Thinking))
			}
		case "tool_use":
			updates = append(updates, ToolCallStart(block.ID, block.Name, block.Input))
			if IsTodoTool(block.Name) {
				if plan, ok := PlanFromTodos(block.Input); ok {
					updates = append(updates, plan)
				}
			}
		}
	}
	return updates
}

// ToolCallStart builds the initial tool_call session/update for a freshly
// observed tool_use block.
func ToolCallStart(toolUseID, name string, input map[string]any) acp.SessionUpdate {
	kind := ToolKind(name)
	title := ToolTitle(name, input)
	opts := []acp.ToolCallStartOpt{
		acp.WithStartKind(kind),
		acp.WithStartStatus(acp.ToolCallStatusPending),
		acp.WithStartRawInput(input),
	}
	if locs := Locations(input); len(locs) > 0 {
		opts = append(opts, acp.WithStartLocations(locs))
	}
	return acp.StartToolCall(acp.ToolCallId(toolUseID), title, opts...)
}

// ToolCallResult builds the terminal tool_call_update for a tool_result
// content block, given the original tool_use's name and input (the tracker,
// C8, supplies these from its recorded ToolCallState since tool_result
// blocks don't repeat them). isError distinguishes a failed from a
// completed status.
func ToolCallResult(toolUseID, toolName string, input map[string]any, resultText string, isError bool) acp.SessionUpdate {
	status := acp.ToolCallStatusCompleted
	if isError {
		status = acp.ToolCallStatusFailed
	}

	if !isError && IsFileEditTool(toolName) {
		if diff, ok := DiffContent(toolName, input); ok {
			return acp.UpdateToolCall(
				acp.ToolCallId(toolUseID),
				acp.WithUpdateStatus(status),
				acp.WithUpdateContent([]acp.ToolCallContent{diff}),
				acp.WithUpdateRawOutput(map[string]any{"content": resultText}),
			)
		}
	}

	return acp.UpdateToolCall(
		acp.ToolCallId(toolUseID),
		acp.WithUpdateStatus(status),
		acp.WithUpdateContent([]acp.ToolCallContent{acp.ToolContent(acp.TextBlock(resultText))}),
		acp.WithUpdateRawOutput(map[string]any{"content": resultText}),
	)
}

// UserToolResults extracts (toolUseID, text, isError) triples from a user
// message's tool_result content blocks. Claude CLI echoes tool results back
// as a synthetic "user" message rather than a dedicated message type.
func UserToolResults(msg *claudeproc.Message) []ToolResult {
	if msg.Message == nil {
		return nil
	}
	var results []ToolResult
	for _, block := range msg.Message.ContentBlocks() {
		if block.Type != "tool_result" {
			continue
		}
		results = append(results, ToolResult{
			ToolUseID: block.ToolUseID,
			Text:      block.Content,
			IsError:   block.IsError,
		})
	}
	return results
}

// ToolResult is one decoded tool_result content block.
type ToolResult struct {
	ToolUseID string
	Text      string
	IsError   bool
}

// StopReasonFromResult maps a terminal "result" message to an ACP
// StopReason. Claude CLI's is_error flag collapses several distinct failure
// modes; turnExceeded and refused let the turn driver (which tracks request
// counts and refusal text itself) override the default mapping.
func StopReasonFromResult(msg *claudeproc.Message, turnExceeded, refused bool) acp.StopReason {
	switch {
	case turnExceeded:
		return acp.StopReasonMaxTurnRequests
	case refused:
		return acp.StopReasonRefusal
	case msg.IsError:
		return acp.StopReasonRefusal
	default:
		return acp.StopReasonEndTurn
	}
}

// ResultText extracts the human-readable summary text from a terminal
// result message, for diagnostics/logging (it is not itself forwarded as a
// session/update — the text content already streamed via assistant blocks).
func ResultText(msg *claudeproc.Message) string {
	if data := msg.ResultData(); data != nil {
		return data.Text
	}
	return msg.ResultString()
}

// ContentBlocksToPromptLine converts an ACP PromptRequest's content blocks
// into the stream-json user-message line sent on Claude CLI's stdin.
// Embedded resources and resource links are rendered as fenced text
// sections (Claude CLI has no first-class "attachment" wire shape); image
// blocks pass through as base64 content parts understood by the CLI's own
// multimodal handling.
func ContentBlocksToPromptLine(blocks []acp.ContentBlock) (claudeproc.UserLine, error) {
	var parts []map[string]any
	totalLen := 0
	for _, block := range blocks {
		switch {
		case block.Text != nil:
			totalLen += len(block.Text.Text)
			parts = append(parts, map[string]any{"type": "text", "text": block.Text.Text})
		case block.Image != nil:
			if err := validate.Base64("image.data", block.Image.Data, 0); err != nil {
				return claudeproc.UserLine{}, err
			}
			parts = append(parts, map[string]any{
				"type": "image",
				"source": map[string]any{
					"type":       "base64",
					"media_type": block.Image.MimeType,
					"data":       block.Image.Data,
				},
			})
		case block.ResourceLink != nil:
			parts = append(parts, map[string]any{
				"type": "text",
				"text": fmt.Sprintf("[Referenced file: %s (%s)]", block.ResourceLink.Name, block.ResourceLink.Uri),
			})
		case block.Resource != nil:
			if text := block.Resource.Resource.TextResourceContents; text != nil {
				totalLen += len(text.Text)
				parts = append(parts, map[string]any{
					"type": "text",
					"text": fmt.Sprintf("--- Resource: %s ---\n%s", text.Uri, text.Text),
				})
			}
		}
	}
	if len(parts) == 0 {
		return claudeproc.UserLine{}, fmt.Errorf("translate: prompt has no convertible content blocks")
	}
	if err := validate.Prompt(totalLen); err != nil {
		return claudeproc.UserLine{}, err
	}
	return claudeproc.UserLine{
		Type: claudeproc.TypeUser,
		Message: claudeproc.UserLineBody{
			Role:    "user",
			Content: parts,
		},
	}, nil
}

// ToolResultLine builds the stream-json line feeding a client-executed
// tool's result back onto Claude CLI's stdin, for tool_use blocks the turn
// driver (C10) dispatched to the client (fs/terminal round trip) instead of
// letting Claude CLI run its own builtin. Shaped like the tool_result blocks
// Claude CLI itself echoes back in a "user" message, so the CLI folds it
// into its own transcript the same way it would its own tool output.
func ToolResultLine(toolUseID string, output string, isError bool) claudeproc.UserLine {
	return claudeproc.UserLine{
		Type: claudeproc.TypeUser,
		Message: claudeproc.UserLineBody{
			Role: "user",
			Content: []map[string]any{
				{
					"type":        "tool_result",
					"tool_use_id": toolUseID,
					"content":     output,
					"is_error":    isError,
				},
			},
		},
	}
}
