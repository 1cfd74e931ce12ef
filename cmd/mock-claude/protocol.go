package main

import (
	"encoding/json"

	"github.com/kandev/claude-acp-agent/internal/claudeproc"
)

// incomingLine is the shape of every line this process's stdin carries: the
// initial prompt arrives as a "user" message (translate.ContentBlocksToPromptLine),
// and a can_use_tool ask gets answered as a control_response
// (turn.Driver.respondControl). Reuses claudeproc's own wire types instead of
// a parallel struct set, since this process sits on the exact same pipe
// claudeproc.Subprocess does, just from the other end.
type incomingLine struct {
	Type      string                           `json:"type"`
	RequestID string                           `json:"request_id,omitempty"`
	Message   *incomingUserBody                `json:"message,omitempty"`
	Response  *claudeproc.ControlResponseBody  `json:"response,omitempty"`
}

type incomingUserBody struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// promptText extracts the first text block from a user message's content.
// The initial prompt line is always plain text parts built by
// translate.ContentBlocksToPromptLine; a client-dispatched tool's echoed
// result (translate.ToolResultLine) carries a tool_result block instead and
// has no text part, so this returns "" for it and callers skip the line.
func (b *incomingUserBody) promptText() string {
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(b.Content, &blocks); err != nil {
		return ""
	}
	for _, blk := range blocks {
		if blk.Type == "text" && blk.Text != "" {
			return blk.Text
		}
	}
	return ""
}

// outboundControlRequest is the can_use_tool ask this process sends upstream
// (mirroring the shape Claude CLI itself emits as a control_request), built
// directly from claudeproc.ControlRequest rather than a duplicate struct.
type outboundControlRequest struct {
	Type      string                    `json:"type"`
	RequestID string                    `json:"request_id"`
	Request   claudeproc.ControlRequest `json:"request"`
}

func writeLine(enc *json.Encoder, v any) {
	_ = enc.Encode(v)
}

func emitSystem(enc *json.Encoder) {
	writeLine(enc, claudeproc.Message{
		Type:          claudeproc.TypeSystem,
		SessionID:     sessionID,
		SessionStatus: "active",
	})
}

func marshalBlocks(blocks ...claudeproc.ContentBlock) json.RawMessage {
	raw, _ := json.Marshal(blocks)
	return raw
}

func emitAssistant(enc *json.Encoder, stopReason string, blocks ...claudeproc.ContentBlock) {
	writeLine(enc, claudeproc.Message{
		Type: claudeproc.TypeAssistant,
		Message: &claudeproc.AssistantBody{
			Role:       "assistant",
			Content:    marshalBlocks(blocks...),
			Model:      "mock-claude",
			StopReason: stopReason,
			Usage:      &claudeproc.Usage{InputTokens: 1200, OutputTokens: 350},
		},
	})
}

func emitText(enc *json.Encoder, text string) {
	emitAssistant(enc, "end_turn", claudeproc.ContentBlock{Type: "text", Text: text})
}

func emitThinking(enc *json.Encoder, thought string) {
	emitAssistant(enc, "", claudeproc.ContentBlock{Type: "thinking", Thinking: thought})
}

func emitToolUse(enc *json.Encoder, id, name string, input map[string]any) {
	emitAssistant(enc, "tool_use", claudeproc.ContentBlock{Type: "tool_use", ID: id, Name: name, Input: input})
}

// emitToolResult echoes a tool_result back in a "user" message, the way
// Claude CLI folds its own tool output into the transcript. Emitted
// unconditionally, on both allow and deny, since a real can_use_tool deny is
// assumed to make Claude CLI synthesize its own result rather than wait on
// the agent — the same assumption toolcall.Tracker.Complete's terminal guard
// is built to tolerate when a client-dispatched result also arrives for the
// same id.
func emitToolResult(enc *json.Encoder, toolUseID, content string, isError bool) {
	writeLine(enc, claudeproc.Message{
		Type: claudeproc.TypeUser,
		Message: &claudeproc.AssistantBody{
			Role:    "user",
			Content: marshalBlocks(claudeproc.ContentBlock{Type: "tool_result", ToolUseID: toolUseID, Content: content, IsError: isError}),
		},
	})
}

func emitResult(enc *json.Encoder, isError bool, text string) {
	var raw json.RawMessage
	if isError {
		raw, _ = json.Marshal(text)
	} else {
		raw, _ = json.Marshal(claudeproc.ResultPayload{Text: text, SessionID: sessionID})
	}
	writeLine(enc, claudeproc.Message{
		Type:              claudeproc.TypeResult,
		Result:            raw,
		IsError:           isError,
		NumTurns:          1,
		TotalInputTokens:  1500,
		TotalOutputTokens: 500,
	})
}
