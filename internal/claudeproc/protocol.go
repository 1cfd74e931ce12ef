// Package claudeproc owns the Claude CLI child process (C5): the
// stream-json wire contract it speaks, and the pipe plumbing to spawn, feed,
// and terminate it. Decoding a line into an ACP SessionUpdate is the
// translate package's job (C7); this package only describes the shape of
// that line and shuttles bytes.
package claudeproc

import "encoding/json"

// Message types observed on Claude CLI stdout/stdin. The distilled spec's
// stream-json enum only named system/assistant/result; control_request,
// control_response, and user are required in practice for the permission
// round-trip (C9) and tool-result feedback (C10 step 4), so they're named
// here explicitly.
const (
	TypeSystem          = "system"
	TypeAssistant       = "assistant"
	TypeUser            = "user"
	TypeResult          = "result"
	TypeControlRequest  = "control_request"
	TypeControlResponse = "control_response"
)

// Control request subtypes (agent<->CLI, distinct from ACP request methods).
const (
	SubtypeInitialize    = "initialize"
	SubtypeCanUseTool    = "can_use_tool"
	SubtypeInterrupt     = "interrupt"
)

// Permission behaviors accepted in a can_use_tool control response.
const (
	BehaviorAllow = "allow"
	BehaviorDeny  = "deny"
)

// Message is a single decoded stream-json line. The Type field determines
// which of the remaining fields are meaningful; unused fields are left zero.
type Message struct {
	Type string `json:"type"`

	// system (subtype "init")
	SessionID     string   `json:"session_id,omitempty"`
	SessionStatus string   `json:"session_status,omitempty"`
	Subtype       string   `json:"subtype,omitempty"`
	SlashCommands []string `json:"slash_commands,omitempty"`

	// assistant
	Message         *AssistantBody `json:"message,omitempty"`
	ParentToolUseID string         `json:"parent_tool_use_id,omitempty"`

	// result
	Result            json.RawMessage `json:"result,omitempty"`
	IsError           bool            `json:"is_error,omitempty"`
	Errors            []string        `json:"errors,omitempty"`
	NumTurns          int             `json:"num_turns,omitempty"`
	TotalInputTokens  int64           `json:"total_input_tokens,omitempty"`
	TotalOutputTokens int64           `json:"total_output_tokens,omitempty"`

	// control_request (CLI -> agent)
	RequestID string          `json:"request_id,omitempty"`
	Request   *ControlRequest `json:"request,omitempty"`

	// control_response (CLI -> agent, reply to a request we sent)
	Response *ControlResponse `json:"response,omitempty"`
}

// AssistantBody is the body of an assistant (or user) message. Content can
// be a plain string (echoed prompts) or a []ContentBlock array; callers use
// ContentBlocks()/ContentString() to disambiguate.
type AssistantBody struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content,omitempty"`
	Model   string          `json:"model,omitempty"`
	Usage   *Usage          `json:"usage,omitempty"`
	StopReason string       `json:"stop_reason,omitempty"`
}

// ContentBlocks parses Content as a content-block array; nil if Content is a
// plain string or absent.
func (b *AssistantBody) ContentBlocks() []ContentBlock {
	if len(b.Content) == 0 {
		return nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(b.Content, &blocks); err != nil {
		return nil
	}
	return blocks
}

// ContentString parses Content as a plain string; empty if Content is a
// block array or absent.
func (b *AssistantBody) ContentString() string {
	if len(b.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(b.Content, &s); err != nil {
		return ""
	}
	return s
}

// ContentBlock is one element of an assistant/user message's content array.
type ContentBlock struct {
	Type string `json:"type"`

	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`

	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Usage carries token accounting from an assistant message or result.
type Usage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens,omitempty"`
}

// ResultPayload is the structured form of Message.Result for a successful
// turn. Result may also be a bare error string; use ResultData()/ResultText.
type ResultPayload struct {
	Text      string `json:"text,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// ResultData parses Result as a ResultPayload, or nil if it's a bare string.
func (m *Message) ResultData() *ResultPayload {
	if len(m.Result) == 0 {
		return nil
	}
	var data ResultPayload
	if err := json.Unmarshal(m.Result, &data); err != nil {
		return nil
	}
	return &data
}

// ResultString parses Result as a bare string (used for error results).
func (m *Message) ResultString() string {
	if len(m.Result) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Result, &s); err != nil {
		return ""
	}
	return s
}

// ControlRequest is the body of an inbound control_request, used for the
// CLI's can_use_tool permission asks. Requests the agent sends use
// ControlRequestLine.
type ControlRequest struct {
	Subtype string `json:"subtype"`

	// can_use_tool
	ToolName  string         `json:"tool_name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
}

// ControlResponse is a control_response body: either an initialize result or
// a permission decision, keyed by Subtype ("success"/"error").
type ControlResponse struct {
	Subtype string           `json:"subtype"`
	Result  *PermissionResult `json:"result,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// PermissionResult is the payload of a can_use_tool control response.
type PermissionResult struct {
	Behavior string `json:"behavior"`
	Message  string `json:"message,omitempty"`
}

// --- Outbound message constructors (agent -> CLI stdin) ---

// UserLine builds a plain-text user message line.
type UserLine struct {
	Type    string      `json:"type"`
	Message UserLineBody `json:"message"`
}

// UserLineBody is the body of a UserLine.
type UserLineBody struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ControlRequestLine is a control_request the agent sends to the CLI; the
// driver only sends interrupt.
type ControlRequestLine struct {
	Type      string                 `json:"type"`
	RequestID string                 `json:"request_id"`
	Request   ControlRequestLineBody `json:"request"`
}

// ControlRequestLineBody is the body of an outbound control request.
type ControlRequestLineBody struct {
	Subtype string `json:"subtype"`
}

// ControlResponseLine is the agent's reply to a can_use_tool control request.
type ControlResponseLine struct {
	Type      string               `json:"type"`
	RequestID string               `json:"request_id"`
	Response  ControlResponseBody  `json:"response"`
}

// ControlResponseBody is the body of an outbound control response.
type ControlResponseBody struct {
	Subtype string            `json:"subtype"`
	Result  *PermissionResult `json:"result,omitempty"`
}
