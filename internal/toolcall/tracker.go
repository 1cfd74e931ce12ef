// Package toolcall implements the tool call tracker (C8): the per-turn
// ToolCallId -> ToolCallState map. After the initial tool_call, each
// tool_call_update carries only the fields its own transition sets.
package toolcall

import (
	"fmt"

	"github.com/coder/acp-go-sdk"

	"github.com/kandev/claude-acp-agent/internal/session"
	"github.com/kandev/claude-acp-agent/internal/translate"
)

// Tracker owns one turn's tool-call state. It is not safe for concurrent
// use from multiple goroutines; the turn driver (C10) owns it single-
// threaded alongside the rest of its per-turn state.
type Tracker struct {
	turn *session.PromptTurn

	// names maps toolUseID -> the tool's name, recorded at Start time since
	// tool_result blocks reference the call by id only.
	names map[string]string
}

// New wraps a turn's ToolCalls map.
func New(turn *session.PromptTurn) *Tracker {
	return &Tracker{turn: turn, names: make(map[string]string)}
}

// Start records a freshly observed tool_use block and returns the
// session/update to emit. Re-observing a known ToolCallID (Claude CLI does
// not do this in practice, but defensively) is a no-op that returns false.
func (t *Tracker) Start(toolUseID, name string, input map[string]any) (acp.SessionUpdate, bool) {
	if _, exists := t.turn.ToolCalls[toolUseID]; exists {
		return acp.SessionUpdate{}, false
	}
	state := &session.ToolCallState{
		ToolCallID: toolUseID,
		Title:      translate.ToolTitle(name, input),
		Kind:       translate.ToolKind(name),
		Status:     session.ToolCallPending,
		Locations:  translate.Locations(input),
		RawInput:   input,
	}
	state.LastSent = snapshot(state)
	t.turn.ToolCalls[toolUseID] = state
	// stash the originating tool name for the eventual Complete() call,
	// since tool_result blocks don't repeat it.
	t.names[toolUseID] = name
	return translate.ToolCallStart(toolUseID, name, input), true
}

// Complete records a tool_result and returns the terminal
// tool_call_update to emit. ok is false if the ToolCallID is unknown (the
// result arrived for a call this tracker never saw started, which would
// indicate a Claude CLI protocol violation) or the call already reached a
// terminal state — a denied or client-dispatched call already completed via
// the permission/dispatch path must not be overwritten by Claude CLI's own
// echoed tool_result for the same id.
func (t *Tracker) Complete(toolUseID, resultText string, isError bool) (acp.SessionUpdate, bool) {
	state, exists := t.turn.ToolCalls[toolUseID]
	if !exists || state.Status.Terminal() {
		return acp.SessionUpdate{}, false
	}
	name := t.names[toolUseID]
	state.Status = session.ToolCallCompleted
	if isError {
		state.Status = session.ToolCallFailed
	}
	state.RawOutput = resultText
	state.LastSent = snapshot(state)
	return translate.ToolCallResult(toolUseID, name, state.RawInput.(map[string]any), resultText, isError), true
}

// MarkInProgress transitions a tracked call to in_progress. The turn driver
// calls it when a can_use_tool ask for the call is approved, before the
// tool runs.
func (t *Tracker) MarkInProgress(toolUseID string) (acp.SessionUpdate, bool) {
	state, exists := t.turn.ToolCalls[toolUseID]
	if !exists || state.Status.Terminal() {
		return acp.SessionUpdate{}, false
	}
	state.Status = session.ToolCallInProgress
	update := acp.UpdateToolCall(acp.ToolCallId(toolUseID), acp.WithUpdateStatus(acp.ToolCallStatusInProgress))
	state.LastSent = snapshot(state)
	return update, true
}

// CancelAll transitions every non-terminal tracked call to cancelled and
// returns the updates to emit, used when a session/cancel arrives mid-turn.
func (t *Tracker) CancelAll() []acp.SessionUpdate {
	var updates []acp.SessionUpdate
	for id, state := range t.turn.ToolCalls {
		if state.Status.Terminal() {
			continue
		}
		state.Status = session.ToolCallCancelled
		state.LastSent = snapshot(state)
		updates = append(updates, acp.UpdateToolCall(acp.ToolCallId(id), acp.WithUpdateStatus(acp.ToolCallStatusCancelled)))
	}
	return updates
}

// Get returns the tracked state for a tool call id, for callers that need
// to inspect it directly.
func (t *Tracker) Get(toolUseID string) (*session.ToolCallState, bool) {
	state, ok := t.turn.ToolCalls[toolUseID]
	return state, ok
}

func snapshot(state *session.ToolCallState) session.ToolCallSnapshot {
	return session.ToolCallSnapshot{
		Status:    state.Status,
		Content:   state.Content,
		Locations: state.Locations,
	}
}

func (t *Tracker) String() string {
	return fmt.Sprintf("toolcall.Tracker{turn=%s, calls=%d}", t.turn.TurnID, len(t.turn.ToolCalls))
}
