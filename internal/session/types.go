// Package session implements the session store (C4): the thread-safe
// SessionId -> Session map plus the PromptTurn and ToolCallState models that
// live inside each session.
package session

import (
	"sync"

	"github.com/coder/acp-go-sdk"

	"github.com/kandev/claude-acp-agent/internal/claudeproc"
	"github.com/kandev/claude-acp-agent/internal/fanout"
)

// StopReason is an alias of acp.StopReason, so values are interchangeable
// with the SDK type.
type StopReason = acp.StopReason

const (
	StopEndTurn         = acp.StopReasonEndTurn
	StopMaxTokens       = acp.StopReasonMaxTokens
	StopMaxTurnRequests = acp.StopReasonMaxTurnRequests
	StopRefusal         = acp.StopReasonRefusal
	StopCancelled       = acp.StopReasonCancelled
)

// ToolCallStatus mirrors the five states a tool call passes through.
type ToolCallStatus string

const (
	ToolCallPending    ToolCallStatus = "pending"
	ToolCallInProgress ToolCallStatus = "in_progress"
	ToolCallCompleted  ToolCallStatus = "completed"
	ToolCallFailed     ToolCallStatus = "failed"
	ToolCallCancelled  ToolCallStatus = "cancelled"
)

// Terminal reports whether the status is one of the three terminal states.
func (s ToolCallStatus) Terminal() bool {
	return s == ToolCallCompleted || s == ToolCallFailed || s == ToolCallCancelled
}

// ToolCallState is the tracker's per-call record (C8). Fields mirror the ACP
// tool_call / tool_call_update union; LastSent is the last snapshot emitted
// on the wire.
type ToolCallState struct {
	ToolCallID string
	Title      string
	Kind       acp.ToolKind
	Status     ToolCallStatus
	Locations  []acp.ToolCallLocation
	Content    []acp.ToolCallContent
	RawInput   any
	RawOutput  any

	// LastSent is a shallow copy of the fields last written to the wire,
	// recorded by the tracker on every transition; nothing reads it back.
	LastSent ToolCallSnapshot
}

// ToolCallSnapshot is the subset of ToolCallState compared across updates.
type ToolCallSnapshot struct {
	Status    ToolCallStatus
	Content   []acp.ToolCallContent
	Locations []acp.ToolCallLocation
}

// PromptTurn is the per-turn state machine (C10's state). Only one may be
// active per session at a time.
type PromptTurn struct {
	TurnID        string
	RequestCount  int
	TokenCount    int64
	MaxTokens     int64
	ToolCalls     map[string]*ToolCallState
	StopReason    StopReason
	mu            sync.Mutex
}

// NewPromptTurn allocates an empty turn state.
func NewPromptTurn(turnID string) *PromptTurn {
	return &PromptTurn{
		TurnID:    turnID,
		ToolCalls: make(map[string]*ToolCallState),
	}
}

// IncrementRequestCount bumps the per-turn counter of requests written to
// Claude's stdin (the prompt and each client-executed tool result) and
// reports whether it now exceeds maxTurnRequests.
func (t *PromptTurn) IncrementRequestCount(maxTurnRequests int) (exceeded bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.RequestCount++
	return t.RequestCount > maxTurnRequests
}

// CancelSignal is a single-consumer cancellation flag with wait support,
// used by the session's turn driver to observe session/cancel.
type CancelSignal struct {
	mu        sync.Mutex
	cancelled bool
	ch        chan struct{}
}

// NewCancelSignal constructs an unset signal.
func NewCancelSignal() *CancelSignal {
	return &CancelSignal{ch: make(chan struct{})}
}

// Cancel marks the signal. Idempotent.
func (c *CancelSignal) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cancelled {
		c.cancelled = true
		close(c.ch)
	}
}

// IsCancelled reports whether Cancel has been called.
func (c *CancelSignal) IsCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Done returns a channel closed when Cancel is called, for use in selects.
func (c *CancelSignal) Done() <-chan struct{} {
	return c.ch
}

// McpServerRef is the opaque MCP server descriptor forwarded at session
// creation; the proxy never connects to it itself (client responsibility).
type McpServerRef struct {
	Name      string
	Transport string
	Raw       any
}

// ClientCapabilities is the snapshot of fs/terminal capability bits declared
// by the client at initialize time.
type ClientCapabilities struct {
	FSReadTextFile  bool
	FSWriteTextFile bool
	Terminal        bool
}

// Session is the long-lived logical conversation: its cwd, MCP servers,
// subprocess, notification channel, cancellation signal, and at most one
// active PromptTurn.
type Session struct {
	ID                 string
	Cwd                string
	McpServers         []McpServerRef
	ClientCapabilities ClientCapabilities

	Subprocess *claudeproc.Subprocess

	// NotificationSender is the session's bounded session/update fanout
	// channel (C12); Send honors its backpressure timeout instead of
	// blocking forever on a wedged or slow client.
	NotificationSender *fanout.Channel

	Cancellation *CancelSignal

	mu              sync.Mutex
	turn            *PromptTurn
	permissionMemory map[string]string // fingerprint -> "allow"|"reject"
	dead            bool
}

// NewSession constructs a Session with fresh cancellation/permission state.
// The caller is responsible for wiring NotificationSender and Subprocess.
func NewSession(id, cwd string, mcpServers []McpServerRef, caps ClientCapabilities) *Session {
	return &Session{
		ID:                 id,
		Cwd:                cwd,
		McpServers:         mcpServers,
		ClientCapabilities: caps,
		Cancellation:       NewCancelSignal(),
		permissionMemory:   make(map[string]string),
	}
}

// BeginTurn installs a new PromptTurn, failing if one is already active.
func (s *Session) BeginTurn(turnID string) (*PromptTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turn != nil {
		return nil, errTurnInProgress
	}
	s.turn = NewPromptTurn(turnID)
	return s.turn, nil
}

// EndTurn clears the active turn, making the session available for the next
// session/prompt.
func (s *Session) EndTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turn = nil
}

// ActiveTurn returns the currently active turn, or nil.
func (s *Session) ActiveTurn() *PromptTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}

// MarkDead flags the session as unusable after an unexpected subprocess
// exit; subsequent prompts must fail fast per C6's contract.
func (s *Session) MarkDead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead = true
}

// IsDead reports whether the session's subprocess has exited unexpectedly.
func (s *Session) IsDead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dead
}

// RememberPermission persists an "always" decision for a tool fingerprint,
// valid for the lifetime of the process (in-memory; no file-backed store).
func (s *Session) RememberPermission(fingerprint, decision string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissionMemory[fingerprint] = decision
}

// RecallPermission returns a previously remembered "always" decision for a
// fingerprint, if any.
func (s *Session) RecallPermission(fingerprint string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.permissionMemory[fingerprint]
	return d, ok
}

var errTurnInProgress = &turnInProgressError{}

type turnInProgressError struct{}

func (e *turnInProgressError) Error() string { return "turn already in progress" }

// IsTurnInProgress reports whether err is the turn-in-progress sentinel
// returned by BeginTurn, without pulling apperr into this package (apperr
// depends on validate, not session; session stays a leaf in that respect).
func IsTurnInProgress(err error) bool {
	_, ok := err.(*turnInProgressError)
	return ok
}
