// Package turn implements the prompt turn driver (C10): the per-turn state
// machine that sends one ACP prompt to the session's Claude CLI child,
// streams its stream-json output back as session/update notifications via
// C7/C8/C9, and decides the turn's terminal stop reason. Grounded on
// transport/streamjson/streamjson_prompt.go and streamjson_result.go's
// Prompt/handleResultMessage flow, rebuilt around this proxy's
// claudeproc.Subprocess instead of the teacher's pkg/claudecode.Client.
package turn

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coder/acp-go-sdk"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kandev/claude-acp-agent/internal/claudeproc"
	"github.com/kandev/claude-acp-agent/internal/common/apperr"
	"github.com/kandev/claude-acp-agent/internal/common/logger"
	"github.com/kandev/claude-acp-agent/internal/common/stringutil"
	"github.com/kandev/claude-acp-agent/internal/fanout"
	"github.com/kandev/claude-acp-agent/internal/permission"
	"github.com/kandev/claude-acp-agent/internal/session"
	"github.com/kandev/claude-acp-agent/internal/toolcall"
	"github.com/kandev/claude-acp-agent/internal/translate"
)

// maxLoggedLinePreview bounds how much of a malformed stream-json line gets
// echoed into the warning log, so one oversized line doesn't flood it.
const maxLoggedLinePreview = 500

// Notifier is the narrow interface the driver uses to push session/update
// notifications, satisfied by a session's fanout channel (C12). It returns
// an error so a send blocked past the channel's backpressure timeout can be
// surfaced as the internal error it is, instead of silently dropped.
type Notifier interface {
	Notify(acp.SessionUpdate) error
}

// ChanNotifier adapts a session's fanout.Channel to Notifier, routing every
// send through Channel.Send so its backpressure-timeout escalation (C12,
// "if blocked beyond a threshold, this is an internal error logged and the
// turn fails") actually applies to the production notification path.
type ChanNotifier struct {
	SessionID string
	Channel   *fanout.Channel
}

// Notify implements Notifier.
func (n ChanNotifier) Notify(update acp.SessionUpdate) error {
	return n.Channel.Send(acp.SessionNotification{SessionId: acp.SessionId(n.SessionID), Update: update})
}

// Config bounds one turn's execution.
type Config struct {
	MaxTurnRequests int
	MaxTokens       int64
}

// Driver runs prompt turns against a session's Claude CLI subprocess.
type Driver struct {
	cfg     Config
	engine  *permission.Engine
	log     *logger.Logger
}

// New constructs a Driver.
func New(cfg Config, engine *permission.Engine, log *logger.Logger) *Driver {
	return &Driver{cfg: cfg, engine: engine, log: log}
}

// Run drives one ACP session/prompt to completion: it writes the prompt to
// the subprocess, streams the response as session/update notifications, and
// returns the terminal stop reason. req is used for session/request_permission
// round trips; exec dispatches approved fs/terminal tool calls to the client
// (C10 step 4); notifier receives every session/update this turn produces.
func (d *Driver) Run(ctx context.Context, sess *session.Session, prompt []acp.ContentBlock, req permission.Requester, exec ClientExecutor, notifier Notifier) (acp.StopReason, error) {
	if sess.IsDead() {
		return "", apperr.New(apperr.CodeSubprocessDead, fmt.Sprintf("session %q's Claude process is no longer running", sess.ID))
	}

	turnTyped, err := sess.BeginTurn(uuid.NewString())
	if err != nil {
		return "", apperr.TurnInProgress(sess.ID)
	}
	defer sess.EndTurn()
	turnTyped.MaxTokens = d.cfg.MaxTokens

	tracker := toolcall.New(turnTyped)

	line, err := translate.ContentBlocksToPromptLine(prompt)
	if err != nil {
		return "", apperr.FromValidation(err)
	}

	if exceeded := turnTyped.IncrementRequestCount(d.cfg.MaxTurnRequests); exceeded {
		return session.StopMaxTurnRequests, nil
	}
	if err := sess.Subprocess.WriteLine(line); err != nil {
		sess.MarkDead()
		return "", apperr.Wrap(apperr.CodeSubprocessDead, "failed writing prompt to Claude CLI", err)
	}

	return d.pump(ctx, sess, turnTyped, tracker, req, exec, notifier)
}

// pump reads subprocess output until a terminal condition is reached:
// cancellation, a result message, token-limit overflow, or subprocess
// death.
func (d *Driver) pump(ctx context.Context, sess *session.Session, turnState *session.PromptTurn, tracker *toolcall.Tracker, req permission.Requester, exec ClientExecutor, notifier Notifier) (acp.StopReason, error) {
	lines := sess.Subprocess.Lines()

	for {
		select {
		case <-sess.Cancellation.Done():
			d.cancelInFlight(ctx, sess, tracker, notifier)
			return session.StopCancelled, nil

		case <-ctx.Done():
			d.cancelInFlight(ctx, sess, tracker, notifier)
			return session.StopCancelled, ctx.Err()

		case raw, ok := <-lines:
			if !ok {
				sess.MarkDead()
				return "", apperr.New(apperr.CodeSubprocessDead, "Claude CLI closed its output before completing the turn")
			}

			var msg claudeproc.Message
			if err := json.Unmarshal([]byte(raw), &msg); err != nil {
				if d.log != nil {
					preview := stringutil.TruncateStringWithEllipsis(raw, maxLoggedLinePreview)
					d.log.WithFields(zap.String("line", preview)).WithError(err).Warn("skipping malformed stream-json line")
				}
				continue
			}

			switch msg.Type {
			case claudeproc.TypeAssistant:
				stop, done, err := d.handleAssistant(ctx, sess, turnState, tracker, notifier, &msg)
				if err != nil {
					return "", err
				}
				if done {
					return stop, nil
				}

			case claudeproc.TypeUser:
				if err := d.handleUserEcho(notifier, &msg, tracker); err != nil {
					return "", err
				}

			case claudeproc.TypeControlRequest:
				stop, done, err := d.handleControlRequest(ctx, sess, tracker, req, exec, notifier, &msg)
				if err != nil {
					return "", err
				}
				if done {
					return stop, nil
				}

			case claudeproc.TypeResult:
				return translate.StopReasonFromResult(&msg, false, false), nil

			case claudeproc.TypeSystem:
				// init/status lines carry no session/update content of their own.
			}
		}
	}
}

// handleAssistant processes one assistant message's content blocks: text and
// thinking stream straight through; tool_use just starts a tracked call (and
// a plan update for TodoWrite). Permission gating and client-side tool
// dispatch happen entirely in handleControlRequest, which is the CLI's own
// can_use_tool ask and therefore runs before the tool executes anywhere —
// the CLI emits the tool_use first, so the call is already tracked when that
// ask arrives.
func (d *Driver) handleAssistant(ctx context.Context, sess *session.Session, turnState *session.PromptTurn, tracker *toolcall.Tracker, notifier Notifier, msg *claudeproc.Message) (acp.StopReason, bool, error) {
	if msg.Message == nil {
		return "", false, nil
	}
	if msg.Message.Usage != nil {
		turnState.TokenCount += msg.Message.Usage.InputTokens + msg.Message.Usage.OutputTokens
		if turnState.MaxTokens > 0 && turnState.TokenCount > turnState.MaxTokens {
			d.interrupt(ctx, sess)
			return session.StopMaxTokens, true, nil
		}
	}

	for _, block := range msg.Message.ContentBlocks() {
		switch block.Type {
		case "text":
			if block.Text != "" {
				if err := d.notify(notifier, acp.UpdateAgentMessageText(block.Text)); err != nil {
					return "", false, err
				}
			}
		case "thinking":
			if block.Thinking != "" {
				if err := d.notify(notifier, acp.UpdateAgentThoughtText(block.Thinking)); err != nil {
					return "", false, err
				}
			}
		case "tool_use":
			if update, started := tracker.Start(block.ID, block.Name, block.Input); started {
				if err := d.notify(notifier, update); err != nil {
					return "", false, err
				}
			}
			if translate.IsTodoTool(block.Name) {
				if plan, ok := translate.PlanFromTodos(block.Input); ok {
					if err := d.notify(notifier, plan); err != nil {
						return "", false, err
					}
				}
			}
		}
	}
	return "", false, nil
}

// handleUserEcho dispatches tool_result blocks Claude CLI echoes back in a
// synthetic "user" message, completing the matching tracked tool call. A
// client-dispatched or denied call is already terminal by the time this
// fires, so Tracker.Complete is a no-op for it — Claude CLI's own echoed
// result never overwrites the one the driver already reported.
func (d *Driver) handleUserEcho(notifier Notifier, msg *claudeproc.Message, tracker *toolcall.Tracker) error {
	for _, result := range translate.UserToolResults(msg) {
		if update, ok := tracker.Complete(result.ToolUseID, result.Text, result.IsError); ok {
			if err := d.notify(notifier, update); err != nil {
				return err
			}
		}
	}
	return nil
}

// handleControlRequest answers Claude CLI's can_use_tool control request —
// the live permission gate now that C5 no longer spawns with
// --dangerously-skip-permissions. A plain denial marks the tool call failed
// with a synthetic tool-result and lets the turn continue (§7: "the tool
// call is marked failed ... the turn continues"); only an actual Cancelled
// outcome ends the turn. An approved call whose tool kind maps to a client
// RPC (fs/terminal, gated by the session's negotiated capabilities) is
// denied to Claude CLI and instead run via exec, with the real result fed
// back on stdin via translate.ToolResultLine; anything else is allowed to
// run inside Claude CLI's own sandbox as before. Any control request
// subtype other than can_use_tool is unexpected here and answered with an
// error response rather than ignored silently.
func (d *Driver) handleControlRequest(ctx context.Context, sess *session.Session, tracker *toolcall.Tracker, req permission.Requester, exec ClientExecutor, notifier Notifier, msg *claudeproc.Message) (acp.StopReason, bool, error) {
	if msg.Request == nil || msg.Request.Subtype != claudeproc.SubtypeCanUseTool {
		err := sess.Subprocess.WriteLine(claudeproc.ControlResponseLine{
			Type:      claudeproc.TypeControlResponse,
			RequestID: msg.RequestID,
			Response:  claudeproc.ControlResponseBody{Subtype: "error"},
		})
		return "", false, err
	}

	toolUseID := msg.Request.ToolUseID
	toolName := msg.Request.ToolName
	input := msg.Request.Input

	decision, err := d.checkPermission(ctx, sess, req, toolUseID, toolName, input)
	if err != nil {
		return "", false, err
	}

	if decision.Cancelled {
		if err := d.respondControl(sess, msg.RequestID, claudeproc.BehaviorDeny); err != nil {
			return "", false, err
		}
		d.cancelInFlight(ctx, sess, tracker, notifier)
		return session.StopCancelled, true, nil
	}

	if !decision.Allow {
		if err := d.respondControl(sess, msg.RequestID, claudeproc.BehaviorDeny); err != nil {
			return "", false, err
		}
		if update, ok := tracker.Complete(toolUseID, "Permission denied by client.", true); ok {
			if err := d.notify(notifier, update); err != nil {
				return "", false, err
			}
		}
		return "", false, nil
	}

	if update, ok := tracker.MarkInProgress(toolUseID); ok {
		if err := d.notify(notifier, update); err != nil {
			return "", false, err
		}
	}

	kind := translate.Dispatch(toolName)
	if kind == translate.DispatchNone || exec == nil || !clientCan(sess.ClientCapabilities, kind) {
		err := d.respondControl(sess, msg.RequestID, claudeproc.BehaviorAllow)
		return "", false, err
	}

	if turn := sess.ActiveTurn(); turn != nil && turn.IncrementRequestCount(d.cfg.MaxTurnRequests) {
		if err := d.respondControl(sess, msg.RequestID, claudeproc.BehaviorDeny); err != nil {
			return "", false, err
		}
		d.cancelInFlight(ctx, sess, tracker, notifier)
		return session.StopMaxTurnRequests, true, nil
	}

	if err := d.respondControl(sess, msg.RequestID, claudeproc.BehaviorDeny); err != nil {
		return "", false, err
	}

	output, isError, err := dispatchToClient(ctx, exec, sess.ID, toolName, input)
	if err != nil {
		return "", false, apperr.Wrap(apperr.CodeInternal, "client tool dispatch failed", err)
	}

	if err := sess.Subprocess.WriteLine(translate.ToolResultLine(toolUseID, output, isError)); err != nil {
		sess.MarkDead()
		return "", false, apperr.Wrap(apperr.CodeSubprocessDead, "failed writing client tool result to Claude CLI", err)
	}

	if update, ok := tracker.Complete(toolUseID, output, isError); ok {
		if err := d.notify(notifier, update); err != nil {
			return "", false, err
		}
	}
	return "", false, nil
}

// respondControl answers a can_use_tool control request with a bare
// allow/deny behavior.
func (d *Driver) respondControl(sess *session.Session, requestID, behavior string) error {
	return sess.Subprocess.WriteLine(claudeproc.ControlResponseLine{
		Type:      claudeproc.TypeControlResponse,
		RequestID: requestID,
		Response: claudeproc.ControlResponseBody{
			Subtype: "success",
			Result:  &claudeproc.PermissionResult{Behavior: behavior},
		},
	})
}

// notify wraps a Notifier.Notify call, turning a backpressure-timeout or
// delivery failure into the internal error that fails the turn (C12, C5
// Concurrency: "if blocked beyond a threshold, this is an internal error
// logged and the turn fails").
func (d *Driver) notify(notifier Notifier, update acp.SessionUpdate) error {
	if err := notifier.Notify(update); err != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to deliver session/update", err)
	}
	return nil
}

func (d *Driver) checkPermission(ctx context.Context, sess *session.Session, req permission.Requester, toolUseID, toolName string, input map[string]any) (permission.Decision, error) {
	if permission.Classify(toolName) == permission.RiskSafe {
		return permission.Decision{Allow: true}, nil
	}
	toolCall := permission.ToolCallFor(toolUseID, translate.ToolTitle(toolName, input), translate.ToolKind(toolName), input)
	decision, err := d.engine.Check(ctx, req, sess, toolCall, toolName, input)
	if err != nil {
		return permission.Decision{}, apperr.Wrap(apperr.CodeInternal, "permission check failed", err)
	}
	return decision, nil
}

// interrupt asks the subprocess to stop its current turn; failures are
// logged, not fatal, since the turn is ending regardless.
func (d *Driver) interrupt(ctx context.Context, sess *session.Session) {
	err := sess.Subprocess.WriteLine(claudeproc.ControlRequestLine{
		Type:      claudeproc.TypeControlRequest,
		RequestID: uuid.NewString(),
		Request:   claudeproc.ControlRequestLineBody{Subtype: claudeproc.SubtypeInterrupt},
	})
	if err != nil && d.log != nil {
		d.log.WithError(err).Warn("failed to send interrupt to Claude CLI")
	}
}

// cancelInFlight interrupts the subprocess and cancels every non-terminal
// tracked tool call. The turn is ending regardless, so a notification
// delivery failure here is logged rather than propagated.
func (d *Driver) cancelInFlight(ctx context.Context, sess *session.Session, tracker *toolcall.Tracker, notifier Notifier) {
	d.interrupt(ctx, sess)
	for _, u := range tracker.CancelAll() {
		if err := notifier.Notify(u); err != nil && d.log != nil {
			d.log.WithError(err).Warn("failed to deliver tool-call cancellation notification")
		}
	}
}
