package acpagent

import (
	"context"
	"fmt"

	"github.com/coder/acp-go-sdk"
	"go.uber.org/zap"

	"github.com/kandev/claude-acp-agent/internal/claudeproc"
	"github.com/kandev/claude-acp-agent/internal/common/apperr"
	"github.com/kandev/claude-acp-agent/internal/common/logger"
	"github.com/kandev/claude-acp-agent/internal/fanout"
	"github.com/kandev/claude-acp-agent/internal/permission"
	"github.com/kandev/claude-acp-agent/internal/procmanager"
	"github.com/kandev/claude-acp-agent/internal/session"
	"github.com/kandev/claude-acp-agent/internal/turn"
)

// agentName/agentVersion identify this proxy to the ACP client in
// InitializeResponse.AgentInfo.
const agentName = "claude-acp-agent"

var agentVersion = "dev"

// SubprocessConfig carries the knobs needed to spawn a Claude CLI child for
// a new session.
type SubprocessConfig struct {
	Bin       string
	ExtraArgs []string
}

// Config bundles everything the Agent needs beyond what initialize supplies.
type Config struct {
	Subprocess      SubprocessConfig
	MaxTurnRequests int
	MaxTokens       int64
	SecurityProfile permission.Profile
	Version         string
}

// Agent implements acp.Agent (C11's dispatcher), wiring together the
// session store (C4), subprocess manager (C6), permission engine (C9), and
// turn driver (C10) behind the ACP wire. Grounded on cagent's acp.Agent
// implementation shape, generalized from cagent's in-process team runtime
// to a Claude CLI subprocess per session.
type Agent struct {
	cfg Config
	log *logger.Logger

	registry *Registry
	store    *session.Store
	procs    *procmanager.Manager
	driver   *turn.Driver

	conn *acp.AgentSideConnection

	channels map[string]*fanout.Channel
}

var _ acp.Agent = (*Agent)(nil)

// New constructs an Agent. SetAgentConnection must be called once the SDK
// hands back the connection before any session/new request can complete.
func New(cfg Config, log *logger.Logger) *Agent {
	if cfg.Version != "" {
		agentVersion = cfg.Version
	}
	registry := &Registry{}
	engine := permission.New(cfg.SecurityProfile)
	a := &Agent{
		cfg:      cfg,
		log:      log,
		registry: registry,
		store:    session.NewStore(),
		channels: make(map[string]*fanout.Channel),
	}
	a.procs = procmanager.New(log, a.onSubprocessDead)
	a.driver = turn.New(turn.Config{MaxTurnRequests: cfg.MaxTurnRequests, MaxTokens: cfg.MaxTokens}, engine, log)
	return a
}

// SetAgentConnection wires the SDK connection used for outbound client
// requests (session/update, session/request_permission, fs/*).
func (a *Agent) SetAgentConnection(conn *acp.AgentSideConnection) {
	a.conn = conn
}

// Initialize implements acp.Agent.
func (a *Agent) Initialize(_ context.Context, params acp.InitializeRequest) (acp.InitializeResponse, error) {
	agentCaps := acp.AgentCapabilities{
		LoadSession: false,
		PromptCapabilities: acp.PromptCapabilities{
			EmbeddedContext: true,
			Image:           true,
			Audio:           false,
		},
		McpCapabilities: acp.McpCapabilities{
			Http: false,
			Sse:  false,
		},
	}
	a.registry.Set(agentCaps, params.ClientCapabilities)

	title := "Claude ACP Agent"
	return acp.InitializeResponse{
		ProtocolVersion: acp.ProtocolVersionNumber,
		AgentInfo: &acp.Implementation{
			Name:    agentName,
			Version: agentVersion,
			Title:   &title,
		},
		AgentCapabilities: agentCaps,
		AuthMethods:       []acp.AuthMethod{},
	}, nil
}

// Authenticate implements acp.Agent. This proxy runs locally under the
// user's own OS identity and declares no auth methods, so this is never
// expected to be called; it exists only to satisfy the interface.
func (a *Agent) Authenticate(context.Context, acp.AuthenticateRequest) (acp.AuthenticateResponse, error) {
	return acp.AuthenticateResponse{}, apperr.New(apperr.CodeMethodNotFound, "authentication is not supported: this agent runs locally under the caller's own identity")
}

// NewSession implements acp.Agent: validates cwd, spawns a Claude CLI child,
// and registers the session only once both steps succeed. The child is
// spawned without --dangerously-skip-permissions so its can_use_tool control
// requests become the turn driver's live gate (C9/C10) instead of a
// defensive no-op — this is what lets fs/read_text_file, fs/write_text_file
// and terminal/* calls be dispatched to the client in the first place.
func (a *Agent) NewSession(ctx context.Context, params acp.NewSessionRequest) (acp.NewSessionResponse, error) {
	if err := session.ValidateCwd(params.Cwd); err != nil {
		return acp.NewSessionResponse{}, apperr.FromValidation(err)
	}

	mcpServers := make([]session.McpServerRef, 0, len(params.McpServers))
	for _, s := range params.McpServers {
		mcpServers = append(mcpServers, session.McpServerRef{Name: s.Name, Raw: s})
	}

	caps := session.ClientCapabilities{
		FSReadTextFile:  a.registry.ClientSupports(FeatureFSRead),
		FSWriteTextFile: a.registry.ClientSupports(FeatureFSWrite),
		Terminal:        a.registry.ClientSupports(FeatureTerminal),
	}

	sessionID := session.NewSessionID()
	sess := session.NewSession(sessionID, params.Cwd, mcpServers, caps)

	channel := fanout.Start(ctx, a.conn, a.log)
	sess.NotificationSender = channel

	spec := claudeproc.Spec{
		Bin:       a.cfg.Subprocess.Bin,
		ExtraArgs: a.cfg.Subprocess.ExtraArgs,
		Cwd:       params.Cwd,
	}
	subprocess, err := a.procs.Spawn(sessionID, spec)
	if err != nil {
		channel.Close()
		return acp.NewSessionResponse{}, apperr.Wrap(apperr.CodeSubprocessSpawnFailed, "failed to start Claude CLI", err)
	}
	sess.Subprocess = subprocess

	a.store.Put(sess)
	a.channels[sessionID] = channel

	return acp.NewSessionResponse{SessionId: acp.SessionId(sessionID)}, nil
}

// LoadSession implements acp.Agent. Gated by registry.MethodAllowed, which
// currently always reports false for session/load (LoadSession capability
// is not declared); the dispatcher that routes JSON-RPC methods to this
// struct must check MethodAllowed before calling it.
func (a *Agent) LoadSession(context.Context, acp.LoadSessionRequest) (acp.LoadSessionResponse, error) {
	return acp.LoadSessionResponse{}, apperr.CapabilityNotSupported("session/load", "loadSession")
}

// SetSessionMode implements acp.Agent (optional). This proxy has no notion
// of session modes distinct from Claude CLI's own behavior.
func (a *Agent) SetSessionMode(context.Context, acp.SetSessionModeRequest) (acp.SetSessionModeResponse, error) {
	return acp.SetSessionModeResponse{}, apperr.New(apperr.CodeMethodNotFound, "session modes are not supported")
}

// Cancel implements acp.Agent: a notification, never answered with a
// response even on error, per C11's routing rules.
func (a *Agent) Cancel(_ context.Context, params acp.CancelNotification) error {
	sess, ok := a.store.Get(string(params.SessionId))
	if !ok {
		return nil
	}
	sess.Cancellation.Cancel()
	return nil
}

// Prompt implements acp.Agent: runs one turn via the turn driver (C10) and
// returns its stop reason.
func (a *Agent) Prompt(ctx context.Context, params acp.PromptRequest) (acp.PromptResponse, error) {
	sess, ok := a.store.Get(string(params.SessionId))
	if !ok {
		return acp.PromptResponse{}, apperr.SessionNotFound(string(params.SessionId))
	}

	for _, block := range params.Prompt {
		if err := a.registry.ContentAllowed(contentKindOf(block)); err != nil {
			return acp.PromptResponse{}, err
		}
	}

	notifier := turn.ChanNotifier{SessionID: sess.ID, Channel: sess.NotificationSender}
	stopReason, err := a.driver.Run(ctx, sess, params.Prompt, a.conn, a.conn, notifier)
	if err != nil {
		return acp.PromptResponse{}, err
	}
	return acp.PromptResponse{StopReason: stopReason}, nil
}

func contentKindOf(block acp.ContentBlock) ContentKind {
	switch {
	case block.Text != nil:
		return ContentText
	case block.Image != nil:
		return ContentImage
	case block.Audio != nil:
		return ContentAudio
	case block.Resource != nil:
		return ContentResource
	case block.ResourceLink != nil:
		return ContentResourceLink
	default:
		return ContentText
	}
}

// onSubprocessDead is the procmanager.DeadHook invoked when a session's
// Claude CLI child exits without Terminate having been called. It marks the
// session dead and pushes a best-effort notification so the client learns
// the session can no longer accept prompts.
func (a *Agent) onSubprocessDead(sessionID string, exitErr error) {
	sess, ok := a.store.Get(sessionID)
	if !ok {
		return
	}
	sess.MarkDead()
	if a.log != nil {
		a.log.WithFields(zap.String("session_id", sessionID)).WithError(exitErr).Warn("Claude CLI exited unexpectedly")
	}
	if sess.NotificationSender != nil {
		notification := acp.SessionNotification{
			SessionId: acp.SessionId(sessionID),
			Update:    acp.UpdateAgentMessageText(fmt.Sprintf("\n\n[Claude CLI process exited unexpectedly: %v]\n", exitErr)),
		}
		if err := sess.NotificationSender.Send(notification); err != nil && a.log != nil {
			a.log.WithFields(zap.String("session_id", sessionID)).WithError(err).Warn("failed to deliver subprocess-death notification")
		}
	}
}

// Close terminates every session's subprocess and notification channel, for
// use at process shutdown.
func (a *Agent) Close(ctx context.Context) {
	for id, channel := range a.channels {
		_ = a.procs.Terminate(ctx, id)
		channel.Close()
	}
}
