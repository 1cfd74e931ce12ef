// Package procmanager is the subprocess manager (C6): it owns the
// SessionId -> *claudeproc.Subprocess mapping, spawns at most one child per
// session, watches for unexpected exits, and terminates the children when
// the agent shuts down. Grounded on
// internal/agentctl/process.Manager's Start/Stop lifecycle, generalized from
// one global child to one child per session.
package procmanager

import (
	"context"
	"fmt"
	"sync"

	"github.com/kandev/claude-acp-agent/internal/claudeproc"
	"github.com/kandev/claude-acp-agent/internal/common/logger"
)

// DeadHook is invoked when a session's subprocess exits unexpectedly (i.e.
// not via a Terminate call). The manager itself doesn't know about
// sessions; it calls back so the owner (acpagent) can mark the session dead
// and push an agent message chunk describing the exit.
type DeadHook func(sessionID string, exitErr error)

// Manager tracks one live Subprocess per session and enforces spawn-once /
// terminate-idempotent semantics.
type Manager struct {
	mu      sync.Mutex
	procs   map[string]*claudeproc.Subprocess
	onDead  DeadHook
	log     *logger.Logger
}

// New constructs an empty Manager. onDead may be nil.
func New(log *logger.Logger, onDead DeadHook) *Manager {
	return &Manager{
		procs:  make(map[string]*claudeproc.Subprocess),
		onDead: onDead,
		log:    log,
	}
}

// Spawn starts a Claude CLI child for sessionID and registers it. Returns an
// error without registering anything if a subprocess is already registered
// for this session (spawn-once) or if the child fails to start.
func (m *Manager) Spawn(sessionID string, spec claudeproc.Spec) (*claudeproc.Subprocess, error) {
	m.mu.Lock()
	if _, exists := m.procs[sessionID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("procmanager: session %q already has a subprocess", sessionID)
	}
	m.mu.Unlock()

	sp, err := claudeproc.Spawn(spec, m.log)
	if err != nil {
		return nil, fmt.Errorf("procmanager: spawn for session %q: %w", sessionID, err)
	}

	m.mu.Lock()
	m.procs[sessionID] = sp
	m.mu.Unlock()

	go m.watch(sessionID, sp)

	return sp, nil
}

// watch waits for the subprocess to exit and, if that exit wasn't the
// result of Terminate (the entry is still registered), invokes onDead and
// deregisters it.
func (m *Manager) watch(sessionID string, sp *claudeproc.Subprocess) {
	<-sp.Done()

	m.mu.Lock()
	current, stillRegistered := m.procs[sessionID]
	if stillRegistered && current == sp {
		delete(m.procs, sessionID)
	}
	m.mu.Unlock()

	if stillRegistered && m.onDead != nil {
		exitErr := sp.ExitErr()
		if readErr := sp.ReadErr(); readErr != nil {
			if exitErr != nil {
				exitErr = fmt.Errorf("%w (reader: %v)", exitErr, readErr)
			} else {
				exitErr = readErr
			}
		}
		m.onDead(sessionID, exitErr)
	}
}

// Get returns the live subprocess for a session, if any.
func (m *Manager) Get(sessionID string) (*claudeproc.Subprocess, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.procs[sessionID]
	return sp, ok
}

// Terminate stops a session's subprocess gracefully-then-forcefully and
// deregisters it. Idempotent: a session with no registered subprocess is a
// no-op.
func (m *Manager) Terminate(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	sp, ok := m.procs[sessionID]
	if ok {
		delete(m.procs, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return sp.Terminate(ctx)
}

// Len reports the number of live subprocesses, for diagnostics/tests.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.procs)
}
