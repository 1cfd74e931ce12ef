// Package acpagent implements the capability registry (C2) and the
// top-level dispatcher (C11): the type that actually satisfies
// acp.Agent and wires every other component together.
package acpagent

import (
	"fmt"
	"sync"

	"github.com/coder/acp-go-sdk"

	"github.com/kandev/claude-acp-agent/internal/common/apperr"
)

// ContentKind identifies an ACP content block variant for admissibility
// checks.
type ContentKind string

const (
	ContentText         ContentKind = "text"
	ContentImage        ContentKind = "image"
	ContentAudio        ContentKind = "audio"
	ContentResource     ContentKind = "resource"
	ContentResourceLink ContentKind = "resource_link"
)

// ClientFeature identifies a client-declared capability bit the agent must
// check before issuing the corresponding request.
type ClientFeature string

const (
	FeatureFSRead   ClientFeature = "fs_read_text_file"
	FeatureFSWrite  ClientFeature = "fs_write_text_file"
	FeatureTerminal ClientFeature = "terminal"
)

// Registry stores the immutable result of initialize negotiation (C2).
// Write-once: Set may be called exactly once; any further call is a program
// error, not a recoverable one, since it would mean Initialize ran twice on
// the same connection.
type Registry struct {
	mu  sync.RWMutex
	set bool

	loadSession     bool
	promptImage     bool
	promptAudio     bool
	promptEmbedded  bool

	clientFSRead   bool
	clientFSWrite  bool
	clientTerminal bool
}

// Set records the negotiated capabilities from an initialize exchange.
// Panics if called more than once — a second Initialize on the same
// connection is a protocol violation the dispatcher should have rejected
// before reaching here.
func (r *Registry) Set(agentCaps acp.AgentCapabilities, clientCaps acp.ClientCapabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.set {
		panic("acpagent: capability registry written more than once")
	}
	r.set = true
	r.loadSession = agentCaps.LoadSession
	r.promptImage = agentCaps.PromptCapabilities.Image
	r.promptAudio = agentCaps.PromptCapabilities.Audio
	r.promptEmbedded = agentCaps.PromptCapabilities.EmbeddedContext
	r.clientFSRead = clientCaps.Fs.ReadTextFile
	r.clientFSWrite = clientCaps.Fs.WriteTextFile
	r.clientTerminal = clientCaps.Terminal
}

// MethodAllowed reports whether method is admissible given negotiated
// capabilities. Methods not gated by any capability are always allowed;
// gating currently applies only to session/load.
func (r *Registry) MethodAllowed(method string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if method == "session/load" {
		return r.loadSession
	}
	return true
}

// ContentAllowed reports whether a content block kind is admissible. Text
// and ResourceLink are always allowed; Image/Audio/Resource require their
// matching negotiated capability bit.
func (r *Registry) ContentAllowed(kind ContentKind) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case ContentText, ContentResourceLink:
		return nil
	case ContentImage:
		if !r.promptImage {
			return apperr.CapabilityNotSupported("session/prompt", "promptCapabilities.image")
		}
	case ContentAudio:
		if !r.promptAudio {
			return apperr.CapabilityNotSupported("session/prompt", "promptCapabilities.audio")
		}
	case ContentResource:
		if !r.promptEmbedded {
			return apperr.CapabilityNotSupported("session/prompt", "promptCapabilities.embeddedContext")
		}
	default:
		return fmt.Errorf("acpagent: unknown content kind %q", kind)
	}
	return nil
}

// ClientSupports reports whether the client declared a given feature at
// initialize time. The agent must check this before issuing fs/* or
// terminal/* requests to the client.
func (r *Registry) ClientSupports(feature ClientFeature) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch feature {
	case FeatureFSRead:
		return r.clientFSRead
	case FeatureFSWrite:
		return r.clientFSWrite
	case FeatureTerminal:
		return r.clientTerminal
	default:
		return false
	}
}
