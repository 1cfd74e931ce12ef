package permission

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/coder/acp-go-sdk"
	"golang.org/x/sync/singleflight"

	"github.com/kandev/claude-acp-agent/internal/session"
)

// Decision is the outcome of a permission check: either the call proceeds
// (Allow) or it doesn't (Allow=false); Cancelled means the client cancelled
// the request itself, which the turn driver treats as cancelling the whole
// turn rather than just denying one tool call.
type Decision struct {
	Allow     bool
	Cancelled bool
}

// Requester is the subset of acp.AgentSideConnection the engine needs,
// narrowed to one method so the engine can be tested without a real wire
// connection.
type Requester interface {
	RequestPermission(ctx context.Context, params acp.RequestPermissionRequest) (acp.RequestPermissionResponse, error)
}

// Profile selects how moderate-risk tools are handled. Destructive tools
// always ask regardless of profile; safe tools never ask regardless of
// profile. This is the resolution of spec.md's open "security_profile
// presets" question (see DESIGN.md).
type Profile string

const (
	ProfileStrict     Profile = "strict"     // moderate tools always ask, never auto-allow
	ProfileModerate    Profile = "moderate"   // moderate tools ask unless remembered (default)
	ProfilePermissive Profile = "permissive" // moderate tools auto-allow without asking
)

// Engine implements C9: fingerprinting, memoized "always" decisions, and
// the session/request_permission round trip.
type Engine struct {
	profile Profile
	group   singleflight.Group
}

// New constructs an Engine for the given security profile.
func New(profile Profile) *Engine {
	if profile == "" {
		profile = ProfileModerate
	}
	return &Engine{profile: profile}
}

// Fingerprint canonicalizes a tool name and its arguments into a stable key
// for permission_memory lookups: same tool called with the same arguments
// (independent of JSON key order) hits the same memoized decision.
func Fingerprint(toolName string, input map[string]any) string {
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	canonical := make(map[string]any, len(input))
	for _, k := range keys {
		canonical[k] = input[k]
	}
	payload, _ := json.Marshal(struct {
		Tool string         `json:"tool"`
		Args map[string]any `json:"args"`
	}{Tool: toolName, Args: canonical})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Check decides whether toolName may run with the given input in sess,
// issuing a session/request_permission round trip through req when the risk
// policy and permission_memory don't already settle it.
func (e *Engine) Check(ctx context.Context, req Requester, sess *session.Session, toolCall acp.RequestPermissionToolCall, toolName string, input map[string]any) (Decision, error) {
	risk := Classify(toolName)
	if risk == RiskSafe {
		return Decision{Allow: true}, nil
	}
	if risk == RiskModerate && e.profile == ProfilePermissive {
		return Decision{Allow: true}, nil
	}

	fp := Fingerprint(toolName, input)
	if decision, ok := sess.RecallPermission(fp); ok {
		return Decision{Allow: decision == decisionAllow}, nil
	}

	// singleflight collapses concurrent checks for the same fingerprint
	// within this session into one client round trip; every caller gets
	// the same decision once it resolves.
	key := sess.ID + ":" + fp
	result, err, _ := e.group.Do(key, func() (any, error) {
		return e.ask(ctx, req, sess, toolCall, fp)
	})
	if err != nil {
		return Decision{}, fmt.Errorf("permission: request for %q: %w", toolName, err)
	}
	return result.(Decision), nil
}

const (
	decisionAllow  = "allow"
	decisionReject = "reject"
)

func (e *Engine) ask(ctx context.Context, req Requester, sess *session.Session, toolCall acp.RequestPermissionToolCall, fingerprint string) (Decision, error) {
	resp, err := req.RequestPermission(ctx, acp.RequestPermissionRequest{
		SessionId: acp.SessionId(sess.ID),
		ToolCall:  toolCall,
		Options:   optionSet(),
	})
	if err != nil {
		return Decision{}, err
	}

	if resp.Outcome.Cancelled != nil {
		return Decision{Cancelled: true}, nil
	}
	if resp.Outcome.Selected == nil {
		return Decision{}, fmt.Errorf("permission: client returned neither selected nor cancelled outcome")
	}

	switch string(resp.Outcome.Selected.OptionId) {
	case optionAllowOnce:
		return Decision{Allow: true}, nil
	case optionAllowAlways:
		sess.RememberPermission(fingerprint, decisionAllow)
		return Decision{Allow: true}, nil
	case optionRejectOnce:
		return Decision{Allow: false}, nil
	case optionRejectAlways:
		sess.RememberPermission(fingerprint, decisionReject)
		return Decision{Allow: false}, nil
	default:
		return Decision{}, fmt.Errorf("permission: unexpected option id %q", resp.Outcome.Selected.OptionId)
	}
}

const (
	optionAllowOnce    = "allow-once"
	optionAllowAlways  = "allow-always"
	optionRejectOnce   = "reject-once"
	optionRejectAlways = "reject-always"
)

// optionSet returns the exact {allow-once, allow-always, reject-once,
// reject-always} set the spec requires for every permission request.
func optionSet() []acp.PermissionOption {
	return []acp.PermissionOption{
		{Kind: acp.PermissionOptionKindAllowOnce, Name: "Allow once", OptionId: optionAllowOnce},
		{Kind: acp.PermissionOptionKindAllowAlways, Name: "Allow always", OptionId: optionAllowAlways},
		{Kind: acp.PermissionOptionKindRejectOnce, Name: "Reject once", OptionId: optionRejectOnce},
		{Kind: acp.PermissionOptionKindRejectAlways, Name: "Reject always", OptionId: optionRejectAlways},
	}
}

// ToolCallFor builds the RequestPermissionToolCall payload describing the
// call under review, for use by the turn driver when invoking Check.
func ToolCallFor(toolCallID, title string, kind acp.ToolKind, input map[string]any) acp.RequestPermissionToolCall {
	status := acp.ToolCallStatusPending
	return acp.RequestPermissionToolCall{
		ToolCallId: acp.ToolCallId(toolCallID),
		Title:      acp.Ptr(title),
		Kind:       acp.Ptr(kind),
		Status:     acp.Ptr(status),
		RawInput:   input,
	}
}
