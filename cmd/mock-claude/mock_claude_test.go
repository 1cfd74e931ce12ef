package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kandev/claude-acp-agent/internal/claudeproc"
)

func TestReadFileSnippet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")
	content := "line1\nline2\nline3\nline4\nline5\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Run("reads up to maxLines", func(t *testing.T) {
		result := readFileSnippet(path, 3)
		if result != "line1\nline2\nline3\n" {
			t.Errorf("readFileSnippet(%q, 3) = %q", path, result)
		}
	})

	t.Run("returns fallback for missing file", func(t *testing.T) {
		result := readFileSnippet("/nonexistent/file.txt", 10)
		if result != "// (file not readable)\n" {
			t.Errorf("readFileSnippet(missing) = %q", result)
		}
	})
}

func TestPickEditableFragment(t *testing.T) {
	dir := t.TempDir()

	t.Run("returns fallback for missing file", func(t *testing.T) {
		old, new_ := pickEditableFragment("/nonexistent/file.go")
		if old != "hello" || new_ != "hello_mock" {
			t.Errorf("pickEditableFragment(missing) = (%q, %q)", old, new_)
		}
	})

	t.Run("produces different old and new strings", func(t *testing.T) {
		path := filepath.Join(dir, "code.go")
		content := "package main\n\nfunc main() {\n\tfmt.Println(\"hello world\")\n}\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		old, new_ := pickEditableFragment(path)
		if old == new_ || old == "" {
			t.Errorf("pickEditableFragment produced (%q, %q)", old, new_)
		}
	})
}

func TestDiscoverFilesSkipsNonTextAndVendorDirs(t *testing.T) {
	workspaceFiles = nil
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = os.Chdir(origWd)
		workspaceFiles = nil
	}()

	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"main.go", "util.ts"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("content"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "image.png"), []byte("fake"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "node_modules"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "node_modules", "lib.js"), []byte("//"), 0644); err != nil {
		t.Fatal(err)
	}

	files := discoverFiles()
	var foundGo, foundPng, foundNodeModules bool
	for _, f := range files {
		switch filepath.Base(f.absPath) {
		case "main.go":
			foundGo = true
		case "image.png":
			foundPng = true
		case "lib.js":
			foundNodeModules = true
		}
	}
	if !foundGo {
		t.Error("expected to find main.go")
	}
	if foundPng {
		t.Error("should not find image.png (not a text extension)")
	}
	if foundNodeModules {
		t.Error("should not find files under node_modules")
	}
}

// fakeStdin builds a bufio.Scanner over a canned sequence of stream-json
// lines, simulating what the turn driver would write to this process's
// stdin.
func fakeStdin(lines ...string) *bufio.Scanner {
	s := bufio.NewScanner(strings.NewReader(strings.Join(lines, "\n")))
	s.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	return s
}

func TestAskPermissionReadsMatchingControlResponse(t *testing.T) {
	var out bytes.Buffer
	enc := json.NewEncoder(&out)

	scanner := fakeStdin(`{"type":"control_response","request_id":"mock-perm-Bash-call-1","response":{"subtype":"success","result":{"behavior":"allow"}}}`)

	got := askPermission(enc, scanner, "Bash", "call-1", map[string]any{"command": "ls"})
	if got != claudeproc.BehaviorAllow {
		t.Fatalf("askPermission() = %q, want %q", got, claudeproc.BehaviorAllow)
	}

	var req outboundControlRequest
	if err := json.Unmarshal(out.Bytes(), &req); err != nil {
		t.Fatalf("decoding emitted control_request: %v", err)
	}
	if req.Request.Subtype != claudeproc.SubtypeCanUseTool || req.Request.ToolName != "Bash" {
		t.Errorf("unexpected emitted control_request: %+v", req.Request)
	}
}

func TestAskPermissionDeniedWithoutResponseResult(t *testing.T) {
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	scanner := fakeStdin(`{"type":"control_response","request_id":"mock-perm-Bash-call-2","response":{"subtype":"error"}}`)

	got := askPermission(enc, scanner, "Bash", "call-2", nil)
	if got != claudeproc.BehaviorDeny {
		t.Fatalf("askPermission() = %q, want deny", got)
	}
}

func TestResolveToolCallRunsSelfRunOnAllow(t *testing.T) {
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	scanner := fakeStdin(`{"type":"control_response","request_id":"mock-perm-Read-call-3","response":{"subtype":"success","result":{"behavior":"allow"}}}`)

	content, isError := resolveToolCall(enc, scanner, "Read", "call-3", nil, func() (string, bool) {
		return "file body", false
	})
	if isError || content != "file body" {
		t.Fatalf("resolveToolCall() = (%q, %v), want (\"file body\", false)", content, isError)
	}
}

func TestResolveToolCallEchoesDenialWithoutCallingSelfRun(t *testing.T) {
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	scanner := fakeStdin(`{"type":"control_response","request_id":"mock-perm-Bash-call-4","response":{"subtype":"success","result":{"behavior":"deny"}}}`)

	called := false
	_, isError := resolveToolCall(enc, scanner, "Bash", "call-4", nil, func() (string, bool) {
		called = true
		return "should not run", false
	})
	if !isError {
		t.Error("expected a denied call to report isError=true")
	}
	if called {
		t.Error("selfRun must not run once permission is denied")
	}
}

func TestPromptTextIgnoresToolResultBlocks(t *testing.T) {
	body := incomingUserBody{Content: json.RawMessage(`[{"type":"tool_result","tool_use_id":"x","content":"y"}]`)}
	if text := body.promptText(); text != "" {
		t.Errorf("promptText() on a tool_result body = %q, want empty", text)
	}

	body = incomingUserBody{Content: json.RawMessage(`[{"type":"text","text":"hello"}]`)}
	if text := body.promptText(); text != "hello" {
		t.Errorf("promptText() = %q, want %q", text, "hello")
	}
}
