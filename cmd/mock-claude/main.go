// Package main implements a mock Claude CLI binary that speaks the same
// stream-json wire claudeproc.Subprocess drives, for exercising the turn
// driver (C10), the permission gate, and client tool dispatch (C10 step 4)
// without a real Claude Code installation. It has no notion of the ACP wire
// at all — from this process's side, the agent looks exactly like Claude
// CLI's own stdin/stdout.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kandev/claude-acp-agent/internal/claudeproc"
)

// sessionID uses the process PID so parallel test sessions, each spawning
// their own mock-claude child, never collide.
var sessionID = fmt.Sprintf("mock-session-%d", os.Getpid())

func main() {
	scanner := bufio.NewScanner(os.Stdin)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)
	enc := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg incomingLine
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}

		if msg.Type == claudeproc.TypeUser && msg.Message != nil {
			if text := msg.Message.promptText(); text != "" {
				runScenario(enc, scanner, text)
			}
			// A client-dispatched tool_result with no text part (C10 step 4)
			// arrives here too, by construction; there's nothing to react to.
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "mock-claude: scanner error: %v\n", err)
		os.Exit(1)
	}
}
