// Package main is the entry point for agentctl, the process an ACP-speaking
// editor launches to bridge it to a local Claude CLI child over JSON-RPC
// stdio.
package main

import (
	"fmt"
	"os"

	"github.com/kandev/claude-acp-agent/cmd/agentctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
