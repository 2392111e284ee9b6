// Package main provides the guide CLI, a conversational career guide
// backed by Gemini.
//
// Usage:
//
//	guide [flags] <command> [args]
//
// Commands:
//
//	chat     - Interactive conversation (default)
//	ask      - Ask a single question
//	video    - Generate a video from a prompt
//	serve    - Serve the conversation to browsers over a websocket
//	config   - Configuration and credential management
//	version  - Show version information
//
// Configuration:
//
//	The CLI stores configuration in ~/.giztoy/guide/
//	Use 'guide config' commands to manage contexts.
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/guide/cmd/guide/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
