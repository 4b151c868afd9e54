// Package main provides the scribe recording CLI.
//
// Usage:
//
//	scribe [flags] <command> [args]
//
// Commands:
//
//	record  - Replay a WAV file through the capture pipeline and upload it
//	process - Run a processing action (summary, minutes, todos) on a transcript
//	health  - Check server liveness
package main

import (
	"fmt"
	"os"

	"github.com/natetr/CrankScribe/cmd/scribe/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
