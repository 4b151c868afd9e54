package commands

import (
	"fmt"
	"os"
)

// printVerbose writes progress detail to stderr when -v is set.
func printVerbose(format string, args ...any) {
	if flagVerbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
