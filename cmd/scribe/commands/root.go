package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	flagEndpoint string
	flagVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Voice recorder client for the CrankScribe transcription server",
	Long: `scribe drives the capture pipeline against a transcription server:
it decimates and voice-gates audio, uploads mulaw chunks on a 30-second
cadence, and retrieves the finalized transcript.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagEndpoint, "endpoint", "e",
		os.Getenv("SCRIBE_ENDPOINT"), "server base URL (or SCRIBE_ENDPOINT)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false,
		"enable debug logging")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(healthCmd)
}
