package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var flagTranscript string

var processCmd = &cobra.Command{
	Use:   "process <summary|minutes|todos>",
	Short: "Run a processing action on a transcript",
	Long: `Send a transcript to the server's processing endpoint and print the
derived text. The transcript is read from the -f file, or from stdin.

Examples:
  scribe process summary -f transcript.txt
  cat transcript.txt | scribe process todos`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagEndpoint == "" {
			return fmt.Errorf("endpoint is required, use -e flag or SCRIBE_ENDPOINT")
		}

		var text []byte
		var err error
		if flagTranscript != "" {
			text, err = os.ReadFile(flagTranscript)
		} else {
			text, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("failed to read transcript: %w", err)
		}
		if len(bytes.TrimSpace(text)) == 0 {
			return fmt.Errorf("transcript is empty")
		}

		body, _ := json.Marshal(map[string]string{
			"action": args[0],
			"text":   string(text),
		})

		client := &http.Client{Timeout: 60 * time.Second}
		resp, err := client.Post(flagEndpoint+"/process", "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned %s: %s", resp.Status, respBody)
		}

		var parsed struct {
			Result string `json:"result"`
		}
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("malformed response: %w", err)
		}

		fmt.Println(parsed.Result)
		return nil
	},
}

func init() {
	processCmd.Flags().StringVarP(&flagTranscript, "file", "f", "", "transcript file (default: stdin)")
}
