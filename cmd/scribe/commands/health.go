package commands

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server liveness",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagEndpoint == "" {
			return fmt.Errorf("endpoint is required, use -e flag or SCRIBE_ENDPOINT")
		}

		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Get(flagEndpoint + "/health")
		if err != nil {
			return fmt.Errorf("server unreachable: %w", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server unhealthy: %s: %s", resp.Status, body)
		}

		fmt.Printf("%s\n", body)
		return nil
	},
}
