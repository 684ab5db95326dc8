package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/veralabs/resonance/internal/engine"
	"github.com/veralabs/resonance/internal/printer"
)

var healthJSON bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check daemon, store and ledger health",
	Long: `Check the daemon's health endpoint. The store gates overall health;
the ledger snapshot is informational since the engine keeps retrying
through ledger outages.

Exits non-zero when the daemon reports unhealthy.

Use --json for machine-readable output.`,
	RunE: runHealth,
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(healthCmd)
}

// runHealth talks to the daemon directly rather than through fetch because an
// unhealthy daemon answers 503 with the same JSON body.
func runHealth(cmd *cobra.Command, args []string) error {
	url := baseURL() + "/healthz"
	resp, err := httpClient.Get(url)
	if err != nil {
		return printer.Error(
			"Cannot reach resonance daemon",
			fmt.Sprintf("Request to %s failed: %v", url, err),
			[]string{
				"Check that resonanced is running",
				"Point resctl at it with --daemon or RESONANCE_DAEMON_URL",
			})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var health engine.HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if healthJSON {
		if err := printJSON(health); err != nil {
			return err
		}
	} else {
		if health.Status == "healthy" {
			printer.Success("Daemon is healthy\n")
		} else {
			printer.Warning("Daemon is %s\n", health.Status)
		}
		printer.Field("Store", "%s", health.Store)
		if health.Ledger.Connected {
			printer.Field("Ledger", "connected (height %d)", health.Ledger.TipHeight)
		} else {
			printer.Field("Ledger", "disconnected: %s", health.Ledger.Err)
		}
		if health.Error != "" {
			printer.Field("Error", "%s", health.Error)
		}
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon unhealthy")
	}
	return nil
}
