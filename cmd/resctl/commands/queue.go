package commands

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/veralabs/resonance/internal/engine"
	"github.com/veralabs/resonance/internal/printer"
)

var queueJSON bool

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show the score sync queue",
	Long: `Show every principal waiting for a score push to the ledger, with the
target score, attempt count and next-eligible time.

Use --json for machine-readable output.`,
	RunE: runQueue,
}

func init() {
	queueCmd.Flags().BoolVar(&queueJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(queueCmd)
}

func runQueue(cmd *cobra.Command, args []string) error {
	var resp engine.QueueResponse
	if err := fetch(http.MethodGet, "/queue", http.StatusOK, &resp); err != nil {
		return err
	}

	if queueJSON {
		return printJSON(resp)
	}

	if resp.Depth == 0 {
		printer.Println("Sync queue is empty.")
		return nil
	}

	printer.Printf("%-44s %-8s %-10s %s\n", "PRINCIPAL", "TARGET", "ATTEMPTS", "NEXT ATTEMPT")
	now := time.Now()
	for _, item := range resp.Items {
		next := "ready"
		if item.NotBefore.After(now) {
			next = "in " + item.NotBefore.Sub(now).Round(time.Second).String()
		}
		printer.Printf("%-44s %-8d %-10d %s\n", item.Principal, item.TargetScore, item.Attempts, next)
	}
	return nil
}
