package commands

import (
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/veralabs/resonance/internal/printer"
)

var resyncCmd = &cobra.Command{
	Use:   "resync <address>",
	Short: "Force a score resync for a principal",
	Long: `Enqueue an unconditional push of the principal's current local score
to the ledger, bypassing the usual drift threshold.

The push itself happens in the background; use 'resctl status' to watch
the outcome.`,
	Args: cobra.ExactArgs(1),
	RunE: runResync,
}

func init() {
	rootCmd.AddCommand(resyncCmd)
}

func runResync(cmd *cobra.Command, args []string) error {
	path := "/resync?address=" + url.QueryEscape(args[0])
	if err := fetch(http.MethodPost, path, http.StatusAccepted, nil); err != nil {
		return err
	}
	printer.Success("Resync queued for %s\n", args[0])
	return nil
}
