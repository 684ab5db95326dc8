package commands

import (
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/veralabs/resonance/internal/engine"
	"github.com/veralabs/resonance/internal/printer"
	"github.com/veralabs/resonance/pkg/store"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status <address>",
	Short: "Show a principal's credential and sync status",
	Long: `Show the engine's view of one principal: local and ledger scores,
credential lifecycle state, the last sync outcome, and whether a score
push is currently queued.

Unknown principals report credential status 'absent'.

Use --json for machine-readable output.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	var view engine.StatusView
	path := "/status?address=" + url.QueryEscape(args[0])
	if err := fetch(http.MethodGet, path, http.StatusOK, &view); err != nil {
		return err
	}

	if statusJSON {
		return printJSON(view)
	}

	printer.Printf("Principal %s\n", view.Address)
	printer.Field("Credential", "%s", printer.CredentialStatus(view.CredentialStatus))
	if view.CredentialID != nil {
		printer.Field("Credential ID", "%d", *view.CredentialID)
	}
	if view.CredentialRef != "" {
		printer.Field("Mint tx", "%s", view.CredentialRef)
	}
	if view.CredentialError != "" {
		printer.Field("Credential error", "%s", view.CredentialError)
	}

	printer.Field("Local score", "%d", view.LocalScore)
	if view.LedgerScore != nil {
		printer.Field("Ledger score", "%d", *view.LedgerScore)
	} else {
		printer.Field("Ledger score", "unknown")
	}

	if view.LastSyncMs > 0 {
		when := time.UnixMilli(view.LastSyncMs).UTC().Format(time.RFC3339)
		if view.LastSyncOK {
			printer.Field("Last sync", "ok at %s", when)
			if view.LastSyncRef != "" {
				printer.Field("Sync tx", "%s", view.LastSyncRef)
			}
		} else {
			printer.Field("Last sync", "failed at %s: %s", when, view.LastSyncError)
		}
	} else if view.CredentialStatus != store.StatusAbsent {
		printer.Field("Last sync", "never attempted")
	}

	if view.Queued != nil {
		printer.Field("Queued", "target %d (attempt %d)", view.Queued.TargetScore, view.Queued.Attempts)
	}
	return nil
}
