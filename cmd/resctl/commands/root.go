package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "resctl",
	Short: "Resctl - Resonance reconciliation engine CLI",
	Long: `Resctl inspects and controls a running resonance daemon over its
reporting HTTP surface.

It reports per-principal credential status and sync outcomes, shows the
score sync queue, checks daemon health, and triggers an explicit resync
of a principal's score to the ledger.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&daemonURL, "daemon", "",
		"Daemon base URL (default $RESONANCE_DAEMON_URL or http://localhost:8080)")
}
