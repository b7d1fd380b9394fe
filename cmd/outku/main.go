// Command outku is the companion app's sync core CLI: calendar timeline,
// tasks, virtual pet, and the background sync daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfigDir string
	flagDataDir   string
	flagUser      string
)

var rootCmd = &cobra.Command{
	Use:   "outku",
	Short: "Calendar timeline, tasks, and a pet that watches them with you",
	Long: `outku keeps a local snapshot of your calendars and task lists, reconciles
your pet and streak with the cloud profile store, and renders it all in the
terminal.

Configuration lives in config.yaml under the config directory (default
$XDG_CONFIG_HOME/outku), overridable through OUTKU_-prefixed environment
variables. Local state lives under the data directory:
  outku.db      local snapshot store (SQLite)
  tokens.json   OAuth tokens
  outbox/       queued remote pushes`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "config directory (default $XDG_CONFIG_HOME/outku)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default <config-dir>/data)")
	rootCmd.PersistentFlags().StringVar(&flagUser, "user", "", "profile user id")

	rootCmd.AddGroup(
		&cobra.Group{ID: "view", Title: "Viewing:"},
		&cobra.Group{ID: "sync", Title: "Syncing:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
