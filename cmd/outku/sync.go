package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LJMStark/outku3-sub001/internal/ui"
)

var syncRefreshOnly bool

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run a full sync now",
	Long: `Reconcile pet and streak state with the profile store, then refresh the
local event and task snapshots from the providers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()

		if !syncRefreshOnly {
			coord, err := a.coordinator()
			if err != nil {
				return err
			}
			if err := coord.PerformFullSync(ctx, a.userID); err != nil {
				return fmt.Errorf("profile sync failed: %w", err)
			}
		}

		refresher, err := a.refresher()
		if err != nil {
			return err
		}
		if err := refresher.RefreshEvents(ctx); err != nil {
			return fmt.Errorf("event refresh failed: %w", err)
		}
		if err := refresher.RefreshTasks(ctx); err != nil {
			return fmt.Errorf("task refresh failed: %w", err)
		}

		fmt.Println("Sync complete.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.openStore()
		if err != nil {
			return err
		}
		state, err := s.LoadSyncState(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Print(ui.SyncStatus(*state))

		if spool, err := a.openOutbox(); err == nil {
			if n, err := spool.Len(); err == nil && n > 0 {
				fmt.Printf("%d queued remote pushes in the outbox\n", n)
			}
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncRefreshOnly, "refresh-only", false, "skip profile reconciliation, only refresh events and tasks")
	rootCmd.AddCommand(syncCmd, statusCmd)
}
