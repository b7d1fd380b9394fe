package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var clearYes bool

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the local snapshot store",
}

var storeClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all locally stored data",
	Long: `Delete every local document: events, tasks, pet, streak, and sync
bookkeeping. Remote data is untouched and comes back on the next sync,
but anything never pushed is gone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearYes {
			var confirmed bool
			confirm := huh.NewConfirm().
				Title("Delete all local data?").
				Description("Unsynced changes will be lost.").
				Value(&confirmed)
			if err := confirm.Run(); err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("Aborted.")
				return nil
			}
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.openStore()
		if err != nil {
			return err
		}
		if err := s.ClearAll(); err != nil {
			return err
		}
		fmt.Println("Local store cleared.")
		return nil
	},
}

func init() {
	storeClearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "skip the confirmation prompt")
	storeCmd.AddCommand(storeClearCmd)
	rootCmd.AddCommand(storeCmd)
}
