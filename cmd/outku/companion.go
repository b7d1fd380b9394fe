package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/LJMStark/outku3-sub001/internal/companion"
)

var companionCmd = &cobra.Command{
	Use:     "companion",
	GroupID: "view",
	Short:   "Hear from the pet",
}

var companionGreetCmd = &cobra.Command{
	Use:   "greet",
	Short: "A short remark from the pet",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		coord, err := a.coordinator()
		if err != nil {
			return err
		}
		pet, err := coord.LoadPet(cmd.Context(), a.userID)
		if err != nil {
			return err
		}
		streak, err := coord.LoadStreak(cmd.Context(), a.userID)
		if err != nil {
			return err
		}

		gen, err := newGenerator(a)
		if err != nil {
			return err
		}
		s, err := a.openStore()
		if err != nil {
			return err
		}
		events, _ := s.LoadEvents(cmd.Context())

		remark, err := gen.PetRemark(cmd.Context(), pet, streak, windowed(events, time.Now(), 1))
		if err != nil {
			return err
		}
		fmt.Println(remark)
		coord.Wait()
		return nil
	},
}

var companionSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize today's schedule and open tasks",
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
		events, err := s.LoadEvents(cmd.Context())
		if err != nil {
			return err
		}
		tasks, err := s.LoadTasks(cmd.Context())
		if err != nil {
			return err
		}
		pet, err := s.LoadPet(cmd.Context())
		if err != nil {
			pet = nil
		}

		gen, err := newGenerator(a)
		if err != nil {
			return err
		}
		summary, err := gen.DaySummary(cmd.Context(), pet, windowed(events, time.Now(), 1), tasks)
		if err != nil {
			return err
		}
		fmt.Println(summary)
		return nil
	},
}

func newGenerator(a *app) (*companion.Generator, error) {
	templates := a.cfg.Companion.TemplateFile
	if _, err := os.Stat(templates); err != nil {
		templates = ""
	}
	return companion.NewGenerator(companion.Config{
		APIKey:        a.cfg.Companion.AnthropicAPIKey,
		Model:         a.cfg.Companion.Model,
		TemplatesPath: templates,
	}, quietLogger())
}

func init() {
	companionCmd.AddCommand(companionGreetCmd, companionSummaryCmd)
	rootCmd.AddCommand(companionCmd)
}
