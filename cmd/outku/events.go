package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/LJMStark/outku3-sub001/internal/model"
	"github.com/LJMStark/outku3-sub001/internal/ui"
)

var (
	eventsDays    int
	eventsJSON    bool
	eventsRefresh bool
	exportFormat  string
	exportOut     string
)

var eventsCmd = &cobra.Command{
	Use:     "events",
	GroupID: "view",
	Short:   "Browse the merged calendar timeline",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show upcoming events",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		events, err := loadEvents(cmd, a)
		if err != nil {
			return err
		}

		now := time.Now()
		shown := windowed(events, now, eventsDays)
		if eventsJSON {
			return json.NewEncoder(os.Stdout).Encode(shown)
		}
		fmt.Print(ui.Timeline(shown, now))
		return nil
	},
}

var eventsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the stored timeline",
	Long: `Export the stored event snapshot as an iCalendar file or YAML.

With --out the export is written to a file, otherwise to stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		events, err := loadEvents(cmd, a)
		if err != nil {
			return err
		}

		var data []byte
		switch exportFormat {
		case "ics":
			data = []byte(eventsToICS(events))
		case "yaml":
			data, err = yaml.Marshal(events)
			if err != nil {
				return fmt.Errorf("yaml export failed: %w", err)
			}
		default:
			return fmt.Errorf("unknown format %q (want ics or yaml)", exportFormat)
		}

		if exportOut == "" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(exportOut, data, 0644); err != nil {
			return err
		}
		fmt.Printf("Exported %d events to %s\n", len(events), exportOut)
		return nil
	},
}

func loadEvents(cmd *cobra.Command, a *app) ([]model.CalendarEvent, error) {
	if eventsRefresh {
		refresher, err := a.refresher()
		if err != nil {
			return nil, err
		}
		if err := refresher.RefreshEvents(cmd.Context()); err != nil {
			return nil, err
		}
	}
	s, err := a.openStore()
	if err != nil {
		return nil, err
	}
	return s.LoadEvents(cmd.Context())
}

// windowed keeps events from the start of today through the given number of
// days ahead. Zero days means everything in the snapshot.
func windowed(events []model.CalendarEvent, now time.Time, days int) []model.CalendarEvent {
	if days <= 0 {
		return events
	}
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, days)

	var out []model.CalendarEvent
	for _, ev := range events {
		if ev.Start.Before(end) && ev.End.After(start) {
			out = append(out, ev)
		}
	}
	return out
}

func eventsToICS(events []model.CalendarEvent) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//outku//timeline//EN")

	for _, ev := range events {
		entry := cal.AddEvent(ev.ID)
		entry.SetSummary(ev.Title)
		entry.SetDtStampTime(ev.LastModified)
		if ev.AllDay {
			entry.SetAllDayStartAt(ev.Start)
			entry.SetAllDayEndAt(ev.End)
		} else {
			entry.SetStartAt(ev.Start)
			entry.SetEndAt(ev.End)
		}
		if ev.Location != "" {
			entry.SetLocation(ev.Location)
		}
		if ev.Description != "" {
			entry.SetDescription(ev.Description)
		}
		for _, p := range ev.Participants {
			if p.Email != "" {
				entry.AddAttendee(p.Email, ics.ParticipationStatusNeedsAction)
			}
		}
	}
	return cal.Serialize()
}

func init() {
	eventsListCmd.Flags().IntVar(&eventsDays, "days", 7, "days ahead to show (0 for the whole snapshot)")
	eventsListCmd.Flags().BoolVar(&eventsJSON, "json", false, "emit JSON instead of the rendered timeline")
	eventsCmd.PersistentFlags().BoolVar(&eventsRefresh, "refresh", false, "refresh from the provider first")
	eventsExportCmd.Flags().StringVar(&exportFormat, "format", "ics", "export format: ics or yaml")
	eventsExportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default stdout)")
	eventsCmd.AddCommand(eventsListCmd, eventsExportCmd)
	rootCmd.AddCommand(eventsCmd)
}
