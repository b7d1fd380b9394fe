// Package ui renders timeline, task, and pet views for the terminal.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/LJMStark/outku3-sub001/internal/model"
)

// Timeline renders merged calendar events grouped by day, in order.
func Timeline(events []model.CalendarEvent, now time.Time) string {
	if len(events) == 0 {
		return mutedStyle.Render("No events in this window.") + "\n"
	}

	var sb strings.Builder
	var day string
	for _, ev := range events {
		d := ev.Start.Local().Format("Mon Jan 2")
		if d != day {
			if day != "" {
				sb.WriteString("\n")
			}
			sb.WriteString(titleStyle.Render(d) + "\n")
			day = d
		}
		sb.WriteString("  " + eventLine(ev, now) + "\n")
	}
	return sb.String()
}

func eventLine(ev model.CalendarEvent, now time.Time) string {
	var when string
	if ev.AllDay {
		when = timeStyle.Render("all day      ")
	} else {
		when = timeStyle.Render(ev.Start.Local().Format("15:04") + " - " + ev.End.Local().Format("15:04"))
	}

	line := when + "  " + ev.Title
	if ev.Location != "" {
		line += "  " + mutedStyle.Render("@ "+ev.Location)
	}
	if !ev.AllDay && ev.End.Before(now) {
		line = mutedStyle.Render(when + "  " + ev.Title)
	}
	return line
}

// Tasks renders the task list with completion and due markers.
func Tasks(tasks []model.TaskItem, now time.Time) string {
	if len(tasks) == 0 {
		return mutedStyle.Render("No tasks. Enjoy it while it lasts.") + "\n"
	}

	var sb strings.Builder
	for i, task := range tasks {
		sb.WriteString(fmt.Sprintf("%3d. %s\n", i+1, taskLine(task, now)))
	}
	return sb.String()
}

func taskLine(task model.TaskItem, now time.Time) string {
	if task.Completed {
		return okStyle.Render("[x] ") + doneStyle.Render(task.Title)
	}

	line := "[ ] " + task.Title
	if task.Due != nil {
		due := task.Due.Local().Format("Jan 2")
		if task.Due.Before(now) {
			line += "  " + overdueStyle.Render("overdue "+due)
		} else {
			line += "  " + mutedStyle.Render("due "+due)
		}
	}
	return line
}

// PetCard renders the pet's status card, optionally with a remark.
func PetCard(pet *model.Pet, streak *model.Streak, remark string) string {
	if pet == nil {
		return mutedStyle.Render("No pet yet. Run 'outku pet adopt' to get started.") + "\n"
	}

	var lines []string
	lines = append(lines, titleStyle.Render(pet.Name)+mutedStyle.Render(" ("+pet.Pronouns+")"))
	lines = append(lines, fmt.Sprintf("%s, %s, day %d", pet.Stage, pet.Mood, pet.AgeDays))
	lines = append(lines, fmt.Sprintf("%d points, %d adventures", pet.Points, pet.AdventuresCount))
	lines = append(lines, progressBar(pet.Progress, 20))
	if streak != nil {
		lines = append(lines, streakLine(streak))
	}
	if remark != "" {
		lines = append(lines, "")
		lines = append(lines, remarkStyle.Render("\""+remark+"\""))
	}

	return cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)) + "\n"
}

func streakLine(streak *model.Streak) string {
	s := fmt.Sprintf("streak: %d", streak.Current)
	if streak.Longest > streak.Current {
		s += mutedStyle.Render(fmt.Sprintf(" (best %d)", streak.Longest))
	}
	return s
}

func progressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return timeStyle.Render(bar) + fmt.Sprintf(" %3.0f%%", progress*100)
}

// SyncStatus renders the sync state line shown by the status command.
func SyncStatus(state model.SyncState) string {
	var status string
	switch state.Status {
	case model.StatusSynced:
		status = okStyle.Render("synced")
	case model.StatusPending:
		status = warnStyle.Render(fmt.Sprintf("pending (%d queued)", state.PendingChanges))
	default:
		status = errStyle.Render(string(state.Status))
	}

	last := "never"
	if state.LastSyncTime != nil {
		last = state.LastSyncTime.Local().Format("Jan 2 15:04")
	}
	return fmt.Sprintf("%s  last sync %s\n", status, mutedStyle.Render(last))
}
