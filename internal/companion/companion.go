// Package companion generates the pet's short remarks.
//
// When an API key is configured, remarks come from the Anthropic API with
// the pet's current state and the day's schedule as context. Without a key,
// or when the API call fails, the generator falls back to canned template
// remarks so the pet never goes silent. Templates ship with defaults and
// can be overridden from a TOML file.
package companion

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/LJMStark/outku3-sub001/internal/model"
)

// Config holds the generator parameters.
type Config struct {
	// APIKey enables API-backed remarks. Empty means templates only.
	APIKey string
	// Model names the completion model.
	Model string
	// TemplatesPath optionally overrides the built-in remark templates.
	TemplatesPath string
}

// Generator produces pet remarks.
type Generator struct {
	client    *anthropic.Client
	model     string
	templates *Templates
	logger    *log.Logger
	pick      func(n int) int
}

// NewGenerator creates a remark generator. If logger is nil, logs go to
// stderr.
func NewGenerator(cfg Config, logger *log.Logger) (*Generator, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[companion] ", log.LstdFlags)
	}

	templates, err := LoadTemplates(cfg.TemplatesPath)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		model:     cfg.Model,
		templates: templates,
		logger:    logger,
		pick:      rand.Intn,
	}
	if cfg.APIKey != "" {
		client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
		g.client = &client
	}
	return g, nil
}

// PetRemark produces one short remark for the pet to say, given its state
// and today's schedule.
func (g *Generator) PetRemark(ctx context.Context, pet *model.Pet, streak *model.Streak, events []model.CalendarEvent) (string, error) {
	if g.client != nil && pet != nil {
		remark, err := g.generate(ctx, pet, streak, events)
		if err == nil {
			return remark, nil
		}
		g.logger.Printf("Warning: remark generation failed, using template: %v", err)
	}
	return g.templates.Pick(moodKey(pet), g.pick), nil
}

func (g *Generator) generate(ctx context.Context, pet *model.Pet, streak *model.Streak, events []model.CalendarEvent) (string, error) {
	prompt := buildPrompt(pet, streak, events)

	message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: 128,
		System: []anthropic.TextBlockParam{{
			Text: "You are a tiny virtual pet in a calendar companion app. Reply with one short, warm remark (under 25 words). No quotes, no emoji spam.",
		}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("message request failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	remark := strings.TrimSpace(sb.String())
	if remark == "" {
		return "", fmt.Errorf("model returned no text")
	}
	return remark, nil
}

// DaySummary produces a short spoken-style summary of the day's events and
// open tasks. Without an API client it falls back to a plain composed line.
func (g *Generator) DaySummary(ctx context.Context, pet *model.Pet, events []model.CalendarEvent, tasks []model.TaskItem) (string, error) {
	open := 0
	for _, t := range tasks {
		if !t.Completed {
			open++
		}
	}

	if g.client != nil {
		prompt := buildPrompt(pet, nil, events)
		prompt += fmt.Sprintf("\nThere are %d open tasks. Summarize the day for your human in one or two sentences.", open)
		message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(g.model),
			MaxTokens: 160,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err == nil {
			var sb strings.Builder
			for _, block := range message.Content {
				if block.Type == "text" {
					sb.WriteString(block.Text)
				}
			}
			if remark := strings.TrimSpace(sb.String()); remark != "" {
				return remark, nil
			}
		} else {
			g.logger.Printf("Warning: summary generation failed, composing locally: %v", err)
		}
	}

	return composeSummary(events, open), nil
}

func composeSummary(events []model.CalendarEvent, openTasks int) string {
	var sb strings.Builder
	switch len(events) {
	case 0:
		sb.WriteString("Nothing on the calendar today.")
	case 1:
		fmt.Fprintf(&sb, "One thing today: %s at %s.", events[0].Title, events[0].Start.Local().Format("15:04"))
	default:
		fmt.Fprintf(&sb, "%d events today, starting with %s at %s.", len(events), events[0].Title, events[0].Start.Local().Format("15:04"))
	}
	if openTasks > 0 {
		fmt.Fprintf(&sb, " %d open tasks.", openTasks)
	}
	return sb.String()
}

func buildPrompt(pet *model.Pet, streak *model.Streak, events []model.CalendarEvent) string {
	var sb strings.Builder
	if pet != nil {
		fmt.Fprintf(&sb, "Pet: %s (%s), mood %s, stage %s, %d days old.\n", pet.Name, pet.Pronouns, pet.Mood, pet.Stage, pet.AgeDays)
	}
	if streak != nil {
		fmt.Fprintf(&sb, "Streak: %d days (longest %d).\n", streak.Current, streak.Longest)
	}
	if len(events) == 0 {
		sb.WriteString("Schedule: nothing planned today.\n")
	} else {
		sb.WriteString("Schedule today:\n")
		for i, ev := range events {
			if i == 5 {
				fmt.Fprintf(&sb, "- and %d more\n", len(events)-5)
				break
			}
			fmt.Fprintf(&sb, "- %s at %s\n", ev.Title, ev.Start.Format("15:04"))
		}
	}
	sb.WriteString("Say something to your human.")
	return sb.String()
}

func moodKey(pet *model.Pet) string {
	if pet == nil || pet.Mood == "" {
		return "default"
	}
	return pet.Mood
}
