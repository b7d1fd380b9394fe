package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/LJMStark/outku3-sub001/internal/model"
	"github.com/LJMStark/outku3-sub001/internal/ui"
)

var petQuiet bool

var petCmd = &cobra.Command{
	Use:     "pet",
	GroupID: "view",
	Short:   "Look after your pet",
}

var petAdoptCmd = &cobra.Command{
	Use:   "adopt",
	Short: "Adopt a pet",
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
		if existing, err := coord.LoadPet(cmd.Context(), a.userID); err == nil && existing != nil {
			coord.Wait()
			return fmt.Errorf("you already have %s", existing.Name)
		}

		var name, pronouns string
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Name your pet").
					Value(&name).
					Validate(func(s string) error {
						if s == "" {
							return errors.New("a pet needs a name")
						}
						return nil
					}),
				huh.NewSelect[string]().
					Title("Pronouns").
					Options(
						huh.NewOption("they/them", "they/them"),
						huh.NewOption("she/her", "she/her"),
						huh.NewOption("he/him", "he/him"),
						huh.NewOption("it/its", "it/its"),
					).
					Value(&pronouns),
			),
		)
		if err := form.Run(); err != nil {
			return err
		}

		pet := model.NewPet(name, pronouns)
		if err := coord.SavePet(cmd.Context(), a.userID, pet); err != nil {
			return err
		}
		coord.Wait()

		fmt.Printf("Welcome home, %s!\n", pet.Name)
		return nil
	},
}

var petStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the pet's status card",
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

		var remark string
		if pet != nil && !petQuiet {
			remark = petRemark(cmd, a, pet, streak)
		}

		fmt.Print(ui.PetCard(pet, streak, remark))
		coord.Wait()
		return nil
	},
}

var petFeedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Feed the pet",
	RunE: func(cmd *cobra.Command, args []string) error {
		return interact(cmd, func(pet *model.Pet) string {
			pet.Points += 5
			pet.Mood = "happy"
			return "%s munches happily. +5 points.\n"
		})
	},
}

var petPlayCmd = &cobra.Command{
	Use:   "play",
	Short: "Take the pet on an adventure",
	RunE: func(cmd *cobra.Command, args []string) error {
		return interact(cmd, func(pet *model.Pet) string {
			pet.Points += 10
			pet.AdventuresCount++
			pet.Mood = "excited"
			return "%s had a great adventure! +10 points.\n"
		})
	},
}

// interact applies one interaction to the pet, advances the streak, and
// writes both through the coordinator.
func interact(cmd *cobra.Command, apply func(*model.Pet) string) error {
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
	if pet == nil {
		return fmt.Errorf("no pet yet, run 'outku pet adopt' first")
	}

	now := time.Now().UTC()
	msg := apply(pet)
	pet.LastInteraction = now
	pet.Progress = stageProgress(pet.Points)
	if err := coord.SavePet(cmd.Context(), a.userID, pet); err != nil {
		return err
	}

	streak, err := coord.LoadStreak(cmd.Context(), a.userID)
	if err != nil {
		return err
	}
	if err := coord.SaveStreak(cmd.Context(), a.userID, touchStreak(streak, now)); err != nil {
		return err
	}
	coord.Wait()

	fmt.Printf(msg, pet.Name)
	return nil
}

// touchStreak records activity today. Consecutive days extend the streak,
// a gap resets it, a second interaction on the same day is a no-op.
func touchStreak(st *model.Streak, now time.Time) *model.Streak {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if st == nil {
		st = &model.Streak{}
	}
	if st.LastActiveDate != nil {
		last := *st.LastActiveDate
		switch {
		case last.Equal(today):
			return st
		case today.Sub(last) <= 24*time.Hour:
			st.Current++
		default:
			st.Current = 1
		}
	} else {
		st.Current = 1
	}
	if st.Current > st.Longest {
		st.Longest = st.Current
	}
	st.LastActiveDate = &today
	return st
}

// stageProgress maps lifetime points onto progress toward the next stage.
func stageProgress(points int) float64 {
	const perStage = 100
	return float64(points%perStage) / perStage
}

func petRemark(cmd *cobra.Command, a *app, pet *model.Pet, streak *model.Streak) string {
	gen, err := newGenerator(a)
	if err != nil {
		return ""
	}

	var todays []model.CalendarEvent
	if s, err := a.openStore(); err == nil {
		if events, err := s.LoadEvents(cmd.Context()); err == nil {
			todays = windowed(events, time.Now(), 1)
		}
	}

	remark, err := gen.PetRemark(cmd.Context(), pet, streak, todays)
	if err != nil {
		return ""
	}
	return remark
}

func init() {
	petStatusCmd.Flags().BoolVar(&petQuiet, "quiet", false, "skip the remark")
	petCmd.AddCommand(petAdoptCmd, petStatusCmd, petFeedCmd, petPlayCmd)
	rootCmd.AddCommand(petCmd)
}
