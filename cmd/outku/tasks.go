package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/LJMStark/outku3-sub001/internal/model"
	"github.com/LJMStark/outku3-sub001/internal/outbox"
	"github.com/LJMStark/outku3-sub001/internal/ui"
)

var (
	taskDue     string
	taskNotes   string
	taskList    string
	taskRefresh bool
)

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	GroupID: "view",
	Short:   "Manage tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if taskRefresh {
			refresher, err := a.refresher()
			if err != nil {
				return err
			}
			if err := refresher.RefreshTasks(cmd.Context()); err != nil {
				return err
			}
		}

		s, err := a.openStore()
		if err != nil {
			return err
		}
		tasks, err := s.LoadTasks(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Print(ui.Tasks(tasks, time.Now()))
		return nil
	},
}

var tasksAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task",
	Long: `Add a task to the remote list and the local snapshot.

The --due flag accepts natural language ("tomorrow", "next friday 5pm") as
well as plain dates.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		task := model.TaskItem{
			Title:        args[0],
			Notes:        taskNotes,
			Source:       model.SourceLocal,
			LastModified: time.Now().UTC(),
		}
		if taskDue != "" {
			due, err := parseDue(taskDue)
			if err != nil {
				return err
			}
			task.Due = &due
		}

		created, err := a.tasksGateway().CreateTask(cmd.Context(), taskList, task)
		if err != nil {
			return fmt.Errorf("could not create task: %w", err)
		}

		s, err := a.openStore()
		if err != nil {
			return err
		}
		tasks, err := s.LoadTasks(cmd.Context())
		if err != nil {
			return err
		}
		tasks = append(tasks, created)
		if err := s.SaveTasks(cmd.Context(), tasks); err != nil {
			return err
		}

		fmt.Printf("Added %q", created.Title)
		if created.Due != nil {
			fmt.Printf(" due %s", created.Due.Local().Format("Mon Jan 2 15:04"))
		}
		fmt.Println()
		return nil
	},
}

var tasksDoneCmd = &cobra.Command{
	Use:   "done <number>",
	Short: "Mark a task completed",
	Long: `Mark the numbered task (as shown by 'tasks list') completed.

The local snapshot updates immediately. If the remote push fails, the
completion is queued in the outbox and retried by the daemon.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTaskCompletion(cmd, args[0], true)
	},
}

var tasksReopenCmd = &cobra.Command{
	Use:   "reopen <number>",
	Short: "Reopen a completed task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTaskCompletion(cmd, args[0], false)
	},
}

var tasksRmCmd = &cobra.Command{
	Use:   "rm <number>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
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
		tasks, err := s.LoadTasks(cmd.Context())
		if err != nil {
			return err
		}
		idx, err := taskIndex(args[0], len(tasks))
		if err != nil {
			return err
		}
		task := tasks[idx]

		if task.HasRemoteIDs() {
			if err := a.tasksGateway().DeleteTask(cmd.Context(), task.RemoteListID, task.RemoteTaskID); err != nil {
				return fmt.Errorf("could not delete remote task: %w", err)
			}
		}

		tasks = append(tasks[:idx], tasks[idx+1:]...)
		if err := s.SaveTasks(cmd.Context(), tasks); err != nil {
			return err
		}
		fmt.Printf("Deleted %q\n", task.Title)
		return nil
	},
}

func setTaskCompletion(cmd *cobra.Command, arg string, completed bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.openStore()
	if err != nil {
		return err
	}
	tasks, err := s.LoadTasks(cmd.Context())
	if err != nil {
		return err
	}
	idx, err := taskIndex(arg, len(tasks))
	if err != nil {
		return err
	}

	tasks[idx].Completed = completed
	tasks[idx].LastModified = time.Now().UTC()
	if err := s.SaveTasks(cmd.Context(), tasks); err != nil {
		return err
	}

	task := tasks[idx]
	if !task.HasRemoteIDs() {
		fmt.Printf("Updated %q (local only)\n", task.Title)
		return nil
	}

	if err := a.tasksGateway().SetCompletion(cmd.Context(), task, completed); err != nil {
		spool, spoolErr := a.openOutbox()
		if spoolErr != nil {
			return fmt.Errorf("remote push failed (%v) and outbox unavailable: %w", err, spoolErr)
		}
		payload := outbox.TaskCompletion{
			ListID:    task.RemoteListID,
			TaskID:    task.RemoteTaskID,
			Completed: completed,
		}
		if qErr := spool.Enqueue(outbox.KindTaskCompletion, a.userID, payload); qErr != nil {
			return fmt.Errorf("remote push failed (%v) and could not queue retry: %w", err, qErr)
		}
		fmt.Printf("Updated %q locally; remote push queued for retry\n", task.Title)
		return nil
	}

	fmt.Printf("Updated %q\n", task.Title)
	return nil
}

func taskIndex(arg string, n int) (int, error) {
	num, err := strconv.Atoi(arg)
	if err != nil || num < 1 || num > n {
		return 0, fmt.Errorf("no task number %q (have %d tasks)", arg, n)
	}
	return num - 1, nil
}

func parseDue(text string) (time.Time, error) {
	// Exact dates first, natural language second.
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, text, time.Local); err == nil {
			return t, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(text, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("could not parse due date %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not parse due date %q", text)
	}
	return r.Time, nil
}

func init() {
	tasksCmd.PersistentFlags().StringVar(&taskList, "list", "@default", "remote task list id")
	tasksListCmd.Flags().BoolVar(&taskRefresh, "refresh", false, "refresh from the provider first")
	tasksAddCmd.Flags().StringVar(&taskDue, "due", "", "due date, natural language accepted")
	tasksAddCmd.Flags().StringVar(&taskNotes, "notes", "", "task notes")
	tasksCmd.AddCommand(tasksListCmd, tasksAddCmd, tasksDoneCmd, tasksReopenCmd, tasksRmCmd)
	rootCmd.AddCommand(tasksCmd)
}
