package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/LJMStark/outku3-sub001/internal/config"
	"github.com/LJMStark/outku3-sub001/internal/daemon"
	"github.com/LJMStark/outku3-sub001/internal/dashboard"
)

var daemonDashboard bool

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon",
	Long: `Run the sync loop: periodic full syncs and collection refreshes on a
schedule, plus immediate draining of queued remote pushes.

Logs rotate under <data-dir>/logs/daemon.log. With --dashboard the live
status dashboard is served on the configured port.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		logger := daemonLogger(a.cfg)

		spool, err := a.openOutbox()
		if err != nil {
			return err
		}
		coord, err := a.coordinator()
		if err != nil {
			return err
		}
		refresher, err := a.refresher()
		if err != nil {
			return err
		}
		pusher := daemon.NewEntryPusher(a.profileStore(), a.tasksGateway())

		d, err := daemon.New(spool, coord, refresher, pusher, &daemon.Config{
			UserID:   a.userID,
			Schedule: a.cfg.Sync.Schedule,
			Logger:   logger,
		})
		if err != nil {
			return err
		}

		var server *dashboard.Server
		if daemonDashboard {
			server = dashboard.NewServer(coord, spool, &dashboard.Config{
				Port:   a.cfg.Dashboard.Port,
				Logger: logger,
			})
			if err := server.Start(); err != nil {
				return fmt.Errorf("dashboard failed to start: %w", err)
			}
			handler := dashboard.NewHandler(server, logger)
			coord.SetNotify(handler.OnSyncEvent)
			fmt.Printf("Dashboard: http://localhost%s\n", server.GetAddr())
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Daemon running (schedule %s). Ctrl-C to stop.\n", a.cfg.Sync.Schedule)
		if err := d.Start(ctx); err != nil {
			return err
		}

		if server != nil {
			if err := server.Stop(); err != nil {
				logger.Printf("Warning: dashboard shutdown: %v", err)
			}
		}
		coord.Wait()
		fmt.Println("Daemon stopped.")
		return nil
	},
}

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "sync",
	Short:   "Serve the status dashboard without the sync loop",
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
		spool, err := a.openOutbox()
		if err != nil {
			return err
		}

		server := dashboard.NewServer(coord, spool, &dashboard.Config{
			Port: a.cfg.Dashboard.Port,
		})
		if err := server.Start(); err != nil {
			return err
		}
		fmt.Printf("Dashboard: http://localhost%s (Ctrl-C to stop)\n", server.GetAddr())

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		return server.Stop()
	},
}

// daemonLogger writes rotating logs under the data directory, or to the
// configured log file.
func daemonLogger(cfg *config.Config) *log.Logger {
	file := cfg.LogFile
	if file == "" {
		file = filepath.Join(cfg.DataDir, "logs", "daemon.log")
	}
	return log.New(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}, "", log.LstdFlags)
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonDashboard, "dashboard", false, "serve the live dashboard")
	rootCmd.AddCommand(daemonCmd, dashboardCmd)
}
