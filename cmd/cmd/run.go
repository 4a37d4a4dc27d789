package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"eventforge/internal/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler process",
	Long: `Start the long-running scheduler process. The three jobs (daily
generation, daily cleanup, 2-hourly supplement) fire on their configured cron
schedules until the process receives SIGINT or SIGTERM.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runScheduler(); err != nil {
			logger.Error("Scheduler process failed", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runScheduler() error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.scheduler.Start(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	logger.Info("Shutting down", "signal", received.String())

	a.scheduler.Stop()
	return nil
}
