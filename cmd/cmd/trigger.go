package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"eventforge/internal/logger"
	"eventforge/internal/scheduler"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger [generation|cleanup|supplement]",
	Short: "Run one scheduled job immediately",
	Long: `Run one of the three jobs synchronously, outside its cron schedule.
Useful for operational testing without waiting for the clock.

Example:
  eventforge trigger generation
  eventforge trigger cleanup`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: scheduler.JobNames,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runTrigger(args[0]); err != nil {
			logger.Error("Trigger failed", err, "job", args[0])
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(triggerCmd)
}

func runTrigger(job string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	switch job {
	case scheduler.JobGeneration:
		err = a.scheduler.TriggerGeneration()
	case scheduler.JobCleanup:
		err = a.scheduler.TriggerCleanup()
	case scheduler.JobSupplement:
		err = a.scheduler.TriggerSupplement()
	default:
		return fmt.Errorf("unknown job %q (want one of %v)", job, scheduler.JobNames)
	}
	if err != nil {
		return err
	}

	status := a.scheduler.Status()[job]
	fmt.Printf("✅ Job %s finished: %s (ran at %s)\n",
		job, status.State, status.LastRun.Format("2006-01-02 15:04:05"))
	return nil
}
