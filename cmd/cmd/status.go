package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"eventforge/internal/config"
	"eventforge/internal/core"
	"eventforge/internal/fetcher"
	"eventforge/internal/logger"
	"eventforge/internal/store"
)

var (
	statusTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	statusLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(22)
	statusOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show source and event pool status",
	Long:  `Display the configured feed sources, their availability, and per-pool event counts.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runStatus(); err != nil {
			logger.Error("Failed to read status", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	st, err := store.New(cfg.Store.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	f := fetcher.New(cfg.Fetch, cfg.Sources, cfg.Keywords)
	fs := f.Status()

	fmt.Println(statusTitleStyle.Render("Sources"))
	fmt.Printf("%s %d\n", statusLabelStyle.Render("Configured:"), fs.TotalSources)
	fmt.Printf("%s %s\n", statusLabelStyle.Render("Available:"), statusOKStyle.Render(fmt.Sprintf("%d", fs.AvailableSources)))
	if fs.UnavailableSources > 0 {
		fmt.Printf("%s %s\n", statusLabelStyle.Render("Unavailable:"), statusWarnStyle.Render(fmt.Sprintf("%d", fs.UnavailableSources)))
	}
	for _, src := range cfg.Sources {
		fmt.Printf("  • %s (%s, weight %.1f)\n", src.Name, src.Category, src.Weight)
	}

	ctx := context.Background()
	total, err := st.CountAll(ctx)
	if err != nil {
		return err
	}
	counts, err := st.CountByType(ctx)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(statusTitleStyle.Render("Event pools"))
	fmt.Printf("%s %d\n", statusLabelStyle.Render("Total events:"), total)
	for _, sourceType := range core.SourceTypes {
		fmt.Printf("%s %d\n", statusLabelStyle.Render(string(sourceType)+":"), counts[sourceType])
	}
	if total < cfg.Scheduler.MinEvents {
		fmt.Println(statusWarnStyle.Render(fmt.Sprintf(
			"Below the configured minimum of %d; the supplement job will top up.", cfg.Scheduler.MinEvents)))
	}

	return nil
}
