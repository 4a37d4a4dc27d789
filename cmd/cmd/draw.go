package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"eventforge/internal/config"
	"eventforge/internal/core"
	"eventforge/internal/logger"
	"eventforge/internal/retrieval"
	"eventforge/internal/store"
)

var drawCmd = &cobra.Command{
	Use:   "draw",
	Short: "Draw one event from the weighted pools",
	Long: `Perform one two-stage weighted draw and print the event. By default the
draw is recorded as a use (usage count and last-used timestamp); pass --peek
to leave the usage statistics untouched.

Example:
  eventforge draw
  eventforge draw --rank gold
  eventforge draw --peek`,
	Run: func(cmd *cobra.Command, args []string) {
		rank, _ := cmd.Flags().GetString("rank")
		peek, _ := cmd.Flags().GetBool("peek")

		if err := runDraw(core.Rank(rank), peek); err != nil {
			logger.Error("Draw failed", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(drawCmd)
	drawCmd.Flags().String("rank", "", "restrict to events whose rank window contains this tier")
	drawCmd.Flags().Bool("peek", false, "do not record the draw as a use")
}

func runDraw(rank core.Rank, peek bool) error {
	if rank != "" && core.RankIndex(rank) < 0 {
		return fmt.Errorf("unknown rank tier %q (want one of %v)", rank, core.RankTiers)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	st, err := store.New(cfg.Store.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	engine := retrieval.New(st, cfg.Retrieval)

	event, err := engine.Draw(ctx, rank)
	if err != nil {
		return err
	}
	if event == nil {
		fmt.Println("No content available for this draw.")
		return nil
	}

	if !peek {
		if err := st.MarkUsed(ctx, event.ID); err != nil {
			return fmt.Errorf("failed to record use: %w", err)
		}
	}

	fmt.Printf("🎴 %s\n", event.Title)
	fmt.Printf("   %s\n", event.Description)
	fmt.Printf("   Ranks %s..%s | pool %s | quality %.2f | used %d times\n",
		event.MinRank, event.MaxRank, event.SourceType, event.QualityScore, event.UsageCount)
	for i, opt := range event.Options {
		fmt.Printf("   %d) %s", i+1, opt.Text)

		names := make([]string, 0, len(opt.Effects))
		for name := range opt.Effects {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %s %+g", name, opt.Effects[name])
		}
		fmt.Println()
	}
	fmt.Printf("   id: %s\n", event.ID)

	return nil
}
