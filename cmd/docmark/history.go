// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/docmark/internal/history"
	"github.com/pdiddy/docmark/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent conversion outcomes",
	Long: `History lists finished conversions from the local history database,
most recent first, with completed/failed totals.`,
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	store, err := history.Open(cfg.History)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	entries, err := store.Recent(limit)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No conversions recorded.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-19s  %-9s  %-30s  %7s  %8s  %s\n",
		"Finished", "Status", "File", "Words", "Duration", "Detail")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))

	for _, e := range entries {
		name := e.DisplayName
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		detail := e.OutputPath
		if e.Status == types.StatusFailed {
			detail = e.ErrorDetail
		}
		fmt.Fprintf(os.Stdout, "%-19s  %-9s  %-30s  %7d  %8s  %s\n",
			e.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			e.Status, name, e.WordCount, e.Duration.Round(10*time.Millisecond), detail)
	}

	completed, failed, err := store.Counts()
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\n%d completed, %d failed\n", completed, failed)
	return nil
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum entries to show")

	rootCmd.AddCommand(historyCmd)
}
