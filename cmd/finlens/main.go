package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	// API keys usually live in a local .env during development.
	_ = godotenv.Load()

	level := slog.LevelWarn
	if os.Getenv("FINLENS_DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	root := &cobra.Command{
		Use:     "finlens",
		Short:   "FinLens — budget-gated retrieval over a financial book library",
		Version: version,
	}

	root.AddCommand(
		newInsightCmd(),
		newPassagesCmd(),
		newSummaryCmd(),
		newBooksCmd(),
		newNewsCmd(),
		newStatsCmd(),
		newJournalCmd(),
		newCacheCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
