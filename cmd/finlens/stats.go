package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show API budget usage and cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			usage, err := a.cache.UsageStats()
			if err != nil {
				return err
			}

			names := make([]string, 0, len(usage))
			for name := range usage {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "API\tCALLS\tLIMIT\tUSED\tRESETS IN")
			for _, name := range names {
				u := usage[name]
				limit := "unmetered"
				used := "-"
				if u.Limit > 0 {
					limit = fmt.Sprintf("%d", u.Limit)
					used = fmt.Sprintf("%.0f%%", u.UsagePercent)
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
					u.APIName, u.Count, limit, used, (time.Duration(u.ResetIn) * time.Second).Round(time.Minute))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			cs, err := a.cache.Stats()
			if err != nil {
				return err
			}
			fmt.Printf("\nCache: %d entries, %d hits, %d misses this run\n", cs.Entries, cs.Hits, cs.Misses)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func newJournalCmd() *cobra.Command {
	var (
		configPath string
		since      time.Duration
		limit      int
		aggregate  bool
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent budget gate decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

			if aggregate {
				stats, err := a.cache.JournalStats()
				if err != nil {
					return err
				}
				if len(stats) == 0 {
					fmt.Println("No journaled calls.")
					return nil
				}
				fmt.Fprintln(w, "DAY\tAPI\tALLOWED\tDENIED")
				for _, s := range stats {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", s.Day, s.APIName, s.Allowed, s.Denied)
				}
				return w.Flush()
			}

			records, err := a.cache.Journal(time.Now().Add(-since), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No journaled calls.")
				return nil
			}
			fmt.Fprintln(w, "TIME\tAPI\tDECISION")
			for _, r := range records {
				decision := "allowed"
				if !r.Allowed {
					decision = "denied"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.CreatedAt.Local().Format("2006-01-02T15:04:05"), r.APIName, decision)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "how far back to look")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum records to show")
	cmd.Flags().BoolVar(&aggregate, "by-day", false, "aggregate decisions by API and day")
	return cmd
}
