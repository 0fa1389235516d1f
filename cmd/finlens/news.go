package main

import (
	"fmt"
	"strings"

	"github.com/finlens-ai/finlens/pkg/cache/sqlite"
	"github.com/finlens-ai/finlens/pkg/news"
	"github.com/spf13/cobra"
)

func newNewsCmd() *cobra.Command {
	var (
		configPath string
		maxResults int
	)

	cmd := &cobra.Command{
		Use:   "news <query>",
		Short: "Search financial news (metered, cached)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.Search.APIKey == "" {
				return fmt.Errorf("no search API key configured (set FINLENS_SEARCH_API_KEY)")
			}

			client := news.NewClient(a.cfg.Search.URL, a.cfg.Search.APIKey, a.cache, sqlite.Key)
			articles, err := client.Search(cmd.Context(), strings.Join(args, " "), maxResults)
			if err != nil {
				return err
			}
			if len(articles) == 0 {
				fmt.Println("No articles found.")
				return nil
			}

			for _, art := range articles {
				fmt.Printf("%s\n  %s\n", art.Title, art.URL)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().IntVar(&maxResults, "max", 5, "maximum articles to return")
	return cmd
}
