package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newInsightCmd() *cobra.Command {
	var (
		configPath string
		book       string
	)

	cmd := &cobra.Command{
		Use:   "insight <query>",
		Short: "Generate an insight grounded in the book library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			query := strings.Join(args, " ")
			insight := a.retriever().GenerateInsight(cmd.Context(), query, book)

			fmt.Println(insight.Text)
			if len(insight.Sources) > 0 {
				fmt.Println("\nSources:")
				for _, s := range insight.Sources {
					fmt.Printf("  - %s by %s: %q\n", s.Title, s.Author, s.Snippet)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVar(&book, "book", "", "restrict retrieval to one book ID")
	return cmd
}
