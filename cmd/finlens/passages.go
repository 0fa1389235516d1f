package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPassagesCmd() *cobra.Command {
	var (
		configPath  string
		maxPassages int
	)

	cmd := &cobra.Command{
		Use:   "passages <book> <query>",
		Short: "Extract the most relevant passages of one book",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			passages := a.retriever().ExtractPassages(cmd.Context(), args[0], args[1], maxPassages)
			if len(passages) == 0 {
				fmt.Println("No relevant passages found.")
				return nil
			}

			for i, p := range passages {
				fmt.Printf("[%d] chunk %d (score %.2f)\n", i+1, p.ChunkIndex, p.Score)
				if p.Rationale != "" {
					fmt.Printf("    %s\n", p.Rationale)
				}
				fmt.Printf("%s\n\n", p.Text)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().IntVar(&maxPassages, "max", 0, "passages to return (0 = configured default)")
	return cmd
}

func newSummaryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "summary <book>",
		Short: "Summarize one book's key ideas",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			summary, err := a.retriever().Summarize(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Println(summary.Text)
			if len(summary.KeyConcepts) > 0 {
				fmt.Println("\nKey concepts:")
				for _, kc := range summary.KeyConcepts {
					fmt.Printf("  - %s\n", kc)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}
