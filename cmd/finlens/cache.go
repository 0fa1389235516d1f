package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
	}
	cmd.AddCommand(newCacheClearCmd())
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	var (
		configPath string
		key        string
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete cached responses (budget counters are untouched)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.cache.Clear(key); err != nil {
				return err
			}
			if key == "" {
				fmt.Println("Cache cleared.")
			} else {
				fmt.Println("Entry cleared.")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVar(&key, "key", "", "clear a single entry by key (default: everything)")
	return cmd
}
