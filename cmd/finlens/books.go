package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newBooksCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "books",
		Short: "List the configured book library",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			docs := a.lib.List()
			if len(docs) == 0 {
				fmt.Println("No books configured.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tSTATUS")
			for _, d := range docs {
				status := "ok"
				if !fileExists(d.Path) {
					status = "missing file"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Title, d.Author, status)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}
