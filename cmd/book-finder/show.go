// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/book-finder/internal/search"
)

var showCmd = &cobra.Command{
	Use:   "show FILE",
	Short: "Render a search saved with search --output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format); err != nil {
			return err
		}

		qf, err := search.ReadQueryFile(args[0])
		if err != nil {
			return err
		}
		if format == "table" {
			fmt.Fprintf(cmd.OutOrStdout(), "Query: %s (saved %s)\n",
				qf.Query.Text, qf.Summary.Timestamp.Format("2006-01-02 15:04"))
		}
		return render(qf.Result, format, cmd.OutOrStdout())
	},
}

func init() {
	showCmd.Flags().String("format", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(showCmd)
}
