// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/book-finder/internal/logger"
	"github.com/pdiddy/book-finder/internal/search"
	"github.com/pdiddy/book-finder/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Search for books matching a free-text query",
	Long: `Search queries the catalog and the archive, asks the recommendation model
for concrete titles and better search terms, and prints one merged list with
recommendations first. Failing upstreams are skipped; the worst case is an
empty list.

The query is taken from --query or from the positional arguments.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().String("query", "", "free-text query")
	searchCmd.Flags().Bool("no-recommendations", false, "skip the recommendation step")
	searchCmd.Flags().String("format", "table", "output format: table, json or yaml")
	searchCmd.Flags().Int("limit", 0, "results requested from each source on the first round (default 20)")
	searchCmd.Flags().String("output", "", "also save the query and result to this YAML file")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	if query == "" {
		query = strings.Join(args, " ")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return fmt.Errorf("query is empty: pass --query or a positional query")
	}

	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format); err != nil {
		return err
	}

	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
		viper.Set("catalog.limit", limit)
		viper.Set("archive.limit", limit)
	}
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.ContextWithID(ctx, logger.NewRequestID())

	noRecs, _ := cmd.Flags().GetBool("no-recommendations")
	res := newAggregator(cfg).SearchBooks(ctx, query, !noRecs)

	if output, _ := cmd.Flags().GetString("output"); output != "" {
		if err := search.WriteQueryFile(output, !noRecs, res); err != nil {
			return err
		}
		logrus.WithField("file", output).Info("saved search")
	}

	return render(res, format, cmd.OutOrStdout())
}

func checkFormat(format string) error {
	switch format {
	case "table", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unknown format %q: want table, json or yaml", format)
	}
}

func render(res types.SearchResult, format string, w io.Writer) error {
	switch format {
	case "json":
		return search.FormatJSON(res, w)
	case "yaml":
		return search.FormatYAML(res, w)
	default:
		search.FormatTable(res, w)
		return nil
	}
}
