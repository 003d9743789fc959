// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/book-finder/pkg/types"
)

// FormatTable writes res as a human-readable table to w.
func FormatTable(res types.SearchResult, w io.Writer) {
	if res.EnhancedQuery != "" {
		fmt.Fprintf(w, "Enhanced query: %s\n", res.EnhancedQuery)
	}
	if len(res.AlternativeTerms) > 0 {
		fmt.Fprintf(w, "Related terms:  %s\n", strings.Join(res.AlternativeTerms, ", "))
	}
	if res.EnhancedQuery != "" || len(res.AlternativeTerms) > 0 {
		fmt.Fprintln(w)
	}

	if len(res.Books) == 0 {
		fmt.Fprintln(w, "No books found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-50s  %-24s  %-4s  %-14s  %s\n",
		"#", "Title", "Author", "Year", "Source", "Download")
	fmt.Fprintln(w, strings.Repeat("-", 112))

	for i, b := range res.Books {
		year := ""
		if b.PublishYear > 0 {
			year = fmt.Sprintf("%d", b.PublishYear)
		}
		source := string(b.Source)
		if b.IsRecommendation {
			source = "* " + source
		}
		download := "-"
		if b.DownloadURL != "" {
			download = b.DownloadURL
		}
		fmt.Fprintf(w, "%-4d  %-50s  %-24s  %-4s  %-14s  %s\n",
			i+1, truncate(b.Title, 50), formatAuthors(b.Author), year, source, download)
	}

	fmt.Fprintf(w, "\n%d books", res.TotalResults)
	if res.RecommendationCount != nil && *res.RecommendationCount > 0 {
		fmt.Fprintf(w, " (%d recommended)", *res.RecommendationCount)
	}
	fmt.Fprintln(w)
}

// FormatJSON writes res as indented JSON to w.
func FormatJSON(res types.SearchResult, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// FormatYAML writes res as YAML to w.
func FormatYAML(res types.SearchResult, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(res); err != nil {
		return err
	}
	return enc.Close()
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncate(authors[0], 24)
	default:
		return truncate(authors[0], 18) + " et al."
	}
}

// truncate shortens s to max runes, ending with "..." when cut.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
