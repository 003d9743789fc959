//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Search builds the binary and runs one search for $QUERY (default
// "dragons"). Set NO_RECS=1 to skip the recommendation step.
func Search() error {
	mg.Deps(Build)

	query := os.Getenv("QUERY")
	if query == "" {
		query = "dragons"
	}
	args := []string{"search", "--query", query}
	if os.Getenv("NO_RECS") != "" {
		args = append(args, "--no-recommendations")
	}
	fmt.Printf("[search] %q\n", query)
	return sh.RunV(filepath.Join(binDir, binName), args...)
}
