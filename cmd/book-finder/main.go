// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the book-finder CLI.
package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/book-finder/internal/logger"
	"github.com/pdiddy/book-finder/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns fallback when set, otherwise the secret stored
// under key, otherwise "".
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	return loadedSecrets[key]
}

// rootCmd is the base command for the book-finder CLI.
var rootCmd = &cobra.Command{
	Use:   "book-finder",
	Short: "Search open book catalogs with LLM-assisted recommendations",
	Long: `book-finder turns a free-text request ("dragons", "feeling lost, need
something hopeful") into a list of books. It searches the Open Library catalog
and the Internet Archive, asks a language model for concrete recommendations
and better search terms, and merges everything into one deduplicated list with
recommendations first.

Use "search" for a one-off query and "serve" to expose the same search over
HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Setup(viper.GetString("log.level"), viper.GetString("log.format"), os.Stderr); err != nil {
			return err
		}

		dir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(dir)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			logrus.WithField("keys", secrets.Keys(s)).Debug("loaded secrets")
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./book-finder.yaml or ~/.config/book-finder/config.yaml)")
	pf.String("secrets-dir", secrets.DefaultDir, "directory of secret files")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")

	_ = viper.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", pf.Lookup("log-format"))
	setConfigDefaults(viper.GetViper())
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("book-finder")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "book-finder"))
		}
	}

	viper.SetEnvPrefix("BOOK_FINDER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logrus.WithField("file", viper.ConfigFileUsed()).Debug("using config file")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
