// Package cmd holds the headlines command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"headlines/internal/config"
	"headlines/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "headlines",
	Short: "Headlines, a small self-hosted feed reader",
	Long: `Headlines subscribes to RSS and Atom feeds, refreshes them in the
background and serves a single page for reading, rating and tagging items.

Settings come from headlines.yaml, a .env file and HEADLINES_* variables.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./headlines.yaml)")
}

// loadConfig reads the configuration and installs the logger. The returned
// func releases the log file.
func loadConfig() (config.Config, func(), error) {
	cfg, err := config.Load(cfgFile, ".env")
	if err != nil {
		return config.Config{}, nil, err
	}

	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("setup logging: %w", err)
	}

	release := func() {
		closeErr := closer.Close()
		if closeErr != nil {
			fmt.Fprintln(os.Stderr, "close log file:", closeErr)
		}
	}

	return cfg, release, nil
}
