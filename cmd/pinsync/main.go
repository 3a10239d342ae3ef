package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pinsync/pinsync/internal/config"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var (
	configPath string
	jsonOutput bool
	verbose    bool
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pinsync",
	Short: "Save pages as pins and keep them in sync with the cloud",
	Long: `pinsync captures web pages as pins, groups them into collections and
synchronizes them with a pinsync backend.

Pins and collections live in a local SQLite database. A background daemon
pulls records that exist only in the cloud and pushes records that exist only
locally. Edits and deletions stay local.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "data", Title: "Pins & collections:"},
		&cobra.Group{ID: "auth", Title: "Authentication:"},
		&cobra.Group{ID: "server", Title: "Server:"},
	)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/pinsync/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON instead of text")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log sync activity to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
