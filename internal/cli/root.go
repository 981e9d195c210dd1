// Package cli provides the command-line interface for feedherald.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/feedherald/internal/config"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var configDir = config.DefaultConfigDir

var rootCmd = &cobra.Command{
	Use:   "feedherald",
	Short: "Announce gazetteer, blog and bibliography updates",
	Long: "feedherald polls the Pleiades gazetteer, a project blog and a Zotero library, " +
		"turns new and changed items into reports, and queues them as posts for review and publication.",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "feedherald %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", config.DefaultConfigDir, "config directory")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
